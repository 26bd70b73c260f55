// Package memory keeps accounts and withdrawals in process memory. It backs
// the dev mode and the service tests, and honours the same atomicity
// contract as the postgres repositories.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"pixwithdraw/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ctxtype string

const trKey ctxtype = "memory-tx"

type Store struct {
	mu          sync.Mutex
	accounts    map[uuid.UUID]domain.Account
	withdrawals map[uuid.UUID]domain.Withdrawal
	byTxID      map[string]uuid.UUID
	keys        map[uuid.UUID]domain.KeyDetail
	now         func() time.Time
}

func New() *Store {
	return &Store{
		accounts:    make(map[uuid.UUID]domain.Account),
		withdrawals: make(map[uuid.UUID]domain.Withdrawal),
		byTxID:      make(map[string]uuid.UUID),
		keys:        make(map[uuid.UUID]domain.KeyDetail),
		now:         time.Now,
	}
}

func inTr(ctx context.Context) bool {
	v, _ := ctx.Value(trKey).(bool)
	return v
}

// lock takes the store mutex unless ctx already runs inside WithTransaction.
func (s *Store) lock(ctx context.Context) func() {
	if inTr(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type snapshot struct {
	accounts    map[uuid.UUID]domain.Account
	withdrawals map[uuid.UUID]domain.Withdrawal
	byTxID      map[string]uuid.UUID
	keys        map[uuid.UUID]domain.KeyDetail
}

// WithTransaction runs fn with the store locked and rolls every change back
// if fn returns an error or panics.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTr(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	snap := snapshot{
		accounts:    maps.Clone(s.accounts),
		withdrawals: maps.Clone(s.withdrawals),
		byTxID:      maps.Clone(s.byTxID),
		keys:        maps.Clone(s.keys),
	}
	committed := false
	defer func() {
		if !committed {
			s.accounts, s.withdrawals, s.byTxID, s.keys = snap.accounts, snap.withdrawals, snap.byTxID, snap.keys
		}
		s.mu.Unlock()
	}()

	if err := fn(context.WithValue(ctx, trKey, true)); err != nil {
		return err
	}
	committed = true
	return nil
}

// AddAccount seeds an account with the given balance.
func (s *Store) AddAccount(id uuid.UUID, name string, balance decimal.Decimal) domain.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := domain.Account{ID: id, Name: name, Balance: balance, AvailableBalance: balance, AsOf: s.now()}
	s.accounts[id] = a
	return a
}

func (s *Store) Accounts() *AccountRepository {
	return &AccountRepository{s}
}

func (s *Store) Withdrawals() *WithdrawalRepository {
	return &WithdrawalRepository{s}
}

func (s *Store) KeyDetails() *KeyDetailRepository {
	return &KeyDetailRepository{s}
}

func cloneWithdrawal(w domain.Withdrawal) domain.Withdrawal {
	w.Metadata = maps.Clone(w.Metadata)
	w.KeyDetail = nil
	return w
}
