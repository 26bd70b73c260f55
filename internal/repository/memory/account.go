package memory

import (
	"context"

	"pixwithdraw/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AccountRepository struct {
	s *Store
}

// Find returns the account with its available balance net of withdrawals
// that are created but not yet settled.
func (r *AccountRepository) Find(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	defer r.s.lock(ctx)()

	a, ok := r.s.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}

	reserved := decimal.Zero
	for _, w := range r.s.withdrawals {
		if w.AccountID != id {
			continue
		}
		switch w.Status {
		case domain.StatusNew, domain.StatusPending, domain.StatusProcessing:
			reserved = reserved.Add(w.Amount)
		}
	}
	a.AvailableBalance = a.Balance.Sub(reserved)
	a.AsOf = r.s.now()
	return a, nil
}

func (r *AccountRepository) Debit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (bool, error) {
	defer r.s.lock(ctx)()

	a, ok := r.s.accounts[id]
	if !ok {
		return false, domain.ErrAccountNotFound
	}
	if a.Balance.LessThan(amount) {
		return false, nil
	}
	a.Balance = a.Balance.Sub(amount)
	a.AvailableBalance = a.Balance
	a.AsOf = r.s.now()
	r.s.accounts[id] = a
	return true, nil
}
