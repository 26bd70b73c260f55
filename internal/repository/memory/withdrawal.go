package memory

import (
	"context"
	"errors"
	"slices"
	"time"

	"pixwithdraw/internal/domain"

	"github.com/google/uuid"
)

type WithdrawalRepository struct {
	s *Store
}

func (r *WithdrawalRepository) Create(ctx context.Context, w domain.Withdrawal) (domain.Withdrawal, error) {
	defer r.s.lock(ctx)()

	if _, ok := r.s.byTxID[w.TransactionID]; ok {
		return domain.Withdrawal{}, domain.ErrDuplicateTransactionID
	}
	if _, ok := r.s.accounts[w.AccountID]; !ok {
		return domain.Withdrawal{}, domain.ErrAccountNotFound
	}
	w = cloneWithdrawal(w)
	if w.Metadata == nil {
		w.Metadata = domain.Metadata{}
	}
	r.s.withdrawals[w.ID] = w
	r.s.byTxID[w.TransactionID] = w.ID
	return cloneWithdrawal(w), nil
}

func (r *WithdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Withdrawal, error) {
	defer r.s.lock(ctx)()

	w, ok := r.s.withdrawals[id]
	if !ok {
		return domain.Withdrawal{}, domain.ErrWithdrawalNotFound
	}
	return cloneWithdrawal(w), nil
}

func (r *WithdrawalRepository) GetByTransactionID(ctx context.Context, transactionID string) (domain.Withdrawal, error) {
	defer r.s.lock(ctx)()

	id, ok := r.s.byTxID[transactionID]
	if !ok {
		return domain.Withdrawal{}, domain.ErrWithdrawalNotFound
	}
	return cloneWithdrawal(r.s.withdrawals[id]), nil
}

func (r *WithdrawalRepository) ExistsByTransactionID(ctx context.Context, transactionID string) (bool, error) {
	defer r.s.lock(ctx)()

	_, ok := r.s.byTxID[transactionID]
	return ok, nil
}

func (r *WithdrawalRepository) MarkProcessing(ctx context.Context, id uuid.UUID, meta domain.Metadata) (bool, error) {
	return r.transition(ctx, id, domain.Transition{To: domain.StatusProcessing, Metadata: meta})
}

func (r *WithdrawalRepository) MarkCompleted(ctx context.Context, id uuid.UUID, meta domain.Metadata) (bool, error) {
	return r.transition(ctx, id, domain.Transition{To: domain.StatusCompleted, Metadata: meta})
}

func (r *WithdrawalRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, meta domain.Metadata) (bool, error) {
	return r.transition(ctx, id, domain.Transition{To: domain.StatusFailed, Reason: reason, Metadata: meta})
}

func (r *WithdrawalRepository) Cancel(ctx context.Context, id uuid.UUID, meta domain.Metadata) (bool, error) {
	return r.transition(ctx, id, domain.Transition{To: domain.StatusCancelled, Metadata: meta})
}

func (r *WithdrawalRepository) transition(ctx context.Context, id uuid.UUID, t domain.Transition) (bool, error) {
	defer r.s.lock(ctx)()

	w, ok := r.s.withdrawals[id]
	if !ok {
		return false, domain.ErrWithdrawalNotFound
	}
	t.At = r.s.now()
	next, _, err := domain.ApplyTransition(w, t)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return false, nil
		}
		return false, err
	}
	r.s.withdrawals[id] = next
	return true, nil
}

// ListDue returns pending scheduled withdrawals due at or before before,
// oldest instant first.
func (r *WithdrawalRepository) ListDue(ctx context.Context, before time.Time, limit int) ([]domain.Withdrawal, error) {
	defer r.s.lock(ctx)()

	var due []domain.Withdrawal
	for _, w := range r.s.withdrawals {
		if w.Status == domain.StatusPending && w.ScheduledFor != nil && !w.ScheduledFor.After(before) {
			due = append(due, cloneWithdrawal(w))
		}
	}
	slices.SortFunc(due, func(a, b domain.Withdrawal) int {
		return a.ScheduledFor.Compare(*b.ScheduledFor)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}
