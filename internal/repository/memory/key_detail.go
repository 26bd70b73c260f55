package memory

import (
	"context"

	"pixwithdraw/internal/domain"

	"github.com/google/uuid"
)

type KeyDetailRepository struct {
	s *Store
}

// Create refuses a key detail whose withdrawal does not exist.
func (r *KeyDetailRepository) Create(ctx context.Context, withdrawalID uuid.UUID, keyType domain.KeyType, key, externalID string) (domain.KeyDetail, error) {
	defer r.s.lock(ctx)()

	if _, ok := r.s.withdrawals[withdrawalID]; !ok {
		return domain.KeyDetail{}, domain.ErrWithdrawalNotFound
	}
	kd := domain.KeyDetail{
		ID:           uuid.New(),
		WithdrawalID: withdrawalID,
		ExternalID:   externalID,
		Type:         keyType,
		Key:          key,
		CreatedAt:    r.s.now(),
	}
	r.s.keys[withdrawalID] = kd
	return kd, nil
}

func (r *KeyDetailRepository) GetByWithdrawalID(ctx context.Context, withdrawalID uuid.UUID) (domain.KeyDetail, error) {
	defer r.s.lock(ctx)()

	kd, ok := r.s.keys[withdrawalID]
	if !ok {
		return domain.KeyDetail{}, domain.ErrKeyDetailNotFound
	}
	return kd, nil
}
