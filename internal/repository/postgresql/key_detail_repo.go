package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"pixwithdraw/internal/domain"

	"github.com/google/uuid"
)

type KeyDetailRepository struct {
	*Database
}

func NewKeyDetailRepository(d *Database) *KeyDetailRepository {
	return &KeyDetailRepository{Database: d}
}

func (r *KeyDetailRepository) Create(ctx context.Context, withdrawalID uuid.UUID, keyType domain.KeyType, key, externalID string) (domain.KeyDetail, error) {
	const query = `INSERT INTO withdrawal_pix_keys (id, withdrawal_id, type, key, external_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

	kd := domain.KeyDetail{
		ID:           uuid.New(),
		WithdrawalID: withdrawalID,
		ExternalID:   externalID,
		Type:         keyType,
		Key:          key,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := r.conn(ctx).ExecContext(ctx, query, kd.ID, kd.WithdrawalID, kd.Type, kd.Key,
		sql.NullString{String: kd.ExternalID, Valid: kd.ExternalID != ""}, kd.CreatedAt)
	if err != nil {
		return domain.KeyDetail{}, err
	}
	return kd, nil
}

func (r *KeyDetailRepository) GetByWithdrawalID(ctx context.Context, withdrawalID uuid.UUID) (domain.KeyDetail, error) {
	const query = `SELECT id, withdrawal_id, type, key, external_id, created_at FROM withdrawal_pix_keys WHERE withdrawal_id = $1`

	var (
		kd         domain.KeyDetail
		externalID sql.NullString
	)
	err := r.conn(ctx).QueryRowContext(ctx, query, withdrawalID).
		Scan(&kd.ID, &kd.WithdrawalID, &kd.Type, &kd.Key, &externalID, &kd.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.KeyDetail{}, domain.ErrKeyDetailNotFound
	}
	if err != nil {
		return domain.KeyDetail{}, err
	}
	kd.ExternalID = externalID.String
	return kd, nil
}
