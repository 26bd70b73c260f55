package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pixwithdraw/internal/domain"

	"github.com/google/uuid"
)

const withdrawalColumns = `id, account_id, transaction_id, method, amount, scheduled, scheduled_for,
	status, done, error, error_reason, metadata, created_at, updated_at`

type WithdrawalRepository struct {
	*Database
}

func NewWithdrawalRepository(d *Database) *WithdrawalRepository {
	return &WithdrawalRepository{Database: d}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWithdrawal(row rowScanner) (domain.Withdrawal, error) {
	var (
		w            domain.Withdrawal
		scheduledFor sql.NullTime
		errorReason  sql.NullString
		metadata     []byte
	)
	err := row.Scan(&w.ID, &w.AccountID, &w.TransactionID, &w.Method, &w.Amount, &w.Scheduled, &scheduledFor,
		&w.Status, &w.Done, &w.Error, &errorReason, &metadata, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return domain.Withdrawal{}, err
	}
	if scheduledFor.Valid {
		at := scheduledFor.Time.UTC()
		w.ScheduledFor = &at
	}
	w.ErrorReason = errorReason.String
	w.Metadata = domain.Metadata{}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &w.Metadata); err != nil {
			return domain.Withdrawal{}, fmt.Errorf("decode metadata of %s: %w", w.ID, err)
		}
	}
	return w, nil
}

// encodeMetadata returns text since lib/pq would send []byte as bytea.
func encodeMetadata(m domain.Metadata) (string, error) {
	if m == nil {
		m = domain.Metadata{}
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func (r *WithdrawalRepository) Create(ctx context.Context, w domain.Withdrawal) (domain.Withdrawal, error) {
	const query = `INSERT INTO withdrawals (` + withdrawalColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	RETURNING ` + withdrawalColumns

	metadata, err := encodeMetadata(w.Metadata)
	if err != nil {
		return domain.Withdrawal{}, err
	}
	var scheduledFor sql.NullTime
	if w.ScheduledFor != nil {
		scheduledFor = sql.NullTime{Time: *w.ScheduledFor, Valid: true}
	}

	row := r.conn(ctx).QueryRowContext(ctx, query, w.ID, w.AccountID, w.TransactionID, w.Method, w.Amount,
		w.Scheduled, scheduledFor, w.Status, w.Done, w.Error, sql.NullString{String: w.ErrorReason, Valid: w.ErrorReason != ""},
		metadata, w.CreatedAt, w.UpdatedAt)
	created, err := scanWithdrawal(row)
	if err != nil {
		if isUniqueViolation(err, "withdrawals_transaction_id_key") {
			return domain.Withdrawal{}, domain.ErrDuplicateTransactionID
		}
		return domain.Withdrawal{}, err
	}
	return created, nil
}

func (r *WithdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Withdrawal, error) {
	const query = `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1`

	w, err := scanWithdrawal(r.conn(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Withdrawal{}, domain.ErrWithdrawalNotFound
	}
	return w, err
}

func (r *WithdrawalRepository) GetByTransactionID(ctx context.Context, transactionID string) (domain.Withdrawal, error) {
	const query = `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE transaction_id = $1`

	w, err := scanWithdrawal(r.conn(ctx).QueryRowContext(ctx, query, transactionID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Withdrawal{}, domain.ErrWithdrawalNotFound
	}
	return w, err
}

func (r *WithdrawalRepository) ExistsByTransactionID(ctx context.Context, transactionID string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM withdrawals WHERE transaction_id = $1)`, transactionID).Scan(&exists)
	return exists, err
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

// transition locks the row, checks the move against the lifecycle table and
// writes the result. Concurrent callers serialise on the row lock, so only
// one of them observes the source status.
func (r *WithdrawalRepository) transition(ctx context.Context, id uuid.UUID, t domain.Transition) (bool, error) {
	const (
		selectQuery = `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1 FOR UPDATE`
		updateQuery = `UPDATE withdrawals SET status = $2, done = $3, error = $4, error_reason = $5, metadata = $6, updated_at = $7
		WHERE id = $1`
	)

	applied := false
	err := r.WithTransaction(ctx, func(txCtx context.Context) error {
		q := r.conn(txCtx)
		w, err := scanWithdrawal(q.QueryRowContext(txCtx, selectQuery, id))
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrWithdrawalNotFound
		}
		if err != nil {
			return err
		}

		t.At = time.Now().UTC()
		next, dropped, err := domain.ApplyTransition(w, t)
		if errors.Is(err, domain.ErrInvalidTransition) {
			return nil
		}
		if err != nil {
			return err
		}
		if len(dropped) > 0 {
			r.logger.Debug("metadata keys kept from existing record", "withdrawal_id", id, "keys", dropped)
		}

		metadata, err := encodeMetadata(next.Metadata)
		if err != nil {
			return err
		}
		_, err = q.ExecContext(txCtx, updateQuery, id, next.Status, next.Done, next.Error,
			sql.NullString{String: next.ErrorReason, Valid: next.ErrorReason != ""}, metadata, next.UpdatedAt)
		if err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

func (r *WithdrawalRepository) ListDue(ctx context.Context, before time.Time, limit int) ([]domain.Withdrawal, error) {
	const query = `SELECT ` + withdrawalColumns + ` FROM withdrawals
	WHERE status = 'pending' AND scheduled_for IS NOT NULL AND scheduled_for <= $1
	ORDER BY scheduled_for
	LIMIT $2`

	rows, err := r.conn(ctx).QueryContext(ctx, query, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []domain.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, w)
	}
	return due, rows.Err()
}
