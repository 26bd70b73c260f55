package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"pixwithdraw/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AccountRepository struct {
	*Database
}

func NewAccountRepository(d *Database) *AccountRepository {
	return &AccountRepository{Database: d}
}

// Create inserts an account. Accounts are owned by the ledger; this exists
// for seeding and tests.
func (r *AccountRepository) Create(ctx context.Context, id uuid.UUID, name string, balance decimal.Decimal) error {
	const query = `INSERT INTO accounts (id, name, balance, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)`

	_, err := r.conn(ctx).ExecContext(ctx, query, id, name, balance, time.Now().UTC())
	return err
}

func (r *AccountRepository) Find(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	const query = `SELECT a.id, a.name, a.balance,
		a.balance - COALESCE((
			SELECT SUM(w.amount) FROM withdrawals w
			WHERE w.account_id = a.id AND w.status IN ('new', 'pending', 'processing')
		), 0),
		now()
	FROM accounts a WHERE a.id = $1`

	var a domain.Account
	err := r.conn(ctx).QueryRowContext(ctx, query, id).Scan(&a.ID, &a.Name, &a.Balance, &a.AvailableBalance, &a.AsOf)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return domain.Account{}, err
	}
	return a, nil
}

// Debit applies the floor check and the decrement in a single statement.
func (r *AccountRepository) Debit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (bool, error) {
	const query = `UPDATE accounts SET balance = balance - $2, updated_at = now() WHERE id = $1 AND balance >= $2`

	q := r.conn(ctx)
	result, err := q.ExecContext(ctx, query, id, amount)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 1 {
		return true, nil
	}

	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, domain.ErrAccountNotFound
	}
	return false, nil
}
