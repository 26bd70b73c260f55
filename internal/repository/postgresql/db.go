package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/lib/pq"
)

type ctxtype string

const (
	trKey ctxtype = "tx"
)

var (
	uniqueConstraint pq.ErrorCode = "23505"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Database struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewDatabase(db *sql.DB, logger *slog.Logger) *Database {
	return &Database{db: db, logger: logger}
}

func getTr(ctx context.Context) (*sql.Tx, bool) {
	tr, ok := ctx.Value(trKey).(*sql.Tx)
	return tr, ok
}

// conn returns the transaction carried by ctx, or the pool.
func (d *Database) conn(ctx context.Context) querier {
	if tr, ok := getTr(ctx); ok {
		return tr
	}
	return d.db
}

// WithTransaction runs fn inside one database transaction. A transaction
// already open on ctx is reused, so nested calls join the outer one.
func (d *Database) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := getTr(ctx); ok {
		return fn(ctx)
	}

	tr, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		d.logger.Error("failed to begin transaction", "error", err)
		return err
	}
	defer func() {
		if errRollback := tr.Rollback(); errRollback != nil && !errors.Is(errRollback, sql.ErrTxDone) {
			d.logger.Warn("failed to rollback on defer", "error", errRollback)
		}
	}()

	if err := fn(context.WithValue(ctx, trKey, tr)); err != nil {
		return err
	}

	if err := tr.Commit(); err != nil {
		d.logger.Error("failed to commit transaction", "error", err)
		return err
	}
	return nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueConstraint {
		return constraint == "" || pqErr.Constraint == constraint
	}
	return false
}
