package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"pixwithdraw/internal/domain"
	"pixwithdraw/internal/repository/migration"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// prepareDatabase migrates a throwaway schema on TEST_DATABASE_URL.
func prepareDatabase(t *testing.T) *Database {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	admin, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	schema := "t_" + strings.ToLower(gofakeit.LetterN(8))
	_, err = admin.Exec(fmt.Sprintf("CREATE SCHEMA %s", schema))
	require.NoError(t, err)

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()

	db, err := sql.Open("postgres", u.String())
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, migration.RunMigrations(db, logger))

	t.Cleanup(func() {
		db.Close()
		admin.Exec(fmt.Sprintf("DROP SCHEMA %s CASCADE", schema))
		admin.Close()
	})
	return NewDatabase(db, logger)
}

func seedAccount(t *testing.T, d *Database, balance string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, NewAccountRepository(d).Create(context.Background(), id, gofakeit.Name(), decimal.RequireFromString(balance)))
	return id
}

func newWithdrawal(accountID uuid.UUID, amount string, scheduleFor *time.Time) domain.Withdrawal {
	req := domain.WithdrawalRequest{
		AccountID:   accountID,
		Method:      domain.MethodPix,
		Amount:      decimal.RequireFromString(amount),
		ScheduleFor: scheduleFor,
		Metadata:    domain.Metadata{"channel": "api"},
	}
	return domain.NewWithdrawal(req, "PIX_"+strings.ToUpper(gofakeit.LetterN(16)), time.Now().UTC().Truncate(time.Microsecond))
}

func TestAccountRepository_FindAndDebit(t *testing.T) {
	d := prepareDatabase(t)
	ctx := context.Background()
	accounts := NewAccountRepository(d)
	withdrawals := NewWithdrawalRepository(d)
	id := seedAccount(t, d, "1000.00")

	_, err := withdrawals.Create(ctx, newWithdrawal(id, "100.00", nil))
	require.NoError(t, err)

	a, err := accounts.Find(ctx, id)
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(decimal.RequireFromString("1000")))
	assert.True(t, a.AvailableBalance.Equal(decimal.RequireFromString("900")))

	ok, err := accounts.Debit(ctx, id, decimal.RequireFromString("1000.01"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = accounts.Debit(ctx, id, decimal.RequireFromString("150.75"))
	require.NoError(t, err)
	assert.True(t, ok)

	a, err = accounts.Find(ctx, id)
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(decimal.RequireFromString("849.25")))

	_, err = accounts.Debit(ctx, uuid.New(), decimal.NewFromInt(1))
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = accounts.Find(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestAccountRepository_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	d := prepareDatabase(t)
	accounts := NewAccountRepository(d)
	id := seedAccount(t, d, "100.00")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := accounts.Debit(context.Background(), id, decimal.RequireFromString("30"))
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	a, err := accounts.Find(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(decimal.RequireFromString("10")))
}

func TestWithdrawalRepository_CreateAndGet(t *testing.T) {
	d := prepareDatabase(t)
	ctx := context.Background()
	repo := NewWithdrawalRepository(d)
	accountID := seedAccount(t, d, "500")
	at := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Microsecond)

	w := newWithdrawal(accountID, "42.50", &at)
	created, err := repo.Create(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, created.Status)
	assert.True(t, created.Scheduled)
	require.NotNil(t, created.ScheduledFor)
	assert.True(t, created.ScheduledFor.Equal(at))
	assert.Equal(t, "api", created.Metadata["channel"])

	byTx, err := repo.GetByTransactionID(ctx, w.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, w.ID, byTx.ID)

	exists, err := repo.ExistsByTransactionID(ctx, w.TransactionID)
	require.NoError(t, err)
	assert.True(t, exists)

	dup := newWithdrawal(accountID, "1", nil)
	dup.TransactionID = w.TransactionID
	_, err = repo.Create(ctx, dup)
	assert.ErrorIs(t, err, domain.ErrDuplicateTransactionID)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrWithdrawalNotFound)
}

func TestWithdrawalRepository_Transitions(t *testing.T) {
	d := prepareDatabase(t)
	ctx := context.Background()
	repo := NewWithdrawalRepository(d)
	w, err := repo.Create(ctx, newWithdrawal(seedAccount(t, d, "500"), "10", nil))
	require.NoError(t, err)

	ok, err := repo.MarkCompleted(ctx, w.ID, nil)
	require.NoError(t, err)
	assert.False(t, ok, "new cannot complete directly")

	ok, err = repo.MarkProcessing(ctx, w.ID, domain.Metadata{"channel": "other", "worker": "w1"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkFailed(ctx, w.ID, "debit failed: boom", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.True(t, got.Error)
	assert.Equal(t, "debit failed: boom", got.ErrorReason)
	assert.Equal(t, "api", got.Metadata["channel"])
	assert.Equal(t, "w1", got.Metadata["worker"])

	ok, err = repo.Cancel(ctx, w.ID, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.MarkProcessing(ctx, uuid.New(), nil)
	assert.ErrorIs(t, err, domain.ErrWithdrawalNotFound)
}

func TestWithdrawalRepository_ListDue(t *testing.T) {
	d := prepareDatabase(t)
	ctx := context.Background()
	repo := NewWithdrawalRepository(d)
	accountID := seedAccount(t, d, "500")
	now := time.Now().UTC()

	past := now.Add(-time.Hour)
	earlier := now.Add(-2 * time.Hour)
	future := now.Add(time.Hour)
	for _, at := range []*time.Time{&past, &earlier, &future, nil} {
		_, err := repo.Create(ctx, newWithdrawal(accountID, "1", at))
		require.NoError(t, err)
	}

	due, err := repo.ListDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.True(t, due[0].ScheduledFor.Before(*due[1].ScheduledFor))

	due, err = repo.ListDue(ctx, now, 1)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestDatabase_WithTransactionRollsBack(t *testing.T) {
	d := prepareDatabase(t)
	ctx := context.Background()
	repo := NewWithdrawalRepository(d)
	keys := NewKeyDetailRepository(d)
	w := newWithdrawal(seedAccount(t, d, "500"), "10", nil)

	err := d.WithTransaction(ctx, func(txCtx context.Context) error {
		if _, err := repo.Create(txCtx, w); err != nil {
			return err
		}
		if _, err := keys.Create(txCtx, w.ID, domain.KeyEmail, "a@b.com", ""); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	_, err = repo.GetByID(ctx, w.ID)
	assert.ErrorIs(t, err, domain.ErrWithdrawalNotFound)

	require.NoError(t, d.WithTransaction(ctx, func(txCtx context.Context) error {
		if _, err := repo.Create(txCtx, w); err != nil {
			return err
		}
		_, err := keys.Create(txCtx, w.ID, domain.KeyEmail, "a@b.com", "")
		return err
	}))
	kd, err := keys.GetByWithdrawalID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", kd.Key)

	_, err = keys.GetByWithdrawalID(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrKeyDetailNotFound)
}
