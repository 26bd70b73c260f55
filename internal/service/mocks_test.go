package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"pixwithdraw/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) Find(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Account), args.Error(1)
}

func (m *MockAccountRepository) Debit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (bool, error) {
	args := m.Called(ctx, id, amount)
	return args.Bool(0), args.Error(1)
}

type MockWithdrawalRepository struct {
	mock.Mock
}

func (m *MockWithdrawalRepository) ExistsByTransactionID(ctx context.Context, transactionID string) (bool, error) {
	args := m.Called(ctx, transactionID)
	return args.Bool(0), args.Error(1)
}

func (m *MockWithdrawalRepository) Create(ctx context.Context, w domain.Withdrawal) (domain.Withdrawal, error) {
	args := m.Called(ctx, w)
	return args.Get(0).(domain.Withdrawal), args.Error(1)
}

func (m *MockWithdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Withdrawal, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Withdrawal), args.Error(1)
}

func (m *MockWithdrawalRepository) GetByTransactionID(ctx context.Context, transactionID string) (domain.Withdrawal, error) {
	args := m.Called(ctx, transactionID)
	return args.Get(0).(domain.Withdrawal), args.Error(1)
}

func (m *MockWithdrawalRepository) MarkProcessing(ctx context.Context, id uuid.UUID, meta domain.Metadata) (bool, error) {
	args := m.Called(ctx, id, meta)
	return args.Bool(0), args.Error(1)
}

func (m *MockWithdrawalRepository) MarkCompleted(ctx context.Context, id uuid.UUID, meta domain.Metadata) (bool, error) {
	args := m.Called(ctx, id, meta)
	return args.Bool(0), args.Error(1)
}

func (m *MockWithdrawalRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, meta domain.Metadata) (bool, error) {
	args := m.Called(ctx, id, reason, meta)
	return args.Bool(0), args.Error(1)
}

func (m *MockWithdrawalRepository) Cancel(ctx context.Context, id uuid.UUID, meta domain.Metadata) (bool, error) {
	args := m.Called(ctx, id, meta)
	return args.Bool(0), args.Error(1)
}

func (m *MockWithdrawalRepository) ListDue(ctx context.Context, before time.Time, limit int) ([]domain.Withdrawal, error) {
	args := m.Called(ctx, before, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Withdrawal), args.Error(1)
}

type MockKeyDetailRepository struct {
	mock.Mock
}

func (m *MockKeyDetailRepository) Create(ctx context.Context, withdrawalID uuid.UUID, keyType domain.KeyType, key, externalID string) (domain.KeyDetail, error) {
	args := m.Called(ctx, withdrawalID, keyType, key, externalID)
	return args.Get(0).(domain.KeyDetail), args.Error(1)
}

func (m *MockKeyDetailRepository) GetByWithdrawalID(ctx context.Context, withdrawalID uuid.UUID) (domain.KeyDetail, error) {
	args := m.Called(ctx, withdrawalID)
	return args.Get(0).(domain.KeyDetail), args.Error(1)
}

type MockScheduler struct {
	mock.Mock
}

func (m *MockScheduler) ScheduleWithdrawal(ctx context.Context, id uuid.UUID, when time.Time) bool {
	return m.Called(ctx, id, when).Bool(0)
}

func (m *MockScheduler) ScheduleImmediate(ctx context.Context, id uuid.UUID) bool {
	return m.Called(ctx, id).Bool(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, id uuid.UUID, req domain.WithdrawalRequest) bool {
	return m.Called(ctx, id, req).Bool(0)
}

type MockNotificationSender struct {
	mock.Mock
}

func (m *MockNotificationSender) Send(ctx context.Context, recipient string, msg domain.Message) error {
	return m.Called(ctx, recipient, msg).Error(0)
}

// passthroughTransactor runs fn without a transaction.
type passthroughTransactor struct{}

func (passthroughTransactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type staticTxIDs string

func (s staticTxIDs) Generate(context.Context) (string, error) {
	return string(s), nil
}

// recordingTxIDs remembers every id it handed out.
type recordingTxIDs struct {
	inner TransactionIDGenerator
	mu    sync.Mutex
	ids   []string
}

func (r *recordingTxIDs) Generate(ctx context.Context) (string, error) {
	id, err := r.inner.Generate(ctx)
	if err == nil {
		r.mu.Lock()
		r.ids = append(r.ids, id)
		r.mu.Unlock()
	}
	return id, err
}

func (r *recordingTxIDs) issued() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

type queuedJob struct {
	job    domain.Job
	delay  time.Duration
	policy domain.RetryPolicy
}

// recordingQueue keeps enqueued jobs instead of running them.
type recordingQueue struct {
	mu    sync.Mutex
	jobs  []queuedJob
	fail  map[domain.JobKind]error
	panic bool
}

func (q *recordingQueue) Enqueue(_ context.Context, job domain.Job, delay time.Duration, policy domain.RetryPolicy) error {
	if q.panic {
		panic("broker connection lost")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.fail[job.Kind]; err != nil {
		return err
	}
	q.jobs = append(q.jobs, queuedJob{job: job, delay: delay, policy: policy})
	return nil
}

func (q *recordingQueue) byKind(kind domain.JobKind) []queuedJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []queuedJob
	for _, j := range q.jobs {
		if j.job.Kind == kind {
			out = append(out, j)
		}
	}
	return out
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *clock {
	return &clock{t: t}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
