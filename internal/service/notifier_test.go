package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"pixwithdraw/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type notifierFixture struct {
	queue       *recordingQueue
	withdrawals *MockWithdrawalRepository
	accounts    *MockAccountRepository
	keys        *MockKeyDetailRepository
	sender      *MockNotificationSender
	notifier    *Notifier
	record      domain.Withdrawal
	job         domain.Job
}

func newNotifierFixture(t *testing.T) *notifierFixture {
	t.Helper()
	f := &notifierFixture{
		queue:       &recordingQueue{},
		withdrawals: new(MockWithdrawalRepository),
		accounts:    new(MockAccountRepository),
		keys:        new(MockKeyDetailRepository),
		sender:      new(MockNotificationSender),
	}
	f.notifier = NewNotifier(f.queue, f.withdrawals, f.accounts, f.keys, f.sender, discardLogger())
	f.record = domain.Withdrawal{
		ID:            uuid.New(),
		AccountID:     uuid.New(),
		TransactionID: "PIX_0123456789ABCDEF_1741608000",
		Method:        domain.MethodPix,
		Amount:        decimal.RequireFromString("42.5"),
		Status:        domain.StatusCompleted,
		Done:          true,
		UpdatedAt:     time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	f.job = domain.NewJob(domain.JobSendNotification, f.record.ID)
	return f
}

func TestNotifier_NotifyEnqueuesForEmailKeys(t *testing.T) {
	f := newNotifierFixture(t)
	id := uuid.New()
	req := domain.WithdrawalRequest{Method: domain.MethodPix, Key: &domain.KeyDescriptor{Type: domain.KeyEmail, Key: "a@b.com"}}

	assert.True(t, f.notifier.Notify(context.Background(), id, req))

	jobs := f.queue.byKind(domain.JobSendNotification)
	require.Len(t, jobs, 1)
	assert.Equal(t, id, jobs[0].job.WithdrawalID)
	assert.Equal(t, domain.NotificationRetry, jobs[0].policy)

	req.Key.Type = domain.KeyPhone
	assert.True(t, f.notifier.Notify(context.Background(), id, req))
	assert.Len(t, f.queue.byKind(domain.JobSendNotification), 1)
}

func TestNotifier_NotifyReportsQueueFailure(t *testing.T) {
	f := newNotifierFixture(t)
	req := domain.WithdrawalRequest{Method: domain.MethodPix, Key: &domain.KeyDescriptor{Type: domain.KeyEmail, Key: "a@b.com"}}

	f.queue.fail = map[domain.JobKind]error{domain.JobSendNotification: errors.New("broker down")}
	assert.False(t, f.notifier.Notify(context.Background(), uuid.New(), req))

	f.queue.panic = true
	assert.NotPanics(t, func() {
		assert.False(t, f.notifier.Notify(context.Background(), uuid.New(), req))
	})
}

func TestNotifier_HandleSendsConfirmation(t *testing.T) {
	f := newNotifierFixture(t)
	f.withdrawals.On("GetByID", mock.Anything, f.record.ID).Return(f.record, nil)
	f.keys.On("GetByWithdrawalID", mock.Anything, f.record.ID).
		Return(domain.KeyDetail{Type: domain.KeyEmail, Key: "joao.silva@example.com"}, nil)
	f.accounts.On("Find", mock.Anything, f.record.AccountID).Return(domain.Account{Name: "Joao Silva"}, nil)
	f.sender.On("Send", mock.Anything, "joao.silva@example.com", mock.MatchedBy(func(msg domain.Message) bool {
		return msg.Subject == "Withdrawal PIX_0123456789ABCDEF_1741608000 completed" &&
			strings.Contains(msg.Body, "Hello Joao Silva") &&
			strings.Contains(msg.Body, "R$ 42.50") &&
			strings.Contains(msg.Body, "jo********@example.com") &&
			!strings.Contains(msg.Body, "joao.silva@")
	})).Return(nil)

	require.NoError(t, f.notifier.HandleNotificationJob(context.Background(), f.job))

	f.sender.AssertExpectations(t)
}

func TestNotifier_HandleSkips(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *notifierFixture)
	}{
		{
			name: "withdrawal missing",
			setup: func(f *notifierFixture) {
				f.withdrawals.On("GetByID", mock.Anything, f.record.ID).Return(domain.Withdrawal{}, domain.ErrWithdrawalNotFound)
			},
		},
		{
			name: "not completed",
			setup: func(f *notifierFixture) {
				w := f.record
				w.Status = domain.StatusFailed
				f.withdrawals.On("GetByID", mock.Anything, f.record.ID).Return(w, nil)
			},
		},
		{
			name: "no key",
			setup: func(f *notifierFixture) {
				f.withdrawals.On("GetByID", mock.Anything, f.record.ID).Return(f.record, nil)
				f.keys.On("GetByWithdrawalID", mock.Anything, f.record.ID).Return(domain.KeyDetail{}, domain.ErrKeyDetailNotFound)
			},
		},
		{
			name: "phone key",
			setup: func(f *notifierFixture) {
				f.withdrawals.On("GetByID", mock.Anything, f.record.ID).Return(f.record, nil)
				f.keys.On("GetByWithdrawalID", mock.Anything, f.record.ID).Return(domain.KeyDetail{Type: domain.KeyPhone, Key: "11987654321"}, nil)
			},
		},
		{
			name: "account missing",
			setup: func(f *notifierFixture) {
				f.withdrawals.On("GetByID", mock.Anything, f.record.ID).Return(f.record, nil)
				f.keys.On("GetByWithdrawalID", mock.Anything, f.record.ID).Return(domain.KeyDetail{Type: domain.KeyEmail, Key: "a@b.com"}, nil)
				f.accounts.On("Find", mock.Anything, f.record.AccountID).Return(domain.Account{}, domain.ErrAccountNotFound)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newNotifierFixture(t)
			tt.setup(f)

			assert.NoError(t, f.notifier.HandleNotificationJob(context.Background(), f.job))
			f.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestNotifier_HandleReturnsRetryableErrors(t *testing.T) {
	f := newNotifierFixture(t)
	f.withdrawals.On("GetByID", mock.Anything, f.record.ID).Return(f.record, nil)
	f.keys.On("GetByWithdrawalID", mock.Anything, f.record.ID).Return(domain.KeyDetail{Type: domain.KeyEmail, Key: "a@b.com"}, nil)
	f.accounts.On("Find", mock.Anything, f.record.AccountID).Return(domain.Account{Name: "A"}, nil)
	f.sender.On("Send", mock.Anything, "a@b.com", mock.Anything).Return(errors.New("nats: timeout"))

	err := f.notifier.HandleNotificationJob(context.Background(), f.job)

	assert.ErrorIs(t, err, domain.ErrNotificationNotDelivered)
	assert.Contains(t, err.Error(), "nats: timeout")

	g := newNotifierFixture(t)
	g.withdrawals.On("GetByID", mock.Anything, g.record.ID).Return(domain.Withdrawal{}, errors.New("db gone"))
	assert.Error(t, g.notifier.HandleNotificationJob(context.Background(), g.job))
}
