package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"pixwithdraw/internal/domain"
	"pixwithdraw/internal/pixkey"
	"pixwithdraw/internal/port"

	"github.com/google/uuid"
)

type WithdrawalNotifier interface {
	Notify(ctx context.Context, id uuid.UUID, req domain.WithdrawalRequest) bool
}

// Notifier dispatches withdrawal confirmations through the job queue.
// Nothing it does reaches back into the withdrawal's financial state.
type Notifier struct {
	queue       port.JobQueue
	withdrawals port.WithdrawalRepository
	accounts    port.AccountRepository
	keys        port.KeyDetailRepository
	sender      port.NotificationSender
	renderer    *Renderer
	policy      domain.RetryPolicy
	logger      *slog.Logger
}

func NewNotifier(
	queue port.JobQueue,
	withdrawals port.WithdrawalRepository,
	accounts port.AccountRepository,
	keys port.KeyDetailRepository,
	sender port.NotificationSender,
	logger *slog.Logger,
) *Notifier {
	return &Notifier{
		queue:       queue,
		withdrawals: withdrawals,
		accounts:    accounts,
		keys:        keys,
		sender:      sender,
		renderer:    NewRenderer(),
		policy:      domain.NotificationRetry,
		logger:      logger,
	}
}

// Notify enqueues a confirmation for the withdrawal. It reports false only
// when the job could not be queued; the caller is expected to ignore that.
func (n *Notifier) Notify(ctx context.Context, id uuid.UUID, req domain.WithdrawalRequest) (ok bool) {
	if !ShouldNotify(req) {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("job queue panicked while enqueueing notification", "withdrawal_id", id, "panic", r)
			ok = false
		}
	}()

	job := domain.NewJob(domain.JobSendNotification, id)
	if err := n.queue.Enqueue(ctx, job, 0, n.policy); err != nil {
		n.logger.Warn("failed to enqueue withdrawal notification", "withdrawal_id", id, "error", err)
		return false
	}
	return true
}

// HandleNotificationJob is the queued task. Returned errors are retried by the queue.
func (n *Notifier) HandleNotificationJob(ctx context.Context, job domain.Job) error {
	log := n.logger.With("withdrawal_id", job.WithdrawalID, "job_id", job.ID, "attempt", job.Attempt)

	w, err := n.withdrawals.GetByID(ctx, job.WithdrawalID)
	if err != nil {
		if errors.Is(err, domain.ErrWithdrawalNotFound) {
			log.Warn("notification skipped, withdrawal not found")
			return nil
		}
		return fmt.Errorf("load withdrawal: %w", err)
	}
	if w.Status != domain.StatusCompleted {
		log.Warn("notification skipped, withdrawal not completed", "status", w.Status)
		return nil
	}

	key, err := n.keys.GetByWithdrawalID(ctx, w.ID)
	if err != nil {
		if errors.Is(err, domain.ErrKeyDetailNotFound) {
			log.Info("notification skipped, withdrawal has no key")
			return nil
		}
		return fmt.Errorf("load key detail: %w", err)
	}
	if !key.Type.CanDeliver() {
		log.Info("notification skipped, key type cannot receive messages", "key_type", key.Type)
		return nil
	}

	account, err := n.accounts.Find(ctx, w.AccountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			log.Warn("notification skipped, account not found", "account_id", w.AccountID)
			return nil
		}
		return fmt.Errorf("load account: %w", err)
	}

	msg, err := n.renderer.Render(account, w, pixkey.Mask(key.Type, key.Key))
	if err != nil {
		return err
	}
	if err := n.sender.Send(ctx, key.Key, msg); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNotificationNotDelivered, err)
	}

	log.Info("withdrawal notification sent")
	return nil
}
