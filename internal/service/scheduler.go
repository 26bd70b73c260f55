package service

import (
	"context"
	"log/slog"
	"time"

	"pixwithdraw/internal/domain"
	"pixwithdraw/internal/port"

	"github.com/google/uuid"
)

type WithdrawalScheduler interface {
	ScheduleWithdrawal(ctx context.Context, id uuid.UUID, when time.Time) bool
	ScheduleImmediate(ctx context.Context, id uuid.UUID) bool
}

// Scheduler defers withdrawal execution through the job queue. The queued job
// carries only the withdrawal id.
type Scheduler struct {
	queue  port.JobQueue
	now    func() time.Time
	logger *slog.Logger
}

func NewScheduler(queue port.JobQueue, logger *slog.Logger) *Scheduler {
	return &Scheduler{queue: queue, now: time.Now, logger: logger}
}

// Delay is the wait until when, never negative.
func Delay(now, when time.Time) time.Duration {
	if d := when.Sub(now); d > 0 {
		return d
	}
	return 0
}

func (s *Scheduler) ScheduleWithdrawal(ctx context.Context, id uuid.UUID, when time.Time) bool {
	return s.enqueue(ctx, id, Delay(s.now(), when))
}

func (s *Scheduler) ScheduleImmediate(ctx context.Context, id uuid.UUID) bool {
	return s.enqueue(ctx, id, 0)
}

func (s *Scheduler) enqueue(ctx context.Context, id uuid.UUID, delay time.Duration) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job queue panicked while scheduling", "withdrawal_id", id, "panic", r)
			ok = false
		}
	}()

	job := domain.NewJob(domain.JobExecuteWithdrawal, id)
	if err := s.queue.Enqueue(ctx, job, delay, domain.NoRetry); err != nil {
		s.logger.Error("failed to schedule withdrawal", "withdrawal_id", id, "delay", delay, "error", err)
		return false
	}
	s.logger.Info("withdrawal scheduled", "withdrawal_id", id, "job_id", job.ID, "delay", delay)
	return true
}
