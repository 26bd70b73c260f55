package service

import (
	"context"
	"log/slog"
	"time"

	"pixwithdraw/internal/port"

	"github.com/robfig/cron/v3"
)

const (
	DefaultSweepSchedule = "@every 1m"
	defaultSweepBatch    = 100
	defaultSweepGrace    = time.Minute
)

// DueSweeper re-queues scheduled withdrawals whose instant has passed but
// which are still pending, e.g. because an in-process queue lost its jobs on
// restart. Duplicate jobs are harmless: only one can move a record out of pending.
type DueSweeper struct {
	withdrawals port.WithdrawalRepository
	scheduler   WithdrawalScheduler
	cron        *cron.Cron
	schedule    string
	batch       int
	grace       time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

func NewDueSweeper(withdrawals port.WithdrawalRepository, scheduler WithdrawalScheduler, schedule string, logger *slog.Logger) *DueSweeper {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	return &DueSweeper{
		withdrawals: withdrawals,
		scheduler:   scheduler,
		cron:        cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		schedule:    schedule,
		batch:       defaultSweepBatch,
		grace:       defaultSweepGrace,
		now:         time.Now,
		logger:      logger,
	}
}

func (s *DueSweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.Sweep(context.Background()) }); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("due withdrawal sweeper started", "schedule", s.schedule)
	return nil
}

// Stop returns a context that is done once a running sweep has finished.
func (s *DueSweeper) Stop() context.Context {
	return s.cron.Stop()
}

// Sweep queues every overdue pending withdrawal for immediate execution and
// returns how many were queued.
func (s *DueSweeper) Sweep(ctx context.Context) int {
	due, err := s.withdrawals.ListDue(ctx, s.now().Add(-s.grace), s.batch)
	if err != nil {
		s.logger.Error("failed to list due withdrawals", "error", err)
		return 0
	}

	queued := 0
	for _, w := range due {
		if s.scheduler.ScheduleImmediate(ctx, w.ID) {
			queued++
		}
	}
	if len(due) > 0 {
		s.logger.Info("overdue withdrawals re-queued", "found", len(due), "queued", queued)
	}
	return queued
}
