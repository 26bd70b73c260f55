package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"pixwithdraw/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestDueSweeper_Sweep(t *testing.T) {
	repo := new(MockWithdrawalRepository)
	sched := new(MockScheduler)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s := NewDueSweeper(repo, sched, "", discardLogger())
	s.now = func() time.Time { return now }

	a, b, c := uuid.New(), uuid.New(), uuid.New()
	repo.On("ListDue", mock.Anything, now.Add(-time.Minute), defaultSweepBatch).
		Return([]domain.Withdrawal{{ID: a}, {ID: b}, {ID: c}}, nil)
	sched.On("ScheduleImmediate", mock.Anything, a).Return(true)
	sched.On("ScheduleImmediate", mock.Anything, b).Return(false)
	sched.On("ScheduleImmediate", mock.Anything, c).Return(true)

	assert.Equal(t, 2, s.Sweep(context.Background()))
	sched.AssertNumberOfCalls(t, "ScheduleImmediate", 3)
	assert.Equal(t, DefaultSweepSchedule, s.schedule)
}

func TestDueSweeper_ListError(t *testing.T) {
	repo := new(MockWithdrawalRepository)
	sched := new(MockScheduler)
	repo.On("ListDue", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("db gone"))

	s := NewDueSweeper(repo, sched, "@every 1h", discardLogger())

	assert.Zero(t, s.Sweep(context.Background()))
	sched.AssertNotCalled(t, "ScheduleImmediate", mock.Anything, mock.Anything)
}

func TestDueSweeper_StartRejectsBadSchedule(t *testing.T) {
	s := NewDueSweeper(new(MockWithdrawalRepository), new(MockScheduler), "every now and then", discardLogger())

	assert.Error(t, s.Start())
}

func TestDueSweeper_StartStop(t *testing.T) {
	s := NewDueSweeper(new(MockWithdrawalRepository), new(MockScheduler), "@every 1h", discardLogger())

	assert.NoError(t, s.Start())
	select {
	case <-s.Stop().Done():
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
