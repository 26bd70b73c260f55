package domain

import (
	"time"

	"github.com/google/uuid"
)

type JobKind string

const (
	JobExecuteWithdrawal JobKind = "withdrawal.execute"
	JobSendNotification  JobKind = "withdrawal.notify"
)

// Job carries only the withdrawal identifier, so handlers always re-read state.
type Job struct {
	ID           uuid.UUID `json:"id"`
	Kind         JobKind   `json:"kind"`
	WithdrawalID uuid.UUID `json:"withdrawal_id"`
	Attempt      int       `json:"attempt"`
}

func NewJob(kind JobKind, withdrawalID uuid.UUID) Job {
	return Job{ID: uuid.New(), Kind: kind, WithdrawalID: withdrawalID, Attempt: 1}
}

// RetryPolicy is interpreted by the job queue, not by the job handlers.
// Backoff[i] is the wait before attempt i+2.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     []time.Duration
}

var NoRetry = RetryPolicy{MaxAttempts: 1}

var NotificationRetry = RetryPolicy{
	MaxAttempts: 4,
	Backoff:     []time.Duration{30 * time.Second, 60 * time.Second, 300 * time.Second},
}

// Next returns the delay before the attempt following attempt, or false when
// the policy is exhausted.
func (p RetryPolicy) Next(attempt int) (time.Duration, bool) {
	if attempt >= p.MaxAttempts || len(p.Backoff) == 0 {
		return 0, false
	}
	idx := attempt - 1
	if idx >= len(p.Backoff) {
		idx = len(p.Backoff) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return p.Backoff[idx], true
}
