package port

import (
	"context"
	"time"

	"pixwithdraw/internal/domain"
)

type JobQueue interface {
	Enqueue(ctx context.Context, job domain.Job, delay time.Duration, policy domain.RetryPolicy) error
}

type JobHandler func(ctx context.Context, job domain.Job) error

type NotificationSender interface {
	Send(ctx context.Context, recipient string, msg domain.Message) error
}
