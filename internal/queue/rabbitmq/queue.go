// Package rabbitmq runs delayed jobs through RabbitMQ. A delayed job waits in
// a per-delay queue whose message TTL dead-letters it onto the work queue.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"pixwithdraw/internal/domain"
	"pixwithdraw/internal/port"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	DefaultExchange  = "pixwithdraw.jobs"
	workQueue        = "pixwithdraw.jobs.work"
	delayQueuePrefix = "pixwithdraw.jobs.delay."
	// idle delay queues are removed this long after their TTL; every delayed
	// publish redeclares the queue, which resets the countdown
	delayQueueExpiry = 60 * time.Second
	dialTimeout      = 10 * time.Second
	defaultWorkers   = 4
)

type envelope struct {
	Job         domain.Job `json:"job"`
	MaxAttempts int        `json:"max_attempts"`
	BackoffMS   []int64    `json:"backoff_ms,omitempty"`
}

func encode(job domain.Job, policy domain.RetryPolicy) ([]byte, error) {
	env := envelope{Job: job, MaxAttempts: policy.MaxAttempts}
	for _, d := range policy.Backoff {
		env.BackoffMS = append(env.BackoffMS, d.Milliseconds())
	}
	return json.Marshal(env)
}

func decode(body []byte) (domain.Job, domain.RetryPolicy, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return domain.Job{}, domain.RetryPolicy{}, err
	}
	policy := domain.RetryPolicy{MaxAttempts: env.MaxAttempts}
	for _, ms := range env.BackoffMS {
		policy.Backoff = append(policy.Backoff, time.Duration(ms)*time.Millisecond)
	}
	return env.Job, policy, nil
}

func sanitizeURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", fmt.Errorf("invalid AMQP scheme: %q", u.Scheme)
	}
	return clean, nil
}

// roundDelay rounds to whole seconds so that close delays share a queue.
func roundDelay(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Round(time.Second)
}

func delayQueueName(d time.Duration) string {
	return fmt.Sprintf("%s%ds", delayQueuePrefix, int64(d/time.Second))
}

func delayQueueArgs(exchange string, d time.Duration) amqp.Table {
	return amqp.Table{
		"x-message-ttl":             d.Milliseconds(),
		"x-dead-letter-exchange":    exchange,
		"x-dead-letter-routing-key": workQueue,
		"x-expires":                 (d + delayQueueExpiry).Milliseconds(),
	}
}

// publishChannel is the part of *amqp.Channel that Enqueue needs.
type publishChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type Queue struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       publishChannel
	exchange string
	handlers map[domain.JobKind]port.JobHandler
	workers  int
	closed   bool
	logger   *slog.Logger
}

func New(amqpURL string, workers int, logger *slog.Logger) (*Queue, error) {
	cleanURL, err := sanitizeURL(amqpURL)
	if err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = defaultWorkers
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	q := &Queue{
		conn:     conn,
		ch:       ch,
		exchange: DefaultExchange,
		handlers: make(map[domain.JobKind]port.JobHandler),
		workers:  workers,
		logger:   logger,
	}
	if err := q.declareTopology(ch); err != nil {
		q.Close()
		return nil, err
	}
	return q, nil
}

func (q *Queue) declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(q.exchange, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(workQueue, true, false, false, false, nil); err != nil {
		return err
	}
	return ch.QueueBind(workQueue, workQueue, q.exchange, false, nil)
}

func (q *Queue) Register(kind domain.JobKind, h port.JobHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[kind] = h
}

func (q *Queue) Enqueue(ctx context.Context, job domain.Job, delay time.Duration, policy domain.RetryPolicy) error {
	if job.Attempt < 1 {
		job.Attempt = 1
	}
	body, err := encode(job, policy)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return domain.ErrQueueUnavailable
	}

	exchange, key := q.exchange, workQueue
	if d := roundDelay(delay); d > 0 {
		// Publishing to a queue that has expired would drop the message silently.
		if _, err := q.ch.QueueDeclare(delayQueueName(d), true, false, false, false, delayQueueArgs(q.exchange, d)); err != nil {
			return fmt.Errorf("%w: declare delay queue: %v", domain.ErrQueueUnavailable, err)
		}
		exchange, key = "", delayQueueName(d)
	}

	err = q.ch.PublishWithContext(ctx, exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID.String(),
		Type:         string(job.Kind),
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}
	return nil
}

// Run consumes the work queue until ctx is done.
func (q *Queue) Run(ctx context.Context) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	if err := ch.Qos(q.workers, 0, false); err != nil {
		return err
	}
	msgs, err := ch.ConsumeWithContext(ctx, workQueue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	q.logger.Info("job consumer started", "queue", workQueue, "workers", q.workers)

	var wg sync.WaitGroup
	for i := 0; i < q.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range msgs {
				q.handle(context.WithoutCancel(ctx), d)
			}
		}()
	}
	wg.Wait()
	q.logger.Info("job consumer stopped")
	return nil
}

func (q *Queue) handle(ctx context.Context, d amqp.Delivery) {
	job, policy, err := decode(d.Body)
	if err != nil {
		q.logger.Error("dropping undecodable job", "message_id", d.MessageId, "error", err)
		d.Nack(false, false)
		return
	}

	q.mu.Lock()
	h, ok := q.handlers[job.Kind]
	q.mu.Unlock()
	if !ok {
		q.logger.Error("job abandoned", "job_id", job.ID, "kind", job.Kind, "error", domain.ErrUnknownJobKind)
		d.Ack(false)
		return
	}

	err = invoke(ctx, h, job)
	if err == nil {
		d.Ack(false)
		return
	}

	delay, retry := policy.Next(job.Attempt)
	if !retry {
		q.logger.Error("job abandoned", "job_id", job.ID, "kind", job.Kind, "withdrawal_id", job.WithdrawalID, "attempt", job.Attempt, "error", err)
		d.Ack(false)
		return
	}

	q.logger.Warn("job failed, retrying", "job_id", job.ID, "kind", job.Kind, "attempt", job.Attempt, "retry_in", delay, "error", err)
	job.Attempt++
	if errPub := q.Enqueue(ctx, job, delay, policy); errPub != nil {
		q.logger.Error("failed to republish job, requeueing", "job_id", job.ID, "error", errPub)
		d.Nack(false, true)
		return
	}
	d.Ack(false)
}

func invoke(ctx context.Context, h port.JobHandler, job domain.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()
	return h(ctx, job)
}

func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	if q.ch != nil {
		q.ch.Close()
	}
	if q.conn != nil {
		q.conn.Close()
	}
}
