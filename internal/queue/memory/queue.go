// Package memory runs jobs in process after a delay, with a fixed worker
// pool and per-job retry policies. Pending jobs do not survive a restart.
package memory

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pixwithdraw/internal/domain"
	"pixwithdraw/internal/port"
)

const defaultWorkers = 4

type entry struct {
	job    domain.Job
	policy domain.RetryPolicy
	at     time.Time
	seq    uint64
}

type delayHeap []*entry

func (h delayHeap) Len() int { return len(h) }
func (h delayHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h delayHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *delayHeap) Push(x any) { *h = append(*h, x.(*entry)) }
func (h *delayHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

type Queue struct {
	mu       sync.Mutex
	items    delayHeap
	seq      uint64
	closed   bool
	handlers map[domain.JobKind]port.JobHandler
	wake     chan struct{}
	workers  int
	now      func() time.Time
	logger   *slog.Logger
	onGiveUp func(domain.Job, error)
}

func New(workers int, logger *slog.Logger) *Queue {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Queue{
		handlers: make(map[domain.JobKind]port.JobHandler),
		wake:     make(chan struct{}, 1),
		workers:  workers,
		now:      time.Now,
		logger:   logger,
	}
}

// Register binds a handler to a job kind. It must be called before Run.
func (q *Queue) Register(kind domain.JobKind, h port.JobHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[kind] = h
}

// OnGiveUp sets a hook called once a job has used up its retry policy.
func (q *Queue) OnGiveUp(fn func(domain.Job, error)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onGiveUp = fn
}

func (q *Queue) Enqueue(ctx context.Context, job domain.Job, delay time.Duration, policy domain.RetryPolicy) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if delay < 0 {
		delay = 0
	}
	if job.Attempt < 1 {
		job.Attempt = 1
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return domain.ErrQueueUnavailable
	}
	q.push(job, policy, q.now().Add(delay))
	q.mu.Unlock()

	q.signal()
	return nil
}

// push must be called with q.mu held.
func (q *Queue) push(job domain.Job, policy domain.RetryPolicy, at time.Time) {
	q.seq++
	heap.Push(&q.items, &entry{job: job, policy: policy, at: at, seq: q.seq})
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len reports how many jobs are waiting, including ones not yet due.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting jobs. Jobs still waiting are dropped when Run returns.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// Run dispatches due jobs to the worker pool until ctx is done or the queue
// is closed, then waits for in-flight jobs to finish.
func (q *Queue) Run(ctx context.Context) error {
	ready := make(chan *entry)
	var wg sync.WaitGroup
	for i := 0; i < q.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range ready {
				q.process(context.WithoutCancel(ctx), e)
			}
		}()
	}
	q.logger.Info("job queue started", "workers", q.workers)

	defer func() {
		close(ready)
		wg.Wait()
		q.logger.Info("job queue stopped", "dropped", q.Len())
	}()

	for {
		e, wait, closed := q.next()
		if closed {
			return nil
		}
		if e != nil {
			select {
			case ready <- e:
				continue
			case <-ctx.Done():
				return nil
			}
		}

		// A nil timer channel blocks, so an empty queue waits for wake only.
		var (
			t     *time.Timer
			timer <-chan time.Time
		)
		if wait > 0 {
			t = time.NewTimer(wait)
			timer = t.C
		}
		select {
		case <-ctx.Done():
		case <-q.wake:
		case <-timer:
		}
		if t != nil {
			t.Stop()
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// next pops the earliest due job. Otherwise it returns how long until the
// earliest job is due, or zero when nothing is waiting.
func (q *Queue) next() (*entry, time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, 0, true
	}
	if len(q.items) == 0 {
		return nil, 0, false
	}
	head := q.items[0]
	if wait := head.at.Sub(q.now()); wait > 0 {
		return nil, wait, false
	}
	return heap.Pop(&q.items).(*entry), 0, false
}

func (q *Queue) process(ctx context.Context, e *entry) {
	job := e.job
	q.mu.Lock()
	h, ok := q.handlers[job.Kind]
	q.mu.Unlock()
	if !ok {
		q.giveUp(job, fmt.Errorf("%w: %s", domain.ErrUnknownJobKind, job.Kind))
		return
	}

	err := q.invoke(ctx, h, job)
	if err == nil {
		return
	}

	delay, retry := e.policy.Next(job.Attempt)
	if !retry {
		q.giveUp(job, err)
		return
	}
	q.logger.Warn("job failed, retrying", "job_id", job.ID, "kind", job.Kind, "attempt", job.Attempt, "retry_in", delay, "error", err)
	job.Attempt++

	q.mu.Lock()
	if !q.closed {
		q.push(job, e.policy, q.now().Add(delay))
	}
	q.mu.Unlock()
	q.signal()
}

func (q *Queue) invoke(ctx context.Context, h port.JobHandler, job domain.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()
	return h(ctx, job)
}

func (q *Queue) giveUp(job domain.Job, err error) {
	q.logger.Error("job abandoned", "job_id", job.ID, "kind", job.Kind, "withdrawal_id", job.WithdrawalID, "attempt", job.Attempt, "error", err)
	q.mu.Lock()
	fn := q.onGiveUp
	q.mu.Unlock()
	if fn != nil {
		fn(job, err)
	}
}
