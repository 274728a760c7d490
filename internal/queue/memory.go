package queue

import (
	"context"
	"sync"
	"time"

	"github.com/marek/imagesim/internal/domain"
	"github.com/marek/imagesim/internal/logger"
)

// MemoryQueue is an in-process at-least-once job queue: a bounded buffer
// drained by a fixed pool of consumer goroutines. A retryable nack schedules
// redelivery after bounded exponential backoff. Jobs do not survive a
// process restart; the reconciliation sweeper re-enqueues any record left
// pending or indexing by a crash, so restart durability lives in the
// metadata status machine rather than in the queue.
type MemoryQueue struct {
	jobs        chan domain.IndexingJob
	workers     int
	backoffBase time.Duration
	backoffMax  time.Duration

	mu      sync.Mutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// MemoryQueueConfig tunes the in-process queue.
type MemoryQueueConfig struct {
	Workers     int
	Depth       int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// NewMemoryQueue creates a queue with the given worker pool size and buffer
// depth.
func NewMemoryQueue(cfg *MemoryQueueConfig) *MemoryQueue {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	depth := cfg.Depth
	if depth <= 0 {
		depth = 64
	}
	backoffBase := cfg.BackoffBase
	if backoffBase <= 0 {
		backoffBase = time.Second
	}
	backoffMax := cfg.BackoffMax
	if backoffMax < backoffBase {
		backoffMax = backoffBase
	}

	return &MemoryQueue{
		jobs:        make(chan domain.IndexingJob, depth),
		workers:     workers,
		backoffBase: backoffBase,
		backoffMax:  backoffMax,
	}
}

// Start launches the consumer pool delivering jobs to handler. It may be
// called once; ctx cancellation does not abort a job mid-flight, a running
// handler always completes its delivery.
func (q *MemoryQueue) Start(ctx context.Context, handler Handler) {
	q.mu.Lock()
	if q.started || q.closed {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for job := range q.jobs {
				if handler(ctx, job) == NackRetry {
					q.redeliver(ctx, job)
				}
			}
		}()
	}
}

// Enqueue submits a job. It never blocks: a saturated buffer returns
// ErrQueueFull and the caller's record is left for the sweeper.
func (q *MemoryQueue) Enqueue(ctx context.Context, job domain.IndexingJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// redeliver schedules the job again after backoff with a bumped attempt
// counter. A redelivery that lands after Close is dropped; the sweeper
// picks the record up on its next cycle.
func (q *MemoryQueue) redeliver(ctx context.Context, job domain.IndexingJob) {
	job.Attempt++
	delay := q.backoff(job.Attempt)

	time.AfterFunc(delay, func() {
		if err := q.Enqueue(ctx, job); err != nil {
			logger.FromContext(ctx).WithFields(logger.Fields{
				logger.FieldImageID: job.ImageID,
				logger.FieldAttempt: job.Attempt,
			}).WithError(err).Warn("Dropping redelivery, sweeper will recover the record")
		}
	})
}

// backoff computes base * 2^(attempt-1), capped at the configured maximum.
func (q *MemoryQueue) backoff(attempt int) time.Duration {
	d := q.backoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= q.backoffMax {
			return q.backoffMax
		}
	}
	if d > q.backoffMax {
		return q.backoffMax
	}
	return d
}

// Close stops intake and waits for in-flight deliveries to finish. Pending
// backoff redeliveries are dropped.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
}
