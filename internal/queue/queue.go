package queue

import (
	"context"
	"errors"

	"github.com/marek/imagesim/internal/domain"
)

// Outcome is the handler's verdict on one job delivery.
type Outcome int

const (
	// Ack acknowledges the delivery; the job is done (or terminally failed
	// with its record already moved to a terminal status).
	Ack Outcome = iota

	// NackRetry requests redelivery after backoff; the failure is transient.
	NackRetry
)

// Handler processes one delivered job. Deliveries are at-least-once: a
// handler may see the same job twice and must be idempotent.
type Handler func(ctx context.Context, job domain.IndexingJob) Outcome

// Queue is the producer side of the task queue.
type Queue interface {
	// Enqueue submits a job for asynchronous delivery. A nil error means the
	// job was durably accepted; a non-nil error means nothing was enqueued
	// and the caller's record stays pending for the sweeper to repair.
	Enqueue(ctx context.Context, job domain.IndexingJob) error
}

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("queue closed")

	// ErrQueueFull is returned by Enqueue when the buffer is saturated.
	ErrQueueFull = errors.New("queue full")
)
