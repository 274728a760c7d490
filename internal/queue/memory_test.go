package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/marek/imagesim/internal/domain"
)

func TestMemoryQueueDelivers(t *testing.T) {
	q := NewMemoryQueue(&MemoryQueueConfig{Workers: 2, Depth: 8})
	defer q.Close()

	got := make(chan domain.IndexingJob, 1)
	q.Start(context.Background(), func(ctx context.Context, job domain.IndexingJob) Outcome {
		got <- job
		return Ack
	})

	job := domain.IndexingJob{ImageID: "img-1", BlobKey: "images/img-1.png"}
	if err := q.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case delivered := <-got:
		if delivered.ImageID != "img-1" {
			t.Errorf("delivered %q, want img-1", delivered.ImageID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job never delivered")
	}
}

func TestMemoryQueueRedeliversOnNack(t *testing.T) {
	q := NewMemoryQueue(&MemoryQueueConfig{
		Workers:     1,
		Depth:       8,
		BackoffBase: 5 * time.Millisecond,
		BackoffMax:  20 * time.Millisecond,
	})
	defer q.Close()

	var mu sync.Mutex
	var attempts []int
	done := make(chan struct{})

	q.Start(context.Background(), func(ctx context.Context, job domain.IndexingJob) Outcome {
		mu.Lock()
		attempts = append(attempts, job.Attempt)
		n := len(attempts)
		mu.Unlock()

		if n < 3 {
			return NackRetry
		}
		close(done)
		return Ack
	})

	if err := q.Enqueue(context.Background(), domain.IndexingJob{ImageID: "img-1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job not redelivered to completion")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []int{0, 1, 2}
	if len(attempts) != len(want) {
		t.Fatalf("got %d deliveries, want %d", len(attempts), len(want))
	}
	for i, w := range want {
		if attempts[i] != w {
			t.Errorf("delivery %d has attempt %d, want %d", i, attempts[i], w)
		}
	}
}

func TestMemoryQueueAckStopsRedelivery(t *testing.T) {
	q := NewMemoryQueue(&MemoryQueueConfig{
		Workers:     1,
		Depth:       8,
		BackoffBase: time.Millisecond,
	})
	defer q.Close()

	var mu sync.Mutex
	deliveries := 0
	q.Start(context.Background(), func(ctx context.Context, job domain.IndexingJob) Outcome {
		mu.Lock()
		deliveries++
		mu.Unlock()
		return Ack
	})

	if err := q.Enqueue(context.Background(), domain.IndexingJob{ImageID: "img-1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// Give any spurious redelivery time to land.
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if deliveries != 1 {
		t.Errorf("got %d deliveries, want 1", deliveries)
	}
}

func TestMemoryQueueEnqueueAfterClose(t *testing.T) {
	q := NewMemoryQueue(&MemoryQueueConfig{Workers: 1, Depth: 1})
	q.Start(context.Background(), func(ctx context.Context, job domain.IndexingJob) Outcome {
		return Ack
	})
	q.Close()

	err := q.Enqueue(context.Background(), domain.IndexingJob{ImageID: "img-1"})
	if !errors.Is(err, ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}
}

func TestMemoryQueueFullBuffer(t *testing.T) {
	// No Start: nothing drains the buffer.
	q := NewMemoryQueue(&MemoryQueueConfig{Workers: 1, Depth: 1})
	defer q.Close()

	if err := q.Enqueue(context.Background(), domain.IndexingJob{ImageID: "a"}); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	err := q.Enqueue(context.Background(), domain.IndexingJob{ImageID: "b"})
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
}

func TestMemoryQueueBackoffBounds(t *testing.T) {
	q := NewMemoryQueue(&MemoryQueueConfig{
		BackoffBase: 10 * time.Millisecond,
		BackoffMax:  50 * time.Millisecond,
	})
	defer q.Close()

	testCases := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: 10 * time.Millisecond},
		{attempt: 2, want: 20 * time.Millisecond},
		{attempt: 3, want: 40 * time.Millisecond},
		{attempt: 4, want: 50 * time.Millisecond}, // capped
		{attempt: 10, want: 50 * time.Millisecond},
	}
	for _, tc := range testCases {
		if got := q.backoff(tc.attempt); got != tc.want {
			t.Errorf("backoff(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}
