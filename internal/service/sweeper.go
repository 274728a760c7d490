package service

import (
	"context"
	"time"

	"github.com/marek/imagesim/internal/domain"
	"github.com/marek/imagesim/internal/logger"
	"github.com/marek/imagesim/internal/queue"
)

const sweepBatchSize = 200

// Sweeper is the reconciliation loop: it finds records stuck in a
// non-terminal status past the stuck threshold and either re-enqueues them
// or fails them. This is the only recovery path for a lost enqueue or a
// worker that died without acknowledging its job.
type Sweeper struct {
	images      ImageStore
	jobs        queue.Queue
	threshold   time.Duration
	interval    time.Duration
	maxAttempts int
	logger      *logger.Logger
}

// SweeperConfig tunes the reconciliation sweeper.
type SweeperConfig struct {
	StuckThreshold time.Duration
	SweepInterval  time.Duration
	MaxAttempts    int
}

// NewSweeper creates a reconciliation sweeper.
func NewSweeper(images ImageStore, jobs queue.Queue, cfg *SweeperConfig, log *logger.Logger) *Sweeper {
	return &Sweeper{
		images:      images,
		jobs:        jobs,
		threshold:   cfg.StuckThreshold,
		interval:    cfg.SweepInterval,
		maxAttempts: cfg.MaxAttempts,
		logger:      log,
	}
}

func (s *Sweeper) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.log(ctx).WithError(err).Error("Sweep failed")
			}
		}
	}
}

// Sweep performs one reconciliation pass. Each stuck record is re-enqueued
// at most once per cycle: the updated_at touch pushes it past the cutoff so
// the next cycle skips it while the redelivered job is in flight.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - int: number of records re-enqueued.
//   - error: non-nil if the stale scan itself fails.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.threshold)
	stale, err := s.images.ListStale(ctx,
		[]domain.ImageStatus{domain.ImageStatusPending, domain.ImageStatusIndexing},
		cutoff, sweepBatchSize)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, rec := range stale {
		log := s.log(ctx).WithFields(logger.Fields{
			logger.FieldImageID: rec.ID,
			logger.FieldAttempt: rec.AttemptCount,
			logger.FieldStatus:  string(rec.Status),
		})

		if rec.AttemptCount >= s.maxAttempts {
			moved, err := s.images.TransitionStatus(ctx, rec.ID, rec.Status, domain.ImageStatusFailed)
			if err != nil {
				log.WithError(err).Warn("Failed to fail exhausted record")
			} else if moved {
				log.Error("Stuck record out of attempts, failed")
			}
			continue
		}

		// A record stuck in indexing belonged to a dead worker; reset it so
		// the redelivered job's claim succeeds. Losing this CAS means a live
		// worker still owns it.
		if rec.Status == domain.ImageStatusIndexing {
			moved, err := s.images.TransitionStatus(ctx, rec.ID, domain.ImageStatusIndexing, domain.ImageStatusPending)
			if err != nil || !moved {
				if err != nil {
					log.WithError(err).Warn("Failed to reset stuck record")
				}
				continue
			}
		} else if err := s.images.Touch(ctx, rec.ID); err != nil {
			log.WithError(err).Warn("Failed to touch stuck record, skipping")
			continue
		}

		job := domain.IndexingJob{
			ImageID: rec.ID,
			BlobKey: rec.BlobKey,
			Title:   rec.Title,
			Tags:    rec.Tags,
			Attempt: rec.AttemptCount,
		}
		if err := s.jobs.Enqueue(ctx, job); err != nil {
			// updated_at is already refreshed; the next cycle retries.
			log.WithError(err).Warn("Failed to re-enqueue stuck record")
			continue
		}

		log.Info("Re-enqueued stuck record")
		requeued++
	}

	return requeued, nil
}
