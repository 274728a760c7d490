package service

import (
	"context"
	"fmt"

	"github.com/marek/imagesim/internal/domain"
	"github.com/marek/imagesim/internal/embedding"
	"github.com/marek/imagesim/internal/index"
	"github.com/marek/imagesim/internal/logger"
	"github.com/marek/imagesim/internal/queue"
	"github.com/marek/imagesim/internal/storage"
)

// IndexWorker consumes indexing jobs: fetch blob, embed, normalize, upsert
// into the vector index, then advance the metadata status. The vector write
// always commits before the indexed transition, so status never claims
// indexed without a matching index entry. The compare-and-set on status is
// the only duplicate-delivery guard; there is no cross-worker locking.
type IndexWorker struct {
	images      ImageStore
	blobs       storage.BlobStore
	vectors     index.VectorIndex
	embedder    embedding.Embedder
	maxAttempts int
	logger      *logger.Logger
}

// NewIndexWorker creates a worker with the given retry bound.
func NewIndexWorker(images ImageStore, blobs storage.BlobStore, vectors index.VectorIndex, embedder embedding.Embedder, maxAttempts int, log *logger.Logger) *IndexWorker {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &IndexWorker{
		images:      images,
		blobs:       blobs,
		vectors:     vectors,
		embedder:    embedder,
		maxAttempts: maxAttempts,
		logger:      log,
	}
}

func (w *IndexWorker) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return w.logger
}

// Handle processes one delivery and reports the queue outcome.
// Parameters:
//   - ctx: worker context; a job runs to completion, retry, or terminal
//     failure, never aborted mid-flight by another actor.
//   - job: delivered indexing job.
// Returns:
//   - queue.Outcome: Ack for done/duplicate/terminal, NackRetry for
//     transient failures with retry budget left.
func (w *IndexWorker) Handle(ctx context.Context, job domain.IndexingJob) queue.Outcome {
	log := w.log(ctx).WithFields(logger.Fields{
		logger.FieldImageID: job.ImageID,
		logger.FieldAttempt: job.Attempt,
	})

	// Claim the record. Losing the CAS means another delivery already
	// advanced it (or it is mid-flight elsewhere): drop this duplicate.
	claimed, err := w.images.TransitionStatus(ctx, job.ImageID, domain.ImageStatusPending, domain.ImageStatusIndexing)
	if err != nil {
		log.WithError(err).Warn("Failed to claim record, will retry")
		return queue.NackRetry
	}
	if !claimed {
		log.Debug("Record not pending, dropping duplicate delivery")
		return queue.Ack
	}

	content, err := w.blobs.Get(ctx, job.BlobKey)
	if err != nil {
		return w.recover(ctx, job, err)
	}

	vec, err := w.embedder.EmbedImage(ctx, content)
	if err != nil {
		return w.recover(ctx, job, err)
	}

	unit, err := index.Normalize(vec)
	if err != nil {
		// A zero vector is a degenerate embedding.
		return w.recover(ctx, job, fmt.Errorf("%w: %v", domain.ErrEmbedding, err))
	}

	entry := index.Entry{
		ImageID:   job.ImageID,
		Embedding: unit,
		Title:     job.Title,
		Tags:      job.Tags,
		BlobKey:   job.BlobKey,
	}
	if err := w.vectors.Upsert(ctx, entry); err != nil {
		return w.recover(ctx, job, err)
	}

	// The index entry is in place; only now may status claim indexed.
	advanced, err := w.images.TransitionStatus(ctx, job.ImageID, domain.ImageStatusIndexing, domain.ImageStatusIndexed)
	if err != nil {
		// Record stays indexing; redelivery drops as duplicate and the
		// sweeper resets it. The re-run re-upserts harmlessly.
		log.WithError(err).Warn("Failed to mark record indexed")
		return queue.NackRetry
	}
	if !advanced {
		log.Warn("Record left indexing state concurrently, dropping delivery")
		return queue.Ack
	}

	log.Info("Image indexed")
	return queue.Ack
}

// recover applies the retry policy after a transient pipeline failure:
// bump the attempt count, return the record to pending while budget
// remains, otherwise fail it terminally.
func (w *IndexWorker) recover(ctx context.Context, job domain.IndexingJob, cause error) queue.Outcome {
	attempts := job.Attempt + 1
	log := w.log(ctx).WithFields(logger.Fields{
		logger.FieldImageID: job.ImageID,
		logger.FieldAttempt: attempts,
	}).WithError(cause)

	if attempts < w.maxAttempts {
		moved, err := w.images.TransitionStatusAttempts(ctx, job.ImageID,
			domain.ImageStatusIndexing, domain.ImageStatusPending, attempts)
		if err != nil {
			log.WithError(err).Warn("Failed to return record to pending")
			return queue.NackRetry
		}
		if !moved {
			return queue.Ack
		}
		log.Warn("Indexing attempt failed, retrying")
		return queue.NackRetry
	}

	moved, err := w.images.TransitionStatusAttempts(ctx, job.ImageID,
		domain.ImageStatusIndexing, domain.ImageStatusFailed, attempts)
	if err != nil {
		log.WithError(err).Warn("Failed to mark record failed")
		return queue.NackRetry
	}
	if moved {
		log.Error("Retries exhausted, record failed")
	}
	return queue.Ack
}
