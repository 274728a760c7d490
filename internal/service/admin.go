package service

import (
	"context"

	"github.com/marek/imagesim/internal/domain"
	"github.com/marek/imagesim/internal/index"
	"github.com/marek/imagesim/internal/logger"
	"github.com/marek/imagesim/internal/queue"
	"github.com/marek/imagesim/internal/storage"
)

// AdminService covers record-level operator actions outside the automatic
// pipeline: status lookup, counts, forced re-index, and removal.
type AdminService struct {
	images  ImageStore
	vectors index.VectorIndex
	blobs   storage.BlobStore
	jobs    queue.Queue
	logger  *logger.Logger
}

// NewAdminService creates a new admin service.
func NewAdminService(images ImageStore, vectors index.VectorIndex, blobs storage.BlobStore, jobs queue.Queue, log *logger.Logger) *AdminService {
	return &AdminService{
		images:  images,
		vectors: vectors,
		blobs:   blobs,
		jobs:    jobs,
		logger:  log,
	}
}

// Get retrieves an image record for status polling.
func (s *AdminService) Get(ctx context.Context, id string) (*domain.ImageRecord, error) {
	return s.images.GetByID(ctx, id)
}

// PipelineStats reports record counts per lifecycle status.
type PipelineStats struct {
	Pending  int64 `json:"pending"`
	Indexing int64 `json:"indexing"`
	Indexed  int64 `json:"indexed"`
	Failed   int64 `json:"failed"`
}

// Stats counts records in each status.
func (s *AdminService) Stats(ctx context.Context) (*PipelineStats, error) {
	stats := &PipelineStats{}
	for _, pair := range []struct {
		status domain.ImageStatus
		out    *int64
	}{
		{domain.ImageStatusPending, &stats.Pending},
		{domain.ImageStatusIndexing, &stats.Indexing},
		{domain.ImageStatusIndexed, &stats.Indexed},
		{domain.ImageStatusFailed, &stats.Failed},
	} {
		count, err := s.images.CountByStatus(ctx, pair.status)
		if err != nil {
			return nil, err
		}
		*pair.out = count
	}
	return stats, nil
}

// Reindex forces a record back through the pipeline: status reset to
// pending with a fresh attempt budget, then re-enqueued. This is the only
// way out of a terminal status.
func (s *AdminService) Reindex(ctx context.Context, id string) error {
	rec, err := s.images.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.images.ResetForReindex(ctx, id); err != nil {
		return err
	}

	job := domain.IndexingJob{
		ImageID: rec.ID,
		BlobKey: rec.BlobKey,
		Title:   rec.Title,
		Tags:    rec.Tags,
	}
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		// Pending record, sweeper recovers.
		s.logger.WithField(logger.FieldImageID, id).WithError(err).
			Warn("Re-index enqueue failed, record left pending for sweeper")
	}
	return nil
}

// Remove deletes an image everywhere: vector entry first so a search can
// never return an id whose metadata is already gone, then the metadata
// row, then the blob. A crash mid-way leaves at worst an orphaned blob,
// which is the accepted inconsistency class.
func (s *AdminService) Remove(ctx context.Context, id string) error {
	rec, err := s.images.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.vectors.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.images.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, rec.BlobKey); err != nil {
		// The record is gone; an unreachable blob is orphan-collectible.
		s.logger.WithField(logger.FieldImageID, id).WithError(err).
			Warn("Failed to delete blob for removed image")
	}
	return nil
}
