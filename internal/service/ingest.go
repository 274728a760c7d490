package service

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/google/uuid"
	"github.com/marek/imagesim/internal/domain"
	"github.com/marek/imagesim/internal/logger"
	"github.com/marek/imagesim/internal/queue"
	"github.com/marek/imagesim/internal/storage"
	_ "golang.org/x/image/webp"
)

// IngestService is the ingestion coordinator: it persists the blob and the
// pending metadata row, hands indexing off to the task queue, and returns
// immediately. Indexing happens off the request path.
type IngestService struct {
	images ImageStore
	blobs  storage.BlobStore
	jobs   queue.Queue
	logger *logger.Logger
}

// NewIngestService creates a new ingestion coordinator.
func NewIngestService(images ImageStore, blobs storage.BlobStore, jobs queue.Queue, log *logger.Logger) *IngestService {
	return &IngestService{
		images: images,
		blobs:  blobs,
		jobs:   jobs,
		logger: log,
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (s *IngestService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// Ingest accepts raw image content, writes the blob and a pending metadata
// record, and enqueues an indexing job.
//
// Failure boundaries: a blob write failure leaves the system wholly
// untouched and is safe to retry from the caller. An enqueue failure after
// the metadata insert leaves the record pending for the reconciliation
// sweeper; the coordinator never retries enqueue inline so the request path
// stays fast.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - content: raw image bytes.
//   - title: optional title.
//   - tags: optional tag set.
// Returns:
//   - string: freshly generated image ID.
//   - error: non-nil only if the blob write or metadata insert failed.
func (s *IngestService) Ingest(ctx context.Context, content []byte, title string, tags []string) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("%w: empty content", domain.ErrInvalidQuery)
	}

	id := uuid.New().String()

	// Best effort dimension/format sniff; an undecodable payload is still
	// ingested, the embedder decides whether it can handle it.
	width, height, format := sniffImage(content)

	blobKey := blobKeyFor(id, format)
	if err := s.blobs.Put(ctx, blobKey, content, contentTypeFor(format)); err != nil {
		return "", err
	}

	sum := md5.Sum(content)
	record := &domain.ImageRecord{
		ID:          id,
		Title:       title,
		Tags:        domain.StringArray(tags),
		BlobKey:     blobKey,
		ContentHash: hex.EncodeToString(sum[:]),
		Width:       width,
		Height:      height,
		Format:      format,
		Status:      domain.ImageStatusPending,
	}
	if err := s.images.Create(ctx, record); err != nil {
		return "", err
	}

	job := domain.IndexingJob{
		ImageID: id,
		BlobKey: blobKey,
		Title:   title,
		Tags:    tags,
	}
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		// Record stays pending; the sweeper re-enqueues it.
		s.log(ctx).WithField(logger.FieldImageID, id).WithError(err).
			Warn("Enqueue failed, record left pending for sweeper")
	}

	return id, nil
}

// sniffImage extracts dimensions and format without decoding pixel data.
func sniffImage(content []byte) (width, height int, format string) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		return 0, 0, ""
	}
	return cfg.Width, cfg.Height, format
}

func blobKeyFor(id, format string) string {
	if format == "" {
		return fmt.Sprintf("images/%s", id)
	}
	return fmt.Sprintf("images/%s.%s", id, format)
}

func contentTypeFor(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
