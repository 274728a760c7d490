package service

import (
	"context"
	"time"

	"github.com/marek/imagesim/internal/domain"
	"github.com/marek/imagesim/internal/repository"
)

// ImageStore is the metadata store capability the pipeline services depend
// on. Status transitions are conditional updates keyed on the expected
// current status; the boolean result reports whether the caller won the
// transition.
type ImageStore interface {
	Create(ctx context.Context, record *domain.ImageRecord) error
	GetByID(ctx context.Context, id string) (*domain.ImageRecord, error)
	TransitionStatus(ctx context.Context, id string, from, to domain.ImageStatus) (bool, error)
	TransitionStatusAttempts(ctx context.Context, id string, from, to domain.ImageStatus, attempts int) (bool, error)
	Touch(ctx context.Context, id string) error
	ListStale(ctx context.Context, statuses []domain.ImageStatus, olderThan time.Time, limit int) ([]domain.ImageRecord, error)
	ResetForReindex(ctx context.Context, id string) error
	CountByStatus(ctx context.Context, status domain.ImageStatus) (int64, error)
	Delete(ctx context.Context, id string) error
}

var _ ImageStore = (*repository.ImageRepository)(nil)
