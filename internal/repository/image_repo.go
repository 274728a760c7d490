package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marek/imagesim/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ImageRepository handles image metadata operations. All status changes go
// through conditional updates so concurrent workers never clobber each
// other's transitions.
type ImageRepository struct {
	db *gorm.DB
}

// NewImageRepository creates a new ImageRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ImageRepository: repository instance bound to db.
func NewImageRepository(db *gorm.DB) *ImageRepository {
	return &ImageRepository{db: db}
}

// Create inserts a new image record. Inserting an already existing ID is a
// no-op, so a retried ingestion cannot fail on the metadata write.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - record: image record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *ImageRepository) Create(ctx context.Context, record *domain.ImageRecord) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(record).Error
	if err != nil {
		return fmt.Errorf("%w: insert image %s: %v", domain.ErrStorageWrite, record.ID, err)
	}
	return nil
}

// GetByID retrieves an image record by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: image ID.
// Returns:
//   - *domain.ImageRecord: record if found.
//   - error: domain.ErrNotFound if missing, otherwise a read error.
func (r *ImageRepository) GetByID(ctx context.Context, id string) (*domain.ImageRecord, error) {
	var record domain.ImageRecord
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: get image %s: %v", domain.ErrStorageRead, id, err)
	}
	return &record, nil
}

// TransitionStatus performs a compare-and-set status transition. The update
// only applies when the record currently holds the expected status; the
// boolean result reports whether this caller won the transition.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: image ID.
//   - from: expected current status.
//   - to: new status.
// Returns:
//   - bool: true if the transition applied.
//   - error: non-nil if the update itself fails.
func (r *ImageRepository) TransitionStatus(ctx context.Context, id string, from, to domain.ImageStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.ImageRecord{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("%w: transition %s %s->%s: %v", domain.ErrStorageWrite, id, from, to, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// TransitionStatusAttempts is TransitionStatus with an attempt counter
// update in the same conditional write, used by the worker retry path.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: image ID.
//   - from: expected current status.
//   - to: new status.
//   - attempts: new attempt count to persist.
// Returns:
//   - bool: true if the transition applied.
//   - error: non-nil if the update itself fails.
func (r *ImageRepository) TransitionStatusAttempts(ctx context.Context, id string, from, to domain.ImageStatus, attempts int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.ImageRecord{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":        to,
			"attempt_count": attempts,
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("%w: transition %s %s->%s: %v", domain.ErrStorageWrite, id, from, to, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Touch refreshes updated_at without changing status. The sweeper uses it
// after re-enqueueing so the same record is not picked up again on the next
// sweep cycle while the redelivered job is still in flight.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: image ID.
// Returns:
//   - error: non-nil if the update fails.
func (r *ImageRepository) Touch(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).
		Model(&domain.ImageRecord{}).
		Where("id = ?", id).
		Update("updated_at", time.Now()).Error
	if err != nil {
		return fmt.Errorf("%w: touch image %s: %v", domain.ErrStorageWrite, id, err)
	}
	return nil
}

// ListStale retrieves records in the given statuses whose updated_at is
// older than the cutoff, ordered oldest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - statuses: statuses to match.
//   - olderThan: updated_at cutoff.
//   - limit: maximum number of records to return.
// Returns:
//   - []domain.ImageRecord: matching records.
//   - error: non-nil if the query fails.
func (r *ImageRepository) ListStale(ctx context.Context, statuses []domain.ImageStatus, olderThan time.Time, limit int) ([]domain.ImageRecord, error) {
	var records []domain.ImageRecord
	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", statuses, olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list stale records: %v", domain.ErrStorageRead, err)
	}
	return records, nil
}

// ResetForReindex unconditionally moves a record back to pending with a
// zeroed attempt counter. This is the operator-triggered re-index escape
// hatch out of a terminal status.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: image ID.
// Returns:
//   - error: domain.ErrNotFound if no row matched, otherwise a write error.
func (r *ImageRepository) ResetForReindex(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).
		Model(&domain.ImageRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        domain.ImageStatusPending,
			"attempt_count": 0,
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("%w: reset image %s: %v", domain.ErrStorageWrite, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CountByStatus counts image records by status.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - status: status to count.
// Returns:
//   - int64: number of matching records.
//   - error: non-nil if the query fails.
func (r *ImageRepository) CountByStatus(ctx context.Context, status domain.ImageStatus) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.ImageRecord{}).Where("status = ?", status).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("%w: count by status: %v", domain.ErrStorageRead, err)
	}
	return count, nil
}

// Delete removes an image record by ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: image ID to delete.
// Returns:
//   - error: non-nil if the delete fails.
func (r *ImageRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Delete(&domain.ImageRecord{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("%w: delete image %s: %v", domain.ErrStorageWrite, id, err)
	}
	return nil
}
