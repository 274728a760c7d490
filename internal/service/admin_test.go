package service

import (
	"context"
	"errors"
	"testing"

	"github.com/marek/imagesim/internal/domain"
	"github.com/marek/imagesim/internal/index"
)

func TestAdminReindexResetsFailedRecord(t *testing.T) {
	images := newFakeImageStore()
	jobs := &fakeQueue{}
	svc := NewAdminService(images, index.NewMemoryIndex(testDims), newFakeBlobStore(), jobs, testLogger())

	images.seed(&domain.ImageRecord{
		ID:           "img-1",
		BlobKey:      "images/img-1.png",
		Title:        "sunset",
		Status:       domain.ImageStatusFailed,
		AttemptCount: 3,
	})

	if err := svc.Reindex(context.Background(), "img-1"); err != nil {
		t.Fatalf("reindex: %v", err)
	}

	rec := images.get("img-1")
	if rec.Status != domain.ImageStatusPending {
		t.Errorf("status = %s, want pending", rec.Status)
	}
	if rec.AttemptCount != 0 {
		t.Errorf("attempt count = %d, want fresh budget 0", rec.AttemptCount)
	}

	enqueued := jobs.enqueued()
	if len(enqueued) != 1 {
		t.Fatalf("got %d jobs, want 1", len(enqueued))
	}
	if enqueued[0].BlobKey != "images/img-1.png" || enqueued[0].Title != "sunset" {
		t.Errorf("job = %+v, want blob key and title from the record", enqueued[0])
	}
}

func TestAdminReindexUnknownID(t *testing.T) {
	svc := NewAdminService(newFakeImageStore(), index.NewMemoryIndex(testDims), newFakeBlobStore(), &fakeQueue{}, testLogger())

	err := svc.Reindex(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAdminReindexEnqueueFailureLeavesPending(t *testing.T) {
	images := newFakeImageStore()
	jobs := &fakeQueue{enqueueErr: errBackend}
	svc := NewAdminService(images, index.NewMemoryIndex(testDims), newFakeBlobStore(), jobs, testLogger())

	images.seed(&domain.ImageRecord{
		ID:      "img-1",
		BlobKey: "images/img-1.png",
		Status:  domain.ImageStatusFailed,
	})

	if err := svc.Reindex(context.Background(), "img-1"); err != nil {
		t.Fatalf("reindex should succeed despite enqueue failure, got %v", err)
	}
	if rec := images.get("img-1"); rec.Status != domain.ImageStatusPending {
		t.Errorf("status = %s, want pending for sweeper recovery", rec.Status)
	}
}

func TestAdminRemove(t *testing.T) {
	images := newFakeImageStore()
	blobs := newFakeBlobStore()
	vectors := index.NewMemoryIndex(testDims)
	svc := NewAdminService(images, vectors, blobs, &fakeQueue{}, testLogger())

	unit, err := index.Normalize([]float32{1, 0, 0, 0, 0, 0, 0, 0})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if err := vectors.Upsert(context.Background(), index.Entry{ImageID: "img-1", Embedding: unit}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	images.seed(&domain.ImageRecord{
		ID:      "img-1",
		BlobKey: "images/img-1.png",
		Status:  domain.ImageStatusIndexed,
	})
	blobs.blobs["images/img-1.png"] = []byte("pixels")

	if err := svc.Remove(context.Background(), "img-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if vectors.Len() != 0 {
		t.Errorf("index size = %d, want 0", vectors.Len())
	}
	if _, err := images.GetByID(context.Background(), "img-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("metadata still present, got %v", err)
	}
	if blobs.len() != 0 {
		t.Errorf("blob count = %d, want 0", blobs.len())
	}
}

func TestAdminStats(t *testing.T) {
	images := newFakeImageStore()
	svc := NewAdminService(images, index.NewMemoryIndex(testDims), newFakeBlobStore(), &fakeQueue{}, testLogger())

	for i, st := range []domain.ImageStatus{
		domain.ImageStatusPending,
		domain.ImageStatusIndexed,
		domain.ImageStatusIndexed,
		domain.ImageStatusFailed,
	} {
		images.seed(&domain.ImageRecord{ID: string(rune('a' + i)), Status: st})
	}

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := PipelineStats{Pending: 1, Indexed: 2, Failed: 1}
	if *stats != want {
		t.Errorf("stats = %+v, want %+v", *stats, want)
	}
}
