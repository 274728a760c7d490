package service

import (
	"context"
	"testing"

	"github.com/marek/imagesim/internal/domain"
	"github.com/marek/imagesim/internal/index"
	"github.com/marek/imagesim/internal/queue"
)

const testDims = 8

func seedPendingImage(images *fakeImageStore, blobs *fakeBlobStore, id string, content []byte) domain.IndexingJob {
	blobKey := "images/" + id + ".png"
	images.seed(&domain.ImageRecord{
		ID:      id,
		BlobKey: blobKey,
		Status:  domain.ImageStatusPending,
	})
	blobs.blobs[blobKey] = content
	return domain.IndexingJob{ImageID: id, BlobKey: blobKey}
}

func TestWorkerIndexesImage(t *testing.T) {
	images := newFakeImageStore()
	blobs := newFakeBlobStore()
	vectors := index.NewMemoryIndex(testDims)
	embedder := newFakeEmbedder(testDims)
	w := NewIndexWorker(images, blobs, vectors, embedder, 3, testLogger())

	job := seedPendingImage(images, blobs, "img-1", []byte("pixels"))

	if got := w.Handle(context.Background(), job); got != queue.Ack {
		t.Fatalf("outcome = %v, want Ack", got)
	}

	rec := images.get("img-1")
	if rec.Status != domain.ImageStatusIndexed {
		t.Errorf("status = %s, want indexed", rec.Status)
	}
	if vectors.Len() != 1 {
		t.Errorf("index size = %d, want 1", vectors.Len())
	}
}

func TestWorkerDropsDuplicateDelivery(t *testing.T) {
	images := newFakeImageStore()
	blobs := newFakeBlobStore()
	vectors := index.NewMemoryIndex(testDims)
	w := NewIndexWorker(images, blobs, vectors, newFakeEmbedder(testDims), 3, testLogger())

	job := seedPendingImage(images, blobs, "img-1", []byte("pixels"))

	if got := w.Handle(context.Background(), job); got != queue.Ack {
		t.Fatalf("first delivery outcome = %v, want Ack", got)
	}
	// Redelivery of the same job must not move the record off indexed.
	if got := w.Handle(context.Background(), job); got != queue.Ack {
		t.Fatalf("duplicate delivery outcome = %v, want Ack", got)
	}
	if rec := images.get("img-1"); rec.Status != domain.ImageStatusIndexed {
		t.Errorf("status after duplicate = %s, want indexed", rec.Status)
	}
	if vectors.Len() != 1 {
		t.Errorf("index size after duplicate = %d, want 1", vectors.Len())
	}
}

func TestWorkerRetriesThenFails(t *testing.T) {
	const maxAttempts = 3

	images := newFakeImageStore()
	blobs := newFakeBlobStore()
	vectors := index.NewMemoryIndex(testDims)
	embedder := newFakeEmbedder(testDims)
	embedder.imageErr = errBackend
	w := NewIndexWorker(images, blobs, vectors, embedder, maxAttempts, testLogger())

	job := seedPendingImage(images, blobs, "img-1", []byte("pixels"))

	// Attempts 1 and 2 return the record to pending and ask for redelivery.
	for i := 0; i < maxAttempts-1; i++ {
		if got := w.Handle(context.Background(), job); got != queue.NackRetry {
			t.Fatalf("attempt %d outcome = %v, want NackRetry", i+1, got)
		}
		rec := images.get("img-1")
		if rec.Status != domain.ImageStatusPending {
			t.Fatalf("attempt %d status = %s, want pending", i+1, rec.Status)
		}
		if rec.AttemptCount != i+1 {
			t.Fatalf("attempt %d count = %d, want %d", i+1, rec.AttemptCount, i+1)
		}
		job.Attempt++
	}

	// The final attempt exhausts the budget.
	if got := w.Handle(context.Background(), job); got != queue.Ack {
		t.Fatalf("final attempt outcome = %v, want Ack", got)
	}
	rec := images.get("img-1")
	if rec.Status != domain.ImageStatusFailed {
		t.Errorf("status = %s, want failed", rec.Status)
	}
	if rec.AttemptCount != maxAttempts {
		t.Errorf("attempt count = %d, want %d", rec.AttemptCount, maxAttempts)
	}
	if vectors.Len() != 0 {
		t.Errorf("failed record has %d index entries, want 0", vectors.Len())
	}
}

func TestWorkerZeroVectorIsEmbeddingFailure(t *testing.T) {
	images := newFakeImageStore()
	blobs := newFakeBlobStore()
	embedder := newFakeEmbedder(testDims)
	embedder.fixed = make([]float32, testDims)
	w := NewIndexWorker(images, blobs, index.NewMemoryIndex(testDims), embedder, 3, testLogger())

	job := seedPendingImage(images, blobs, "img-1", []byte("pixels"))

	if got := w.Handle(context.Background(), job); got != queue.NackRetry {
		t.Fatalf("outcome = %v, want NackRetry", got)
	}
	rec := images.get("img-1")
	if rec.Status != domain.ImageStatusPending {
		t.Errorf("status = %s, want pending", rec.Status)
	}
	if rec.AttemptCount != 1 {
		t.Errorf("attempt count = %d, want 1", rec.AttemptCount)
	}
}

func TestWorkerMissingBlobRetries(t *testing.T) {
	images := newFakeImageStore()
	blobs := newFakeBlobStore()
	w := NewIndexWorker(images, blobs, index.NewMemoryIndex(testDims), newFakeEmbedder(testDims), 3, testLogger())

	images.seed(&domain.ImageRecord{
		ID:      "img-1",
		BlobKey: "images/img-1.png",
		Status:  domain.ImageStatusPending,
	})
	job := domain.IndexingJob{ImageID: "img-1", BlobKey: "images/img-1.png"}

	if got := w.Handle(context.Background(), job); got != queue.NackRetry {
		t.Fatalf("outcome = %v, want NackRetry", got)
	}
	if rec := images.get("img-1"); rec.Status != domain.ImageStatusPending {
		t.Errorf("status = %s, want pending", rec.Status)
	}
}

// Indexing then searching the same content must rank it first with a score
// of ~1, since both paths share the embedder and the normalization.
func TestWorkerAndSearchRoundTrip(t *testing.T) {
	images := newFakeImageStore()
	blobs := newFakeBlobStore()
	vectors := index.NewMemoryIndex(testDims)
	embedder := newFakeEmbedder(testDims)
	w := NewIndexWorker(images, blobs, vectors, embedder, 3, testLogger())

	content := []byte("the exact same pixels")
	job := seedPendingImage(images, blobs, "img-1", content)
	otherJob := seedPendingImage(images, blobs, "img-2", []byte("different pixels"))

	if got := w.Handle(context.Background(), job); got != queue.Ack {
		t.Fatalf("index img-1: outcome %v", got)
	}
	if got := w.Handle(context.Background(), otherJob); got != queue.Ack {
		t.Fatalf("index img-2: outcome %v", got)
	}

	search := NewSearchService(vectors, embedder, blobs, testLogger(), &SearchConfig{})
	resp, err := search.Search(context.Background(), &SearchRequest{Image: content})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(resp.Results))
	}
	top := resp.Results[0]
	if top.ImageID != "img-1" {
		t.Errorf("top hit = %s, want img-1", top.ImageID)
	}
	if top.Score < 0.9999 {
		t.Errorf("top score = %f, want ~1.0", top.Score)
	}
}
