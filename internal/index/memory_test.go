package index

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/marek/imagesim/internal/domain"
)

func mustUpsert(t *testing.T, idx *MemoryIndex, id string, vec []float32) {
	t.Helper()
	unit, err := Normalize(vec)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if err := idx.Upsert(context.Background(), Entry{ImageID: id, Embedding: unit}); err != nil {
		t.Fatalf("upsert %s: %v", id, err)
	}
}

func TestMemoryIndexQueryOrdering(t *testing.T) {
	idx := NewMemoryIndex(3)

	// Angles from the query vector (1,0,0), furthest to closest.
	mustUpsert(t, idx, "far", []float32{0, 1, 0})
	mustUpsert(t, idx, "mid", []float32{1, 1, 0})
	mustUpsert(t, idx, "near", []float32{1, 0.1, 0})
	mustUpsert(t, idx, "exact", []float32{1, 0, 0})

	hits, err := idx.Query(context.Background(), []float32{1, 0, 0}, 4)
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	wantOrder := []string{"exact", "near", "mid", "far"}
	if len(hits) != len(wantOrder) {
		t.Fatalf("got %d hits, want %d", len(hits), len(wantOrder))
	}
	for i, want := range wantOrder {
		if hits[i].ImageID != want {
			t.Errorf("hit %d = %s, want %s", i, hits[i].ImageID, want)
		}
	}

	if math.Abs(float64(hits[0].Score)-1) > 1e-6 {
		t.Errorf("exact match score = %v, want 1", hits[0].Score)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Errorf("hits not in descending order at %d: %v > %v", i, hits[i].Score, hits[i-1].Score)
		}
	}
}

func TestMemoryIndexTieBreakByID(t *testing.T) {
	idx := NewMemoryIndex(2)

	// Insert in non-alphabetical order; identical vectors tie on score.
	for _, id := range []string{"charlie", "alpha", "bravo"} {
		mustUpsert(t, idx, id, []float32{1, 0})
	}

	// Ordering must be stable across repeated queries.
	for i := 0; i < 5; i++ {
		hits, err := idx.Query(context.Background(), []float32{1, 0}, 3)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		want := []string{"alpha", "bravo", "charlie"}
		for j, w := range want {
			if hits[j].ImageID != w {
				t.Fatalf("run %d: hit %d = %s, want %s", i, j, hits[j].ImageID, w)
			}
		}
	}
}

func TestMemoryIndexTopKClamp(t *testing.T) {
	idx := NewMemoryIndex(2)
	mustUpsert(t, idx, "a", []float32{1, 0})
	mustUpsert(t, idx, "b", []float32{0, 1})

	hits, err := idx.Query(context.Background(), []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("got %d hits, want all 2", len(hits))
	}

	hits, err = idx.Query(context.Background(), []float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(hits) != 1 || hits[0].ImageID != "a" {
		t.Errorf("topK=1: got %+v, want single hit a", hits)
	}
}

func TestMemoryIndexEmpty(t *testing.T) {
	idx := NewMemoryIndex(2)

	hits, err := idx.Query(context.Background(), []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("query on empty index: %v", err)
	}
	if hits == nil {
		t.Fatal("expected empty slice, got nil")
	}
	if len(hits) != 0 {
		t.Errorf("got %d hits from empty index", len(hits))
	}
}

func TestMemoryIndexUpsertOverwrites(t *testing.T) {
	idx := NewMemoryIndex(2)
	mustUpsert(t, idx, "a", []float32{1, 0})
	mustUpsert(t, idx, "a", []float32{0, 1})

	if idx.Len() != 1 {
		t.Fatalf("Len = %d, want 1 after double upsert", idx.Len())
	}

	hits, err := idx.Query(context.Background(), []float32{0, 1}, 1)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if math.Abs(float64(hits[0].Score)-1) > 1e-6 {
		t.Errorf("overwritten vector not in effect, score = %v", hits[0].Score)
	}
}

func TestMemoryIndexDelete(t *testing.T) {
	idx := NewMemoryIndex(2)
	mustUpsert(t, idx, "a", []float32{1, 0})

	if err := idx.Delete(context.Background(), "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	// Deleting a missing id is a no-op.
	if err := idx.Delete(context.Background(), "a"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if idx.Len() != 0 {
		t.Errorf("Len = %d, want 0", idx.Len())
	}
}

func TestMemoryIndexDimensionMismatch(t *testing.T) {
	idx := NewMemoryIndex(3)

	err := idx.Upsert(context.Background(), Entry{ImageID: "a", Embedding: []float32{1, 0}})
	if !errors.Is(err, domain.ErrIndexWrite) {
		t.Errorf("upsert: expected ErrIndexWrite, got %v", err)
	}

	_, err = idx.Query(context.Background(), []float32{1, 0}, 1)
	if !errors.Is(err, domain.ErrIndexQuery) {
		t.Errorf("query: expected ErrIndexQuery, got %v", err)
	}
}
