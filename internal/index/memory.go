package index

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/marek/imagesim/internal/domain"
)

// MemoryIndex is an exact KNN index held in memory. It backs single-node
// deployments and tests. Equal-score hits are ordered by ascending image ID,
// which keeps query output deterministic for a given index state.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]Entry
}

// NewMemoryIndex creates an empty in-memory index for vectors of the given
// dimension.
func NewMemoryIndex(dimension int) *MemoryIndex {
	return &MemoryIndex{
		dimension: dimension,
		entries:   make(map[string]Entry),
	}
}

// Upsert replaces any existing entry for entry.ImageID.
func (m *MemoryIndex) Upsert(ctx context.Context, entry Entry) error {
	if len(entry.Embedding) != m.dimension {
		return fmt.Errorf("%w: vector has dimension %d, index expects %d",
			domain.ErrIndexWrite, len(entry.Embedding), m.dimension)
	}

	// Copy so later caller mutation cannot corrupt the index.
	vec := make([]float32, len(entry.Embedding))
	copy(vec, entry.Embedding)
	entry.Embedding = vec

	m.mu.Lock()
	m.entries[entry.ImageID] = entry
	m.mu.Unlock()
	return nil
}

// Query returns up to topK hits ordered by descending dot product, ties
// broken by ascending image ID.
func (m *MemoryIndex) Query(ctx context.Context, vector []float32, topK int) ([]Hit, error) {
	if len(vector) != m.dimension {
		return nil, fmt.Errorf("%w: query vector has dimension %d, index expects %d",
			domain.ErrIndexQuery, len(vector), m.dimension)
	}
	if topK <= 0 {
		return []Hit{}, nil
	}

	m.mu.RLock()
	hits := make([]Hit, 0, len(m.entries))
	for _, entry := range m.entries {
		hits = append(hits, Hit{
			ImageID: entry.ImageID,
			Score:   Dot(vector, entry.Embedding),
			Title:   entry.Title,
			Tags:    entry.Tags,
			BlobKey: entry.BlobKey,
		})
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ImageID < hits[j].ImageID
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Delete removes the entry for imageID if present.
func (m *MemoryIndex) Delete(ctx context.Context, imageID string) error {
	m.mu.Lock()
	delete(m.entries, imageID)
	m.mu.Unlock()
	return nil
}

// Len reports the number of indexed entries.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
