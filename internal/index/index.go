package index

import (
	"context"
	"errors"
	"math"
)

// Entry is a vector index record. Title, tags and blob key are denormalized
// alongside the embedding so query results can be hydrated without a
// synchronous metadata store join.
type Entry struct {
	ImageID   string
	Embedding []float32
	Title     string
	Tags      []string
	BlobKey   string
}

// Hit is a single ranked query result.
type Hit struct {
	ImageID string
	Score   float32
	Title   string
	Tags    []string
	BlobKey string
}

// VectorIndex is the approximate-nearest-neighbor store keyed by image ID.
// Upsert replaces any existing entry for the same ID and is safe to call
// concurrently for different IDs. Query returns hits ordered by descending
// cosine similarity (dot product of unit vectors); querying an empty index
// returns an empty slice, not an error.
type VectorIndex interface {
	Upsert(ctx context.Context, entry Entry) error
	Query(ctx context.Context, vector []float32, topK int) ([]Hit, error)
	Delete(ctx context.Context, imageID string) error
}

// ErrZeroVector is returned by Normalize for a degenerate all-zero vector.
var ErrZeroVector = errors.New("zero-length vector")

// Normalize scales v to unit L2 norm, returning a new slice. Both indexed
// and query vectors go through this so cosine similarity reduces to a dot
// product.
// Parameters:
//   - v: raw embedding vector.
// Returns:
//   - []float32: unit-norm copy of v.
//   - error: ErrZeroVector if v has zero magnitude.
func Normalize(v []float32) ([]float32, error) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return nil, ErrZeroVector
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, nil
}

// Dot computes the dot product of two equal-length vectors.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
