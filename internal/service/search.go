package service

import (
	"context"
	"fmt"
	"time"

	"github.com/marek/imagesim/internal/domain"
	"github.com/marek/imagesim/internal/embedding"
	"github.com/marek/imagesim/internal/index"
	"github.com/marek/imagesim/internal/logger"
	"github.com/marek/imagesim/internal/storage"
)

// SearchRequest carries a similarity query: exactly one of Text or Image
// must be set.
type SearchRequest struct {
	Text  string
	Image []byte
	TopK  int
}

// SearchResult is one ranked hit, hydrated from the payload stored
// alongside the embedding.
type SearchResult struct {
	ImageID string   `json:"image_id"`
	Score   float32  `json:"score"`
	Title   string   `json:"title,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	BlobKey string   `json:"blob_key"`
	URL     string   `json:"url,omitempty"`
}

// SearchResponse is an ordered result list, best match first.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

// SearchConfig holds configuration for the query coordinator.
type SearchConfig struct {
	DefaultTopK int
	MaxTopK     int
	Timeout     time.Duration
}

// SearchService is the query coordinator: embed the query, run a KNN search
// against the vector index, and hydrate results from the denormalized
// payload. Embedder and index failures degrade to an empty result set by
// design; search is best effort, and the failure is logged rather than
// surfaced. The result metadata is as stale as the last re-index, which is
// the price of keeping the metadata store off the hot query path.
type SearchService struct {
	vectors     index.VectorIndex
	embedder    embedding.Embedder
	blobs       storage.BlobStore
	logger      *logger.Logger
	defaultTopK int
	maxTopK     int
	timeout     time.Duration
}

// NewSearchService creates a new query coordinator.
// Parameters:
//   - vectors: vector index to query.
//   - embedder: embedder shared with the indexing pipeline.
//   - blobs: blob store used only for URL hydration.
//   - log: logger instance.
//   - cfg: search configuration settings.
// Returns:
//   - *SearchService: initialized search service.
func NewSearchService(vectors index.VectorIndex, embedder embedding.Embedder, blobs storage.BlobStore, log *logger.Logger, cfg *SearchConfig) *SearchService {
	defaultTopK := cfg.DefaultTopK
	if defaultTopK <= 0 {
		defaultTopK = 10
	}
	maxTopK := cfg.MaxTopK
	if maxTopK < defaultTopK {
		maxTopK = defaultTopK
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &SearchService{
		vectors:     vectors,
		embedder:    embedder,
		blobs:       blobs,
		logger:      log,
		defaultTopK: defaultTopK,
		maxTopK:     maxTopK,
		timeout:     timeout,
	}
}

func (s *SearchService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// Search executes a similarity query.
// Parameters:
//   - ctx: request context; caller disconnect cancels the in-flight
//     embedder and index calls.
//   - req: query with exactly one of text or image content.
// Returns:
//   - *SearchResponse: ranked results; empty on backend failure.
//   - error: domain.ErrInvalidQuery for malformed input, nil otherwise.
func (s *SearchService) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	hasText := req.Text != ""
	hasImage := len(req.Image) > 0
	if hasText == hasImage {
		// Neither or both: rejecting both avoids an undefined precedence.
		return nil, fmt.Errorf("%w: provide exactly one of text or image", domain.ErrInvalidQuery)
	}

	topK := req.TopK
	if topK <= 0 {
		topK = s.defaultTopK
	}
	if topK > s.maxTopK {
		topK = s.maxTopK
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var vec []float32
	var err error
	if hasText {
		vec, err = s.embedder.EmbedText(ctx, req.Text)
	} else {
		vec, err = s.embedder.EmbedImage(ctx, req.Image)
	}
	if err != nil {
		s.log(ctx).WithError(err).Error("Query embedding failed, returning empty results")
		return &SearchResponse{Results: []SearchResult{}}, nil
	}

	// Same normalization as indexing, so the two vector spaces compare.
	unit, err := index.Normalize(vec)
	if err != nil {
		s.log(ctx).WithError(err).Error("Degenerate query embedding, returning empty results")
		return &SearchResponse{Results: []SearchResult{}}, nil
	}

	hits, err := s.vectors.Query(ctx, unit, topK)
	if err != nil {
		s.log(ctx).WithError(err).Error("Vector index query failed, returning empty results")
		return &SearchResponse{Results: []SearchResult{}}, nil
	}

	results := make([]SearchResult, len(hits))
	for i, hit := range hits {
		results[i] = SearchResult{
			ImageID: hit.ImageID,
			Score:   hit.Score,
			Title:   hit.Title,
			Tags:    hit.Tags,
			BlobKey: hit.BlobKey,
			URL:     s.blobs.GetURL(hit.BlobKey),
		}
	}

	return &SearchResponse{Results: results}, nil
}
