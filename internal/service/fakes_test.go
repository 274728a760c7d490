package service

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/marek/imagesim/internal/domain"
	"github.com/marek/imagesim/internal/logger"
)

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Format: "text", Output: io.Discard})
}

// fakeImageStore is an in-memory ImageStore with the same conditional
// transition semantics as the real repository.
type fakeImageStore struct {
	mu      sync.Mutex
	records map[string]*domain.ImageRecord

	createErr     error
	transitionErr error
	listErr       error
}

func newFakeImageStore() *fakeImageStore {
	return &fakeImageStore{records: make(map[string]*domain.ImageRecord)}
}

func (s *fakeImageStore) Create(ctx context.Context, record *domain.ImageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.records[record.ID]; ok {
		return nil
	}
	cp := *record
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.records[record.ID] = &cp
	return nil
}

func (s *fakeImageStore) GetByID(ctx context.Context, id string) (*domain.ImageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: image %s", domain.ErrNotFound, id)
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeImageStore) TransitionStatus(ctx context.Context, id string, from, to domain.ImageStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transitionErr != nil {
		return false, s.transitionErr
	}
	rec, ok := s.records[id]
	if !ok || rec.Status != from {
		return false, nil
	}
	rec.Status = to
	rec.UpdatedAt = time.Now()
	return true, nil
}

func (s *fakeImageStore) TransitionStatusAttempts(ctx context.Context, id string, from, to domain.ImageStatus, attempts int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transitionErr != nil {
		return false, s.transitionErr
	}
	rec, ok := s.records[id]
	if !ok || rec.Status != from {
		return false, nil
	}
	rec.Status = to
	rec.AttemptCount = attempts
	rec.UpdatedAt = time.Now()
	return true, nil
}

func (s *fakeImageStore) Touch(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: image %s", domain.ErrNotFound, id)
	}
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *fakeImageStore) ListStale(ctx context.Context, statuses []domain.ImageStatus, olderThan time.Time, limit int) ([]domain.ImageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []domain.ImageRecord
	for _, rec := range s.records {
		if !rec.UpdatedAt.Before(olderThan) {
			continue
		}
		for _, st := range statuses {
			if rec.Status == st {
				out = append(out, *rec)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeImageStore) ResetForReindex(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: image %s", domain.ErrNotFound, id)
	}
	rec.Status = domain.ImageStatusPending
	rec.AttemptCount = 0
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *fakeImageStore) CountByStatus(ctx context.Context, status domain.ImageStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, rec := range s.records {
		if rec.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *fakeImageStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("%w: image %s", domain.ErrNotFound, id)
	}
	delete(s.records, id)
	return nil
}

// get returns the stored record without copying, for assertions.
func (s *fakeImageStore) get(id string) *domain.ImageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id]
}

// seed inserts a record directly, bypassing Create error injection.
func (s *fakeImageStore) seed(rec *domain.ImageRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	s.records[rec.ID] = rec
}

// fakeBlobStore is an in-memory BlobStore.
type fakeBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte

	putErr error
	getErr error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{blobs: make(map[string][]byte)}
}

func (s *fakeBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.blobs[key] = cp
	return nil
}

func (s *fakeBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	data, ok := s.blobs[key]
	if !ok {
		return nil, fmt.Errorf("%w: object %s", domain.ErrStorageRead, key)
	}
	return data, nil
}

func (s *fakeBlobStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

func (s *fakeBlobStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[key]
	return ok, nil
}

func (s *fakeBlobStore) GetURL(key string) string {
	return "http://blobs.local/" + key
}

func (s *fakeBlobStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

// fakeEmbedder maps content deterministically to a vector so the same bytes
// always embed to the same point in the space.
type fakeEmbedder struct {
	dims int

	imageErr error
	textErr  error
	// fixed overrides the derived vector when non-nil.
	fixed []float32
}

func newFakeEmbedder(dims int) *fakeEmbedder {
	return &fakeEmbedder{dims: dims}
}

func (e *fakeEmbedder) vectorFor(content []byte) []float32 {
	if e.fixed != nil {
		cp := make([]float32, len(e.fixed))
		copy(cp, e.fixed)
		return cp
	}
	sum := sha256.Sum256(content)
	vec := make([]float32, e.dims)
	for i := range vec {
		vec[i] = float32(sum[i%len(sum)]) + 1
	}
	return vec
}

func (e *fakeEmbedder) EmbedImage(ctx context.Context, content []byte) ([]float32, error) {
	if e.imageErr != nil {
		return nil, e.imageErr
	}
	return e.vectorFor(content), nil
}

func (e *fakeEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if e.textErr != nil {
		return nil, e.textErr
	}
	return e.vectorFor([]byte(text)), nil
}

func (e *fakeEmbedder) Dimensions() int { return e.dims }

// fakeQueue records enqueued jobs without delivering them.
type fakeQueue struct {
	mu         sync.Mutex
	jobs       []domain.IndexingJob
	enqueueErr error
}

func (q *fakeQueue) Enqueue(ctx context.Context, job domain.IndexingJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) enqueued() []domain.IndexingJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.IndexingJob, len(q.jobs))
	copy(out, q.jobs)
	return out
}

var errBackend = errors.New("backend unavailable")
