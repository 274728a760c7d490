package domain

import "errors"

// Error taxonomy for the ingestion and search pipeline. Adapters wrap their
// underlying failures with one of these sentinels so the worker and the
// coordinators can classify with errors.Is without knowing the backend.
var (
	// ErrStorageWrite indicates the blob or metadata store rejected a write.
	ErrStorageWrite = errors.New("storage write failed")

	// ErrStorageRead indicates the blob or metadata store could not serve a read.
	ErrStorageRead = errors.New("storage read failed")

	// ErrEmbedding indicates the embedder was unavailable or produced a
	// degenerate (zero) vector.
	ErrEmbedding = errors.New("embedding failed")

	// ErrIndexWrite indicates the vector index rejected an upsert or delete.
	ErrIndexWrite = errors.New("vector index write failed")

	// ErrIndexQuery indicates the vector index could not serve a query.
	ErrIndexQuery = errors.New("vector index query failed")

	// ErrInvalidQuery indicates malformed caller input: neither or both of
	// text and image content supplied to a search.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrNotFound indicates the requested image record does not exist.
	ErrNotFound = errors.New("image not found")
)
