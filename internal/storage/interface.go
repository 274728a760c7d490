package storage

import "context"

// BlobStore defines the interface for raw image byte storage. Keys are
// caller-chosen; key format and bucket naming are adapter concerns.
type BlobStore interface {
	// Put writes data under key, overwriting any existing object.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get reads the full object stored under key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object stored under key.
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists under key.
	Exists(ctx context.Context, key string) (bool, error)

	// GetURL returns the URL for accessing an object.
	GetURL(key string) string
}
