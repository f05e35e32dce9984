package cache

import (
	"context"
	"time"
)

// Backend is the shared key-value store behind every memoizing component
// (actor descriptors, instance metadata, conditional revalidation records).
// Implementations must be safe for concurrent use.
type Backend interface {
	// Get retrieves a value. Returns (value, found, error); an expired
	// entry behaves as absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}
