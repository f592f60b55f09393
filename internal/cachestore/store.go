// Package cachestore provides the generic get/set/expire cache boundary
// used by the tenant config cache and the retrieval caches.
package cachestore

import (
	"context"
	"time"
)

// Store is a byte-oriented cache with per-key TTLs. Implementations must
// support concurrent readers without blocking.
type Store interface {
	// Get returns the cached value for key, and whether it was present and
	// unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a single key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every key starting with prefix. Used for
	// push-based invalidation of a tenant collection's result entries.
	DeletePrefix(ctx context.Context, prefix string) error
}
