package backends

import (
	"context"
	"time"
)

// Backend is the counter store the admission gate depends on.
//
// Implementations must make IncrementAndGet atomic across every caller that
// shares the store, including callers in other processes.
type Backend interface {
	// IncrementAndGet atomically adds one to the counter stored at key and
	// returns the new value. A missing or expired key counts as zero.
	IncrementAndGet(ctx context.Context, key string) (int64, error)

	// EnsureExpiry sets a time-to-live on key only if the key has none yet.
	// An existing expiry is never extended.
	EnsureExpiry(ctx context.Context, key string, ttl time.Duration) error

	// Delete removes the counter stored at key
	Delete(ctx context.Context, key string) error

	// Ping reports whether the store is reachable
	Ping(ctx context.Context) error

	// Close releases resources used by the storage backend
	Close() error
}
