package store

import (
	"context"
	"errors"
	"time"
)

// Store is the counter store consulted by the distributed tracker and the
// store-backed fixed window limiter.
// Implementations must be safe for concurrent use and atomic with respect to
// concurrent callers on the same key.
type Store interface {
	// IncrementAndGet atomically increments the counter for key, creating it
	// with the given window TTL on first touch, and returns the new count
	// together with the TTL remaining on the window.
	IncrementAndGet(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)

	// Close releases any resources held by the store.
	Close() error
}

// ErrUnavailable is returned when the backing store cannot be reached within
// the call's deadline. Callers degrade to their configured fallback policy
// rather than failing the request pipeline.
var ErrUnavailable = errors.New("counter store unavailable")
