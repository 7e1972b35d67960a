package store

import (
	"context"
	"sync"
	"time"
)

// entry holds one windowed counter. expiresAt derives from the monotonic
// clock carried by time.Time, so wall clock adjustments do not shift windows.
type entry struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore is the in-process Store implementation.
//
// Counters live in a mutex-guarded map. Expired entries are replaced lazily
// on access; an optional background sweep removes counters for keys that
// stopped sending traffic so the map does not grow without bound.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
	done    chan struct{}
	once    sync.Once
}

// NewMemoryStore creates an in-process counter store. cleanupInterval is how
// often stale entries are swept; pass 0 to disable sweeping (lazy expiry on
// access still applies).
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]entry),
		done:    make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go s.cleanupLoop(cleanupInterval)
	}

	return s
}

// IncrementAndGet atomically increments the counter for key within its window.
func (s *MemoryStore) IncrementAndGet(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || now.After(e.expiresAt) {
		e = entry{count: 0, expiresAt: now.Add(window)}
	}
	e.count++
	s.entries[key] = e

	return e.count, e.expiresAt.Sub(now), nil
}

// Size returns the number of live counters. Useful for monitoring and tests.
func (s *MemoryStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close stops the background sweep.
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for key, e := range s.entries {
				if now.After(e.expiresAt) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		case <-s.done:
			return
		}
	}
}
