package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_IncrementAndGet(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Close()

	ctx := context.Background()

	for want := int64(1); want <= 5; want++ {
		count, ttl, err := s.IncrementAndGet(ctx, "tool:search:60", time.Minute)
		if err != nil {
			t.Fatalf("IncrementAndGet failed: %v", err)
		}
		if count != want {
			t.Errorf("Expected count %d, got %d", want, count)
		}
		if ttl <= 0 || ttl > time.Minute {
			t.Errorf("Expected TTL in (0, 1m], got %v", ttl)
		}
	}
}

func TestMemoryStore_IndependentKeys(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Close()

	ctx := context.Background()

	s.IncrementAndGet(ctx, "a", time.Minute)
	s.IncrementAndGet(ctx, "a", time.Minute)
	count, _, _ := s.IncrementAndGet(ctx, "b", time.Minute)

	if count != 1 {
		t.Errorf("Expected independent counter to start at 1, got %d", count)
	}
}

func TestMemoryStore_WindowExpiry(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Close()

	ctx := context.Background()

	s.IncrementAndGet(ctx, "k", 50*time.Millisecond)
	s.IncrementAndGet(ctx, "k", 50*time.Millisecond)

	time.Sleep(60 * time.Millisecond)

	count, _, err := s.IncrementAndGet(ctx, "k", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("IncrementAndGet failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected counter reset after window expiry, got %d", count)
	}
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := s.IncrementAndGet(ctx, "k", time.Minute); err == nil {
		t.Error("Expected error from cancelled context")
	}
}

func TestMemoryStore_Cleanup(t *testing.T) {
	s := NewMemoryStore(20 * time.Millisecond)
	defer s.Close()

	ctx := context.Background()
	s.IncrementAndGet(ctx, "short", 10*time.Millisecond)

	time.Sleep(60 * time.Millisecond)

	if size := s.Size(); size != 0 {
		t.Errorf("Expected expired entry swept, store size %d", size)
	}
}

func TestMemoryStore_ConcurrentLinearizable(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[int64]bool)

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			count, _, err := s.IncrementAndGet(ctx, "hot", time.Minute)
			if err != nil {
				t.Errorf("IncrementAndGet failed: %v", err)
				return
			}
			mu.Lock()
			if seen[count] {
				t.Errorf("Duplicate count observed: %d", count)
			}
			seen[count] = true
			mu.Unlock()
		}()
	}

	wg.Wait()

	// Each increment observed all prior increments: counts 1..100, no gaps.
	for want := int64(1); want <= 100; want++ {
		if !seen[want] {
			t.Fatalf("Missing count %d in observed sequence", want)
		}
	}
}

func BenchmarkMemoryStore_IncrementAndGet(b *testing.B) {
	s := NewMemoryStore(0)
	defer s.Close()

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.IncrementAndGet(ctx, fmt.Sprintf("key-%d", i%128), time.Minute)
	}
}
