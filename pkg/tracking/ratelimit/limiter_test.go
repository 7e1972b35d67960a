package ratelimit

import (
	"sync"
	"testing"
	"time"
)

// ============================================================================
// Token Bucket Tests
// ============================================================================

func TestTokenBucket_Basic(t *testing.T) {
	bucket := NewTokenBucket(10, 10) // 10 capacity, 10 tokens/sec

	dec := bucket.Take(5)
	if !dec.Allowed {
		t.Error("Expected to take 5 tokens from full bucket")
	}

	if remaining := bucket.Remaining(); remaining != 5 {
		t.Errorf("Expected 5 remaining, got %d", remaining)
	}

	if dec := bucket.Take(5); !dec.Allowed {
		t.Error("Expected to take remaining 5 tokens")
	}

	dec = bucket.Take(1)
	if dec.Allowed {
		t.Error("Expected bucket to be empty")
	}
	if dec.RetryAfter <= 0 {
		t.Errorf("Expected positive RetryAfter on deny, got %v", dec.RetryAfter)
	}
}

func TestTokenBucket_Refill(t *testing.T) {
	bucket := NewTokenBucket(10, 10)

	bucket.Take(10)
	if bucket.Remaining() != 0 {
		t.Error("Expected bucket to be empty")
	}

	// 150ms at 10 tokens/sec refills at least one token.
	time.Sleep(150 * time.Millisecond)

	if dec := bucket.Take(1); !dec.Allowed {
		t.Error("Expected bucket to have refilled")
	}
}

func TestTokenBucket_CapacityLimit(t *testing.T) {
	bucket := NewTokenBucket(10, 1000)

	time.Sleep(50 * time.Millisecond)

	if bucket.Remaining() > 10 {
		t.Errorf("Bucket exceeded capacity: %d", bucket.Remaining())
	}
}

func TestTokenBucket_RetryAfter(t *testing.T) {
	bucket := NewTokenBucket(10, 10) // 10 tokens/sec

	bucket.Take(10)
	dec := bucket.Take(5)
	if dec.Allowed {
		t.Fatal("Expected deny from drained bucket")
	}

	// 5 tokens at 10/sec is approximately 500ms.
	if dec.RetryAfter < 400*time.Millisecond || dec.RetryAfter > 600*time.Millisecond {
		t.Errorf("Expected ~500ms RetryAfter, got %v", dec.RetryAfter)
	}
}

func TestTokenBucket_Concurrent(t *testing.T) {
	bucket := NewTokenBucket(1000, 100)

	var wg sync.WaitGroup
	successCount := 0
	var mu sync.Mutex

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if bucket.Take(1).Allowed {
				mu.Lock()
				successCount++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	if successCount != 100 {
		t.Errorf("Expected 100 successes, got %d", successCount)
	}
}

// ============================================================================
// Sliding Window Tests
// ============================================================================

func TestSlidingWindow_Basic(t *testing.T) {
	sw := NewSlidingWindow(time.Minute)

	for i := 0; i < 5; i++ {
		if dec := sw.Take(5, 1); !dec.Allowed {
			t.Fatalf("Request %d unexpectedly denied", i)
		}
	}

	dec := sw.Take(5, 1)
	if dec.Allowed {
		t.Error("Expected 6th request to be denied at limit 5")
	}
	if dec.RetryAfter <= 0 {
		t.Errorf("Expected positive RetryAfter, got %v", dec.RetryAfter)
	}
}

func TestSlidingWindow_Estimate(t *testing.T) {
	sw := NewSlidingWindow(time.Minute)

	sw.Take(100, 1)
	sw.Take(100, 1)
	sw.Take(100, 1)

	if got := sw.Estimate(); got != 3 {
		t.Errorf("Expected estimate 3, got %d", got)
	}
}

func TestSlidingWindow_PreviousWindowWeight(t *testing.T) {
	sw := NewSlidingWindow(100 * time.Millisecond)

	// Fill the current window, then cross the boundary. The previous count
	// still weighs on the blended estimate until it ages out.
	for i := 0; i < 10; i++ {
		sw.Take(100, 1)
	}

	time.Sleep(110 * time.Millisecond)

	est := sw.Estimate()
	if est < 0 || est > 10 {
		t.Errorf("Expected blended estimate in [0, 10], got %d", est)
	}

	// After the previous window's span fully ages out, the estimate drops
	// to zero.
	time.Sleep(220 * time.Millisecond)
	if est := sw.Estimate(); est != 0 {
		t.Errorf("Expected estimate 0 after expiry, got %d", est)
	}
}

func TestSlidingWindow_EffectiveLimitPerCall(t *testing.T) {
	sw := NewSlidingWindow(time.Minute)

	for i := 0; i < 10; i++ {
		sw.Take(100, 1)
	}

	// The limit is a parameter: lowering it mid-window denies immediately.
	if dec := sw.Take(10, 1); dec.Allowed {
		t.Error("Expected deny after limit lowered to current usage")
	}
	if dec := sw.Take(100, 1); !dec.Allowed {
		t.Error("Expected allow under the higher limit")
	}
}

func TestSlidingWindow_Reset(t *testing.T) {
	sw := NewSlidingWindow(time.Minute)

	sw.Take(100, 50)
	sw.Reset()

	if got := sw.Estimate(); got != 0 {
		t.Errorf("Expected 0 after reset, got %d", got)
	}
}

func TestSlidingWindow_Concurrent(t *testing.T) {
	sw := NewSlidingWindow(time.Minute)

	var wg sync.WaitGroup
	allowed := int64(0)
	var mu sync.Mutex

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sw.Take(50, 1).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	if allowed != 50 {
		t.Errorf("Expected exactly 50 allowed under limit 50, got %d", allowed)
	}
}

// ============================================================================
// Fixed Window Tests
// ============================================================================

func TestFixedWindow_Basic(t *testing.T) {
	fw := NewFixedWindow(time.Minute)

	for i := 0; i < 3; i++ {
		if dec := fw.Take(3, 1); !dec.Allowed {
			t.Fatalf("Request %d unexpectedly denied", i)
		}
	}

	if dec := fw.Take(3, 1); dec.Allowed {
		t.Error("Expected deny past limit 3")
	}

	if got := fw.Count(); got != 3 {
		t.Errorf("Expected count 3, got %d", got)
	}
}

func TestFixedWindow_BoundaryReset(t *testing.T) {
	fw := NewFixedWindow(50 * time.Millisecond)

	fw.Take(1, 1)
	if dec := fw.Take(1, 1); dec.Allowed {
		t.Error("Expected deny at limit inside window")
	}

	time.Sleep(60 * time.Millisecond)

	if dec := fw.Take(1, 1); !dec.Allowed {
		t.Error("Expected counter to reset at window boundary")
	}
}

// ============================================================================
// Concurrent Limiter Tests
// ============================================================================

func TestConcurrentLimiter_Basic(t *testing.T) {
	cl := NewConcurrentLimiter(2)

	if !cl.Acquire() || !cl.Acquire() {
		t.Fatal("Expected first two acquires to succeed")
	}
	if cl.Acquire() {
		t.Error("Expected third acquire to fail at limit 2")
	}

	cl.Release()
	if !cl.Acquire() {
		t.Error("Expected acquire to succeed after release")
	}
}

func TestConcurrentLimiter_ReleaseWithoutAcquire(t *testing.T) {
	cl := NewConcurrentLimiter(2)

	cl.Release()
	cl.Release()
	if got := cl.Current(); got != 0 {
		t.Fatalf("Current() = %d after unmatched releases, want 0", got)
	}

	// The ceiling must still hold: two slots, not four.
	if !cl.Acquire() || !cl.Acquire() {
		t.Fatal("Expected first two acquires to succeed")
	}
	if cl.Acquire() {
		t.Error("Expected third acquire to fail at limit 2")
	}
}

func TestConcurrentLimiter_Disabled(t *testing.T) {
	cl := NewConcurrentLimiter(0)

	for i := 0; i < 100; i++ {
		if !cl.Acquire() {
			t.Fatal("Disabled limiter should always acquire")
		}
	}
}
