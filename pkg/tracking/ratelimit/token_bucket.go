package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket implements the token bucket rate limiting algorithm.
//
// The bucket allows bursts up to its capacity while maintaining an average
// rate over time. Tokens are refilled lazily on each check, so an idle bucket
// costs nothing between requests.
//
// # Algorithm
//
//  1. Refill: tokens = min(capacity, tokens + elapsedSeconds * refillRate)
//  2. If tokens >= cost: consume and allow
//  3. Otherwise: reject and report how long until cost tokens are available
//
// # Thread Safety
//
// TokenBucket is safe for concurrent use; all operations are guarded by a
// single mutex per instance.
type TokenBucket struct {
	capacity   int64
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a token bucket that holds at most capacity tokens
// and refills at refillRate tokens per second. The bucket starts full.
func NewTokenBucket(capacity int64, refillRate float64) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     float64(capacity),
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Take attempts to consume cost tokens and reports the full decision.
func (tb *TokenBucket) Take(cost int64) Decision {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	tb.refillLocked(now)

	if tb.tokens >= float64(cost) {
		tb.tokens -= float64(cost)
		return Decision{
			Allowed:   true,
			Remaining: int64(tb.tokens),
			Reset:     tb.fullAtLocked(now),
		}
	}

	wait := tb.timeUntilLocked(cost)
	return Decision{
		Allowed:    false,
		Remaining:  int64(tb.tokens),
		Reset:      now.Add(wait),
		RetryAfter: wait,
	}
}

// Remaining returns the number of whole tokens currently available.
func (tb *TokenBucket) Remaining() int64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked(time.Now())
	return int64(tb.tokens)
}

// Capacity returns the maximum bucket capacity.
func (tb *TokenBucket) Capacity() int64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.capacity
}

// Reset refills the bucket to capacity. Primarily for tests and manual
// limit resets through the admin surface.
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = float64(tb.capacity)
	tb.lastRefill = time.Now()
}

// refillLocked adds tokens for the time elapsed since the last refill.
// Caller must hold the lock.
func (tb *TokenBucket) refillLocked(now time.Time) {
	elapsed := now.Sub(tb.lastRefill)
	if elapsed <= 0 {
		return
	}

	tb.tokens += elapsed.Seconds() * tb.refillRate
	if tb.tokens > float64(tb.capacity) {
		tb.tokens = float64(tb.capacity)
	}
	tb.lastRefill = now
}

// timeUntilLocked returns how long until cost tokens will be available.
// Caller must hold the lock and have refilled first.
func (tb *TokenBucket) timeUntilLocked(cost int64) time.Duration {
	deficit := float64(cost) - tb.tokens
	if deficit <= 0 {
		return 0
	}
	if tb.refillRate <= 0 {
		// Never refills; report the window-less worst case.
		return time.Hour
	}
	return time.Duration(deficit / tb.refillRate * float64(time.Second))
}

// fullAtLocked returns when the bucket will be back at capacity.
// Caller must hold the lock.
func (tb *TokenBucket) fullAtLocked(now time.Time) time.Time {
	deficit := float64(tb.capacity) - tb.tokens
	if deficit <= 0 || tb.refillRate <= 0 {
		return now
	}
	return now.Add(time.Duration(deficit / tb.refillRate * float64(time.Second)))
}
