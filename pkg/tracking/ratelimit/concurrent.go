package ratelimit

import "sync/atomic"

// ConcurrentLimiter caps the number of simultaneous in-flight requests.
// It is a counting semaphore built on atomic operations, so acquiring and
// releasing a slot never takes a lock.
type ConcurrentLimiter struct {
	limit   int64
	current int64
}

// NewConcurrentLimiter creates a limiter allowing at most limit simultaneous
// requests. A limit of zero or below disables the limiter (Acquire always
// succeeds).
func NewConcurrentLimiter(limit int) *ConcurrentLimiter {
	return &ConcurrentLimiter{limit: int64(limit)}
}

// Acquire attempts to take a slot. On success the caller MUST call Release
// when done:
//
//	if limiter.Acquire() {
//	    defer limiter.Release()
//	    // ... handle request ...
//	}
func (cl *ConcurrentLimiter) Acquire() bool {
	if cl.limit <= 0 {
		return true
	}
	if atomic.AddInt64(&cl.current, 1) > cl.limit {
		atomic.AddInt64(&cl.current, -1)
		return false
	}
	return true
}

// Release returns a slot taken by a successful Acquire. A Release without a
// matching Acquire is a no-op: the count never goes below zero, so a caller
// whose request bypassed Acquire (an admin promoted mid-flight) cannot
// inflate the ceiling for everyone else.
func (cl *ConcurrentLimiter) Release() {
	if cl.limit <= 0 {
		return
	}
	for {
		cur := atomic.LoadInt64(&cl.current)
		if cur <= 0 {
			return
		}
		if atomic.CompareAndSwapInt64(&cl.current, cur, cur-1) {
			return
		}
	}
}

// Current returns the number of in-flight requests.
func (cl *ConcurrentLimiter) Current() int64 {
	return atomic.LoadInt64(&cl.current)
}

// Limit returns the configured ceiling.
func (cl *ConcurrentLimiter) Limit() int64 {
	return cl.limit
}
