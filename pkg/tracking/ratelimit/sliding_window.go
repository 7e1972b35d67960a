package ratelimit

import (
	"sync"
	"time"
)

// SlidingWindow implements a sliding window counter in O(1) memory.
//
// Instead of keeping a log of request timestamps, it keeps counts for the
// current and the immediately preceding fixed window and weights the previous
// window's count by the fraction of its span still inside the sliding view:
//
//	estimate = current + previous * (1 - elapsedFractionOfCurrentWindow)
//
// A request is allowed iff estimate < limit. This smooths the edge-burst
// problem of fixed windows: a burst at the end of one window and the start of
// the next is still counted against the blended estimate.
//
// # Thread Safety
//
// SlidingWindow is safe for concurrent use; operations are guarded by a
// mutex per instance.
type SlidingWindow struct {
	window        time.Duration
	currentStart  time.Time
	currentCount  int64
	previousCount int64
	mu            sync.Mutex
}

// NewSlidingWindow creates a sliding window counter over the given span
// (for example time.Minute or time.Hour).
func NewSlidingWindow(window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		window:       window,
		currentStart: time.Now().Truncate(window),
	}
}

// Take attempts to consume cost units against the given limit.
// The limit is a parameter rather than state so that callers can recompute
// the effective limit per decision (tier and time-window multipliers change
// over time).
func (sw *SlidingWindow) Take(limit int64, cost int64) Decision {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := time.Now()
	sw.rotateLocked(now)

	elapsed := now.Sub(sw.currentStart)
	weight := 1.0 - float64(elapsed)/float64(sw.window)
	estimate := float64(sw.currentCount) + float64(sw.previousCount)*weight

	reset := sw.currentStart.Add(sw.window)
	remaining := limit - int64(estimate)
	if remaining < 0 {
		remaining = 0
	}

	if int64(estimate)+cost > limit {
		return Decision{
			Allowed:    false,
			Remaining:  remaining,
			Reset:      reset,
			RetryAfter: time.Until(reset),
		}
	}

	sw.currentCount += cost
	return Decision{
		Allowed:   true,
		Remaining: remaining - cost,
		Reset:     reset,
	}
}

// Estimate returns the current blended count without consuming anything.
func (sw *SlidingWindow) Estimate() int64 {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := time.Now()
	sw.rotateLocked(now)

	elapsed := now.Sub(sw.currentStart)
	weight := 1.0 - float64(elapsed)/float64(sw.window)
	return sw.currentCount + int64(float64(sw.previousCount)*weight)
}

// Reset clears both windows.
func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.currentStart = time.Now().Truncate(sw.window)
	sw.currentCount = 0
	sw.previousCount = 0
}

// rotateLocked advances the window pair to cover now.
// Caller must hold the lock.
func (sw *SlidingWindow) rotateLocked(now time.Time) {
	start := now.Truncate(sw.window)
	switch {
	case start.Equal(sw.currentStart):
		// Still in the current window.
	case start.Sub(sw.currentStart) == sw.window:
		// Advanced exactly one window; current becomes previous.
		sw.previousCount = sw.currentCount
		sw.currentCount = 0
		sw.currentStart = start
	default:
		// Skipped at least one full window; both counts are stale.
		sw.previousCount = 0
		sw.currentCount = 0
		sw.currentStart = start
	}
}
