package ratelimit

import (
	"sync"
	"time"
)

// FixedWindow implements a fixed window counter: a single counter reset at a
// deterministic, aligned window boundary (for example the top of each minute).
//
// Fixed windows permit up to 2x the nominal limit around a boundary (a burst
// at the end of one window plus a burst at the start of the next). That is an
// accepted approximation here: this limiter is used for coarse, high-volume
// dimensions such as distributed global ceilings, where low coordination
// overhead matters more than exactness.
type FixedWindow struct {
	window      time.Duration
	windowStart time.Time
	count       int64
	mu          sync.Mutex
}

// NewFixedWindow creates a fixed window counter over the given span.
func NewFixedWindow(window time.Duration) *FixedWindow {
	return &FixedWindow{
		window:      window,
		windowStart: time.Now().Truncate(window),
	}
}

// Take attempts to consume cost units against the given limit.
func (fw *FixedWindow) Take(limit int64, cost int64) Decision {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	now := time.Now()
	start := now.Truncate(fw.window)
	if !start.Equal(fw.windowStart) {
		fw.windowStart = start
		fw.count = 0
	}

	reset := fw.windowStart.Add(fw.window)
	if fw.count+cost > limit {
		remaining := limit - fw.count
		if remaining < 0 {
			remaining = 0
		}
		return Decision{
			Allowed:    false,
			Remaining:  remaining,
			Reset:      reset,
			RetryAfter: time.Until(reset),
		}
	}

	fw.count += cost
	return Decision{
		Allowed:   true,
		Remaining: limit - fw.count,
		Reset:     reset,
	}
}

// Count returns the counter value for the current window.
func (fw *FixedWindow) Count() int64 {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if !time.Now().Truncate(fw.window).Equal(fw.windowStart) {
		return 0
	}
	return fw.count
}

// Reset clears the counter.
func (fw *FixedWindow) Reset() {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	fw.windowStart = time.Now().Truncate(fw.window)
	fw.count = 0
}
