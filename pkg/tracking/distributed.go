package tracking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"mercator-hq/ganymede/pkg/tracking/store"
)

// FallbackPolicy decides what happens to a request when the shared counter
// store cannot be reached.
type FallbackPolicy string

const (
	// FailOpen admits requests when the store is unavailable. Availability
	// over strictness; a store outage never turns into a client outage.
	FailOpen FallbackPolicy = "fail_open"

	// FailClosed denies requests when the store is unavailable.
	FailClosed FallbackPolicy = "fail_closed"
)

// Valid reports whether p is a recognized policy.
func (p FallbackPolicy) Valid() bool {
	return p == FailOpen || p == FailClosed
}

// DistributedTracker enforces a quota shared across instances through a
// counter store. Counting is fixed-window: the store atomically increments
// an aligned-window key and reports the remaining window lifetime, so every
// instance sees the same count without coordination beyond the store itself.
type DistributedTracker struct {
	store     store.Store
	dimension Dimension
	window    time.Duration
	limit     int64
	fallback  FallbackPolicy
	observer  Observer
	logger    *slog.Logger
}

// NewDistributedTracker creates a tracker sharing counts through st. The
// dimension selects the key each request counts against: DimensionGlobal
// uses a single shared key, DimensionUser and DimensionIP key per identity.
func NewDistributedTracker(st store.Store, dimension Dimension, window time.Duration, limit int64, fallback FallbackPolicy, observer Observer, logger *slog.Logger) *DistributedTracker {
	if window <= 0 {
		window = time.Minute
	}
	if !fallback.Valid() {
		fallback = FailOpen
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DistributedTracker{
		store:     st,
		dimension: dimension,
		window:    window,
		limit:     limit,
		fallback:  fallback,
		observer:  observer,
		logger:    logger.With("component", "tracking.distributed"),
	}
}

func (t *DistributedTracker) key(m *RequestMetrics) string {
	switch t.dimension {
	case DimensionUser:
		if m.UserID == "" {
			return string(DimensionUser) + ":" + UnknownKey
		}
		return string(DimensionUser) + ":" + m.UserID
	case DimensionIP:
		return string(DimensionIP) + ":" + m.IPKey()
	default:
		return string(DimensionGlobal)
	}
}

// AddRequest counts the request against the shared window and returns the
// verdict. A store failure falls back per policy and never blocks the
// caller beyond the store's own call timeout.
func (t *DistributedTracker) AddRequest(ctx context.Context, m *RequestMetrics) Verdict {
	if t.limit <= 0 {
		return Verdict{Allowed: true}
	}

	count, ttl, err := t.store.IncrementAndGet(ctx, t.key(m), t.window)
	if err != nil {
		if t.observer != nil {
			t.observer.ObserveStoreError()
		}
		if errors.Is(err, store.ErrUnavailable) {
			t.logger.Warn("counter store unavailable",
				"policy", string(t.fallback),
				"error", err)
		} else {
			t.logger.Error("counter store error", "error", err)
		}
		if t.fallback == FailClosed {
			return Verdict{
				Allowed:   false,
				Reason:    "shared counter unavailable",
				Dimension: t.dimension,
			}
		}
		return Verdict{Allowed: true}
	}

	if count > t.limit {
		return Verdict{
			Allowed:    false,
			Reason:     "shared rate limit exceeded",
			Dimension:  t.dimension,
			RetryAfter: ttl,
			Reset:      time.Now().Add(ttl),
		}
	}
	return Verdict{Allowed: true}
}

// Limit returns the configured per-window ceiling.
func (t *DistributedTracker) Limit() int64 { return t.limit }

// Window returns the counting window.
func (t *DistributedTracker) Window() time.Duration { return t.window }
