package tracking

import (
	"log/slog"
	"time"

	"mercator-hq/ganymede/pkg/tracking/rules"
)

// UserTracker tracks and limits requests per authenticated user. Limits come
// from the user's assigned tier, composed with any active time windows at
// decision time. Requests without a user identity fall under the shared
// sentinel key so anonymous traffic still shows up in statistics.
type UserTracker struct {
	cache  *keyCache
	rules  *rules.Manager
	logger *slog.Logger
}

// NewUserTracker creates a user dimension tracker.
func NewUserTracker(cfg CacheConfig, mgr *rules.Manager, logger *slog.Logger) *UserTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserTracker{
		cache:  newKeyCache(cfg),
		rules:  mgr,
		logger: logger.With("component", "tracking.user"),
	}
}

func (t *UserTracker) key(m *RequestMetrics) string {
	if m.UserID == "" {
		return UnknownKey
	}
	return m.UserID
}

// AddRequest records the request and returns the user dimension's verdict.
// The tier's concurrency ceiling is checked before the rate quota; a request
// admitted here holds an in-flight slot the caller must release with Done.
func (t *UserTracker) AddRequest(m *RequestMetrics) Verdict {
	key := t.key(m)
	now := time.Now()
	agg := t.cache.getOrCreate(key)
	tier := t.rules.UserTier(m.UserID)

	if !agg.acquireSlot(tier.MaxConcurrent) {
		agg.record(m, true, now)
		return Verdict{
			Allowed:   false,
			Reason:    "user concurrency ceiling reached",
			Dimension: DimensionUser,
		}
	}

	rule := t.rules.EffectiveUserLimit(m.UserID, now)
	dec := agg.check(m, rule, now)
	if dec.Allowed {
		return Verdict{Allowed: true}
	}

	agg.releaseSlot()
	return Verdict{
		Allowed:    false,
		Reason:     "user rate limit exceeded",
		Dimension:  DimensionUser,
		RetryAfter: dec.RetryAfter,
		Reset:      dec.Reset,
	}
}

// Done releases the in-flight slot held by an admitted request.
func (t *UserTracker) Done(m *RequestMetrics) {
	if agg, ok := t.cache.peek(t.key(m)); ok {
		agg.releaseSlot()
	}
}

// Record counts a request against the user without quota evaluation.
func (t *UserTracker) Record(m *RequestMetrics, blocked bool) {
	t.cache.getOrCreate(t.key(m)).record(m, blocked, time.Now())
}

// Stats returns a read-only snapshot for one user, annotated with the
// user's current tier.
func (t *UserTracker) Stats(userID string) (KeyStats, bool) {
	agg, ok := t.cache.peek(userID)
	if !ok {
		return KeyStats{}, false
	}
	stats := agg.snapshot(userID)
	stats.Tier = t.rules.UserTier(userID).Name
	return stats, true
}

// TrackerStats summarizes the tracker's cache.
func (t *UserTracker) TrackerStats() TrackerStats {
	return TrackerStats{
		Dimension:   DimensionUser,
		TrackedKeys: t.cache.len(),
		MaxSize:     t.cache.cfg.MaxSize,
		TTL:         t.cache.cfg.TTL.String(),
	}
}
