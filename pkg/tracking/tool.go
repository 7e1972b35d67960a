package tracking

import (
	"log/slog"
	"time"

	"mercator-hq/ganymede/pkg/tracking/rules"
)

// ToolTracker tracks and limits requests per invoked tool. The tracker only
// participates when the request names a tool and a rule exists for it;
// untracked tools pass through but are still counted for statistics.
type ToolTracker struct {
	cache  *keyCache
	rules  *rules.Manager
	logger *slog.Logger
}

// NewToolTracker creates a tool dimension tracker.
func NewToolTracker(cfg CacheConfig, mgr *rules.Manager, logger *slog.Logger) *ToolTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolTracker{
		cache:  newKeyCache(cfg),
		rules:  mgr,
		logger: logger.With("component", "tracking.tool"),
	}
}

// AddRequest records the request and returns the tool dimension's verdict.
// Requests without a tool name, or naming a tool with no configured rule,
// are always allowed.
func (t *ToolTracker) AddRequest(m *RequestMetrics) Verdict {
	if m.ToolName == "" {
		return Verdict{Allowed: true}
	}

	now := time.Now()
	rule, ok := t.rules.ToolRule(m.ToolName, now)
	if !ok {
		t.cache.getOrCreate(m.ToolName).record(m, false, now)
		return Verdict{Allowed: true}
	}

	dec := t.cache.getOrCreate(m.ToolName).check(m, rule, now)
	if dec.Allowed {
		return Verdict{Allowed: true}
	}

	return Verdict{
		Allowed:    false,
		Reason:     "tool rate limit exceeded",
		Dimension:  DimensionTool,
		RetryAfter: dec.RetryAfter,
		Reset:      dec.Reset,
	}
}

// Record counts a request against the tool without quota evaluation.
func (t *ToolTracker) Record(m *RequestMetrics, blocked bool) {
	if m.ToolName == "" {
		return
	}
	t.cache.getOrCreate(m.ToolName).record(m, blocked, time.Now())
}

// Stats returns a read-only snapshot for one tool.
func (t *ToolTracker) Stats(tool string) (KeyStats, bool) {
	agg, ok := t.cache.peek(tool)
	if !ok {
		return KeyStats{}, false
	}
	return agg.snapshot(tool), true
}

// TrackerStats summarizes the tracker's cache.
func (t *ToolTracker) TrackerStats() TrackerStats {
	return TrackerStats{
		Dimension:   DimensionTool,
		TrackedKeys: t.cache.len(),
		MaxSize:     t.cache.cfg.MaxSize,
		TTL:         t.cache.cfg.TTL.String(),
	}
}
