package tracking

import (
	"context"
	"log/slog"
	"time"

	"mercator-hq/ganymede/pkg/tracking/rules"
	"mercator-hq/ganymede/pkg/tracking/store"
)

// Auditor receives every admission decision for durable logging. The SQLite
// recorder in pkg/tracking/audit implements it; a nil auditor disables
// auditing.
type Auditor interface {
	RecordDecision(m *RequestMetrics, v Verdict)
}

// Config configures the orchestrating tracker and its dimensions.
type Config struct {
	IPCache   CacheConfig
	UserCache CacheConfig
	ToolCache CacheConfig

	// SharedStore enables cross-instance counting when non-nil.
	SharedStore     store.Store
	SharedDimension Dimension
	SharedWindow    time.Duration
	SharedLimit     int64
	Fallback        FallbackPolicy
}

// ComprehensiveStats is the full monitoring snapshot served by the admin
// surface.
type ComprehensiveStats struct {
	Timestamp  time.Time               `json:"timestamp"`
	Trackers   []TrackerStats          `json:"trackers"`
	Rules      rules.MonitoringStats   `json:"rules"`
	BlockedIPs []BlockEntry            `json:"blocked_ips"`
	Shared     *DistributedTrackerInfo `json:"shared,omitempty"`
}

// DistributedTrackerInfo describes the shared counting configuration.
type DistributedTrackerInfo struct {
	Dimension Dimension `json:"dimension"`
	Window    string    `json:"window"`
	Limit     int64     `json:"limit"`
	Fallback  string    `json:"fallback"`
}

// RequestTracker combines the per-dimension trackers into one admission
// decision.
//
// Evaluation order per request:
//
//  1. Blocked IP. An unconditional deny; no quota is consumed anywhere,
//     but the request is still counted on every dimension.
//  2. Admin override. Admin users bypass all quotas; the request is
//     counted on every dimension as allowed.
//  3. All remaining dimensions, every one evaluated even after a denial
//     so that denied traffic stays fully visible in per-key statistics.
//     The combined verdict is the AND of the dimension verdicts, reported
//     with the first denying dimension.
type RequestTracker struct {
	ip     *IPTracker
	user   *UserTracker
	tool   *ToolTracker
	shared *DistributedTracker

	rules    *rules.Manager
	observer Observer
	auditor  Auditor
	logger   *slog.Logger
}

// NewRequestTracker builds the orchestrator and its dimension trackers.
func NewRequestTracker(cfg Config, mgr *rules.Manager, observer Observer, logger *slog.Logger) *RequestTracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &RequestTracker{
		ip:       NewIPTracker(cfg.IPCache, mgr, logger),
		user:     NewUserTracker(cfg.UserCache, mgr, logger),
		tool:     NewToolTracker(cfg.ToolCache, mgr, logger),
		rules:    mgr,
		observer: observer,
		logger:   logger.With("component", "tracking"),
	}
	if cfg.SharedStore != nil && cfg.SharedLimit > 0 {
		t.shared = NewDistributedTracker(cfg.SharedStore, cfg.SharedDimension,
			cfg.SharedWindow, cfg.SharedLimit, cfg.Fallback, observer, logger)
	}
	return t
}

// SetAuditor installs a decision auditor. Safe to call once during startup,
// before the first request.
func (t *RequestTracker) SetAuditor(a Auditor) {
	t.auditor = a
}

// TrackRequest records the request on every dimension and returns the
// combined admission verdict. An allowed request holds a user concurrency
// slot until Finish is called.
func (t *RequestTracker) TrackRequest(ctx context.Context, m *RequestMetrics) Verdict {
	start := time.Now()
	if m.Timestamp.IsZero() {
		m.Timestamp = start
	}

	verdict := t.evaluate(ctx, m)

	if t.observer != nil {
		elapsed := time.Since(start)
		t.observer.ObserveDecision(string(verdict.Dimension), verdict.Allowed, elapsed)
		t.observer.SetTrackedKeys(string(DimensionIP), t.ip.cache.len())
		t.observer.SetTrackedKeys(string(DimensionUser), t.user.cache.len())
		t.observer.SetTrackedKeys(string(DimensionTool), t.tool.cache.len())
	}
	if t.auditor != nil {
		t.auditor.RecordDecision(m, verdict)
	}
	if !verdict.Allowed {
		t.logger.Debug("request denied",
			"dimension", string(verdict.Dimension),
			"reason", verdict.Reason,
			"ip", m.SourceIP,
			"user", m.UserID,
			"tool", m.ToolName)
	}
	return verdict
}

func (t *RequestTracker) evaluate(ctx context.Context, m *RequestMetrics) Verdict {
	if entry, blocked := t.ip.BlockedEntry(m.IPKey()); blocked {
		t.ip.Record(m, true)
		t.user.Record(m, true)
		t.tool.Record(m, true)
		return Verdict{
			Allowed:   false,
			Reason:    "ip blocked: " + entry.Reason,
			Dimension: DimensionIP,
		}
	}

	if m.UserID != "" && t.rules.IsAdmin(m.UserID) {
		t.ip.Record(m, false)
		t.user.Record(m, false)
		t.tool.Record(m, false)
		return Verdict{Allowed: true}
	}

	// Every dimension runs even after a denial so denied traffic still
	// counts toward each key's statistics. The first denial wins.
	verdict := Verdict{Allowed: true}
	userAdmitted := false

	if v := t.ip.AddRequest(m); !v.Allowed && verdict.Allowed {
		verdict = v
	}
	if v := t.user.AddRequest(m); v.Allowed {
		userAdmitted = true
	} else if verdict.Allowed {
		verdict = v
	}
	if v := t.tool.AddRequest(m); !v.Allowed && verdict.Allowed {
		verdict = v
	}
	if t.shared != nil {
		if v := t.shared.AddRequest(ctx, m); !v.Allowed && verdict.Allowed {
			verdict = v
		}
	}

	// A slot acquired for a request another dimension then denied would
	// leak, since the caller never sees an admitted request to Finish.
	if !verdict.Allowed && userAdmitted {
		t.user.Done(m)
	}
	return verdict
}

// Finish completes an admitted request: it releases the user concurrency
// slot and folds the measured response time into each dimension's stats.
// Call it exactly once per request TrackRequest admitted, and never for a
// denied request.
func (t *RequestTracker) Finish(m *RequestMetrics) {
	t.user.Done(m)
	if m.ResponseTimeMillis <= 0 {
		return
	}
	if agg, ok := t.ip.cache.peek(m.IPKey()); ok {
		agg.observeResponse(m.ResponseTimeMillis)
	}
	if agg, ok := t.user.cache.peek(t.user.key(m)); ok {
		agg.observeResponse(m.ResponseTimeMillis)
	}
	if m.ToolName != "" {
		if agg, ok := t.tool.cache.peek(m.ToolName); ok {
			agg.observeResponse(m.ResponseTimeMillis)
		}
	}
}

// BlockIP denies all traffic from ip until UnblockIP.
func (t *RequestTracker) BlockIP(ip, reason string) {
	t.ip.Block(ip, reason)
}

// UnblockIP lifts a block.
func (t *RequestTracker) UnblockIP(ip string) {
	t.ip.Unblock(ip)
}

// SetUserTier assigns a user to a configured tier.
func (t *RequestTracker) SetUserTier(userID, tier string) error {
	return t.rules.AssignUserTier(userID, tier)
}

// SetToolLimits installs or replaces the limit rule for a tool.
func (t *RequestTracker) SetToolLimits(tool string, rule rules.LimitRule) error {
	return t.rules.SetToolRule(tool, rule)
}

// IPStats returns the snapshot for one IP.
func (t *RequestTracker) IPStats(ip string) (KeyStats, bool) { return t.ip.Stats(ip) }

// UserStats returns the snapshot for one user.
func (t *RequestTracker) UserStats(userID string) (KeyStats, bool) { return t.user.Stats(userID) }

// ToolStats returns the snapshot for one tool.
func (t *RequestTracker) ToolStats(tool string) (KeyStats, bool) { return t.tool.Stats(tool) }

// Rules exposes the configuration manager for the admin surface and hot
// reload.
func (t *RequestTracker) Rules() *rules.Manager { return t.rules }

// Stats assembles the full monitoring snapshot. Reading it never disturbs
// any tracker's eviction order.
func (t *RequestTracker) Stats() ComprehensiveStats {
	stats := ComprehensiveStats{
		Timestamp: time.Now(),
		Trackers: []TrackerStats{
			t.ip.TrackerStats(),
			t.user.TrackerStats(),
			t.tool.TrackerStats(),
		},
		Rules:      t.rules.MonitoringStats(),
		BlockedIPs: t.ip.BlockedList(),
	}
	if t.shared != nil {
		stats.Shared = &DistributedTrackerInfo{
			Dimension: t.shared.dimension,
			Window:    t.shared.window.String(),
			Limit:     t.shared.limit,
			Fallback:  string(t.shared.fallback),
		}
	}
	return stats
}
