package tracking

import (
	"context"
	"fmt"
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/tracking/rules"
)

func newTestTracker(t *testing.T, mgr *rules.Manager) *RequestTracker {
	t.Helper()
	return NewRequestTracker(Config{}, mgr, nil, nil)
}

// ====== Combined Verdict Tests ======

func TestRequestTracker_AllowsWithinAllLimits(t *testing.T) {
	rt := newTestTracker(t, newTestManager(t))
	v := rt.TrackRequest(context.Background(), testMetrics("192.0.2.1", "bruno", ""))
	if !v.Allowed {
		t.Fatalf("first request denied: %s", v.Reason)
	}
	rt.Finish(testMetrics("192.0.2.1", "bruno", ""))
}

func TestRequestTracker_FirstDenyingDimensionWins(t *testing.T) {
	mgr := newTestManager(t)
	if err := mgr.SetToolRule("export", rules.LimitRule{PerMinute: 1, PerHour: 100}); err != nil {
		t.Fatalf("SetToolRule() error = %v", err)
	}
	rt := newTestTracker(t, mgr)
	ctx := context.Background()

	if v := rt.TrackRequest(ctx, testMetrics("192.0.2.1", "bruno", "export")); !v.Allowed {
		t.Fatalf("first request denied: %s", v.Reason)
	}
	// Second request is within the IP and user windows (limit 3) but over
	// the tool rule, so the tool dimension must be the one reported.
	v := rt.TrackRequest(ctx, testMetrics("192.0.2.1", "bruno", "export"))
	if v.Allowed {
		t.Fatal("request over tool limit was allowed")
	}
	if v.Dimension != DimensionTool {
		t.Errorf("Dimension = %q, want %q", v.Dimension, DimensionTool)
	}
}

func TestRequestTracker_BlockedIPCountsOnAllDimensions(t *testing.T) {
	rt := newTestTracker(t, newTestManager(t))
	rt.BlockIP("192.0.2.9", "manual")

	v := rt.TrackRequest(context.Background(), testMetrics("192.0.2.9", "bruno", "export"))
	if v.Allowed {
		t.Fatal("request from blocked IP was allowed")
	}
	if v.Dimension != DimensionIP {
		t.Errorf("Dimension = %q, want %q", v.Dimension, DimensionIP)
	}

	for _, tc := range []struct {
		name  string
		stats func() (KeyStats, bool)
	}{
		{"ip", func() (KeyStats, bool) { return rt.IPStats("192.0.2.9") }},
		{"user", func() (KeyStats, bool) { return rt.UserStats("bruno") }},
		{"tool", func() (KeyStats, bool) { return rt.ToolStats("export") }},
	} {
		stats, ok := tc.stats()
		if !ok {
			t.Errorf("%s: no stats entry for blocked traffic", tc.name)
			continue
		}
		if stats.TotalRequests != 1 || stats.BlockedRequests != 1 {
			t.Errorf("%s: total/blocked = %d/%d, want 1/1",
				tc.name, stats.TotalRequests, stats.BlockedRequests)
		}
	}
}

func TestRequestTracker_AdminBypassesAllLimits(t *testing.T) {
	mgr := newTestManager(t)
	mgr.AddAdmin("root")
	rt := newTestTracker(t, mgr)
	ctx := context.Background()

	// Far past the per-minute limit of 3; every request still goes through.
	for i := 0; i < 20; i++ {
		if v := rt.TrackRequest(ctx, testMetrics("192.0.2.1", "root", "")); !v.Allowed {
			t.Fatalf("admin request %d denied: %s", i+1, v.Reason)
		}
	}
	stats, ok := rt.UserStats("root")
	if !ok {
		t.Fatal("admin traffic left no stats")
	}
	if stats.TotalRequests != 20 {
		t.Errorf("TotalRequests = %d, want 20", stats.TotalRequests)
	}
	if stats.BlockedRequests != 0 {
		t.Errorf("BlockedRequests = %d, want 0", stats.BlockedRequests)
	}
}

func TestRequestTracker_PromotedAdminFinishKeepsCeiling(t *testing.T) {
	mgr := newTestManager(t, rules.Tier{
		Name:          "basic",
		Rule:          rules.LimitRule{PerMinute: 1000, PerHour: 1000},
		Multiplier:    1.0,
		MaxConcurrent: 2,
	})
	rt := newTestTracker(t, mgr)
	ctx := context.Background()
	m := testMetrics("192.0.2.1", "mallory", "")

	// Ordinary traffic creates the user's limiter before the promotion.
	if v := rt.TrackRequest(ctx, m); !v.Allowed {
		t.Fatalf("request denied: %s", v.Reason)
	}
	rt.Finish(m)

	// Promoted mid-flight: the bypass path never takes a slot, but the
	// middleware still calls Finish once per admitted request.
	mgr.AddAdmin("mallory")
	for i := 0; i < 3; i++ {
		if v := rt.TrackRequest(ctx, m); !v.Allowed {
			t.Fatalf("admin request %d denied: %s", i+1, v.Reason)
		}
		rt.Finish(m)
	}

	// Demoted again: the ceiling of two must hold, not be inflated by the
	// unmatched releases above.
	mgr.RemoveAdmin("mallory")
	if v := rt.TrackRequest(ctx, m); !v.Allowed {
		t.Fatalf("first in-flight request denied: %s", v.Reason)
	}
	if v := rt.TrackRequest(ctx, m); !v.Allowed {
		t.Fatalf("second in-flight request denied: %s", v.Reason)
	}
	v := rt.TrackRequest(ctx, m)
	if v.Allowed {
		t.Fatal("request over concurrency ceiling was allowed")
	}
	if v.Dimension != DimensionUser {
		t.Errorf("Dimension = %q, want %q", v.Dimension, DimensionUser)
	}
}

func TestRequestTracker_StatsCompleteness(t *testing.T) {
	rt := newTestTracker(t, newTestManager(t))
	ctx := context.Background()

	const total = 10
	denied := 0
	for i := 0; i < total; i++ {
		if v := rt.TrackRequest(ctx, testMetrics("192.0.2.1", "bruno", "")); !v.Allowed {
			denied++
		}
	}
	if denied != total-3 {
		t.Fatalf("denied = %d, want %d", denied, total-3)
	}

	// Denied requests count toward statistics on every dimension they
	// touched, so the totals equal the requests sent, not the admissions.
	stats, ok := rt.IPStats("192.0.2.1")
	if !ok {
		t.Fatal("IPStats() returned no entry")
	}
	if stats.TotalRequests != total {
		t.Errorf("ip TotalRequests = %d, want %d", stats.TotalRequests, total)
	}
	if stats.BlockedRequests != int64(denied) {
		t.Errorf("ip BlockedRequests = %d, want %d", stats.BlockedRequests, denied)
	}
	userStats, ok := rt.UserStats("bruno")
	if !ok {
		t.Fatal("UserStats() returned no entry")
	}
	if userStats.TotalRequests != total {
		t.Errorf("user TotalRequests = %d, want %d", userStats.TotalRequests, total)
	}
}

func TestRequestTracker_TierEndToEnd(t *testing.T) {
	mgr := newTestManager(t,
		rules.Tier{Name: "bronze", Rule: rules.LimitRule{PerMinute: 50, PerHour: 1000}, Multiplier: 1.0},
		rules.Tier{Name: "gold", Rule: rules.LimitRule{PerMinute: 300, PerHour: 5000}, Multiplier: 1.0},
	)
	if err := mgr.AssignUserTier("gilda", "gold"); err != nil {
		t.Fatalf("AssignUserTier() error = %v", err)
	}
	rt := newTestTracker(t, mgr)
	ctx := context.Background()

	// Rotate source IPs so only the user dimension constrains the run.
	metricsFor := func(user string, i int) *RequestMetrics {
		return testMetrics(fmt.Sprintf("10.0.%d.%d", i/250, i%250), user, "")
	}

	for i := 0; i < 50; i++ {
		if v := rt.TrackRequest(ctx, metricsFor("bruno", i)); !v.Allowed {
			t.Fatalf("bronze request %d denied: %s", i+1, v.Reason)
		}
	}
	v := rt.TrackRequest(ctx, metricsFor("bruno", 50))
	if v.Allowed {
		t.Fatal("bronze request 51 was allowed")
	}
	if v.Dimension != DimensionUser {
		t.Errorf("Dimension = %q, want %q", v.Dimension, DimensionUser)
	}

	for i := 0; i < 300; i++ {
		if v := rt.TrackRequest(ctx, metricsFor("gilda", 1000+i)); !v.Allowed {
			t.Fatalf("gold request %d denied: %s", i+1, v.Reason)
		}
	}
	if v := rt.TrackRequest(ctx, metricsFor("gilda", 1301)); v.Allowed {
		t.Error("gold request 301 was allowed")
	}
}

func TestRequestTracker_PenaltyHoldsAfterViolation(t *testing.T) {
	mgr := newTestManager(t, rules.Tier{
		Name:       "strict",
		Rule:       rules.LimitRule{PerMinute: 1, PerHour: 100, PenaltySeconds: 30},
		Multiplier: 1.0,
	})
	rt := newTestTracker(t, mgr)
	ctx := context.Background()

	rt.TrackRequest(ctx, testMetrics("192.0.2.1", "bruno", ""))
	v := rt.TrackRequest(ctx, testMetrics("192.0.2.1", "bruno", ""))
	if v.Allowed {
		t.Fatal("violating request was allowed")
	}
	if v.RetryAfter < 29*time.Second || v.RetryAfter > 30*time.Second {
		t.Errorf("RetryAfter = %v, want about 30s", v.RetryAfter)
	}

	// During the penalty even an under-rate request stays denied.
	if v := rt.TrackRequest(ctx, testMetrics("192.0.2.1", "bruno", "")); v.Allowed {
		t.Error("request during penalty was allowed")
	}
}

// ====== Response Time Tests ======

func TestRequestTracker_FinishFoldsResponseTime(t *testing.T) {
	rt := newTestTracker(t, newTestManager(t))
	m := testMetrics("192.0.2.1", "bruno", "")

	if v := rt.TrackRequest(context.Background(), m); !v.Allowed {
		t.Fatalf("request denied: %s", v.Reason)
	}
	m.ResponseTimeMillis = 120
	rt.Finish(m)

	stats, ok := rt.IPStats("192.0.2.1")
	if !ok {
		t.Fatal("IPStats() returned no entry")
	}
	if stats.AvgResponseTimeMillis != 120 {
		t.Errorf("AvgResponseTimeMillis = %v, want 120", stats.AvgResponseTimeMillis)
	}
}

// ====== Admin Surface Tests ======

func TestRequestTracker_SetUserTierUnknownTier(t *testing.T) {
	rt := newTestTracker(t, newTestManager(t))
	if err := rt.SetUserTier("bruno", "diamond"); err == nil {
		t.Error("SetUserTier() accepted an unknown tier")
	}
}

func TestRequestTracker_ComprehensiveStats(t *testing.T) {
	rt := newTestTracker(t, newTestManager(t))
	rt.BlockIP("192.0.2.9", "manual")
	rt.TrackRequest(context.Background(), testMetrics("192.0.2.1", "bruno", "export"))

	stats := rt.Stats()
	if len(stats.Trackers) != 3 {
		t.Fatalf("len(Trackers) = %d, want 3", len(stats.Trackers))
	}
	for _, ts := range stats.Trackers {
		if ts.MaxSize != defaultCacheSize {
			t.Errorf("%s MaxSize = %d, want %d", ts.Dimension, ts.MaxSize, defaultCacheSize)
		}
	}
	if len(stats.BlockedIPs) != 1 {
		t.Errorf("len(BlockedIPs) = %d, want 1", len(stats.BlockedIPs))
	}
	if stats.Shared != nil {
		t.Error("Shared reported without a shared store configured")
	}
	if stats.Rules.TotalTiers != 1 {
		t.Errorf("Rules.TotalTiers = %d, want 1", stats.Rules.TotalTiers)
	}
}

func TestRequestTracker_SharedStoreConstrains(t *testing.T) {
	st := NewTestMemoryStore(t)
	mgr := newTestManager(t, rules.Tier{
		Name:       "wide",
		Rule:       rules.LimitRule{PerMinute: 100, PerHour: 1000},
		Multiplier: 1.0,
	})
	rt := NewRequestTracker(Config{
		SharedStore:     st,
		SharedDimension: DimensionGlobal,
		SharedWindow:    time.Minute,
		SharedLimit:     2,
		Fallback:        FailOpen,
	}, mgr, nil, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if v := rt.TrackRequest(ctx, testMetrics("192.0.2.1", "bruno", "")); !v.Allowed {
			t.Fatalf("request %d denied under shared limit: %s", i+1, v.Reason)
		}
	}
	v := rt.TrackRequest(ctx, testMetrics("192.0.2.1", "bruno", ""))
	if v.Allowed {
		t.Fatal("request over shared limit was allowed")
	}
	if v.Dimension != DimensionGlobal {
		t.Errorf("Dimension = %q, want %q", v.Dimension, DimensionGlobal)
	}

	stats := rt.Stats()
	if stats.Shared == nil {
		t.Fatal("Stats().Shared = nil with a shared store configured")
	}
	if stats.Shared.Limit != 2 {
		t.Errorf("Shared.Limit = %d, want 2", stats.Shared.Limit)
	}
}
