package tracking

import (
	"log/slog"
	"sync"
	"time"

	"mercator-hq/ganymede/pkg/tracking/rules"
)

// BlockEntry is one manually blocked IP.
type BlockEntry struct {
	IP        string    `json:"ip"`
	Reason    string    `json:"reason"`
	BlockedAt time.Time `json:"blocked_at"`
}

// IPTracker tracks and limits requests per source IP. On top of the quota
// path it keeps a block list consulted before any rate computation: a
// blocked IP is an unconditional, cost-free deny until explicitly unblocked.
type IPTracker struct {
	cache *keyCache
	rules *rules.Manager

	blockMu sync.RWMutex
	blocked map[string]BlockEntry

	logger *slog.Logger
}

// NewIPTracker creates an IP dimension tracker.
func NewIPTracker(cfg CacheConfig, mgr *rules.Manager, logger *slog.Logger) *IPTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &IPTracker{
		cache:   newKeyCache(cfg),
		rules:   mgr,
		blocked: make(map[string]BlockEntry),
		logger:  logger.With("component", "tracking.ip"),
	}
}

// AddRequest records the request and returns the IP dimension's verdict.
// The effective rule is the default tier's limit composed with active time
// windows; IPs have no tier of their own.
func (t *IPTracker) AddRequest(m *RequestMetrics) Verdict {
	key := m.IPKey()
	now := time.Now()

	if entry, ok := t.BlockedEntry(key); ok {
		t.cache.getOrCreate(key).record(m, true, now)
		return Verdict{
			Allowed:   false,
			Reason:    "ip blocked: " + entry.Reason,
			Dimension: DimensionIP,
		}
	}

	rule := t.rules.EffectiveUserLimit("", now)
	dec := t.cache.getOrCreate(key).check(m, rule, now)
	if dec.Allowed {
		return Verdict{Allowed: true}
	}

	return Verdict{
		Allowed:    false,
		Reason:     "ip rate limit exceeded",
		Dimension:  DimensionIP,
		RetryAfter: dec.RetryAfter,
		Reset:      dec.Reset,
	}
}

// Record counts a request against the IP without quota evaluation. Used for
// the bypass paths so exempt traffic stays visible in stats.
func (t *IPTracker) Record(m *RequestMetrics, blocked bool) {
	t.cache.getOrCreate(m.IPKey()).record(m, blocked, time.Now())
}

// Block denies all subsequent requests from ip until Unblock. Re-blocking
// updates the reason and timestamp.
func (t *IPTracker) Block(ip, reason string) {
	t.blockMu.Lock()
	t.blocked[ip] = BlockEntry{IP: ip, Reason: reason, BlockedAt: time.Now()}
	t.blockMu.Unlock()

	t.logger.Info("ip blocked", "ip", ip, "reason", reason)
}

// Unblock lifts a block. Unblocking an unknown IP is a no-op.
func (t *IPTracker) Unblock(ip string) {
	t.blockMu.Lock()
	delete(t.blocked, ip)
	t.blockMu.Unlock()

	t.logger.Info("ip unblocked", "ip", ip)
}

// BlockedEntry returns the block entry for ip, if one exists.
func (t *IPTracker) BlockedEntry(ip string) (BlockEntry, bool) {
	t.blockMu.RLock()
	defer t.blockMu.RUnlock()
	entry, ok := t.blocked[ip]
	return entry, ok
}

// IsBlocked reports whether ip is currently blocked.
func (t *IPTracker) IsBlocked(ip string) bool {
	_, ok := t.BlockedEntry(ip)
	return ok
}

// BlockedList returns all current block entries.
func (t *IPTracker) BlockedList() []BlockEntry {
	t.blockMu.RLock()
	defer t.blockMu.RUnlock()

	entries := make([]BlockEntry, 0, len(t.blocked))
	for _, e := range t.blocked {
		entries = append(entries, e)
	}
	return entries
}

// Stats returns a read-only snapshot for one IP. The read does not refresh
// the key's eviction order.
func (t *IPTracker) Stats(ip string) (KeyStats, bool) {
	agg, ok := t.cache.peek(ip)
	if !ok {
		return KeyStats{}, false
	}
	return agg.snapshot(ip), true
}

// TrackerStats summarizes the tracker's cache.
func (t *IPTracker) TrackerStats() TrackerStats {
	return TrackerStats{
		Dimension:   DimensionIP,
		TrackedKeys: t.cache.len(),
		MaxSize:     t.cache.cfg.MaxSize,
		TTL:         t.cache.cfg.TTL.String(),
	}
}
