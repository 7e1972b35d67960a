package tracking

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"mercator-hq/ganymede/pkg/tracking/ratelimit"
	"mercator-hq/ganymede/pkg/tracking/rules"
)

// CacheConfig bounds one dimension tracker's key cache.
type CacheConfig struct {
	// MaxSize is the maximum number of tracked keys before LRU eviction.
	MaxSize int

	// TTL evicts keys idle for this long. The timer restarts on every
	// recorded request, so only genuinely quiet keys age out.
	TTL time.Duration
}

const (
	defaultCacheSize = 10000
	defaultCacheTTL  = time.Hour
)

func (c CacheConfig) withDefaults() CacheConfig {
	if c.MaxSize <= 0 {
		c.MaxSize = defaultCacheSize
	}
	if c.TTL <= 0 {
		c.TTL = defaultCacheTTL
	}
	return c
}

// aggregate is the per-key state a dimension tracker maintains: request
// counters for stats plus the limiter state the algorithms consume.
//
// Each aggregate carries its own mutex so hot keys never serialize traffic
// for unrelated keys; the cache itself is only locked for the lookup.
type aggregate struct {
	mu sync.Mutex

	total           int64
	blocked         int64
	responseTimeSum int64
	lastSeen        time.Time

	minuteWindow *ratelimit.SlidingWindow
	hourWindow   *ratelimit.SlidingWindow
	burst        *ratelimit.TokenBucket
	concurrent   *ratelimit.ConcurrentLimiter

	penaltyUntil time.Time
}

func newAggregate() *aggregate {
	return &aggregate{
		minuteWindow: ratelimit.NewSlidingWindow(time.Minute),
		hourWindow:   ratelimit.NewSlidingWindow(time.Hour),
	}
}

// check runs the quota decision for one request under the given effective
// rule and records the request into the aggregate regardless of outcome.
func (a *aggregate) check(m *RequestMetrics, rule rules.LimitRule, now time.Time) ratelimit.Decision {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.recordLocked(m, now)

	// An active penalty is an unconditional deny until it expires.
	if now.Before(a.penaltyUntil) {
		a.blocked++
		return ratelimit.Decision{
			Allowed:    false,
			Reset:      a.penaltyUntil,
			RetryAfter: a.penaltyUntil.Sub(now),
		}
	}

	// A zero rate is the explicit deny-all policy.
	if rule.PerMinute == 0 || rule.PerHour == 0 {
		a.blocked++
		return ratelimit.Decision{Allowed: false, Reset: now.Add(time.Minute)}
	}

	dec := a.minuteWindow.Take(int64(rule.PerMinute), 1)
	if dec.Allowed {
		hourDec := a.hourWindow.Take(int64(rule.PerHour), 1)
		if !hourDec.Allowed {
			dec = hourDec
		}
	}

	// The burst bucket smooths spikes on top of the windows. It is created
	// lazily from the first rule that carries a burst allowance; sustained
	// rate changes keep flowing through the windows, which take their limit
	// per call.
	if dec.Allowed && rule.Burst > 0 {
		if a.burst == nil {
			a.burst = ratelimit.NewTokenBucket(int64(rule.Burst+rule.PerMinute), float64(rule.PerMinute)/60.0)
		}
		dec = a.burst.Take(1)
	}

	if !dec.Allowed {
		a.blocked++
		if rule.PenaltySeconds > 0 {
			a.penaltyUntil = now.Add(time.Duration(rule.PenaltySeconds) * time.Second)
			dec.RetryAfter = time.Duration(rule.PenaltySeconds) * time.Second
			dec.Reset = a.penaltyUntil
		}
	}

	return dec
}

// record counts a request without running any quota math. Used by the bypass
// paths (blocked IPs, admin overrides) so denied and exempt traffic still
// shows in statistics.
func (a *aggregate) record(m *RequestMetrics, blocked bool, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.recordLocked(m, now)
	if blocked {
		a.blocked++
	}
}

// recordLocked updates the stats counters. Caller must hold the lock.
func (a *aggregate) recordLocked(m *RequestMetrics, now time.Time) {
	a.total++
	a.responseTimeSum += m.ResponseTimeMillis
	a.lastSeen = now
}

// observeResponse folds in a response time measured after the admission
// decision, when the handler has actually run.
func (a *aggregate) observeResponse(millis int64) {
	a.mu.Lock()
	a.responseTimeSum += millis
	a.mu.Unlock()
}

// acquireSlot claims one in-flight slot under the given ceiling. A ceiling
// of zero or less disables the check. The limiter is created lazily so keys
// without a ceiling never pay for one.
func (a *aggregate) acquireSlot(limit int) bool {
	if limit <= 0 {
		return true
	}
	a.mu.Lock()
	if a.concurrent == nil {
		a.concurrent = ratelimit.NewConcurrentLimiter(limit)
	}
	lim := a.concurrent
	a.mu.Unlock()
	return lim.Acquire()
}

// releaseSlot returns a previously acquired slot.
func (a *aggregate) releaseSlot() {
	a.mu.Lock()
	lim := a.concurrent
	a.mu.Unlock()
	if lim != nil {
		lim.Release()
	}
}

// snapshot produces a stats view without mutating any limiter state.
func (a *aggregate) snapshot(key string) KeyStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := KeyStats{
		Key:             key,
		TotalRequests:   a.total,
		BlockedRequests: a.blocked,
		LastSeen:        a.lastSeen,
	}
	if a.total > 0 {
		stats.BlockedRate = float64(a.blocked) / float64(a.total)
		stats.AvgResponseTimeMillis = float64(a.responseTimeSum) / float64(a.total)
	}
	return stats
}

// keyCache is the bounded, TTL-evicting map from dimension key to aggregate
// shared by all dimension trackers.
type keyCache struct {
	// mu serializes getOrCreate so two first-touch requests for the
	// same key share one aggregate instead of racing private copies.
	mu    sync.Mutex
	cache *expirable.LRU[string, *aggregate]
	cfg   CacheConfig
}

func newKeyCache(cfg CacheConfig) *keyCache {
	cfg = cfg.withDefaults()
	return &keyCache{
		cache: expirable.NewLRU[string, *aggregate](cfg.MaxSize, nil, cfg.TTL),
		cfg:   cfg,
	}
}

// getOrCreate returns the aggregate for key, creating it lazily. Re-adding
// on every call refreshes both LRU recency and the idle TTL, so the TTL
// behaves as an idle timeout rather than an absolute lifetime.
func (c *keyCache) getOrCreate(key string) *aggregate {
	c.mu.Lock()
	defer c.mu.Unlock()

	agg, ok := c.cache.Get(key)
	if !ok {
		agg = newAggregate()
	}
	c.cache.Add(key, agg)
	return agg
}

// peek returns the aggregate for key without touching eviction order.
// Stats reads are not "uses": scraping statistics must not keep hot keys
// alive.
func (c *keyCache) peek(key string) (*aggregate, bool) {
	return c.cache.Peek(key)
}

func (c *keyCache) len() int {
	return c.cache.Len()
}

func (c *keyCache) keys() []string {
	return c.cache.Keys()
}
