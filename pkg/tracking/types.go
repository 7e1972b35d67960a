package tracking

import (
	"time"
)

// Dimension is an axis along which requests are tracked and limited.
type Dimension string

const (
	// DimensionIP limits by source IP address.
	DimensionIP Dimension = "ip"

	// DimensionUser limits by resolved user identity.
	DimensionUser Dimension = "user"

	// DimensionTool limits by invoked tool name.
	DimensionTool Dimension = "tool"

	// DimensionGlobal limits fleet-wide through the shared counter store.
	DimensionGlobal Dimension = "global"
)

// UnknownKey is the sentinel dimension key for requests whose identity field
// is missing or malformed. Tracking them under one bucket keeps a single bad
// request from aborting the admission pipeline while still making the
// traffic visible.
const UnknownKey = "unknown"

// RequestMetrics describes one observed request. Records are immutable once
// created; they feed both limiting decisions and stats aggregation.
type RequestMetrics struct {
	Timestamp          time.Time `json:"timestamp"`
	SourceIP           string    `json:"source_ip"`
	UserID             string    `json:"user_id,omitempty"`
	ToolName           string    `json:"tool_name,omitempty"`
	Path               string    `json:"path"`
	Method             string    `json:"method"`
	StatusCode         int       `json:"status_code"`
	ResponseTimeMillis int64     `json:"response_time_ms"`
	UserAgent          string    `json:"user_agent,omitempty"`
	Referer            string    `json:"referer,omitempty"`
	ContentLength      int64     `json:"content_length"`
}

// IPKey returns the metrics' IP dimension key, substituting the sentinel for
// a missing address.
func (m *RequestMetrics) IPKey() string {
	if m.SourceIP == "" {
		return UnknownKey
	}
	return m.SourceIP
}

// Verdict is the admission decision for one request.
type Verdict struct {
	// Allowed indicates if the request is admitted.
	Allowed bool `json:"allowed"`

	// Reason explains a denial ("ip blocked", "user quota exceeded", ...).
	Reason string `json:"reason,omitempty"`

	// Dimension is the dimension that denied, when Allowed is false.
	Dimension Dimension `json:"dimension,omitempty"`

	// RetryAfter suggests how long a denied caller should back off.
	RetryAfter time.Duration `json:"retry_after,omitempty"`

	// Reset is when the denying window resets or the penalty expires.
	Reset time.Time `json:"reset,omitempty"`
}

// KeyStats is a read-only snapshot of one dimension key's aggregate.
// Producing it never mutates the tracker's eviction order.
type KeyStats struct {
	Key                   string    `json:"key"`
	TotalRequests         int64     `json:"total_requests"`
	BlockedRequests       int64     `json:"blocked_requests"`
	BlockedRate           float64   `json:"blocked_rate"`
	AvgResponseTimeMillis float64   `json:"avg_response_time_ms"`
	LastSeen              time.Time `json:"last_seen"`

	// Tier is populated for the user dimension only.
	Tier string `json:"tier,omitempty"`
}

// TrackerStats summarizes one dimension tracker.
type TrackerStats struct {
	Dimension   Dimension `json:"dimension"`
	TrackedKeys int       `json:"tracked_keys"`
	MaxSize     int       `json:"max_size"`
	TTL         string    `json:"ttl"`
}

// Observer receives decision telemetry. The Prometheus collector in
// pkg/telemetry/metrics implements it; a nil observer disables telemetry.
type Observer interface {
	// ObserveDecision records one admission decision for a dimension.
	ObserveDecision(dimension string, allowed bool, elapsed time.Duration)

	// ObserveStoreError records a counter store failure.
	ObserveStoreError()

	// SetTrackedKeys reports the current size of a dimension's cache.
	SetTrackedKeys(dimension string, n int)
}
