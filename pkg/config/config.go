package config

import "time"

// Config is the root configuration structure for Ganymede.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Tiers     TiersConfig     `yaml:"tiers"`
	Store     StoreConfig     `yaml:"store"`
	Audit     AuditConfig     `yaml:"audit"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// ListenAddress is the host:port to bind.
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle limit.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// MaxHeaderBytes caps request header size.
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// TrustProxyHeaders takes the client IP from X-Forwarded-For. Enable
	// only behind a trusted proxy.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`
}

// CacheSettings sizes one dimension tracker's key cache.
type CacheSettings struct {
	// MaxSize is the key count before LRU eviction.
	MaxSize int `yaml:"max_size"`

	// TTL evicts keys idle for this long.
	TTL time.Duration `yaml:"ttl"`
}

// LimitRuleConfig is a limit rule as written in the config file.
type LimitRuleConfig struct {
	PerMinute      int `yaml:"per_minute"`
	PerHour        int `yaml:"per_hour"`
	Burst          int `yaml:"burst"`
	PenaltySeconds int `yaml:"penalty_seconds"`
}

// TimeWindowConfig declares a recurring multiplier window.
type TimeWindowConfig struct {
	// Name identifies the window for admin operations.
	Name string `yaml:"name"`

	// Start and End are "HH:MM" wall-clock times. Start after End wraps
	// past midnight; Start equal to End covers the whole day.
	Start string `yaml:"start"`
	End   string `yaml:"end"`

	// Weekdays restricts the window ("monday", ...). Empty means every
	// day.
	Weekdays []string `yaml:"weekdays"`

	// Multiplier scales limits while the window is active. Values below
	// 1 tighten, above 1 relax, 0 denies outright.
	Multiplier float64 `yaml:"multiplier"`
}

// TrackingConfig configures the request trackers.
type TrackingConfig struct {
	// HotReload applies config file changes to the running process.
	// Defaults to enabled; set to false to require a restart.
	HotReload *bool `yaml:"hot_reload"`

	IPCache   CacheSettings `yaml:"ip_cache"`
	UserCache CacheSettings `yaml:"user_cache"`
	ToolCache CacheSettings `yaml:"tool_cache"`

	// CompositionOrder is how overlapping window multipliers combine:
	// "registration_order" or "most_restrictive".
	CompositionOrder string `yaml:"composition_order"`

	// ToolLimits holds per-tool rules keyed by tool name.
	ToolLimits map[string]LimitRuleConfig `yaml:"tool_limits"`

	// TimeWindows are recurring multiplier windows.
	TimeWindows []TimeWindowConfig `yaml:"time_windows"`

	// UserTiers assigns users to tiers by name.
	UserTiers map[string]string `yaml:"user_tiers"`

	// Admins lists user IDs that bypass all limits.
	Admins []string `yaml:"admins"`
}

// HotReloadEnabled resolves the hot_reload setting, treating unset as true.
func (c *TrackingConfig) HotReloadEnabled() bool {
	return c.HotReload == nil || *c.HotReload
}

// TierConfig declares one limit tier.
type TierConfig struct {
	Name string          `yaml:"name"`
	Rule LimitRuleConfig `yaml:"rule"`

	// Multiplier scales the rule's rates. 0 is an explicit deny-all tier.
	Multiplier float64 `yaml:"multiplier"`

	// MaxConcurrent caps in-flight requests per user in this tier.
	// Zero disables the cap.
	MaxConcurrent int `yaml:"max_concurrent"`
}

// TiersConfig declares the tier set.
type TiersConfig struct {
	// Definitions lists the tiers. Empty gets the built-in default set.
	Definitions []TierConfig `yaml:"definitions"`

	// Default names the tier for unassigned users. Empty picks the most
	// restrictive tier.
	Default string `yaml:"default"`
}

// StoreConfig configures the shared counter store.
type StoreConfig struct {
	// UseSharedStore enables cross-instance counting through Redis.
	UseSharedStore bool `yaml:"use_shared_store"`

	// RedisURL is the Redis connection URL (redis://host:port/db).
	RedisURL string `yaml:"redis_url"`

	// KeyPrefix namespaces Ganymede's keys in a shared Redis.
	KeyPrefix string `yaml:"key_prefix"`

	// CallTimeout bounds each store operation.
	CallTimeout time.Duration `yaml:"call_timeout"`

	// FallbackPolicy decides requests during a store outage:
	// "fail_open" or "fail_closed".
	FallbackPolicy string `yaml:"fallback_policy"`

	// SharedDimension keys the shared count: "global", "user", or "ip".
	SharedDimension string `yaml:"shared_dimension"`

	// SharedWindow is the shared counting window.
	SharedWindow time.Duration `yaml:"shared_window"`

	// SharedLimit is the per-window ceiling. Zero disables shared
	// counting even when the store is configured.
	SharedLimit int64 `yaml:"shared_limit"`
}

// AuditConfig configures decision persistence.
type AuditConfig struct {
	// Enabled turns on the SQLite audit trail.
	Enabled bool `yaml:"enabled"`

	// SQLitePath is the database file.
	SQLitePath string `yaml:"sqlite_path"`

	// BufferSize is the in-memory decision buffer.
	BufferSize int `yaml:"buffer_size"`

	// FlushInterval is how often buffered decisions are written.
	FlushInterval time.Duration `yaml:"flush_interval"`

	// RetentionDays is how long decisions are kept.
	RetentionDays int `yaml:"retention_days"`

	// PruneSchedule is a cron expression for retention pruning.
	PruneSchedule string `yaml:"prune_schedule"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is "debug", "info", "warn", or "error".
	Level string `yaml:"level"`

	// Format is "json", "text", or "console".
	Format string `yaml:"format"`

	// AddSource includes file:line in log output.
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path is where the exposition endpoint is mounted.
	Path string `yaml:"path"`

	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// TelemetryConfig groups the observability settings.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}
