package config

import "time"

// Default values applied to unset fields.
const (
	DefaultListenAddress   = ":8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultMaxHeaderBytes  = 1 << 20
	DefaultShutdownTimeout = 30 * time.Second

	DefaultCacheMaxSize = 10000
	DefaultCacheTTL     = time.Hour

	DefaultStoreCallTimeout = 50 * time.Millisecond
	DefaultFallbackPolicy   = "fail_open"
	DefaultSharedDimension  = "global"
	DefaultSharedWindow     = time.Minute
	DefaultKeyPrefix        = "ganymede:counter:"

	DefaultAuditPath          = "ganymede-audit.db"
	DefaultAuditBufferSize    = 4096
	DefaultAuditFlushInterval = time.Second
	DefaultAuditRetentionDays = 30

	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "ganymede"
	DefaultMetricsSubsystem = "tracking"

	DefaultCompositionOrder = "registration_order"

	// DefaultTierName is the tier assigned to users without an explicit
	// assignment when the built-in tier set is in use.
	DefaultTierName = "bronze"
)

// DefaultTiers is the built-in tier set used when the config file declares
// none. Five tiers from most to least restrictive, plus an uncapped admin
// tier.
func DefaultTiers() []TierConfig {
	return []TierConfig{
		{
			Name:          "bronze",
			Rule:          LimitRuleConfig{PerMinute: 50, PerHour: 1000, Burst: 10},
			Multiplier:    1.0,
			MaxConcurrent: 4,
		},
		{
			Name:          "silver",
			Rule:          LimitRuleConfig{PerMinute: 120, PerHour: 3000, Burst: 25},
			Multiplier:    1.0,
			MaxConcurrent: 8,
		},
		{
			Name:          "gold",
			Rule:          LimitRuleConfig{PerMinute: 300, PerHour: 8000, Burst: 60},
			Multiplier:    1.0,
			MaxConcurrent: 16,
		},
		{
			Name:          "platinum",
			Rule:          LimitRuleConfig{PerMinute: 1000, PerHour: 25000, Burst: 200},
			Multiplier:    1.0,
			MaxConcurrent: 32,
		},
		{
			Name:          "admin",
			Rule:          LimitRuleConfig{PerMinute: 10000, PerHour: 250000, Burst: 1000},
			Multiplier:    1.0,
			MaxConcurrent: 0,
		},
	}
}

// ApplyDefaults fills unset fields with default values. It never overrides
// values the file or environment set explicitly.
func ApplyDefaults(cfg *Config) {
	// Server
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Tracking caches
	applyCacheDefaults(&cfg.Tracking.IPCache)
	applyCacheDefaults(&cfg.Tracking.UserCache)
	applyCacheDefaults(&cfg.Tracking.ToolCache)
	if cfg.Tracking.CompositionOrder == "" {
		cfg.Tracking.CompositionOrder = DefaultCompositionOrder
	}

	// Tiers
	if len(cfg.Tiers.Definitions) == 0 {
		cfg.Tiers.Definitions = DefaultTiers()
		if cfg.Tiers.Default == "" {
			cfg.Tiers.Default = DefaultTierName
		}
	}

	// Store
	if cfg.Store.CallTimeout == 0 {
		cfg.Store.CallTimeout = DefaultStoreCallTimeout
	}
	if cfg.Store.FallbackPolicy == "" {
		cfg.Store.FallbackPolicy = DefaultFallbackPolicy
	}
	if cfg.Store.SharedDimension == "" {
		cfg.Store.SharedDimension = DefaultSharedDimension
	}
	if cfg.Store.SharedWindow == 0 {
		cfg.Store.SharedWindow = DefaultSharedWindow
	}
	if cfg.Store.KeyPrefix == "" {
		cfg.Store.KeyPrefix = DefaultKeyPrefix
	}

	// Audit
	if cfg.Audit.SQLitePath == "" {
		cfg.Audit.SQLitePath = DefaultAuditPath
	}
	if cfg.Audit.BufferSize == 0 {
		cfg.Audit.BufferSize = DefaultAuditBufferSize
	}
	if cfg.Audit.FlushInterval == 0 {
		cfg.Audit.FlushInterval = DefaultAuditFlushInterval
	}
	if cfg.Audit.RetentionDays == 0 {
		cfg.Audit.RetentionDays = DefaultAuditRetentionDays
	}

	// Telemetry
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = "info"
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = "json"
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}
}

func applyCacheDefaults(c *CacheSettings) {
	if c.MaxSize == 0 {
		c.MaxSize = DefaultCacheMaxSize
	}
	if c.TTL == 0 {
		c.TTL = DefaultCacheTTL
	}
}
