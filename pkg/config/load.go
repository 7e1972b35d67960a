package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML configuration file, applies defaults, and validates
// the result. The returned Config is ready to use.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadWithEnvOverrides loads a configuration file and then applies
// environment variable overrides before validating. Environment variables
// take precedence over file values and use the GANYMEDE_SECTION_FIELD
// naming scheme (e.g. GANYMEDE_SERVER_LISTEN_ADDRESS).
func LoadWithEnvOverrides(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	ApplyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides mutates cfg from GANYMEDE_* environment variables.
// Unknown or malformed values are ignored so a bad override cannot take
// down a service that has a valid file configuration.
func applyEnvOverrides(cfg *Config) {
	// Server
	setString(&cfg.Server.ListenAddress, "GANYMEDE_SERVER_LISTEN_ADDRESS")
	setDuration(&cfg.Server.ReadTimeout, "GANYMEDE_SERVER_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "GANYMEDE_SERVER_WRITE_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "GANYMEDE_SERVER_SHUTDOWN_TIMEOUT")
	setBool(&cfg.Server.TrustProxyHeaders, "GANYMEDE_SERVER_TRUST_PROXY_HEADERS")

	// Tracking
	setBoolPtr(&cfg.Tracking.HotReload, "GANYMEDE_TRACKING_HOT_RELOAD")
	setString(&cfg.Tracking.CompositionOrder, "GANYMEDE_TRACKING_COMPOSITION_ORDER")
	setInt(&cfg.Tracking.IPCache.MaxSize, "GANYMEDE_TRACKING_IP_CACHE_MAX_SIZE")
	setInt(&cfg.Tracking.UserCache.MaxSize, "GANYMEDE_TRACKING_USER_CACHE_MAX_SIZE")
	setInt(&cfg.Tracking.ToolCache.MaxSize, "GANYMEDE_TRACKING_TOOL_CACHE_MAX_SIZE")

	// Tiers
	setString(&cfg.Tiers.Default, "GANYMEDE_TIERS_DEFAULT")

	// Store
	setBool(&cfg.Store.UseSharedStore, "GANYMEDE_STORE_USE_SHARED_STORE")
	setString(&cfg.Store.RedisURL, "GANYMEDE_STORE_REDIS_URL")
	setString(&cfg.Store.KeyPrefix, "GANYMEDE_STORE_KEY_PREFIX")
	setString(&cfg.Store.FallbackPolicy, "GANYMEDE_STORE_FALLBACK_POLICY")
	setString(&cfg.Store.SharedDimension, "GANYMEDE_STORE_SHARED_DIMENSION")
	setDuration(&cfg.Store.SharedWindow, "GANYMEDE_STORE_SHARED_WINDOW")
	setInt64(&cfg.Store.SharedLimit, "GANYMEDE_STORE_SHARED_LIMIT")
	setDuration(&cfg.Store.CallTimeout, "GANYMEDE_STORE_CALL_TIMEOUT")

	// Audit
	setBool(&cfg.Audit.Enabled, "GANYMEDE_AUDIT_ENABLED")
	setString(&cfg.Audit.SQLitePath, "GANYMEDE_AUDIT_SQLITE_PATH")
	setInt(&cfg.Audit.RetentionDays, "GANYMEDE_AUDIT_RETENTION_DAYS")
	setString(&cfg.Audit.PruneSchedule, "GANYMEDE_AUDIT_PRUNE_SCHEDULE")

	// Telemetry
	setString(&cfg.Telemetry.Logging.Level, "GANYMEDE_TELEMETRY_LOGGING_LEVEL")
	setString(&cfg.Telemetry.Logging.Format, "GANYMEDE_TELEMETRY_LOGGING_FORMAT")
	setBool(&cfg.Telemetry.Metrics.Enabled, "GANYMEDE_TELEMETRY_METRICS_ENABLED")
	setString(&cfg.Telemetry.Metrics.Path, "GANYMEDE_TELEMETRY_METRICS_PATH")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if b, err := strconv.ParseBool(strings.ToLower(v)); err == nil {
		*dst = b
	}
}

func setBoolPtr(dst **bool, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if b, err := strconv.ParseBool(strings.ToLower(v)); err == nil {
		*dst = &b
	}
}

func setInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func setInt64(dst *int64, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		*dst = n
	}
}

func setDuration(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}
