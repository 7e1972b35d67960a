package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"mercator-hq/ganymede/pkg/tracking/rules"
)

// FieldError is a validation error for one configuration field.
type FieldError struct {
	// Field is the dotted path to the field (e.g. "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every validation failure in a configuration.
type ValidationError struct {
	Errors []FieldError
}

func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

var validWeekdays = map[string]bool{
	"sunday": true, "monday": true, "tuesday": true, "wednesday": true,
	"thursday": true, "friday": true, "saturday": true,
}

// Validate checks the whole configuration and returns a ValidationError
// listing every problem, or nil when the configuration is valid.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateTracking(&cfg.Tracking)...)
	errs = append(errs, validateTiers(&cfg.Tiers, &cfg.Tracking)...)
	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateAudit(&cfg.Audit)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		})
	}
	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes must be non-negative",
		})
	}

	return errs
}

func validateTracking(cfg *TrackingConfig) []FieldError {
	var errs []FieldError

	errs = append(errs, validateCache("tracking.ip_cache", &cfg.IPCache)...)
	errs = append(errs, validateCache("tracking.user_cache", &cfg.UserCache)...)
	errs = append(errs, validateCache("tracking.tool_cache", &cfg.ToolCache)...)

	switch cfg.CompositionOrder {
	case "", "registration_order", "most_restrictive":
	default:
		errs = append(errs, FieldError{
			Field:   "tracking.composition_order",
			Message: fmt.Sprintf("must be registration_order or most_restrictive, got %q", cfg.CompositionOrder),
		})
	}

	for name, rule := range cfg.ToolLimits {
		errs = append(errs, validateRule(fmt.Sprintf("tracking.tool_limits.%s", name), rule)...)
	}

	for i, w := range cfg.TimeWindows {
		field := fmt.Sprintf("tracking.time_windows[%d]", i)
		if w.Name == "" {
			errs = append(errs, FieldError{Field: field + ".name", Message: "name is required"})
		}
		if w.Multiplier < 0 {
			errs = append(errs, FieldError{
				Field:   field + ".multiplier",
				Message: fmt.Sprintf("multiplier must be >= 0, got %v", w.Multiplier),
			})
		}
		if _, err := rules.NewTimeWindow(w.Start, w.End, nil, 1); err != nil {
			errs = append(errs, FieldError{
				Field:   field,
				Message: err.Error(),
			})
		}
		for _, day := range w.Weekdays {
			if !validWeekdays[strings.ToLower(day)] {
				errs = append(errs, FieldError{
					Field:   field + ".weekdays",
					Message: fmt.Sprintf("unknown weekday %q", day),
				})
			}
		}
	}

	return errs
}

func validateCache(field string, c *CacheSettings) []FieldError {
	var errs []FieldError
	if c.MaxSize < 0 {
		errs = append(errs, FieldError{
			Field:   field + ".max_size",
			Message: "max size must be non-negative",
		})
	}
	if c.TTL < 0 {
		errs = append(errs, FieldError{
			Field:   field + ".ttl",
			Message: "ttl must be non-negative",
		})
	}
	return errs
}

func validateRule(field string, r LimitRuleConfig) []FieldError {
	var errs []FieldError
	if r.PerMinute <= 0 {
		errs = append(errs, FieldError{
			Field:   field + ".per_minute",
			Message: fmt.Sprintf("must be > 0, got %d", r.PerMinute),
		})
	}
	if r.PerHour <= 0 {
		errs = append(errs, FieldError{
			Field:   field + ".per_hour",
			Message: fmt.Sprintf("must be > 0, got %d", r.PerHour),
		})
	}
	if r.Burst < 0 {
		errs = append(errs, FieldError{
			Field:   field + ".burst",
			Message: fmt.Sprintf("must be >= 0, got %d", r.Burst),
		})
	}
	if r.PenaltySeconds < 0 {
		errs = append(errs, FieldError{
			Field:   field + ".penalty_seconds",
			Message: fmt.Sprintf("must be >= 0, got %d", r.PenaltySeconds),
		})
	}
	return errs
}

func validateTiers(cfg *TiersConfig, tracking *TrackingConfig) []FieldError {
	var errs []FieldError

	if len(cfg.Definitions) == 0 {
		errs = append(errs, FieldError{
			Field:   "tiers.definitions",
			Message: "at least one tier is required",
		})
		return errs
	}

	names := make(map[string]bool, len(cfg.Definitions))
	for i, t := range cfg.Definitions {
		field := fmt.Sprintf("tiers.definitions[%d]", i)
		if t.Name == "" {
			errs = append(errs, FieldError{Field: field + ".name", Message: "name is required"})
			continue
		}
		if names[t.Name] {
			errs = append(errs, FieldError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate tier %q", t.Name),
			})
		}
		names[t.Name] = true

		errs = append(errs, validateRule(field+".rule", t.Rule)...)
		if t.Multiplier < 0 {
			errs = append(errs, FieldError{
				Field:   field + ".multiplier",
				Message: fmt.Sprintf("must be >= 0, got %v", t.Multiplier),
			})
		}
		if t.MaxConcurrent < 0 {
			errs = append(errs, FieldError{
				Field:   field + ".max_concurrent",
				Message: fmt.Sprintf("must be >= 0, got %d", t.MaxConcurrent),
			})
		}
	}

	if cfg.Default != "" && !names[cfg.Default] {
		errs = append(errs, FieldError{
			Field:   "tiers.default",
			Message: fmt.Sprintf("default tier %q is not defined", cfg.Default),
		})
	}

	// Tier assignments must point at defined tiers.
	for user, tier := range tracking.UserTiers {
		if !names[tier] {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("tracking.user_tiers.%s", user),
				Message: fmt.Sprintf("tier %q is not defined", tier),
			})
		}
	}

	return errs
}

func validateStore(cfg *StoreConfig) []FieldError {
	var errs []FieldError

	if cfg.UseSharedStore && cfg.RedisURL == "" {
		errs = append(errs, FieldError{
			Field:   "store.redis_url",
			Message: "redis url is required when use_shared_store is set",
		})
	}
	switch cfg.FallbackPolicy {
	case "", "fail_open", "fail_closed":
	default:
		errs = append(errs, FieldError{
			Field:   "store.fallback_policy",
			Message: fmt.Sprintf("must be fail_open or fail_closed, got %q", cfg.FallbackPolicy),
		})
	}
	switch cfg.SharedDimension {
	case "", "global", "user", "ip":
	default:
		errs = append(errs, FieldError{
			Field:   "store.shared_dimension",
			Message: fmt.Sprintf("must be global, user, or ip, got %q", cfg.SharedDimension),
		})
	}
	if cfg.SharedLimit < 0 {
		errs = append(errs, FieldError{
			Field:   "store.shared_limit",
			Message: fmt.Sprintf("must be >= 0, got %d", cfg.SharedLimit),
		})
	}
	if cfg.CallTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "store.call_timeout",
			Message: "call timeout must be non-negative",
		})
	}

	return errs
}

func validateAudit(cfg *AuditConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return nil
	}
	if cfg.SQLitePath == "" {
		errs = append(errs, FieldError{
			Field:   "audit.sqlite_path",
			Message: "sqlite path is required when audit is enabled",
		})
	}
	if cfg.RetentionDays < 0 {
		errs = append(errs, FieldError{
			Field:   "audit.retention_days",
			Message: fmt.Sprintf("must be >= 0, got %d", cfg.RetentionDays),
		})
	}
	if cfg.PruneSchedule != "" {
		if _, err := cron.ParseStandard(cfg.PruneSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "audit.prune_schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("unknown level %q", cfg.Logging.Level),
		})
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "", "json", "text", "console":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("unknown format %q", cfg.Logging.Format),
		})
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Path == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path is required when metrics are enabled",
		})
	}

	return errs
}
