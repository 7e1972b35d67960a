package rules

import (
	"errors"
	"fmt"
)

// Error types for rule validation and lookup failures.
var (
	// ErrInvalidRule is returned when a limit rule fails validation.
	ErrInvalidRule = errors.New("invalid limit rule")

	// ErrUnknownTier is returned when a tier name is not configured.
	ErrUnknownTier = errors.New("unknown tier")

	// ErrInvalidWindow is returned when a time window fails validation.
	ErrInvalidWindow = errors.New("invalid time window")
)

// LimitRule is the unit of limit configuration: the request rates an identity
// may sustain, its burst allowance, and the penalty applied after a
// violation.
type LimitRule struct {
	// PerMinute is the sustained requests-per-minute rate. Must be > 0.
	PerMinute int `yaml:"per_minute" json:"per_minute"`

	// PerHour is the sustained requests-per-hour rate. Must be > 0.
	PerHour int `yaml:"per_hour" json:"per_hour"`

	// Burst is the extra allowance for short spikes, mapped to token bucket
	// capacity. Must be >= 0.
	Burst int `yaml:"burst" json:"burst"`

	// PenaltySeconds is how long an identity stays restricted after
	// triggering a violation, independent of the normal window reset.
	// Must be >= 0.
	PenaltySeconds int `yaml:"penalty_seconds" json:"penalty_seconds"`
}

// Validate rejects malformed rules. Both rate fields must be strictly
// positive; burst and penalty must be non-negative. Invalid rules are an
// error at configuration time, never clamped.
func (r LimitRule) Validate() error {
	if r.PerMinute <= 0 {
		return fmt.Errorf("%w: per_minute must be positive, got %d", ErrInvalidRule, r.PerMinute)
	}
	if r.PerHour <= 0 {
		return fmt.Errorf("%w: per_hour must be positive, got %d", ErrInvalidRule, r.PerHour)
	}
	if r.Burst < 0 {
		return fmt.Errorf("%w: burst must be non-negative, got %d", ErrInvalidRule, r.Burst)
	}
	if r.PenaltySeconds < 0 {
		return fmt.Errorf("%w: penalty_seconds must be non-negative, got %d", ErrInvalidRule, r.PenaltySeconds)
	}
	return nil
}

// scale multiplies both rate fields by m, flooring each to an integer with a
// minimum of 1. A multiplier of exactly 0 zeroes the rule: that is the
// explicit deny-all policy. Burst and penalty are carried unchanged.
func (r LimitRule) scale(m float64) LimitRule {
	scaled := r
	scaled.PerMinute = scaleRate(r.PerMinute, m)
	scaled.PerHour = scaleRate(r.PerHour, m)
	return scaled
}

func scaleRate(rate int, m float64) int {
	if m == 0 {
		return 0
	}
	scaled := int(float64(rate) * m)
	if scaled < 1 {
		return 1
	}
	return scaled
}
