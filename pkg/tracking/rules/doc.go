// Package rules resolves the effective limit for a request context.
//
// # Overview
//
// An effective limit is composed from three sources:
//
//   - Tiered limits: each user tier (bronze, silver, gold, ...) carries a base
//     LimitRule and a scalar multiplier. Tiers are totally ordered by their
//     multiplier: a higher tier never yields a smaller limit.
//   - Dynamic limits: named time windows (HH:MM spans on selected weekdays)
//     contribute multipliers while active. Multipliers below 1 throttle,
//     above 1 grant temporary relief.
//   - Overrides: admin identities bypass every quota check unconditionally.
//
// The composition is
//
//	effective = base_rule x tier_multiplier x Π(active window multipliers)
//
// with each rate field independently floored to an integer and clamped to a
// minimum of 1 - unless the composed multiplier is exactly 0, which is an
// explicit deny-all policy. Effective limits have no independent identity:
// they are recomputed per decision, never cached, because window activation
// is time-dependent.
//
// # Validation
//
// Every rule constructed or mutated through the admin surface passes through
// Validate. Non-positive rate fields are rejected with an error, never
// silently clamped.
//
// # Concurrency
//
// Manager is safe for concurrent use. Mutations (tier assignment, window
// registration, admin changes) take effect immediately for all subsequently
// evaluated requests.
package rules
