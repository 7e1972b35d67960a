// Package ratelimit implements the rate limiting algorithms used by the
// dimension trackers.
//
// # Algorithms
//
// Three algorithms with different accuracy/memory trade-offs are provided:
//
//   - TokenBucket: burst-tolerant average-rate limiting. Burst allowance maps
//     directly to bucket capacity. Used where short spikes are acceptable.
//   - SlidingWindow: O(1) approximation of a sliding request log. The primary
//     algorithm for per-minute and per-hour quotas because it smooths the
//     edge-burst problem of fixed windows while staying cheap.
//   - FixedWindow: a single counter reset at aligned boundaries. Cheapest of
//     the three, but permits up to 2x the nominal limit at window edges. Used
//     for coarse, high-volume dimensions such as fleet-wide ceilings where
//     low coordination overhead matters more than exactness.
//
// All algorithms return a Decision carrying the verdict, the remaining
// allowance, and timing hints (Reset, RetryAfter) that callers use to build
// Retry-After headers.
//
// # Keying
//
// Algorithm instances are per-key: the dimension tracker owns a bounded cache
// of key -> aggregate and each aggregate holds its own limiter state. The
// distributed path instead keys an external counter store directly (see
// pkg/tracking/store).
//
// # Thread Safety
//
// All limiters are safe for concurrent use. State is guarded per instance, so
// hot keys never serialize traffic for unrelated keys.
package ratelimit
