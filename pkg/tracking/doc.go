// Package tracking implements the request tracking and admission control
// engine.
//
// # Overview
//
// The RequestTracker is the single entry point consumed by middleware. Per
// request it decides whether to admit or reject, based on per-IP, per-user,
// per-tool, and fleet-wide quotas composed with tiered and time-varying limit
// configuration:
//
//	caller -> RequestTracker -> {IPTracker, UserTracker, ToolTracker,
//	          DistributedTracker} -> rules.Manager -> ratelimit -> store
//
// Verdicts combine with logical AND: any active dimension denying denies the
// request. Request metrics are recorded in every consulted tracker whether
// the request is admitted or not, so denied traffic stays visible in
// statistics.
//
// # Dimension Trackers
//
// Each tracker owns a bounded cache (max size with LRU eviction, idle TTL
// for quiet keys) mapping a dimension key to aggregate state. Stats reads
// are deliberately not "uses" for LRU purposes: scraping statistics must not
// keep hot keys alive artificially.
//
// The IP dimension additionally carries a block list consulted before any
// quota math. A blocked IP is always denied, free of cost, until explicitly
// unblocked.
//
// # Availability
//
// The engine trades strict consistency for availability. Distributed checks
// carry a short store timeout; when the store is unreachable the tracker
// degrades to the operator-configured fallback policy (fail-open or
// fail-closed) instead of hanging the request. Exact global counts are not
// guaranteed under network partitions.
//
// # Error Policy
//
// Malformed identity (a missing IP or user field) is tracked under the
// sentinel "unknown" key rather than raising: one malformed request must not
// abort the admission pipeline. Admission decisions, once made, are final
// and never retracted, even if the underlying HTTP request is cancelled.
package tracking
