// Package metrics provides Prometheus metrics collection for Ganymede.
//
// # Overview
//
// The metrics package implements Prometheus metrics for the admission path:
// decision counts and latency per dimension, tracked key cardinality, and
// counter store failures. The Collector implements tracking.Observer, so the
// request tracker feeds it without knowing about Prometheus.
//
// # Metrics
//
//   - ganymede_tracking_decisions_total: Decisions by dimension and verdict
//   - ganymede_tracking_decision_duration_seconds: Admission latency histogram
//   - ganymede_tracking_tracked_keys: Cached keys per dimension
//   - ganymede_tracking_store_errors_total: Shared counter store failures
//
// # Usage
//
//	collector := metrics.NewCollector(metrics.Config{Enabled: true}, nil)
//	tracker := tracking.NewRequestTracker(cfg, mgr, collector, logger)
//	http.Handle("/metrics", collector.Handler())
package metrics
