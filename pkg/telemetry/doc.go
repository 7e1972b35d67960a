// Package telemetry provides observability for Ganymede.
//
// # Components
//
//   - logging: Structured logging built on log/slog
//   - metrics: Prometheus metrics for the admission path
//   - health: Liveness and readiness probes
//
// Each subpackage is independent; the server wires them together and the
// tracking layer reports through the metrics.Collector's Observer
// implementation.
package telemetry
