// Package server wires the tracking engine, configuration, audit trail,
// and telemetry into one HTTP service.
//
// The service exposes three surfaces:
//
//   - The tracked application surface. Every request passes through the
//     middleware chain (recovery, request ID, logging, tracking) and is
//     admitted or denied by the request tracker.
//   - The admin API under /admin for live inspection and mutation:
//     statistics, IP blocking, tier assignment, and tool limits.
//   - Operational endpoints: /metrics, /healthz, /readyz, and /version.
//     These bypass tracking so monitoring never competes with user quota.
package server
