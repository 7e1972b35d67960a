// Package health provides liveness and readiness probes for Ganymede.
//
// Components register named check functions (counter store reachability,
// audit database, configuration). Liveness is a constant-time process check;
// readiness runs every registered check concurrently with a per-check
// timeout and degrades to 503 when any component is unhealthy.
package health
