// Ganymede is a request tracking and rate limiting service.
//
// It admits or denies HTTP requests based on per-IP, per-user, and per-tool
// rate limits, with tier-based quotas, time-of-day multipliers, an optional
// shared Redis counter for multi-instance deployments, and a SQLite audit
// trail of every decision.
//
// Usage:
//
//	# Start with default configuration
//	ganymede run
//
//	# Start with a custom configuration file
//	ganymede run --config /etc/ganymede/config.yaml
//
//	# Validate configuration without starting
//	ganymede run --dry-run
//
//	# Inspect a running instance
//	ganymede stats --address http://localhost:8080
package main

func main() {
	Execute()
}
