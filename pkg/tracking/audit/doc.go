// Package audit persists admission decisions to SQLite for after-the-fact
// review.
//
// Decisions are buffered in memory and flushed in batches on a short
// interval, so recording never blocks the admission path. When the buffer
// fills, new decisions are dropped and counted rather than queued; the audit
// trail is best-effort, the admission path is not allowed to stall on disk.
//
// Retention is enforced by a cron-driven scheduler that deletes decisions
// older than the configured horizon.
package audit
