// Package store abstracts where counter state lives.
//
// The engine needs one primitive from a counter store: an atomic
// increment-and-read of a windowed counter. Two backends implement it:
//
//   - MemoryStore: a lock-guarded in-process map. Suitable for
//     single-instance deployments. State is lost on restart; that is explicit
//     non-durability, not a bug.
//   - RedisStore: a shared store for deployments where more than one service
//     instance must agree on a quota. The increment and the TTL-set run as a
//     single server-side Lua script so there is no race between INCR and
//     EXPIRE, and every call carries its own short timeout so a slow store
//     cannot hang a request.
//
// # Key Schema
//
// Callers key counters as "dimension:key:window" (see pkg/tracking). The
// store itself treats keys as opaque.
//
// # Ordering
//
// Per-key increments are linearizable: each IncrementAndGet observes all
// prior increments to that key. No cross-key ordering is guaranteed.
package store
