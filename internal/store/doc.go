// Package store provides the SQLite dispatch journal for form sessions.
//
// The journal is append-only:
//   - Sessions: one row per session, with the form name and the rule source
//     it was built from
//   - Dispatches: one row per emitted event, keyed by its content-addressed ID
//   - Mutations: the writes each dispatch applied, in application order
//
// # Ordering
//
// Every query orders by seq (the coordinator's logical clock), then by ID
// COLLATE BINARY. Wall-clock time is never stored, so a journal read back
// and replayed yields identical records.
//
// # Idempotency
//
// Dispatch IDs are derived from (session, seq, event), so writing the same
// dispatch twice is a no-op. A replay into the same database never
// duplicates rows.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
