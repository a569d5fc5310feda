// Package store provides SQLite-backed durable storage for verification
// runs.
//
// The store is an append-only log with:
//   - Runs: one header per verification run (spec hash, versions, status)
//   - Events: the verified trace, stamped with the engine's logical clock
//   - Violations: every violation reported during the run
//   - Facts: a snapshot of the declarative states active when the run ended
//
// # Ordering
//
// Every read has an ORDER BY. Events are ordered by seq, violations by
// insertion order and facts by snapshot order (soup order), so a run reads
// back identically every time and a replay can be compared to the original.
//
// # Idempotency
//
// Event and violation ids are content-addressed (see internal/ir/hash.go),
// and writes use ON CONFLICT DO NOTHING, so re-recording a run is a no-op.
// A fact snapshot replaces the previous snapshot of the same run.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
