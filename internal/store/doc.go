// Package store provides SQLite-backed storage for the scheduler's history:
// materialization and observation events, launched runs, per-tick
// evaluation records and the sensor cursor.
//
// The evaluator never writes here during a tick. A tick reads events and
// runs through internal/queryer, and the daemon commits the new cursor and
// the tick's evaluation records together in CommitTick, so an abandoned
// tick leaves nothing behind.
//
// # Ordering
//
//   - Events are ordered by storage_id, an autoincrement logical clock.
//   - Evaluation records are ordered by evaluation_id, then asset key.
//   - Run partitions are ordered by asset key, then partition key.
//
// # Run Idempotency
//
// Run ids are deterministic, so a re-evaluated tick proposes the same id
// again. CreateRun reports an existing id with ErrRunExists and callers
// treat it as already handled.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
