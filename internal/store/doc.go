// Package store provides the SQLite record store for touchdelay.
//
// The store plays three roles for the engine:
//   - engine.RecordStore: one UPDATE ... WHERE pk IN (...) per bulk touch
//   - engine.TxManager: flush passes run in a transaction carried by the
//     context; commit hooks run after commit and are dropped on rollback
//   - engine.Journal: every bulk update is logged in touch_flushes
//
// Record tables are created per record type from an ir.Registry
// (EnsureTable). Every non-key column is TEXT: timestamps are stored as UTC
// RFC 3339 with microsecond precision, foreign keys as the parent id.
//
// # Critical Patterns
//
// Idempotent journal:
//   - touch_flushes.id is content-addressed (ir.FlushEntryID)
//   - ON CONFLICT(id) DO NOTHING, so re-recording an entry is harmless
//
// Deterministic query results:
//   - Journal queries order by seq ASC, id ASC COLLATE BINARY
//
// Transaction joining:
//   - All queries go through the context's transaction when one is open;
//     the pool has a single connection, so bypassing it would deadlock
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
