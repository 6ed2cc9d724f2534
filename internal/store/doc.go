// Package store provides the SQLite-backed mutation journal.
//
// The journal is an append-only history of simulation runs:
//   - Runs: one row per serve session (UUIDv7 id, endpoint, rule set)
//   - Mutations: one row per register change, stamped with the
//     execution's sequence number
//
// The journal is write-only from the scheduler's point of view. It is
// never read back to restore the register bank; the trace command and the
// tests are its only readers.
//
// # Ordering
//
//   - Mutations are ordered by seq, then register_index, NEVER by time
//   - Runs are ordered by started_at, then id (UUIDv7 sorts by time)
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
