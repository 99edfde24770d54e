// Package store provides SQLite-backed storage for lifecycle traces.
//
// A trace is append-only:
//   - Sessions: one per entity machine, with the rules and config it ran
//   - Inputs: every frame and control event fed to the session, by seq
//   - Transitions: every state change the session emitted, by id
//
// Live machine state is never persisted. A session is reconstructed by
// replaying its inputs through a fresh lifecycle built from its rules.
//
// # Ordering
//
// Ordering uses seq, never timestamps. Every read ends in
// ORDER BY ... seq ASC, id COLLATE BINARY ASC (or the table's
// equivalent), so two reads of the same trace return identical slices.
//
// # Idempotency
//
// Transition ids are content-addressed (ir.TransitionID), so writing the
// same transition twice is a no-op. Inputs are keyed by (session_id, seq).
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
