// Package store provides SQLite-backed history of perft runs.
//
// Every run saved with --db becomes one row in runs and one row per record
// in steps, so regressions in an engine's move generator can be traced back
// to the first run that reported them.
//
// # Ordering
//
// Steps are keyed by (run_id, seq) where seq is the position of the step in
// the run, which is corpus order. Queries always ORDER BY seq so reads are
// deterministic. Runs list newest first by started_at, then id; run IDs are
// UUIDv7 so the tiebreak is also chronological.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
