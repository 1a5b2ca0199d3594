// Package store provides SQLite-backed durable storage for the offline
// worker.
//
// The store holds everything that must survive worker teardown:
//   - Buckets: Named, versioned cache buckets (at most one current)
//   - Entries: URL → response records inside a bucket
//   - Pending Tasks: The background-sync queue and reminder due times
//   - Events: Append-only log of handled worker events
//
// # Critical Patterns
//
// Logical identity and time:
//   - All ordering uses seq INTEGER (logical clock), NEVER timestamps
//   - Wall-clock values appear only in task due/synced columns, where the
//     platform contract is inherently wall-clock
//
// Deterministic query results:
//   - Event log queries include: ORDER BY seq ASC, id ASC COLLATE BINARY
//   - Ensures identical traces across replays
//
// Last-write-wins entries:
//   - Entry writes use ON CONFLICT(bucket, url) DO UPDATE. The only
//     writers are install-time bulk population and per-request
//     write-through, so a collision on the same URL simply overwrites.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Content hashes are computed via internal/record using canonical bytes
// and SHA-256 with domain separation.
package store
