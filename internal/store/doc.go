// Package store provides the SQLite-backed local persistent store used by
// the client cache reconciler.
//
// Each row holds the last validated value written under a cache key.
// Writes are last-write-wins; there are no transactions spanning keys.
//
// # Ordering
//
// Every write stamps the row with a logical sequence number (updated_seq),
// never a timestamp. Listings order by updated_seq ASC, key ASC COLLATE
// BINARY so results are identical across runs.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
