// Package tagcache wraps the server-side tag cache: entries are stored under
// the 16-hex-digit tag of their query key so that any process can revoke
// them by tag alone.
//
// Boundary is the read-through front. It serves an entry from the TagStore
// when present, otherwise fetches from the backend and stores the result
// for the cache-life profile's Expire duration. Entries older than the
// profile's Revalidate duration are still served and are refreshed in the
// background.
//
// # Stores
//
//   - RedisStore: go-redis client, native key TTL, optional key prefix for
//     sharing one Redis instance between caches. The caller owns the client.
//   - MemoryStore: in-process map with lazy expiry, for tests and single
//     process deployments.
//
// Invalidating a tag that is absent is a no-op in both stores, so duplicate
// revalidation requests are harmless.
package tagcache
