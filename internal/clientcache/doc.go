// Package clientcache reconciles live query results with a local persistent
// store on the client.
//
// The local store is a write-through cache of validated live values only.
// A live value that passes the validation gate is written under the query's
// cache key and returned; when the live value is absent or invalid, the
// last stored value is returned instead. The store is never seeded with
// unvalidated data.
//
// Paginated queries cache the reduced pagination.Snapshot. The load-more
// callback and error state of the live result are never stored; they are
// carried over from the live result when a cached snapshot is served.
package clientcache
