// Package querykey derives the cache identity of a (query, arguments) pair.
//
// A Key has the form <namespace>:<identity>:<serialized args>, where the
// namespace is "q" for simple queries and "pq" for paginated ones and the
// arguments are serialized through ir.Serialize. The Tag is the first 16 hex
// characters of SHA-256(Key) and is the handle the tag cache invalidates by.
//
// Derivation is pure: the same inputs give the same Key and Tag in every
// process, on the client and on the server alike.
package querykey
