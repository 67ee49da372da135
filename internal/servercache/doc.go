// Package servercache merges a server-preloaded snapshot with the live
// subscription for the same query, and revalidates the server tag cache
// when the two diverge.
//
// A reconciler keeps a reference value that starts as the preload. When a
// live value arrives that is not structurally equal to the reference, a
// revalidation of the query's cache tag is started in the background and
// the reference advances to that live value. Repeated deliveries of the
// same live value therefore revalidate once, and a later change triggers
// again. Revalidation never blocks Observe; failures are logged.
package servercache
