package tagcache

import (
	"context"
	"time"
)

// TagStore stores opaque values under tags.
type TagStore interface {
	// Get returns the value stored under tag. The boolean is false on a miss.
	Get(ctx context.Context, tag string) ([]byte, bool, error)

	// Set stores value under tag. A zero ttl means no expiry.
	Set(ctx context.Context, tag string, value []byte, ttl time.Duration) error

	// Invalidate removes tag. Invalidating a missing tag is not an error.
	Invalidate(ctx context.Context, tag string) error
}
