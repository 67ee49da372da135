package tagcache

import (
	"fmt"
	"time"
)

// Profile is a cache-life profile.
type Profile struct {
	// Stale is how long clients may reuse a response without asking.
	Stale time.Duration `yaml:"stale"`
	// Revalidate is the age after which an entry is refreshed in the
	// background while still being served.
	Revalidate time.Duration `yaml:"revalidate"`
	// Expire is the entry TTL in the store.
	Expire time.Duration `yaml:"expire"`
}

// DefaultProfile is used when no profile is configured.
var DefaultProfile = Profile{
	Stale:      5 * time.Minute,
	Revalidate: 15 * time.Minute,
	Expire:     time.Hour,
}

// Validate checks 0 < Stale <= Revalidate <= Expire.
func (p Profile) Validate() error {
	if p.Stale <= 0 || p.Revalidate <= 0 || p.Expire <= 0 {
		return fmt.Errorf("tagcache: profile durations must be positive: %+v", p)
	}
	if p.Stale > p.Revalidate || p.Revalidate > p.Expire {
		return fmt.Errorf("tagcache: profile must satisfy stale <= revalidate <= expire: %+v", p)
	}
	return nil
}

// CacheControl renders the profile as a Cache-Control header value for
// responses that embed preloaded data.
func (p Profile) CacheControl() string {
	return fmt.Sprintf("public, max-age=%d, stale-while-revalidate=%d",
		int64(p.Stale/time.Second), int64((p.Expire-p.Stale)/time.Second))
}
