package types

import (
	"time"

	"github.com/krisalay/cachecenter/identity"
)

// CacheEntry is owned by the expiring map and only mutated under its lock.
// Anything handed out of the map is a copy.
type CacheEntry struct {
	Key   identity.Bytes
	Value identity.Bytes

	// TTL is the lifetime the entry was configured with. Zero means the entry
	// never expires. It is kept so sliding expiration and ResetExpiration can
	// restart the countdown.
	TTL time.Duration

	CreatedAt      time.Time
	LastAccessedAt time.Time
	ExpireAt       time.Time // zero => no TTL
}

// Expires reports whether the entry carries a deadline at all.
func (e *CacheEntry) Expires() bool {
	return !e.ExpireAt.IsZero()
}

// Remaining is the time left before ExpireAt, or zero for entries without TTL.
func (e *CacheEntry) Remaining(now time.Time) time.Duration {
	if !e.Expires() {
		return 0
	}
	return e.ExpireAt.Sub(now)
}
