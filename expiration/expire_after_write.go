package expiration

import (
	"time"

	"github.com/krisalay/cachecenter/types"
)

// ExpireAfterWrite gives every entry a fixed deadline from its last write.
// Reads never extend it.
type ExpireAfterWrite struct{}

func (e *ExpireAfterWrite) IsExpired(ent *types.CacheEntry, now time.Time) bool {
	return isExpired(ent, now)
}

func (e *ExpireAfterWrite) OnAccess(ent *types.CacheEntry, now time.Time) {
	ent.LastAccessedAt = now
}

func (e *ExpireAfterWrite) OnWrite(ent *types.CacheEntry, now time.Time) {
	ent.CreatedAt = now
	ent.LastAccessedAt = now
	restart(ent, now)
}
