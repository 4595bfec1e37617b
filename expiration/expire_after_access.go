package expiration

import (
	"time"

	"github.com/krisalay/cachecenter/types"
)

/*
ExpireAfterAccess implements "sliding TTL": every read pushes the deadline
forward by the entry's TTL. As long as the data keeps getting used it stays
alive; if nobody touches it for a full TTL it expires.
*/
type ExpireAfterAccess struct{}

func (e *ExpireAfterAccess) IsExpired(ent *types.CacheEntry, now time.Time) bool {
	return isExpired(ent, now)
}

func (e *ExpireAfterAccess) OnAccess(ent *types.CacheEntry, now time.Time) {
	ent.LastAccessedAt = now
	restart(ent, now)
}

func (e *ExpireAfterAccess) OnWrite(ent *types.CacheEntry, now time.Time) {
	ent.CreatedAt = now
	ent.LastAccessedAt = now
	restart(ent, now)
}
