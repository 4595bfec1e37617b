package engine

import (
	"context"
	"time"

	"github.com/krisalay/cachecenter/expiration"
	"github.com/krisalay/cachecenter/types"
)

/*
CacheEngine holds the rules of the expiring map, not its storage.

It decides:
- When an entry is expired
- How deadlines move on reads and writes
- Where a miss may be loaded from (read-through)
- Where events are counted

It does NOT:
- Store data
- Lock anything
- Choose eviction victims
- Persist writes (that is the cache center's write policy)
*/
type CacheEngine struct {

	// Expiration controls when deadlines are set and moved.
	// If nil, entries keep whatever deadline they were written with.
	Expiration expiration.Strategy

	// Loader is consulted on a miss when read-through is enabled.
	// If nil, a miss is just a miss.
	Loader types.Loader

	// Metrics is never nil after NewCacheEngine.
	Metrics types.Metrics
}

/*
NewCacheEngine creates a CacheEngine. loader and metrics may be nil.
*/
func NewCacheEngine(
	exp expiration.Strategy,
	loader types.Loader,
	metrics types.Metrics,
) *CacheEngine {

	if metrics == nil {
		metrics = types.NoopMetrics{}
	}

	return &CacheEngine{
		Expiration: exp,
		Loader:     loader,
		Metrics:    metrics,
	}
}

/*
IsExpired reports whether ent is past its deadline at now. Without a
strategy, only an explicit deadline counts.
*/
func (e *CacheEngine) IsExpired(ent *types.CacheEntry, now time.Time) bool {
	if e.Expiration != nil {
		return e.Expiration.IsExpired(ent, now)
	}
	return ent.Expires() && !now.Before(ent.ExpireAt)
}

// OnRead is called every time the map returns a live entry.
func (e *CacheEngine) OnRead(ent *types.CacheEntry, now time.Time) {
	if e.Expiration != nil {
		e.Expiration.OnAccess(ent, now)
	}
}

// OnWrite is called whenever an entry is written, replaced or has its TTL
// changed.
func (e *CacheEngine) OnWrite(ent *types.CacheEntry, now time.Time) {
	if e.Expiration != nil {
		e.Expiration.OnWrite(ent, now)
		return
	}
	ent.CreatedAt = now
	ent.LastAccessedAt = now
	if ent.TTL > 0 {
		ent.ExpireAt = now.Add(ent.TTL)
	} else {
		ent.ExpireAt = time.Time{}
	}
}

/*
Load fetches key from the backing store on a miss. ok is false when no loader
is configured or the store has no live record.
*/
func (e *CacheEngine) Load(ctx context.Context, key []byte) (types.Record, bool, error) {
	if e.Loader == nil {
		return types.Record{}, false, nil
	}
	return e.Loader.Load(ctx, key)
}

// CanLoad reports whether misses are read through.
func (e *CacheEngine) CanLoad() bool {
	return e.Loader != nil
}
