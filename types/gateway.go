package types

import (
	"context"
	"time"
)

// Gateway is the narrow contract between the cache center and durable storage.
//
// RemoveByKey must treat a missing record as success: a foreground delete and
// a background expiration can race on the same key. Implementations must be
// safe for concurrent use.
type Gateway interface {
	// Persist stores (or replaces) the durable copy of an entry. ttl <= 0
	// means the record never expires.
	Persist(ctx context.Context, key, value []byte, ttl time.Duration) error

	// RemoveByKey drops the durable copy of key, if any.
	RemoveByKey(ctx context.Context, key []byte) error
}

// Record is one durable entry as yielded during recovery.
type Record struct {
	Key      []byte
	Value    []byte
	ExpireAt time.Time // zero => no TTL
}

// TTL returns the lifetime left at now. Zero means no expiry; a negative value
// means the record is already stale.
func (r Record) TTL(now time.Time) time.Duration {
	if r.ExpireAt.IsZero() {
		return 0
	}
	d := r.ExpireAt.Sub(now)
	if d <= 0 {
		return -1
	}
	return d
}

// Expired reports whether the record is past its deadline at now.
func (r Record) Expired(now time.Time) bool {
	return !r.ExpireAt.IsZero() && !r.ExpireAt.After(now)
}

// Scanner is implemented by gateways that can replay their records on startup.
// Order is unspecified.
type Scanner interface {
	Scan(ctx context.Context, fn func(Record) error) error
}

// Loader is implemented by gateways that can fetch one record on a cache miss
// (read-through). ok is false when no live record exists.
type Loader interface {
	Load(ctx context.Context, key []byte) (rec Record, ok bool, err error)
}
