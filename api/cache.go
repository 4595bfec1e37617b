package api

import (
	"context"
	"time"
)

/*
Cache defines the PUBLIC byte-array API of the cache center.
This is a contract that guarantees certain behaviors, without exposing internals.
Eviction, expiration, concurrency, recovery and durable writes are all hidden
behind this interface.

Every method:
- rejects nil keys and values with an error matching identity.ErrInvalidArgument
- resolves the active center on every call and fails with an error matching
  registry.ErrUninitialized when none is active
*/
type Cache interface {

	/*
		Get returns the value stored under key.

		BEHAVIOR:
		-------------------
		1. Live entry in memory: returned (hit)
		2. Missing or expired: ok is false, unless read-through is enabled and
		   the gateway holds a live record
	*/
	Get(ctx context.Context, key []byte) (value []byte, ok bool, err error)

	// Set stores value under key with the default TTL and persists it.
	Set(ctx context.Context, key, value []byte) (bool, error)

	// SetWithTTL stores value under key for ttl and persists it. ttl must be
	// positive.
	SetWithTTL(ctx context.Context, key, value []byte, ttl time.Duration) (bool, error)

	// SetIfAbsent stores value only when key has no live entry. The check and
	// the insert are one atomic step.
	SetIfAbsent(ctx context.Context, key, value []byte) (bool, error)

	/*
		Delete removes keys from memory and from durable storage.

		It returns how many keys were removed from memory. Durable removal is
		issued for every key, present or not. Deleting twice returns 0 the
		second time.
	*/
	Delete(ctx context.Context, keys ...[]byte) (int, error)

	// FindSimilarKeys returns every live key similar to query. It scans the
	// whole cache.
	FindSimilarKeys(ctx context.Context, query []byte) ([][]byte, error)

	// DeleteSimilar removes every live entry whose key is similar to query and
	// returns the removed pairs, keyed by string(key).
	DeleteSimilar(ctx context.Context, query []byte) (map[string][]byte, error)

	// HasKey reports whether key has a live entry. It does not count as a read.
	HasKey(ctx context.Context, key []byte) (bool, error)

	/*
		GetTTL returns the remaining lifetime of key.

		RETURN VALUES:
		--------------
		> 0                : time left before expiration
		cache.NoExpiration : key exists but never expires
		ok == false        : key does not exist or is already expired
	*/
	GetTTL(ctx context.Context, key []byte) (ttl time.Duration, ok bool, err error)

	// SetTTL gives a live key a new lifetime counted from now. ttl <= 0
	// removes the deadline. Returns false when the key is absent.
	SetTTL(ctx context.Context, key []byte, ttl time.Duration) (bool, error)

	// ResetTTL restarts the countdown of a live key with its current TTL.
	ResetTTL(ctx context.Context, key []byte) (bool, error)

	// ClearAll drops every entry and its durable copy. Expiration listeners
	// are not called.
	ClearAll(ctx context.Context) (bool, error)
}
