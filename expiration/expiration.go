// This file defines how cache entries expire over time.

package expiration

import (
	"strings"
	"time"

	"github.com/krisalay/cachecenter/identity"
	"github.com/krisalay/cachecenter/types"
)

/*
Strategy decides when an entry's deadline is set or moved. The per-entry
lifetime lives in CacheEntry.TTL; a strategy only decides which events restart
the countdown.
*/
type Strategy interface {

	// IsExpired checks if the entry is past its deadline at now.
	IsExpired(*types.CacheEntry, time.Time) bool

	// OnAccess is called whenever a live entry is read.
	OnAccess(*types.CacheEntry, time.Time)

	// OnWrite is called whenever an entry is written or replaced.
	OnWrite(*types.CacheEntry, time.Time)
}

// PolicyType names a built-in strategy.
type PolicyType string

const (
	// Created expires entries a fixed time after they were written.
	Created PolicyType = "created"

	// Accessed expires entries a fixed time after they were last read or written.
	Accessed PolicyType = "accessed"
)

// ParsePolicyType accepts "created" or "accessed" in any case; empty selects
// Created.
func ParsePolicyType(s string) (PolicyType, error) {
	switch PolicyType(strings.ToLower(strings.TrimSpace(s))) {
	case "", Created:
		return Created, nil
	case Accessed:
		return Accessed, nil
	default:
		return "", identity.InvalidArgument("unknown expiration policy %q", s)
	}
}

// New returns the strategy for t. Unknown types fall back to ExpireAfterWrite.
func New(t PolicyType) Strategy {
	if t == Accessed {
		return &ExpireAfterAccess{}
	}
	return &ExpireAfterWrite{}
}

func isExpired(ent *types.CacheEntry, now time.Time) bool {
	return !ent.ExpireAt.IsZero() && !now.Before(ent.ExpireAt)
}

// restart moves the deadline to now+TTL, or clears it for entries without TTL.
func restart(ent *types.CacheEntry, now time.Time) {
	if ent.TTL <= 0 {
		ent.ExpireAt = time.Time{}
		return
	}
	ent.ExpireAt = now.Add(ent.TTL)
}
