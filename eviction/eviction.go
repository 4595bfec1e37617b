// Package eviction decides which entry leaves the map when it is full.
package eviction

import (
	"fmt"
	"strings"

	"github.com/krisalay/cachecenter/identity"
)

/*
Policy tracks keys and nominates a victim when the map overflows.

Implementations are not safe for concurrent use; the expiring map calls them
while holding its own lock.
*/
type Policy interface {

	// OnGet records a read of a tracked key.
	OnGet(identity.Bytes)

	// OnPut starts tracking a key. Re-putting a tracked key is a no-op for
	// insertion-ordered policies.
	OnPut(identity.Bytes)

	// Remove stops tracking a key that left the map for any reason other than
	// eviction (delete, expiry, clear).
	Remove(identity.Bytes)

	// Evict chooses, untracks and returns the victim. ok is false when nothing
	// is tracked.
	Evict() (key identity.Bytes, ok bool)

	// Len is the number of tracked keys.
	Len() int
}

// PolicyType identifies a built-in policy.
type PolicyType string

const (
	// LRU evicts the key that has gone unread the longest.
	LRU PolicyType = "LRU"

	// LFU evicts the key with the fewest reads. Ties are broken arbitrarily.
	LFU PolicyType = "LFU"

	// FIFO evicts the oldest inserted key regardless of reads.
	FIFO PolicyType = "FIFO"
)

// ParsePolicyType accepts a policy name in any case. Empty selects LRU.
func ParsePolicyType(s string) (PolicyType, error) {
	t := PolicyType(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case "":
		return LRU, nil
	case LRU, LFU, FIFO:
		return t, nil
	default:
		return "", identity.InvalidArgument("unknown eviction policy %q", s)
	}
}

// NewEvictionPolicy builds a fresh policy of type t.
func NewEvictionPolicy(t PolicyType) Policy {
	switch t {
	case LRU:
		return newLRU()
	case LFU:
		return newLFU()
	case FIFO:
		return newFIFO()
	default:
		panic(fmt.Sprintf("eviction: unknown policy %q", t))
	}
}
