package cache

import (
	"time"

	evict "github.com/krisalay/cachecenter/eviction"
	"github.com/krisalay/cachecenter/expiration"
	"github.com/krisalay/cachecenter/identity"
)

const (
	// DefaultExpiration asks the map to apply Config.DefaultTTL.
	DefaultExpiration time.Duration = 0

	// NoExpiration stores an entry without a deadline. ExpiresIn also reports
	// it for entries that never expire.
	NoExpiration time.Duration = -1
)

// Config shapes an ExpiringMap.
type Config struct {
	// MaxSize bounds the number of entries. <= 0 means unbounded.
	MaxSize int

	// DefaultTTL applies to puts made with DefaultExpiration. <= 0 means such
	// entries never expire.
	DefaultTTL time.Duration

	// Eviction picks the victim when MaxSize is reached. Empty selects LRU.
	Eviction evict.PolicyType

	// Expiration decides whether reads extend deadlines. Empty selects
	// expiration.Created.
	Expiration expiration.PolicyType

	// ListenerBuffer is the initial capacity of the expiration event queue.
	// The queue grows past it. <= 0 selects 1024.
	ListenerBuffer int
}

// withDefaults expects a validated Config.
func (c Config) withDefaults() Config {
	c.Eviction, _ = evict.ParsePolicyType(string(c.Eviction))
	c.Expiration, _ = expiration.ParsePolicyType(string(c.Expiration))
	if c.ListenerBuffer <= 0 {
		c.ListenerBuffer = 1024
	}
	if c.DefaultTTL < 0 {
		c.DefaultTTL = 0
	}
	return c
}

// Validate rejects unknown policy names.
func (c Config) Validate() error {
	if _, err := evict.ParsePolicyType(string(c.Eviction)); err != nil {
		return err
	}
	if _, err := expiration.ParsePolicyType(string(c.Expiration)); err != nil {
		return err
	}
	if c.MaxSize < 0 {
		return identity.InvalidArgument("max size must not be negative, got %d", c.MaxSize)
	}
	return nil
}
