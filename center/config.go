package center

import (
	"time"

	cache "github.com/krisalay/cachecenter"
	evict "github.com/krisalay/cachecenter/eviction"
	"github.com/krisalay/cachecenter/expiration"
	"github.com/krisalay/cachecenter/identity"
)

// Config is what Create needs to shape a center.
type Config struct {
	MaxSize        int
	DefaultTTL     time.Duration
	Eviction       evict.PolicyType
	Expiration     expiration.PolicyType
	MatchMode      identity.MatchMode
	ListenerBuffer int

	// ReadThrough loads misses from the gateway when it implements
	// types.Loader.
	ReadThrough bool
}

func (c Config) validate() (Config, error) {
	mode, err := identity.ParseMatchMode(string(c.MatchMode))
	if err != nil {
		return c, err
	}
	c.MatchMode = mode
	if c.DefaultTTL < 0 {
		return c, identity.InvalidArgument("default ttl must not be negative, got %s", c.DefaultTTL)
	}
	return c, c.store().Validate()
}

func (c Config) store() cache.Config {
	return cache.Config{
		MaxSize:        c.MaxSize,
		DefaultTTL:     c.DefaultTTL,
		Eviction:       c.Eviction,
		Expiration:     c.Expiration,
		ListenerBuffer: c.ListenerBuffer,
	}
}
