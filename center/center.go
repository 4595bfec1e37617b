// Package center owns the single expiring map of the process and connects it
// to durable storage.
//
// A Center persists nothing by itself on Reload; it only pushes changes through
// its write policy when the executor asks it to, and it removes the durable
// copy of every entry that expires naturally.
//
// Changes to one key reach the write policy in the order they were made in
// memory: foreground writers and the expiration listener both hold the key's
// lock from the in-memory change until the write policy accepted it.
package center

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmgilman/go/errors"
	"github.com/sirupsen/logrus"

	cache "github.com/krisalay/cachecenter"
	"github.com/krisalay/cachecenter/engine"
	"github.com/krisalay/cachecenter/identity"
	"github.com/krisalay/cachecenter/listener"
	"github.com/krisalay/cachecenter/registry"
	"github.com/krisalay/cachecenter/types"
	"github.com/krisalay/cachecenter/writepolicy"
)

// ErrUninitialized is returned by Active before any center was activated.
var ErrUninitialized = registry.ErrUninitialized

// Deps are the collaborators of a center. Gateway is required; the rest
// default.
type Deps struct {
	Gateway types.Gateway

	// Writes defaults to write-through over Gateway.
	Writes writepolicy.WritePolicy

	Logger  logrus.FieldLogger
	Metrics types.Metrics
}

const keyStripes = 64

// Center is the cache center: one ExpiringMap plus the policy that mirrors it
// to durable storage.
type Center struct {
	id        uuid.UUID
	cfg       Config
	store     *cache.ExpiringMap
	gateway   types.Gateway
	writes    writepolicy.WritePolicy
	logger    logrus.FieldLogger
	matchMode identity.MatchMode

	keyLocks [keyStripes]sync.Mutex
}

// Create builds a center and its store. The center is not active until
// Activate registers it.
func Create(cfg Config, deps Deps) (*Center, error) {
	cfg, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	if deps.Gateway == nil {
		return nil, identity.InvalidArgument("center needs a persistence gateway")
	}

	id := uuid.New()
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("center", id.String())

	writes := deps.Writes
	if writes == nil {
		writes = writepolicy.NewWriteThroughPolicy(deps.Gateway, logger)
	}

	var loader types.Loader
	if cfg.ReadThrough {
		if l, ok := deps.Gateway.(types.Loader); ok {
			loader = l
		} else {
			logger.Warn("read-through requested but gateway cannot load; disabled")
		}
	}

	eng := engine.NewCacheEngine(nil, loader, deps.Metrics)
	store, err := cache.NewExpiringMap(cfg.store(), eng, logger)
	if err != nil {
		return nil, err
	}

	c := &Center{
		id:        id,
		cfg:       cfg,
		store:     store,
		gateway:   deps.Gateway,
		writes:    writes,
		logger:    logger,
		matchMode: cfg.MatchMode,
	}
	store.AddExpirationListener(func(ev listener.Event) {
		c.OnExpired(ev.Key, ev.Value)
	})

	logger.WithFields(logrus.Fields{
		"max_size":    store.Config().MaxSize,
		"default_ttl": store.Config().DefaultTTL,
		"eviction":    store.Config().Eviction,
		"expiration":  store.Config().Expiration,
		"match_mode":  cfg.MatchMode,
	}).Info("cache center created")

	return c, nil
}

// ID identifies this center instance in logs.
func (c *Center) ID() uuid.UUID { return c.id }

// Store is the in-memory map behind the center.
func (c *Center) Store() *cache.ExpiringMap { return c.store }

func (c *Center) Writes() writepolicy.WritePolicy { return c.writes }

func (c *Center) Gateway() types.Gateway { return c.gateway }

// MatchMode is the similar-key predicate used by FindSimilarKeys and
// DeleteSimilar.
func (c *Center) MatchMode() identity.MatchMode { return c.matchMode }

func (c *Center) Logger() logrus.FieldLogger { return c.logger }

// Reload inserts a recovered entry without persisting it again and without
// checking whether the key exists. ttl <= 0 means the entry never expires.
func (c *Center) Reload(key, value []byte, ttl time.Duration) error {
	k, err := identity.New(key)
	if err != nil {
		return err
	}
	v, err := identity.New(value)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	c.store.Put(k, v, ttl)
	return nil
}

/*
Recover replays every durable record through Reload. Records already past
their deadline are not loaded; their durable copy is removed instead. It
returns the number of entries loaded.

The gateway must implement types.Scanner.
*/
func (c *Center) Recover(ctx context.Context) (int, error) {
	scanner, ok := c.gateway.(types.Scanner)
	if !ok {
		return 0, errors.New(errors.CodeNotImplemented, "gateway cannot scan records")
	}

	loaded, skipped := 0, 0
	err := scanner.Scan(ctx, func(rec types.Record) error {
		now := time.Now()
		if rec.Expired(now) {
			skipped++
			c.writes.OnDelete(ctx, rec.Key)
			return nil
		}
		if err := c.Reload(rec.Key, rec.Value, rec.TTL(now)); err != nil {
			return err
		}
		loaded++
		return nil
	})
	if err != nil {
		return loaded, errors.Wrap(err, errors.CodeDatabase, "recover cache center")
	}

	c.logger.WithFields(logrus.Fields{
		"loaded":  loaded,
		"skipped": skipped,
	}).Info("cache center recovered")
	return loaded, nil
}

/*
LockKey serializes changes to key and returns the matching unlock. Hold it
from the in-memory change until the write policy has accepted the durable
one. Keys share a fixed set of stripes, so never hold two at once.
*/
func (c *Center) LockKey(key identity.Bytes) func() {
	mu := &c.keyLocks[key.Hash()%keyStripes]
	mu.Lock()
	return mu.Unlock
}

// RemoveDurable removes the durable copy of key unless the store holds a live
// entry for it again. It reports whether the removal was handed to the write
// policy.
func (c *Center) RemoveDurable(ctx context.Context, key identity.Bytes) bool {
	unlock := c.LockKey(key)
	defer unlock()

	if c.store.Live(key) {
		return false
	}
	c.writes.OnDelete(ctx, key.Bytes())
	return true
}

// OnExpired removes the durable copy of an entry that expired in memory. A key
// that was written again since is left alone. Failures are logged by the write
// policy and never reach the store.
func (c *Center) OnExpired(key, value identity.Bytes) {
	log := c.logger.WithField("key", key.Short(16))
	if !c.RemoveDurable(context.Background(), key) {
		log.Debug("entry expired but was rewritten; durable copy kept")
		return
	}
	log.Debug("entry expired")
}

// Close stops the store, delivering pending expirations, then flushes the
// write policy.
func (c *Center) Close() {
	c.close(true)
}

func (c *Center) close(flushWrites bool) {
	c.store.Close()
	if flushWrites {
		c.writes.Close()
	}
	c.logger.Info("cache center closed")
}

// Activate registers c in r. If another center won the slot first, c is
// closed and the winner is returned. A write policy the winner also uses is
// left open.
func Activate(r *registry.Registry, c *Center) *Center {
	winner, installed := registry.Register(r, c)
	if !installed {
		c.logger.WithField("winner", winner.id.String()).Warn("cache center already active; discarding")
		c.close(c.writes != winner.writes)
	}
	return winner
}

// Active returns the center registered in r.
func Active(r *registry.Registry) (*Center, error) {
	return registry.Active[*Center](r)
}
