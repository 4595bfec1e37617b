// Package executor is the byte-array front of the cache center. It implements
// api.Cache on top of whichever center is active in a registry.
package executor

import (
	"context"
	"time"

	cache "github.com/krisalay/cachecenter"
	"github.com/krisalay/cachecenter/api"
	"github.com/krisalay/cachecenter/center"
	"github.com/krisalay/cachecenter/identity"
	"github.com/krisalay/cachecenter/registry"
)

var _ api.Cache = (*Executor)(nil)

// Executor resolves the active center on every call, so it can be built
// before a center is activated.
type Executor struct {
	registry *registry.Registry
}

// New returns an executor reading from r. A nil r means registry.Default.
func New(r *registry.Registry) *Executor {
	if r == nil {
		r = registry.Default
	}
	return &Executor{registry: r}
}

func (e *Executor) center() (*center.Center, error) {
	return center.Active(e.registry)
}

func wrapKey(key []byte) (identity.Bytes, error) {
	if key == nil {
		return identity.Bytes{}, identity.InvalidArgument("key must not be nil")
	}
	return identity.New(key)
}

func wrapValue(value []byte) (identity.Bytes, error) {
	if value == nil {
		return identity.Bytes{}, identity.InvalidArgument("value must not be nil")
	}
	return identity.New(value)
}

func wrapPair(key, value []byte) (identity.Bytes, identity.Bytes, error) {
	k, err := wrapKey(key)
	if err != nil {
		return k, identity.Bytes{}, err
	}
	v, err := wrapValue(value)
	return k, v, err
}

func (e *Executor) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	k, err := wrapKey(key)
	if err != nil {
		return nil, false, err
	}
	c, err := e.center()
	if err != nil {
		return nil, false, err
	}

	v, ok, err := c.Store().Get(ctx, k)
	if err != nil || !ok {
		return nil, false, err
	}
	return v.Bytes(), true, nil
}

func (e *Executor) Set(ctx context.Context, key, value []byte) (bool, error) {
	return e.set(ctx, key, value, cache.DefaultExpiration)
}

func (e *Executor) SetWithTTL(ctx context.Context, key, value []byte, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, identity.InvalidArgument("ttl must be positive, got %s", ttl)
	}
	return e.set(ctx, key, value, ttl)
}

func (e *Executor) set(ctx context.Context, key, value []byte, ttl time.Duration) (bool, error) {
	k, v, err := wrapPair(key, value)
	if err != nil {
		return false, err
	}
	c, err := e.center()
	if err != nil {
		return false, err
	}

	unlock := c.LockKey(k)
	defer unlock()

	store := c.Store()
	store.Put(k, v, ttl)
	c.Writes().OnWrite(ctx, k.Bytes(), v.Bytes(), store.EffectiveTTL(ttl))
	return true, nil
}

func (e *Executor) SetIfAbsent(ctx context.Context, key, value []byte) (bool, error) {
	k, v, err := wrapPair(key, value)
	if err != nil {
		return false, err
	}
	c, err := e.center()
	if err != nil {
		return false, err
	}

	unlock := c.LockKey(k)
	defer unlock()

	store := c.Store()
	if !store.PutIfAbsent(k, v, cache.DefaultExpiration) {
		return false, nil
	}
	c.Writes().OnWrite(ctx, k.Bytes(), v.Bytes(), store.EffectiveTTL(cache.DefaultExpiration))
	return true, nil
}

// Delete validates every key before removing any of them. The durable copy is
// removed even when memory held nothing for the key.
func (e *Executor) Delete(ctx context.Context, keys ...[]byte) (int, error) {
	ids := make([]identity.Bytes, 0, len(keys))
	for _, key := range keys {
		k, err := wrapKey(key)
		if err != nil {
			return 0, err
		}
		ids = append(ids, k)
	}
	c, err := e.center()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, k := range ids {
		if e.remove(ctx, c, k) {
			removed++
		}
	}
	return removed, nil
}

func (e *Executor) remove(ctx context.Context, c *center.Center, k identity.Bytes) bool {
	unlock := c.LockKey(k)
	defer unlock()

	_, ok := c.Store().Remove(k)
	c.Writes().OnDelete(ctx, k.Bytes())
	return ok
}

func (e *Executor) FindSimilarKeys(ctx context.Context, query []byte) ([][]byte, error) {
	q, err := wrapKey(query)
	if err != nil {
		return nil, err
	}
	c, err := e.center()
	if err != nil {
		return nil, err
	}

	keys := c.Store().KeysMatching(q, c.MatchMode())
	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.Bytes())
	}
	return out, nil
}

func (e *Executor) DeleteSimilar(ctx context.Context, query []byte) (map[string][]byte, error) {
	q, err := wrapKey(query)
	if err != nil {
		return nil, err
	}
	c, err := e.center()
	if err != nil {
		return nil, err
	}

	removed := c.Store().RemoveMatching(q, c.MatchMode())
	out := make(map[string][]byte, len(removed))
	for k, v := range removed {
		c.RemoveDurable(ctx, k)
		out[k.String()] = v.Bytes()
	}
	return out, nil
}

func (e *Executor) HasKey(ctx context.Context, key []byte) (bool, error) {
	k, err := wrapKey(key)
	if err != nil {
		return false, err
	}
	c, err := e.center()
	if err != nil {
		return false, err
	}
	return c.Store().Contains(k), nil
}

func (e *Executor) GetTTL(ctx context.Context, key []byte) (time.Duration, bool, error) {
	k, err := wrapKey(key)
	if err != nil {
		return 0, false, err
	}
	c, err := e.center()
	if err != nil {
		return 0, false, err
	}

	ttl, ok := c.Store().ExpiresIn(k)
	return ttl, ok, nil
}

func (e *Executor) SetTTL(ctx context.Context, key []byte, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return e.retime(ctx, key, func(m *cache.ExpiringMap, k identity.Bytes) bool {
		return m.SetExpiration(k, ttl)
	})
}

func (e *Executor) ResetTTL(ctx context.Context, key []byte) (bool, error) {
	return e.retime(ctx, key, (*cache.ExpiringMap).ResetExpiration)
}

// retime applies a TTL change and re-persists the entry so the durable
// deadline follows the in-memory one.
func (e *Executor) retime(ctx context.Context, key []byte, change func(*cache.ExpiringMap, identity.Bytes) bool) (bool, error) {
	k, err := wrapKey(key)
	if err != nil {
		return false, err
	}
	c, err := e.center()
	if err != nil {
		return false, err
	}

	unlock := c.LockKey(k)
	defer unlock()

	store := c.Store()
	if !change(store, k) {
		return false, nil
	}
	if ent, ok := store.Entry(k); ok {
		c.Writes().OnWrite(ctx, k.Bytes(), ent.Value.Bytes(), ent.TTL)
	}
	return true, nil
}

func (e *Executor) ClearAll(ctx context.Context) (bool, error) {
	c, err := e.center()
	if err != nil {
		return false, err
	}

	for _, k := range c.Store().Clear() {
		c.RemoveDurable(ctx, k)
	}
	return true, nil
}
