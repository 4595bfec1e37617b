package cache

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/krisalay/cachecenter/engine"
	evict "github.com/krisalay/cachecenter/eviction"
	"github.com/krisalay/cachecenter/expiration"
	"github.com/krisalay/cachecenter/identity"
	"github.com/krisalay/cachecenter/listener"
	"github.com/krisalay/cachecenter/types"
)

/*
ExpiringMap is a bounded map of identity.Bytes to identity.Bytes with per-entry
TTLs. It connects:
- storage (a plain map guarded by one mutex)
- eviction (one policy instance)
- expiration (engine rules + a deadline heap driven by one goroutine)
- read-through loading (engine loader, deduplicated with singleflight)
- expiration listeners (published outside the lock)

Every method is safe for concurrent use. Sequences of calls are not atomic;
use PutIfAbsent where check-then-set matters.
*/
type ExpiringMap struct {
	cfg Config

	mu       sync.Mutex
	entries  map[identity.Bytes]*types.CacheEntry
	eviction evict.Policy

	// deadlines and wake feed the expiry loop.
	deadlines deadlineHeap
	wake      chan struct{}

	// engine contains the rules: TTL handling, loader, metrics.
	engine *engine.CacheEngine

	listeners *listener.Dispatcher

	// sf collapses concurrent read-through loads of the same key.
	sf singleflight.Group

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewExpiringMap validates cfg and starts the expiry goroutine. eng may be nil;
// when it has no expiration strategy, cfg.Expiration supplies one.
func NewExpiringMap(cfg Config, eng *engine.CacheEngine, logger logrus.FieldLogger) (*ExpiringMap, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	if eng == nil {
		eng = engine.NewCacheEngine(nil, nil, nil)
	}
	if eng.Expiration == nil {
		eng.Expiration = expiration.New(cfg.Expiration)
	}

	m := &ExpiringMap{
		cfg:       cfg,
		entries:   make(map[identity.Bytes]*types.CacheEntry),
		eviction:  evict.NewEvictionPolicy(cfg.Eviction),
		wake:      make(chan struct{}, 1),
		engine:    eng,
		listeners: listener.NewDispatcher(cfg.ListenerBuffer, logger),
		done:      make(chan struct{}),
	}

	m.wg.Add(1)
	go m.expiryLoop()

	return m, nil
}

// Config returns the effective configuration.
func (m *ExpiringMap) Config() Config {
	return m.cfg
}

// AddExpirationListener registers fn for every present-to-expired transition.
// It is not called for removals or evictions of live entries.
func (m *ExpiringMap) AddExpirationListener(fn listener.Func) {
	m.listeners.Add(fn)
}

// EffectiveTTL resolves the sentinels: the result is the lifetime an entry
// put with ttl would get, zero meaning no expiry.
func (m *ExpiringMap) EffectiveTTL(ttl time.Duration) time.Duration {
	switch {
	case ttl == DefaultExpiration:
		return m.cfg.DefaultTTL
	case ttl < 0:
		return 0
	default:
		return ttl
	}
}

/*
Put stores value under key, replacing any previous value. ttl is
DefaultExpiration, NoExpiration or a positive lifetime.

Adding a new key to a full map evicts one entry first; overwriting never evicts.
*/
func (m *ExpiringMap) Put(key, value identity.Bytes, ttl time.Duration) {
	m.put(key, value, ttl, false)
}

// PutIfAbsent stores value only when no live entry exists for key and reports
// whether it did. Check and insert happen under one lock.
func (m *ExpiringMap) PutIfAbsent(key, value identity.Bytes, ttl time.Duration) bool {
	_, stored := m.put(key, value, ttl, true)
	return stored
}

// put returns the value now live under key and whether value was stored.
// When ifAbsent finds a live entry, that entry's value is returned.
func (m *ExpiringMap) put(key, value identity.Bytes, ttl time.Duration, ifAbsent bool) (identity.Bytes, bool) {
	now := time.Now()
	ttl = m.EffectiveTTL(ttl)

	m.mu.Lock()
	var events []listener.Event

	if ent, ok := m.entries[key]; ok {
		if m.engine.IsExpired(ent, now) {
			events = append(events, m.expireLocked(ent, now))
		} else if ifAbsent {
			live := ent.Value
			m.mu.Unlock()
			return live, false
		} else {
			ent.Value = value
			ent.TTL = ttl
			m.engine.OnWrite(ent, now)
			m.eviction.OnPut(key)
			m.scheduleLocked(key, ent.ExpireAt)
			m.mu.Unlock()
			return value, true
		}
	}

	events = append(events, m.makeRoomLocked(now)...)

	ent := &types.CacheEntry{Key: key, Value: value, TTL: ttl}
	m.engine.OnWrite(ent, now)
	m.entries[key] = ent
	m.eviction.OnPut(key)
	m.scheduleLocked(key, ent.ExpireAt)
	m.mu.Unlock()

	m.publish(events)
	return value, true
}

// makeRoomLocked evicts until a new entry fits. A victim that turns out to be
// already expired is reported as an expiration, so its listeners still run.
func (m *ExpiringMap) makeRoomLocked(now time.Time) []listener.Event {
	if m.cfg.MaxSize <= 0 {
		return nil
	}

	var events []listener.Event
	for len(m.entries) >= m.cfg.MaxSize {
		victim, ok := m.eviction.Evict()
		if !ok {
			break
		}
		ent, ok := m.entries[victim]
		if !ok {
			continue
		}
		delete(m.entries, victim)
		if m.engine.IsExpired(ent, now) {
			m.engine.Metrics.Expire()
			events = append(events, listener.Event{Key: ent.Key, Value: ent.Value, At: now})
			continue
		}
		m.engine.Metrics.Eviction()
	}
	return events
}

/*
Get returns the live value for key.

On a miss with read-through enabled, the engine's loader is asked once per
key (concurrent callers share the result) and a loaded record is inserted with
its remaining TTL. The load is not tied to the first caller's ctx: it keeps
running for the callers that joined it when that one gives up.
*/
func (m *ExpiringMap) Get(ctx context.Context, key identity.Bytes) (identity.Bytes, bool, error) {
	v, ok := m.lookup(key, true)
	if ok {
		m.engine.Metrics.Hit()
		return v, true, nil
	}

	m.engine.Metrics.Miss()
	if !m.engine.CanLoad() {
		return identity.Bytes{}, false, nil
	}

	res, err, _ := m.sf.Do(key.String(), func() (any, error) {
		return m.load(context.WithoutCancel(ctx), key)
	})
	if err != nil {
		return identity.Bytes{}, false, err
	}
	loaded, ok := res.(identity.Bytes)
	if !ok {
		return identity.Bytes{}, false, nil
	}
	return loaded, true, nil
}

func (m *ExpiringMap) load(ctx context.Context, key identity.Bytes) (any, error) {
	rec, ok, err := m.engine.Load(ctx, key.Bytes())
	if err != nil || !ok {
		return nil, err
	}

	now := time.Now()
	if rec.Expired(now) {
		return nil, nil
	}
	value, err := identity.New(rec.Value)
	if err != nil {
		return nil, err
	}

	ttl := rec.TTL(now)
	if ttl == 0 {
		ttl = NoExpiration
	}
	live, stored := m.put(key, value, ttl, true)
	if !stored {
		// Someone wrote the key while we were loading; theirs wins.
		return live, nil
	}
	m.engine.Metrics.Load()
	return value, nil
}

// Peek returns the live value without counting a read (no recency update, no
// sliding TTL, no metrics).
func (m *ExpiringMap) Peek(key identity.Bytes) (identity.Bytes, bool) {
	return m.lookup(key, false)
}

// Live reports whether key has an unexpired entry. Unlike Contains it leaves
// an expired entry in place for the expiry loop and publishes nothing.
func (m *ExpiringMap) Live(key identity.Bytes) bool {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	ent, ok := m.entries[key]
	return ok && !m.engine.IsExpired(ent, now)
}

// Contains reports whether key has a live entry. It does not count as a read.
func (m *ExpiringMap) Contains(key identity.Bytes) bool {
	_, ok := m.lookup(key, false)
	return ok
}

func (m *ExpiringMap) lookup(key identity.Bytes, touch bool) (identity.Bytes, bool) {
	now := time.Now()

	m.mu.Lock()
	ent, ok := m.entries[key]
	if !ok {
		m.mu.Unlock()
		return identity.Bytes{}, false
	}
	if m.engine.IsExpired(ent, now) {
		ev := m.expireLocked(ent, now)
		m.mu.Unlock()
		m.publish([]listener.Event{ev})
		return identity.Bytes{}, false
	}
	if touch {
		m.engine.OnRead(ent, now)
		m.eviction.OnGet(key)
	}
	v := ent.Value
	m.mu.Unlock()
	return v, true
}

// Entry returns a copy of the live entry for key.
func (m *ExpiringMap) Entry(key identity.Bytes) (types.CacheEntry, bool) {
	now := time.Now()

	m.mu.Lock()
	ent, ok := m.entries[key]
	if !ok {
		m.mu.Unlock()
		return types.CacheEntry{}, false
	}
	if m.engine.IsExpired(ent, now) {
		ev := m.expireLocked(ent, now)
		m.mu.Unlock()
		m.publish([]listener.Event{ev})
		return types.CacheEntry{}, false
	}
	cp := *ent
	m.mu.Unlock()
	return cp, true
}

// Remove deletes key and returns the value it held. Removing an absent key is
// a no-op. Expiration listeners are not called, except when the entry had
// already expired, in which case it is reported as expired and ok is false.
func (m *ExpiringMap) Remove(key identity.Bytes) (identity.Bytes, bool) {
	now := time.Now()

	m.mu.Lock()
	ent, ok := m.entries[key]
	if !ok {
		m.mu.Unlock()
		return identity.Bytes{}, false
	}
	if m.engine.IsExpired(ent, now) {
		ev := m.expireLocked(ent, now)
		m.mu.Unlock()
		m.publish([]listener.Event{ev})
		return identity.Bytes{}, false
	}
	m.removeLocked(ent)
	m.mu.Unlock()
	return ent.Value, true
}

// Keys returns every live key, in no particular order.
func (m *ExpiringMap) Keys() []identity.Bytes {
	out, _ := m.scan(func(identity.Bytes) bool { return true }, false)
	return keysOf(out)
}

// KeysMatching returns the live keys for which Matches(query, mode) holds. It
// scans every entry.
func (m *ExpiringMap) KeysMatching(query identity.Bytes, mode identity.MatchMode) []identity.Bytes {
	out, _ := m.scan(func(k identity.Bytes) bool { return k.Matches(query, mode) }, false)
	return keysOf(out)
}

// RemoveMatching deletes every live entry whose key matches query and returns
// what was removed. Listeners are not called for the removed entries.
func (m *ExpiringMap) RemoveMatching(query identity.Bytes, mode identity.MatchMode) map[identity.Bytes]identity.Bytes {
	out, _ := m.scan(func(k identity.Bytes) bool { return k.Matches(query, mode) }, true)
	return out
}

// scan visits every entry once, expiring the dead ones it meets.
func (m *ExpiringMap) scan(match func(identity.Bytes) bool, remove bool) (map[identity.Bytes]identity.Bytes, int) {
	now := time.Now()
	out := make(map[identity.Bytes]identity.Bytes)

	m.mu.Lock()
	var events []listener.Event
	for k, ent := range m.entries {
		if m.engine.IsExpired(ent, now) {
			events = append(events, m.expireLocked(ent, now))
			continue
		}
		if !match(k) {
			continue
		}
		out[k] = ent.Value
		if remove {
			m.removeLocked(ent)
		}
	}
	m.mu.Unlock()

	m.publish(events)
	return out, len(events)
}

// Len is the number of stored entries. Entries whose deadline passed but which
// the expiry loop has not processed yet are still counted.
func (m *ExpiringMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Clear drops every entry and returns the keys that were live. Live entries
// are dropped silently; entries already past their deadline are reported to
// the listeners as expirations.
func (m *ExpiringMap) Clear() []identity.Bytes {
	now := time.Now()

	m.mu.Lock()
	keys := make([]identity.Bytes, 0, len(m.entries))
	var events []listener.Event
	for k, ent := range m.entries {
		if m.engine.IsExpired(ent, now) {
			m.engine.Metrics.Expire()
			events = append(events, listener.Event{Key: ent.Key, Value: ent.Value, At: now})
			continue
		}
		keys = append(keys, k)
	}
	m.entries = make(map[identity.Bytes]*types.CacheEntry)
	m.eviction = evict.NewEvictionPolicy(m.cfg.Eviction)
	m.deadlines = nil
	m.mu.Unlock()

	m.publish(events)
	return keys
}

/*
SetExpiration gives a live entry a new lifetime, counted from now, and reports
whether the key was present. NoExpiration removes the deadline.
*/
func (m *ExpiringMap) SetExpiration(key identity.Bytes, ttl time.Duration) bool {
	return m.retime(key, func(ent *types.CacheEntry) {
		ent.TTL = m.EffectiveTTL(ttl)
	})
}

// ResetExpiration restarts the countdown of a live entry with its current TTL.
func (m *ExpiringMap) ResetExpiration(key identity.Bytes) bool {
	return m.retime(key, func(*types.CacheEntry) {})
}

func (m *ExpiringMap) retime(key identity.Bytes, change func(*types.CacheEntry)) bool {
	now := time.Now()

	m.mu.Lock()
	ent, ok := m.entries[key]
	if !ok {
		m.mu.Unlock()
		return false
	}
	if m.engine.IsExpired(ent, now) {
		ev := m.expireLocked(ent, now)
		m.mu.Unlock()
		m.publish([]listener.Event{ev})
		return false
	}

	change(ent)
	if ent.TTL > 0 {
		ent.ExpireAt = now.Add(ent.TTL)
	} else {
		ent.ExpireAt = time.Time{}
	}
	m.scheduleLocked(key, ent.ExpireAt)
	m.mu.Unlock()
	return true
}

// ExpiresIn returns the time left for key. Entries without deadline report
// NoExpiration. ok is false when key has no live entry.
func (m *ExpiringMap) ExpiresIn(key identity.Bytes) (time.Duration, bool) {
	ent, ok := m.Entry(key)
	if !ok {
		return 0, false
	}
	if !ent.Expires() {
		return NoExpiration, true
	}
	return ent.Remaining(time.Now()), true
}

/*
Close stops the expiry goroutine, then delivers already queued expiration
events and stops the dispatcher. The map must not be used afterwards.
*/
func (m *ExpiringMap) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.wg.Wait()
		m.listeners.Close()
	})
}

func (m *ExpiringMap) removeLocked(ent *types.CacheEntry) {
	delete(m.entries, ent.Key)
	m.eviction.Remove(ent.Key)
}

// expireLocked is the only place an entry transitions to expired.
func (m *ExpiringMap) expireLocked(ent *types.CacheEntry, now time.Time) listener.Event {
	m.removeLocked(ent)
	m.engine.Metrics.Expire()
	return listener.Event{Key: ent.Key, Value: ent.Value, At: now}
}

func (m *ExpiringMap) publish(events []listener.Event) {
	for _, ev := range events {
		m.listeners.Publish(ev)
	}
}

func keysOf(m map[identity.Bytes]identity.Bytes) []identity.Bytes {
	keys := make([]identity.Bytes, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
