package cache_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cache "github.com/krisalay/cachecenter"
	"github.com/krisalay/cachecenter/engine"
	"github.com/krisalay/cachecenter/eviction"
	"github.com/krisalay/cachecenter/expiration"
	"github.com/krisalay/cachecenter/identity"
	"github.com/krisalay/cachecenter/listener"
	"github.com/krisalay/cachecenter/types"
)

//
// ================= TEST BACKING STORE =================
//

type TestStore struct {
	mu    sync.RWMutex
	data  map[string]types.Record
	loads atomic.Int32
}

func NewTestStore() *TestStore {
	return &TestStore{data: make(map[string]types.Record)}
}

func (s *TestStore) Load(ctx context.Context, key []byte) (types.Record, bool, error) {
	s.loads.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[string(key)]
	return rec, ok, nil
}

func (s *TestStore) Set(key, value string, expireAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = types.Record{Key: []byte(key), Value: []byte(value), ExpireAt: expireAt}
}

//
// ================= HELPERS =================
//

func newTestMap(t testing.TB, cfg cache.Config, loader types.Loader) *cache.ExpiringMap {
	t.Helper()
	logger, _ := test.NewNullLogger()

	eng := engine.NewCacheEngine(expiration.New(cfg.Expiration), loader, nil)
	m, err := cache.NewExpiringMap(cfg, eng, logger)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func id(s string) identity.Bytes { return identity.FromString(s) }

type expirations struct {
	mu   sync.Mutex
	keys []string
}

func (e *expirations) record(ev listener.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.keys = append(e.keys, ev.Key.String())
}

func (e *expirations) snapshot() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.keys...)
}

//
// ================= BASIC OPERATIONS =================
//

func TestAddAndRetrieve(t *testing.T) {
	m := newTestMap(t, cache.Config{MaxSize: 10}, nil)

	m.Put(id("key1"), id("value1"), cache.DefaultExpiration)

	v, ok, err := m.Get(context.Background(), id("key1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "value1", v.String())
}

func TestRetrieveNonExistentKey(t *testing.T) {
	m := newTestMap(t, cache.Config{MaxSize: 10}, nil)

	_, ok, err := m.Get(context.Background(), id("missing"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateExistingKey(t *testing.T) {
	m := newTestMap(t, cache.Config{MaxSize: 10}, nil)

	m.Put(id("key1"), id("value1"), cache.DefaultExpiration)
	m.Put(id("key1"), id("value2"), cache.DefaultExpiration)

	v, ok := m.Peek(id("key1"))
	require.True(t, ok)
	assert.Equal(t, "value2", v.String())
	assert.Equal(t, 1, m.Len())
}

func TestRemoveKey(t *testing.T) {
	m := newTestMap(t, cache.Config{MaxSize: 10}, nil)

	m.Put(id("key1"), id("value1"), cache.DefaultExpiration)

	v, ok := m.Remove(id("key1"))
	require.True(t, ok)
	assert.Equal(t, "value1", v.String())
	assert.False(t, m.Contains(id("key1")))

	_, ok = m.Remove(id("key1"))
	assert.False(t, ok)
}

func TestPutIfAbsent(t *testing.T) {
	m := newTestMap(t, cache.Config{MaxSize: 10}, nil)

	assert.True(t, m.PutIfAbsent(id("k"), id("v1"), cache.DefaultExpiration))
	assert.False(t, m.PutIfAbsent(id("k"), id("v2"), cache.DefaultExpiration))

	v, _ := m.Peek(id("k"))
	assert.Equal(t, "v1", v.String())
}

func TestPutIfAbsentReplacesExpiredEntry(t *testing.T) {
	m := newTestMap(t, cache.Config{MaxSize: 10}, nil)

	m.Put(id("k"), id("old"), 20*time.Millisecond)
	time.Sleep(40 * time.Millisecond)

	assert.True(t, m.PutIfAbsent(id("k"), id("new"), cache.NoExpiration))
	v, _ := m.Peek(id("k"))
	assert.Equal(t, "new", v.String())
}

func TestConcurrentPutIfAbsentHasOneWinner(t *testing.T) {
	m := newTestMap(t, cache.Config{MaxSize: 10}, nil)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.PutIfAbsent(id("k"), id("v"), cache.DefaultExpiration) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load())
}

func TestKeysMatchingAndRemoveMatching(t *testing.T) {
	m := newTestMap(t, cache.Config{}, nil)

	for _, k := range []string{"user:1", "user:2", "order:1"} {
		m.Put(id(k), id("x"), cache.DefaultExpiration)
	}

	keys := m.KeysMatching(id("user:"), identity.MatchPrefix)
	assert.ElementsMatch(t, []identity.Bytes{id("user:1"), id("user:2")}, keys)

	removed := m.RemoveMatching(id("user:"), identity.MatchPrefix)
	assert.Len(t, removed, 2)
	assert.ElementsMatch(t, []identity.Bytes{id("order:1")}, m.Keys())
}

func TestClearDropsEverythingSilently(t *testing.T) {
	m := newTestMap(t, cache.Config{}, nil)
	var seen expirations
	m.AddExpirationListener(seen.record)

	m.Put(id("a"), id("1"), 30*time.Millisecond)
	m.Put(id("b"), id("2"), cache.NoExpiration)

	keys := m.Clear()
	assert.Len(t, keys, 2)
	assert.Equal(t, 0, m.Len())

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, seen.snapshot())
}

func TestClearReportsEntriesPastTheirDeadline(t *testing.T) {
	m := newTestMap(t, cache.Config{}, nil)
	var seen expirations
	m.AddExpirationListener(seen.record)

	const n = 200
	for i := 0; i < n; i++ {
		m.Put(id(fmt.Sprintf("dead-%03d", i)), id("x"), time.Millisecond)
	}
	m.Put(id("live"), id("y"), cache.NoExpiration)
	time.Sleep(5 * time.Millisecond)

	keys := m.Clear()
	assert.Equal(t, []identity.Bytes{id("live")}, keys)

	// Every dead entry is reported exactly once, whether the expiry loop or
	// Clear got to it first.
	require.Eventually(t, func() bool { return len(seen.snapshot()) == n }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	got := seen.snapshot()
	assert.Len(t, got, n)
	assert.NotContains(t, got, "live")
}

//
// ================= CAPACITY & EVICTION =================
//

func TestEvictionOnCapacity(t *testing.T) {
	m := newTestMap(t, cache.Config{MaxSize: 2, Eviction: eviction.LRU}, nil)

	m.Put(id("k1"), id("v1"), cache.DefaultExpiration)
	m.Put(id("k2"), id("v2"), cache.DefaultExpiration)
	m.Put(id("k3"), id("v3"), cache.DefaultExpiration)

	assert.Equal(t, 2, m.Len())
	assert.True(t, m.Contains(id("k3")))
	assert.NotEqual(t, m.Contains(id("k1")), m.Contains(id("k2")), "exactly one of k1/k2 must be evicted")
}

func TestLRUEvictsLeastRecentlyRead(t *testing.T) {
	m := newTestMap(t, cache.Config{MaxSize: 2, Eviction: eviction.LRU}, nil)
	ctx := context.Background()

	m.Put(id("k1"), id("v1"), cache.DefaultExpiration)
	m.Put(id("k2"), id("v2"), cache.DefaultExpiration)
	_, _, _ = m.Get(ctx, id("k1"))
	m.Put(id("k3"), id("v3"), cache.DefaultExpiration)

	assert.True(t, m.Contains(id("k1")))
	assert.False(t, m.Contains(id("k2")))
}

func TestOverwriteNeverEvicts(t *testing.T) {
	m := newTestMap(t, cache.Config{MaxSize: 2}, nil)

	m.Put(id("k1"), id("v1"), cache.DefaultExpiration)
	m.Put(id("k2"), id("v2"), cache.DefaultExpiration)
	m.Put(id("k1"), id("v1b"), cache.DefaultExpiration)

	assert.True(t, m.Contains(id("k1")))
	assert.True(t, m.Contains(id("k2")))
}

func TestEvictionDoesNotNotify(t *testing.T) {
	m := newTestMap(t, cache.Config{MaxSize: 1}, nil)
	var seen expirations
	m.AddExpirationListener(seen.record)

	m.Put(id("k1"), id("v1"), time.Hour)
	m.Put(id("k2"), id("v2"), time.Hour)

	m.Close()
	assert.Empty(t, seen.snapshot())
}

//
// ================= TTL TEST =================
//

func TestTTLExpiration(t *testing.T) {
	m := newTestMap(t, cache.Config{MaxSize: 10}, nil)

	m.Put(id("ttlKey"), id("temp"), 50*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	_, ok, err := m.Get(context.Background(), id("ttlKey"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDefaultTTLApplies(t *testing.T) {
	m := newTestMap(t, cache.Config{DefaultTTL: time.Minute}, nil)

	m.Put(id("k"), id("v"), cache.DefaultExpiration)
	left, ok := m.ExpiresIn(id("k"))
	require.True(t, ok)
	assert.InDelta(t, time.Minute, left, float64(time.Second))

	m.Put(id("forever"), id("v"), cache.NoExpiration)
	left, ok = m.ExpiresIn(id("forever"))
	require.True(t, ok)
	assert.Equal(t, cache.NoExpiration, left)
}

func TestActiveExpiryNotifiesExactlyOnce(t *testing.T) {
	m := newTestMap(t, cache.Config{}, nil)
	var seen expirations
	m.AddExpirationListener(seen.record)

	m.Put(id("k"), id("v"), 30*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(seen.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	// Lazy paths must not report it a second time.
	_, ok, _ := m.Get(context.Background(), id("k"))
	assert.False(t, ok)
	m.Close()
	assert.Equal(t, []string{"k"}, seen.snapshot())
}

func TestManualRemoveDoesNotNotify(t *testing.T) {
	m := newTestMap(t, cache.Config{}, nil)
	var seen expirations
	m.AddExpirationListener(seen.record)

	m.Put(id("k"), id("v"), 40*time.Millisecond)
	_, ok := m.Remove(id("k"))
	require.True(t, ok)

	time.Sleep(80 * time.Millisecond)
	m.Close()
	assert.Empty(t, seen.snapshot())
}

func TestSlidingExpirationExtendsOnRead(t *testing.T) {
	m := newTestMap(t, cache.Config{Expiration: expiration.Accessed}, nil)
	ctx := context.Background()

	m.Put(id("k"), id("v"), 80*time.Millisecond)
	for i := 0; i < 4; i++ {
		time.Sleep(40 * time.Millisecond)
		_, ok, err := m.Get(ctx, id("k"))
		require.NoError(t, err)
		require.True(t, ok, "read %d should keep the entry alive", i)
	}
}

func TestSetAndResetExpiration(t *testing.T) {
	m := newTestMap(t, cache.Config{}, nil)

	m.Put(id("k"), id("v"), cache.NoExpiration)
	require.True(t, m.SetExpiration(id("k"), time.Hour))

	left, ok := m.ExpiresIn(id("k"))
	require.True(t, ok)
	assert.Greater(t, left, 59*time.Minute)

	require.True(t, m.ResetExpiration(id("k")))
	assert.False(t, m.SetExpiration(id("absent"), time.Hour))
	assert.False(t, m.ResetExpiration(id("absent")))

	require.True(t, m.SetExpiration(id("k"), cache.NoExpiration))
	left, _ = m.ExpiresIn(id("k"))
	assert.Equal(t, cache.NoExpiration, left)
}

//
// ================= READ-THROUGH =================
//

func TestReadThroughLoadsFromStore(t *testing.T) {
	store := NewTestStore()
	store.Set("keyX", "store-value", time.Now().Add(time.Hour))
	store.Set("stale", "old", time.Now().Add(-time.Second))
	m := newTestMap(t, cache.Config{MaxSize: 10}, store)
	ctx := context.Background()

	v, ok, err := m.Get(ctx, id("keyX"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "store-value", v.String())

	left, ok := m.ExpiresIn(id("keyX"))
	require.True(t, ok)
	assert.Greater(t, left, 59*time.Minute)

	_, ok, err = m.Get(ctx, id("stale"))
	require.NoError(t, err)
	assert.False(t, ok)
}

type countingMetrics struct {
	types.NoopMetrics
	loads atomic.Int32
}

func (c *countingMetrics) Load() { c.loads.Add(1) }

type loaderFunc func(ctx context.Context, key []byte) (types.Record, bool, error)

func (f loaderFunc) Load(ctx context.Context, key []byte) (types.Record, bool, error) {
	return f(ctx, key)
}

func TestSharedLoadOutlivesFirstCallerCancel(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	loader := loaderFunc(func(ctx context.Context, key []byte) (types.Record, bool, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		if err := ctx.Err(); err != nil {
			return types.Record{}, false, err
		}
		return types.Record{Key: key, Value: []byte("durable")}, true, nil
	})
	m := newTestMap(t, cache.Config{MaxSize: 10}, loader)

	first, cancel := context.WithCancel(context.Background())
	type result struct {
		v   identity.Bytes
		ok  bool
		err error
	}
	firstDone := make(chan result, 1)
	go func() {
		v, ok, err := m.Get(first, id("k"))
		firstDone <- result{v, ok, err}
	}()
	<-started

	secondDone := make(chan result, 1)
	go func() {
		v, ok, err := m.Get(context.Background(), id("k"))
		secondDone <- result{v, ok, err}
	}()
	time.Sleep(10 * time.Millisecond)

	cancel()
	close(release)

	for _, ch := range []chan result{firstDone, secondDone} {
		r := <-ch
		require.NoError(t, r.err)
		require.True(t, r.ok)
		assert.Equal(t, "durable", r.v.String())
	}
}

func TestLoadLosingToConcurrentWriteReturnsTheWinner(t *testing.T) {
	var m *cache.ExpiringMap
	loader := loaderFunc(func(ctx context.Context, key []byte) (types.Record, bool, error) {
		m.Put(id(string(key)), id("winner"), cache.NoExpiration)
		return types.Record{Key: key, Value: []byte("durable")}, true, nil
	})
	metrics := &countingMetrics{}

	logger, _ := test.NewNullLogger()
	eng := engine.NewCacheEngine(nil, loader, metrics)
	var err error
	m, err = cache.NewExpiringMap(cache.Config{MaxSize: 10}, eng, logger)
	require.NoError(t, err)
	t.Cleanup(m.Close)

	v, ok, err := m.Get(context.Background(), id("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "winner", v.String())
	assert.Equal(t, int32(0), metrics.loads.Load())

	v, ok = m.Peek(id("k"))
	require.True(t, ok)
	assert.Equal(t, "winner", v.String())
}

//
// ================= CONCURRENCY TEST =================
//

func TestConcurrentGet(t *testing.T) {
	store := NewTestStore()
	store.Set("key", "value", time.Time{})
	m := newTestMap(t, cache.Config{MaxSize: 10}, store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, ok, err := m.Get(ctx, id("key"))
			assert.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "value", v.String())
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, store.loads.Load(), int32(10))
}

func TestConcurrentMixedOperations(t *testing.T) {
	m := newTestMap(t, cache.Config{MaxSize: 64}, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				k := id(string(rune('a' + (g+i)%26)))
				switch i % 4 {
				case 0:
					m.Put(k, k, time.Millisecond*time.Duration(1+i%5))
				case 1:
					_, _, _ = m.Get(ctx, k)
				case 2:
					m.Remove(k)
				default:
					m.SetExpiration(k, time.Second)
				}
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, m.Len(), 64)
}

func TestInvalidConfig(t *testing.T) {
	_, err := cache.NewExpiringMap(cache.Config{Eviction: "MRU"}, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, identity.ErrInvalidArgument)

	_, err = cache.NewExpiringMap(cache.Config{MaxSize: -1}, nil, nil)
	assert.ErrorIs(t, err, identity.ErrInvalidArgument)
}
