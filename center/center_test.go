package center_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krisalay/cachecenter/center"
	"github.com/krisalay/cachecenter/identity"
	"github.com/krisalay/cachecenter/internal/gatewaytest"
	"github.com/krisalay/cachecenter/registry"
	"github.com/krisalay/cachecenter/types"
)

func newCenter(t *testing.T, cfg center.Config, gw types.Gateway) *center.Center {
	t.Helper()
	logger, _ := test.NewNullLogger()

	c, err := center.Create(cfg, center.Deps{Gateway: gw, Logger: logger})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestCreateRejectsInvalidConfig(t *testing.T) {
	gw := gatewaytest.New()

	cases := map[string]center.Config{
		"eviction":    {Eviction: "random"},
		"expiration":  {Expiration: "never"},
		"match mode":  {MatchMode: "regex"},
		"max size":    {MaxSize: -1},
		"default ttl": {DefaultTTL: -time.Second},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := center.Create(cfg, center.Deps{Gateway: gw})
			assert.ErrorIs(t, err, identity.ErrInvalidArgument)
		})
	}

	_, err := center.Create(center.Config{}, center.Deps{})
	assert.ErrorIs(t, err, identity.ErrInvalidArgument)
}

func TestCreateAppliesDefaults(t *testing.T) {
	c := newCenter(t, center.Config{MaxSize: 5}, gatewaytest.New())

	assert.Equal(t, identity.MatchPrefix, c.MatchMode())
	assert.Equal(t, 5, c.Store().Config().MaxSize)
	assert.NotNil(t, c.Writes())
}

func TestReloadDoesNotPersist(t *testing.T) {
	gw := gatewaytest.New()
	c := newCenter(t, center.Config{}, gw)

	require.NoError(t, c.Reload([]byte("k"), []byte("v"), 0))
	require.NoError(t, c.Reload([]byte("k"), []byte("v2"), time.Hour))

	v, ok := c.Store().Peek(identity.FromString("k"))
	require.True(t, ok)
	assert.Equal(t, "v2", v.String())
	assert.Empty(t, gw.Calls())

	assert.ErrorIs(t, c.Reload(nil, []byte("v"), 0), identity.ErrInvalidArgument)
	assert.ErrorIs(t, c.Reload([]byte("k"), nil, 0), identity.ErrInvalidArgument)
}

func TestExpiryRemovesDurableRecordOnce(t *testing.T) {
	gw := gatewaytest.New()
	gw.Seed("k", "v", time.Time{})
	c := newCenter(t, center.Config{}, gw)

	require.NoError(t, c.Reload([]byte("k"), []byte("v"), 30*time.Millisecond))

	require.Eventually(t, func() bool {
		return len(gw.CallsFor("remove", "k")) > 0
	}, time.Second, 5*time.Millisecond)

	_, ok := c.Store().Peek(identity.FromString("k"))
	assert.False(t, ok)
	c.Close()
	assert.Len(t, gw.CallsFor("remove", "k"), 1)
	assert.False(t, gw.Has("k"))
}

func TestExpiredButRewrittenKeyKeepsDurableCopy(t *testing.T) {
	gw := gatewaytest.New()
	gw.Seed("k", "v2", time.Time{})
	c := newCenter(t, center.Config{}, gw)
	require.NoError(t, c.Reload([]byte("k"), []byte("v2"), 0))

	c.OnExpired(identity.FromString("k"), identity.FromString("v1"))
	assert.False(t, c.RemoveDurable(context.Background(), identity.FromString("k")))
	c.Close()

	assert.Empty(t, gw.CallsFor("remove", "k"))
	assert.True(t, gw.Has("k"))
}

func TestKeyLockSerializesSameKey(t *testing.T) {
	c := newCenter(t, center.Config{}, gatewaytest.New())
	k := identity.FromString("k")

	unlock := c.LockKey(k)
	acquired := make(chan struct{})
	go func() {
		defer close(acquired)
		c.LockKey(k)()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder got the key lock while it was held")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	<-acquired
}

func TestCleanupFailureIsSwallowed(t *testing.T) {
	gw := gatewaytest.New()
	gw.RemoveErr = assert.AnError
	logger, hook := test.NewNullLogger()
	c, err := center.Create(center.Config{}, center.Deps{Gateway: gw, Logger: logger})
	require.NoError(t, err)

	c.OnExpired(identity.FromString("k"), identity.FromString("v"))
	c.Close()

	var logged bool
	for _, e := range hook.AllEntries() {
		if e.Message == "durable write failed" {
			logged = true
		}
	}
	assert.True(t, logged)
}

func TestRecoverSkipsExpiredRecords(t *testing.T) {
	gw := gatewaytest.New()
	gw.Seed("live", "1", time.Now().Add(time.Hour))
	gw.Seed("forever", "2", time.Time{})
	gw.Seed("stale", "3", time.Now().Add(-time.Minute))
	c := newCenter(t, center.Config{}, gw)

	n, err := c.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	store := c.Store()
	assert.True(t, store.Contains(identity.FromString("live")))
	assert.True(t, store.Contains(identity.FromString("forever")))
	assert.False(t, store.Contains(identity.FromString("stale")))
	assert.False(t, gw.Has("stale"))

	left, ok := store.ExpiresIn(identity.FromString("live"))
	require.True(t, ok)
	assert.Greater(t, left, 59*time.Minute)

	assert.Empty(t, gw.CallsFor("persist", "live"))
}

type writeOnlyGateway struct{ types.Gateway }

func TestRecoverNeedsScanner(t *testing.T) {
	c := newCenter(t, center.Config{}, writeOnlyGateway{gatewaytest.New()})

	_, err := c.Recover(context.Background())
	assert.Error(t, err)
}

func TestReadThroughLoadsFromGateway(t *testing.T) {
	gw := gatewaytest.New()
	gw.Seed("k", "durable", time.Now().Add(time.Hour))
	c := newCenter(t, center.Config{ReadThrough: true}, gw)

	v, ok, err := c.Store().Get(context.Background(), identity.FromString("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "durable", v.String())
}

func TestActivateFirstWins(t *testing.T) {
	r := registry.New()
	gw := gatewaytest.New()

	_, err := center.Active(r)
	require.ErrorIs(t, err, center.ErrUninitialized)
	assert.Contains(t, err.Error(), "*center.Center")

	a := newCenter(t, center.Config{}, gw)
	b := newCenter(t, center.Config{}, gw)

	assert.Same(t, a, center.Activate(r, a))
	assert.Same(t, a, center.Activate(r, b))

	active, err := center.Active(r)
	require.NoError(t, err)
	assert.Same(t, a, active)
	assert.NotEqual(t, a.ID(), b.ID())
}
