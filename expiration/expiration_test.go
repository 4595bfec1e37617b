package expiration_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krisalay/cachecenter/expiration"
	"github.com/krisalay/cachecenter/types"
)

func TestExpireAfterWriteIgnoresReads(t *testing.T) {
	s := expiration.New(expiration.Created)
	now := time.Now()
	ent := &types.CacheEntry{TTL: time.Second}

	s.OnWrite(ent, now)
	assert.Equal(t, now.Add(time.Second), ent.ExpireAt)

	s.OnAccess(ent, now.Add(500*time.Millisecond))
	assert.Equal(t, now.Add(time.Second), ent.ExpireAt)

	assert.False(t, s.IsExpired(ent, now.Add(999*time.Millisecond)))
	assert.True(t, s.IsExpired(ent, now.Add(time.Second)))
}

func TestExpireAfterAccessSlides(t *testing.T) {
	s := expiration.New(expiration.Accessed)
	now := time.Now()
	ent := &types.CacheEntry{TTL: time.Second}

	s.OnWrite(ent, now)
	later := now.Add(800 * time.Millisecond)
	s.OnAccess(ent, later)

	assert.Equal(t, later.Add(time.Second), ent.ExpireAt)
	assert.False(t, s.IsExpired(ent, now.Add(1500*time.Millisecond)))
}

func TestEntriesWithoutTTLNeverExpire(t *testing.T) {
	for _, typ := range []expiration.PolicyType{expiration.Created, expiration.Accessed} {
		s := expiration.New(typ)
		ent := &types.CacheEntry{}
		s.OnWrite(ent, time.Now())
		s.OnAccess(ent, time.Now())

		assert.True(t, ent.ExpireAt.IsZero())
		assert.False(t, s.IsExpired(ent, time.Now().Add(24*time.Hour)))
	}
}

func TestParsePolicyType(t *testing.T) {
	typ, err := expiration.ParsePolicyType("ACCESSED")
	require.NoError(t, err)
	assert.Equal(t, expiration.Accessed, typ)

	_, err = expiration.ParsePolicyType("never")
	assert.Error(t, err)
}
