package identity_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krisalay/cachecenter/identity"
)

func TestNewRejectsNil(t *testing.T) {
	_, err := identity.New(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, identity.ErrInvalidArgument))
}

func TestNewAcceptsEmpty(t *testing.T) {
	id, err := identity.New([]byte{})
	require.NoError(t, err)
	assert.True(t, id.IsZero())
}

func TestEqualityIsByContent(t *testing.T) {
	a := []byte("user:42")
	b := make([]byte, len(a))
	copy(b, a)

	ia := identity.MustNew(a)
	ib := identity.MustNew(b)

	assert.True(t, ia == ib)
	assert.True(t, ia.Equal(ib))
	assert.Equal(t, ia.Hash(), ib.Hash())

	m := map[identity.Bytes]int{ia: 1}
	assert.Equal(t, 1, m[ib])
}

func TestIdentityIsNotAffectedBySourceMutation(t *testing.T) {
	src := []byte("abc")
	id := identity.MustNew(src)
	src[0] = 'z'
	assert.Equal(t, "abc", id.String())

	out := id.Bytes()
	out[1] = 'z'
	assert.Equal(t, "abc", id.String())
}

func TestMatchesPrefix(t *testing.T) {
	query := identity.FromString("user:")
	cases := map[string]bool{
		"user:1":  true,
		"user:2":  true,
		"user":    true,
		"order:1": false,
		"usr:1":   false,
		"":        true,
	}
	for key, want := range cases {
		got := identity.FromString(key).Matches(query, identity.MatchPrefix)
		assert.Equal(t, want, got, "key %q", key)
	}
}

func TestMatchesContains(t *testing.T) {
	query := identity.FromString(":1")
	assert.True(t, identity.FromString("user:1").Matches(query, identity.MatchContains))
	assert.True(t, identity.FromString("order:1:x").Matches(query, identity.MatchContains))
	assert.False(t, identity.FromString("user:2").Matches(query, identity.MatchContains))
	assert.False(t, identity.FromString("user:1").Matches(query, identity.MatchPrefix))
}

func TestParseMatchMode(t *testing.T) {
	m, err := identity.ParseMatchMode("")
	require.NoError(t, err)
	assert.Equal(t, identity.MatchPrefix, m)

	m, err = identity.ParseMatchMode("Contains")
	require.NoError(t, err)
	assert.Equal(t, identity.MatchContains, m)

	_, err = identity.ParseMatchMode("glob")
	assert.ErrorIs(t, err, identity.ErrInvalidArgument)
}
