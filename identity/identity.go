// Package identity turns raw byte slices into comparable, immutable values.
//
// A Go []byte cannot be a map key and can be mutated by whoever holds it, so
// every byte sequence that enters the cache is copied into a Bytes first.
// Bytes is backed by a string, which gives it content-based == and map keying
// for free.
package identity

import (
	stderrors "errors"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/jmgilman/go/errors"
)

// ErrInvalidArgument is the root of every InvalidArgument failure raised at the
// byte boundary (nil key, nil value, non-positive TTL, ...).
var ErrInvalidArgument = stderrors.New("invalid argument")

// InvalidArgument builds an error that matches ErrInvalidArgument with errors.Is
// and carries the INVALID_INPUT code.
func InvalidArgument(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidArgument, errors.CodeInvalidInput, format, args...)
}

// Bytes is an immutable byte sequence with value semantics.
//
// The zero value is the empty sequence.
type Bytes struct {
	data string
}

// New copies b into a Bytes. A nil slice is rejected; an empty, non-nil slice
// is a valid (empty) identity.
func New(b []byte) (Bytes, error) {
	if b == nil {
		return Bytes{}, InvalidArgument("byte identity requires a non-nil buffer")
	}
	return Bytes{data: string(b)}, nil
}

// MustNew is like New but panics on nil input. Meant for tests and literals.
func MustNew(b []byte) Bytes {
	id, err := New(b)
	if err != nil {
		panic(err)
	}
	return id
}

// FromString wraps s without copying; strings are already immutable.
func FromString(s string) Bytes {
	return Bytes{data: s}
}

// Bytes returns a fresh copy of the underlying data.
func (b Bytes) Bytes() []byte {
	return []byte(b.data)
}

func (b Bytes) String() string {
	return b.data
}

func (b Bytes) Len() int {
	return len(b.data)
}

func (b Bytes) IsZero() bool {
	return len(b.data) == 0
}

// Equal reports whether both identities hold the same bytes.
func (b Bytes) Equal(o Bytes) bool {
	return b.data == o.data
}

// Hash is a 64-bit FNV-1a hash over the contents. Equal identities always hash
// to the same value.
func (b Bytes) Hash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(b.data))
	return h.Sum64()
}

// Compare orders identities byte-wise, like bytes.Compare.
func (b Bytes) Compare(o Bytes) int {
	return strings.Compare(b.data, o.data)
}

// Matches is the "similar key" predicate used by key searches and pattern
// deletes.
func (b Bytes) Matches(o Bytes, mode MatchMode) bool {
	switch mode {
	case MatchContains:
		return strings.Contains(b.data, o.data) || strings.Contains(o.data, b.data)
	default:
		short, long := b.data, o.data
		if len(short) > len(long) {
			short, long = long, short
		}
		return long[:len(short)] == short
	}
}

// GoString keeps %#v output readable for binary keys.
func (b Bytes) GoString() string {
	return fmt.Sprintf("identity.Bytes(%q)", b.data)
}

// Short renders at most n bytes as hex, used for log fields.
func (b Bytes) Short(n int) string {
	data := []byte(b.data)
	if len(data) <= n {
		return fmt.Sprintf("%x", data)
	}
	return fmt.Sprintf("%x…", data[:n])
}
