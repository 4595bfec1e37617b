// Package registry holds process-wide, set-once slots keyed by Go type.
//
// The first value registered for a type wins; later registrations are silent
// no-ops that hand back the winner. Reading a slot that was never set fails
// with ErrUninitialized instead of returning a zero value.
package registry

import (
	stderrors "errors"
	"reflect"
	"sync"

	"github.com/jmgilman/go/errors"
)

// ErrUninitialized is matched (errors.Is) by every failure to read an empty
// slot.
var ErrUninitialized = stderrors.New("center uninitialized")

// Registry is a set of activation slots. The zero value is not usable; call
// New or use Default.
type Registry struct {
	mu    sync.Mutex
	slots map[reflect.Type]any
}

// Default is the registry used by processes that run a single cache center.
var Default = New()

// New returns an empty registry.
func New() *Registry {
	return &Registry{slots: make(map[reflect.Type]any)}
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Register installs v in the slot for T unless the slot is already set.
// It returns the value that occupies the slot afterwards and whether v was
// the one installed.
func Register[T any](r *Registry, v T) (T, bool) {
	t := typeOf[T]()

	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.slots[t]; ok {
		return cur.(T), false
	}
	r.slots[t] = v
	return v, true
}

// Active returns the value registered for T.
func Active[T any](r *Registry) (T, error) {
	t := typeOf[T]()

	r.mu.Lock()
	cur, ok := r.slots[t]
	r.mu.Unlock()

	if !ok {
		var zero T
		return zero, Uninitialized(t.String())
	}
	return cur.(T), nil
}

// IsActive reports whether a value is registered for T.
func IsActive[T any](r *Registry) bool {
	t := typeOf[T]()

	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.slots[t]
	return ok
}

// Reset empties the slot for T. Production code never calls it; tests use it
// to start from a clean registry.
func Reset[T any](r *Registry) {
	t := typeOf[T]()

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.slots, t)
}

// Uninitialized builds the error returned when no value of typeName has been
// registered yet.
func Uninitialized(typeName string) error {
	err := errors.Wrapf(ErrUninitialized, errors.CodeUnavailable, "no active %s registered", typeName)
	err = errors.WithClassification(err, errors.ClassificationPermanent)
	return errors.WithContext(err, "type", typeName)
}
