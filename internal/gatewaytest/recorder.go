// Package gatewaytest provides an in-memory types.Gateway that records every
// call, for tests of the packages that sit above durable storage.
package gatewaytest

import (
	"context"
	"sync"
	"time"

	"github.com/krisalay/cachecenter/types"
)

// Call is one recorded gateway invocation.
type Call struct {
	Op    string // "persist" or "remove"
	Key   string
	Value string
	TTL   time.Duration
}

// Recorder stores records in memory and remembers every call. It implements
// types.Gateway, types.Scanner and types.Loader.
type Recorder struct {
	mu      sync.Mutex
	records map[string]types.Record
	calls   []Call

	// PersistErr and RemoveErr, when set, are returned instead of applying
	// the change.
	PersistErr error
	RemoveErr  error
}

// New returns an empty Recorder.
func New() *Recorder {
	return &Recorder{records: make(map[string]types.Record)}
}

func (r *Recorder) Persist(_ context.Context, key, value []byte, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, Call{Op: "persist", Key: string(key), Value: string(value), TTL: ttl})
	if r.PersistErr != nil {
		return r.PersistErr
	}
	rec := types.Record{Key: append([]byte(nil), key...), Value: append([]byte(nil), value...)}
	if ttl > 0 {
		rec.ExpireAt = time.Now().Add(ttl)
	}
	r.records[string(key)] = rec
	return nil
}

func (r *Recorder) RemoveByKey(_ context.Context, key []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, Call{Op: "remove", Key: string(key)})
	if r.RemoveErr != nil {
		return r.RemoveErr
	}
	delete(r.records, string(key))
	return nil
}

func (r *Recorder) Scan(_ context.Context, fn func(types.Record) error) error {
	r.mu.Lock()
	recs := make([]types.Record, 0, len(r.records))
	for _, rec := range r.records {
		recs = append(recs, rec)
	}
	r.mu.Unlock()

	for _, rec := range recs {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (r *Recorder) Load(_ context.Context, key []byte) (types.Record, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[string(key)]
	if !ok || rec.Expired(time.Now()) {
		return types.Record{}, false, nil
	}
	return rec, true, nil
}

// Seed stores a record directly, without recording a call.
func (r *Recorder) Seed(key, value string, expireAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[key] = types.Record{Key: []byte(key), Value: []byte(value), ExpireAt: expireAt}
}

// Has reports whether a durable record exists for key.
func (r *Recorder) Has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.records[key]
	return ok
}

// Record returns the durable record for key.
func (r *Recorder) Record(key string) (types.Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key]
	return rec, ok
}

// Calls returns a copy of every call so far.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CallsFor returns the calls with the given op and key.
func (r *Recorder) CallsFor(op, key string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Op == op && c.Key == key {
			out = append(out, c)
		}
	}
	return out
}
