package writepolicy

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/krisalay/cachecenter/types"
)

/*
This file implements the "write-through" policy.

Whenever the cache writes or removes data, the same change reaches the gateway
before the cache call returns.

So the flow is: Cache write → gateway write (synchronous)
*/

// WriteThroughPolicy forwards every change to the gateway immediately.
type WriteThroughPolicy struct {
	gateway types.Gateway
	logger  logrus.FieldLogger
}

// NewWriteThroughPolicy creates a new write-through policy. logger may be nil.
func NewWriteThroughPolicy(gateway types.Gateway, logger logrus.FieldLogger) *WriteThroughPolicy {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &WriteThroughPolicy{gateway: gateway, logger: logger}
}

/*
OnWrite persists the entry synchronously. If the gateway is slow, cache writes
become slow.
*/
func (w *WriteThroughPolicy) OnWrite(ctx context.Context, key, value []byte, ttl time.Duration) {
	if err := w.gateway.Persist(ctx, key, value, ttl); err != nil {
		logFailure(w.logger, err, opPersist, key)
	}
}

// OnDelete removes the durable record synchronously.
func (w *WriteThroughPolicy) OnDelete(ctx context.Context, key []byte) {
	if err := w.gateway.RemoveByKey(ctx, key); err != nil {
		logFailure(w.logger, err, opRemove, key)
	}
}

// Close has nothing to flush.
func (w *WriteThroughPolicy) Close() {}
