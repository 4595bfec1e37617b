package writepolicy

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/krisalay/cachecenter/types"
)

// This file implements the "write-back" policy.

// writeReq represents one pending change that needs to be sent to the gateway.
type writeReq struct {
	ctx   context.Context
	op    opKind
	key   []byte
	value []byte
	ttl   time.Duration
}

/*
WriteBackPolicy manages asynchronous changes to the gateway.

One worker drains the queue, so the gateway sees writes and removals of a key
in the order the cache made them.
*/
type WriteBackPolicy struct {
	gateway types.Gateway
	logger  logrus.FieldLogger

	// ch holds pending changes. A full queue blocks the caller: dropping a
	// removal would bring the entry back on the next recovery.
	ch chan writeReq

	// mu guards closed against concurrent enqueue.
	mu     sync.RWMutex
	closed bool

	wg sync.WaitGroup
}

// NewWriteBackPolicy creates a new write-back policy with room for buffer
// pending changes. logger may be nil.
func NewWriteBackPolicy(gateway types.Gateway, buffer int, logger logrus.FieldLogger) *WriteBackPolicy {
	if buffer <= 0 {
		buffer = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	w := &WriteBackPolicy{
		gateway: gateway,
		logger:  logger,
		ch:      make(chan writeReq, buffer),
	}

	// Start one background worker
	w.wg.Add(1)
	go w.worker()

	return w
}

// OnWrite queues a persist. The context is detached from the caller's
// cancellation since the write happens after the caller returned.
func (w *WriteBackPolicy) OnWrite(ctx context.Context, key, value []byte, ttl time.Duration) {
	w.enqueue(writeReq{
		ctx:   context.WithoutCancel(ctx),
		op:    opPersist,
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
		ttl:   ttl,
	})
}

// OnDelete queues a removal.
func (w *WriteBackPolicy) OnDelete(ctx context.Context, key []byte) {
	w.enqueue(writeReq{
		ctx: context.WithoutCancel(ctx),
		op:  opRemove,
		key: append([]byte(nil), key...),
	})
}

func (w *WriteBackPolicy) enqueue(req writeReq) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		w.logger.WithField("op", req.op.String()).Warn("write-back closed, change dropped")
		return
	}
	w.ch <- req
}

/*
worker runs in the background and applies queued changes.

This is where eventual consistency happens.
*/
func (w *WriteBackPolicy) worker() {
	defer w.wg.Done()

	for req := range w.ch {
		var err error
		switch req.op {
		case opRemove:
			err = w.gateway.RemoveByKey(req.ctx, req.key)
		default:
			err = w.gateway.Persist(req.ctx, req.key, req.value, req.ttl)
		}
		if err != nil {
			logFailure(w.logger, err, req.op, req.key)
		}
	}
}

/*
Close shuts down the write-back policy gracefully.
------------------
1. Stop accepting changes
2. Wait for the worker to apply everything already queued

Calling Close more than once is safe.
*/
func (w *WriteBackPolicy) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.ch)
	w.mu.Unlock()

	w.wg.Wait()
}
