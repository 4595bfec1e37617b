package writepolicy

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/jmgilman/go/errors"
	"github.com/sirupsen/logrus"
)

/*
This file defines what a "write policy" is.

The cache center never talks to durable storage directly. Every write and every
removal goes through a policy, which decides when the gateway sees it:
- write-through: before the cache call returns
- write-back: later, from a single ordered queue
*/

/*
WritePolicy is the contract that all write policies must follow.
Errors never reach the caller; the policy logs them.
*/
type WritePolicy interface {

	// OnWrite is called whenever an entry is written or its TTL changes.
	// ttl <= 0 means the durable record never expires.
	OnWrite(ctx context.Context, key, value []byte, ttl time.Duration)

	// OnDelete is called whenever the durable copy of key must go: manual
	// delete, clear, or natural expiration.
	OnDelete(ctx context.Context, key []byte)

	// Close flushes pending work. The policy must not be used afterwards.
	Close()
}

type opKind int

const (
	opPersist opKind = iota
	opRemove
)

func (k opKind) String() string {
	if k == opRemove {
		return "remove"
	}
	return "persist"
}

// durableFailure wraps a gateway error the way every policy reports it.
func durableFailure(err error, op opKind, key []byte) error {
	perr := errors.Wrapf(err, errors.CodeDatabase, "durable %s failed", op)
	return errors.WithContext(perr, "key", hex.EncodeToString(key))
}

func logFailure(logger logrus.FieldLogger, err error, op opKind, key []byte) {
	logger.WithError(durableFailure(err, op, key)).
		WithField("op", op.String()).
		Error("durable write failed")
}
