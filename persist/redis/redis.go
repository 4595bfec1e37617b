// Package redis persists cache records as plain Redis strings. Redis expires
// them itself, so a stale record is never yielded.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/krisalay/cachecenter/types"
)

const scanCount = 256

// Gateway implements types.Gateway, types.Scanner and types.Loader on a Redis
// client.
type Gateway struct {
	r redis.Cmdable
	// key prefix to namespace records
	prefix string
}

var (
	_ types.Gateway = (*Gateway)(nil)
	_ types.Scanner = (*Gateway)(nil)
	_ types.Loader  = (*Gateway)(nil)
)

// New creates a Redis-backed gateway. An empty prefix selects "cachecenter".
func New(r redis.Cmdable, prefix string) *Gateway {
	if prefix == "" {
		prefix = "cachecenter"
	}
	return &Gateway{r: r, prefix: prefix}
}

func (g *Gateway) namespaced(key []byte) string {
	return g.prefix + ":" + string(key)
}

func (g *Gateway) Persist(ctx context.Context, key, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := g.r.Set(ctx, g.namespaced(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis: persist: %w", err)
	}
	return nil
}

func (g *Gateway) RemoveByKey(ctx context.Context, key []byte) error {
	if err := g.r.Del(ctx, g.namespaced(key)).Err(); err != nil {
		return fmt.Errorf("redis: remove: %w", err)
	}
	return nil
}

func (g *Gateway) Load(ctx context.Context, key []byte) (types.Record, bool, error) {
	rec, ok, err := g.fetch(ctx, g.namespaced(key))
	if err != nil {
		return types.Record{}, false, fmt.Errorf("redis: load: %w", err)
	}
	return rec, ok, nil
}

// Scan walks the namespace with SCAN, so records written during the walk may
// or may not be seen.
func (g *Gateway) Scan(ctx context.Context, fn func(types.Record) error) error {
	pattern := escapeGlob(g.prefix) + ":*"

	var cursor uint64
	for {
		keys, next, err := g.r.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return fmt.Errorf("redis: scan: %w", err)
		}
		for _, ns := range keys {
			rec, ok, err := g.fetch(ctx, ns)
			if err != nil {
				return fmt.Errorf("redis: scan: %w", err)
			}
			if !ok {
				continue
			}
			if err := fn(rec); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// fetch reads value and remaining TTL of one namespaced key in a single round
// trip.
func (g *Gateway) fetch(ctx context.Context, ns string) (types.Record, bool, error) {
	var (
		get  *redis.StringCmd
		pttl *redis.DurationCmd
	)
	_, err := g.r.Pipelined(ctx, func(p redis.Pipeliner) error {
		get = p.Get(ctx, ns)
		pttl = p.PTTL(ctx, ns)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return types.Record{}, false, err
	}

	value, err := get.Bytes()
	if errors.Is(err, redis.Nil) {
		return types.Record{}, false, nil
	}
	if err != nil {
		return types.Record{}, false, err
	}

	rec := types.Record{
		Key:   []byte(strings.TrimPrefix(ns, g.prefix+":")),
		Value: value,
	}
	if left := pttl.Val(); left > 0 {
		rec.ExpireAt = time.Now().Add(left)
	}
	return rec, true, nil
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
