package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/krisalay/cachecenter/api"
)

// runDemo walks through the public API, printing each step.
func runDemo(ctx context.Context, c api.Cache, logger logrus.FieldLogger) error {
	fmt.Println("\n==================== SYSTEM BOOT ====================")

	// ====================================================
	fmt.Println("\n==================== 1) SET / GET ====================")
	if _, err := c.Set(ctx, []byte("a"), []byte("alpha")); err != nil {
		return err
	}
	v, ok, err := c.Get(ctx, []byte("a"))
	if err != nil {
		return err
	}
	fmt.Printf("CACHE  → GET a = %s (found=%v)\n", v, ok)

	// ====================================================
	fmt.Println("\n==================== 2) TTL EXPIRATION ====================")
	if _, err := c.SetWithTTL(ctx, []byte("x"), []byte("temp-value"), time.Second); err != nil {
		return err
	}
	ttl, _, _ := c.GetTTL(ctx, []byte("x"))
	fmt.Println("CACHE  → SET x, ttl left =", ttl.Round(time.Millisecond))

	time.Sleep(1500 * time.Millisecond)

	_, ok, _ = c.Get(ctx, []byte("x"))
	fmt.Println("CACHE  → GET x after TTL, found =", ok)

	// ====================================================
	fmt.Println("\n==================== 3) SET IF ABSENT ====================")

	wg := sync.WaitGroup{}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			won, _ := c.SetIfAbsent(ctx, []byte("b"), []byte(fmt.Sprintf("from-%d", id)))
			fmt.Printf("GOROUTINE-%d → SETNX b = %v\n", id, won)
		}(i)
	}
	wg.Wait()

	// ====================================================
	fmt.Println("\n==================== 4) SIMILAR KEYS ====================")
	for _, k := range []string{"user:1", "user:2", "order:1"} {
		if _, err := c.Set(ctx, []byte(k), []byte("v")); err != nil {
			return err
		}
	}
	keys, err := c.FindSimilarKeys(ctx, []byte("user:"))
	if err != nil {
		return err
	}
	for _, k := range keys {
		fmt.Printf("CACHE  → similar to user: → %s\n", k)
	}
	removed, _ := c.DeleteSimilar(ctx, []byte("user:"))
	fmt.Println("CACHE  → DELETE SIMILAR user: removed", len(removed))

	// ====================================================
	fmt.Println("\n==================== 5) DELETE ====================")
	n, _ := c.Delete(ctx, []byte("a"), []byte("b"))
	fmt.Println("CACHE  → DELETE a b =", n)
	n, _ = c.Delete(ctx, []byte("a"))
	fmt.Println("CACHE  → DELETE a again =", n)

	// ====================================================
	fmt.Println("\n==================== SHUTDOWN ====================")
	if _, err := c.ClearAll(ctx); err != nil {
		return err
	}
	logger.Info("demo finished")
	return nil
}
