package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/krisalay/cachecenter/center"
	"github.com/krisalay/cachecenter/eviction"
	"github.com/krisalay/cachecenter/executor"
	"github.com/krisalay/cachecenter/expiration"
	"github.com/krisalay/cachecenter/registry"
	"github.com/krisalay/cachecenter/writepolicy"
)

// ================= BACKING STORE =================

// countingGateway only counts calls, so the benchmark measures the cache.
type countingGateway struct {
	mu       sync.Mutex
	persists int
	removes  int
}

func (g *countingGateway) Persist(context.Context, []byte, []byte, time.Duration) error {
	g.mu.Lock()
	g.persists++
	g.mu.Unlock()
	return nil
}

func (g *countingGateway) RemoveByKey(context.Context, []byte) error {
	g.mu.Lock()
	g.removes++
	g.mu.Unlock()
	return nil
}

// ================= BENCHMARK =================

func main() {
	ctx := context.Background()

	// ---------------- Cache Config ----------------
	const (
		capacity    = 200000
		preloadKeys = 100000
		goroutines  = 200
		opsPerG     = 5000
	)

	fmt.Println("\n================ CACHE LOAD BENCHMARK =================")
	fmt.Println("CONFIG")
	fmt.Println("---------------------------------")
	fmt.Println("Capacity     :", capacity)
	fmt.Println("Preload Keys :", preloadKeys)
	fmt.Println("Goroutines   :", goroutines)
	fmt.Println("Ops/Goroutine:", opsPerG)
	fmt.Println("---------------------------------")

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	// ---------------- Cache Center ----------------
	gateway := &countingGateway{}
	writes := writepolicy.NewWriteBackPolicy(gateway, 4096, logger)

	c, err := center.Create(center.Config{
		MaxSize:    capacity,
		DefaultTTL: 60 * time.Second,
		Eviction:   eviction.LRU,
		Expiration: expiration.Accessed,
	}, center.Deps{Gateway: gateway, Writes: writes, Logger: logger})
	if err != nil {
		logger.WithError(err).Fatal("create center")
	}
	reg := registry.New()
	center.Activate(reg, c)
	exec := executor.New(reg)

	keys := make([][]byte, preloadKeys)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("key-%d", i))
	}

	// ---------------- Preload Cache ----------------
	fmt.Println("Preloading cache...")
	for i, key := range keys {
		_, _ = exec.Set(ctx, key, []byte(fmt.Sprint(i)))
	}
	fmt.Println("Preload complete.")

	// ---------------- Warmup ----------------
	fmt.Println("Warming up cache...")
	for i := 0; i < 10000; i++ {
		_, _, _ = exec.Get(ctx, keys[i%preloadKeys])
	}
	fmt.Println("Warmup complete.")

	// ---------------- Load Test ----------------
	fmt.Println("Running concurrency benchmark...")

	start := time.Now()

	wg := sync.WaitGroup{}
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < opsPerG; j++ {
				_, _, _ = exec.Get(ctx, keys[j%preloadKeys])
			}
		}()
	}

	wg.Wait()

	duration := time.Since(start)
	totalOps := goroutines * opsPerG

	c.Close()

	fmt.Println("\n================ RESULTS =================")
	fmt.Printf("Total Operations : %d\n", totalOps)
	fmt.Printf("Total Time       : %v\n", duration)
	fmt.Printf("Throughput       : %.2f ops/sec\n", float64(totalOps)/duration.Seconds())
	fmt.Printf("Durable Writes   : %d\n", gateway.persists)
	fmt.Println("=========================================")
}
