package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/krisalay/cachecenter/center"
	"github.com/krisalay/cachecenter/configs"
	"github.com/krisalay/cachecenter/executor"
	"github.com/krisalay/cachecenter/metrics"
	"github.com/krisalay/cachecenter/persist/file"
	"github.com/krisalay/cachecenter/persist/postgres"
	"github.com/krisalay/cachecenter/persist/redis"
	"github.com/krisalay/cachecenter/registry"
	"github.com/krisalay/cachecenter/types"
	"github.com/krisalay/cachecenter/writepolicy"
)

func main() {
	demo := flag.Bool("demo", false, "run the walkthrough against the configured center, then exit")
	flag.Parse()

	cfg, err := configs.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.Log)

	if err := run(cfg, logger, *demo); err != nil {
		logger.WithError(err).Fatal("cache center stopped")
	}
}

func newLogger(cfg configs.LogConfig) *logrus.Logger {
	logger := logrus.New()
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func run(cfg *configs.Config, logger *logrus.Logger, demo bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------- Persistence ----------------
	gateway, closeGateway, err := openGateway(cfg)
	if err != nil {
		return err
	}
	defer closeGateway()

	var writes writepolicy.WritePolicy
	if cfg.Write.Policy == configs.WriteBack {
		writes = writepolicy.NewWriteBackPolicy(gateway, cfg.Write.Buffer, logger)
	} else {
		writes = writepolicy.NewWriteThroughPolicy(gateway, logger)
	}

	// ---------------- Metrics ----------------
	reg := prometheus.NewRegistry()
	promMetrics, err := metrics.NewPrometheus(reg)
	if err != nil {
		return err
	}

	// ---------------- Cache Center ----------------
	c, err := center.Create(cfg.Cache.Center(), center.Deps{
		Gateway: gateway,
		Writes:  writes,
		Logger:  logger,
		Metrics: promMetrics,
	})
	if err != nil {
		return err
	}
	c = center.Activate(registry.Default, c)
	defer c.Close()

	if err := metrics.WatchSize(reg, c.Store().Len); err != nil {
		return err
	}

	if _, ok := gateway.(types.Scanner); ok {
		if _, err := c.Recover(ctx); err != nil {
			return err
		}
	}

	exec := executor.New(registry.Default)
	if demo {
		return runDemo(ctx, exec, logger)
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metricsMux(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.WithField("addr", cfg.Metrics.Addr).Info("serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return nil
	})

	return g.Wait()
}

func metricsMux(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}

func openGateway(cfg *configs.Config) (types.Gateway, func(), error) {
	switch cfg.Persist.Backend {
	case configs.BackendPostgres:
		g, err := postgres.Open(postgres.Options{
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
			Migrate:         true,
		})
		if err != nil {
			return nil, nil, err
		}
		return g, func() { _ = g.Close() }, nil

	case configs.BackendRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:         fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})

		// Test the connection
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return redis.New(client, cfg.Redis.KeyPrefix), func() { _ = client.Close() }, nil

	case configs.BackendNone:
		return discardGateway{}, func() {}, nil

	default:
		g, err := file.New(cfg.Persist.Dir)
		if err != nil {
			return nil, nil, err
		}
		return g, func() {}, nil
	}
}

// discardGateway backs a purely in-memory center.
type discardGateway struct{}

func (discardGateway) Persist(context.Context, []byte, []byte, time.Duration) error { return nil }
func (discardGateway) RemoveByKey(context.Context, []byte) error { return nil }
