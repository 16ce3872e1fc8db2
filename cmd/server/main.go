// Command server runs the topic digest service.
//
// It loads the corpus and model artifacts, then serves POST /chat and the
// supporting API over HTTP, optionally Digest.Run over JSON/TCP RPC, and
// Prometheus metrics on a separate port. Graceful shutdown is triggered by
// SIGINT/SIGTERM.
//
// Usage:
//
//	go run ./cmd/server [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/chameleon-ai/chameleon/internal/analytics"
	"github.com/chameleon-ai/chameleon/internal/bootstrap"
	"github.com/chameleon-ai/chameleon/internal/cache"
	"github.com/chameleon-ai/chameleon/internal/digest"
	"github.com/chameleon-ai/chameleon/internal/server"
	"github.com/chameleon-ai/chameleon/pkg/config"
	"github.com/chameleon-ai/chameleon/pkg/health"
	"github.com/chameleon-ai/chameleon/pkg/kafka"
	"github.com/chameleon-ai/chameleon/pkg/logger"
	"github.com/chameleon-ai/chameleon/pkg/metrics"
	"github.com/chameleon-ai/chameleon/pkg/middleware"
	"github.com/chameleon-ai/chameleon/pkg/postgres"
	"github.com/chameleon-ai/chameleon/pkg/ratelimit"
	pkgredis "github.com/chameleon-ai/chameleon/pkg/redis"
	"github.com/chameleon-ai/chameleon/pkg/rpc"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting digest service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
		defer shutdownMetrics(context.Background())
	}

	rt, err := bootstrap.Setup(ctx, cfg, m)
	if err != nil {
		slog.Error("failed to load runtime", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	checker := health.NewChecker()
	rt.RegisterChecks(checker)

	responseCache, redisClient := newCache(ctx, cfg, m)
	if redisClient != nil {
		defer redisClient.Close()
		checker.Register("redis", health.Ping(redisClient.Ping, health.StatusDegraded))
	}

	var (
		tracker      digest.Tracker
		statsHandler *analytics.Handler
	)
	if cfg.Analytics.Enabled {
		agg := analytics.NewAggregator()
		statsHandler = analytics.NewHandler(agg)

		publisher, closePublisher := newPublisher(ctx, cfg, agg, checker)
		defer closePublisher()
		collector := analytics.NewCollector(publisher, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
		collector.Start(ctx)
		defer collector.Close()
		tracker = collector

		if cfg.Analytics.SnapshotInterval > 0 {
			defer startSnapshots(ctx, cfg, rt, agg)()
		}
	}

	svc := digest.NewService(rt.Workflow,
		digest.WithCache(responseCache),
		digest.WithTracker(tracker),
		digest.WithSource("http"),
		digest.WithMaxQueryBytes(cfg.Server.MaxQueryBytes),
	)

	var rpcServer *rpc.Server
	if cfg.RPC.Enabled {
		rpcServer = rpc.NewServer()
		rpcServer.SetMaxMessageBytes(cfg.Server.MaxQueryBytes*2 + 1024)
		digest.RegisterRPC(rpcServer, svc, rt.Registry)
		go func() {
			if err := rpcServer.Serve(cfg.RPC.Addr); err != nil {
				slog.Error("rpc server error", "error", err)
			}
		}()
	}

	var limiter *ratelimit.Limiter
	if cfg.Server.RateLimit > 0 {
		limiter = ratelimit.New(cfg.Server.RateLimit, time.Minute)
		limiter.StartCleanup(ctx, 5*time.Minute)
	}

	h := server.New(server.Config{MaxQueryBytes: cfg.Server.MaxQueryBytes}, svc, rt.Registry, rt.Store, responseCache, statsHandler)
	router := server.NewRouter(h, checker, server.RouterConfig{
		CORS:    middleware.NewCORSConfig(cfg.CORS.AllowOrigins, cfg.CORS.MaxAge),
		Timeout: cfg.Server.RequestTimeout,
		Metrics: m,
		Limiter: limiter,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if rpcServer != nil {
			rpcServer.Stop()
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("digest service listening", "addr", srv.Addr, "rpc", cfg.RPC.Enabled)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("digest service stopped")
}

// newCache prefers Redis and falls back to the in-process store when Redis
// is disabled or unreachable. It returns nil when caching is off.
func newCache(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*cache.ResponseCache, *pkgredis.Client) {
	if !cfg.Cache.Enabled {
		slog.Info("response cache disabled")
		return nil, nil
	}
	if cfg.Redis.Enabled {
		client, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err == nil {
			slog.Info("response cache enabled", "backend", "redis", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
			return cache.New(cache.NewRedisStore(client), cfg.Redis.CacheTTL, m), client
		}
		slog.Warn("redis unavailable, using in-process cache", "error", err)
	}
	slog.Info("response cache enabled", "backend", "local", "ttl", cfg.Cache.LocalTTL)
	store := cache.NewLocalStore(cfg.Cache.LocalTTL, cfg.Cache.CleanupInterval)
	return cache.New(store, cfg.Cache.LocalTTL, m), nil
}

// newPublisher ships events through Kafka when enabled, consuming them back
// into agg; otherwise events go straight to agg. The returned func releases
// the Kafka clients once the collector has made its final flush.
func newPublisher(ctx context.Context, cfg *config.Config, agg *analytics.Aggregator, checker *health.Checker) (analytics.Publisher, func()) {
	if !cfg.Kafka.Enabled {
		return analytics.NewLocalPublisher(agg), func() {}
	}
	topic := cfg.Kafka.Topics.DigestEvents
	producer := kafka.NewProducer(cfg.Kafka, topic)
	consumer := kafka.NewConsumer(cfg.Kafka, topic, analytics.HandleEvent(agg))
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("analytics consumer error", "error", err)
		}
	}()
	checker.Register("kafka", func(context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: "publishing to " + topic}
	})
	slog.Info("analytics events routed through kafka", "topic", topic, "brokers", cfg.Kafka.Brokers)
	return producer, func() {
		if err := producer.Close(); err != nil {
			slog.Error("kafka producer close error", "error", err)
		}
		consumer.Close()
	}
}

// startSnapshots persists aggregated stats to PostgreSQL. The returned func
// waits for the final snapshot after ctx is cancelled.
func startSnapshots(ctx context.Context, cfg *config.Config, rt *bootstrap.Runtime, agg *analytics.Aggregator) func() {
	db, owned := rt.Postgres, false
	if db == nil {
		var err error
		db, err = postgres.Connect(ctx, cfg.Postgres, 3)
		if err != nil {
			slog.Warn("postgres unavailable, analytics snapshots disabled", "error", err)
			return func() {}
		}
		owned = true
	}
	release := func() {
		if owned {
			db.Close()
		}
	}
	snapshots := analytics.NewSnapshotStore(db)
	if err := snapshots.EnsureSchema(ctx); err != nil {
		slog.Warn("analytics snapshots disabled", "error", err)
		release()
		return func() {}
	}
	done := snapshots.StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)
	return func() {
		<-done
		release()
	}
}
