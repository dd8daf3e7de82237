// Command searcher starts the facet coordinator.
//
// It serves GET /api/v1/facets, fans every request out to the configured
// shard nodes over RPC, refines the merged counts and answers with the
// assembled facets. Complete responses are cached in Redis and every request
// is reported to the facet-analytics topic.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/searcher/transport"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting facet coordinator", "port", cfg.Server.Port, "shards", len(cfg.Coordinator.Shards))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, m)
		defer shutdownMetrics(context.Background())
	}

	var db *postgres.Client
	if cfg.Schema.Source == "postgres" {
		db, err = postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	}
	s, err := schema.Load(ctx, cfg.Schema, db)
	if err != nil {
		slog.Error("failed to load schema", "error", err)
		os.Exit(1)
	}

	shards, err := transport.NewRPC(cfg.Coordinator, m)
	if err != nil {
		slog.Error("failed to configure shard transport", "error", err)
		os.Exit(1)
	}
	defer shards.Close()

	orchestrator := executor.New(shards, s, cfg.Coordinator,
		executor.WithMetrics(m),
		executor.WithTracer(tracing.NewTracer(cfg.Tracing)),
	)

	var (
		responseCache *cache.ResponseCache
		redisClient   *pkgredis.Client
	)
	if cfg.Coordinator.CacheResponses {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, response caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			responseCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			slog.Info("response cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.FacetAnalytics, true)
	defer producer.Close()
	collector := analytics.NewCollector(producer, analytics.CollectorOptions{Metrics: m})
	collector.Start(ctx)
	defer collector.Close()

	h := handler.New(orchestrator, parser.New(cfg.Facet, cfg.Coordinator.Tolerant), responseCache, collector, m)

	quorum := shards.NumShards()
	if cfg.Coordinator.Tolerant {
		quorum = 1
	}
	checker := health.NewChecker()
	checker.Register("shards", health.QuorumCheck(shards.Probes(), quorum))
	if redisClient != nil {
		checker.Register("redis", health.PingCheck(redisClient.Ping, false))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/facets", h.Facets)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: middleware.Chain(mux,
			middleware.RequestID,
			middleware.Metrics(m),
			middleware.Deadline(cfg.Server.WriteTimeout),
		),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("facet coordinator listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("facet coordinator stopped")
}
