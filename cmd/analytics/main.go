// Command analytics starts the facet analytics service.
//
// It consumes facet and document events from the facet-analytics topic,
// keeps rolling aggregates in memory, snapshots them to PostgreSQL and
// serves them at GET /api/v1/analytics.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/analytics/store"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/postgres"
)

const snapshotInterval = time.Minute

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, m)
		defer shutdownMetrics(context.Background())
	}

	aggregator := analytics.NewAggregator()
	checker := health.NewChecker()

	var snapshots analytics.SnapshotLister
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, snapshots disabled", "error", err)
	} else {
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			slog.Error("failed to migrate postgres", "error", err)
			os.Exit(1)
		}
		st := store.New(db.DB)
		latest, err := st.LatestSnapshot(ctx)
		if err != nil {
			slog.Warn("could not restore analytics snapshot", "error", err)
		} else if latest != nil {
			aggregator.Restore(*latest)
			slog.Info("analytics restored from snapshot", "total_requests", latest.TotalRequests)
		}
		st.StartPeriodicSave(ctx, aggregator, snapshotInterval)
		snapshots = st
		checker.Register("postgres", health.PingCheck(db.Ping, false))
	}

	events := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.FacetAnalytics, analytics.HandleEvent(aggregator, m))
	go func() {
		if err := events.Start(ctx); err != nil {
			slog.Error("analytics consumer error", "error", err)
		}
	}()
	slog.Info("analytics consumer started", "topic", cfg.Kafka.Topics.FacetAnalytics)

	h := analytics.NewHandler(aggregator, snapshots)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", h.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", h.Snapshots)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, middleware.RequestID, middleware.Metrics(m)),
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

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics service stopped")
}
