// Command ingestion starts the document ingestion service.
//
// It accepts documents at POST /api/v1/documents and deletions at
// DELETE /api/v1/documents/{id}, validates them against the facet schema,
// records them in the PostgreSQL document ledger and publishes them to the
// document-ingest topic keyed by owning shard.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
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
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/postgres"
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
	slog.Info("starting ingestion service", "port", cfg.Server.Port, "total_shards", cfg.Shard.TotalShards)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, m)
		defer shutdownMetrics(context.Background())
	}

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		slog.Error("failed to migrate postgres", "error", err)
		os.Exit(1)
	}
	s, err := schema.Load(ctx, cfg.Schema, db)
	if err != nil {
		slog.Error("failed to load schema", "error", err)
		os.Exit(1)
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest, false)
	defer producer.Close()
	analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.FacetAnalytics, true)
	defer analyticsProducer.Close()
	collector := analytics.NewCollector(analyticsProducer, analytics.CollectorOptions{Metrics: m})
	collector.Start(ctx)
	defer collector.Close()

	pub := publisher.New(publisher.NewPostgresLedger(db), producer, collector, cfg.Shard.TotalShards)
	h := handler.New(pub, s)

	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck(db.Ping, true))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/documents", h.Ingest)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.Delete)
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

	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
