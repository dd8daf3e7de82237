// Command indexer starts a shard node.
//
// The node hosts the shards listed in shard.shardIds, builds their in-memory
// indexes from the document-ingest topic and serves facet counts to the
// coordinator over RPC. Indexes are not persisted: every start joins a fresh
// consumer group and replays the topic from the first offset.
//
// Usage:
//
//	go run ./cmd/indexer [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/grpc"
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
	slog.Info("starting shard node",
		"rpc_addr", cfg.Shard.RPCAddr,
		"shard_ids", cfg.Shard.ShardIDs,
		"total_shards", cfg.Shard.TotalShards,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, m)
		defer shutdownMetrics(context.Background())
	}

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, document ledger disabled", "error", err)
	} else {
		defer db.Close()
	}
	s, err := schema.Load(ctx, cfg.Schema, db)
	if err != nil {
		slog.Error("failed to load schema", "error", err)
		os.Exit(1)
	}

	engine, err := indexer.NewEngine(cfg.Shard, s, m)
	if err != nil {
		slog.Error("failed to create shard engine", "error", err)
		os.Exit(1)
	}

	var ledger consumer.StatusRecorder
	if db != nil {
		ledger = consumer.NewDocumentLedger(db)
	}
	kafkaCfg := cfg.Kafka
	kafkaCfg.ConsumerGroup = nodeGroup(cfg.Kafka.ConsumerGroup, cfg.Shard.ShardIDs)
	docs := kafka.NewConsumer(kafkaCfg, cfg.Kafka.Topics.DocumentIngest, consumer.HandleMessage(engine, ledger))
	go func() {
		if err := docs.Start(ctx); err != nil {
			slog.Error("document consumer error", "error", err)
		}
	}()
	slog.Info("consuming documents",
		"topic", cfg.Kafka.Topics.DocumentIngest,
		"group", kafkaCfg.ConsumerGroup,
	)

	rpc := grpc.NewServer()
	engine.Register(rpc)
	go func() {
		if err := rpc.Serve(cfg.Shard.RPCAddr); err != nil {
			slog.Error("rpc server error", "error", err)
			stop()
		}
	}()

	checker := health.NewChecker()
	if db != nil {
		checker.Register("postgres", health.PingCheck(db.Ping, false))
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, middleware.RequestID),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health server error", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received")
	rpc.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("health server shutdown error", "error", err)
	}
	slog.Info("shard node stopped")
}

// nodeGroup gives every node start its own consumer group so the node reads
// all partitions from the beginning.
func nodeGroup(base string, shardIDs []int) string {
	ids := make([]string, len(shardIDs))
	for i, id := range shardIDs {
		ids[i] = strconv.Itoa(id)
	}
	return fmt.Sprintf("%s-shards-%s-%s", base, strings.Join(ids, "_"), uuid.NewString()[:8])
}
