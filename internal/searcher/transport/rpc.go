package transport

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/resilience"
)

type endpoint struct {
	id     int
	client *grpc.Client
	policy resilience.Policy
}

// RPC reaches shard nodes over the JSON-over-TCP RPC layer. Every shard has
// its own client, circuit breaker and retry budget.
type RPC struct {
	endpoints []*endpoint
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewRPC builds clients for cfg.Shards. Shard ids must cover 0..n-1 exactly
// once. m may be nil.
func NewRPC(cfg config.CoordinatorConfig, m *metrics.Metrics) (*RPC, error) {
	n := len(cfg.Shards)
	if n == 0 {
		return nil, apperrors.Configurationf("coordinator has no shards configured")
	}
	t := &RPC{
		endpoints: make([]*endpoint, n),
		metrics:   m,
		logger:    slog.Default().With("component", "shard-transport"),
	}
	for _, s := range cfg.Shards {
		if s.ID < 0 || s.ID >= n {
			return nil, apperrors.Configurationf("shard id %d out of range [0,%d)", s.ID, n)
		}
		if t.endpoints[s.ID] != nil {
			return nil, apperrors.Configurationf("shard id %d configured twice", s.ID)
		}
		if s.Addr == "" {
			return nil, apperrors.Configurationf("shard %d has no address", s.ID)
		}
		name := "shard-" + strconv.Itoa(s.ID)
		breaker := resilience.NewCircuitBreaker(name, resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.BreakerThreshold,
			ResetTimeout:     cfg.BreakerReset,
			IsFailure:        resilience.BreakerFailure,
			OnStateChange:    t.observeBreaker,
		})
		t.endpoints[s.ID] = &endpoint{
			id:     s.ID,
			client: grpc.NewClient(s.Addr),
			policy: resilience.Policy{
				Name:    name,
				Breaker: breaker,
				Retry:   resilience.RetryConfig{MaxAttempts: max(cfg.RetryAttempts, 1)},
				Timeout: cfg.PerShardTimeout,
			},
		}
		t.logger.Info("shard endpoint configured", "shard_id", s.ID, "addr", s.Addr)
	}
	return t, nil
}

func (t *RPC) observeBreaker(name string, from, to resilience.State) {
	t.logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
	if t.metrics != nil {
		t.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
	}
}

func (t *RPC) NumShards() int { return len(t.endpoints) }

// Send calls FacetService.Facet on the node serving shard.
func (t *RPC) Send(ctx context.Context, shard int, req *proto.ShardFacetRequest) (*proto.ShardFacetResponse, error) {
	if err := checkShard(shard, len(t.endpoints)); err != nil {
		return nil, err
	}
	ep := t.endpoints[shard]
	req.ShardID = int32(shard)

	start := time.Now()
	var resp proto.ShardFacetResponse
	err := ep.policy.Do(ctx, func(ctx context.Context) error {
		resp = proto.ShardFacetResponse{}
		return ep.client.Call(ctx, indexer.MethodFacet, req, &resp)
	})
	t.observe(shard, start, err)
	if err != nil {
		return nil, Classify(shard, err)
	}
	if int(resp.ShardID) != shard {
		return nil, apperrors.ProtocolMismatchf("shard %d answered as shard %d", shard, resp.ShardID)
	}
	return &resp, nil
}

func (t *RPC) observe(shard int, start time.Time, err error) {
	if t.metrics == nil {
		return
	}
	label := strconv.Itoa(shard)
	status := "ok"
	if err != nil {
		status = "error"
	}
	t.metrics.ShardRequestsTotal.WithLabelValues(label, status).Inc()
	t.metrics.ShardLatency.WithLabelValues(label).Observe(time.Since(start).Seconds())
}

// Probes returns one health probe per shard calling FacetService.Health.
func (t *RPC) Probes() map[string]func(ctx context.Context) error {
	out := make(map[string]func(ctx context.Context) error, len(t.endpoints))
	for _, ep := range t.endpoints {
		out["shard-"+strconv.Itoa(ep.id)] = func(ctx context.Context) error {
			var resp proto.HealthCheckResponse
			if err := ep.client.Call(ctx, indexer.MethodHealth, struct{}{}, &resp); err != nil {
				return err
			}
			if resp.Status != "SERVING" {
				return fmt.Errorf("shard %d reports %s", ep.id, resp.Status)
			}
			return nil
		}
	}
	return out
}

// Close drops every connection.
func (t *RPC) Close() error {
	for _, ep := range t.endpoints {
		if err := ep.client.Close(); err != nil {
			t.logger.Warn("closing shard client", "shard_id", ep.id, "error", err)
		}
	}
	return nil
}
