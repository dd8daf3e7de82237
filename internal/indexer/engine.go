// Package indexer is the shard node: it hosts one or more shard stores,
// applies ingested documents to them and serves facet counts over RPC.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/indexer/facets"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/proto"
)

// RPC method names served by a shard node.
const (
	MethodFacet  = "FacetService.Facet"
	MethodHealth = "FacetService.Health"
	MethodStats  = "FacetService.Stats"
	MethodIndex  = "IndexService.Index"
)

// Shard is one hosted partition.
type Shard struct {
	ID      int
	Store   *index.Store
	Counter *facets.Counter
}

// Engine hosts the local shards of a node.
type Engine struct {
	router  *shard.Router
	shards  map[int]*Shard
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewEngine creates empty stores for every shard cfg assigns to this node.
// m may be nil.
func NewEngine(cfg config.ShardNodeConfig, s *schema.Schema, m *metrics.Metrics) (*Engine, error) {
	router, err := shard.NewRouter(cfg.TotalShards, cfg.ShardIDs)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		router:  router,
		shards:  make(map[int]*Shard, len(cfg.ShardIDs)),
		metrics: m,
		logger:  slog.Default().With("component", "indexer"),
	}
	for _, id := range router.LocalShards() {
		store := index.NewStore(s)
		e.shards[id] = &Shard{ID: id, Store: store, Counter: facets.New(store)}
		e.logger.Info("shard initialized", "shard_id", id, "total_shards", cfg.TotalShards)
	}
	return e, nil
}

// Shard returns a hosted shard.
func (e *Engine) Shard(id int) (*Shard, bool) {
	s, ok := e.shards[id]
	return s, ok
}

// Apply indexes or deletes doc. Documents for shards hosted elsewhere are
// ignored and reported as not applied.
func (e *Engine) Apply(doc proto.Document) (bool, error) {
	id, err := e.router.Route(doc)
	if err != nil {
		return false, err
	}
	s, ok := e.shards[id]
	if !ok {
		return false, nil
	}
	label := strconv.Itoa(id)
	if doc.Deleted {
		if s.Store.Delete(doc.ID) {
			e.observeDoc(label, "delete", s)
		}
		return true, nil
	}
	if err := s.Store.Add(doc); err != nil {
		return false, fmt.Errorf("indexing document %s in shard %d: %w", doc.ID, id, err)
	}
	e.observeDoc(label, "upsert", s)
	return true, nil
}

func (e *Engine) observeDoc(label, op string, s *Shard) {
	if e.metrics == nil {
		return
	}
	e.metrics.DocsIndexedTotal.WithLabelValues(label, op).Inc()
	e.metrics.ShardDocCount.WithLabelValues(label).Set(float64(s.Store.DocCount()))
}

// Facet counts req on the shard it names.
func (e *Engine) Facet(ctx context.Context, req *proto.ShardFacetRequest) (*proto.ShardFacetResponse, error) {
	s, ok := e.shards[int(req.ShardID)]
	if !ok {
		return nil, fmt.Errorf("shard %d is not hosted here: %w", req.ShardID, apperrors.ErrShardUnavailable)
	}
	start := time.Now()
	resp, err := s.Counter.Count(ctx, req)
	if e.metrics != nil {
		label := strconv.Itoa(s.ID)
		status := "ok"
		if err != nil {
			status = "error"
		}
		e.metrics.ShardRequestsTotal.WithLabelValues(label, status).Inc()
		e.metrics.ShardLatency.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		e.logger.Warn("facet request failed",
			"request_id", req.RequestID,
			"shard_id", req.ShardID,
			"round", req.Round,
			"error", err,
		)
		return nil, err
	}
	return resp, nil
}

// Stats reports document counts for one hosted shard or, with ShardID -1,
// for all of them.
func (e *Engine) Stats(req proto.StatsRequest) (*proto.StatsResponse, error) {
	resp := &proto.StatsResponse{}
	for _, id := range e.router.LocalShards() {
		if req.ShardID >= 0 && int(req.ShardID) != id {
			continue
		}
		s := e.shards[id]
		stat := proto.ShardStat{
			ShardID:  int32(id),
			DocCount: int64(s.Store.DocCount()),
			Fields:   int32(len(s.Store.FieldNames())),
		}
		resp.Shards = append(resp.Shards, stat)
		resp.TotalDocs += stat.DocCount
	}
	if req.ShardID >= 0 && len(resp.Shards) == 0 {
		return nil, fmt.Errorf("shard %d is not hosted here: %w", req.ShardID, apperrors.ErrShardUnavailable)
	}
	return resp, nil
}

// Register installs the node's RPC methods on srv.
func (e *Engine) Register(srv *grpc.Server) {
	srv.Register(MethodFacet, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req proto.ShardFacetRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("decoding facet request: %w", apperrors.ErrInvalidInput)
		}
		return e.Facet(ctx, &req)
	})
	srv.Register(MethodHealth, func(context.Context, json.RawMessage) (any, error) {
		return proto.HealthCheckResponse{Status: "SERVING"}, nil
	})
	srv.Register(MethodStats, func(_ context.Context, raw json.RawMessage) (any, error) {
		req := proto.StatsRequest{ShardID: -1}
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &req); err != nil {
				return nil, fmt.Errorf("decoding stats request: %w", apperrors.ErrInvalidInput)
			}
		}
		return e.Stats(req)
	})
	srv.Register(MethodIndex, func(_ context.Context, raw json.RawMessage) (any, error) {
		var req proto.IndexRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("decoding index request: %w", apperrors.ErrInvalidInput)
		}
		var resp proto.IndexResponse
		for _, doc := range req.Documents {
			applied, err := e.Apply(doc)
			if err != nil {
				return nil, err
			}
			switch {
			case !applied:
				resp.Skipped++
			case doc.Deleted:
				resp.Deleted++
			default:
				resp.Indexed++
			}
		}
		return resp, nil
	})
}
