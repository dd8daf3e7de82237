package indexer

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/proto"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	s, err := schema.New([]schema.Field{{Name: "category", Type: schema.TypeString, Indexed: true}})
	require.NoError(t, err)
	e, err := NewEngine(config.ShardNodeConfig{ShardIDs: []int{0, 2}, TotalShards: 3}, s, metrics.New(prometheus.NewRegistry()))
	require.NoError(t, err)
	return e
}

func shardPtr(id int32) *int32 { return &id }

func TestApplyRoutesToHostedShards(t *testing.T) {
	e := newEngine(t)
	applied, err := e.Apply(proto.Document{ID: "a", ShardID: shardPtr(2), Fields: map[string][]string{"category": {"books"}}})
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = e.Apply(proto.Document{ID: "b", ShardID: shardPtr(1)})
	require.NoError(t, err)
	assert.False(t, applied)

	stats, err := e.Stats(proto.StatsRequest{ShardID: -1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalDocs)
	require.Len(t, stats.Shards, 2)
	assert.Equal(t, int32(2), stats.Shards[1].ShardID)

	_, err = e.Stats(proto.StatsRequest{ShardID: 1})
	assert.True(t, errors.Is(err, apperrors.ErrShardUnavailable))
}

func TestEngineServesRPC(t *testing.T) {
	e := newEngine(t)
	srv := grpc.NewServer()
	e.Register(srv)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.ServeListener(ln)
	t.Cleanup(srv.Stop)

	c := grpc.NewClient(ln.Addr().String())
	defer c.Close()
	ctx := context.Background()

	var indexed proto.IndexResponse
	require.NoError(t, c.Call(ctx, MethodIndex, proto.IndexRequest{Documents: []proto.Document{
		{ID: "a", ShardID: shardPtr(0), Fields: map[string][]string{"category": {"books"}}},
		{ID: "b", ShardID: shardPtr(0), Fields: map[string][]string{"category": {"books"}}},
		{ID: "c", ShardID: shardPtr(1), Fields: map[string][]string{"category": {"music"}}},
	}}, &indexed))
	assert.Equal(t, proto.IndexResponse{Indexed: 2, Skipped: 1}, indexed)

	var resp proto.ShardFacetResponse
	require.NoError(t, c.Call(ctx, MethodFacet, &proto.ShardFacetRequest{
		ShardID: 0,
		Fields:  []proto.FieldFacetParams{{Key: "category", Field: "category", Limit: 10, MinCount: 1, Sort: "count"}},
	}, &resp))
	require.Len(t, resp.Fields, 1)
	require.Len(t, resp.Fields[0].Buckets, 1)
	assert.Equal(t, uint64(2), resp.Fields[0].Buckets[0].Count)

	err = c.Call(ctx, MethodFacet, &proto.ShardFacetRequest{ShardID: 1}, &resp)
	assert.True(t, errors.Is(err, apperrors.ErrShardUnavailable), "got %v", err)

	var health proto.HealthCheckResponse
	require.NoError(t, c.Call(ctx, MethodHealth, nil, &health))
	assert.Equal(t, "SERVING", health.Status)

	var stats proto.StatsResponse
	require.NoError(t, c.Call(ctx, MethodStats, nil, &stats))
	assert.Equal(t, int64(2), stats.TotalDocs)
}
