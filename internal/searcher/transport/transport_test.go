package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/proto"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"invalid input kept", apperrors.ErrInvalidInput, apperrors.ErrInvalidInput},
		{"configuration kept", apperrors.Configurationf("bad"), apperrors.ErrConfiguration},
		{"mismatch kept", apperrors.ProtocolMismatchf("skew"), apperrors.ErrProtocolMismatch},
		{"io becomes unavailable", errors.New("connection refused"), apperrors.ErrShardUnavailable},
		{"deadline becomes unavailable", context.DeadlineExceeded, apperrors.ErrShardUnavailable},
		{"canceled kept", context.Canceled, context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(3, tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.Contains(t, got.Error(), "shard 3")
		})
	}
	assert.NoError(t, Classify(0, nil))
	assert.False(t, errors.Is(Classify(0, context.Canceled), apperrors.ErrShardUnavailable))
}

func TestLocalRoundTripsThroughJSON(t *testing.T) {
	var seen *proto.ShardFacetRequest
	h := HandlerFunc(func(_ context.Context, req *proto.ShardFacetRequest) (*proto.ShardFacetResponse, error) {
		seen = req
		return &proto.ShardFacetResponse{
			ShardID: req.ShardID,
			Fields:  []proto.FieldFacetResult{{Key: "k", Buckets: []proto.FacetBucket{{Value: nil, Count: 2}}}},
		}, nil
	})
	failing := HandlerFunc(func(context.Context, *proto.ShardFacetRequest) (*proto.ShardFacetResponse, error) {
		return nil, errors.New("disk on fire")
	})
	l := NewLocal(h, failing)
	assert.Equal(t, 2, l.NumShards())

	req := &proto.ShardFacetRequest{RequestID: "r1", Query: "*:*"}
	resp, err := l.Send(context.Background(), 0, req)
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.NotSame(t, req, seen)
	assert.Equal(t, "r1", seen.RequestID)
	require.Len(t, resp.Fields, 1)
	assert.Nil(t, resp.Fields[0].Buckets[0].Value)

	_, err = l.Send(context.Background(), 1, req)
	assert.ErrorIs(t, err, apperrors.ErrShardUnavailable)

	_, err = l.Send(context.Background(), 2, req)
	assert.ErrorIs(t, err, apperrors.ErrInternal)

	sent := l.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, int32(1), sent[1].ShardID)
}

func TestLocalHonoursCancellation(t *testing.T) {
	called := false
	l := NewLocal(HandlerFunc(func(context.Context, *proto.ShardFacetRequest) (*proto.ShardFacetResponse, error) {
		called = true
		return &proto.ShardFacetResponse{}, nil
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Send(ctx, 0, &proto.ShardFacetRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func startNode(t *testing.T, shardIDs []int, total int) (*indexer.Engine, string) {
	t.Helper()
	s, err := schema.New([]schema.Field{{Name: "category", Type: schema.TypeString, Indexed: true}})
	require.NoError(t, err)
	e, err := indexer.NewEngine(config.ShardNodeConfig{ShardIDs: shardIDs, TotalShards: total}, s, nil)
	require.NoError(t, err)
	srv := grpc.NewServer()
	e.Register(srv)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.ServeListener(ln)
	t.Cleanup(srv.Stop)
	return e, ln.Addr().String()
}

func TestRPCSendsToConfiguredShard(t *testing.T) {
	e, addr := startNode(t, []int{0, 1}, 2)
	for i, cat := range []string{"books", "music", "books"} {
		shard := int32(i % 2)
		_, err := e.Apply(proto.Document{ID: fmt.Sprint(i), ShardID: &shard, Fields: map[string][]string{"category": {cat}}})
		require.NoError(t, err)
	}

	m := metrics.New(prometheus.NewRegistry())
	rpc, err := NewRPC(config.CoordinatorConfig{
		Shards:          []config.ShardEndpoint{{ID: 1, Addr: addr}, {ID: 0, Addr: addr}},
		PerShardTimeout: time.Second,
		RetryAttempts:   1,
	}, m)
	require.NoError(t, err)
	defer rpc.Close()
	assert.Equal(t, 2, rpc.NumShards())

	resp, err := rpc.Send(context.Background(), 0, &proto.ShardFacetRequest{
		Fields: []proto.FieldFacetParams{{Key: "category", Field: "category", Limit: 10, MinCount: 1, Sort: "count"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(0), resp.ShardID)
	require.Len(t, resp.Fields, 1)
	require.Len(t, resp.Fields[0].Buckets, 1)
	assert.Equal(t, "books", *resp.Fields[0].Buckets[0].Value)
	assert.Equal(t, uint64(2), resp.Fields[0].Buckets[0].Count)

	_, err = rpc.Send(context.Background(), 1, &proto.ShardFacetRequest{Query: "category:[a TO"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	for name, probe := range rpc.Probes() {
		assert.NoError(t, probe(context.Background()), name)
	}
}

func TestRPCUnreachableShardIsUnavailable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	rpc, err := NewRPC(config.CoordinatorConfig{
		Shards:           []config.ShardEndpoint{{ID: 0, Addr: addr}},
		PerShardTimeout:  200 * time.Millisecond,
		RetryAttempts:    2,
		BreakerThreshold: 1,
		BreakerReset:     time.Minute,
	}, nil)
	require.NoError(t, err)
	defer rpc.Close()

	_, err = rpc.Send(context.Background(), 0, &proto.ShardFacetRequest{})
	assert.ErrorIs(t, err, apperrors.ErrShardUnavailable)

	// the breaker is open now
	_, err = rpc.Send(context.Background(), 0, &proto.ShardFacetRequest{})
	assert.ErrorIs(t, err, apperrors.ErrShardUnavailable)
	assert.Contains(t, err.Error(), "circuit breaker")
}

func TestNewRPCRejectsBadShardLayout(t *testing.T) {
	tests := []struct {
		name   string
		shards []config.ShardEndpoint
	}{
		{"empty", nil},
		{"gap", []config.ShardEndpoint{{ID: 0, Addr: "a"}, {ID: 2, Addr: "b"}}},
		{"duplicate", []config.ShardEndpoint{{ID: 0, Addr: "a"}, {ID: 0, Addr: "b"}}},
		{"no address", []config.ShardEndpoint{{ID: 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRPC(config.CoordinatorConfig{Shards: tt.shards}, nil)
			assert.ErrorIs(t, err, apperrors.ErrConfiguration)
		})
	}
}
