package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/proto"
)

// Handler counts facets for one shard in-process.
type Handler interface {
	Facet(ctx context.Context, req *proto.ShardFacetRequest) (*proto.ShardFacetResponse, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *proto.ShardFacetRequest) (*proto.ShardFacetResponse, error)

func (f HandlerFunc) Facet(ctx context.Context, req *proto.ShardFacetRequest) (*proto.ShardFacetResponse, error) {
	return f(ctx, req)
}

// Local dispatches to in-process handlers, one per shard. Requests and
// responses are round-tripped through JSON so the shard sees exactly what it
// would receive over the wire. Sent records every request for inspection.
type Local struct {
	handlers []Handler

	mu   sync.Mutex
	sent []proto.ShardFacetRequest
}

// NewLocal returns a transport over handlers; handlers[i] serves shard i.
func NewLocal(handlers ...Handler) *Local {
	return &Local{handlers: handlers}
}

func (l *Local) NumShards() int { return len(l.handlers) }

func (l *Local) Send(ctx context.Context, shard int, req *proto.ShardFacetRequest) (*proto.ShardFacetResponse, error) {
	if err := checkShard(shard, len(l.handlers)); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, Classify(shard, err)
	}
	req.ShardID = int32(shard)

	var wire proto.ShardFacetRequest
	if err := roundTrip(req, &wire); err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.sent = append(l.sent, wire)
	l.mu.Unlock()

	resp, err := l.handlers[shard].Facet(ctx, &wire)
	if err != nil {
		return nil, Classify(shard, err)
	}
	var out proto.ShardFacetResponse
	if err := roundTrip(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sent returns a copy of every request delivered so far.
func (l *Local) Sent() []proto.ShardFacetRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]proto.ShardFacetRequest, len(l.sent))
	copy(out, l.sent)
	return out
}

func roundTrip(in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding shard message: %w", apperrors.ErrInternal)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding shard message: %w", apperrors.ErrInternal)
	}
	return nil
}
