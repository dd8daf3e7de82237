// Package transport delivers one round of facet work to a shard and returns
// its partial counts. The orchestrator only sees the ShardTransport
// interface; RPC talks to remote shard nodes and Local calls in-process
// engines.
package transport

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/proto"
)

// ShardTransport sends facet requests to shards numbered 0..NumShards()-1.
// Send must be safe for concurrent use across shards.
type ShardTransport interface {
	NumShards() int
	Send(ctx context.Context, shard int, req *proto.ShardFacetRequest) (*proto.ShardFacetResponse, error)
}

// Classify maps a shard failure onto the platform taxonomy. Errors that
// describe the request itself (bad input, bad configuration, protocol skew,
// overflow) keep their identity; anything else means the shard produced no
// usable response.
func Classify(shard int, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput),
		errors.Is(err, apperrors.ErrConfiguration),
		errors.Is(err, apperrors.ErrFieldNotFound),
		errors.Is(err, apperrors.ErrProtocolMismatch),
		errors.Is(err, apperrors.ErrOverflow),
		errors.Is(err, apperrors.ErrShardUnavailable),
		errors.Is(err, context.Canceled):
		return fmt.Errorf("shard %d: %w", shard, err)
	}
	return fmt.Errorf("shard %d: %w: %w", shard, apperrors.ErrShardUnavailable, err)
}

func checkShard(shard, n int) error {
	if shard < 0 || shard >= n {
		return fmt.Errorf("shard %d out of range [0,%d): %w", shard, n, apperrors.ErrInternal)
	}
	return nil
}
