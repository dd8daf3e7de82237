// Package shard assigns documents to logical shards and tracks which of them
// the local node hosts.
package shard

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"

	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/proto"
)

// Router maps document ids onto total shards.
type Router struct {
	total int
	local map[int]bool
}

// NewRouter creates a router for total shards of which local are hosted
// here.
func NewRouter(total int, local []int) (*Router, error) {
	if total <= 0 {
		return nil, fmt.Errorf("total shards must be positive, got %d: %w", total, apperrors.ErrConfiguration)
	}
	r := &Router{total: total, local: make(map[int]bool, len(local))}
	for _, id := range local {
		if id < 0 || id >= total {
			return nil, fmt.Errorf("shard id %d outside 0-%d: %w", id, total-1, apperrors.ErrConfiguration)
		}
		if r.local[id] {
			return nil, fmt.Errorf("shard id %d listed twice: %w", id, apperrors.ErrConfiguration)
		}
		r.local[id] = true
	}
	return r, nil
}

// Assign returns the shard owning id.
func Assign(id string, total int) int {
	sum := sha256.Sum256([]byte(id))
	return int(binary.BigEndian.Uint64(sum[:8]) % uint64(total))
}

// Route returns the shard for doc: its explicit ShardID if set, otherwise
// the hash of its id.
func (r *Router) Route(doc proto.Document) (int, error) {
	if doc.ShardID == nil {
		return Assign(doc.ID, r.total), nil
	}
	id := int(*doc.ShardID)
	if id < 0 || id >= r.total {
		return 0, fmt.Errorf("document %s names shard %d outside 0-%d: %w", doc.ID, id, r.total-1, apperrors.ErrInvalidInput)
	}
	return id, nil
}

// Local reports whether shard is hosted here.
func (r *Router) Local(shard int) bool { return r.local[shard] }

// LocalShards lists the hosted shards in order.
func (r *Router) LocalShards() []int {
	out := make([]int, 0, len(r.local))
	for id := range r.local {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// Total returns the number of logical shards.
func (r *Router) Total() int { return r.total }
