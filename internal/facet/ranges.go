package facet

import (
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
)

// RangeBucket is one keyed bucket of a range, date or interval facet.
type RangeBucket struct {
	Key   string
	Count uint64
}

// BucketMerger sums fixed-boundary buckets position by position. The first
// shard to answer defines the expected keys and their order; every later
// shard must match it exactly.
type BucketMerger struct {
	key      string
	minCount int
	keys     []string
	counts   []uint64
	seeded   bool
}

// NewBucketMerger returns a merger for the facet labelled key. Buckets below
// minCount are dropped after the merge.
func NewBucketMerger(key string, minCount int) *BucketMerger {
	return &BucketMerger{key: key, minCount: minCount}
}

// Add merges one shard's buckets.
func (m *BucketMerger) Add(shard int, buckets []RangeBucket) error {
	if !m.seeded {
		m.seeded = true
		m.keys = make([]string, len(buckets))
		m.counts = make([]uint64, len(buckets))
		seen := make(map[string]bool, len(buckets))
		for i, b := range buckets {
			if seen[b.Key] {
				return apperrors.ProtocolMismatchf("facet %q: shard %d repeated bucket %q", m.key, shard, b.Key)
			}
			seen[b.Key] = true
			m.keys[i] = b.Key
			m.counts[i] = b.Count
		}
		return nil
	}

	for i, b := range buckets {
		if i >= len(m.keys) {
			return apperrors.ProtocolMismatchf("facet %q: shard %d returned unexpected bucket %q", m.key, shard, b.Key)
		}
		if b.Key != m.keys[i] {
			return apperrors.ProtocolMismatchf("facet %q: shard %d returned bucket %q where %q was expected",
				m.key, shard, b.Key, m.keys[i])
		}
		sum, err := AddCount(m.counts[i], b.Count)
		if err != nil {
			return fmt.Errorf("facet %q bucket %q: %w", m.key, b.Key, err)
		}
		m.counts[i] = sum
	}
	if len(buckets) < len(m.keys) {
		return apperrors.ProtocolMismatchf("facet %q: shard %d is missing bucket %q", m.key, shard, m.keys[len(buckets)])
	}
	return nil
}

// Buckets returns the merged buckets in reference order.
func (m *BucketMerger) Buckets() []RangeBucket {
	out := make([]RangeBucket, 0, len(m.keys))
	for i, k := range m.keys {
		if m.minCount > 0 && m.counts[i] < uint64(m.minCount) {
			continue
		}
		out = append(out, RangeBucket{Key: k, Count: m.counts[i]})
	}
	return out
}
