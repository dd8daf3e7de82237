package facet

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
)

func TestBucketMergerPositionalSum(t *testing.T) {
	m := NewBucketMerger("price", 0)
	require.NoError(t, m.Add(0, []RangeBucket{{"0-10", 3}, {"10-20", 5}}))
	require.NoError(t, m.Add(1, []RangeBucket{{"0-10", 7}, {"10-20", 1}}))
	assert.Equal(t, []RangeBucket{{"0-10", 10}, {"10-20", 6}}, m.Buckets())
}

func TestBucketMergerMinCountAppliedAfterMerge(t *testing.T) {
	m := NewBucketMerger("price", 5)
	require.NoError(t, m.Add(0, []RangeBucket{{"0-10", 3}, {"10-20", 0}, {"20-30", 4}}))
	require.NoError(t, m.Add(1, []RangeBucket{{"0-10", 3}, {"10-20", 1}, {"20-30", 0}}))
	assert.Equal(t, []RangeBucket{{"0-10", 6}}, m.Buckets())
}

func TestBucketMergerMismatch(t *testing.T) {
	reference := []RangeBucket{{"0-10", 3}, {"10-20", 5}}
	tests := []struct {
		name  string
		other []RangeBucket
	}{
		{"different order", []RangeBucket{{"10-20", 1}, {"0-10", 7}}},
		{"missing key", []RangeBucket{{"0-10", 7}}},
		{"extra key", []RangeBucket{{"0-10", 7}, {"10-20", 1}, {"20-30", 2}}},
		{"renamed key", []RangeBucket{{"0-10", 7}, {"10-25", 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewBucketMerger("price", 0)
			require.NoError(t, m.Add(0, reference))
			err := m.Add(1, tt.other)
			assert.True(t, errors.Is(err, apperrors.ErrProtocolMismatch), "got %v", err)
		})
	}
}

func TestBucketMergerRejectsRepeatedReferenceKey(t *testing.T) {
	m := NewBucketMerger("price", 0)
	err := m.Add(0, []RangeBucket{{"0-10", 3}, {"0-10", 5}})
	assert.True(t, errors.Is(err, apperrors.ErrProtocolMismatch))
}

func TestQueryCounter(t *testing.T) {
	q := NewQueryCounter(QuerySpec{Base: Base{FacetKey: "cheap"}, Query: "price:[0 TO 10]"})
	require.NoError(t, q.Add(4))
	require.NoError(t, q.Add(6))
	assert.Equal(t, uint64(10), q.Count())
	assert.True(t, errors.Is(q.Add(^uint64(0)), apperrors.ErrOverflow))
	assert.Equal(t, uint64(10), q.Count())
}
