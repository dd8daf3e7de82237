package facet

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
)

func tc(value string, count uint64) TermCount {
	return TermCount{Value: value, Count: count}
}

func TestTableAddTracksCoverageAndBounds(t *testing.T) {
	spec := FieldSpec{Base: Base{FacetKey: "cat"}, Field: "cat", Limit: 2, Sort: SortCount}
	table := NewTable(spec, Plan{InitialLimit: 2, InitialMinCount: 0}, 3, nil)

	require.NoError(t, table.Add(0, []TermCount{tc("x", 5), tc("y", 3)}, 2))
	require.NoError(t, table.Add(1, []TermCount{tc("z", 6), tc("y", 4)}, 2))
	require.NoError(t, table.Add(2, []TermCount{tc("z", 2), tc("x", 1)}, 2))

	x, ok := table.Lookup("x")
	require.True(t, ok)
	assert.Equal(t, uint64(6), x.Count)
	assert.Equal(t, uint32(0), x.TermNum)
	y, _ := table.Lookup("y")
	assert.Equal(t, uint64(7), y.Count)
	z, _ := table.Lookup("z")
	assert.Equal(t, uint64(8), z.Count)
	assert.Equal(t, uint32(2), z.TermNum)

	assert.True(t, table.Covered(0, x.TermNum))
	assert.False(t, table.Covered(1, x.TermNum))
	assert.Equal(t, uint64(3), table.MissingMax(0))
	assert.Equal(t, uint64(4), table.MissingMax(1))
	assert.Equal(t, uint64(1), table.MissingMax(2))
	assert.Equal(t, uint64(8), table.MissingMaxTotal())

	maxX, err := table.MaxPossible(x)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), maxX)
}

func TestTableAddExhaustedShardUsesInitialMinCount(t *testing.T) {
	spec := FieldSpec{Base: Base{FacetKey: "f"}, Limit: 10, Sort: SortCount}
	table := NewTable(spec, Plan{InitialLimit: 25, InitialMinCount: 1}, 3, nil)

	require.NoError(t, table.Add(0, []TermCount{tc("a", 9), tc("b", 4)}, 25))
	require.NoError(t, table.Add(1, nil, 25))
	require.NoError(t, table.Add(2, []TermCount{tc("a", 9), tc("b", 4)}, Unbounded))

	assert.Equal(t, uint64(1), table.MissingMax(0))
	assert.Equal(t, uint64(1), table.MissingMax(1))
	assert.Equal(t, uint64(1), table.MissingMax(2))
}

func TestTableAddMissingBucketDoesNotCountAsReceived(t *testing.T) {
	spec := FieldSpec{Base: Base{FacetKey: "f"}, Limit: 2, Sort: SortCount, Missing: true}
	table := NewTable(spec, Plan{InitialLimit: 2, InitialMinCount: 0}, 2, nil)

	require.NoError(t, table.Add(0, []TermCount{tc("a", 9), {Missing: true, Count: 4}, tc("b", 6)}, 2))
	require.NoError(t, table.Add(1, []TermCount{tc("a", 3), {Missing: true, Count: 2}}, 2))

	assert.Equal(t, uint64(6), table.MissingBucketCount())
	assert.Equal(t, uint64(6), table.MissingMax(0))
	// one real value for two requested: exhausted
	assert.Equal(t, uint64(0), table.MissingMax(1))
	assert.Len(t, table.Entries(), 2)
}

func TestTableAddRejectsDuplicates(t *testing.T) {
	spec := FieldSpec{Base: Base{FacetKey: "f"}, Limit: 5}
	table := NewTable(spec, Plan{InitialLimit: 5}, 2, nil)

	err := table.Add(0, []TermCount{tc("a", 1), tc("a", 2)}, 5)
	assert.True(t, errors.Is(err, apperrors.ErrProtocolMismatch))

	table = NewTable(spec, Plan{InitialLimit: 5}, 2, nil)
	require.NoError(t, table.Add(1, []TermCount{tc("a", 1)}, 5))
	err = table.Add(1, []TermCount{tc("b", 1)}, 5)
	assert.True(t, errors.Is(err, apperrors.ErrProtocolMismatch))

	err = table.Add(2, nil, 5)
	assert.True(t, errors.Is(err, apperrors.ErrInternal))
}

func TestTableAddOverflowFailsClosed(t *testing.T) {
	spec := FieldSpec{Base: Base{FacetKey: "f"}, Limit: 5}
	table := NewTable(spec, Plan{InitialLimit: 5}, 2, nil)
	require.NoError(t, table.Add(0, []TermCount{tc("a", math.MaxUint64)}, 5))
	err := table.Add(1, []TermCount{tc("a", 1)}, 5)
	assert.True(t, errors.Is(err, apperrors.ErrOverflow))
}

func TestTableNormalizerMergesEquivalentValues(t *testing.T) {
	spec := FieldSpec{Base: Base{FacetKey: "f"}, Limit: Unbounded, Sort: SortIndex}
	table := NewTable(spec, Plan{InitialLimit: Unbounded}, 2, strings.ToLower)
	require.NoError(t, table.Add(0, []TermCount{tc("Red", 2)}, Unbounded))
	require.NoError(t, table.Add(1, []TermCount{tc("red", 5)}, Unbounded))

	require.Len(t, table.Entries(), 1)
	e := table.Entries()[0]
	assert.Equal(t, "Red", e.Value)
	assert.Equal(t, uint64(7), e.Count)
}

func TestTableMergeCommutative(t *testing.T) {
	responses := [][]TermCount{
		{tc("x", 5), tc("y", 3), tc("w", 3)},
		{tc("z", 6), tc("y", 4), {Missing: true, Count: 2}},
		{tc("z", 2), tc("x", 1), tc("v", 1)},
		{tc("w", 9), tc("v", 8), tc("x", 8)},
	}
	spec := FieldSpec{Base: Base{FacetKey: "f"}, Limit: 3, Sort: SortCount, Missing: true}
	plan := Plan{InitialLimit: 3, InitialMinCount: 0}

	var reference []Bucket
	var refBound uint64
	for _, order := range permutations(len(responses)) {
		table := NewTable(spec, plan, len(responses), nil)
		for _, shard := range order {
			require.NoError(t, table.Add(shard, responses[shard], plan.InitialLimit))
		}
		got := table.Buckets()
		if reference == nil {
			reference = got
			refBound = table.MissingMaxTotal()
			continue
		}
		assert.Equal(t, reference, got, "order %v", order)
		assert.Equal(t, refBound, table.MissingMaxTotal(), "order %v", order)
	}
	assert.Equal(t, []Bucket{
		{Value: "x", Count: 14},
		{Value: "w", Count: 12},
		{Value: "v", Count: 9},
		{Missing: true, Count: 2},
	}, reference)
}

func permutations(n int) [][]int {
	var out [][]int
	var walk func(prefix []int, used []bool)
	walk = func(prefix []int, used []bool) {
		if len(prefix) == n {
			out = append(out, append([]int(nil), prefix...))
			return
		}
		for i := 0; i < n; i++ {
			if used[i] {
				continue
			}
			used[i] = true
			walk(append(prefix, i), used)
			used[i] = false
		}
	}
	walk(nil, make([]bool, n))
	return out
}
