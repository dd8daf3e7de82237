package facet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entries(pairs ...any) []*TermEntry {
	var out []*TermEntry
	for i := 0; i < len(pairs); i += 2 {
		v := pairs[i].(string)
		out = append(out, &TermEntry{Value: v, Comparable: v, Count: uint64(pairs[i+1].(int)), TermNum: uint32(i / 2)})
	}
	return out
}

func values(es []*TermEntry) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.Value
	}
	return out
}

func TestWindowMinCountDoesNotConsumeOffset(t *testing.T) {
	es := entries("a", 10, "b", 1, "c", 8)

	SortEntries(es, SortIndex)
	assert.Equal(t, []string{"c"}, values(Window(es, 1, 1, 2)))

	SortEntries(es, SortCount)
	assert.Equal(t, []string{"c"}, values(Window(es, 1, 1, 2)))
}

func TestWindow(t *testing.T) {
	es := entries("a", 1, "b", 5, "c", 5, "d", 3, "e", 0)
	SortEntries(es, SortCount)
	assert.Equal(t, []string{"b", "c", "d", "a", "e"}, values(es))

	assert.Equal(t, []string{"b", "c", "d", "a", "e"}, values(Window(es, 0, Unbounded, 0)))
	assert.Equal(t, []string{"c", "d"}, values(Window(es, 1, 2, 0)))
	assert.Equal(t, []string{"b", "c", "d"}, values(Window(es, 0, 10, 2)))
	assert.Empty(t, Window(es, 0, 0, 0))
	assert.Empty(t, Window(es, 10, 5, 0))

	SortEntries(es, SortIndex)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, values(es))
	assert.Equal(t, []string{"c", "d"}, values(Window(es, 1, 2, 2)))
}

func TestTopByCountMatchesFullSort(t *testing.T) {
	es := entries("m", 4, "a", 9, "q", 4, "b", 1, "z", 9, "k", 7)
	full := append([]*TermEntry(nil), es...)
	SortEntries(full, SortCount)
	for n := 0; n <= len(es)+1; n++ {
		want := full[:min(n, len(full))]
		assert.Equal(t, values(want), values(topByCount(es, n)), "n=%d", n)
	}
}

func TestBucketsDeterministicAndMissingLast(t *testing.T) {
	spec := FieldSpec{Base: Base{FacetKey: "f"}, Limit: 2, Offset: 0, MinCount: 1, Sort: SortCount, Missing: true}
	table := NewTable(spec, Plan{InitialLimit: Unbounded, InitialMinCount: 0}, 2, nil)
	require.NoError(t, table.Add(0, []TermCount{tc("b", 3), tc("a", 3), {Missing: true, Count: 7}}, Unbounded))
	require.NoError(t, table.Add(1, []TermCount{tc("c", 1)}, Unbounded))

	assert.Equal(t, []Bucket{
		{Value: "a", Count: 3},
		{Value: "b", Count: 3},
		{Missing: true, Count: 7},
	}, table.Buckets())
}
