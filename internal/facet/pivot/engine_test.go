package pivot

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/facet"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
)

func level(field string, limit int, missing bool) facet.FieldSpec {
	return facet.FieldSpec{
		Base:     facet.Base{FacetKey: field},
		Field:    field,
		Limit:    limit,
		MinCount: 1,
		Sort:     facet.SortCount,
		Missing:  missing,
	}
}

func pivotSpec(levels ...facet.FieldSpec) facet.PivotSpec {
	return facet.PivotSpec{Base: facet.Base{FacetKey: "p"}, Levels: levels, MinCount: 1}
}

func leaf(v string, c uint64) Result { return Result{Value: v, Count: c} }

func path(values ...string) ValuePath {
	p := ValuePath{}
	for _, v := range values {
		p = append(p, Segment{Value: v})
	}
	return p
}

func requestFor(t *testing.T, reqs []Request, shard int) Request {
	t.Helper()
	for _, r := range reqs {
		if r.Shard == shard {
			return r
		}
	}
	t.Fatalf("no request for shard %d in %+v", shard, reqs)
	return Request{}
}

func TestEngineConvergesAfterOneRound(t *testing.T) {
	e, err := New(pivotSpec(level("cat", 1, false), level("brand", 1, false)), 2, nil)
	require.NoError(t, err)
	require.Equal(t, 1, e.Plans()[0].InitialLimit)

	require.NoError(t, e.AddShard(0, []Result{{Value: "books", Count: 10, Children: []Result{leaf("acme", 6)}}}))
	require.NoError(t, e.AddShard(1, []Result{{Value: "books", Count: 8, Children: []Result{leaf("zen", 5)}}}))

	reqs, err := e.QueueRefinements()
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, 1, e.Rounds())
	assert.Equal(t, 2, e.Pending())
	assert.Equal(t, []ValuePath{path("books", "zen")}, requestFor(t, reqs, 0).Paths)
	assert.Equal(t, []ValuePath{path("books", "acme")}, requestFor(t, reqs, 1).Paths)

	r0 := requestFor(t, reqs, 0)
	r1 := requestFor(t, reqs, 1)
	require.NoError(t, e.MergeRefinement(r0.Group, 0, []PathResult{{Path: path("books", "zen"), Count: 1}}))
	require.NoError(t, e.MergeRefinement(r1.Group, 1, []PathResult{{Path: path("books", "acme"), Count: 3}}))
	assert.Equal(t, 0, e.Pending())

	reqs, err = e.QueueRefinements()
	require.NoError(t, err)
	assert.Empty(t, reqs)
	assert.Equal(t, 1, e.Rounds())

	assert.Equal(t, []Node{{
		Field: "cat", Value: "books", Count: 18,
		Children: []Node{{Field: "brand", Value: "acme", Count: 9}},
	}}, e.Tree())
}

func TestEngineExploresChildrenAfterParentRefinement(t *testing.T) {
	e, err := New(pivotSpec(level("cat", 1, false), level("brand", 1, false)), 2, nil)
	require.NoError(t, err)

	require.NoError(t, e.AddShard(0, []Result{{Value: "a", Count: 5, Children: []Result{leaf("x", 5)}}}))
	require.NoError(t, e.AddShard(1, []Result{{Value: "b", Count: 4, Children: []Result{leaf("y", 4)}}}))

	// round one refines the top level only; a's children wait for shard 1
	reqs, err := e.QueueRefinements()
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, []ValuePath{path("b")}, requestFor(t, reqs, 0).Paths)
	assert.Equal(t, []ValuePath{path("a")}, requestFor(t, reqs, 1).Paths)

	root := requestFor(t, reqs, 0).Group
	require.NoError(t, e.MergeRefinement(root, 0, []PathResult{{Path: path("b"), Count: 3, Children: []Result{leaf("x", 3)}}}))
	require.NoError(t, e.MergeRefinement(root, 1, []PathResult{{Path: path("a"), Count: 2, Children: []Result{leaf("y", 2)}}}))

	reqs, err = e.QueueRefinements()
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, 2, e.Rounds())
	assert.Equal(t, []ValuePath{path("a", "y")}, requestFor(t, reqs, 0).Paths)
	assert.Equal(t, []ValuePath{path("a", "x")}, requestFor(t, reqs, 1).Paths)

	child := requestFor(t, reqs, 0).Group
	require.NoError(t, e.MergeRefinement(child, 0, []PathResult{{Path: path("a", "y"), Count: 0}}))
	require.NoError(t, e.MergeRefinement(child, 1, []PathResult{{Path: path("a", "x"), Count: 1}}))

	reqs, err = e.QueueRefinements()
	require.NoError(t, err)
	assert.Empty(t, reqs)

	assert.Equal(t, []Node{{
		Field: "cat", Value: "a", Count: 7,
		Children: []Node{{Field: "brand", Value: "x", Count: 6}},
	}}, e.Tree())
}

func TestEngineMissingBuckets(t *testing.T) {
	e, err := New(pivotSpec(level("cat", facet.Unbounded, true), level("brand", facet.Unbounded, false)), 2, nil)
	require.NoError(t, err)

	require.NoError(t, e.AddShard(0, []Result{
		{Value: "a", Count: 3, Children: []Result{leaf("x", 3)}},
		{Missing: true, Count: 2, Children: []Result{leaf("x", 1)}},
	}))
	require.NoError(t, e.AddShard(1, []Result{
		{Value: "a", Count: 1, Children: []Result{leaf("y", 1)}},
		{Missing: true, Count: 1, Children: []Result{leaf("y", 1)}},
	}))

	reqs, err := e.QueueRefinements()
	require.NoError(t, err)
	assert.Empty(t, reqs)

	assert.Equal(t, []Node{
		{Field: "cat", Value: "a", Count: 4, Children: []Node{
			{Field: "brand", Value: "x", Count: 3},
			{Field: "brand", Value: "y", Count: 1},
		}},
		{Field: "cat", Missing: true, Count: 3, Children: []Node{
			{Field: "brand", Value: "x", Count: 1},
			{Field: "brand", Value: "y", Count: 1},
		}},
	}, e.Tree())
}

func TestEngineDropShard(t *testing.T) {
	e, err := New(pivotSpec(level("cat", 1, false), level("brand", 1, false)), 2, nil)
	require.NoError(t, err)
	require.NoError(t, e.AddShard(0, []Result{{Value: "a", Count: 5, Children: []Result{leaf("x", 5)}}}))
	require.NoError(t, e.AddShard(1, []Result{{Value: "b", Count: 4, Children: []Result{leaf("y", 4)}}}))

	reqs, err := e.QueueRefinements()
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	e.DropShard(1)
	assert.Equal(t, 1, e.Pending())
	root := requestFor(t, reqs, 0).Group
	require.NoError(t, e.MergeRefinement(root, 0, []PathResult{{Path: path("b"), Count: 3, Children: []Result{leaf("x", 3)}}}))

	// shard 1 is never asked again, even where it could change counts
	reqs, err = e.QueueRefinements()
	require.NoError(t, err)
	for _, r := range reqs {
		assert.NotEqual(t, 1, r.Shard)
	}
}

func TestEngineMergeRefinementErrors(t *testing.T) {
	setup := func(t *testing.T) (*Engine, GroupID) {
		e, err := New(pivotSpec(level("cat", 1, false), level("brand", 1, false)), 2, nil)
		require.NoError(t, err)
		require.NoError(t, e.AddShard(0, []Result{{Value: "a", Count: 5, Children: []Result{leaf("x", 5)}}}))
		require.NoError(t, e.AddShard(1, []Result{{Value: "b", Count: 4, Children: []Result{leaf("y", 4)}}}))
		reqs, err := e.QueueRefinements()
		require.NoError(t, err)
		return e, reqs[0].Group
	}
	tests := []struct {
		name  string
		apply func(*Engine, GroupID) error
	}{
		{"unknown group", func(e *Engine, g GroupID) error {
			return e.MergeRefinement(g+100, 0, nil)
		}},
		{"path outside group", func(e *Engine, g GroupID) error {
			return e.MergeRefinement(g, 0, []PathResult{{Path: path("b", "x"), Count: 1}})
		}},
		{"null target", func(e *Engine, g GroupID) error {
			return e.MergeRefinement(g, 0, []PathResult{{Path: ValuePath{{Null: true}}, Count: 1}})
		}},
		{"omitted target", func(e *Engine, g GroupID) error {
			return e.MergeRefinement(g, 0, nil)
		}},
		{"answered twice", func(e *Engine, g GroupID) error {
			if err := e.MergeRefinement(g, 0, []PathResult{{Path: path("b"), Count: 1}}); err != nil {
				return err
			}
			return e.MergeRefinement(g, 0, []PathResult{{Path: path("b"), Count: 1}})
		}},
		{"children below last level", func(e *Engine, g GroupID) error {
			return e.MergeRefinement(g, 0, []PathResult{{Path: path("b"), Count: 1, Children: []Result{
				{Value: "x", Count: 1, Children: []Result{leaf("deep", 1)}},
			}}})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, g := setup(t)
			err := tt.apply(e, g)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrProtocolMismatch), err.Error())
		})
	}
}

func TestNewRejectsEmptyPivot(t *testing.T) {
	_, err := New(facet.PivotSpec{Base: facet.Base{FacetKey: "p"}}, 2, nil)
	assert.True(t, errors.Is(err, apperrors.ErrConfiguration))
}
