// Package pivot aggregates hierarchical (pivot) facets across shards. Every
// sibling group of the tree is merged with a facet.Table scoped to its parent
// path, and refinement repeats round after round until no group has a value
// awaiting an exact count from any shard.
package pivot

import (
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/facet"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
)

// GroupID identifies a sibling group within one Engine.
type GroupID uint64

// Result is one node of a shard's pivot response.
type Result struct {
	Value    string
	Missing  bool
	Count    uint64
	Children []Result
}

// PathResult is a shard's answer for one refinement target: the target's
// count and its subtree below.
type PathResult struct {
	Path     ValuePath
	Count    uint64
	Children []Result
}

// Request asks one shard for exact counts of values in one sibling group.
// Every path is the parent path of the group extended by one value.
type Request struct {
	Group GroupID
	Shard int
	Paths []ValuePath
}

// Node is one entry of the assembled pivot tree.
type Node struct {
	Field    string
	Value    string
	Missing  bool
	Count    uint64
	Children []Node
}

type group struct {
	id      GroupID
	depth   int
	path    ValuePath
	table   *facet.Table
	values  map[uint32]*value
	missing *value
	// outstanding holds the shards that owe this group a refinement answer.
	outstanding map[int]bool
}

type value struct {
	path     ValuePath
	entry    *facet.TermEntry
	children *group
}

// Engine holds the merge state of one pivot facet for one request. It is
// not safe for concurrent use.
type Engine struct {
	spec      facet.PivotSpec
	plans     []facet.Plan
	normalize []facet.Normalizer
	numShards int
	root      *group
	groups    map[GroupID]*group
	nextID    GroupID
	failed    []bool
	rounds    int
	logger    *slog.Logger
}

// New creates an engine for spec over numShards shards. normalize may be nil
// or hold one normalizer per level.
func New(spec facet.PivotSpec, numShards int, normalize []facet.Normalizer) (*Engine, error) {
	if len(spec.Levels) == 0 {
		return nil, apperrors.Configurationf("pivot %q has no fields", spec.Key())
	}
	e := &Engine{
		spec:      spec,
		plans:     make([]facet.Plan, len(spec.Levels)),
		normalize: make([]facet.Normalizer, len(spec.Levels)),
		numShards: numShards,
		groups:    make(map[GroupID]*group),
		failed:    make([]bool, numShards),
		logger:    slog.Default().With("component", "pivot-engine", "facet", spec.Key()),
	}
	for i, level := range spec.Levels {
		e.plans[i] = facet.PlanField(level, numShards)
		if i < len(normalize) {
			e.normalize[i] = normalize[i]
		}
	}
	e.root = e.newGroup(0, ValuePath{})
	return e, nil
}

func (e *Engine) Spec() facet.PivotSpec { return e.spec }

// Plans returns the first-round parameters for every level.
func (e *Engine) Plans() []facet.Plan {
	out := make([]facet.Plan, len(e.plans))
	copy(out, e.plans)
	return out
}

// Rounds is the number of refinement rounds queued so far.
func (e *Engine) Rounds() int { return e.rounds }

func (e *Engine) newGroup(depth int, path ValuePath) *group {
	e.nextID++
	level := e.spec.Levels[depth]
	g := &group{
		id:          e.nextID,
		depth:       depth,
		path:        path,
		table:       facet.NewTable(level, e.plans[depth], e.numShards, e.normalize[depth]),
		values:      make(map[uint32]*value),
		outstanding: make(map[int]bool),
	}
	e.groups[g.id] = g
	return g
}

// AddShard merges shard's first-round forest.
func (e *Engine) AddShard(shard int, forest []Result) error {
	return e.addToGroup(e.root, shard, forest)
}

func (e *Engine) addToGroup(g *group, shard int, results []Result) error {
	terms := make([]facet.TermCount, len(results))
	for i, r := range results {
		terms[i] = facet.TermCount{Value: r.Value, Missing: r.Missing, Count: r.Count}
	}
	if err := g.table.Add(shard, terms, e.plans[g.depth].InitialLimit); err != nil {
		return fmt.Errorf("pivot %q at %q: %w", e.spec.Key(), g.path, err)
	}
	for _, r := range results {
		v := e.valueFor(g, r.Value, r.Missing)
		if err := e.addChildren(v, g.depth, shard, r.Children); err != nil {
			return err
		}
	}
	return nil
}

// addChildren records shard's children of v. An empty list still counts as a
// contribution: the shard has been asked and has nothing more.
func (e *Engine) addChildren(v *value, depth, shard int, children []Result) error {
	if depth+1 >= len(e.spec.Levels) {
		if len(children) > 0 {
			return apperrors.ProtocolMismatchf("pivot %q: shard %d returned children below the last level at %q",
				e.spec.Key(), shard, v.path)
		}
		return nil
	}
	if v.children == nil {
		v.children = e.newGroup(depth+1, v.path)
	}
	return e.addToGroup(v.children, shard, children)
}

func (e *Engine) valueFor(g *group, val string, missing bool) *value {
	if missing {
		if g.missing == nil {
			g.missing = &value{path: g.path.Append(Segment{Null: true})}
		}
		return g.missing
	}
	entry, _ := g.table.Lookup(val)
	v, ok := g.values[entry.TermNum]
	if !ok {
		v = &value{path: g.path.Append(Segment{Value: entry.Value}), entry: entry}
		g.values[entry.TermNum] = v
	}
	return v
}

// DropShard stops routing refinements to shard and forgets what it owes.
func (e *Engine) DropShard(shard int) {
	if shard < 0 || shard >= len(e.failed) {
		return
	}
	e.failed[shard] = true
	for _, g := range e.groups {
		g.table.DropShard(shard)
		delete(g.outstanding, shard)
	}
}

// QueueRefinements walks the tree and returns the refinement requests for the
// next round, one per (group, shard). An empty result means the tree has
// converged.
//
// Children are only examined below values that will be shown and that have no
// refinement queued themselves: a refinement brings in new child counts, so
// their group is revisited in the following round.
func (e *Engine) QueueRefinements() ([]Request, error) {
	var out []Request
	if err := e.queue(e.root, &out); err != nil {
		return nil, err
	}
	if len(out) > 0 {
		e.rounds++
		e.logger.Debug("pivot refinements queued", "round", e.rounds, "requests", len(out))
	}
	return out, nil
}

func (e *Engine) queue(g *group, out *[]Request) error {
	perShard, err := g.table.SelectRefinements()
	if err != nil {
		return fmt.Errorf("pivot %q at %q: %w", e.spec.Key(), g.path, err)
	}
	for shard, vals := range perShard {
		if len(vals) == 0 {
			continue
		}
		if e.failed[shard] {
			g.table.DropShard(shard)
			continue
		}
		req := Request{Group: g.id, Shard: shard, Paths: make([]ValuePath, len(vals))}
		for i, val := range vals {
			req.Paths[i] = g.path.Append(Segment{Value: val})
		}
		g.outstanding[shard] = true
		*out = append(*out, req)
	}

	for _, v := range e.visible(g) {
		if v.children == nil {
			continue
		}
		if v.entry != nil && g.table.IsPending(v.entry.TermNum) {
			continue
		}
		if err := e.queue(v.children, out); err != nil {
			return err
		}
	}
	return nil
}

// visible returns the values of g that the assembled response will show, in
// response order, with the missing bucket last.
func (e *Engine) visible(g *group) []*value {
	level := e.spec.Levels[g.depth]
	sorted := g.table.Entries()
	facet.SortEntries(sorted, level.Sort)
	picked := facet.Window(sorted, level.Offset, level.Limit, level.MinCount)

	out := make([]*value, 0, len(picked)+1)
	for _, entry := range picked {
		out = append(out, g.values[entry.TermNum])
	}
	if level.Missing && g.missing != nil && g.table.MissingBucketCount() >= uint64(max(level.MinCount, 0)) {
		out = append(out, g.missing)
	}
	return out
}

// Pending is the number of (group, shard) refinement answers still owed.
func (e *Engine) Pending() int {
	n := 0
	for _, g := range e.groups {
		n += len(g.outstanding)
	}
	return n
}

// MergeRefinement applies shard's answer to the request queued for group.
func (e *Engine) MergeRefinement(id GroupID, shard int, results []PathResult) error {
	g, ok := e.groups[id]
	if !ok {
		return apperrors.ProtocolMismatchf("pivot %q: refinement for unknown group %d", e.spec.Key(), id)
	}
	if !g.outstanding[shard] {
		return apperrors.ProtocolMismatchf("pivot %q: shard %d answered an unrequested refinement at %q",
			e.spec.Key(), shard, g.path)
	}

	terms := make([]facet.TermCount, len(results))
	for i, r := range results {
		if len(r.Path) != len(g.path)+1 || !r.Path.HasPrefix(g.path) {
			return apperrors.ProtocolMismatchf("pivot %q: shard %d answered path %q outside %q",
				e.spec.Key(), shard, r.Path, g.path)
		}
		last := r.Path[len(r.Path)-1]
		if last.Null {
			return apperrors.ProtocolMismatchf("pivot %q: shard %d refined a missing bucket at %q",
				e.spec.Key(), shard, g.path)
		}
		terms[i] = facet.TermCount{Value: last.Value, Count: r.Count}
	}
	if err := g.table.MergeRefinement(shard, terms); err != nil {
		return fmt.Errorf("pivot %q at %q: %w", e.spec.Key(), g.path, err)
	}
	delete(g.outstanding, shard)

	for i, r := range results {
		v := e.valueFor(g, terms[i].Value, false)
		if err := e.addChildren(v, g.depth, shard, r.Children); err != nil {
			return err
		}
	}
	return nil
}

// Tree assembles the final trimmed forest.
func (e *Engine) Tree() []Node {
	return e.assemble(e.root)
}

func (e *Engine) assemble(g *group) []Node {
	level := e.spec.Levels[g.depth]
	visible := e.visible(g)
	out := make([]Node, 0, len(visible))
	for _, v := range visible {
		n := Node{Field: level.Field}
		if v.entry == nil {
			n.Missing = true
			n.Count = g.table.MissingBucketCount()
		} else {
			n.Value = v.entry.Value
			n.Count = v.entry.Count
		}
		if v.children != nil {
			n.Children = e.assemble(v.children)
		}
		out = append(out, n)
	}
	return out
}
