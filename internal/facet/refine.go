package facet

import (
	"github.com/RoaringBitmap/roaring/v2"

	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
)

// SelectRefinements decides which merged values need exact counts from shards
// that did not report them. It returns, per shard index, the display values to
// request in the next round and records them as pending. The result is nil
// when no shard needs a refinement request.
//
// Index-sorted facets with minCount <= 1 are never refined: shard-local index
// order is taken as accurate enough there. That is a known approximation.
func (t *Table) SelectRefinements() ([][]string, error) {
	if t.plan.InitialLimit <= 0 && t.plan.InitialMinCount <= 1 {
		return nil, nil
	}
	if t.spec.MinCount <= 1 && t.spec.Sort == SortIndex {
		return nil, nil
	}

	entries := t.Entries()
	ntop := len(entries)
	if end := t.spec.End(); end != Unbounded && end < ntop {
		ntop = end
	}
	top := topByCount(entries, ntop)

	var threshold uint64
	if end := t.spec.End(); end == Unbounded || len(entries) >= end {
		if len(top) > 0 {
			threshold = top[len(top)-1].Count
		}
	}
	if t.spec.Sort == SortIndex && uint64(t.spec.MinCount) < threshold {
		threshold = uint64(t.spec.MinCount)
	}

	inTop := make(map[uint32]bool, len(top))
	for _, e := range top {
		inTop[e.TermNum] = true
	}

	var out [][]string
	flag := func(e *TermEntry) {
		for s, covered := range t.coverage {
			if covered == nil || covered.Contains(e.TermNum) || t.missingMax[s] == 0 {
				continue
			}
			if t.pending[s] == nil {
				t.pending[s] = roaring.New()
			}
			if !t.pending[s].CheckedAdd(e.TermNum) {
				continue
			}
			if out == nil {
				out = make([][]string, len(t.coverage))
			}
			out[s] = append(out[s], e.Value)
		}
	}

	for _, e := range top {
		flag(e)
	}
	for _, e := range entries {
		if inTop[e.TermNum] {
			continue
		}
		maxPossible, err := t.MaxPossible(e)
		if err != nil {
			return nil, err
		}
		if maxPossible >= threshold {
			flag(e)
		}
	}
	return out, nil
}

// HasPending reports whether any refinement request is still unanswered.
func (t *Table) HasPending() bool {
	for _, p := range t.pending {
		if p != nil && !p.IsEmpty() {
			return true
		}
	}
	return false
}

// PendingFor returns how many values are awaiting an answer from shard.
func (t *Table) PendingFor(shard int) int {
	if shard < 0 || shard >= len(t.pending) || t.pending[shard] == nil {
		return 0
	}
	return int(t.pending[shard].GetCardinality())
}

// IsPending reports whether any shard still owes an exact count for termNum.
func (t *Table) IsPending(termNum uint32) bool {
	for _, p := range t.pending {
		if p != nil && p.Contains(termNum) {
			return true
		}
	}
	return false
}

// MergeRefinement adds shard's exact counts for the values it was asked to
// refine. The response must name exactly the pending values; anything else
// means the shard and the coordinator disagree and is a protocol mismatch.
func (t *Table) MergeRefinement(shard int, result []TermCount) error {
	if err := t.checkShard(shard); err != nil {
		return err
	}
	pending := t.pending[shard]
	for _, tc := range result {
		if tc.Missing {
			return apperrors.ProtocolMismatchf("facet %q: shard %d sent a missing bucket in a refinement", t.spec.Key(), shard)
		}
		e, ok := t.Lookup(tc.Value)
		if !ok || t.coverage[shard] == nil {
			return apperrors.ProtocolMismatchf("facet %q: shard %d refined unrequested value %q", t.spec.Key(), shard, tc.Value)
		}
		if t.coverage[shard].Contains(e.TermNum) {
			return apperrors.ProtocolMismatchf("facet %q: shard %d already counted %q", t.spec.Key(), shard, tc.Value)
		}
		if pending == nil || !pending.Contains(e.TermNum) {
			return apperrors.ProtocolMismatchf("facet %q: shard %d refined unrequested value %q", t.spec.Key(), shard, tc.Value)
		}
		var err error
		if e.Count, err = AddCount(e.Count, tc.Count); err != nil {
			return err
		}
		t.coverage[shard].Add(e.TermNum)
		pending.Remove(e.TermNum)
	}
	if pending != nil && !pending.IsEmpty() {
		missing := t.entries[pending.Minimum()].Value
		return apperrors.ProtocolMismatchf("facet %q: shard %d omitted %d requested value(s), first %q",
			t.spec.Key(), shard, pending.GetCardinality(), missing)
	}
	t.pending[shard] = nil
	return nil
}

// DropShard abandons any outstanding refinement for shard. Counts it already
// contributed stay merged.
func (t *Table) DropShard(shard int) {
	if shard >= 0 && shard < len(t.pending) {
		t.pending[shard] = nil
	}
}
