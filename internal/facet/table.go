package facet

import (
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
)

// TermCount is one entry of a shard's facet response. Missing marks the
// bucket of documents without a value for the field.
type TermCount struct {
	Value   string
	Missing bool
	Count   uint64
}

// TermEntry is the merged state of one distinct value.
type TermEntry struct {
	Value      string
	Comparable string
	Count      uint64
	TermNum    uint32
}

// Normalizer maps a display value to the form used for identity and ordering.
type Normalizer func(string) string

func identity(s string) string { return s }

// Table accumulates the per-shard partial counts of one field facet.
//
// Each value gets a termNum the first time any shard reports it; termNums are
// never reused within a table. coverage[s] holds the termNums shard s has
// reported and stays nil for a shard that has not contributed (or failed).
type Table struct {
	spec      FieldSpec
	plan      Plan
	normalize Normalizer

	terms       map[string]*TermEntry
	entries     []*TermEntry
	termCounter uint32

	coverage        []*roaring.Bitmap
	missingMax      []uint64
	missingMaxTotal uint64
	missingBucket   uint64

	// pending[s] holds termNums requested from shard s in the open
	// refinement round.
	pending []*roaring.Bitmap
}

// NewTable creates an empty table for numShards shards. A nil normalize keeps
// values as they are.
func NewTable(spec FieldSpec, plan Plan, numShards int, normalize Normalizer) *Table {
	if normalize == nil {
		normalize = identity
	}
	return &Table{
		spec:       spec,
		plan:       plan,
		normalize:  normalize,
		terms:      make(map[string]*TermEntry),
		coverage:   make([]*roaring.Bitmap, numShards),
		missingMax: make([]uint64, numShards),
		pending:    make([]*roaring.Bitmap, numShards),
	}
}

func (t *Table) Spec() FieldSpec { return t.spec }
func (t *Table) Plan() Plan      { return t.plan }
func (t *Table) NumShards() int  { return len(t.coverage) }

// Add merges shard's first-round response. numRequested is the limit the shard
// was asked for (negative for unbounded).
func (t *Table) Add(shard int, result []TermCount, numRequested int) error {
	if err := t.checkShard(shard); err != nil {
		return err
	}
	if t.coverage[shard] != nil {
		return apperrors.ProtocolMismatchf("facet %q: shard %d answered round one twice", t.spec.Key(), shard)
	}
	covered := roaring.New()
	t.coverage[shard] = covered

	var last uint64
	numReceived := 0
	for _, tc := range result {
		if tc.Missing {
			sum, err := AddCount(t.missingBucket, tc.Count)
			if err != nil {
				return fmt.Errorf("facet %q missing bucket: %w", t.spec.Key(), err)
			}
			t.missingBucket = sum
			continue
		}
		numReceived++
		entry, err := t.lookupOrAllocate(tc.Value)
		if err != nil {
			return err
		}
		if covered.Contains(entry.TermNum) {
			return apperrors.ProtocolMismatchf("facet %q: shard %d reported %q twice", t.spec.Key(), shard, tc.Value)
		}
		if entry.Count, err = AddCount(entry.Count, tc.Count); err != nil {
			return fmt.Errorf("facet %q value %q: %w", t.spec.Key(), tc.Value, err)
		}
		covered.Add(entry.TermNum)
		last = tc.Count
	}

	// A shard that returned fewer values than asked for has exhausted its
	// candidates; anything it left out is below the mincount it was sent.
	if numRequested < 0 || (numRequested != 0 && numReceived < numRequested) {
		last = uint64(max(t.plan.InitialMinCount, 0))
	}
	t.missingMax[shard] = last
	total, err := AddCount(t.missingMaxTotal, last)
	if err != nil {
		return fmt.Errorf("facet %q missing bound: %w", t.spec.Key(), err)
	}
	t.missingMaxTotal = total
	return nil
}

func (t *Table) lookupOrAllocate(value string) (*TermEntry, error) {
	key := t.normalize(value)
	if e, ok := t.terms[key]; ok {
		return e, nil
	}
	if t.termCounter == math.MaxUint32 {
		return nil, fmt.Errorf("facet %q term ids: %w", t.spec.Key(), apperrors.ErrOverflow)
	}
	e := &TermEntry{Value: value, Comparable: key, TermNum: t.termCounter}
	t.termCounter++
	t.terms[key] = e
	t.entries = append(t.entries, e)
	return e, nil
}

func (t *Table) checkShard(shard int) error {
	if shard < 0 || shard >= len(t.coverage) {
		return fmt.Errorf("facet %q: shard index %d out of range [0,%d): %w",
			t.spec.Key(), shard, len(t.coverage), apperrors.ErrInternal)
	}
	return nil
}

// Lookup returns the entry for value, if any shard has reported it.
func (t *Table) Lookup(value string) (*TermEntry, bool) {
	e, ok := t.terms[t.normalize(value)]
	return e, ok
}

// Entries returns every merged value in termNum order.
func (t *Table) Entries() []*TermEntry {
	out := make([]*TermEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Contributed reports whether shard has merged a response into this table.
func (t *Table) Contributed(shard int) bool {
	return shard >= 0 && shard < len(t.coverage) && t.coverage[shard] != nil
}

// Covered reports whether shard has reported the value with termNum.
func (t *Table) Covered(shard int, termNum uint32) bool {
	return t.Contributed(shard) && t.coverage[shard].Contains(termNum)
}

// MissingMax is the largest count any value not reported by shard could have
// there.
func (t *Table) MissingMax(shard int) uint64 {
	if shard < 0 || shard >= len(t.missingMax) {
		return 0
	}
	return t.missingMax[shard]
}

// MissingMaxTotal bounds the global count of a value no shard reported.
func (t *Table) MissingMaxTotal() uint64 { return t.missingMaxTotal }

// MissingBucketCount is the merged count of documents without a value.
func (t *Table) MissingBucketCount() uint64 { return t.missingBucket }

// MaxPossible is the upper bound on e's global count given what is known.
func (t *Table) MaxPossible(e *TermEntry) (uint64, error) {
	total := e.Count
	for s, covered := range t.coverage {
		if covered == nil || covered.Contains(e.TermNum) {
			continue
		}
		var err error
		if total, err = AddCount(total, t.missingMax[s]); err != nil {
			return 0, err
		}
	}
	return total, nil
}
