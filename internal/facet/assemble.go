package facet

import "sort"

// Bucket is one entry of an assembled field facet. Missing marks the bucket
// of documents without a value.
type Bucket struct {
	Value   string
	Missing bool
	Count   uint64
}

// countBefore is the count-desc order with ascending comparable form as the
// tie-break. Comparable forms are unique within a table, so the order is
// total.
func countBefore(a, b *TermEntry) bool {
	if a.Count != b.Count {
		return a.Count > b.Count
	}
	return a.Comparable < b.Comparable
}

func indexBefore(a, b *TermEntry) bool {
	return a.Comparable < b.Comparable
}

// SortEntries orders entries in place.
func SortEntries(entries []*TermEntry, order SortOrder) {
	less := countBefore
	if order == SortIndex {
		less = indexBefore
	}
	sort.Slice(entries, func(i, j int) bool {
		return less(entries[i], entries[j])
	})
}

// Window applies mincount, offset and limit to an already sorted list.
// Entries below minCount are dropped without consuming the offset or the
// limit, so an index-ordered scan keeps going past low counts.
func Window(sorted []*TermEntry, offset, limit, minCount int) []*TermEntry {
	var out []*TermEntry
	skipped := 0
	for _, e := range sorted {
		if minCount > 0 && e.Count < uint64(minCount) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if limit >= 0 && len(out) >= limit {
			break
		}
		out = append(out, e)
	}
	return out
}

// Buckets assembles the final ordered bucket list, appending the missing
// bucket last when requested.
func (t *Table) Buckets() []Bucket {
	sorted := t.Entries()
	SortEntries(sorted, t.spec.Sort)
	picked := Window(sorted, t.spec.Offset, t.spec.Limit, t.spec.MinCount)

	out := make([]Bucket, 0, len(picked)+1)
	for _, e := range picked {
		out = append(out, Bucket{Value: e.Value, Count: e.Count})
	}
	if t.spec.Missing {
		out = append(out, Bucket{Missing: true, Count: t.missingBucket})
	}
	return out
}
