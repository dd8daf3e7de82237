package executor

import (
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/facet/pivot"
)

// FacetCounts is the assembled response. Every list keeps request order and
// every bucket list keeps its ranking order.
type FacetCounts struct {
	Queries   []QueryCount  `json:"facet_queries"`
	Fields    []FieldCounts `json:"facet_fields"`
	Ranges    []RangeCounts `json:"facet_ranges"`
	Dates     []RangeCounts `json:"facet_dates"`
	Intervals []RangeCounts `json:"facet_intervals"`
	Pivots    []PivotCounts `json:"facet_pivot"`
}

type QueryCount struct {
	Key   string `json:"key"`
	Count uint64 `json:"count"`
}

// ValueCount is one field bucket; a nil Value is the missing bucket.
type ValueCount struct {
	Value *string `json:"value"`
	Count uint64  `json:"count"`
}

type FieldCounts struct {
	Key     string       `json:"key"`
	Buckets []ValueCount `json:"buckets"`
}

type KeyCount struct {
	Key   string `json:"key"`
	Count uint64 `json:"count"`
}

type RangeCounts struct {
	Key     string     `json:"key"`
	Buckets []KeyCount `json:"buckets"`
}

type PivotNode struct {
	Field string      `json:"field"`
	Value *string     `json:"value"`
	Count uint64      `json:"count"`
	Pivot []PivotNode `json:"pivot,omitempty"`
}

type PivotCounts struct {
	Key   string      `json:"key"`
	Nodes []PivotNode `json:"nodes"`
}

// Result is the outcome of one facet request.
type Result struct {
	RequestID    string      `json:"request_id"`
	Counts       FacetCounts `json:"facet_counts"`
	Rounds       int         `json:"rounds"`
	FailedShards []int       `json:"failed_shards,omitempty"`
}

// Partial reports whether some shard was skipped.
func (r *Result) Partial() bool { return len(r.FailedShards) > 0 }

func emptyCounts() FacetCounts {
	return FacetCounts{
		Queries:   []QueryCount{},
		Fields:    []FieldCounts{},
		Ranges:    []RangeCounts{},
		Dates:     []RangeCounts{},
		Intervals: []RangeCounts{},
		Pivots:    []PivotCounts{},
	}
}

// assemble builds the final response from the merged state.
func (rc *RequestContext) assemble() FacetCounts {
	out := emptyCounts()
	for _, q := range rc.queries {
		out.Queries = append(out.Queries, QueryCount{Key: q.Spec.Key(), Count: q.Count()})
	}
	for _, f := range rc.fields {
		buckets := f.table.Buckets()
		fc := FieldCounts{Key: f.spec.Key(), Buckets: make([]ValueCount, len(buckets))}
		for i, b := range buckets {
			fc.Buckets[i] = ValueCount{Count: b.Count}
			if !b.Missing {
				fc.Buckets[i].Value = &b.Value
			}
		}
		out.Fields = append(out.Fields, fc)
	}
	out.Ranges = append(out.Ranges, rangeCounts(rc.ranges)...)
	out.Dates = append(out.Dates, rangeCounts(rc.dates)...)
	out.Intervals = append(out.Intervals, rangeCounts(rc.intervals)...)
	for _, p := range rc.pivots {
		out.Pivots = append(out.Pivots, PivotCounts{Key: p.engine.Spec().Key(), Nodes: pivotNodes(p.engine.Tree())})
	}
	return out
}

func rangeCounts(facets []*bucketFacet) []RangeCounts {
	out := make([]RangeCounts, 0, len(facets))
	for _, bf := range facets {
		buckets := bf.merger.Buckets()
		rc := RangeCounts{Key: bf.key, Buckets: make([]KeyCount, len(buckets))}
		for i, b := range buckets {
			rc.Buckets[i] = KeyCount{Key: b.Key, Count: b.Count}
		}
		out = append(out, rc)
	}
	return out
}

func pivotNodes(nodes []pivot.Node) []PivotNode {
	out := make([]PivotNode, len(nodes))
	for i, n := range nodes {
		out[i] = PivotNode{Field: n.Field, Count: n.Count}
		if !n.Missing {
			out[i].Value = &n.Value
		}
		if len(n.Children) > 0 {
			out[i].Pivot = pivotNodes(n.Children)
		}
	}
	return out
}
