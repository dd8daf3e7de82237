// Package facet implements distributed facet aggregation: planning the
// first-round shard request, merging per-shard partial counts, choosing the
// values that need exact counts from a second round, and assembling the final
// ordered bucket lists.
//
// Tables in this package are owned by a single request and are not safe for
// concurrent use.
package facet

import (
	"fmt"
	"math"
	"strings"
)

// Kind identifies a facet variant.
type Kind int

const (
	KindField Kind = iota
	KindQuery
	KindRange
	KindDate
	KindInterval
	KindPivot
)

func (k Kind) String() string {
	switch k {
	case KindField:
		return "field"
	case KindQuery:
		return "query"
	case KindRange:
		return "range"
	case KindDate:
		return "date"
	case KindInterval:
		return "interval"
	case KindPivot:
		return "pivot"
	default:
		return "unknown"
	}
}

// SortOrder selects how field facet buckets are ranked.
type SortOrder int

const (
	SortCount SortOrder = iota
	SortIndex
)

func (s SortOrder) String() string {
	if s == SortIndex {
		return "index"
	}
	return "count"
}

// ParseSort accepts count/index and the legacy true/false spellings.
func ParseSort(s string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "count", "true":
		return SortCount, nil
	case "index", "lex", "false":
		return SortIndex, nil
	default:
		return SortCount, fmt.Errorf("unknown facet sort %q", s)
	}
}

// Unbounded is the limit meaning "return every bucket".
const Unbounded = -1

// Spec is a single facet request. The set of implementations is closed:
// FieldSpec, QuerySpec, RangeSpec, IntervalSpec and PivotSpec.
type Spec interface {
	Kind() Kind
	Key() string
	spec()
}

// Base carries the attributes shared by every facet variant.
type Base struct {
	FacetKey    string
	LocalParams string
}

func (b Base) Key() string { return b.FacetKey }

func (Base) spec() {}

// FieldSpec requests value buckets for one field.
type FieldSpec struct {
	Base
	Field            string
	Offset           int
	Limit            int
	MinCount         int
	Sort             SortOrder
	Missing          bool
	Prefix           string
	OverrequestRatio float64
	OverrequestCount int
}

func (FieldSpec) Kind() Kind { return KindField }

// End is offset+limit, or Unbounded when the limit is negative. The sum is
// clamped so absurd parameters cannot wrap.
func (s FieldSpec) End() int {
	if s.Limit < 0 {
		return Unbounded
	}
	end := int64(s.Offset) + int64(s.Limit)
	if end > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(end)
}

// QuerySpec counts the documents matching an arbitrary query.
type QuerySpec struct {
	Base
	Query string
}

func (QuerySpec) Kind() Kind { return KindQuery }

// RangeSpec buckets a numeric or date field into [start, end) steps of gap.
// Boundaries are part of the request so every shard produces the same keys.
type RangeSpec struct {
	Base
	Field    string
	Start    string
	End      string
	Gap      string
	HardEnd  bool
	MinCount int
	Date     bool
}

func (s RangeSpec) Kind() Kind {
	if s.Date {
		return KindDate
	}
	return KindRange
}

// Interval is one caller-defined bucket of an interval facet.
type Interval struct {
	Key            string
	Start          string
	End            string
	StartInclusive bool
	EndInclusive   bool
}

// IntervalSpec counts documents falling in each of a fixed list of intervals.
type IntervalSpec struct {
	Base
	Field     string
	Intervals []Interval
}

func (IntervalSpec) Kind() Kind { return KindInterval }

// PivotSpec is a hierarchy of field facets. Levels[i] holds the parameters for
// Fields[i]. MinCount is the pivot-wide default; a level may override it.
type PivotSpec struct {
	Base
	Levels   []FieldSpec
	MinCount int
}

func (PivotSpec) Kind() Kind { return KindPivot }

// Fields returns the field name of every level.
func (s PivotSpec) Fields() []string {
	out := make([]string, len(s.Levels))
	for i, l := range s.Levels {
		out[i] = l.Field
	}
	return out
}

// Request is everything the coordinator needs to aggregate facets for one
// query.
type Request struct {
	Query    string
	Filters  []string
	Facets   []Spec
	Tolerant bool
}
