package index

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/query"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
)

// Match returns the live documents selected by plan as a new bitmap.
func (v *View) Match(plan *query.QueryPlan) (*roaring.Bitmap, error) {
	if plan == nil || plan.MatchAll() {
		return v.s.live.Clone(), nil
	}
	var result *roaring.Bitmap
	for _, c := range plan.Clauses {
		docs, err := v.clause(c)
		if err != nil {
			return nil, err
		}
		switch {
		case result == nil:
			result = docs.Clone()
		case plan.Type == query.QueryOR:
			result.Or(docs)
		default:
			result.And(docs)
		}
	}
	if result == nil {
		result = v.s.live.Clone()
	} else {
		result.And(v.s.live)
	}
	for _, c := range plan.Exclude {
		docs, err := v.clause(c)
		if err != nil {
			return nil, err
		}
		result.AndNot(docs)
	}
	return result, nil
}

// MatchAll intersects the documents of every plan.
func (v *View) MatchAll(plans ...*query.QueryPlan) (*roaring.Bitmap, error) {
	result := v.s.live.Clone()
	for _, p := range plans {
		if p == nil || p.MatchAll() {
			continue
		}
		docs, err := v.Match(p)
		if err != nil {
			return nil, err
		}
		result.And(docs)
	}
	return result, nil
}

// clause returns the documents of one clause. The result may be shared and
// must not be modified.
func (v *View) clause(c query.Clause) (*roaring.Bitmap, error) {
	switch {
	case c.All:
		return v.s.live, nil
	case c.Field == "":
		return v.words(c.Value), nil
	case c.Range != nil:
		return v.RangeDocs(c.Field, *c.Range)
	case c.Value == "*":
		return v.Present(c.Field), nil
	}
	if t, ok := v.Lookup(c.Field, c.Value); ok {
		return t.Docs, nil
	}
	return roaring.New(), nil
}

// words matches every term of text in any text field.
func (v *View) words(text string) *roaring.Bitmap {
	terms := v.s.analyzer.Terms(text)
	if len(terms) == 0 {
		return roaring.New()
	}
	fields := v.textFields()
	var result *roaring.Bitmap
	for _, term := range terms {
		docs := roaring.New()
		for _, fi := range fields {
			if t, ok := fi.terms[term]; ok {
				docs.Or(t.Docs)
			}
		}
		if result == nil {
			result = docs
		} else {
			result.And(docs)
		}
	}
	return result
}

// RangeDocs returns the documents with a value of field inside r.
func (v *View) RangeDocs(field string, r query.Range) (*roaring.Bitmap, error) {
	f := v.Field(field)
	in, err := rangePredicate(f, r)
	if err != nil {
		return nil, err
	}
	result := roaring.New()
	for _, t := range v.Terms(field) {
		if in(t) {
			result.Or(t.Docs)
		}
	}
	return result, nil
}

func rangePredicate(f schema.Field, r query.Range) (func(*Term) bool, error) {
	if f.Numeric() {
		lo, hi, err := numericBounds(f, r)
		if err != nil {
			return nil, err
		}
		return func(t *Term) bool {
			n, err := f.Number(t.Value)
			if err != nil {
				return false
			}
			return withinFloat(n, lo, hi, r)
		}, nil
	}
	return func(t *Term) bool {
		if r.Lo != "" && (t.Value < r.Lo || (t.Value == r.Lo && !r.IncLo)) {
			return false
		}
		if r.Hi != "" && (t.Value > r.Hi || (t.Value == r.Hi && !r.IncHi)) {
			return false
		}
		return true
	}, nil
}

type bound struct {
	set   bool
	value float64
}

func numericBounds(f schema.Field, r query.Range) (bound, bound, error) {
	var lo, hi bound
	if r.Lo != "" {
		n, err := f.Number(r.Lo)
		if err != nil {
			return lo, hi, fmt.Errorf("range lower bound %q for %q: %w", r.Lo, f.Name, apperrors.ErrInvalidInput)
		}
		lo = bound{set: true, value: n}
	}
	if r.Hi != "" {
		n, err := f.Number(r.Hi)
		if err != nil {
			return lo, hi, fmt.Errorf("range upper bound %q for %q: %w", r.Hi, f.Name, apperrors.ErrInvalidInput)
		}
		hi = bound{set: true, value: n}
	}
	return lo, hi, nil
}

func withinFloat(n float64, lo, hi bound, r query.Range) bool {
	if lo.set && (n < lo.value || (n == lo.value && !r.IncLo)) {
		return false
	}
	if hi.set && (n > hi.value || (n == hi.value && !r.IncHi)) {
		return false
	}
	return true
}
