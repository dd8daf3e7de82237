// Package facets computes one shard's facet counts for a ShardFacetRequest.
package facets

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/facet"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/facet/pivot"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/query"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/proto"
)

// Counter answers facet requests against a single shard store.
type Counter struct {
	store  *index.Store
	logger *slog.Logger
}

// New creates a Counter over store.
func New(store *index.Store) *Counter {
	return &Counter{
		store:  store,
		logger: slog.Default().With("component", "shard-facets"),
	}
}

// Count runs every facet of req over the documents matching its query and
// filters.
func (c *Counter) Count(ctx context.Context, req *proto.ShardFacetRequest) (*proto.ShardFacetResponse, error) {
	plans := make([]*query.QueryPlan, 0, len(req.Filters)+1)
	for _, q := range append([]string{req.Query}, req.Filters...) {
		plan, err := query.Parse(q)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}

	start := time.Now()
	resp := &proto.ShardFacetResponse{ShardID: req.ShardID}
	err := c.store.Read(func(v *index.View) error {
		base, err := v.MatchAll(plans...)
		if err != nil {
			return err
		}
		r := &run{ctx: ctx, view: v, base: base}
		return r.all(req, resp)
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("shard facets computed",
		"request_id", req.RequestID,
		"shard_id", req.ShardID,
		"round", req.Round,
		"fields", len(req.Fields),
		"pivot_refinements", len(req.PivotRefinements),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

type run struct {
	ctx  context.Context
	view *index.View
	base *roaring.Bitmap
}

func (r *run) all(req *proto.ShardFacetRequest, resp *proto.ShardFacetResponse) error {
	for _, p := range req.Fields {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		var buckets []proto.FacetBucket
		if p.Refine {
			buckets = r.refineTerms(p.Field, p.Terms)
		} else {
			buckets = r.fieldBuckets(r.base, levelOf(p))
		}
		resp.Fields = append(resp.Fields, proto.FieldFacetResult{Key: p.Key, Buckets: buckets})
	}
	for _, p := range req.Queries {
		plan, err := query.Parse(p.Query)
		if err != nil {
			return err
		}
		docs, err := r.view.Match(plan)
		if err != nil {
			return err
		}
		resp.Queries = append(resp.Queries, proto.QueryFacetResult{Key: p.Key, Count: r.base.AndCardinality(docs)})
	}
	for _, p := range req.Ranges {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		buckets, err := r.rangeBuckets(p)
		if err != nil {
			return err
		}
		resp.Ranges = append(resp.Ranges, proto.RangeFacetResult{Key: p.Key, Buckets: buckets})
	}
	for _, p := range req.Intervals {
		buckets, err := r.intervalBuckets(p)
		if err != nil {
			return err
		}
		resp.Intervals = append(resp.Intervals, proto.RangeFacetResult{Key: p.Key, Buckets: buckets})
	}
	for _, p := range req.Pivots {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		if len(p.Levels) == 0 {
			return apperrors.Configurationf("pivot %q has no fields", p.Key)
		}
		resp.Pivots = append(resp.Pivots, proto.PivotFacetResult{Key: p.Key, Nodes: r.pivotNodes(r.base, p.Levels)})
	}
	for _, p := range req.PivotRefinements {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		res, err := r.refinePaths(p)
		if err != nil {
			return err
		}
		resp.PivotRefinements = append(resp.PivotRefinements, res)
	}
	return nil
}

func levelOf(p proto.FieldFacetParams) proto.PivotLevelParams {
	return proto.PivotLevelParams{
		Field:    p.Field,
		Limit:    p.Limit,
		MinCount: p.MinCount,
		Sort:     p.Sort,
		Missing:  p.Missing,
		Prefix:   p.Prefix,
	}
}

type counted struct {
	term  *index.Term
	count uint64
}

// fieldBuckets ranks the values of one field over docs. Ties keep dictionary
// order, the same order index sort uses.
func (r *run) fieldBuckets(docs *roaring.Bitmap, l proto.PivotLevelParams) []proto.FacetBucket {
	minCount := uint64(0)
	if l.MinCount > 0 {
		minCount = uint64(l.MinCount)
	}
	var found []counted
	for _, t := range r.view.Terms(l.Field) {
		if l.Prefix != "" && !strings.HasPrefix(t.Value, l.Prefix) {
			continue
		}
		n := docs.AndCardinality(t.Docs)
		if n < minCount {
			continue
		}
		found = append(found, counted{term: t, count: n})
	}
	if sortOrder, err := facet.ParseSort(l.Sort); err == nil && sortOrder == facet.SortCount {
		sort.SliceStable(found, func(i, j int) bool { return found[i].count > found[j].count })
	}
	if l.Limit >= 0 && int(l.Limit) < len(found) {
		found = found[:l.Limit]
	}
	buckets := make([]proto.FacetBucket, 0, len(found)+1)
	for _, f := range found {
		buckets = append(buckets, proto.FacetBucket{Value: proto.StringPtr(f.term.Value), Count: f.count})
	}
	if l.Missing {
		buckets = append(buckets, proto.FacetBucket{Count: r.missing(docs, l.Field)})
	}
	return buckets
}

func (r *run) missing(docs *roaring.Bitmap, field string) uint64 {
	return docs.GetCardinality() - docs.AndCardinality(r.view.Present(field))
}

// refineTerms counts exactly the requested values, echoing them as given.
func (r *run) refineTerms(field string, terms []string) []proto.FacetBucket {
	buckets := make([]proto.FacetBucket, len(terms))
	for i, value := range terms {
		var n uint64
		if t, ok := r.view.Lookup(field, value); ok {
			n = r.base.AndCardinality(t.Docs)
		}
		buckets[i] = proto.FacetBucket{Value: proto.StringPtr(value), Count: n}
	}
	return buckets
}

func (r *run) rangeBuckets(p proto.RangeFacetParams) ([]proto.RangeBucket, error) {
	f := r.view.Field(p.Field)
	if !f.Numeric() || (f.Type == schema.TypeDate) != p.Date {
		return nil, apperrors.Configurationf("range facet %q cannot bucket %s field %q", p.Key, f.Type, p.Field)
	}
	bounds, err := facet.RangeSpec{
		Base:    facet.Base{FacetKey: p.Key},
		Field:   p.Field,
		Start:   p.Start,
		End:     p.End,
		Gap:     p.Gap,
		HardEnd: p.HardEnd,
		Date:    p.Date,
	}.Bounds()
	if err != nil {
		return nil, err
	}
	docs := make([]*roaring.Bitmap, len(bounds))
	for i := range docs {
		docs[i] = roaring.New()
	}
	for _, t := range r.view.Terms(p.Field) {
		n, err := f.Number(t.Value)
		if err != nil {
			continue
		}
		i := sort.Search(len(bounds), func(i int) bool { return bounds[i].Hi > n })
		if i < len(bounds) && n >= bounds[i].Lo {
			docs[i].Or(t.Docs)
		}
	}
	buckets := make([]proto.RangeBucket, len(bounds))
	for i, b := range bounds {
		buckets[i] = proto.RangeBucket{Key: b.Key, Count: r.base.AndCardinality(docs[i])}
	}
	return buckets, nil
}

func (r *run) intervalBuckets(p proto.IntervalFacetParams) ([]proto.RangeBucket, error) {
	buckets := make([]proto.RangeBucket, len(p.Intervals))
	for i, in := range p.Intervals {
		docs, err := r.view.RangeDocs(p.Field, query.Range{
			Lo:    in.Start,
			Hi:    in.End,
			IncLo: in.StartInclusive,
			IncHi: in.EndInclusive,
		})
		if err != nil {
			return nil, fmt.Errorf("interval %q of %q: %w", in.Key, p.Key, err)
		}
		buckets[i] = proto.RangeBucket{Key: in.Key, Count: r.base.AndCardinality(docs)}
	}
	return buckets, nil
}

// pivotNodes builds the pivot forest of levels over docs.
func (r *run) pivotNodes(docs *roaring.Bitmap, levels []proto.PivotLevelParams) []proto.PivotNode {
	l := levels[0]
	buckets := r.fieldBuckets(docs, l)
	nodes := make([]proto.PivotNode, len(buckets))
	for i, b := range buckets {
		nodes[i] = proto.PivotNode{Field: l.Field, Value: b.Value, Count: b.Count}
		if len(levels) == 1 || b.Count == 0 {
			continue
		}
		nodes[i].Pivot = r.pivotNodes(r.narrow(docs, l.Field, b.Value), levels[1:])
	}
	return nodes
}

// narrow restricts docs to one value of field; a nil value selects the
// documents without the field.
func (r *run) narrow(docs *roaring.Bitmap, field string, value *string) *roaring.Bitmap {
	if value == nil {
		return roaring.AndNot(docs, r.view.Present(field))
	}
	t, ok := r.view.Lookup(field, *value)
	if !ok {
		return roaring.New()
	}
	return roaring.And(docs, t.Docs)
}

func (r *run) refinePaths(p proto.PivotRefinement) (proto.PivotRefinementResult, error) {
	res := proto.PivotRefinementResult{RefineID: p.RefineID, Results: make([]proto.PivotPathResult, 0, len(p.Paths))}
	for _, encoded := range p.Paths {
		path, err := pivot.DecodeValuePath(encoded)
		if err != nil {
			return res, err
		}
		if len(path) == 0 || len(path) > len(p.Levels) {
			return res, fmt.Errorf("pivot %q path %q does not fit %d levels: %w", p.Key, encoded, len(p.Levels), apperrors.ErrInvalidInput)
		}
		docs := r.base
		for i, seg := range path {
			var value *string
			if !seg.Null {
				value = proto.StringPtr(seg.Value)
			}
			docs = r.narrow(docs, p.Levels[i].Field, value)
		}
		out := proto.PivotPathResult{Path: encoded, Count: docs.GetCardinality()}
		if len(path) < len(p.Levels) && out.Count > 0 {
			out.Pivot = r.pivotNodes(docs, p.Levels[len(path):])
		}
		res.Results = append(res.Results, out)
	}
	return res, nil
}
