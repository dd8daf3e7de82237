package executor

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/facet"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/facet/pivot"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/proto"
)

type fieldFacet struct {
	spec  facet.FieldSpec
	table *facet.Table
}

type bucketFacet struct {
	key    string
	merger *facet.BucketMerger
}

type pivotFacet struct {
	engine *pivot.Engine
	levels []proto.PivotLevelParams
}

// refineTarget routes a pivot refinement answer back to its sibling group.
type refineTarget struct {
	pivot int
	group pivot.GroupID
	shard int
}

// RequestContext is the merge state of one facet request. It is created per
// request, owned by the goroutine running the orchestrator loop and dropped
// when the request ends.
type RequestContext struct {
	ID        string
	Request   *facet.Request
	NumShards int

	fields    []*fieldFacet
	queries   []*facet.QueryCounter
	ranges    []*bucketFacet
	dates     []*bucketFacet
	intervals []*bucketFacet
	pivots    []*pivotFacet

	// round-one request shared by every shard.
	base proto.ShardFacetRequest

	failed        []bool
	round         int
	fieldsRefined bool
	nextRefineID  int64
	targets       map[int64]refineTarget
	refined       map[facet.Kind]int
}

// NewRequestContext validates req against s and prepares a table, merger or
// engine per facet. Every configuration error surfaces here, before any shard
// is contacted.
func NewRequestContext(id string, req *facet.Request, numShards int, s *schema.Schema) (*RequestContext, error) {
	if numShards <= 0 {
		return nil, apperrors.Configurationf("no shards to query")
	}
	rc := &RequestContext{
		ID:        id,
		Request:   req,
		NumShards: numShards,
		failed:    make([]bool, numShards),
		refined:   make(map[facet.Kind]int),
		base: proto.ShardFacetRequest{
			RequestID: id,
			Round:     1,
			Query:     req.Query,
			Filters:   req.Filters,
		},
	}
	// range and date facets share one list on the wire
	type wireKey struct {
		kind facet.Kind
		key  string
	}
	keys := make(map[wireKey]bool)
	for _, spec := range req.Facets {
		k := wireKey{spec.Kind(), spec.Key()}
		if k.kind == facet.KindDate {
			k.kind = facet.KindRange
		}
		if keys[k] {
			return nil, apperrors.Configurationf("%s facet key %q used twice", spec.Kind(), spec.Key())
		}
		keys[k] = true
		if err := rc.add(spec, s); err != nil {
			return nil, err
		}
	}
	return rc, nil
}

func (rc *RequestContext) add(spec facet.Spec, s *schema.Schema) error {
	switch sp := spec.(type) {
	case facet.FieldSpec:
		if err := s.Facetable(sp.Field); err != nil {
			return err
		}
		plan := facet.PlanField(sp, rc.NumShards)
		rc.fields = append(rc.fields, &fieldFacet{
			spec:  sp,
			table: facet.NewTable(sp, plan, rc.NumShards, s.Normalizer(sp.Field)),
		})
		rc.base.Fields = append(rc.base.Fields, proto.FieldFacetParams{
			Key:      sp.Key(),
			Field:    sp.Field,
			Limit:    int32(plan.InitialLimit),
			MinCount: int32(plan.InitialMinCount),
			Sort:     sp.Sort.String(),
			Missing:  sp.Missing,
			Prefix:   sp.Prefix,
		})

	case facet.QuerySpec:
		rc.queries = append(rc.queries, facet.NewQueryCounter(sp))
		rc.base.Queries = append(rc.base.Queries, proto.QueryFacetParams{Key: sp.Key(), Query: sp.Query})

	case facet.RangeSpec:
		if err := s.Facetable(sp.Field); err != nil {
			return err
		}
		if f, _ := s.Lookup(sp.Field); !f.Numeric() || (f.Type == schema.TypeDate) != sp.Date {
			return apperrors.Configurationf("%s facet on field %q of type %s", sp.Kind(), sp.Field, f.Type)
		}
		if _, err := sp.Bounds(); err != nil {
			return err
		}
		bf := &bucketFacet{key: sp.Key(), merger: facet.NewBucketMerger(sp.Key(), sp.MinCount)}
		if sp.Date {
			rc.dates = append(rc.dates, bf)
		} else {
			rc.ranges = append(rc.ranges, bf)
		}
		rc.base.Ranges = append(rc.base.Ranges, proto.RangeFacetParams{
			Key:     sp.Key(),
			Field:   sp.Field,
			Start:   sp.Start,
			End:     sp.End,
			Gap:     sp.Gap,
			HardEnd: sp.HardEnd,
			Date:    sp.Date,
		})

	case facet.IntervalSpec:
		if err := s.Facetable(sp.Field); err != nil {
			return err
		}
		if len(sp.Intervals) == 0 {
			return apperrors.Configurationf("interval facet %q has no intervals", sp.Key())
		}
		params := proto.IntervalFacetParams{Key: sp.Key(), Field: sp.Field}
		for _, iv := range sp.Intervals {
			params.Intervals = append(params.Intervals, proto.IntervalParams{
				Key:            iv.Key,
				Start:          iv.Start,
				End:            iv.End,
				StartInclusive: iv.StartInclusive,
				EndInclusive:   iv.EndInclusive,
			})
		}
		rc.intervals = append(rc.intervals, &bucketFacet{key: sp.Key(), merger: facet.NewBucketMerger(sp.Key(), 0)})
		rc.base.Intervals = append(rc.base.Intervals, params)

	case facet.PivotSpec:
		normalize := make([]facet.Normalizer, len(sp.Levels))
		for i, level := range sp.Levels {
			if err := s.Facetable(level.Field); err != nil {
				return fmt.Errorf("pivot %q: %w", sp.Key(), err)
			}
			normalize[i] = s.Normalizer(level.Field)
		}
		engine, err := pivot.New(sp, rc.NumShards, normalize)
		if err != nil {
			return err
		}
		plans := engine.Plans()
		levels := make([]proto.PivotLevelParams, len(sp.Levels))
		for i, level := range sp.Levels {
			levels[i] = proto.PivotLevelParams{
				Field:    level.Field,
				Limit:    int32(plans[i].InitialLimit),
				MinCount: int32(plans[i].InitialMinCount),
				Sort:     level.Sort.String(),
				Missing:  level.Missing,
				Prefix:   level.Prefix,
			}
		}
		rc.pivots = append(rc.pivots, &pivotFacet{engine: engine, levels: levels})
		rc.base.Pivots = append(rc.base.Pivots, proto.PivotFacetParams{Key: sp.Key(), Levels: levels})

	default:
		return apperrors.Configurationf("unsupported facet kind %s", spec.Kind())
	}
	return nil
}

// Empty reports whether the request asks for no facets at all.
func (rc *RequestContext) Empty() bool {
	return rc.base.Empty()
}

// Round is the number of rounds dispatched so far.
func (rc *RequestContext) Round() int { return rc.round }

// FailedShards lists the shards skipped under tolerant mode.
func (rc *RequestContext) FailedShards() []int {
	var out []int
	for s, failed := range rc.failed {
		if failed {
			out = append(out, s)
		}
	}
	return out
}

func (rc *RequestContext) live() int {
	n := 0
	for _, failed := range rc.failed {
		if !failed {
			n++
		}
	}
	return n
}

// dropShard excludes shard from every later round. Counts it already
// contributed stay merged.
func (rc *RequestContext) dropShard(shard int) {
	rc.failed[shard] = true
	for _, f := range rc.fields {
		f.table.DropShard(shard)
	}
	for _, p := range rc.pivots {
		p.engine.DropShard(shard)
	}
	for id, t := range rc.targets {
		if t.shard == shard {
			delete(rc.targets, id)
		}
	}
}

// firstRound returns the round-one request for every live shard.
func (rc *RequestContext) firstRound() map[int]*proto.ShardFacetRequest {
	rc.round = 1
	out := make(map[int]*proto.ShardFacetRequest, rc.NumShards)
	for s := range rc.NumShards {
		req := rc.base
		req.ShardID = int32(s)
		out[s] = &req
	}
	return out
}

// mergeFirst merges a shard's round-one response. Every facet sent must be
// answered exactly once.
func (rc *RequestContext) mergeFirst(shard int, resp *proto.ShardFacetResponse) error {
	fields, err := indexByKey(shard, "field", resp.Fields, func(r proto.FieldFacetResult) string { return r.Key })
	if err != nil {
		return err
	}
	for _, f := range rc.fields {
		res, ok := fields[f.spec.Key()]
		if !ok {
			return missingFacet(shard, "field", f.spec.Key())
		}
		if err := f.table.Add(shard, termCounts(res.Buckets), f.table.Plan().InitialLimit); err != nil {
			return err
		}
	}
	if len(fields) != len(rc.fields) {
		return apperrors.ProtocolMismatchf("shard %d answered %d field facets, %d were requested", shard, len(fields), len(rc.fields))
	}

	queries, err := indexByKey(shard, "query", resp.Queries, func(r proto.QueryFacetResult) string { return r.Key })
	if err != nil {
		return err
	}
	if len(queries) != len(rc.queries) {
		return apperrors.ProtocolMismatchf("shard %d answered %d query facets, %d were requested", shard, len(queries), len(rc.queries))
	}
	for _, q := range rc.queries {
		res, ok := queries[q.Spec.Key()]
		if !ok {
			return missingFacet(shard, "query", q.Spec.Key())
		}
		if err := q.Add(res.Count); err != nil {
			return fmt.Errorf("query facet %q: %w", q.Spec.Key(), err)
		}
	}

	ranges, err := indexByKey(shard, "range", resp.Ranges, func(r proto.RangeFacetResult) string { return r.Key })
	if err != nil {
		return err
	}
	if len(ranges) != len(rc.ranges)+len(rc.dates) {
		return apperrors.ProtocolMismatchf("shard %d answered %d range facets, %d were requested",
			shard, len(ranges), len(rc.ranges)+len(rc.dates))
	}
	for _, group := range [][]*bucketFacet{rc.ranges, rc.dates} {
		if err := mergeBuckets(shard, "range", group, ranges); err != nil {
			return err
		}
	}

	intervals, err := indexByKey(shard, "interval", resp.Intervals, func(r proto.RangeFacetResult) string { return r.Key })
	if err != nil {
		return err
	}
	if len(intervals) != len(rc.intervals) {
		return apperrors.ProtocolMismatchf("shard %d answered %d interval facets, %d were requested",
			shard, len(intervals), len(rc.intervals))
	}
	if err := mergeBuckets(shard, "interval", rc.intervals, intervals); err != nil {
		return err
	}

	pivots, err := indexByKey(shard, "pivot", resp.Pivots, func(r proto.PivotFacetResult) string { return r.Key })
	if err != nil {
		return err
	}
	if len(pivots) != len(rc.pivots) {
		return apperrors.ProtocolMismatchf("shard %d answered %d pivot facets, %d were requested", shard, len(pivots), len(rc.pivots))
	}
	for _, p := range rc.pivots {
		key := p.engine.Spec().Key()
		res, ok := pivots[key]
		if !ok {
			return missingFacet(shard, "pivot", key)
		}
		if err := p.engine.AddShard(shard, pivotResults(res.Nodes)); err != nil {
			return err
		}
	}
	return nil
}

func mergeBuckets(shard int, kind string, facets []*bucketFacet, results map[string]proto.RangeFacetResult) error {
	for _, bf := range facets {
		res, ok := results[bf.key]
		if !ok {
			return missingFacet(shard, kind, bf.key)
		}
		buckets := make([]facet.RangeBucket, len(res.Buckets))
		for i, b := range res.Buckets {
			buckets[i] = facet.RangeBucket{Key: b.Key, Count: b.Count}
		}
		if err := bf.merger.Add(shard, buckets); err != nil {
			return err
		}
	}
	return nil
}

// nextRound queues the refinement requests of the following round. A nil
// result means every facet has converged. Field facets refine once; pivots
// keep queueing until their trees settle.
func (rc *RequestContext) nextRound() (map[int]*proto.ShardFacetRequest, error) {
	out := make(map[int]*proto.ShardFacetRequest)
	shardReq := func(shard int) *proto.ShardFacetRequest {
		req, ok := out[shard]
		if !ok {
			req = &proto.ShardFacetRequest{
				RequestID: rc.ID,
				ShardID:   int32(shard),
				Round:     int32(rc.round + 1),
				Query:     rc.Request.Query,
				Filters:   rc.Request.Filters,
			}
			out[shard] = req
		}
		return req
	}

	if !rc.fieldsRefined {
		rc.fieldsRefined = true
		for _, f := range rc.fields {
			perShard, err := f.table.SelectRefinements()
			if err != nil {
				return nil, err
			}
			for shard, values := range perShard {
				if len(values) == 0 {
					continue
				}
				if rc.failed[shard] {
					f.table.DropShard(shard)
					continue
				}
				req := shardReq(shard)
				req.Fields = append(req.Fields, proto.FieldFacetParams{
					Key:    f.spec.Key(),
					Field:  f.spec.Field,
					Sort:   f.spec.Sort.String(),
					Refine: true,
					Terms:  values,
				})
				rc.refined[facet.KindField] += len(values)
			}
		}
	}

	rc.targets = make(map[int64]refineTarget)
	for i, p := range rc.pivots {
		queued, err := p.engine.QueueRefinements()
		if err != nil {
			return nil, err
		}
		for _, q := range queued {
			rc.nextRefineID++
			id := rc.nextRefineID
			rc.targets[id] = refineTarget{pivot: i, group: q.Group, shard: q.Shard}
			paths := make([]string, len(q.Paths))
			for j, path := range q.Paths {
				paths[j] = path.Encode()
			}
			req := shardReq(q.Shard)
			req.PivotRefinements = append(req.PivotRefinements, proto.PivotRefinement{
				RefineID: id,
				Key:      p.engine.Spec().Key(),
				Levels:   p.levels,
				Paths:    paths,
			})
			rc.refined[facet.KindPivot] += len(paths)
		}
	}

	if len(out) == 0 {
		return nil, nil
	}
	rc.round++
	return out, nil
}

// mergeRefinement merges a shard's answer to the refinement request req.
func (rc *RequestContext) mergeRefinement(shard int, req *proto.ShardFacetRequest, resp *proto.ShardFacetResponse) error {
	fields, err := indexByKey(shard, "field", resp.Fields, func(r proto.FieldFacetResult) string { return r.Key })
	if err != nil {
		return err
	}
	if len(fields) != len(req.Fields) {
		return apperrors.ProtocolMismatchf("shard %d refined %d field facets, %d were requested", shard, len(fields), len(req.Fields))
	}
	for _, f := range rc.fields {
		if f.table.PendingFor(shard) == 0 {
			continue
		}
		res, ok := fields[f.spec.Key()]
		if !ok {
			return missingFacet(shard, "field", f.spec.Key())
		}
		if err := f.table.MergeRefinement(shard, termCounts(res.Buckets)); err != nil {
			return err
		}
	}

	seen := make(map[int64]bool, len(resp.PivotRefinements))
	for _, res := range resp.PivotRefinements {
		target, ok := rc.targets[res.RefineID]
		if !ok || target.shard != shard || seen[res.RefineID] {
			return apperrors.ProtocolMismatchf("shard %d answered unknown pivot refinement %d", shard, res.RefineID)
		}
		seen[res.RefineID] = true
		results := make([]pivot.PathResult, len(res.Results))
		for i, r := range res.Results {
			path, err := pivot.DecodeValuePath(r.Path)
			if err != nil {
				return apperrors.ProtocolMismatchf("shard %d returned malformed value path %q: %v", shard, r.Path, err)
			}
			results[i] = pivot.PathResult{Path: path, Count: r.Count, Children: pivotResults(r.Pivot)}
		}
		if err := rc.pivots[target.pivot].engine.MergeRefinement(target.group, shard, results); err != nil {
			return err
		}
	}
	for _, pr := range req.PivotRefinements {
		if !seen[pr.RefineID] {
			return apperrors.ProtocolMismatchf("shard %d omitted pivot refinement %d", shard, pr.RefineID)
		}
		delete(rc.targets, pr.RefineID)
	}
	return nil
}

func indexByKey[T any](shard int, kind string, results []T, key func(T) string) (map[string]T, error) {
	out := make(map[string]T, len(results))
	for _, r := range results {
		k := key(r)
		if _, dup := out[k]; dup {
			return nil, apperrors.ProtocolMismatchf("shard %d answered %s facet %q twice", shard, kind, k)
		}
		out[k] = r
	}
	return out, nil
}

func missingFacet(shard int, kind, key string) error {
	return apperrors.ProtocolMismatchf("shard %d did not answer %s facet %q", shard, kind, key)
}

func termCounts(buckets []proto.FacetBucket) []facet.TermCount {
	out := make([]facet.TermCount, len(buckets))
	for i, b := range buckets {
		if b.Value == nil {
			out[i] = facet.TermCount{Missing: true, Count: b.Count}
			continue
		}
		out[i] = facet.TermCount{Value: *b.Value, Count: b.Count}
	}
	return out
}

func pivotResults(nodes []proto.PivotNode) []pivot.Result {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]pivot.Result, len(nodes))
	for i, n := range nodes {
		out[i] = pivot.Result{Count: n.Count, Children: pivotResults(n.Pivot)}
		if n.Value == nil {
			out[i].Missing = true
		} else {
			out[i].Value = *n.Value
		}
	}
	return out
}
