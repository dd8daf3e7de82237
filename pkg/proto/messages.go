// Package proto defines the message types exchanged between the coordinator,
// the shard nodes and the ingestion pipeline.
//
// The types are hand-written with JSON struct tags and travel over the
// platform's JSON-over-TCP RPC layer (see pkg/grpc) and over Kafka. Bucket
// lists are slices, never maps, because their order is significant.
package proto

// ---------- Common ----------

// Document is a unit of ingestion. A nil ShardID lets the indexer route by
// id; Deleted removes the document instead of indexing it.
type Document struct {
	ID        string              `json:"id"`
	ShardID   *int32              `json:"shard_id,omitempty"`
	Fields    map[string][]string `json:"fields"`
	CreatedAt int64               `json:"created_at"`
	Deleted   bool                `json:"deleted,omitempty"`
}

// IndexRequest carries documents for direct indexing over RPC.
type IndexRequest struct {
	Documents []Document `json:"documents"`
}

// IndexResponse reports how many documents each call applied.
type IndexResponse struct {
	Indexed int `json:"indexed"`
	Deleted int `json:"deleted"`
	Skipped int `json:"skipped"`
}

// HealthCheckResponse mirrors the gRPC health check spec.
type HealthCheckResponse struct {
	Status string `json:"status"` // SERVING, NOT_SERVING, UNKNOWN
}

// StatsRequest optionally filters by shard (-1 = all).
type StatsRequest struct {
	ShardID int32 `json:"shard_id"`
}

// StatsResponse contains per-shard document statistics.
type StatsResponse struct {
	TotalDocs int64       `json:"total_docs"`
	Shards    []ShardStat `json:"shards,omitempty"`
}

// ShardStat holds per-shard statistics.
type ShardStat struct {
	ShardID  int32 `json:"shard_id"`
	DocCount int64 `json:"doc_count"`
	Fields   int32 `json:"fields"`
}

// ---------- Facet request ----------

// ShardFacetRequest is one round of facet work for one shard.
type ShardFacetRequest struct {
	RequestID        string                `json:"request_id"`
	ShardID          int32                 `json:"shard_id"`
	Round            int32                 `json:"round"`
	Query            string                `json:"query"`
	Filters          []string              `json:"filters,omitempty"`
	Fields           []FieldFacetParams    `json:"fields,omitempty"`
	Queries          []QueryFacetParams    `json:"queries,omitempty"`
	Ranges           []RangeFacetParams    `json:"ranges,omitempty"`
	Intervals        []IntervalFacetParams `json:"intervals,omitempty"`
	Pivots           []PivotFacetParams    `json:"pivots,omitempty"`
	PivotRefinements []PivotRefinement     `json:"pivot_refinements,omitempty"`
}

// Empty reports whether the request carries no facet work.
func (r *ShardFacetRequest) Empty() bool {
	return len(r.Fields) == 0 && len(r.Queries) == 0 && len(r.Ranges) == 0 &&
		len(r.Intervals) == 0 && len(r.Pivots) == 0 && len(r.PivotRefinements) == 0
}

// FieldFacetParams asks for the top values of a field. When Refine is set the
// shard counts exactly Terms instead and ignores limit and mincount.
type FieldFacetParams struct {
	Key      string   `json:"key"`
	Field    string   `json:"field"`
	Limit    int32    `json:"limit"`
	MinCount int32    `json:"mincount"`
	Sort     string   `json:"sort"`
	Missing  bool     `json:"missing,omitempty"`
	Prefix   string   `json:"prefix,omitempty"`
	Refine   bool     `json:"refine,omitempty"`
	Terms    []string `json:"terms,omitempty"`
}

// QueryFacetParams counts the documents matching Query.
type QueryFacetParams struct {
	Key   string `json:"key"`
	Query string `json:"query"`
}

// RangeFacetParams buckets a numeric or date field. Shards always return
// every bucket; mincount is applied by the coordinator.
type RangeFacetParams struct {
	Key     string `json:"key"`
	Field   string `json:"field"`
	Start   string `json:"start"`
	End     string `json:"end"`
	Gap     string `json:"gap"`
	HardEnd bool   `json:"hard_end,omitempty"`
	Date    bool   `json:"date,omitempty"`
}

// IntervalFacetParams counts documents inside fixed intervals.
type IntervalFacetParams struct {
	Key       string           `json:"key"`
	Field     string           `json:"field"`
	Intervals []IntervalParams `json:"intervals"`
}

// IntervalParams is one interval; an empty bound is open.
type IntervalParams struct {
	Key            string `json:"key"`
	Start          string `json:"start,omitempty"`
	End            string `json:"end,omitempty"`
	StartInclusive bool   `json:"start_inclusive,omitempty"`
	EndInclusive   bool   `json:"end_inclusive,omitempty"`
}

// PivotFacetParams requests a pivot tree.
type PivotFacetParams struct {
	Key    string             `json:"key"`
	Levels []PivotLevelParams `json:"levels"`
}

// PivotLevelParams are the per-field parameters of one pivot level.
type PivotLevelParams struct {
	Field    string `json:"field"`
	Limit    int32  `json:"limit"`
	MinCount int32  `json:"mincount"`
	Sort     string `json:"sort"`
	Missing  bool   `json:"missing,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
}

// PivotRefinement asks for the exact count and subtree of each encoded value
// path. RefineID routes the answer back to the originating pivot node.
type PivotRefinement struct {
	RefineID int64              `json:"refine_id"`
	Key      string             `json:"key"`
	Levels   []PivotLevelParams `json:"levels"`
	Paths    []string           `json:"paths"`
}

// ---------- Facet response ----------

// ShardFacetResponse answers a ShardFacetRequest.
type ShardFacetResponse struct {
	ShardID          int32                   `json:"shard_id"`
	Fields           []FieldFacetResult      `json:"fields,omitempty"`
	Queries          []QueryFacetResult      `json:"queries,omitempty"`
	Ranges           []RangeFacetResult      `json:"ranges,omitempty"`
	Intervals        []RangeFacetResult      `json:"intervals,omitempty"`
	Pivots           []PivotFacetResult      `json:"pivots,omitempty"`
	PivotRefinements []PivotRefinementResult `json:"pivot_refinements,omitempty"`
}

// FacetBucket is one value bucket. A nil Value is the missing bucket.
type FacetBucket struct {
	Value *string `json:"value"`
	Count uint64  `json:"count"`
}

// FieldFacetResult holds a field facet's buckets in shard order.
type FieldFacetResult struct {
	Key     string        `json:"key"`
	Buckets []FacetBucket `json:"buckets"`
}

// QueryFacetResult holds a query facet count.
type QueryFacetResult struct {
	Key   string `json:"key"`
	Count uint64 `json:"count"`
}

// RangeBucket is one keyed bucket of a range, date or interval facet.
type RangeBucket struct {
	Key   string `json:"key"`
	Count uint64 `json:"count"`
}

// RangeFacetResult holds fixed-boundary buckets in request order.
type RangeFacetResult struct {
	Key     string        `json:"key"`
	Buckets []RangeBucket `json:"buckets"`
}

// PivotNode is one node of a shard pivot tree. A nil Value is the missing
// bucket.
type PivotNode struct {
	Field string      `json:"field"`
	Value *string     `json:"value"`
	Count uint64      `json:"count"`
	Pivot []PivotNode `json:"pivot,omitempty"`
}

// PivotFacetResult holds the first-round forest of one pivot.
type PivotFacetResult struct {
	Key   string      `json:"key"`
	Nodes []PivotNode `json:"nodes"`
}

// PivotRefinementResult answers one PivotRefinement.
type PivotRefinementResult struct {
	RefineID int64             `json:"refine_id"`
	Results  []PivotPathResult `json:"results"`
}

// PivotPathResult is the count and subtree of one refined path.
type PivotPathResult struct {
	Path  string      `json:"path"`
	Count uint64      `json:"count"`
	Pivot []PivotNode `json:"pivot,omitempty"`
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }
