// Package analytics records what the facet platform is asked to do. The
// coordinator publishes one FacetEvent per request and ingestion publishes a
// DocumentEvent per accepted write; the analytics service consumes both from
// Kafka and keeps rolling aggregates.
package analytics

import "time"

type EventType string

const (
	EventFacet    EventType = "facet"
	EventDocument EventType = "document"
)

// FacetRef names one facet of a request.
type FacetRef struct {
	Key  string `json:"key"`
	Kind string `json:"kind"`
}

// FacetEvent describes one coordinator request.
type FacetEvent struct {
	Type         EventType  `json:"type"`
	RequestID    string     `json:"request_id"`
	Query        string     `json:"query"`
	Filters      int        `json:"filters"`
	Facets       []FacetRef `json:"facets"`
	Status       string     `json:"status"`
	CacheHit     bool       `json:"cache_hit"`
	Rounds       int        `json:"rounds"`
	FailedShards []int      `json:"failed_shards,omitempty"`
	LatencyMs    int64      `json:"latency_ms"`
	Timestamp    time.Time  `json:"timestamp"`
}

// DocumentEvent describes one accepted document write.
type DocumentEvent struct {
	Type       EventType `json:"type"`
	DocumentID string    `json:"document_id"`
	ShardID    int       `json:"shard_id"`
	Deleted    bool      `json:"deleted"`
	Fields     int       `json:"fields"`
	Timestamp  time.Time `json:"timestamp"`
}
