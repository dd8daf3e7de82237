package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/metrics"
)

// maxLatencySamples bounds the window percentiles are computed over.
const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalRequests     int64      `json:"total_requests"`
	PartialRequests   int64      `json:"partial_requests"`
	FailedRequests    int64      `json:"failed_requests"`
	CacheHits         int64      `json:"cache_hits"`
	CacheMisses       int64      `json:"cache_misses"`
	RefinedRequests   int64      `json:"refined_requests"`
	AvgRounds         float64    `json:"avg_rounds"`
	AvgLatencyMs      float64    `json:"avg_latency_ms"`
	P50LatencyMs      int64      `json:"p50_latency_ms"`
	P95LatencyMs      int64      `json:"p95_latency_ms"`
	P99LatencyMs      int64      `json:"p99_latency_ms"`
	TopFacets         []KeyCount `json:"top_facets"`
	TopQueries        []KeyCount `json:"top_queries"`
	ShardFailures     []KeyCount `json:"shard_failures"`
	DocumentsIndexed  int64      `json:"documents_indexed"`
	DocumentsDeleted  int64      `json:"documents_deleted"`
	RequestsPerMinute float64    `json:"requests_per_minute"`
	Since             time.Time  `json:"since"`
}

type KeyCount struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Aggregator folds analytics events into rolling totals. It is safe for
// concurrent use.
type Aggregator struct {
	mu            sync.RWMutex
	stats         AggregatedStats
	totalRounds   int64
	latencies     []int64
	next          int
	facetCounts   map[string]int64
	queryCounts   map[string]int64
	shardFailures map[string]int64
	now           func() time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	a := &Aggregator{
		latencies:     make([]int64, 0, 1024),
		facetCounts:   make(map[string]int64),
		queryCounts:   make(map[string]int64),
		shardFailures: make(map[string]int64),
		now:           time.Now,
		logger:        slog.Default().With("component", "analytics-aggregator"),
	}
	a.stats.Since = a.now().UTC()
	return a
}

// Restore seeds the totals from a persisted snapshot so counters survive
// restarts. Latency samples are not persisted and start empty.
func (a *Aggregator) Restore(s AggregatedStats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats = s
	a.totalRounds = int64(s.AvgRounds * float64(s.TotalRequests-s.FailedRequests))
	a.facetCounts = fromKeyCounts(s.TopFacets)
	a.queryCounts = fromKeyCounts(s.TopQueries)
	a.shardFailures = fromKeyCounts(s.ShardFailures)
}

// HandleEvent decodes analytics messages for a kafka.Consumer. Unknown event
// types are skipped.
func HandleEvent(agg *Aggregator, m *metrics.Metrics) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		head, err := kafka.DecodeJSON[struct {
			Type EventType `json:"type"`
		}](value)
		if err != nil {
			return err
		}
		switch head.Type {
		case EventFacet:
			event, err := kafka.DecodeJSON[FacetEvent](value)
			if err != nil {
				return err
			}
			agg.RecordFacet(event)
		case EventDocument:
			event, err := kafka.DecodeJSON[DocumentEvent](value)
			if err != nil {
				return err
			}
			agg.RecordDocument(event)
		default:
			return fmt.Errorf("unknown analytics event type %q: %w", head.Type, kafka.ErrSkip)
		}
		if m != nil {
			m.AnalyticsEventsTotal.WithLabelValues("consumed").Inc()
		}
		return nil
	}
}

func (a *Aggregator) RecordFacet(event FacetEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.TotalRequests++
	switch event.Status {
	case "error":
		a.stats.FailedRequests++
	case "partial":
		a.stats.PartialRequests++
	}
	if event.CacheHit {
		a.stats.CacheHits++
	} else {
		a.stats.CacheMisses++
	}
	if event.Status != "error" {
		a.totalRounds += int64(event.Rounds)
		if event.Rounds > 1 {
			a.stats.RefinedRequests++
		}
	}
	for _, shard := range event.FailedShards {
		a.shardFailures[strconv.Itoa(shard)]++
	}
	for _, f := range event.Facets {
		a.facetCounts[f.Kind+":"+f.Key]++
	}
	if event.Query != "" {
		a.queryCounts[event.Query]++
	}

	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
}

func (a *Aggregator) RecordDocument(event DocumentEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if event.Deleted {
		a.stats.DocumentsDeleted++
	} else {
		a.stats.DocumentsIndexed++
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := a.stats
	if answered := stats.TotalRequests - stats.FailedRequests; answered > 0 {
		stats.AvgRounds = float64(a.totalRounds) / float64(answered)
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopFacets = topN(a.facetCounts, 10)
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.ShardFailures = topN(a.shardFailures, len(a.shardFailures))
	if elapsed := a.now().Sub(stats.Since).Minutes(); elapsed > 0 {
		stats.RequestsPerMinute = float64(stats.TotalRequests) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN returns the n largest counts, ties broken by key.
func topN(counts map[string]int64, n int) []KeyCount {
	result := make([]KeyCount, 0, len(counts))
	for key, count := range counts {
		result = append(result, KeyCount{Key: key, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Key < result[j].Key
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

func fromKeyCounts(in []KeyCount) map[string]int64 {
	out := make(map[string]int64, len(in))
	for _, kc := range in {
		out[kc.Key] = kc.Count
	}
	return out
}
