// Package metrics defines the Prometheus collectors shared by the platform's
// services and the handler that exposes them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector. A service only touches the ones it needs.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	FacetRequestsTotal *prometheus.CounterVec
	FacetLatency       *prometheus.HistogramVec
	FacetRounds        prometheus.Histogram
	RefinementValues   *prometheus.CounterVec
	ShardFailures      *prometheus.CounterVec
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter

	ShardRequestsTotal *prometheus.CounterVec
	ShardLatency       *prometheus.HistogramVec
	DocsIndexedTotal   *prometheus.CounterVec
	ShardDocCount      *prometheus.GaugeVec

	AnalyticsEventsTotal *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg. A nil reg uses a
// fresh private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		FacetRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "facet_requests_total",
				Help: "Facet requests by outcome (ok, partial, error).",
			},
			[]string{"status"},
		),
		FacetLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "facet_request_latency_seconds",
				Help:    "Facet request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"cache_status"},
		),
		FacetRounds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "facet_request_rounds",
				Help:    "Shard rounds needed per facet request.",
				Buckets: []float64{1, 2, 3, 4, 6, 8, 16, 32},
			},
		),
		RefinementValues: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "facet_refinement_values_total",
				Help: "Values or value paths sent for refinement, by facet kind.",
			},
			[]string{"kind"},
		),
		ShardFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "facet_shard_failures_total",
				Help: "Failed shard calls by shard and whether the request tolerated them.",
			},
			[]string{"shard_id", "tolerated"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "facet_cache_hits_total",
				Help: "Facet responses served from cache.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "facet_cache_misses_total",
				Help: "Facet responses computed because the cache had no entry.",
			},
		),
		ShardRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shard_facet_requests_total",
				Help: "Facet requests served by a shard node, by shard and status.",
			},
			[]string{"shard_id", "status"},
		),
		ShardLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shard_facet_latency_seconds",
				Help:    "Time a shard node spends counting one facet request.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
			},
			[]string{"shard_id"},
		),
		DocsIndexedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Documents applied to a shard, by operation.",
			},
			[]string{"shard_id", "op"},
		),
		ShardDocCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shard_document_count",
				Help: "Number of live documents per shard.",
			},
			[]string{"shard_id"},
		),
		AnalyticsEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "facet_analytics_events_total",
				Help: "Facet analytics events by outcome (published, dropped, consumed).",
			},
			[]string{"status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.FacetRequestsTotal,
		m.FacetLatency,
		m.FacetRounds,
		m.RefinementValues,
		m.ShardFailures,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.ShardRequestsTotal,
		m.ShardLatency,
		m.DocsIndexedTotal,
		m.ShardDocCount,
		m.AnalyticsEventsTotal,
		m.CircuitBreakerState,
	)
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	} else {
		m.gatherer = prometheus.DefaultGatherer
	}
	return m
}

// Handler returns the scrape handler for the registry m was registered with.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
