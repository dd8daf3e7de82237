// Package handler serves the coordinator's HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/facet"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/metrics"
)

// FacetExecutor runs a parsed request; *executor.Orchestrator implements it.
type FacetExecutor interface {
	Execute(ctx context.Context, req *facet.Request) (*executor.Result, error)
}

// Tracker receives analytics events; *analytics.Collector implements it.
type Tracker interface {
	Track(key string, event any)
}

// Response is the body of a successful facet request.
type Response struct {
	RequestID    string               `json:"request_id"`
	FacetCounts  executor.FacetCounts `json:"facet_counts"`
	Partial      bool                 `json:"partial"`
	FailedShards []int                `json:"failed_shards,omitempty"`
	Rounds       int                  `json:"rounds"`
	CacheHit     bool                 `json:"cache_hit"`
}

type Handler struct {
	executor FacetExecutor
	parser   *parser.Parser
	cache    *cache.ResponseCache
	tracker  Tracker
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New wires the API. cache, tracker and m may be nil.
func New(exec FacetExecutor, p *parser.Parser, responseCache *cache.ResponseCache, tracker Tracker, m *metrics.Metrics) *Handler {
	return &Handler{
		executor: exec,
		parser:   p,
		cache:    responseCache,
		tracker:  tracker,
		metrics:  m,
		logger:   slog.Default().With("component", "facet-handler"),
	}
}

// Facets serves GET /api/v1/facets.
func (h *Handler) Facets(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)
	params := r.URL.Query()

	req, err := h.parser.Parse(params)
	if err != nil {
		log.Info("rejected facet request", "error", err)
		h.writeError(w, err)
		return
	}

	compute := func(ctx context.Context) (*executor.Result, error) {
		return h.executor.Execute(ctx, req)
	}
	var (
		result      *executor.Result
		cacheHit    bool
		cacheStatus = "bypass"
	)
	if h.cache != nil && len(req.Facets) > 0 {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, params, compute)
		cacheStatus = "miss"
		if cacheHit {
			cacheStatus = "hit"
		}
	} else {
		result, err = compute(ctx)
	}
	latency := time.Since(start)
	if h.metrics != nil {
		h.metrics.FacetLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
	}

	id := logger.RequestID(ctx)
	h.track(id, req, result, err, cacheHit, latency)
	if err != nil {
		log.Error("facet request failed", "error", err, "latency_ms", latency.Milliseconds())
		h.writeError(w, err)
		return
	}
	if id == "" {
		id = result.RequestID
	}

	log.Info("facet request served",
		"facets", len(req.Facets),
		"rounds", result.Rounds,
		"partial", result.Partial(),
		"cache", cacheStatus,
		"latency_ms", latency.Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, Response{
		RequestID:    id,
		FacetCounts:  result.Counts,
		Partial:      result.Partial(),
		FailedShards: result.FailedShards,
		Rounds:       result.Rounds,
		CacheHit:     cacheHit,
	})
}

func (h *Handler) track(id string, req *facet.Request, result *executor.Result, err error, cacheHit bool, latency time.Duration) {
	if h.tracker == nil {
		return
	}
	event := analytics.FacetEvent{
		Type:      analytics.EventFacet,
		RequestID: id,
		Query:     req.Query,
		Filters:   len(req.Filters),
		Facets:    make([]analytics.FacetRef, len(req.Facets)),
		Status:    "ok",
		CacheHit:  cacheHit,
		LatencyMs: latency.Milliseconds(),
		Timestamp: time.Now().UTC(),
	}
	for i, spec := range req.Facets {
		event.Facets[i] = analytics.FacetRef{Key: spec.Key(), Kind: spec.Kind().String()}
	}
	switch {
	case err != nil:
		event.Status = "error"
	case result.Partial():
		event.Status = "partial"
	}
	if result != nil {
		event.Rounds = result.Rounds
		event.FailedShards = result.FailedShards
	}
	h.tracker.Track(id, event)
}

// CacheStats serves GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

// CacheInvalidate serves POST /api/v1/cache/invalidate.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "caching is disabled"})
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cache invalidation failed"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "deleted": deleted})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps err onto a status code. Internal failures are not echoed
// to the client.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusServiceUnavailable
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "facet request failed"
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
