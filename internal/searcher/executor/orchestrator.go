// Package executor runs distributed facet requests: it fans each round out
// to every shard, merges the partial counts, queues refinements until every
// facet has converged and assembles the final response.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/facet"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/searcher/transport"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/tracing"
)

// Orchestrator drives facet requests over a shard transport. It holds no
// per-request state and is safe for concurrent use.
type Orchestrator struct {
	transport transport.ShardTransport
	schema    *schema.Schema
	cfg       config.CoordinatorConfig
	metrics   *metrics.Metrics
	tracer    *tracing.Tracer
	logger    *slog.Logger
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics records request metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracer records a span per request and per round.
func WithTracer(t *tracing.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// New creates an orchestrator over t.
func New(t transport.ShardTransport, s *schema.Schema, cfg config.CoordinatorConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		transport: t,
		schema:    s,
		cfg:       cfg,
		logger:    slog.Default().With("component", "facet-orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NumShards is the number of shards every request fans out to.
func (o *Orchestrator) NumShards() int { return o.transport.NumShards() }

// Execute aggregates req across all shards.
func (o *Orchestrator) Execute(ctx context.Context, req *facet.Request) (*Result, error) {
	start := time.Now()
	id := logger.RequestID(ctx)
	if id == "" {
		id = uuid.NewString()
	}

	res, rc, err := o.execute(ctx, id, req)
	status := "ok"
	switch {
	case err != nil:
		status = "error"
	case res.Partial():
		status = "partial"
	}
	if o.metrics != nil {
		o.metrics.FacetRequestsTotal.WithLabelValues(status).Inc()
		if rc != nil {
			o.metrics.FacetRounds.Observe(float64(rc.Round()))
			for kind, n := range rc.refined {
				o.metrics.RefinementValues.WithLabelValues(kind.String()).Add(float64(n))
			}
		}
	}

	attrs := []any{
		"request_id", id,
		"facets", len(req.Facets),
		"shards", o.transport.NumShards(),
		"status", status,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if rc != nil {
		attrs = append(attrs,
			"rounds", rc.Round(),
			"refined_terms", rc.refined[facet.KindField],
			"refined_paths", rc.refined[facet.KindPivot],
			"failed_shards", rc.FailedShards(),
		)
	}
	if err != nil {
		o.logger.Warn("facet request failed", append(attrs, "error", err)...)
		return nil, err
	}
	o.logger.Info("facet request completed", attrs...)
	return res, nil
}

func (o *Orchestrator) execute(ctx context.Context, id string, req *facet.Request) (*Result, *RequestContext, error) {
	rc, err := NewRequestContext(id, req, o.transport.NumShards(), o.schema)
	if err != nil {
		return nil, nil, err
	}
	if rc.Empty() {
		return &Result{RequestID: id, Counts: emptyCounts()}, rc, nil
	}

	if o.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RequestTimeout)
		defer cancel()
	}
	ctx, span := o.tracer.Start(ctx, "facet.request", id)
	defer o.tracer.Finish(span)
	span.SetAttr("facets", len(req.Facets))

	if err := o.round(ctx, rc, rc.firstRound(), rc.mergeFirst); err != nil {
		return nil, rc, err
	}
	if rc.live() == 0 {
		return nil, rc, fmt.Errorf("no shard answered: %w", apperrors.ErrShardUnavailable)
	}

	maxRounds := o.cfg.MaxRefinementRounds
	if maxRounds <= 0 {
		maxRounds = 32
	}
	for refinements := 0; ; refinements++ {
		reqs, err := rc.nextRound()
		if err != nil {
			return nil, rc, err
		}
		if reqs == nil {
			break
		}
		if refinements >= maxRounds {
			return nil, rc, fmt.Errorf("facet refinement did not converge after %d rounds: %w", maxRounds, apperrors.ErrInternal)
		}
		err = o.round(ctx, rc, reqs, func(shard int, resp *proto.ShardFacetResponse) error {
			return rc.mergeRefinement(shard, reqs[shard], resp)
		})
		if err != nil {
			return nil, rc, err
		}
	}

	span.SetAttr("rounds", rc.Round())
	return &Result{
		RequestID:    id,
		Counts:       rc.assemble(),
		Rounds:       rc.Round(),
		FailedShards: rc.FailedShards(),
	}, rc, nil
}

// round sends reqs concurrently and merges the responses once all of them
// are in, in shard order. A tolerated shard failure drops the shard from the
// request; any other failure cancels the round.
func (o *Orchestrator) round(ctx context.Context, rc *RequestContext, reqs map[int]*proto.ShardFacetRequest,
	merge func(shard int, resp *proto.ShardFacetResponse) error) error {

	ctx, span := tracing.StartChildSpan(ctx, "facet.round."+strconv.Itoa(rc.Round()))
	defer span.End()
	span.SetAttr("shards", len(reqs))

	shards := make([]int, 0, len(reqs))
	for s := range reqs {
		shards = append(shards, s)
	}
	sort.Ints(shards)

	var (
		mu        sync.Mutex
		responses = make(map[int]*proto.ShardFacetResponse, len(reqs))
		failures  = make(map[int]error)
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, shard := range shards {
		g.Go(func() error {
			resp, err := o.transport.Send(gctx, shard, reqs[shard])
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				responses[shard] = resp
				return nil
			}
			if rc.Request.Tolerant && errors.Is(err, apperrors.ErrShardUnavailable) && gctx.Err() == nil {
				failures[shard] = err
				return nil
			}
			o.observeFailure(shard, err, false)
			return err
		})
	}
	err := g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return fmt.Errorf("facet round %d: %w: %w", rc.Round(), apperrors.ErrTimeout, ctxErr)
		}
		return fmt.Errorf("facet round %d: %w", rc.Round(), ctxErr)
	}
	if err != nil {
		return err
	}

	for _, shard := range shards {
		if ferr, ok := failures[shard]; ok {
			o.observeFailure(shard, ferr, true)
			o.logger.Warn("skipping failed shard",
				"request_id", rc.ID,
				"shard_id", shard,
				"round", rc.Round(),
				"error", ferr,
			)
			rc.dropShard(shard)
			continue
		}
		if err := merge(shard, responses[shard]); err != nil {
			return err
		}
	}
	o.logger.Debug("facet round merged",
		"request_id", rc.ID,
		"round", rc.Round(),
		"shards", len(reqs),
		"failed", len(failures),
	)
	return nil
}

func (o *Orchestrator) observeFailure(shard int, err error, tolerated bool) {
	if o.metrics == nil || !errors.Is(err, apperrors.ErrShardUnavailable) {
		return
	}
	o.metrics.ShardFailures.WithLabelValues(strconv.Itoa(shard), strconv.FormatBool(tolerated)).Inc()
}
