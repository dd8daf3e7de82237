// Package cache stores assembled facet responses in Redis keyed by the
// request parameters, and collapses concurrent identical requests into one
// distributed execution.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/redis"
)

const keyPrefix = "facets:"

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}

// ResponseCache caches complete facet results. Partial results are never
// stored.
type ResponseCache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a cache over store. m may be nil.
func New(store Store, ttl time.Duration, m *metrics.Metrics) *ResponseCache {
	return &ResponseCache{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "facet-cache"),
	}
}

// Key derives the cache key for params. url.Values.Encode sorts by name and
// keeps the order of repeated values, which is significant for facet order.
func Key(params url.Values) string {
	hash := sha256.Sum256([]byte(params.Encode()))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

// Get returns the cached result for key. Redis failures count as misses.
func (c *ResponseCache) Get(ctx context.Context, key string) (*executor.Result, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, pkgredis.ErrMiss) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var result executor.Result
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return &result, true
}

// Set stores result under key unless it is partial.
func (c *ResponseCache) Set(ctx context.Context, key string, result *executor.Result) {
	if result.Partial() {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for params or runs compute once for
// all concurrent callers asking for the same key. The boolean reports a
// cache hit. compute runs detached from the first caller's cancellation but
// keeps its deadline.
func (c *ResponseCache) GetOrCompute(
	ctx context.Context,
	params url.Values,
	compute func(ctx context.Context) (*executor.Result, error),
) (*executor.Result, bool, error) {
	key := Key(params)
	if result, ok := c.Get(ctx, key); ok {
		c.hit()
		return result, true, nil
	}
	ch := c.group.DoChan(key, func() (any, error) {
		shared := context.WithoutCancel(ctx)
		if deadline, ok := ctx.Deadline(); ok {
			var cancel context.CancelFunc
			shared, cancel = context.WithDeadline(shared, deadline)
			defer cancel()
		}
		if result, ok := c.Get(shared, key); ok {
			return result, nil
		}
		result, err := compute(shared)
		if err != nil {
			return nil, err
		}
		c.Set(shared, key, result)
		return result, nil
	})
	c.miss()
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(*executor.Result), false, nil
	}
}

// Invalidate drops every cached response.
func (c *ResponseCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.store.DeletePrefix(ctx, keyPrefix)
	if err != nil {
		return deleted, fmt.Errorf("invalidating facet cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

// Stats returns the hit and miss counts since start.
func (c *ResponseCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *ResponseCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *ResponseCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}
