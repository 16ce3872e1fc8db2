// Package cache memoises digest results per query. The workflow is
// deterministic for fixed artifacts, so a response can be reused until the
// artifacts change and the cache is invalidated.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/chameleon-ai/chameleon/internal/workflow"
)

const keyPrefix = "digest:"

// HitObserver is told about every lookup. *metrics.Metrics satisfies it.
type HitObserver interface {
	ObserveCache(hit bool)
}

// Stats is reported by the cache stats endpoint.
type Stats struct {
	Backend string `json:"backend"`
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
	Entries int64  `json:"entries"`
}

type ResponseCache struct {
	store    Store
	ttl      time.Duration
	group    singleflight.Group
	observer HitObserver
	logger   *slog.Logger
	hits     atomic.Int64
	misses   atomic.Int64
}

// New wraps store. observer may be nil.
func New(store Store, ttl time.Duration, observer HitObserver) *ResponseCache {
	return &ResponseCache{
		store:    store,
		ttl:      ttl,
		observer: observer,
		logger:   slog.Default().With("component", "response-cache", "backend", store.Name()),
	}
}

// Get returns a cached result. Backend errors count as misses.
func (c *ResponseCache) Get(ctx context.Context, query string) (workflow.Result, bool) {
	key := buildKey(query)
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Error("cache get failed", "key", key, "error", err)
	}
	if err != nil || !ok {
		c.record(false)
		return workflow.Result{}, false
	}
	var res workflow.Result
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.record(false)
		return workflow.Result{}, false
	}
	c.record(true)
	return res, true
}

// Set stores res. Failures are logged, not returned.
func (c *ResponseCache) Set(ctx context.Context, query string, res workflow.Result) {
	key := buildKey(query)
	data, err := json.Marshal(res)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, string(data), c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for query, or runs compute once
// for all concurrent callers with the same query. Errors are never cached.
// The bool reports whether the result came from the cache.
func (c *ResponseCache) GetOrCompute(
	ctx context.Context,
	query string,
	compute func(ctx context.Context) (workflow.Result, error),
) (workflow.Result, bool, error) {
	if res, ok := c.Get(ctx, query); ok {
		return res, true, nil
	}
	val, err, _ := c.group.Do(buildKey(query), func() (any, error) {
		res, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(ctx, query, res)
		return res, nil
	})
	if err != nil {
		return workflow.Result{}, false, err
	}
	return val.(workflow.Result), false, nil
}

// Invalidate drops every cached response and returns how many were removed.
func (c *ResponseCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.store.DeletePrefix(ctx, keyPrefix)
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *ResponseCache) Stats(ctx context.Context) Stats {
	entries, err := c.store.Count(ctx, keyPrefix)
	if err != nil {
		c.logger.Warn("cache count failed", "error", err)
		entries = -1
	}
	return Stats{
		Backend: c.store.Name(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: entries,
	}
}

func (c *ResponseCache) record(hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	if c.observer != nil {
		c.observer.ObserveCache(hit)
	}
}

// buildKey collapses runs of whitespace so trivially different spellings of
// the same query share an entry.
func buildKey(query string) string {
	normalized := strings.Join(strings.Fields(query), " ")
	hash := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
