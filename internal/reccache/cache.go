package reccache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"moviepicker/internal/domain"
	"moviepicker/internal/metrics"
)

const (
	DefaultCapacity = 200
	DefaultMaxAge   = 7 * 24 * time.Hour
)

// Backing is the persistent tier, typically the Mongo store.
// GetRecommendations returns domain.ErrNotFound when no row exists.
type Backing interface {
	GetRecommendations(ctx context.Context, key domain.ItemKey) (domain.RecommendationList, error)
	PutRecommendations(ctx context.Context, list domain.RecommendationList) error
}

// Fetcher produces a fresh recommendation list from the metadata
// provider on a full cache miss.
type Fetcher func(ctx context.Context, key domain.ItemKey) ([]int64, error)

// Cache is the two-tier recommendation cache: a fixed-capacity
// in-process LRU in front of a persistent backing tier. Rows in the
// backing tier older than maxAge read as absent but are never deleted;
// the next Put overwrites them in place.
type Cache struct {
	lru     *lru.Cache[domain.ItemKey, []int64]
	backing Backing
	fetch   Fetcher
	maxAge  time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Cache)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func New(capacity int, maxAge time.Duration, backing Backing, fetch Fetcher, opts ...Option) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	inner, err := lru.New[domain.ItemKey, []int64](capacity)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	c := &Cache{
		lru:     inner,
		backing: backing,
		fetch:   fetch,
		maxAge:  maxAge,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Lookup checks the memory tier, then the backing tier. A fresh
// backing row is promoted into memory. Stale or absent rows miss.
func (c *Cache) Lookup(ctx context.Context, key domain.ItemKey) ([]int64, bool) {
	if ids, ok := c.lru.Get(key); ok {
		metrics.RecCacheHitsTotal.WithLabelValues("memory").Inc()
		return append([]int64(nil), ids...), true
	}

	if c.backing != nil {
		list, err := c.backing.GetRecommendations(ctx, key)
		switch {
		case err == nil:
			if c.now().Sub(list.RefreshedAt) <= c.maxAge {
				metrics.RecCacheHitsTotal.WithLabelValues("store").Inc()
				c.lru.Add(key, append([]int64(nil), list.IDs...))
				return append([]int64(nil), list.IDs...), true
			}
			// Stale row reads as absent; it stays in place until the
			// next Put overwrites it.
		case errors.Is(err, domain.ErrNotFound):
		default:
			c.logger.Warn("recommendation cache backing read failed",
				slog.String("item", key.String()),
				slog.String("error", err.Error()))
		}
	}

	metrics.RecCacheMissesTotal.Inc()
	return nil, false
}

// Put writes through both tiers. A backing failure is logged and
// swallowed; the memory tier still serves the session.
func (c *Cache) Put(ctx context.Context, key domain.ItemKey, ids []int64) {
	c.lru.Add(key, append([]int64(nil), ids...))
	if c.backing == nil {
		return
	}
	list := domain.RecommendationList{
		Source:      key,
		IDs:         append([]int64(nil), ids...),
		RefreshedAt: c.now(),
	}
	if err := c.backing.PutRecommendations(ctx, list); err != nil {
		c.logger.Warn("recommendation cache backing write failed",
			slog.String("item", key.String()),
			slog.String("error", err.Error()))
	}
}

// Resolve returns the cached list for key, fetching and storing it on
// a full miss. Fetch errors propagate; nothing is cached for them.
func (c *Cache) Resolve(ctx context.Context, key domain.ItemKey) ([]int64, error) {
	if ids, ok := c.Lookup(ctx, key); ok {
		return ids, nil
	}
	if c.fetch == nil {
		return nil, nil
	}
	ids, err := c.fetch(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("fetch recommendations for %s: %w", key, err)
	}
	c.Put(ctx, key, ids)
	return append([]int64(nil), ids...), nil
}

// Len reports the memory tier size, for diagnostics.
func (c *Cache) Len() int {
	return c.lru.Len()
}
