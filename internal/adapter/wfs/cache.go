package wfs

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/couchcryptid/heritage-sites-service/internal/domain"
	"github.com/couchcryptid/heritage-sites-service/internal/observability"
	"github.com/couchcryptid/heritage-sites-service/internal/viewport"
)

// Source loads the points inside a bounding box.
type Source interface {
	LoadFromBbox(ctx context.Context, bbox domain.BBox) ([]domain.Point, error)
}

// CachedSource wraps a Source with an in-memory LRU cache keyed by the
// rounded viewport key, so near-identical views share one upstream call.
type CachedSource struct {
	inner   Source
	cache   *lru.Cache[string, []domain.Point]
	metrics *observability.Metrics
}

// NewCachedSource creates a cache decorator around a source.
func NewCachedSource(inner Source, maxEntries int, metrics *observability.Metrics) (*CachedSource, error) {
	cache, err := lru.New[string, []domain.Point](maxEntries)
	if err != nil {
		return nil, err
	}
	return &CachedSource{inner: inner, cache: cache, metrics: metrics}, nil
}

// Load returns the points for a viewport, calling the inner source on a miss.
func (c *CachedSource) Load(ctx context.Context, v viewport.Viewport) ([]domain.Point, error) {
	key := v.Key()
	if points, ok := c.cache.Get(key); ok {
		c.metrics.SitesCache.WithLabelValues("hit").Inc()
		return points, nil
	}
	c.metrics.SitesCache.WithLabelValues("miss").Inc()

	points, err := c.inner.LoadFromBbox(ctx, v.BBox)
	if err != nil {
		return nil, err
	}
	// Empty results are not cached so a transient upstream gap can be retried.
	if len(points) > 0 {
		c.cache.Add(key, points)
	}
	return points, nil
}

// Len reports the number of cached viewports.
func (c *CachedSource) Len() int {
	return c.cache.Len()
}
