package wfs

import (
	"context"
	"errors"
	"testing"

	"github.com/couchcryptid/heritage-sites-service/internal/domain"
	"github.com/couchcryptid/heritage-sites-service/internal/observability"
	"github.com/couchcryptid/heritage-sites-service/internal/viewport"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	calls  int
	points []domain.Point
	err    error
}

func (s *countingSource) LoadFromBbox(_ context.Context, _ domain.BBox) ([]domain.Point, error) {
	s.calls++
	return s.points, s.err
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func newCached(t *testing.T, inner Source, size int) (*CachedSource, *observability.Metrics) {
	t.Helper()
	m := observability.NewMetricsForTesting()
	c, err := NewCachedSource(inner, size, m)
	require.NoError(t, err)
	return c, m
}

func TestCachedSource_Hit(t *testing.T) {
	inner := &countingSource{points: []domain.Point{{ID: "a"}}}
	cached, m := newCached(t, inner, 10)

	v := viewport.Viewport{BBox: testBBox, Zoom: 9}
	jittered := v
	jittered.BBox.MinLat += 0.0001

	p1, err := cached.Load(context.Background(), v)
	require.NoError(t, err)
	p2, err := cached.Load(context.Background(), jittered)
	require.NoError(t, err)

	assert.Equal(t, p1, p2)
	assert.Equal(t, 1, inner.calls, "rounded key should share one upstream call")
	assert.InDelta(t, 1, counterValue(t, m.SitesCache.WithLabelValues("hit")), 0)
	assert.InDelta(t, 1, counterValue(t, m.SitesCache.WithLabelValues("miss")), 0)
}

func TestCachedSource_ZoomIsPartOfKey(t *testing.T) {
	inner := &countingSource{points: []domain.Point{{ID: "a"}}}
	cached, _ := newCached(t, inner, 10)

	_, _ = cached.Load(context.Background(), viewport.Viewport{BBox: testBBox, Zoom: 8})
	_, _ = cached.Load(context.Background(), viewport.Viewport{BBox: testBBox, Zoom: 9})

	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, 2, cached.Len())
}

func TestCachedSource_ErrorsAndEmptyNotCached(t *testing.T) {
	v := viewport.Viewport{BBox: testBBox, Zoom: 9}

	failing := &countingSource{err: errors.New("boom")}
	cached, _ := newCached(t, failing, 10)
	_, err := cached.Load(context.Background(), v)
	require.Error(t, err)
	_, _ = cached.Load(context.Background(), v)
	assert.Equal(t, 2, failing.calls)
	assert.Equal(t, 0, cached.Len())

	empty := &countingSource{}
	cached, _ = newCached(t, empty, 10)
	_, _ = cached.Load(context.Background(), v)
	_, _ = cached.Load(context.Background(), v)
	assert.Equal(t, 2, empty.calls)
}

func TestCachedSource_Eviction(t *testing.T) {
	inner := &countingSource{points: []domain.Point{{ID: "a"}}}
	cached, _ := newCached(t, inner, 1)

	a := viewport.Viewport{BBox: testBBox, Zoom: 8}
	b := viewport.Viewport{BBox: testBBox, Zoom: 9}

	_, _ = cached.Load(context.Background(), a)
	_, _ = cached.Load(context.Background(), b)
	_, _ = cached.Load(context.Background(), a)

	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, 1, cached.Len())
}

func TestNewCachedSource_InvalidSize(t *testing.T) {
	_, err := NewCachedSource(&countingSource{}, 0, observability.NewMetricsForTesting())
	require.Error(t, err)
}
