package viewport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/heritage-sites-service/internal/domain"
	"github.com/couchcryptid/heritage-sites-service/internal/observability"
)

const (
	debounce = 450 * time.Millisecond
	waitFor  = 2 * time.Second
	tick     = 5 * time.Millisecond
)

type fakeSource struct {
	mu    sync.Mutex
	calls []domain.BBox
	load  func(ctx context.Context, bbox domain.BBox) ([]domain.Point, error)
}

func (f *fakeSource) LoadFromBbox(ctx context.Context, bbox domain.BBox) ([]domain.Point, error) {
	f.mu.Lock()
	f.calls = append(f.calls, bbox)
	load := f.load
	f.mu.Unlock()

	if load == nil {
		return []domain.Point{{ID: bbox.String()}}, nil
	}
	return load(ctx, bbox)
}

func (f *fakeSource) Calls() []domain.BBox {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.BBox(nil), f.calls...)
}

type harness struct {
	loader  *Loader
	clock   *clockwork.FakeClock
	states  chan State
	metrics *observability.Metrics
	cancel  context.CancelFunc
	done    chan struct{}
}

func start(t *testing.T, src Source) *harness {
	t.Helper()
	h := &harness{
		clock:   clockwork.NewFakeClock(),
		states:  make(chan State, 64),
		metrics: observability.NewMetricsForTesting(),
		done:    make(chan struct{}),
	}
	h.loader = New(src,
		WithClock(h.clock),
		WithDebounce(debounce),
		WithMinZoom(DefaultMinZoom),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(h.metrics),
		WithStateHandler(func(s State) { h.states <- s }),
	)

	var ctx context.Context
	ctx, h.cancel = context.WithCancel(context.Background())
	go func() {
		_ = h.loader.Run(ctx)
		close(h.done)
	}()
	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.cancel()
	<-h.done
}

func (h *harness) notify(t *testing.T, v Viewport) Decision {
	t.Helper()
	d, err := h.loader.Notify(context.Background(), v)
	require.NoError(t, err)
	return d
}

// awaitStatus drains published states until one with the given status arrives.
func (h *harness) awaitStatus(t *testing.T, status Status) State {
	t.Helper()
	timeout := time.After(waitFor)
	for {
		select {
		case s := <-h.states:
			if s.Status == status {
				return s
			}
		case <-timeout:
			t.Fatalf("timed out waiting for status %s", status)
		}
	}
}

func (h *harness) assertNoState(t *testing.T) {
	t.Helper()
	select {
	case s := <-h.states:
		t.Fatalf("unexpected state %s", s.Status)
	case <-time.After(50 * time.Millisecond):
	}
}

func view(minLat, minLng float64, zoom int) Viewport {
	return Viewport{
		BBox: domain.BBox{MinLat: minLat, MinLng: minLng, MaxLat: minLat + 1, MaxLng: minLng + 1},
		Zoom: zoom,
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestViewport_Key(t *testing.T) {
	a := view(-21.12341, -51.8, 9)
	b := view(-21.12344, -51.8, 9)
	c := view(-21.1249, -51.8, 9)
	d := view(-21.12341, -51.8, 10)

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
	assert.NotEqual(t, a.Key(), d.Key())
	assert.Equal(t, "9|-21.123|-51.800|-20.123|-50.800", a.Key())
}

func TestLoader_DebounceCollapsesJitter(t *testing.T) {
	src := &fakeSource{}
	h := start(t, src)

	v := view(-21.12341, -51.8, 9)
	assert.Equal(t, DecisionScheduled, h.notify(t, v))
	assert.Equal(t, DecisionDuplicate, h.notify(t, view(-21.12344, -51.8, 9)))

	h.clock.Advance(debounce)

	loading := h.awaitStatus(t, StatusLoading)
	assert.Equal(t, v, loading.Viewport)

	loaded := h.awaitStatus(t, StatusLoaded)
	require.Len(t, loaded.Points, 1)
	assert.Equal(t, v.BBox.String(), loaded.Points[0].ID)
	assert.Empty(t, loaded.Err)
	assert.Len(t, src.Calls(), 1)
}

func TestLoader_LatestViewportWins(t *testing.T) {
	src := &fakeSource{}
	h := start(t, src)

	first := view(-21, -52, 9)
	second := view(-22, -53, 9)

	require.Equal(t, DecisionScheduled, h.notify(t, first))
	h.clock.Advance(200 * time.Millisecond)
	require.Equal(t, DecisionScheduled, h.notify(t, second))

	// The first timer would have fired here; the restart means nothing runs.
	h.clock.Advance(300 * time.Millisecond)
	h.assertNoState(t)
	assert.Empty(t, src.Calls())

	h.clock.Advance(150 * time.Millisecond)
	loaded := h.awaitStatus(t, StatusLoaded)
	assert.Equal(t, second, loaded.Viewport)
	assert.Equal(t, []domain.BBox{second.BBox}, src.Calls())
}

func TestLoader_ZoomGateClearsPoints(t *testing.T) {
	src := &fakeSource{}
	h := start(t, src)

	near := view(-21, -52, 9)
	h.notify(t, near)
	h.clock.Advance(debounce)
	loaded := h.awaitStatus(t, StatusLoaded)
	require.NotEmpty(t, loaded.Points)

	assert.Equal(t, DecisionGated, h.notify(t, view(-21, -52, 6)))
	idle := h.awaitStatus(t, StatusIdle)
	assert.Empty(t, idle.Points)
	assert.Empty(t, idle.Err)

	h.clock.Advance(time.Second)
	h.assertNoState(t)
	assert.Len(t, src.Calls(), 1)

	// Zooming back in to the same view loads again.
	assert.Equal(t, DecisionScheduled, h.notify(t, near))
	h.clock.Advance(debounce)
	h.awaitStatus(t, StatusLoaded)
	assert.Len(t, src.Calls(), 2)
}

func TestLoader_ZoomGateCancelsPendingTimer(t *testing.T) {
	src := &fakeSource{}
	h := start(t, src)

	h.notify(t, view(-21, -52, 9))
	h.notify(t, view(-21, -52, 5))
	h.awaitStatus(t, StatusIdle)

	h.clock.Advance(time.Second)
	h.assertNoState(t)
	assert.Empty(t, src.Calls())
}

func TestLoader_DuplicateAfterLoad(t *testing.T) {
	src := &fakeSource{}
	h := start(t, src)

	v := view(-21, -52, 9)
	h.notify(t, v)
	h.clock.Advance(debounce)
	h.awaitStatus(t, StatusLoaded)

	assert.Equal(t, DecisionDuplicate, h.notify(t, v))
	h.clock.Advance(time.Second)
	h.assertNoState(t)
	assert.Len(t, src.Calls(), 1)
}

func TestLoader_ErrorKeepsPreviousPoints(t *testing.T) {
	good := view(-21, -52, 9)
	bad := view(-22, -53, 9)
	src := &fakeSource{}
	src.load = func(_ context.Context, bbox domain.BBox) ([]domain.Point, error) {
		if bbox == bad.BBox {
			return nil, errors.New("wfs proxy error: status 502")
		}
		return []domain.Point{{ID: "kept"}}, nil
	}
	h := start(t, src)

	h.notify(t, good)
	h.clock.Advance(debounce)
	h.awaitStatus(t, StatusLoaded)

	h.notify(t, bad)
	h.clock.Advance(debounce)
	failed := h.awaitStatus(t, StatusError)
	assert.Equal(t, "wfs proxy error: status 502", failed.Err)
	require.Len(t, failed.Points, 1)
	assert.Equal(t, "kept", failed.Points[0].ID)

	h.notify(t, view(-23, -54, 9))
	h.clock.Advance(debounce)
	recovered := h.awaitStatus(t, StatusLoaded)
	assert.Empty(t, recovered.Err)
	assert.Equal(t, recovered, h.loader.State())
}

func TestLoader_StaleResponseDropped(t *testing.T) {
	slow := view(-21, -52, 9)
	fast := view(-22, -53, 9)
	release := make(chan struct{})
	started := make(chan struct{})

	src := &fakeSource{}
	src.load = func(_ context.Context, bbox domain.BBox) ([]domain.Point, error) {
		if bbox == slow.BBox {
			close(started)
			<-release
			return []domain.Point{{ID: "stale"}}, nil
		}
		return []domain.Point{{ID: "fresh"}}, nil
	}
	h := start(t, src)

	h.notify(t, slow)
	h.clock.Advance(debounce)
	h.awaitStatus(t, StatusLoading)
	<-started

	h.notify(t, fast)
	h.clock.Advance(debounce)
	loaded := h.awaitStatus(t, StatusLoaded)
	require.Len(t, loaded.Points, 1)
	assert.Equal(t, "fresh", loaded.Points[0].ID)

	close(release)
	h.assertNoState(t)
	assert.Equal(t, "fresh", h.loader.State().Points[0].ID)
}

func TestLoader_SupersededRequestIsCancelled(t *testing.T) {
	first := view(-21, -52, 9)
	cancelled := make(chan error, 1)

	src := &fakeSource{}
	src.load = func(ctx context.Context, bbox domain.BBox) ([]domain.Point, error) {
		if bbox == first.BBox {
			<-ctx.Done()
			cancelled <- ctx.Err()
			return nil, ctx.Err()
		}
		return []domain.Point{{ID: "second"}}, nil
	}
	h := start(t, src)

	h.notify(t, first)
	h.clock.Advance(debounce)
	h.awaitStatus(t, StatusLoading)

	h.notify(t, view(-22, -53, 9))
	h.clock.Advance(debounce)

	select {
	case err := <-cancelled:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(waitFor):
		t.Fatal("first request was not cancelled")
	}
	loaded := h.awaitStatus(t, StatusLoaded)
	assert.Equal(t, "second", loaded.Points[0].ID)
	assert.Equal(t, StatusLoaded, h.loader.State().Status)
}

func TestLoader_StopTearsDown(t *testing.T) {
	src := &fakeSource{}
	h := start(t, src)

	h.notify(t, view(-21, -52, 9))
	h.stop()

	h.clock.Advance(time.Second)
	assert.Empty(t, src.Calls())

	_, err := h.loader.Notify(context.Background(), view(-22, -53, 9))
	require.ErrorIs(t, err, ErrStopped)

	select {
	case s := <-h.states:
		t.Fatalf("state published after stop: %s", s.Status)
	default:
	}
}

func TestLoader_RunTwice(t *testing.T) {
	h := start(t, &fakeSource{})
	require.Eventually(t, func() bool { return h.loader.running.Load() }, waitFor, tick)

	err := h.loader.Run(context.Background())
	require.Error(t, err)
}

func TestLoader_DecisionMetrics(t *testing.T) {
	h := start(t, &fakeSource{})

	h.notify(t, view(-21, -52, 9))
	h.notify(t, view(-21, -52, 9))
	h.notify(t, view(-21, -52, 3))

	assert.InDelta(t, 1, counterValue(t, h.metrics.ViewportDecisions.WithLabelValues("scheduled")), 0)
	assert.InDelta(t, 1, counterValue(t, h.metrics.ViewportDecisions.WithLabelValues("duplicate")), 0)
	assert.InDelta(t, 1, counterValue(t, h.metrics.ViewportDecisions.WithLabelValues("gated")), 0)
}
