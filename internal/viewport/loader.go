package viewport

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/heritage-sites-service/internal/domain"
	"github.com/couchcryptid/heritage-sites-service/internal/observability"
)

// ErrStopped is returned by Notify once Run has returned.
var ErrStopped = errors.New("viewport loader stopped")

// Option configures a Loader.
type Option func(*Loader)

// WithClock sets the time source for the debounce timer.
func WithClock(c clockwork.Clock) Option {
	return func(l *Loader) { l.clock = c }
}

// WithMinZoom sets the lowest zoom level that triggers loads.
func WithMinZoom(z int) Option {
	return func(l *Loader) { l.minZoom = z }
}

// WithDebounce sets the quiet period before a load is dispatched.
func WithDebounce(d time.Duration) Option {
	return func(l *Loader) { l.delay = d }
}

// WithStateHandler installs a callback for every state change. It runs on the
// coordinating goroutine and must not call Notify.
func WithStateHandler(fn func(State)) Option {
	return func(l *Loader) { l.onState = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(l *Loader) { l.metrics = m }
}

// Loader coordinates viewport-driven loads for one mounted map view.
type Loader struct {
	source  Source
	clock   clockwork.Clock
	minZoom int
	delay   time.Duration
	onState func(State)
	logger  *slog.Logger
	metrics *observability.Metrics

	events  chan notification
	results chan result
	done    chan struct{}
	running atomic.Bool

	mu    sync.RWMutex
	state State

	// Owned by the Run goroutine.
	lastKey    string
	pending    Viewport
	timer      clockwork.Timer
	generation uint64
	cancelLoad context.CancelFunc
}

type notification struct {
	viewport Viewport
	reply    chan Decision
}

type result struct {
	generation uint64
	viewport   Viewport
	points     []domain.Point
	err        error
}

// New creates a Loader for source. Call Run to start it.
func New(source Source, opts ...Option) *Loader {
	l := &Loader{
		source:  source,
		clock:   clockwork.NewRealClock(),
		minZoom: DefaultMinZoom,
		delay:   DefaultDebounce,
		logger:  slog.Default(),
		events:  make(chan notification),
		results: make(chan result),
		done:    make(chan struct{}),
		state:   State{Status: StatusIdle},
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.metrics == nil {
		l.metrics = observability.NewMetricsForTesting()
	}
	return l
}

// Notify hands a viewport change to the coordinator and returns its decision.
// It blocks until Run has processed the event.
func (l *Loader) Notify(ctx context.Context, v Viewport) (Decision, error) {
	n := notification{viewport: v, reply: make(chan Decision, 1)}

	select {
	case l.events <- n:
	case <-l.done:
		return 0, ErrStopped
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	select {
	case d := <-n.reply:
		return d, nil
	case <-l.done:
		return 0, ErrStopped
	}
}

// State returns the current snapshot.
func (l *Loader) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Run processes events until ctx is cancelled. On return the pending timer is
// stopped, any in-flight request is cancelled, and no further state changes
// are published.
func (l *Loader) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("viewport loader already running")
	}
	defer close(l.done)
	defer l.teardown()

	l.logger.Info("viewport loader started", "min_zoom", l.minZoom, "debounce", l.delay)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("viewport loader stopping", "reason", ctx.Err())
			return nil
		case n := <-l.events:
			d := l.handle(n.viewport)
			l.metrics.ViewportDecisions.WithLabelValues(d.String()).Inc()
			n.reply <- d
		case <-l.timerC():
			l.timer = nil
			l.dispatch(ctx)
		case r := <-l.results:
			l.apply(r)
		}
	}
}

func (l *Loader) handle(v Viewport) Decision {
	if v.Zoom < l.minZoom {
		l.stopTimer()
		l.abandonInflight()
		l.lastKey = ""
		l.publish(func(s *State) {
			*s = State{Status: StatusIdle, Viewport: v}
		})
		return DecisionGated
	}

	key := v.Key()
	if key == l.lastKey {
		return DecisionDuplicate
	}
	l.lastKey = key
	l.pending = v

	l.stopTimer()
	l.timer = l.clock.NewTimer(l.delay)
	return DecisionScheduled
}

func (l *Loader) dispatch(ctx context.Context) {
	l.abandonInflight()

	gen := l.generation
	v := l.pending
	loadCtx, cancel := context.WithCancel(ctx)
	l.cancelLoad = cancel

	l.publish(func(s *State) {
		s.Status = StatusLoading
		s.Viewport = v
	})
	l.logger.Debug("viewport load dispatched", "bbox", v.BBox.String(), "zoom", v.Zoom, "generation", gen)

	go func() {
		points, err := l.source.LoadFromBbox(loadCtx, v.BBox)
		select {
		case l.results <- result{generation: gen, viewport: v, points: points, err: err}:
		case <-loadCtx.Done():
		}
	}()
}

func (l *Loader) apply(r result) {
	if r.generation != l.generation {
		l.metrics.ViewportLoads.WithLabelValues("stale").Inc()
		l.logger.Debug("stale viewport response dropped", "generation", r.generation, "current", l.generation)
		return
	}
	if l.cancelLoad != nil {
		l.cancelLoad()
		l.cancelLoad = nil
	}

	if r.err != nil {
		l.metrics.ViewportLoads.WithLabelValues("error").Inc()
		l.logger.Warn("viewport load failed", "bbox", r.viewport.BBox.String(), "error", r.err)
		l.publish(func(s *State) {
			s.Status = StatusError
			s.Err = r.err.Error()
		})
		return
	}

	l.metrics.ViewportLoads.WithLabelValues("success").Inc()
	points := r.points
	if points == nil {
		points = []domain.Point{}
	}
	l.publish(func(s *State) {
		s.Status = StatusLoaded
		s.Points = points
		s.Err = ""
		s.Viewport = r.viewport
	})
}

// abandonInflight cancels the current request and advances the generation
// so its response, if it still arrives, is dropped.
func (l *Loader) abandonInflight() {
	if l.cancelLoad != nil {
		l.cancelLoad()
		l.cancelLoad = nil
	}
	l.generation++
}

func (l *Loader) timerC() <-chan time.Time {
	if l.timer == nil {
		return nil
	}
	return l.timer.Chan()
}

func (l *Loader) stopTimer() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

func (l *Loader) teardown() {
	l.stopTimer()
	if l.cancelLoad != nil {
		l.cancelLoad()
		l.cancelLoad = nil
	}
}

func (l *Loader) publish(update func(*State)) {
	l.mu.Lock()
	update(&l.state)
	snapshot := l.state
	l.mu.Unlock()

	if l.onState != nil {
		l.onState(snapshot)
	}
}
