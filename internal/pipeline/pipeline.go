// Package pipeline keeps the point catalog in sync with the spreadsheet:
// extract rows, normalize them, swap the catalog snapshot, and publish the
// batch to the change feed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/heritage-sites-service/internal/catalog"
	"github.com/couchcryptid/heritage-sites-service/internal/domain"
	"github.com/couchcryptid/heritage-sites-service/internal/observability"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Extractor loads the full point set from a delimited-text URL.
type Extractor interface {
	LoadFromDelimitedSource(ctx context.Context, url string) ([]domain.Point, error)
}

// BatchLoader publishes a loaded batch downstream.
type BatchLoader interface {
	LoadBatch(ctx context.Context, points []domain.Point) error
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithInterval sets the delay between successful refreshes. Zero loads once.
func WithInterval(d time.Duration) Option {
	return func(r *Refresher) { r.interval = d }
}

// WithLoader publishes each refreshed batch to l.
func WithLoader(l BatchLoader) Option {
	return func(r *Refresher) { r.loader = l }
}

// WithClock sets the time source for backoff, intervals, and load timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(r *Refresher) { r.clock = c }
}

// Refresher runs the extract-normalize-store-publish loop.
type Refresher struct {
	extractor Extractor
	url       string
	store     *catalog.Store
	loader    BatchLoader
	interval  time.Duration
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics

	ready   atomic.Bool
	lastErr atomic.Pointer[string]
}

// New creates a Refresher that loads url into store.
func New(e Extractor, url string, store *catalog.Store, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Refresher {
	r := &Refresher{
		extractor: e,
		url:       url,
		store:     store,
		clock:     clockwork.NewRealClock(),
		logger:    logger,
		metrics:   metrics,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CheckReadiness returns nil once at least one batch has been stored.
func (r *Refresher) CheckReadiness(_ context.Context) error {
	if r.ready.Load() {
		return nil
	}
	if msg := r.lastErr.Load(); msg != nil {
		return fmt.Errorf("initial csv load failed: %s", *msg)
	}
	return errors.New("csv has not been loaded yet")
}

// Ready reports whether a batch has been stored.
func (r *Refresher) Ready() bool {
	return r.ready.Load()
}

// Run refreshes until the context is cancelled. With a zero interval it
// returns after the first successful load.
func (r *Refresher) Run(ctx context.Context) error {
	r.logger.Info("refresher started", "url", r.url, "interval", r.interval)
	r.metrics.RefresherActive.Set(1)
	defer r.metrics.RefresherActive.Set(0)

	backoff := initialBackoff
	for {
		if err := r.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				r.logger.Info("refresher stopping", "reason", ctx.Err())
				return nil
			}
			r.logger.Error("csv refresh failed", "error", err, "retry_in", backoff)
			if !r.sleep(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = initialBackoff

		if r.interval <= 0 {
			r.logger.Info("refresh interval disabled, refresher done")
			return nil
		}
		if !r.sleep(ctx, r.interval) {
			r.logger.Info("refresher stopping", "reason", ctx.Err())
			return nil
		}
	}
}

// Refresh performs one load. On failure the current snapshot is kept.
func (r *Refresher) Refresh(ctx context.Context) error {
	points, err := r.extractor.LoadFromDelimitedSource(ctx, r.url)
	if err != nil {
		msg := err.Error()
		r.lastErr.Store(&msg)
		return err
	}

	snap := r.store.Replace(points, r.clock.Now())
	r.metrics.PointsLoaded.Set(float64(len(points)))
	r.ready.Store(true)
	r.lastErr.Store(nil)

	r.logger.Info("catalog refreshed",
		"points", len(points),
		"categorias", len(snap.Facets.Categorias),
		"periodos", len(snap.Facets.Periodos),
	)

	if r.loader != nil && len(points) > 0 {
		// The snapshot is already live; a feed outage must not block reads.
		if err := r.loader.LoadBatch(ctx, points); err != nil {
			r.logger.Error("publish batch failed", "error", err, "batch_size", len(points))
		} else {
			r.metrics.PointsPublished.Add(float64(len(points)))
		}
	}
	return nil
}

func (r *Refresher) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := r.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
