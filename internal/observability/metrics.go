package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "heritage_sites"

// Metrics holds the Prometheus counters, histograms, and gauges for ingestion,
// viewport loading, and the HTTP API.
type Metrics struct {
	// Ingestion metrics.
	RecordsParsed   *prometheus.CounterVec   // labels: source={csv,iphan}
	RecordsRejected *prometheus.CounterVec   // labels: source={csv,iphan}
	IngestErrors    *prometheus.CounterVec   // labels: source={csv,iphan}, kind={transport,parse}
	IngestDuration  *prometheus.HistogramVec // labels: source={csv,iphan}
	PointsLoaded    prometheus.Gauge
	RefresherActive prometheus.Gauge

	// Viewport metrics.
	ViewportDecisions *prometheus.CounterVec // labels: decision={gated,duplicate,scheduled}
	ViewportLoads     *prometheus.CounterVec // labels: outcome={success,error,stale}

	// WFS proxy cache.
	SitesCache *prometheus.CounterVec // labels: result={hit,miss}

	// Change feed.
	PointsPublished prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.RecordsParsed,
		m.RecordsRejected,
		m.IngestErrors,
		m.IngestDuration,
		m.PointsLoaded,
		m.RefresherActive,
		m.ViewportDecisions,
		m.ViewportLoads,
		m.SitesCache,
		m.PointsPublished,
	)

	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RecordsParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_parsed_total",
			Help:      "Raw records read from upstream sources.",
		}, []string{"source"}),
		RecordsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_rejected_total",
			Help:      "Raw records dropped by validation.",
		}, []string{"source"}),
		IngestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_errors_total",
			Help:      "Batch loads that failed, by source and error kind.",
		}, []string{"source", "kind"}),
		IngestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Duration of a complete batch fetch and normalization.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"source"}),
		PointsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "points_loaded",
			Help:      "Points in the current spreadsheet snapshot.",
		}),
		RefresherActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "refresher_running",
			Help:      "1 when the spreadsheet refresher is active, 0 when shut down.",
		}),
		ViewportDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "viewport_events_total",
			Help:      "Viewport change events by loader decision.",
		}, []string{"decision"}),
		ViewportLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "viewport_loads_total",
			Help:      "Viewport-driven loads by outcome.",
		}, []string{"outcome"}),
		SitesCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sites_cache_total",
			Help:      "WFS proxy cache lookups by result.",
		}, []string{"result"}),
		PointsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_published_total",
			Help:      "Points written to the change feed topic.",
		}),
	}
}
