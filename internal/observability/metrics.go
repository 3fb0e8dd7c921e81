package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// dashboard data core.
type Metrics struct {
	RequestDuration *prometheus.HistogramVec // labels: endpoint
	RequestErrors   *prometheus.CounterVec   // labels: endpoint, kind={network,timeout,api,validation}

	CacheHits   *prometheus.CounterVec // labels: endpoint
	CacheMisses *prometheus.CounterVec // labels: endpoint

	LoadsInFlight       prometheus.Gauge
	StaleResultsDropped prometheus.Counter
	SingleFlightSkips   *prometheus.CounterVec // labels: dataset

	OverlayActivations *prometheus.CounterVec // labels: overlay
	EventsPublished    prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus
// registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cropai",
			Name:      "backend_request_duration_seconds",
			Help:      "Backend request duration by endpoint.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"endpoint"}),
		RequestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cropai",
			Name:      "backend_request_errors_total",
			Help:      "Failed backend requests by endpoint and error kind.",
		}, []string{"endpoint", "kind"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cropai",
			Name:      "response_cache_hits_total",
			Help:      "Response cache hits by endpoint.",
		}, []string{"endpoint"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cropai",
			Name:      "response_cache_misses_total",
			Help:      "Response cache misses by endpoint.",
		}, []string{"endpoint"}),
		LoadsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cropai",
			Name:      "dataset_loads_in_flight",
			Help:      "Background dataset loads currently outstanding.",
		}),
		StaleResultsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cropai",
			Name:      "stale_results_dropped_total",
			Help:      "Responses discarded because the selection moved on before they resolved.",
		}),
		SingleFlightSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cropai",
			Name:      "single_flight_skips_total",
			Help:      "Dataset loads skipped because one was already in flight.",
		}, []string{"dataset"}),
		OverlayActivations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cropai",
			Name:      "overlay_activations_total",
			Help:      "Map overlay activations by overlay name.",
		}, []string{"overlay"}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cropai",
			Name:      "refresh_events_published_total",
			Help:      "Dataset refresh events published to the event sink.",
		}),
	}

	prometheus.MustRegister(
		m.RequestDuration,
		m.RequestErrors,
		m.CacheHits,
		m.CacheMisses,
		m.LoadsInFlight,
		m.StaleResultsDropped,
		m.SingleFlightSkips,
		m.OverlayActivations,
		m.EventsPublished,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		RequestDuration:     prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "cropai", Name: "backend_request_duration_seconds"}, []string{"endpoint"}),
		RequestErrors:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "cropai", Name: "backend_request_errors_total"}, []string{"endpoint", "kind"}),
		CacheHits:           prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "cropai", Name: "response_cache_hits_total"}, []string{"endpoint"}),
		CacheMisses:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "cropai", Name: "response_cache_misses_total"}, []string{"endpoint"}),
		LoadsInFlight:       prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "cropai", Name: "dataset_loads_in_flight"}),
		StaleResultsDropped: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "cropai", Name: "stale_results_dropped_total"}),
		SingleFlightSkips:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "cropai", Name: "single_flight_skips_total"}, []string{"dataset"}),
		OverlayActivations:  prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "cropai", Name: "overlay_activations_total"}, []string{"overlay"}),
		EventsPublished:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "cropai", Name: "refresh_events_published_total"}),
	}
}
