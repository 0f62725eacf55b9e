// Package metrics holds the Prometheus collectors for the virtual tree.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Registry *prometheus.Registry

	// Population metrics
	PopulationsTotal   *prometheus.CounterVec
	PopulationDuration *prometheus.HistogramVec
	SkippedChildren    *prometheus.CounterVec

	// Query engine metrics
	EngineCalls    *prometheus.CounterVec
	EngineDuration prometheus.Histogram

	// Graph cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
}

// New creates the metrics on their own registry, so several instances can
// coexist in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,

		PopulationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "facetfs_populations_total",
				Help: "Total number of node populations",
			},
			[]string{"kind", "outcome"},
		),
		PopulationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "facetfs_population_duration_seconds",
				Help:    "Duration of node populations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		SkippedChildren: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "facetfs_skipped_children_total",
				Help: "Facet search children skipped because of a contained error",
			},
			[]string{"reason"},
		),

		EngineCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "facetfs_engine_calls_total",
				Help: "Total number of faceted-navigation engine calls",
			},
			[]string{"outcome"},
		),
		EngineDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "facetfs_engine_duration_seconds",
				Help:    "Duration of faceted-navigation engine calls",
				Buckets: prometheus.DefBuckets,
			},
		),

		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "facetfs_graph_cache_hits_total",
			Help: "Resolved node states served from the graph cache",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "facetfs_graph_cache_misses_total",
			Help: "Resolved node states computed on a cache miss",
		}),
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) ObservePopulation(kind string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.PopulationsTotal.WithLabelValues(kind, outcome(err)).Inc()
	m.PopulationDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) ObserveEngine(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.EngineCalls.WithLabelValues(outcome(err)).Inc()
	m.EngineDuration.Observe(d.Seconds())
}

func (m *Metrics) SkippedChild(reason string) {
	if m == nil {
		return
	}
	m.SkippedChildren.WithLabelValues(reason).Inc()
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
