package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the toolkit's Prometheus collectors on a private registry.
// Runs are batch jobs, so the registry is flushed to a textfile at exit
// rather than scraped.
type Metrics struct {
	registry          *prometheus.Registry
	cacheLookups      *prometheus.CounterVec
	buildSeconds      *prometheus.HistogramVec
	writeBackFailures *prometheus.CounterVec
}

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "risksharing_cache_lookups_total",
			Help: "Cache lookups by dataset and outcome (hit, miss, error).",
		}, []string{"dataset", "outcome"}),
		buildSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "risksharing_dataset_build_seconds",
			Help:    "Time spent building datasets after a cache miss.",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
		}, []string{"dataset"}),
		writeBackFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "risksharing_cache_write_back_failures_total",
			Help: "Freshly built datasets that could not be written back to the cache.",
		}, []string{"dataset"}),
	}
	m.registry.MustRegister(m.cacheLookups, m.buildSeconds, m.writeBackFailures)
	return m
}

// CacheLookup counts one lookup.
func (m *Metrics) CacheLookup(dataset, outcome string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(dataset, outcome).Inc()
}

// ObserveBuild records the duration of a fallback build.
func (m *Metrics) ObserveBuild(dataset string, d time.Duration) {
	if m == nil {
		return
	}
	m.buildSeconds.WithLabelValues(dataset).Observe(d.Seconds())
}

// WriteBackFailed counts a failed write-back.
func (m *Metrics) WriteBackFailed(dataset string) {
	if m == nil {
		return
	}
	m.writeBackFailures.WithLabelValues(dataset).Inc()
}

// Registry exposes the registry for tests and exporters.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// WriteTextfile writes the current values in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
