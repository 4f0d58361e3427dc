// Package metrics exposes fetch and credential cache metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/elabx-org/partscout/internal/catalog"
	"github.com/elabx-org/partscout/internal/credential"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "partscout"

// Metrics holds the collectors. It observes fetches and credential loads.
type Metrics struct {
	registry *prometheus.Registry

	fetchDuration    prometheus.Histogram
	fetchParts       prometheus.Histogram
	outcomes         *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	credentialLoads  *prometheus.CounterVec
	credentialLoadMs prometheus.Histogram
}

// New creates the collectors on a dedicated registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Wall time of complete fetches.",
			Buckets:   prometheus.DefBuckets,
		}),
		fetchParts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_parts",
			Help:      "Number of merged parts returned per fetch.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_outcomes_total",
			Help:      "Provider outcomes by provider and status.",
		}, []string{"provider", "status"}),
		providerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_duration_seconds",
			Help:      "Time spent on each attempted provider.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		credentialLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_loads_total",
			Help:      "Credential set loads by result.",
		}, []string{"result"}),
		credentialLoadMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "credential_load_duration_seconds",
			Help:      "Time spent loading credential sets.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1},
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.fetchDuration,
		m.fetchParts,
		m.outcomes,
		m.providerDuration,
		m.credentialLoads,
		m.credentialLoadMs,
	)
	return m
}

// ObserveFetch records a completed fetch.
func (m *Metrics) ObserveFetch(res *catalog.Result, elapsed time.Duration) {
	m.fetchDuration.Observe(elapsed.Seconds())
	m.fetchParts.Observe(float64(len(res.Parts)))
	for name, o := range res.Outcomes {
		m.outcomes.WithLabelValues(name, o.Status.String()).Inc()
		if o.Status != catalog.StatusNotConfigured {
			m.providerDuration.WithLabelValues(name).Observe(o.Duration.Seconds())
		}
	}
}

// ObserveCredentialLoad has the shape of credential.LoadHook.
func (m *Metrics) ObserveCredentialLoad(_ credential.Key, d time.Duration, err error) {
	result := "ok"
	switch {
	case credential.IsIntegrity(err):
		result = "integrity_error"
	case err != nil:
		result = "error"
	}
	m.credentialLoads.WithLabelValues(result).Inc()
	m.credentialLoadMs.Observe(d.Seconds())
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
