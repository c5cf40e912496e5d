package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pricewatch"

// Outcome labels for price checks.
const (
	OutcomeRecorded    = "recorded"
	OutcomeParseError  = "parse_error"
	OutcomeFetchError  = "fetch_error"
	OutcomePersistence = "persistence_error"
)

// Metrics groups the collectors for one process.
type Metrics struct {
	registry *prometheus.Registry

	checks           *prometheus.CounterVec
	alerts           *prometheus.CounterVec
	deliveryFailures prometheus.Counter
	cycleDuration    prometheus.Histogram
	lastCycle        prometheus.Gauge
}

// New registers the application collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		checks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "checks",
				Name:      "total",
				Help:      "Price checks by outcome.",
			},
			[]string{"outcome"},
		),
		alerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "alerts",
				Name:      "triggered_total",
				Help:      "Triggered alert reasons.",
			},
			[]string{"reason"},
		),
		deliveryFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "alerts",
				Name:      "delivery_failures_total",
				Help:      "Alert dispatches that failed on at least one channel.",
			},
		),
		cycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "cycle",
				Name:      "duration_seconds",
				Help:      "Duration of a full watch-list check.",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
			},
		),
		lastCycle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "cycle",
				Name:      "last_completed_timestamp_seconds",
				Help:      "Unix time of the last completed watch-list check.",
			},
		),
	}

	m.registry.MustRegister(
		m.checks,
		m.alerts,
		m.deliveryFailures,
		m.cycleDuration,
		m.lastCycle,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCheck counts one item check.
func (m *Metrics) ObserveCheck(outcome string) {
	if m == nil {
		return
	}
	m.checks.WithLabelValues(outcome).Inc()
}

// ObserveAlert counts triggered reasons.
func (m *Metrics) ObserveAlert(reasons []string) {
	if m == nil {
		return
	}
	for _, reason := range reasons {
		m.alerts.WithLabelValues(reason).Inc()
	}
}

// ObserveDeliveryFailure counts a failed dispatch.
func (m *Metrics) ObserveDeliveryFailure() {
	if m == nil {
		return
	}
	m.deliveryFailures.Inc()
}

// ObserveCycle records a completed cycle.
func (m *Metrics) ObserveCycle(seconds float64, completedUnix float64) {
	if m == nil {
		return
	}
	m.cycleDuration.Observe(seconds)
	m.lastCycle.Set(completedUnix)
}
