// Package metrics exposes Prometheus counters for SDL transforms.
package metrics

import (
	"net/http"
	"time"

	"github.com/artpar/sdlbuilder/internal/core/transform"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sdlbuilder"

// OutcomeOK labels successful operations.
const OutcomeOK = "ok"

// Metrics holds the collectors of one process. Each instance owns its
// registry so tests never share state.
type Metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	unexpected *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transform_operations_total",
				Help:      "Total SDL transform operations by outcome",
			},
			[]string{"op", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transform_duration_seconds",
				Help:      "Duration of SDL transform operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		unexpected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transform_unexpected_total",
				Help:      "Failures that could not be classified",
			},
			[]string{"op"},
		),
	}

	m.registry.MustRegister(
		m.operations,
		m.duration,
		m.unexpected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observe records one operation that started at start and ended with err.
func (m *Metrics) Observe(op string, start time.Time, err error) {
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	m.operations.WithLabelValues(op, Outcome(err)).Inc()
}

// Report counts an unclassified failure. It implements transform.Reporter.
func (m *Metrics) Report(_ error, extras map[string]string) {
	op := extras["op"]
	if op == "" {
		op = "unknown"
	}
	m.unexpected.WithLabelValues(op).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Outcome maps err to a label: "ok", a transform error code, or
// "error" for anything else.
func Outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	if f, ok := transform.AsFailure(err); ok {
		return f.Kind.Code()
	}
	return "error"
}
