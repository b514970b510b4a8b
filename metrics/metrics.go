// Package metrics exposes Prometheus collectors for the app host loops.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "ledapp"

// Loops holds the loop collectors and the registry they are registered on.
type Loops struct {
	registry    *prometheus.Registry
	invocations *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// New creates the collectors on a private registry, together with the
// Go runtime and process collectors.
func New() *Loops {
	m := &Loops{
		registry: prometheus.NewRegistry(),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_invocations_total",
			Help:      "Completed loop invocations.",
		}, []string{"loop"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_failures_total",
			Help:      "Loop invocations that returned an error or panicked.",
		}, []string{"loop"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "loop_duration_seconds",
			Help:      "Duration of one loop invocation.",
			Buckets:   []float64{0.01, 0.1, 0.5, 0.9, 1, 1.1, 1.5, 2, 5, 10},
		}, []string{"loop"}),
	}

	m.registry.MustRegister(
		m.invocations,
		m.failures,
		m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observe records one finished invocation of loop.
func (m *Loops) Observe(loop string, took time.Duration, err error) {
	m.invocations.WithLabelValues(loop).Inc()
	m.duration.WithLabelValues(loop).Observe(took.Seconds())
	if err != nil {
		m.failures.WithLabelValues(loop).Inc()
	}
}

// Registry returns the registry to serve on /metrics.
func (m *Loops) Registry() *prometheus.Registry {
	return m.registry
}
