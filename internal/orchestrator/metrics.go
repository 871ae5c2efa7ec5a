package orchestrator

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports the daemon's scheduling counters. Each orchestrator
// owns its own registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	admitted    prometheus.Counter
	completions *prometheus.CounterVec
	errors      prometheus.Counter
	synthesized prometheus.Counter
	queueDepth  prometheus.Gauge
	workerState prometheus.Gauge
	workerLoads prometheus.Counter
}

// NewMetrics builds and registers the metric set.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		admitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailsift_requests_admitted_total",
			Help: "Requests admitted to the orchestrator queue",
		}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailsift_completions_total",
			Help: "Terminal completions delivered, by verdict category",
		}, []string{"category"}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailsift_errors_total",
			Help: "Terminal error responses delivered",
		}),
		synthesized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailsift_synthesized_total",
			Help: "Responses synthesized without touching the worker",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailsift_queue_depth",
			Help: "Requests waiting for admission",
		}),
		workerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailsift_worker_state",
			Help: "Worker lifecycle state as an enum ordinal",
		}),
		workerLoads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailsift_worker_loads_total",
			Help: "Worker creation attempts",
		}),
	}

	m.registry.MustRegister(
		m.admitted,
		m.completions,
		m.errors,
		m.synthesized,
		m.queueDepth,
		m.workerState,
		m.workerLoads,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
