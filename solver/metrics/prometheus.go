// Package metrics exports solver metrics in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives pipeline measurements. Nop discards them.
type Recorder interface {
	RecordSolve(operation, path string, latency time.Duration, success bool)
	RecordError(operation, class string)
	RecordInvocation(operation, state string, latency time.Duration)
	RecordRender(success bool)
	RecordCacheLookup(hit bool)
	IncActive()
	DecActive()
}

// Nop is a Recorder that records nothing.
type Nop struct{}

func (Nop) RecordSolve(string, string, time.Duration, bool) {}
func (Nop) RecordError(string, string) {}
func (Nop) RecordInvocation(string, string, time.Duration) {}
func (Nop) RecordRender(bool) {}
func (Nop) RecordCacheLookup(bool) {}
func (Nop) IncActive() {}
func (Nop) DecActive() {}

// PrometheusExporter exports solver metrics in Prometheus format.
type PrometheusExporter struct {
	registry *prometheus.Registry

	solveLatency  *prometheus.HistogramVec
	solveRequests *prometheus.CounterVec
	solveActive   prometheus.Gauge
	solveErrors   *prometheus.CounterVec

	invocations       *prometheus.CounterVec
	invocationLatency *prometheus.HistogramVec

	renders     *prometheus.CounterVec
	cacheLookup *prometheus.CounterVec
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64

	// ProcessCollectors adds the Go runtime and process collectors.
	ProcessCollectors bool
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter.
func NewPrometheusExporter(cfg Config) *PrometheusExporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &PrometheusExporter{registry: registry}

	e.solveLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "eyemath",
			Subsystem: "solver",
			Name:      "solve_latency_seconds",
			Help:      "Solve request latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"operation", "path"},
	)

	e.solveRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eyemath",
			Subsystem: "solver",
			Name:      "solve_requests_total",
			Help:      "Total number of solve requests",
		},
		[]string{"operation", "path", "status"},
	)

	e.solveActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "eyemath",
			Subsystem: "solver",
			Name:      "solve_active",
			Help:      "Number of solve requests in flight",
		},
	)

	e.solveErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eyemath",
			Subsystem: "solver",
			Name:      "solve_errors_total",
			Help:      "Total number of failed solves by error class",
		},
		[]string{"operation", "error_class"},
	)

	e.invocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eyemath",
			Subsystem: "backend",
			Name:      "invocations_total",
			Help:      "Total number of backend invocations by final state",
		},
		[]string{"operation", "state"},
	)

	e.invocationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "eyemath",
			Subsystem: "backend",
			Name:      "invocation_latency_seconds",
			Help:      "Backend invocation latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"operation"},
	)

	e.renders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eyemath",
			Subsystem: "render",
			Name:      "calls_total",
			Help:      "Total number of render calls",
		},
		[]string{"status"},
	)

	e.cacheLookup = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eyemath",
			Subsystem: "render",
			Name:      "cache_lookups_total",
			Help:      "Render URL cache lookups",
		},
		[]string{"result"},
	)

	registry.MustRegister(
		e.solveLatency,
		e.solveRequests,
		e.solveActive,
		e.solveErrors,
		e.invocations,
		e.invocationLatency,
		e.renders,
		e.cacheLookup,
	)
	if cfg.ProcessCollectors {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return e
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordSolve records one finished solve.
func (e *PrometheusExporter) RecordSolve(operation, path string, latency time.Duration, success bool) {
	e.solveRequests.WithLabelValues(operation, path, status(success)).Inc()
	e.solveLatency.WithLabelValues(operation, path).Observe(latency.Seconds())
}

// RecordError records a failed solve by error class.
func (e *PrometheusExporter) RecordError(operation, class string) {
	e.solveErrors.WithLabelValues(operation, class).Inc()
}

// RecordInvocation records a backend invocation that reached state.
func (e *PrometheusExporter) RecordInvocation(operation, state string, latency time.Duration) {
	e.invocations.WithLabelValues(operation, state).Inc()
	e.invocationLatency.WithLabelValues(operation).Observe(latency.Seconds())
}

// RecordRender records one render call.
func (e *PrometheusExporter) RecordRender(success bool) {
	e.renders.WithLabelValues(status(success)).Inc()
}

// RecordCacheLookup records a render cache hit or miss.
func (e *PrometheusExporter) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	e.cacheLookup.WithLabelValues(result).Inc()
}

// IncActive marks a solve as started.
func (e *PrometheusExporter) IncActive() { e.solveActive.Inc() }

// DecActive marks a solve as finished.
func (e *PrometheusExporter) DecActive() { e.solveActive.Dec() }

// Handler returns the HTTP handler for the metrics endpoint.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// ServeHTTP implements http.Handler for the metrics endpoint.
func (e *PrometheusExporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.Handler().ServeHTTP(w, r)
}

// Registry returns the Prometheus registry.
func (e *PrometheusExporter) Registry() *prometheus.Registry {
	return e.registry
}
