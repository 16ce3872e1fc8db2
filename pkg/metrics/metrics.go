// Package metrics defines the Prometheus collectors used across the service
// and exposes an HTTP handler for scraping.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestsInFlight  prometheus.Gauge
	WorkflowRunsTotal     *prometheus.CounterVec
	WorkflowDuration      prometheus.Histogram
	WorkflowStageDuration *prometheus.HistogramVec
	TopicsDetectedTotal   *prometheus.CounterVec
	CacheHitsTotal        prometheus.Counter
	CacheMissesTotal      prometheus.Counter
	CorpusDocuments       *prometheus.GaugeVec
	CircuitBreakerState   *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		WorkflowRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "digest_workflow_runs_total",
				Help: "Workflow invocations by outcome (ok, error).",
			},
			[]string{"status"},
		),
		WorkflowDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "digest_workflow_duration_seconds",
				Help:    "End-to-end workflow latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		WorkflowStageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "digest_stage_duration_seconds",
				Help:    "Per-stage latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"stage", "status"},
		),
		TopicsDetectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "digest_topics_detected_total",
				Help: "Detected topics by name.",
			},
			[]string{"topic"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "digest_cache_hits_total",
				Help: "Total number of response cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "digest_cache_misses_total",
				Help: "Total number of response cache misses.",
			},
		),
		CorpusDocuments: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "corpus_documents",
				Help: "Documents loaded into the document store per topic.",
			},
			[]string{"topic"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.WorkflowRunsTotal,
		m.WorkflowDuration,
		m.WorkflowStageDuration,
		m.TopicsDetectedTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CorpusDocuments,
		m.CircuitBreakerState,
	)

	return m
}

// ObserveStage records one stage execution.
func (m *Metrics) ObserveStage(stage string, elapsed time.Duration, err error) {
	m.WorkflowStageDuration.WithLabelValues(stage, outcome(err)).Observe(elapsed.Seconds())
}

// ObserveRun records one full workflow invocation.
func (m *Metrics) ObserveRun(topic string, elapsed time.Duration, err error) {
	m.WorkflowRunsTotal.WithLabelValues(outcome(err)).Inc()
	m.WorkflowDuration.Observe(elapsed.Seconds())
	if err == nil {
		m.TopicsDetectedTotal.WithLabelValues(topic).Inc()
	}
}

// ObserveCache counts a cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	if hit {
		m.CacheHitsTotal.Inc()
		return
	}
	m.CacheMissesTotal.Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
