// Package metrics exports Prometheus metrics for the chat dispatch core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter registers and records the core's instruments on its own registry.
type Exporter struct {
	registry *prometheus.Registry

	turnLatency    *prometheus.HistogramVec
	turns          *prometheus.CounterVec
	retries        *prometheus.CounterVec
	uploadBytes    prometheus.Counter
	pooledSessions prometheus.Gauge
	cleanupSweeps  prometheus.Counter
}

// Config configures the exporter.
type Config struct {
	// Registry to use; a private one is created when nil.
	Registry *prometheus.Registry

	// LatencyBuckets for the turn histogram, in seconds.
	LatencyBuckets []float64
}

// DefaultConfig returns the default exporter configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}
}

// NewExporter creates an Exporter and registers its collectors.
func NewExporter(cfg Config) *Exporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.turnLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatbot_turn_duration_seconds",
		Help:    "Latency of completed chat turns.",
		Buckets: cfg.LatencyBuckets,
	}, []string{"provider"})

	e.turns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatbot_turns_total",
		Help: "Chat turns by provider and outcome.",
	}, []string{"provider", "outcome"})

	e.retries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatbot_send_retries_total",
		Help: "Provider send attempts that failed and were retried.",
	}, []string{"provider"})

	e.uploadBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatbot_upload_bytes_total",
		Help: "Bytes uploaded out-of-band to provider file storage.",
	})

	e.pooledSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatbot_pooled_sessions",
		Help: "Number of live pooled provider sessions.",
	})

	e.cleanupSweeps = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatbot_cleanup_sweeps_scheduled_total",
		Help: "Remote-file cleanup sweeps scheduled.",
	})

	registry.MustRegister(e.turnLatency, e.turns, e.retries, e.uploadBytes, e.pooledSessions, e.cleanupSweeps)
	return e
}

// RecordTurn records one completed (or failed) chat turn.
func (e *Exporter) RecordTurn(providerName string, d time.Duration, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "error"
	}
	e.turns.WithLabelValues(providerName, outcome).Inc()
	if ok {
		e.turnLatency.WithLabelValues(providerName).Observe(d.Seconds())
	}
}

// RecordRetry records one retried send attempt.
func (e *Exporter) RecordRetry(providerName string) {
	e.retries.WithLabelValues(providerName).Inc()
}

// RecordUpload records bytes pushed to provider file storage.
func (e *Exporter) RecordUpload(bytes int64) {
	e.uploadBytes.Add(float64(bytes))
}

// SetPooledSessions records the current pool size.
func (e *Exporter) SetPooledSessions(n int) {
	e.pooledSessions.Set(float64(n))
}

// RecordCleanupScheduled records one armed cleanup sweep.
func (e *Exporter) RecordCleanupScheduled() {
	e.cleanupSweeps.Inc()
}

// ServeHTTP exposes the registry in Prometheus text format.
func (e *Exporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
