// Package metric exposes Prometheus instrumentation for the gateway.
// All collectors live in a dedicated registry so tests and embedded
// servers never collide over the global default.
package metric

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/responsa-ai/responsa/pkg/models"
)

// Metrics holds the gateway's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	UpstreamErrors  *prometheus.CounterVec
	DatasetRows     prometheus.Gauge
	Reloads         prometheus.Counter
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	TokensTotal     *prometheus.CounterVec
}

// New creates a Metrics instance backed by a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "responsa",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests handled, by route and status code",
			},
			[]string{"route", "status"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "responsa",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds, by route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),

		UpstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "responsa",
				Subsystem: "upstream",
				Name:      "errors_total",
				Help:      "Total upstream failures, by dependency",
			},
			[]string{"dependency"},
		),

		DatasetRows: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "responsa",
				Subsystem: "dataset",
				Name:      "rows",
				Help:      "Number of rows in the loaded dataset snapshot",
			},
		),

		Reloads: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "responsa",
				Subsystem: "dataset",
				Name:      "reloads_total",
				Help:      "Total successful cache invalidations",
			},
		),

		CacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "responsa",
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Total answer cache hits",
			},
		),

		CacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "responsa",
				Subsystem: "cache",
				Name:      "misses_total",
				Help:      "Total answer cache misses",
			},
		),

		TokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "responsa",
				Subsystem: "inference",
				Name:      "tokens_total",
				Help:      "Total tokens consumed, by model and kind",
			},
			[]string{"model", "kind"},
		),
	}

	m.registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.UpstreamErrors,
		m.DatasetRows,
		m.Reloads,
		m.CacheHits,
		m.CacheMisses,
		m.TokensTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns an http.Handler serving the registry in Prometheus format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest counts one handled request and observes its duration.
func (m *Metrics) RecordRequest(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// RecordUpstreamError counts one failure of the named dependency.
func (m *Metrics) RecordUpstreamError(dependency string) {
	if m == nil {
		return
	}
	m.UpstreamErrors.WithLabelValues(dependency).Inc()
}

// SetDatasetRows records the size of the loaded snapshot.
func (m *Metrics) SetDatasetRows(n int) {
	if m == nil {
		return
	}
	m.DatasetRows.Set(float64(n))
}

// RecordReload counts one successful invalidation.
func (m *Metrics) RecordReload() {
	if m == nil {
		return
	}
	m.Reloads.Inc()
}

// RecordCacheHit counts one answer cache hit.
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

// RecordCacheMiss counts one answer cache miss.
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}

// RecordTokens counts prompt and completion tokens for a model.
func (m *Metrics) RecordTokens(model string, u models.Usage) {
	if m == nil {
		return
	}
	m.TokensTotal.WithLabelValues(model, "prompt").Add(float64(u.PromptTokens))
	m.TokensTotal.WithLabelValues(model, "completion").Add(float64(u.CompletionTokens))
}
