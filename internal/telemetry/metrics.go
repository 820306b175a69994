// Package telemetry exposes Prometheus collectors for catalogue loads and
// view builds on a dedicated registry.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dashboard"

// File outcomes recorded by the loader.
const (
	OutcomeLoaded      = "loaded"
	OutcomeEmpty       = "empty"
	OutcomeFetchError  = "fetch_error"
	OutcomeDecodeError = "decode_error"
)

// Metrics groups every collector. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	files        *prometheus.CounterVec
	loads        *prometheus.CounterVec
	loadDuration prometheus.Histogram
	views        *prometheus.CounterVec
	viewWarnings *prometheus.CounterVec
	viewDuration *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loader",
			Name:      "files_total",
			Help:      "Files processed by the catalogue loader, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loader",
			Name:      "builds_total",
			Help:      "Catalogue builds, by source and result.",
		}, []string{"source", "result"}),
		loadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "loader",
			Name:      "build_duration_seconds",
			Help:      "Wall time of a catalogue build.",
			Buckets:   []float64{.25, .5, 1, 2, 5, 10, 30, 60},
		}),
		views: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "views",
			Name:      "builds_total",
			Help:      "Program view builds.",
		}, []string{"program"}),
		viewWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "views",
			Name:      "warnings_total",
			Help:      "Warnings attached to program views.",
		}, []string{"program"}),
		viewDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "views",
			Name:      "build_duration_seconds",
			Help:      "Wall time of a program view build.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"program"}),
	}
	m.registry.MustRegister(
		m.files, m.loads, m.loadDuration,
		m.views, m.viewWarnings, m.viewDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveFile counts one processed file.
func (m *Metrics) ObserveFile(kind, outcome string) {
	if m == nil {
		return
	}
	m.files.WithLabelValues(kind, outcome).Inc()
}

// ObserveLoad records a finished catalogue build.
func (m *Metrics) ObserveLoad(source, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.loads.WithLabelValues(source, result).Inc()
	m.loadDuration.Observe(d.Seconds())
}

// ObserveView records a program view build and its warning count.
func (m *Metrics) ObserveView(program string, d time.Duration, warnings int) {
	if m == nil {
		return
	}
	m.views.WithLabelValues(program).Inc()
	m.viewDuration.WithLabelValues(program).Observe(d.Seconds())
	if warnings > 0 {
		m.viewWarnings.WithLabelValues(program).Add(float64(warnings))
	}
}
