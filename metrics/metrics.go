// Package metrics holds the Prometheus instruments shared by the export
// pipeline and the in-process engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ndvi"

// Metrics holds the counters, histograms, and gauges of a run.
type Metrics struct {
	ExportsSubmitted *prometheus.CounterVec // labels: engine, outcome={accepted,rejected}
	MonthsPlanned    prometheus.Gauge

	// In-process engine.
	LocalOperations     *prometheus.CounterVec // labels: state
	LocalExportDuration prometheus.Histogram
	LocalQueueDepth     prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		ExportsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_submitted_total",
			Help:      "Export submissions by engine and outcome.",
		}, []string{"engine", "outcome"}),
		MonthsPlanned: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "months_planned",
			Help:      "Number of monthly composites planned by the last run.",
		}),
		LocalOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "local_operations_total",
			Help:      "Finished in-process export operations by final state.",
		}, []string{"state"}),
		LocalExportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "local_export_duration_seconds",
			Help:      "Time to evaluate and write one in-process export.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		LocalQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "local_queue_depth",
			Help:      "In-process exports accepted but not yet finished.",
		}),
	}
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	reg.MustRegister(
		m.ExportsSubmitted,
		m.MonthsPlanned,
		m.LocalOperations,
		m.LocalExportDuration,
		m.LocalQueueDepth,
	)
	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
