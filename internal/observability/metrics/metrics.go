// Package metrics exposes Prometheus metrics for the ingestion service.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles ingestion metrics.
type Metrics struct {
	RunsTotal          *prometheus.CounterVec
	RunDuration        prometheus.Histogram
	ReadingsTotal      *prometheus.CounterVec
	DuplicatesTotal    prometheus.Counter
	ValidationFailures prometheus.Counter
	AlertsTotal        *prometheus.CounterVec
	AuthFailures       *prometheus.CounterVec
}

// New constructs metrics and registers them with the given registerer. A nil
// registerer falls back to the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardiac_ingestion_runs_total",
				Help: "Total ingestion runs by result",
			},
			[]string{"result"},
		),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cardiac_ingestion_run_duration_seconds",
			Help:    "Ingestion run duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		ReadingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardiac_ingestion_readings_total",
				Help: "Total readings by outcome",
			},
			[]string{"outcome"},
		),
		DuplicatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cardiac_ingestion_duplicates_total",
			Help: "Total readings skipped as duplicates",
		}),
		ValidationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cardiac_ingestion_validation_failures_total",
			Help: "Total readings failing validation",
		}),
		AlertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardiac_ingestion_alerts_total",
				Help: "Total alerts stored by source",
			},
			[]string{"source"},
		),
		AuthFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardiac_auth_failures_total",
				Help: "Total authentication failures by manufacturer",
			},
			[]string{"manufacturer"},
		),
	}
	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.ReadingsTotal,
		m.DuplicatesTotal,
		m.ValidationFailures,
		m.AlertsTotal,
		m.AuthFailures,
	)
	return m
}
