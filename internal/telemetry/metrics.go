// Package telemetry holds the Prometheus instrumentation for the
// prediction and alert dispatch engine.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Evaluation cycle outcomes.
const (
	CycleOutcomeOK        = "ok"
	CycleOutcomeDuplicate = "duplicate"
	CycleOutcomeDataGap   = "data_gap"
	CycleOutcomeFailed    = "failed"
)

// Dispatch outcomes.
const (
	DispatchOutcomeSent    = "sent"
	DispatchOutcomeRetried = "retried"
	DispatchOutcomeFailed  = "failed"
)

// Metrics holds the Prometheus counters and histograms for the engine.
type Metrics struct {
	EvaluationCycles *prometheus.CounterVec   // labels: horizon, outcome
	ModelFailures    *prometheus.CounterVec   // labels: model
	AlertsQueued     *prometheus.CounterVec   // labels: channel
	DispatchOutcomes *prometheus.CounterVec   // labels: channel, outcome
	DispatchDuration *prometheus.HistogramVec // labels: channel
	PendingEvents    prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		EvaluationCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floodsense",
			Name:      "evaluation_cycles_total",
			Help:      "Evaluation cycles by horizon and outcome.",
		}, []string{"horizon", "outcome"}),
		ModelFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floodsense",
			Name:      "model_failures_total",
			Help:      "Scoring models excluded from ensemble runs.",
		}, []string{"model"}),
		AlertsQueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floodsense",
			Name:      "alerts_queued_total",
			Help:      "Alert events queued for dispatch by channel.",
		}, []string{"channel"}),
		DispatchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floodsense",
			Name:      "dispatch_outcomes_total",
			Help:      "Notification dispatch attempts by channel and outcome.",
		}, []string{"channel", "outcome"}),
		DispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "floodsense",
			Name:      "dispatch_attempt_duration_seconds",
			Help:      "Duration of individual notification send attempts.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}, []string{"channel"}),
		PendingEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "floodsense",
			Name:      "pending_alert_events",
			Help:      "Alert events currently awaiting dispatch.",
		}),
	}
}

// NewMetrics creates and registers all engine metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.EvaluationCycles,
		m.ModelFailures,
		m.AlertsQueued,
		m.DispatchOutcomes,
		m.DispatchDuration,
		m.PendingEvents,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics across tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
