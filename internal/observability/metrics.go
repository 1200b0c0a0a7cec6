// Package observability provides Prometheus metrics for the platform:
// a promauto-constructed struct-of-metrics shape with a consistent
// namespace/subsystem convention, covering health cycles, regressions,
// rollbacks, and the evidence log.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus metric the platform exports.
type Metrics struct {
	// Health check metrics
	HealthChecksTotal   *prometheus.CounterVec
	HealthCheckDuration *prometheus.HistogramVec
	HealthCheckScore    *prometheus.GaugeVec
	ProbeTimeouts       *prometheus.CounterVec

	// Regression detection metrics
	RegressionsDetected *prometheus.CounterVec

	// Business impact metrics
	ImpactAssessmentsTotal *prometheus.CounterVec
	EstimatedLossDollars   *prometheus.GaugeVec

	// Decision / rollback metrics
	RollbackDecisionsTotal  *prometheus.CounterVec
	RollbackExecutionsTotal *prometheus.CounterVec
	RollbackDuration        *prometheus.HistogramVec

	// Evidence log metrics
	EvidenceAppendsTotal       *prometheus.CounterVec
	EvidencePersistFailures    *prometheus.CounterVec
	EvidenceChainVerifications *prometheus.CounterVec

	// Orchestrator cycle metrics
	CycleDuration   prometheus.Histogram
	CyclesTotal     *prometheus.CounterVec
	ActiveRollbacks prometheus.Gauge
}

// New constructs a Metrics instance with every metric registered
// against reg.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "rollback_guard"
	}
	factory := promauto.With(reg)

	return &Metrics{
		HealthChecksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "checks_total",
			Help:      "Total number of health probe executions by component and status",
		}, []string{"component", "status"}),
		HealthCheckDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "check_duration_seconds",
			Help:      "Health probe execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"component"}),
		HealthCheckScore: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "check_score",
			Help:      "Most recent health check score (0-100) by component",
		}, []string{"component"}),
		ProbeTimeouts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "probe_timeouts_total",
			Help:      "Total number of probe executions that exceeded their timeout",
		}, []string{"component"}),

		RegressionsDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "regression",
			Name:      "detected_total",
			Help:      "Total number of regressions detected by metric and method",
		}, []string{"metric", "method"}),

		ImpactAssessmentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "impact",
			Name:      "assessments_total",
			Help:      "Total number of business impact assessments by collector and impact level",
		}, []string{"collector", "impact_level"}),
		EstimatedLossDollars: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "impact",
			Name:      "estimated_loss_dollars",
			Help:      "Most recent estimated loss in dollars by collector",
		}, []string{"collector"}),

		RollbackDecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "decisions_total",
			Help:      "Total number of rollback decisions by urgency and recommendation",
		}, []string{"urgency", "recommended"}),
		RollbackExecutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rollback",
			Name:      "executions_total",
			Help:      "Total number of rollback executions by strategy and final status",
		}, []string{"strategy", "status"}),
		RollbackDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rollback",
			Name:      "duration_seconds",
			Help:      "Rollback execution duration in seconds by strategy",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 900},
		}, []string{"strategy"}),

		EvidenceAppendsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evidence",
			Name:      "appends_total",
			Help:      "Total number of evidence log appends by event type",
		}, []string{"event_type"}),
		EvidencePersistFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evidence",
			Name:      "persist_failures_total",
			Help:      "Total number of evidence events that failed to persist to the durable sink",
		}, []string{"event_type"}),
		EvidenceChainVerifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evidence",
			Name:      "chain_verifications_total",
			Help:      "Total number of evidence chain verifications by outcome",
		}, []string{"intact"}),

		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "cycle_duration_seconds",
			Help:      "Monitoring cycle duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "cycles_total",
			Help:      "Total number of monitoring cycles run by outcome",
		}, []string{"outcome"}),
		ActiveRollbacks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "active_rollbacks",
			Help:      "Number of rollback executions currently in progress",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
