package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application. Services treat a
// nil *Metrics as disabled, so unit tests can pass nil and avoid duplicate
// collector registration.
type Metrics struct {
	UnitsRegistered    prometheus.Counter
	BlocksAppended     prometheus.Counter
	Verifications      *prometheus.CounterVec
	FailedAttempts     *prometheus.CounterVec
	AnomalyTransitions *prometheus.CounterVec
	VerifyDuration     prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		UnitsRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meditrace_units_registered_total",
			Help: "Total number of units registered",
		}),
		BlocksAppended: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meditrace_ledger_blocks_appended_total",
			Help: "Total number of blocks appended to the ledger",
		}),
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "meditrace_verifications_total",
			Help: "Verification verdicts by status",
		}, []string{"status"}),
		FailedAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "meditrace_failed_attempts_total",
			Help: "Recorded failed verification attempts by type",
		}, []string{"attempt_type"}),
		AnomalyTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "meditrace_anomaly_transitions_total",
			Help: "Custody transitions flagged by the anomaly detector, by severity",
		}, []string{"severity"}),
		VerifyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "meditrace_verify_duration_seconds",
			Help:    "End-to-end verification latency",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// IncVerification records a verdict by status. Nil-safe.
func (m *Metrics) IncVerification(status string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(status).Inc()
}

// IncFailedAttempt records a failed attempt by type. Nil-safe.
func (m *Metrics) IncFailedAttempt(attemptType string) {
	if m == nil {
		return
	}
	m.FailedAttempts.WithLabelValues(attemptType).Inc()
}

// IncAnomaly records a flagged transition by severity. Nil-safe.
func (m *Metrics) IncAnomaly(severity string) {
	if m == nil {
		return
	}
	m.AnomalyTransitions.WithLabelValues(severity).Inc()
}

// IncUnitsRegistered bumps the registration counter. Nil-safe.
func (m *Metrics) IncUnitsRegistered() {
	if m == nil {
		return
	}
	m.UnitsRegistered.Inc()
}

// IncBlocksAppended bumps the ledger append counter. Nil-safe.
func (m *Metrics) IncBlocksAppended() {
	if m == nil {
		return
	}
	m.BlocksAppended.Inc()
}

// ObserveVerifyDuration records verification latency. Nil-safe.
func (m *Metrics) ObserveVerifyDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.VerifyDuration.Observe(d.Seconds())
}
