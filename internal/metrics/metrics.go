package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels scans that completed.
	OutcomeSuccess = "success"
	// OutcomeEmpty labels scans that found nothing to analyse.
	OutcomeEmpty = "empty"
	// OutcomeRejected labels triggers refused because a scan was in flight.
	OutcomeRejected = "rejected"
	// OutcomeError labels scans that moved the scanner into the error state.
	OutcomeError = "error"
)

var (
	scansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_triage",
			Name:      "scans_total",
			Help:      "Total number of scan triggers handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	scanDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mirador_triage",
			Name:      "scan_seconds",
			Help:      "Scan latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	anomaliesDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_triage",
			Name:      "anomalies_detected_total",
			Help:      "Anomalies detected across scans, partitioned by kind.",
		},
		[]string{"kind"},
	)

	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_triage",
			Name:      "decisions_total",
			Help:      "Gated decisions, partitioned by action and execution status.",
		},
		[]string{"action", "status"},
	)

	auditFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mirador_triage",
			Name:      "audit_failures_total",
			Help:      "Audit appends that failed.",
		},
	)
)

// Register attaches mirador-triage collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		scansTotal,
		scanDurationSeconds,
		anomaliesDetectedTotal,
		decisionsTotal,
		auditFailuresTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveScan records a scan duration and outcome label.
func ObserveScan(duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeSuccess, OutcomeEmpty, OutcomeRejected, OutcomeError:
	default:
		outcome = OutcomeSuccess
	}
	scansTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeRejected {
		return
	}
	if duration < 0 {
		duration = 0
	}
	scanDurationSeconds.Observe(duration.Seconds())
}

// ObserveAnomaly counts a detected anomaly.
func ObserveAnomaly(kind string) {
	anomaliesDetectedTotal.WithLabelValues(kind).Inc()
}

// ObserveDecision counts a gated decision.
func ObserveDecision(action, status string) {
	decisionsTotal.WithLabelValues(action, status).Inc()
}

// ObserveAuditFailure counts a failed audit append.
func ObserveAuditFailure() {
	auditFailuresTotal.Inc()
}
