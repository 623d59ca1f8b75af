package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the prediction service.
type Metrics struct {
	PredictionsTotal      *prometheus.CounterVec
	PredictionDurationMs  *prometheus.HistogramVec
	OutcomesTotal         *prometheus.CounterVec
	AuditAppendFailures   prometheus.Counter
	RequestLogWriteErrors prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PredictionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sleep_predictions_total",
			Help: "Total prediction requests by source and result status.",
		}, []string{"source", "status"}),

		PredictionDurationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sleep_prediction_duration_ms",
			Help:    "End-to-end prediction handling time in milliseconds.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250},
		}, []string{"source"}),

		OutcomesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sleep_prediction_outcomes_total",
			Help: "Successful predictions by outcome kind.",
		}, []string{"kind"}),

		AuditAppendFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "sleep_audit_append_failures_total",
			Help: "Audit log appends that failed.",
		}),

		RequestLogWriteErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "sleep_request_log_write_errors_total",
			Help: "Request log rows that could not be stored.",
		}),
	}
}

// RecordPrediction records one handled request.
func (m *Metrics) RecordPrediction(source, status, kind string, durationMs float64) {
	if m == nil {
		return
	}
	m.PredictionsTotal.WithLabelValues(source, status).Inc()
	m.PredictionDurationMs.WithLabelValues(source).Observe(durationMs)
	if kind != "" {
		m.OutcomesTotal.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) RecordAuditFailure() {
	if m == nil {
		return
	}
	m.AuditAppendFailures.Inc()
}

func (m *Metrics) RecordRequestLogError() {
	if m == nil {
		return
	}
	m.RequestLogWriteErrors.Inc()
}
