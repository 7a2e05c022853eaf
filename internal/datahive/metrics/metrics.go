package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for reconciliation runs.
type Metrics struct {
	// Query attempts by source and result ("ok", "error", "timeout")
	QueryAttempts *prometheus.CounterVec

	// Chunks that exhausted every attempt, by source
	QueryFailures *prometheus.CounterVec

	// Per-chunk latency including retries
	ChunkLatency *prometheus.HistogramVec

	// Rows dropped by the decoder, by source
	RowsRejected *prometheus.CounterVec

	// Consolidated results by class and outcome ("found", "not_found", "error")
	Results *prometheus.CounterVec

	// Side-effect actions by code and result ("applied", "skipped", "failed")
	SideEffects *prometheus.CounterVec

	// Whole-run latency by class
	RunLatency *prometheus.HistogramVec
}

// New registers the metrics with the default registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics with reg. Tests pass a fresh registry.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		QueryAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "recon_query_attempts_total",
			Help: "Total source query attempts by source and result",
		}, []string{"source", "result"}),

		QueryFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "recon_query_failures_total",
			Help: "Chunks that failed after exhausting retries, by source",
		}, []string{"source"}),

		ChunkLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recon_query_chunk_duration_seconds",
			Help:    "Duration of one chunk lookup including retries",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 90, 270},
		}, []string{"source"}),

		RowsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "recon_rows_rejected_total",
			Help: "Rows skipped because they did not match the source schema",
		}, []string{"source"}),

		Results: f.NewCounterVec(prometheus.CounterOpts{
			Name: "recon_results_total",
			Help: "Consolidated results by identifier class and outcome",
		}, []string{"class", "outcome"}),

		SideEffects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "recon_side_effects_total",
			Help: "Side-effect actions by status code and result",
		}, []string{"code", "result"}),

		RunLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recon_run_duration_seconds",
			Help:    "Duration of a full reconciliation run",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"class"}),
	}
}

// IncrementAttempt records one query attempt.
func (m *Metrics) IncrementAttempt(source, result string) {
	if m != nil {
		m.QueryAttempts.WithLabelValues(source, result).Inc()
	}
}

// IncrementFailure records a chunk that exhausted its retries.
func (m *Metrics) IncrementFailure(source string) {
	if m != nil {
		m.QueryFailures.WithLabelValues(source).Inc()
	}
}

// ObserveChunkLatency records the duration of a chunk lookup.
func (m *Metrics) ObserveChunkLatency(source string, d time.Duration) {
	if m != nil {
		m.ChunkLatency.WithLabelValues(source).Observe(d.Seconds())
	}
}

// IncrementRejectedRow records a row dropped by the decoder.
func (m *Metrics) IncrementRejectedRow(source string) {
	if m != nil {
		m.RowsRejected.WithLabelValues(source).Inc()
	}
}

// IncrementResult records one consolidated result.
func (m *Metrics) IncrementResult(class, outcome string) {
	if m != nil {
		m.Results.WithLabelValues(class, outcome).Inc()
	}
}

// IncrementSideEffect records one side-effect action.
func (m *Metrics) IncrementSideEffect(code, result string) {
	if m != nil {
		m.SideEffects.WithLabelValues(code, result).Inc()
	}
}

// ObserveRunLatency records a full run.
func (m *Metrics) ObserveRunLatency(class string, d time.Duration) {
	if m != nil {
		m.RunLatency.WithLabelValues(class).Observe(d.Seconds())
	}
}
