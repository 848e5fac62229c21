// Package metrics exposes Prometheus collectors for the extraction pipeline.
//
// A nil *Metrics is valid: every method is a no-op, so the scheduler and the
// Gemini adapter run unchanged in tests and in the CLI when no registry is wired.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ec8a"

// Extraction outcomes used as the result label.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

// Metrics holds the pipeline collectors.
type Metrics struct {
	RecordsSubmitted   prometheus.Counter
	Extractions        *prometheus.CounterVec
	ExtractionDuration prometheus.Histogram
	InFlight           prometheus.Gauge
	Pending            prometheus.Gauge
	ModelTokens        *prometheus.CounterVec
}

// New registers the collectors on reg. Use prometheus.NewRegistry() in tests to
// avoid duplicate registration against the default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RecordsSubmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_submitted_total",
			Help:      "Form images accepted for extraction",
		}),
		Extractions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Extraction calls by outcome",
		}, []string{"result"}),
		ExtractionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "Wall time of one extraction call",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "extractions_in_flight",
			Help:      "Records currently in processing",
		}),
		Pending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "extractions_pending",
			Help:      "Records waiting for an admission slot",
		}),
		ModelTokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_tokens_total",
			Help:      "Tokens reported by the model, by direction",
		}, []string{"direction"}),
	}
}

// Submitted records n accepted images.
func (m *Metrics) Submitted(n int) {
	if m == nil {
		return
	}
	m.RecordsSubmitted.Add(float64(n))
	m.Pending.Add(float64(n))
}

// Admitted moves one record from pending to in flight.
func (m *Metrics) Admitted() {
	if m == nil {
		return
	}
	m.Pending.Dec()
	m.InFlight.Inc()
}

// Skipped drops a pending record that was deleted before admission.
func (m *Metrics) Skipped() {
	if m == nil {
		return
	}
	m.Pending.Dec()
	m.Extractions.WithLabelValues(ResultSkipped).Inc()
}

// Finished records the outcome of one admitted extraction.
func (m *Metrics) Finished(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.InFlight.Dec()
	m.Extractions.WithLabelValues(result).Inc()
	m.ExtractionDuration.Observe(elapsed.Seconds())
}

// Tokens records model token usage.
func (m *Metrics) Tokens(prompt, candidates int32) {
	if m == nil {
		return
	}
	if prompt > 0 {
		m.ModelTokens.WithLabelValues("prompt").Add(float64(prompt))
	}
	if candidates > 0 {
		m.ModelTokens.WithLabelValues("candidates").Add(float64(candidates))
	}
}
