package reflection

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Turn outcomes recorded by Metrics.
const (
	OutcomeOK             = "ok"
	OutcomeInvalidInput   = "invalid_input"
	OutcomeNotFound       = "not_found"
	OutcomeResponderError = "responder_error"
	OutcomeStorageError   = "storage_error"
)

// Metrics holds the orchestrator's Prometheus collectors.
type Metrics struct {
	Turns            *prometheus.CounterVec
	ResponderLatency prometheus.Histogram
	VersesResolved   prometheus.Counter
}

// NewMetrics registers the orchestrator collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reflect",
			Name:      "turns_total",
			Help:      "Submitted conversation turns by outcome.",
		}, []string{"outcome"}),
		ResponderLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "reflect",
			Name:      "responder_duration_seconds",
			Help:      "Latency of AI responder calls.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}),
		VersesResolved: f.NewCounter(prometheus.CounterOpts{
			Namespace: "reflect",
			Name:      "verses_resolved_total",
			Help:      "Turns that surfaced a verse.",
		}),
	}
}

func (m *Metrics) turn(outcome string) {
	if m != nil {
		m.Turns.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) observeResponder(seconds float64) {
	if m != nil {
		m.ResponderLatency.Observe(seconds)
	}
}

func (m *Metrics) verseResolved() {
	if m != nil {
		m.VersesResolved.Inc()
	}
}
