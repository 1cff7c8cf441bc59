package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CallbackMetrics counts gateway callback outcomes.
type CallbackMetrics struct {
	outcomes *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewCallbackMetrics registers the callback metrics on the provided registerer.
func NewCallbackMetrics(reg prometheus.Registerer) *CallbackMetrics {
	if reg == nil {
		return &CallbackMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mpesa_callback_outcomes_total",
		Help: "M-Pesa STK callbacks by reconciliation outcome.",
	}, []string{"outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mpesa_callback_duration_seconds",
		Help:    "Time spent reconciling M-Pesa STK callbacks.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"outcome"})
	reg.MustRegister(outcomes, duration)
	return &CallbackMetrics{outcomes: outcomes, duration: duration}
}

// Observe records one reconciled callback.
func (c *CallbackMetrics) Observe(outcome string, elapsed time.Duration) {
	if c == nil || c.outcomes == nil {
		return
	}
	label := normalizeLabel(outcome)
	c.outcomes.WithLabelValues(label).Inc()
	c.duration.WithLabelValues(label).Observe(elapsed.Seconds())
}
