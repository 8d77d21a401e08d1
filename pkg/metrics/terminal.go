package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TerminalMetrics records request metadata for the hobex gateway.
type TerminalMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewTerminalMetrics registers the gateway metrics on the provided registerer.
func NewTerminalMetrics(reg prometheus.Registerer) *TerminalMetrics {
	if reg == nil {
		return &TerminalMetrics{}
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "terminal_requests_total",
		Help: "Terminal gateway requests by operation and outcome.",
	}, []string{"operation", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "terminal_request_duration_seconds",
		Help:    "Duration of terminal gateway requests in seconds.",
		Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 90},
	}, []string{"operation"})
	reg.MustRegister(requests, duration)
	return &TerminalMetrics{
		requests: requests,
		duration: duration,
	}
}

// IncRequest counts a finished gateway call. Outcome is one of
// "ok", "declined", "transport_error".
func (m *TerminalMetrics) IncRequest(operation, outcome string) {
	if m == nil || m.requests == nil {
		return
	}
	m.requests.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

// ObserveDuration records the round-trip duration for the operation.
func (m *TerminalMetrics) ObserveDuration(operation string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}
