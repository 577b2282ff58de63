package httpclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the dispatcher collectors. A nil *Metrics records nothing.
type Metrics struct {
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	cancellations *prometheus.CounterVec
	pending       prometheus.Gauge
}

// NewMetrics registers the dispatcher collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gochef",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Requests issued by the client, by dispatcher, method and outcome",
		}, []string{"dispatcher", "method", "outcome"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gochef",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Round-trip time of client requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"dispatcher"}),

		cancellations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gochef",
			Subsystem: "http",
			Name:      "cancellations_total",
			Help:      "Requests cancelled before completion, by cause",
		}, []string{"reason"}),

		pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "gochef",
			Subsystem: "http",
			Name:      "pending_requests",
			Help:      "Requests currently in flight across all dispatchers",
		}),
	}
}

func (m *Metrics) observe(dispatcher, method, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(dispatcher, method, outcome).Inc()
	m.duration.WithLabelValues(dispatcher).Observe(seconds)
}

func (m *Metrics) cancelled(reason string) {
	if m == nil {
		return
	}
	m.cancellations.WithLabelValues(reason).Inc()
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

// Track reports the registry's pending count on the gauge.
func (m *Metrics) Track(r *Registry) {
	if m == nil {
		return
	}
	r.mu.Lock()
	r.onChange = m.setPending
	r.mu.Unlock()
}
