package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookDeliveryMetrics tracks dispatcher outcomes per terminal state.
type WebhookDeliveryMetrics struct {
	attempts *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewWebhookDeliveryMetrics registers delivery metrics on the provided registerer.
func NewWebhookDeliveryMetrics(reg prometheus.Registerer) *WebhookDeliveryMetrics {
	if reg == nil {
		return &WebhookDeliveryMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_delivery_attempts_total",
		Help: "Webhook delivery attempts by outcome.",
	}, []string{"outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_delivery_duration_seconds",
		Help:    "Duration of webhook HTTP requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	reg.MustRegister(attempts, latency)
	return &WebhookDeliveryMetrics{attempts: attempts, latency: latency}
}

// ObserveAttempt records one delivery attempt with its outcome label.
func (m *WebhookDeliveryMetrics) ObserveAttempt(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	label := normalizeLabel(outcome)
	if m.attempts != nil {
		m.attempts.WithLabelValues(label).Inc()
	}
	if m.latency != nil {
		m.latency.WithLabelValues(label).Observe(duration.Seconds())
	}
}
