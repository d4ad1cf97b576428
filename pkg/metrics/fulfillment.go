package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FulfillmentMetrics covers carrier calls, notification dispatch, order
// transitions and payment webhooks.
type FulfillmentMetrics struct {
	carrierCalls    *prometheus.CounterVec
	carrierLatency  *prometheus.HistogramVec
	notifications   *prometheus.CounterVec
	notifyDropped   prometheus.Counter
	transitions     *prometheus.CounterVec
	webhookOutcomes *prometheus.CounterVec
}

// NewFulfillmentMetrics registers the fulfillment metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewFulfillmentMetrics(reg prometheus.Registerer) *FulfillmentMetrics {
	if reg == nil {
		return &FulfillmentMetrics{}
	}
	carrierCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "carrier_calls_total",
		Help: "Carrier API calls by operation and outcome.",
	}, []string{"operation", "outcome"})
	carrierLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "carrier_call_duration_seconds",
		Help:    "Carrier API call latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_dispatched_total",
		Help: "Notification provider attempts by provider and outcome.",
	}, []string{"provider", "outcome"})
	notifyDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifications_dropped_total",
		Help: "Notifications dropped because the dispatch queue was full.",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Applied order status transitions.",
	}, []string{"from", "to"})
	webhookOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhooks_total",
		Help: "Payment webhook deliveries by event and outcome.",
	}, []string{"event", "outcome"})
	reg.MustRegister(carrierCalls, carrierLatency, notifications, notifyDropped, transitions, webhookOutcomes)
	return &FulfillmentMetrics{
		carrierCalls:    carrierCalls,
		carrierLatency:  carrierLatency,
		notifications:   notifications,
		notifyDropped:   notifyDropped,
		transitions:     transitions,
		webhookOutcomes: webhookOutcomes,
	}
}

// ObserveCarrierCall records one carrier API call.
func (m *FulfillmentMetrics) ObserveCarrierCall(operation, outcome string, duration time.Duration) {
	if m == nil || m.carrierCalls == nil {
		return
	}
	operation = normalizeLabel(operation)
	m.carrierCalls.WithLabelValues(operation, normalizeLabel(outcome)).Inc()
	m.carrierLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// IncNotification records one provider attempt.
func (m *FulfillmentMetrics) IncNotification(provider, outcome string) {
	if m == nil || m.notifications == nil {
		return
	}
	m.notifications.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

// IncNotificationDropped records a notification rejected by a full queue.
func (m *FulfillmentMetrics) IncNotificationDropped() {
	if m == nil || m.notifyDropped == nil {
		return
	}
	m.notifyDropped.Inc()
}

// IncTransition records an applied order status change.
func (m *FulfillmentMetrics) IncTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

// IncWebhook records a payment webhook delivery.
func (m *FulfillmentMetrics) IncWebhook(event, outcome string) {
	if m == nil || m.webhookOutcomes == nil {
		return
	}
	m.webhookOutcomes.WithLabelValues(normalizeLabel(event), normalizeLabel(outcome)).Inc()
}
