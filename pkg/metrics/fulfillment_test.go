package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFulfillmentMetricsRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewFulfillmentMetrics(reg)

	m.ObserveCarrierCall("fetch_waybill", "ok", 120*time.Millisecond)
	m.ObserveCarrierCall("fetch_waybill", "ok", 80*time.Millisecond)
	m.IncNotification("smtp", "failed")
	m.IncNotificationDropped()
	m.IncTransition("placed", "shipped")
	m.IncWebhook("payment.captured", "duplicate")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "carrier_calls_total", "operation", "fetch_waybill")
	require.NoError(t, err)
	assert.Equal(t, float64(2), got)

	sum, err := fetchHistogramSum(mfs, "carrier_call_duration_seconds", "operation", "fetch_waybill")
	require.NoError(t, err)
	assert.InDelta(t, 0.2, sum, 0.001)

	got, err = fetchCounterValue(mfs, "notifications_dispatched_total", "provider", "smtp")
	require.NoError(t, err)
	assert.Equal(t, float64(1), got)

	got, err = fetchCounterValue(mfs, "order_transitions_total", "to", "shipped")
	require.NoError(t, err)
	assert.Equal(t, float64(1), got)

	got, err = fetchCounterValue(mfs, "payment_webhooks_total", "outcome", "duplicate")
	require.NoError(t, err)
	assert.Equal(t, float64(1), got)

	dropped := findMetricFamily(mfs, "notifications_dropped_total")
	require.NotNil(t, dropped)
	assert.Equal(t, float64(1), dropped.GetMetric()[0].GetCounter().GetValue())
}

func TestFulfillmentMetricsNilSafe(t *testing.T) {
	var m *FulfillmentMetrics
	m.ObserveCarrierCall("x", "ok", time.Second)
	m.IncNotification("smtp", "ok")
	m.IncNotificationDropped()
	m.IncTransition("a", "b")
	m.IncWebhook("e", "o")

	noop := NewFulfillmentMetrics(nil)
	noop.IncTransition("a", "b")
}
