package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	next:
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if labels[pair.GetName()] != pair.GetValue() {
					continue next
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.GatewayAttempt("api.example", "retriable")
	m.GatewayAttempt("api.example", "retriable")
	m.EventPublished("sms_topic", nil)
	m.EventPublished("sms_topic", errors.New("broker down"))
	m.Delivery("sms", "delivered")
	m.Sweep("expiry", time.Now(), nil)
	m.LedgerOperation("confirm_charge", nil)

	assert.Equal(t, 2.0, counterValue(t, reg, "giftcert_gateway_attempts_total",
		map[string]string{"host": "api.example", "outcome": "retriable"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "giftcert_events_published_total",
		map[string]string{"topic": "sms_topic", "result": "error"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "giftcert_deliveries_total",
		map[string]string{"channel": "sms", "outcome": "delivered"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "giftcert_reconciliation_sweeps_total",
		map[string]string{"sweep": "expiry", "result": "ok"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "giftcert_ledger_operations_total",
		map[string]string{"operation": "confirm_charge", "result": "ok"}))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.GatewayAttempt("h", "success")
		m.EventPublished("t", nil)
		m.MessageConsumed("t", "ok")
		m.Delivery("telegram", "failed")
		m.Sweep("daily", time.Now(), errors.New("x"))
		m.LedgerOperation("open_charge", nil)
		m.HTTPRequest("GET", "/health", 200, time.Millisecond)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	m.HTTPRequest("GET", "/api/v1/certificates/:id", 200, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `giftcert_http_requests_total{method="GET",route="/api/v1/certificates/:id",status="200"} 1`))
}
