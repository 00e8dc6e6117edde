package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestFlowMetricsCountsByLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewFlowMetrics(reg)
	m.Webhook("paystack", "applied")
	m.Webhook("paystack", "applied")
	m.Refund("bobpay", "failed")
	m.Settlement("wallet_credit")
	m.Anomaly("")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "orderflow_webhook_events_total", "source", "paystack"); err != nil || got != 2 {
		t.Fatalf("expected 2 paystack webhooks, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "orderflow_refunds_total", "result", "failed"); err != nil || got != 1 {
		t.Fatalf("expected 1 failed refund, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "orderflow_anomalies_total", "kind", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected empty kind normalized to unknown, got %f err=%v", got, err)
	}
}

func TestNilFlowMetricsIsSafe(t *testing.T) {
	var m *FlowMetrics
	m.Webhook("courier", "ignored")
	m.Settlement("direct_bank_transfer")
	NewFlowMetrics(nil).Refund("paystack", "success")
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewFlowMetrics(reg).Settlement("wallet_credit")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "orderflow_settlements_total") {
		t.Fatalf("expected settlements metric in output, got %s", body)
	}
}
