package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orderflow"

// FlowMetrics counts webhook intake and the money-moving effects behind it.
type FlowMetrics struct {
	webhooks    *prometheus.CounterVec
	refunds     *prometheus.CounterVec
	settlements *prometheus.CounterVec
	anomalies   *prometheus.CounterVec
}

// NewFlowMetrics registers the flow counters on the provided registerer.
func NewFlowMetrics(reg prometheus.Registerer) *FlowMetrics {
	if reg == nil {
		return &FlowMetrics{}
	}
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_events_total",
		Help:      "Inbound webhooks by source and outcome.",
	}, []string{"source", "outcome"})
	refunds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refunds_total",
		Help:      "Refund attempts by provider and result.",
	}, []string{"provider", "result"})
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlements_total",
		Help:      "Completed settlements by payout method.",
	}, []string{"method"})
	anomalies := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "anomalies_total",
		Help:      "Events acknowledged without effect that need operator attention.",
	}, []string{"kind"})
	reg.MustRegister(webhooks, refunds, settlements, anomalies)
	return &FlowMetrics{
		webhooks:    webhooks,
		refunds:     refunds,
		settlements: settlements,
		anomalies:   anomalies,
	}
}

func (f *FlowMetrics) Webhook(source, outcome string) {
	if f == nil || f.webhooks == nil {
		return
	}
	f.webhooks.WithLabelValues(normalizeLabel(source), normalizeLabel(outcome)).Inc()
}

func (f *FlowMetrics) Refund(provider, result string) {
	if f == nil || f.refunds == nil {
		return
	}
	f.refunds.WithLabelValues(normalizeLabel(provider), normalizeLabel(result)).Inc()
}

func (f *FlowMetrics) Settlement(method string) {
	if f == nil || f.settlements == nil {
		return
	}
	f.settlements.WithLabelValues(normalizeLabel(method)).Inc()
}

func (f *FlowMetrics) Anomaly(kind string) {
	if f == nil || f.anomalies == nil {
		return
	}
	f.anomalies.WithLabelValues(normalizeLabel(kind)).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
