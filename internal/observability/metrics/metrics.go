package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "ispbot"

// BotMetrics exposes counters/histograms for the WhatsApp bot.
type BotMetrics struct {
	inboundTotal   *prometheus.CounterVec
	dedupTotal     *prometheus.CounterVec
	outboundTotal  *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	deliveries     *prometheus.CounterVec
	webhookLatency prometheus.Histogram
	backendLatency *prometheus.HistogramVec
}

func NewBotMetrics(reg prometheus.Registerer) *BotMetrics {
	m := &BotMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "inbound_total",
			Help:      "Inbound gateway webhooks by outcome",
		}, []string{"status"}),
		dedupTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "dedup_total",
			Help:      "Dedup guard decisions",
		}, []string{"result"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "outbound_total",
			Help:      "Outbound WhatsApp sends by kind",
		}, []string{"kind", "status"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "transitions_total",
			Help:      "Payment flow state transitions",
		}, []string{"from", "to"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "deliveries_total",
			Help:      "Payment instrument deliveries",
		}, []string{"method", "status"}),
		webhookLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "latency_seconds",
			Help:      "Latency of inbound webhook processing",
			Buckets:   prometheus.DefBuckets,
		}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "request_seconds",
			Help:      "Latency of billing backend calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.dedupTotal, m.outboundTotal, m.transitions, m.deliveries, m.webhookLatency, m.backendLatency)
	return m
}

func (m *BotMetrics) ObserveInbound(status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(status).Inc()
}

// ObserveDedup counts a guard decision.
func (m *BotMetrics) ObserveDedup(accepted bool) {
	if m == nil {
		return
	}
	result := "duplicate"
	if accepted {
		result = "accepted"
	}
	m.dedupTotal.WithLabelValues(result).Inc()
}

func (m *BotMetrics) ObserveOutbound(kind, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(kind, status).Inc()
}

func (m *BotMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *BotMetrics) ObserveDelivery(method, status string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(method, status).Inc()
}

func (m *BotMetrics) ObserveWebhookLatency(seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.Observe(seconds)
}

func (m *BotMetrics) ObserveBackendCall(operation, status string, seconds float64) {
	if m == nil {
		return
	}
	m.backendLatency.WithLabelValues(operation, status).Observe(seconds)
}

// CounterTotals sums every counter of the ispbot namespace by family name, for the status endpoint.
func CounterTotals(gatherer prometheus.Gatherer) map[string]float64 {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	out := map[string]float64{}
	mfs, err := gatherer.Gather()
	if err != nil {
		return out
	}
	for _, mf := range mfs {
		if mf == nil || mf.GetType() != dto.MetricType_COUNTER {
			continue
		}
		name := mf.GetName()
		if !strings.HasPrefix(name, namespace+"_") {
			continue
		}
		var total float64
		for _, metric := range mf.Metric {
			if metric == nil || metric.GetCounter() == nil {
				continue
			}
			total += metric.GetCounter().GetValue()
		}
		out[name] = total
	}
	return out
}
