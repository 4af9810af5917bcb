package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBotMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBotMetrics(reg)

	m.ObserveInbound("processed")
	m.ObserveInbound("processed")
	m.ObserveInbound("skipped")
	m.ObserveDedup(true)
	m.ObserveDedup(false)
	m.ObserveDedup(false)
	m.ObserveOutbound("text", "ok")
	m.ObserveTransition("IDLE", "AWAITING_CPF")
	m.ObserveDelivery("PIX", "delivered")
	m.ObserveWebhookLatency(0.2)
	m.ObserveBackendCall("bills", "ok", 0.05)

	if got := testutil.ToFloat64(m.inboundTotal.WithLabelValues("processed")); got != 2 {
		t.Fatalf("inbound processed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.dedupTotal.WithLabelValues("duplicate")); got != 2 {
		t.Fatalf("dedup duplicate = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.transitions.WithLabelValues("IDLE", "AWAITING_CPF")); got != 1 {
		t.Fatalf("transition = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.backendLatency); got != 1 {
		t.Fatalf("backend latency series = %d, want 1", got)
	}
}

func TestCounterTotals(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBotMetrics(reg)
	m.ObserveInbound("processed")
	m.ObserveInbound("skipped")
	m.ObserveDelivery("BOLETO", "delivered")
	m.ObserveWebhookLatency(1)

	other := prometheus.NewCounter(prometheus.CounterOpts{Name: "unrelated_total", Help: "x"})
	reg.MustRegister(other)
	other.Inc()

	totals := CounterTotals(reg)
	if totals["ispbot_webhook_inbound_total"] != 2 {
		t.Fatalf("inbound total = %v", totals["ispbot_webhook_inbound_total"])
	}
	if totals["ispbot_conversation_deliveries_total"] != 1 {
		t.Fatalf("deliveries total = %v", totals["ispbot_conversation_deliveries_total"])
	}
	if _, ok := totals["unrelated_total"]; ok {
		t.Fatalf("foreign counters must be excluded")
	}
	if _, ok := totals["ispbot_webhook_latency_seconds"]; ok {
		t.Fatalf("histograms must be excluded")
	}
}

func TestBotMetricsNilSafe(t *testing.T) {
	var m *BotMetrics
	m.ObserveInbound("status")
	m.ObserveDedup(true)
	m.ObserveOutbound("menu", "error")
	m.ObserveTransition("a", "b")
	m.ObserveDelivery("PIX", "error")
	m.ObserveWebhookLatency(0.1)
	m.ObserveBackendCall("op", "ok", 0.1)
}
