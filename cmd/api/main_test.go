package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wolfman30/isp-support-bot/internal/app/bootstrap"
	appconfig "github.com/wolfman30/isp-support-bot/internal/config"
	"github.com/wolfman30/isp-support-bot/pkg/logging"
)

func TestSetupMetricsExposesMetrics(t *testing.T) {
	handler, metrics, registry := setupMetrics()
	if handler == nil || metrics == nil || registry == nil {
		t.Fatalf("expected non-nil handler, metrics and registry")
	}

	metrics.ObserveInbound("processed")
	metrics.ObserveDelivery("pix", "ok")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, name := range []string{"ispbot_webhook_inbound_total", "ispbot_conversation_deliveries_total", "go_goroutines"} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected %s to be exported", name)
		}
	}
}

func TestBuildServerMemoryBackends(t *testing.T) {
	cfg := &appconfig.Config{
		Port:             "0",
		UazapiServer:     "https://gateway.example.com",
		UazapiToken:      "instance-token",
		SessionBackend:   "memory",
		SessionTTL:       time.Hour,
		DedupBackend:     "memory",
		DedupRetention:   30 * time.Second,
		WebhookRateLimit: 10,
		WebhookRateBurst: 10,
	}
	srv, reapers, err := buildServer(cfg, &bootstrap.Connections{}, logging.Discard())
	if err != nil {
		t.Fatalf("build server: %v", err)
	}
	if srv.Addr != ":0" {
		t.Fatalf("unexpected addr %q", srv.Addr)
	}
	if len(reapers) != 3 {
		t.Fatalf("expected limiter, session and dedup reapers, got %d", len(reapers))
	}

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected health 200, got %d", rr.Code)
	}
}

func TestBuildServerRejectsMissingGatewayToken(t *testing.T) {
	cfg := &appconfig.Config{UazapiServer: "https://gateway.example.com", SessionBackend: "memory", DedupBackend: "memory"}
	if _, _, err := buildServer(cfg, &bootstrap.Connections{}, logging.Discard()); err == nil {
		t.Fatalf("expected error without UAZAPI_TOKEN")
	}
}

func TestBuildServerRedisBackendNeedsClient(t *testing.T) {
	cfg := &appconfig.Config{
		UazapiServer:   "https://gateway.example.com",
		UazapiToken:    "instance-token",
		SessionBackend: "redis",
		DedupBackend:   "memory",
	}
	if _, _, err := buildServer(cfg, &bootstrap.Connections{}, logging.Discard()); err == nil {
		t.Fatalf("expected error for redis sessions without a client")
	}
}
