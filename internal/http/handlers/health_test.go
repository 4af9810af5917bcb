package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	observemetrics "github.com/wolfman30/isp-support-bot/internal/observability/metrics"
	"github.com/wolfman30/isp-support-bot/pkg/logging"
)

func TestHealth(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 9, 30, 0, 0, time.FixedZone("BRT", -3*3600))
	rr := httptest.NewRecorder()
	Health(func() time.Time { return fixed })(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	var out map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, "online", out["status"])
	assert.Equal(t, "isp-support-bot", out["service"])
	assert.Equal(t, "2024-03-01T12:30:00Z", out["timestamp"])
}

func TestStatusIncludesCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observemetrics.NewBotMetrics(reg)
	m.ObserveInbound("processed")
	m.ObserveInbound("duplicate")

	gw := &stubGateway{status: map[string]any{"connected": true}}
	h := NewStatusHandler(gw, reg, logging.Discard())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var out struct {
		Success  bool               `json:"success"`
		Status   map[string]any     `json:"status"`
		Counters map[string]float64 `json:"counters"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.True(t, out.Success)
	assert.Equal(t, true, out.Status["connected"])
	assert.Equal(t, float64(2), out.Counters["ispbot_webhook_inbound_total"])
}

func TestStatusFailures(t *testing.T) {
	rr := httptest.NewRecorder()
	NewStatusHandler(nil, prometheus.NewRegistry(), logging.Discard()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	gw := &stubGateway{err: errors.New("instance disconnected")}
	NewStatusHandler(gw, prometheus.NewRegistry(), logging.Discard()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
