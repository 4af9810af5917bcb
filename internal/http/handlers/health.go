package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	observemetrics "github.com/wolfman30/isp-support-bot/internal/observability/metrics"
	"github.com/wolfman30/isp-support-bot/pkg/logging"
)

const serviceName = "isp-support-bot"

// Health answers liveness probes.
func Health(now func() time.Time) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":    "online",
			"service":   serviceName,
			"timestamp": now().UTC().Format(time.RFC3339),
		})
	}
}

type instanceStatuser interface {
	Status(ctx context.Context) (map[string]any, error)
}

// StatusHandler reports the gateway instance status alongside the bot's counters.
type StatusHandler struct {
	gateway  instanceStatuser
	gatherer prometheus.Gatherer
	logger   *logging.Logger
}

func NewStatusHandler(gateway instanceStatuser, gatherer prometheus.Gatherer, logger *logging.Logger) *StatusHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &StatusHandler{gateway: gateway, gatherer: gatherer, logger: logger}
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.gateway == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "error": "gateway not configured"})
		return
	}
	status, err := h.gateway.Status(r.Context())
	if err != nil {
		h.logger.Warn("gateway status failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"status":   status,
		"counters": observemetrics.CounterTotals(h.gatherer),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
