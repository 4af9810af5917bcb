package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/wolfman30/isp-support-bot/internal/audit"
	"github.com/wolfman30/isp-support-bot/internal/messaging"
	"github.com/wolfman30/isp-support-bot/internal/uazapi"
	"github.com/wolfman30/isp-support-bot/pkg/logging"
)

var validate = validator.New()

// adminGateway is the subset of the WhatsApp gateway the admin endpoints drive.
type adminGateway interface {
	SetWebhook(ctx context.Context, webhookURL string) (map[string]any, error)
	SendText(ctx context.Context, number, text string) error
}

type deliveryLister interface {
	ListByIdentity(ctx context.Context, identity string, limit int) ([]audit.Entry, error)
}

// AdminHandler hosts privileged operator endpoints.
type AdminHandler struct {
	gateway    adminGateway
	deliveries deliveryLister
	webhookURL string
	logger     *logging.Logger
}

type AdminConfig struct {
	Gateway adminGateway
	// Deliveries may be nil when no database is configured.
	Deliveries deliveryLister
	// WebhookURL is used when a setup request carries no url.
	WebhookURL string
	Logger     *logging.Logger
}

func NewAdminHandler(cfg AdminConfig) *AdminHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &AdminHandler{
		gateway:    cfg.Gateway,
		deliveries: cfg.Deliveries,
		webhookURL: cfg.WebhookURL,
		logger:     cfg.Logger.Component("admin"),
	}
}

type setupWebhookRequest struct {
	URL string `json:"url" validate:"omitempty,url"`
}

// SetupWebhook points the gateway webhook at this service. The URL comes from the body,
// the url query parameter or the configured default, and always ends in /webhook.
func (h *AdminHandler) SetupWebhook(w http.ResponseWriter, r *http.Request) {
	if h.gateway == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "error": "gateway not configured"})
		return
	}
	var req setupWebhookRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid json"})
		return
	}
	if req.URL == "" {
		req.URL = firstNonEmpty(r.URL.Query().Get("url"), h.webhookURL)
	}
	if strings.TrimSpace(req.URL) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "webhook url is required"})
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": validationMessage(err)})
		return
	}

	target := uazapi.WebhookEndpoint(req.URL)
	result, err := h.gateway.SetWebhook(r.Context(), target)
	if err != nil {
		h.logger.Error("webhook setup failed", "url", target, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{"success": false, "error": err.Error(), "webhook_url": target})
		return
	}
	h.logger.Info("webhook configured", "url", target)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "webhook_url": target, "result": result})
}

type sendTestRequest struct {
	Number  string `json:"number" validate:"required,min=8"`
	Message string `json:"message" validate:"required,max=4096"`
}

// SendTest sends a plain text message, for checking the gateway credentials.
func (h *AdminHandler) SendTest(w http.ResponseWriter, r *http.Request) {
	if h.gateway == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "error": "gateway not configured"})
		return
	}
	var req sendTestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid json"})
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": validationMessage(err)})
		return
	}
	number := messaging.NormalizeIdentity(req.Number)
	if err := h.gateway.SendText(r.Context(), number, req.Message); err != nil {
		h.logger.Error("test message failed", "to", number, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "number": number})
}

// ListDeliveries returns the payment instruments delivered to one customer, newest first.
func (h *AdminHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	if h.deliveries == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "error": "delivery log not configured"})
		return
	}
	identity := messaging.NormalizeIdentity(r.URL.Query().Get("identity"))
	if identity == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "identity is required"})
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	entries, err := h.deliveries.ListByIdentity(r.Context(), identity, limit)
	if err != nil {
		h.logger.Error("list deliveries failed", "identity", identity, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "failed to list deliveries"})
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "deliveries": entries})
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field())+" failed "+fe.Tag())
	}
	return strings.Join(fields, "; ")
}
