package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/isp-support-bot/internal/conversation"
	"github.com/wolfman30/isp-support-bot/internal/dedup"
	observemetrics "github.com/wolfman30/isp-support-bot/internal/observability/metrics"
	"github.com/wolfman30/isp-support-bot/pkg/logging"
)

var webhookTracer = otel.Tracer("ispbot.internal.http.webhook")

const maxWebhookBody = 1 << 20

// turnHandler runs one deduplicated customer turn. *conversation.Engine satisfies it.
type turnHandler interface {
	HandleInboundTurn(ctx context.Context, ev conversation.InboundEvent) error
}

// WebhookHandler receives gateway webhooks, drops re-deliveries and hands each new customer
// message to the conversation engine.
type WebhookHandler struct {
	engine  turnHandler
	guard   dedup.Guard
	metrics *observemetrics.BotMetrics
	logger  *logging.Logger
}

type WebhookConfig struct {
	Engine  turnHandler
	Guard   dedup.Guard
	Metrics *observemetrics.BotMetrics
	Logger  *logging.Logger
}

func NewWebhookHandler(cfg WebhookConfig) *WebhookHandler {
	if cfg.Engine == nil {
		panic("handlers: conversation engine cannot be nil")
	}
	if cfg.Guard == nil {
		panic("handlers: dedup guard cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &WebhookHandler{
		engine:  cfg.Engine,
		guard:   cfg.Guard,
		metrics: cfg.Metrics,
		logger:  cfg.Logger.Component("webhook"),
	}
}

type webhookResponse struct {
	Success bool   `json:"success"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Handle always answers 200 so the gateway never retries; failures are reported in the body.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := webhookTracer.Start(r.Context(), "webhook.inbound")
	defer span.End()

	status := "ignored"
	defer func() {
		h.metrics.ObserveInbound(status)
		h.metrics.ObserveWebhookLatency(time.Since(start).Seconds())
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		status = "invalid"
		writeJSON(w, http.StatusOK, webhookResponse{Success: false, Error: "invalid body"})
		return
	}
	variant, messages, err := parseWebhook(body)
	if err != nil {
		status = "invalid"
		h.logger.Warn("webhook payload rejected", "error", err)
		writeJSON(w, http.StatusOK, webhookResponse{Success: false, Error: "invalid payload"})
		return
	}
	span.SetAttributes(attribute.String("webhook.variant", string(variant)), attribute.Int("webhook.candidates", len(messages)))
	if len(messages) == 0 {
		writeJSON(w, http.StatusOK, webhookResponse{Success: true})
		return
	}

	msg, key, accepted := h.firstFresh(ctx, messages)
	if !accepted {
		status = "duplicate"
		h.logger.Debug("duplicate webhook skipped", "variant", string(variant))
		writeJSON(w, http.StatusOK, webhookResponse{Success: true, Skipped: true})
		return
	}

	ev := conversation.InboundEvent{
		Identity:   msg.identity(),
		Body:       msg.body,
		ButtonID:   msg.buttonID,
		DedupKey:   key,
		SenderName: msg.senderName,
	}
	h.logger.Info("inbound message", "identity", ev.Identity, "event_id", key, "variant", string(variant), "button", ev.IsButton())
	if err := h.engine.HandleInboundTurn(ctx, ev); err != nil {
		status = "failed"
		span.RecordError(err)
		h.logger.Error("conversation turn failed", "identity", ev.Identity, "event_id", key, "error", err)
		writeJSON(w, http.StatusOK, webhookResponse{Success: false, Error: err.Error()})
		return
	}
	status = "processed"
	writeJSON(w, http.StatusOK, webhookResponse{Success: true})
}

// firstFresh returns the first candidate the guard has not seen. A guard failure lets the
// message through.
func (h *WebhookHandler) firstFresh(ctx context.Context, messages []inboundMessage) (inboundMessage, string, bool) {
	for _, msg := range messages {
		key := msg.dedupKey()
		if key == "" {
			key = "synthetic_" + uuid.NewString()
			h.logger.Warn("webhook message without id or timestamp; deduplication disabled", "identity", msg.identity())
		}
		ok, err := h.guard.Accept(ctx, key)
		if err != nil {
			h.logger.Error("dedup guard failed; processing message", "event_id", key, "error", err)
			ok = true
		}
		h.metrics.ObserveDedup(ok)
		if ok {
			return msg, key, true
		}
	}
	return inboundMessage{}, "", false
}

// decodeJSON reads a small JSON request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody))
	return dec.Decode(dst)
}
