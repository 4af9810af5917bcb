package bootstrap

import (
	"fmt"

	appconfig "github.com/wolfman30/isp-support-bot/internal/config"
	"github.com/wolfman30/isp-support-bot/internal/conversation"
	"github.com/wolfman30/isp-support-bot/internal/messaging"
	observemetrics "github.com/wolfman30/isp-support-bot/internal/observability/metrics"
	"github.com/wolfman30/isp-support-bot/internal/uazapi"
	"github.com/wolfman30/isp-support-bot/pkg/logging"
)

// BuildGateway creates the Uazapi client from config.
func BuildGateway(cfg *appconfig.Config, logger *logging.Logger) (*uazapi.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	client, err := uazapi.New(uazapi.Config{
		Server:     cfg.UazapiServer,
		Token:      cfg.UazapiToken,
		AdminToken: cfg.UazapiAdminToken,
		Instance:   cfg.UazapiInstance,
		Timeout:    cfg.UazapiTimeout,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: gateway: %w", err)
	}
	return client, nil
}

// BuildOutboundComposer wraps the gateway with the unread marker and send metrics.
func BuildOutboundComposer(cfg *appconfig.Config, gateway *uazapi.Client, metrics *observemetrics.BotMetrics, logger *logging.Logger) conversation.Composer {
	var composer conversation.Composer = gateway
	composer = messaging.WrapWithUnread(composer, messaging.UnreadConfig{
		Enabled: cfg.MarkChatsUnread,
		Marker:  gateway,
		Logger:  logger,
	})
	return messaging.NewMeteredComposer(composer, metrics, logger)
}
