package bootstrap

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/isp-support-bot/internal/audit"
	appconfig "github.com/wolfman30/isp-support-bot/internal/config"
	"github.com/wolfman30/isp-support-bot/internal/conversation"
	"github.com/wolfman30/isp-support-bot/internal/ispbox"
	observemetrics "github.com/wolfman30/isp-support-bot/internal/observability/metrics"
	"github.com/wolfman30/isp-support-bot/internal/session"
	"github.com/wolfman30/isp-support-bot/pkg/logging"
)

const backendRetries = 2

// BuildBillingBackend creates the ISPBOX client, or returns nil when it is not configured.
// Without a backend the payment flow answers that payments are unavailable.
func BuildBillingBackend(cfg *appconfig.Config, metrics *observemetrics.BotMetrics, logger *logging.Logger) (conversation.Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.IspboxBaseURL) == "" || strings.TrimSpace(cfg.IspboxClientSecret) == "" {
		logger.Warn("ispbox not configured; payment flow disabled")
		return nil, nil
	}
	client, err := ispbox.New(ispbox.Config{
		BaseURL:      cfg.IspboxBaseURL,
		ClientID:     cfg.IspboxClientID,
		ClientSecret: cfg.IspboxClientSecret,
		Timeout:      cfg.IspboxTimeout,
		MaxRetries:   backendRetries,
		Logger:       logger,
		Observer:     metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: billing backend: %w", err)
	}
	logger.Info("ispbox billing backend enabled", "base_url", cfg.IspboxBaseURL)
	return client, nil
}

// BuildDeliveryLog returns the payment delivery audit store when a database is available.
func BuildDeliveryLog(pool *pgxpool.Pool) *audit.Store {
	if pool == nil {
		return nil
	}
	return audit.NewStore(pool)
}

// EngineDeps are the collaborators of the conversation engine.
type EngineDeps struct {
	Sessions   session.Store
	Composer   conversation.Composer
	Backend    conversation.Backend
	Deliveries *audit.Store
	Metrics    *observemetrics.BotMetrics
}

// BuildEngine wires the conversation engine.
func BuildEngine(cfg *appconfig.Config, deps EngineDeps, logger *logging.Logger) (*conversation.Engine, error) {
	engineCfg := conversation.Config{
		Sessions: deps.Sessions,
		Composer: deps.Composer,
		Backend:  deps.Backend,
		Logger:   logger,
		Brand:    cfg.BrandName,
	}
	if deps.Deliveries != nil {
		engineCfg.Audit = deps.Deliveries
	}
	if deps.Metrics != nil {
		engineCfg.Observer = deps.Metrics
	}
	engine, err := conversation.NewEngine(engineCfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: conversation engine: %w", err)
	}
	return engine, nil
}
