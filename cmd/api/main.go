package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/isp-support-bot/internal/api/router"
	"github.com/wolfman30/isp-support-bot/internal/app/bootstrap"
	appconfig "github.com/wolfman30/isp-support-bot/internal/config"
	"github.com/wolfman30/isp-support-bot/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/isp-support-bot/internal/http/middleware"
	observemetrics "github.com/wolfman30/isp-support-bot/internal/observability/metrics"
	"github.com/wolfman30/isp-support-bot/pkg/logging"
)

const shutdownTimeout = 30 * time.Second

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting isp-support-bot",
		"env", cfg.Env,
		"port", cfg.Port,
		"session_backend", cfg.SessionBackend,
		"dedup_backend", cfg.DedupBackend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	conns, err := bootstrap.OpenConnections(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := conns.Close(); err != nil {
			logger.Warn("closing connections", "error", err)
		}
	}()

	srv, reapers, err := buildServer(cfg, conns, logger)
	if err != nil {
		return err
	}
	for _, reaper := range reapers {
		go reaper.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildServer wires every component and returns the HTTP server plus the sweep loops to start.
func buildServer(cfg *appconfig.Config, conns *bootstrap.Connections, logger *logging.Logger) (*http.Server, []bootstrap.Reaper, error) {
	metricsHandler, metrics, registry := setupMetrics()

	gateway, err := bootstrap.BuildGateway(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	sessions, sessionReaper, err := bootstrap.BuildSessionStore(cfg, conns.Redis, logger)
	if err != nil {
		return nil, nil, err
	}
	guard, guardReaper, err := bootstrap.BuildDedupGuard(cfg, conns.Redis, conns.Pool, logger)
	if err != nil {
		return nil, nil, err
	}
	backend, err := bootstrap.BuildBillingBackend(cfg, metrics, logger)
	if err != nil {
		return nil, nil, err
	}
	deliveries := bootstrap.BuildDeliveryLog(conns.Pool)

	engine, err := bootstrap.BuildEngine(cfg, bootstrap.EngineDeps{
		Sessions:   sessions,
		Composer:   bootstrap.BuildOutboundComposer(cfg, gateway, metrics, logger),
		Backend:    backend,
		Deliveries: deliveries,
		Metrics:    metrics,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	adminCfg := handlers.AdminConfig{Gateway: gateway, WebhookURL: cfg.WebhookURL, Logger: logger}
	if deliveries != nil {
		adminCfg.Deliveries = deliveries
	}
	limiter := httpmiddleware.NewRateLimiter(cfg.WebhookRateLimit, cfg.WebhookRateBurst)

	handler := router.New(&router.Config{
		Logger: logger,
		Webhook: handlers.NewWebhookHandler(handlers.WebhookConfig{
			Engine:  engine,
			Guard:   guard,
			Metrics: metrics,
			Logger:  logger,
		}),
		Status:          handlers.NewStatusHandler(gateway, registry, logger),
		Admin:           handlers.NewAdminHandler(adminCfg),
		WebhookLimiter:  limiter,
		AdminAuthSecret: cfg.AdminJWTSecret,
		MetricsHandler:  metricsHandler,
	})

	reapers := []bootstrap.Reaper{limiter}
	for _, r := range []bootstrap.Reaper{sessionReaper, guardReaper} {
		if r != nil {
			reapers = append(reapers, r)
		}
	}
	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; admin endpoints are disabled")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv, reapers, nil
}

// setupMetrics builds a dedicated registry with the bot metrics and the runtime collectors.
func setupMetrics() (http.Handler, *observemetrics.BotMetrics, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observemetrics.NewBotMetrics(registry)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), metrics, registry
}
