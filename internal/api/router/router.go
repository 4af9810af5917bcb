package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/isp-support-bot/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/isp-support-bot/internal/http/middleware"
	"github.com/wolfman30/isp-support-bot/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger  *logging.Logger
	Webhook *handlers.WebhookHandler
	Status  http.Handler
	Admin   *handlers.AdminHandler
	// WebhookLimiter throttles POST /webhook per client; nil disables it.
	WebhookLimiter  *httpmiddleware.RateLimiter
	AdminAuthSecret string
	MetricsHandler  http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg.Webhook == nil {
		panic("router: webhook handler cannot be nil")
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger, "/", "/health", "/metrics"))

	health := handlers.Health(nil)
	r.Group(func(public chi.Router) {
		public.Get("/", health)
		public.Get("/health", health)
		if cfg.Status != nil {
			public.Get("/status", cfg.Status.ServeHTTP)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		public.With(httpmiddleware.RateLimit(cfg.WebhookLimiter, cfg.Logger)).Post("/webhook", cfg.Webhook.Handle)
	})

	if cfg.Admin != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Post("/setup-webhook", cfg.Admin.SetupWebhook)
			admin.Post("/send-test", cfg.Admin.SendTest)
			admin.Get("/deliveries", cfg.Admin.ListDeliveries)
		})
	}
	return r
}
