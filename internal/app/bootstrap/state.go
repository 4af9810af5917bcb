package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/isp-support-bot/internal/config"
	"github.com/wolfman30/isp-support-bot/internal/dedup"
	"github.com/wolfman30/isp-support-bot/internal/session"
	"github.com/wolfman30/isp-support-bot/pkg/logging"
)

// Reaper is a background sweep loop that stops when its context is cancelled.
type Reaper interface {
	Run(ctx context.Context)
}

// BuildSessionStore selects the session backend. The memory store comes with its reaper;
// Redis expires keys on its own.
func BuildSessionStore(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) (session.Store, Reaper, error) {
	switch cfg.SessionBackend {
	case "", "memory":
		store := session.NewMemoryStore(cfg.SessionTTL, cfg.SessionSweep, logger)
		return store, store, nil
	case "redis":
		if redisClient == nil {
			return nil, nil, fmt.Errorf("bootstrap: session backend redis needs a redis client")
		}
		return session.NewRedisStore(redisClient, cfg.SessionTTL, nil), nil, nil
	default:
		return nil, nil, fmt.Errorf("bootstrap: unknown session backend %q", cfg.SessionBackend)
	}
}

// BuildDedupGuard selects the inbound dedup backend.
func BuildDedupGuard(cfg *appconfig.Config, redisClient *redis.Client, pool *pgxpool.Pool, logger *logging.Logger) (dedup.Guard, Reaper, error) {
	switch cfg.DedupBackend {
	case "", "memory":
		guard := dedup.NewMemoryGuard(
			dedup.WithRetention(cfg.DedupRetention),
			dedup.WithSweepInterval(cfg.DedupSweepInterval),
			dedup.WithLogger(logger),
		)
		return guard, guard, nil
	case "redis":
		if redisClient == nil {
			return nil, nil, fmt.Errorf("bootstrap: dedup backend redis needs a redis client")
		}
		return dedup.NewRedisGuard(redisClient, cfg.DedupRetention), nil, nil
	case "postgres":
		if pool == nil {
			return nil, nil, fmt.Errorf("bootstrap: dedup backend postgres needs DATABASE_URL")
		}
		guard := dedup.NewPostgresGuard(pool, cfg.DedupRetention, logger)
		return guard, guard, nil
	default:
		return nil, nil, fmt.Errorf("bootstrap: unknown dedup backend %q", cfg.DedupBackend)
	}
}
