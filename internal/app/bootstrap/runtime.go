package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/isp-support-bot/internal/config"
	"github.com/wolfman30/isp-support-bot/pkg/logging"
)

const connectTimeout = 5 * time.Second

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return an error.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) (*redis.Client, error) {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client, nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("bootstrap: redis ping %s: %w", cfg.RedisAddr, err)
	}
	logger.Info("redis connected", "addr", cfg.RedisAddr, "tls", cfg.RedisTLS)
	return client, nil
}

// BuildPostgresPool opens the delivery log database, or returns nil when DATABASE_URL is unset.
func BuildPostgresPool(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: parse database url: %w", err)
	}
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open database: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping database: %w", err)
	}
	logger.Info("postgres connected", "max_conns", poolCfg.MaxConns)
	return pool, nil
}

// Connections holds the optional shared clients for the process lifetime.
type Connections struct {
	Redis *redis.Client
	Pool  *pgxpool.Pool
}

// OpenConnections connects the stores the configuration asks for. Redis is required when a
// state backend is set to redis; Postgres whenever DATABASE_URL is set.
func OpenConnections(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Connections, error) {
	conns := &Connections{}
	if cfg.UsesRedis() {
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return nil, fmt.Errorf("bootstrap: REDIS_ADDR is required for the redis backend")
		}
		client, err := BuildRedisClient(ctx, cfg, logger, true)
		if err != nil {
			return nil, err
		}
		conns.Redis = client
	}
	pool, err := BuildPostgresPool(ctx, cfg, logger)
	if err != nil {
		_ = conns.Close()
		return nil, err
	}
	conns.Pool = pool
	return conns, nil
}

// Close releases every open connection.
func (c *Connections) Close() error {
	if c == nil {
		return nil
	}
	var result *multierror.Error
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close redis: %w", err))
		}
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
	return result.ErrorOrNil()
}
