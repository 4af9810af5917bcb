package dedup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGuard shares the dedup window across replicas with SET NX + expiry.
type RedisGuard struct {
	redis     *redis.Client
	retention time.Duration
	prefix    string
}

// NewRedisGuard creates a Redis-backed guard. Expiry replaces the reaper.
func NewRedisGuard(client *redis.Client, retention time.Duration) *RedisGuard {
	if client == nil {
		panic("dedup: redis client cannot be nil")
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisGuard{redis: client, retention: retention, prefix: "dedup:"}
}

// Accept marks key and reports whether this call was the first to do so.
func (g *RedisGuard) Accept(ctx context.Context, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, nil
	}
	ok, err := g.redis.SetNX(ctx, g.prefix+key, time.Now().UnixMilli(), g.retention).Result()
	if err != nil {
		return false, fmt.Errorf("dedup: mark %s: %w", key, err)
	}
	return ok, nil
}
