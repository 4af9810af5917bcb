package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RedisStore keeps sessions as JSON documents with a sliding TTL.
type RedisStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

func NewRedisStore(client *redis.Client, ttl time.Duration, tracer trace.Tracer) *RedisStore {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if tracer == nil {
		tracer = otel.Tracer("ispbot.internal.session")
	}
	return &RedisStore{redis: client, ttl: ttl, tracer: tracer}
}

func (s *RedisStore) Get(ctx context.Context, identity string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "session.get", trace.WithAttributes(attribute.String("session.identity", identity)))
	defer span.End()

	data, err := s.redis.Get(ctx, sessionKey(identity)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to load %s: %w", identity, err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to decode %s: %w", identity, err)
	}
	return &sess, nil
}

func (s *RedisStore) Set(ctx context.Context, sess *Session) error {
	if sess == nil {
		return nil
	}
	ctx, span := s.tracer.Start(ctx, "session.set", trace.WithAttributes(
		attribute.String("session.identity", sess.Identity),
		attribute.String("session.state", string(sess.State)),
	))
	defer span.End()

	sess.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(sess)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to marshal %s: %w", sess.Identity, err)
	}
	if err := s.redis.Set(ctx, sessionKey(sess.Identity), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to persist %s: %w", sess.Identity, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, identity string) error {
	ctx, span := s.tracer.Start(ctx, "session.delete")
	defer span.End()

	if err := s.redis.Del(ctx, sessionKey(identity)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to delete %s: %w", identity, err)
	}
	return nil
}

func sessionKey(identity string) string {
	return fmt.Sprintf("session:%s", identity)
}
