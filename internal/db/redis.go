package db

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore wraps a redis client used for the fraud fast path: TTL'd
// duplicate-click markers. The SQL click log stays the source of truth;
// everything here is reconstructable.
type RedisStore struct {
	Client *redis.Client
	Ctx    context.Context
}

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(addr string) (*RedisStore, error) {
	rs := &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
		Ctx:    context.Background(),
	}

	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(rs.Ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

// MarkClick sets the duplicate marker for (campaign, IP) with the given TTL.
// Called only after a click has been accepted and persisted, so the marker
// mirrors the SQL log rather than raw attempts.
func (r *RedisStore) MarkClick(ctx context.Context, campaignID int, ip string, window time.Duration) error {
	key := fmt.Sprintf("clickdup:%d:%s", campaignID, ip)
	return r.Client.Set(ctx, key, 1, window).Err()
}

// HasClickMark reports whether an accepted click from the (campaign, IP)
// pair is still inside the duplicate window.
func (r *RedisStore) HasClickMark(ctx context.Context, campaignID int, ip string) (bool, error) {
	key := fmt.Sprintf("clickdup:%d:%s", campaignID, ip)
	n, err := r.Client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
