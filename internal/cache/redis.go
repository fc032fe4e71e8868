package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crypto-invest-platform-go/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedisClient connects to redis and verifies the connection.
func NewRedisClient(cfg config.Redis) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

// RedisStore is a Store shared between processes. Values are stored as JSON.
// Read errors are logged and treated as misses so callers fall back to their source.
type RedisStore[V any] struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

func NewRedisStore[V any](client *redis.Client, prefix string, logger *zap.Logger) *RedisStore[V] {
	return &RedisStore[V]{client: client, prefix: prefix, logger: logger}
}

func (s *RedisStore[V]) Get(ctx context.Context, key string) (V, bool) {
	var value V
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		}
		return value, false
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		s.logger.Warn("Cache entry is not valid JSON", zap.String("key", key), zap.Error(err))
		return value, false
	}
	return value, true
}

func (s *RedisStore[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("Failed to encode cache entry", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.client.Set(ctx, s.prefix+key, raw, ttl).Err(); err != nil {
		s.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *RedisStore[V]) Delete(ctx context.Context, key string) {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		s.logger.Warn("Cache delete failed", zap.String("key", key), zap.Error(err))
	}
}
