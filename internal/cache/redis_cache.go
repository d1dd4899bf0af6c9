package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"tokosinar/backend/internal/domain"
)

type RedisValuationCache struct {
	client *redis.Client
}

func NewRedisValuationCache(addr string, password string, db int) *RedisValuationCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisValuationCache{client: client}
}

func (c *RedisValuationCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisValuationCache) Close() error {
	return c.client.Close()
}

func (c *RedisValuationCache) Get(ctx context.Context, key string) (*domain.LedgerValuationReport, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var report domain.LedgerValuationReport
	if err := json.Unmarshal([]byte(val), &report); err != nil {
		return nil, false, err
	}
	return &report, true, nil
}

func (c *RedisValuationCache) Set(ctx context.Context, key string, value *domain.LedgerValuationReport, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisValuationCache) Invalidate(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
