package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/ayyanshiraz/inv/internal/domain"
)

type RedisReportCache struct {
	client *redis.Client
}

func NewRedisReportCache(addr string, password string, db int) *RedisReportCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisReportCache{client: client}
}

func (c *RedisReportCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisReportCache) Close() error {
	return c.client.Close()
}

func (c *RedisReportCache) GetReport(ctx context.Context, key string) (*domain.LedgerReport, bool, error) {
	var report domain.LedgerReport
	found, err := c.get(ctx, key, &report)
	if !found || err != nil {
		return nil, false, err
	}
	return &report, true, nil
}

func (c *RedisReportCache) SetReport(ctx context.Context, key string, value *domain.LedgerReport, ttl time.Duration) error {
	return c.set(ctx, key, value, ttl)
}

func (c *RedisReportCache) GetDashboard(ctx context.Context, key string) (*domain.DashboardStats, bool, error) {
	var stats domain.DashboardStats
	found, err := c.get(ctx, key, &stats)
	if !found || err != nil {
		return nil, false, err
	}
	return &stats, true, nil
}

func (c *RedisReportCache) SetDashboard(ctx context.Context, key string, value *domain.DashboardStats, ttl time.Duration) error {
	return c.set(ctx, key, value, ttl)
}

func (c *RedisReportCache) Version(ctx context.Context, ownerID string) (int64, error) {
	val, err := c.client.Get(ctx, versionKey(ownerID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

func (c *RedisReportCache) Invalidate(ctx context.Context, ownerID string) error {
	return c.client.Incr(ctx, versionKey(ownerID)).Err()
}

func (c *RedisReportCache) get(ctx context.Context, key string, out any) (bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisReportCache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func versionKey(ownerID string) string {
	return "ledger:ver:" + ownerID
}
