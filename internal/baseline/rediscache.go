package baseline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"rollback-guard/internal/domain"
	"rollback-guard/internal/storage"
)

// RedisCacheConfig configures the snapshot cache connection.
type RedisCacheConfig struct {
	Addr         string
	Password     string
	DB           int
	KeyPrefix    string
	TTL          time.Duration // 0 means snapshots never expire
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func DefaultRedisCacheConfig(addr string) RedisCacheConfig {
	return RedisCacheConfig{
		Addr:         addr,
		KeyPrefix:    "rollback-guard:baseline:",
		TTL:          48 * time.Hour,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// RedisCache is a warm-start cache for PerformanceBaseline snapshots:
// a restarted process reads the last-known summaries to pre-seed its
// EWMA drift fields. It is a cache, not a source of truth — the sliding
// window itself is never reconstructed from Redis, so Baseline still
// reports not-ready until the minimum sample count of live samples has
// been recorded again.
type RedisCache struct {
	cfg    RedisCacheConfig
	client *redis.Client
}

// NewRedisCache connects and pings; a Redis that is down at startup is
// a configuration-time failure, not something to paper over.
func NewRedisCache(ctx context.Context, cfg RedisCacheConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisCache{cfg: cfg, client: client}, nil
}

var _ storage.BaselineSnapshotStore = (*RedisCache)(nil)

func (c *RedisCache) key(metricName string) string {
	return c.cfg.KeyPrefix + metricName
}

func (c *RedisCache) Save(ctx context.Context, b domain.PerformanceBaseline) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal baseline snapshot: %w", err)
	}
	if err := c.client.Set(ctx, c.key(b.MetricName), payload, c.cfg.TTL).Err(); err != nil {
		return fmt.Errorf("save baseline snapshot: %w", err)
	}
	return nil
}

func (c *RedisCache) Load(ctx context.Context, metricName string) (domain.PerformanceBaseline, error) {
	payload, err := c.client.Get(ctx, c.key(metricName)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.PerformanceBaseline{}, storage.ErrNotFound
		}
		return domain.PerformanceBaseline{}, fmt.Errorf("load baseline snapshot: %w", err)
	}
	var b domain.PerformanceBaseline
	if err := json.Unmarshal(payload, &b); err != nil {
		return domain.PerformanceBaseline{}, fmt.Errorf("unmarshal baseline snapshot: %w", err)
	}
	return b, nil
}

func (c *RedisCache) LoadAll(ctx context.Context) ([]domain.PerformanceBaseline, error) {
	var out []domain.PerformanceBaseline
	iter := c.client.Scan(ctx, 0, c.cfg.KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		payload, err := c.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("load baseline snapshot %s: %w", iter.Val(), err)
		}
		var b domain.PerformanceBaseline
		if err := json.Unmarshal(payload, &b); err != nil {
			return nil, fmt.Errorf("unmarshal baseline snapshot %s: %w", iter.Val(), err)
		}
		out = append(out, b)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan baseline snapshots: %w", err)
	}
	return out, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
