package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fdg312/adreport/internal/storage"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "adreport:import_job:"

// Connect initializes a Redis client from URL or host:port input.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisCache stores job snapshots as JSON with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

func (c *RedisCache) Get(ctx context.Context, id string) (*storage.ImportJob, bool, error) {
	raw, err := c.client.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var job storage.ImportJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, false, fmt.Errorf("decode cached job: %w", err)
	}
	return &job, true, nil
}

func (c *RedisCache) Set(ctx context.Context, job *storage.ImportJob) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, redisKey(job.ID), raw, c.ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, id string) error {
	return c.client.Del(ctx, redisKey(id)).Err()
}

// Close releases the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
