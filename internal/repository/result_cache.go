package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pdf-vision-extractor/internal/domain"

	"github.com/redis/go-redis/v9"
)

const defaultCachePrefix = "pdfx:result:"

// RedisResultCache stores finished extraction results as JSON in Redis
type RedisResultCache struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisResultCache connects and pings Redis
func NewRedisResultCache(ctx context.Context, cfg RedisConfig) (*RedisResultCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultCachePrefix
	}
	return &RedisResultCache{client: client, prefix: prefix}, nil
}

// Get returns domain.ErrCacheMiss when the key is absent
func (c *RedisResultCache) Get(ctx context.Context, key string) (*domain.PDFProcessingResult, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var result domain.PDFProcessingResult
	if err := json.Unmarshal(val, &result); err != nil {
		// unreadable entries are treated as absent
		_ = c.client.Del(ctx, c.prefix+key).Err()
		return nil, domain.ErrCacheMiss
	}
	return &result, nil
}

func (c *RedisResultCache) Set(ctx context.Context, key string, result *domain.PDFProcessingResult, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (c *RedisResultCache) Close() error {
	return c.client.Close()
}
