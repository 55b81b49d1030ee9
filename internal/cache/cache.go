// Package cache holds the last good AnalysisConfig per environment key.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultTTL bounds how long a cached config is served without a store read.
const DefaultTTL = time.Hour

// Client is the subset of *redis.Client the cache uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisCache stores configs as JSON under a key prefix.
type RedisCache struct {
	client Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache creates a cache over client.
func NewRedisCache(client Client, prefix string, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl, logger: logger.Named("config_cache")}
}

// Get returns the cached config, or (nil, nil) on a miss.
func (c *RedisCache) Get(ctx context.Context, key string) (*schemas.AnalysisConfig, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached config %s: %w", key, err)
	}
	var cfg schemas.AnalysisConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		// A corrupt entry is treated as a miss; the next Set overwrites it.
		c.logger.Warn("Discarding undecodable cached config", zap.String("key", key), zap.Error(err))
		return nil, nil
	}
	return &cfg, nil
}

// Set stores cfg under key with the cache TTL.
func (c *RedisCache) Set(ctx context.Context, key string, cfg *schemas.AnalysisConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config %s: %w", cfg.ID, err)
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache config %s: %w", key, err)
	}
	return nil
}

// Delete drops the entry under key. Deleting a missing key is not an error.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to evict cached config %s: %w", key, err)
	}
	return nil
}

// MemoryCache is an in-process ConfigCache used when Redis is disabled.
// Writes are last-write-wins.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	cfg     schemas.AnalysisConfig
	expires time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*schemas.AnalysisConfig, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().After(e.expires) {
		return nil, nil
	}
	cfg := e.cfg
	return &cfg, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, cfg *schemas.AnalysisConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{cfg: *cfg, expires: c.now().Add(c.ttl)}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}
