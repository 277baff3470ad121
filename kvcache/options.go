package kvcache

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// StoreOption is a functional option for configuring a cache store.
type StoreOption func(*storeConfig)

// storeConfig holds configuration for cache stores.
type storeConfig struct {
	redisClient *redis.Client
	defaultTTL  time.Duration
}

// WithRedisClient sets the Redis client for the Redis store.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithDefaultTTL sets the TTL applied when Set is called without one.
func WithDefaultTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) {
		c.defaultTTL = ttl
	}
}
