package kvcache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// StoreType represents the type of cache store.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

// Common errors for cache store construction.
var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrInvalidStoreType = errors.New("invalid store type")
)

// defaultTTL applies when neither the store nor the caller specifies one.
const defaultTTL = 30 * 24 * time.Hour

// New creates a new Store based on the given type.
// Supports "memory" and "redis" driver types.
// For Redis, requires WithRedisClient option.
func New(storeType StoreType, opts ...StoreOption) (Store, error) {
	config := &storeConfig{defaultTTL: defaultTTL}

	for _, opt := range opts {
		opt(config)
	}

	switch storeType {
	case StoreTypeMemory:
		return &memoryStore{
			entries:    make(map[string]memoryEntry),
			defaultTTL: config.defaultTTL,
		}, nil

	case StoreTypeRedis:
		if config.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return &redisStore{
			client:     config.redisClient,
			defaultTTL: config.defaultTTL,
		}, nil

	default:
		return nil, ErrInvalidStoreType
	}
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// memoryStore implements Store using an in-memory map with lazy expiry.
type memoryStore struct {
	mu         sync.RWMutex
	entries    map[string]memoryEntry
	defaultTTL time.Duration
}

// Get implements Store.
func (s *memoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	entry, exists := s.entries[key]
	s.mu.RUnlock()

	if !exists {
		return nil, nil
	}
	if time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, nil
	}
	return entry.value, nil
}

// Set implements Store.
func (s *memoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries == nil {
		return ErrInvalidConfig
	}
	s.entries[key] = memoryEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Delete implements Store.
func (s *memoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Close implements Store.
func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	return nil
}

// redisStore implements Store using Redis.
type redisStore struct {
	client     *redis.Client
	defaultTTL time.Duration
}

// Get implements Store.
func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set implements Store.
func (s *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Delete implements Store.
func (s *redisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// Close implements Store.
func (s *redisStore) Close() error {
	return s.client.Close()
}

// Compile-time checks that both drivers implement Store.
var (
	_ Store = (*memoryStore)(nil)
	_ Store = (*redisStore)(nil)
)
