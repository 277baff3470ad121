// Package kvcache provides a byte-oriented key-value cache with TTL
// semantics, backed by memory or Redis.
package kvcache

import (
	"context"
	"time"
)

// Store defines the interface for cache operations.
type Store interface {
	// Get retrieves a value by key.
	// Returns nil if the key is not found or expired (not an error).
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value under key with the given TTL.
	// A non-positive TTL falls back to the store's default TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key.
	Delete(ctx context.Context, key string) error

	// Close closes the store and releases any resources.
	Close() error
}
