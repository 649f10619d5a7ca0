package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching computed audit artifacts.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require tenantID for strict multi-tenancy isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, tenantID string, key string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `koanf:"type"`

	// Local LRU cache settings (Community tier)
	LocalMaxSize int `koanf:"localMaxSize"`
	LocalTTLSecs int `koanf:"localTtlSecs"`

	// Redis settings (Pro tier)
	RedisAddr     string `koanf:"redisAddr"`
	RedisPassword string `koanf:"redisPassword"`
	RedisDB       int    `koanf:"redisDb"`

	// Two-phase settings
	EnableTwoPhase bool `koanf:"enableTwoPhase"` // If true, check local first, then Redis
}

// LocalTTL returns the configured local TTL as a duration.
func (c CacheConfig) LocalTTL() time.Duration {
	return time.Duration(c.LocalTTLSecs) * time.Second
}
