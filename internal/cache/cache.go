// internal/cache/cache.go
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"badgehub/internal/badgeid"
	"badgehub/internal/metrics"
	"badgehub/internal/models"

	"go.uber.org/zap"
)

// ===============================
// CACHE INTERFACE
// ===============================

// DefinitionCache maps canonical badge identifiers to resolved definitions.
// Entries never expire and are never evicted; the last write wins.
type DefinitionCache interface {
	Get(ctx context.Context, id string) (*models.BadgeDefinition, bool)
	GetMany(ctx context.Context, ids []string) map[string]*models.BadgeDefinition
	Set(ctx context.Context, def *models.BadgeDefinition) error
	Len(ctx context.Context) int

	Stats(ctx context.Context) (*CacheStats, error)
	Health(ctx context.Context) error
	Close() error
}

// CacheStats represents cache statistics
type CacheStats struct {
	Provider string        `json:"provider"`
	Hits     int64         `json:"hits"`
	Misses   int64         `json:"misses"`
	Sets     int64         `json:"sets"`
	Keys     int64         `json:"keys"`
	HitRatio float64       `json:"hit_ratio"`
	Uptime   time.Duration `json:"uptime"`
}

// ===============================
// CACHE CONFIGURATION
// ===============================

// Config holds cache configuration
type Config struct {
	Provider string `json:"provider" yaml:"provider"` // "memory", "redis"

	// Redis configuration
	RedisURL      string `json:"redis_url" yaml:"redis_url"`
	RedisDB       int    `json:"redis_db" yaml:"redis_db"`
	RedisPassword string `json:"redis_password" yaml:"redis_password"`
	PoolSize      int    `json:"pool_size" yaml:"pool_size"`
	KeyPrefix     string `json:"key_prefix" yaml:"key_prefix"`
}

// DefaultConfig returns a default cache configuration
func DefaultConfig() *Config {
	return &Config{
		Provider:  "memory",
		PoolSize:  10,
		KeyPrefix: "badgehub:definition:",
	}
}

// Key returns the canonical cache key for a badge identifier.
func Key(id string) string {
	return badgeid.Normalize(id)
}

// ===============================
// MEMORY CACHE IMPLEMENTATION
// ===============================

type counters struct {
	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
}

func (c *counters) stats(provider string, keys int, start time.Time) *CacheStats {
	s := &CacheStats{
		Provider: provider,
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Sets:     c.sets.Load(),
		Keys:     int64(keys),
		Uptime:   time.Since(start),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRatio = float64(s.Hits) / float64(total)
	}
	return s
}

// memoryCache implements DefinitionCache with a plain map.
type memoryCache struct {
	mu        sync.RWMutex
	items     map[string]*models.BadgeDefinition
	logger    *zap.Logger
	counters  counters
	startTime time.Time
}

// NewMemoryCache creates a new in-memory definition cache
func NewMemoryCache(logger *zap.Logger) DefinitionCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &memoryCache{
		items:     make(map[string]*models.BadgeDefinition),
		logger:    logger,
		startTime: time.Now(),
	}
}

func (c *memoryCache) Get(ctx context.Context, id string) (*models.BadgeDefinition, bool) {
	c.mu.RLock()
	def, ok := c.items[Key(id)]
	c.mu.RUnlock()

	if ok {
		c.counters.hits.Add(1)
		metrics.CacheOperationsTotal.WithLabelValues("memory", "hit").Inc()
	} else {
		c.counters.misses.Add(1)
		metrics.CacheOperationsTotal.WithLabelValues("memory", "miss").Inc()
	}
	return def, ok
}

func (c *memoryCache) GetMany(ctx context.Context, ids []string) map[string]*models.BadgeDefinition {
	found := make(map[string]*models.BadgeDefinition, len(ids))
	for _, id := range ids {
		if def, ok := c.Get(ctx, id); ok {
			found[Key(id)] = def
		}
	}
	return found
}

func (c *memoryCache) Set(ctx context.Context, def *models.BadgeDefinition) error {
	if def == nil || def.ID == "" {
		return fmt.Errorf("cache: definition without identifier")
	}
	c.mu.Lock()
	c.items[Key(def.ID)] = def
	c.mu.Unlock()

	c.counters.sets.Add(1)
	metrics.CacheOperationsTotal.WithLabelValues("memory", "set").Inc()
	return nil
}

func (c *memoryCache) Len(ctx context.Context) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *memoryCache) Stats(ctx context.Context) (*CacheStats, error) {
	return c.counters.stats("memory", c.Len(ctx), c.startTime), nil
}

func (c *memoryCache) Health(ctx context.Context) error {
	return nil
}

func (c *memoryCache) Close() error {
	return nil
}

// ===============================
// FACTORY FUNCTION
// ===============================

// NewCache creates a new cache instance based on configuration
func NewCache(config *Config, logger *zap.Logger) (DefinitionCache, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	switch strings.ToLower(config.Provider) {
	case "redis":
		return NewRedisCache(config, logger)
	case "memory", "":
		logger.Info("Using in-memory definition cache")
		return NewMemoryCache(logger), nil
	default:
		return nil, fmt.Errorf("unsupported cache provider: %s", config.Provider)
	}
}
