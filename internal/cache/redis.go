package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"badgehub/internal/metrics"
	"badgehub/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ===============================
// REDIS CACHE IMPLEMENTATION
// ===============================

// redisCache keeps a process-local memory front and writes through to a
// shared Redis store so definitions survive restarts and are shared
// between instances.
type redisCache struct {
	front  *memoryCache
	client *redis.Client
	logger *zap.Logger
	prefix string

	counters  counters
	startTime time.Time
}

// NewRedisCache creates a new Redis-backed definition cache
func NewRedisCache(config *Config, logger *zap.Logger) (DefinitionCache, error) {
	if config == nil {
		return nil, fmt.Errorf("cache config cannot be nil")
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	var options *redis.Options
	if config.RedisURL != "" {
		var err error
		options, err = redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
	} else {
		options = &redis.Options{
			Addr:     "localhost:6379",
			Password: config.RedisPassword,
			DB:       config.RedisDB,
		}
	}

	if config.PoolSize > 0 {
		options.PoolSize = config.PoolSize
	}

	client := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis definition cache initialized",
		zap.String("addr", options.Addr),
		zap.Int("db", options.DB),
		zap.String("prefix", config.KeyPrefix),
	)

	return newRedisCache(client, config.KeyPrefix, logger), nil
}

func newRedisCache(client *redis.Client, prefix string, logger *zap.Logger) *redisCache {
	return &redisCache{
		front:     NewMemoryCache(logger).(*memoryCache),
		client:    client,
		logger:    logger,
		prefix:    prefix,
		startTime: time.Now(),
	}
}

func (r *redisCache) key(id string) string {
	return r.prefix + Key(id)
}

func (r *redisCache) Get(ctx context.Context, id string) (*models.BadgeDefinition, bool) {
	if def, ok := r.front.Get(ctx, id); ok {
		r.counters.hits.Add(1)
		return def, true
	}

	val, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		r.counters.misses.Add(1)
		metrics.CacheOperationsTotal.WithLabelValues("redis", "miss").Inc()
		return nil, false
	} else if err != nil {
		r.logger.Error("Failed to get definition from Redis",
			zap.String("id", id),
			zap.Error(err))
		r.counters.misses.Add(1)
		return nil, false
	}

	def, err := decodeDefinition(val)
	if err != nil {
		r.logger.Warn("Dropping undecodable cached definition",
			zap.String("id", id),
			zap.Error(err))
		r.counters.misses.Add(1)
		return nil, false
	}

	_ = r.front.Set(ctx, def)
	r.counters.hits.Add(1)
	metrics.CacheOperationsTotal.WithLabelValues("redis", "hit").Inc()
	return def, true
}

func (r *redisCache) GetMany(ctx context.Context, ids []string) map[string]*models.BadgeDefinition {
	found := r.front.GetMany(ctx, ids)

	var missing []string
	for _, id := range ids {
		if _, ok := found[Key(id)]; !ok {
			missing = append(missing, id)
		}
	}
	r.counters.hits.Add(int64(len(found)))
	if len(missing) == 0 {
		return found
	}

	keys := make([]string, len(missing))
	for i, id := range missing {
		keys[i] = r.key(id)
	}

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		r.logger.Error("Failed to get definitions from Redis",
			zap.Int("count", len(keys)),
			zap.Error(err))
		r.counters.misses.Add(int64(len(missing)))
		return found
	}

	for i, val := range vals {
		s, ok := val.(string)
		if !ok {
			r.counters.misses.Add(1)
			metrics.CacheOperationsTotal.WithLabelValues("redis", "miss").Inc()
			continue
		}
		def, err := decodeDefinition([]byte(s))
		if err != nil {
			r.counters.misses.Add(1)
			continue
		}
		_ = r.front.Set(ctx, def)
		found[Key(missing[i])] = def
		r.counters.hits.Add(1)
		metrics.CacheOperationsTotal.WithLabelValues("redis", "hit").Inc()
	}
	return found
}

func (r *redisCache) Set(ctx context.Context, def *models.BadgeDefinition) error {
	if err := r.front.Set(ctx, def); err != nil {
		return err
	}

	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to marshal definition: %w", err)
	}

	// Zero expiration: definitions are kept until explicitly overwritten.
	if err := r.client.Set(ctx, r.key(def.ID), data, 0).Err(); err != nil {
		r.logger.Error("Failed to write definition to Redis",
			zap.String("id", def.ID),
			zap.Error(err))
		return fmt.Errorf("failed to write definition to Redis: %w", err)
	}

	r.counters.sets.Add(1)
	metrics.CacheOperationsTotal.WithLabelValues("redis", "set").Inc()
	return nil
}

func (r *redisCache) Len(ctx context.Context) int {
	var n int
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		r.logger.Warn("Failed to count cached definitions", zap.Error(err))
		return r.front.Len(ctx)
	}
	return n
}

func (r *redisCache) Stats(ctx context.Context) (*CacheStats, error) {
	return r.counters.stats("redis", r.Len(ctx), r.startTime), nil
}

func (r *redisCache) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *redisCache) Close() error {
	return r.client.Close()
}

func decodeDefinition(data []byte) (*models.BadgeDefinition, error) {
	var def models.BadgeDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, err
	}
	if def.ID == "" {
		return nil, fmt.Errorf("cached definition without identifier")
	}
	return &def, nil
}
