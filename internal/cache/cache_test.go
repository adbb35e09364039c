package cache

import (
	"context"
	"os"
	"testing"

	"badgehub/internal/models"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func definition(id, name string) *models.BadgeDefinition {
	return &models.BadgeDefinition{ID: id, Name: name}
}

func TestMemoryCacheNormalizesKeys(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(zap.NewNop())

	require.NoError(t, c.Set(ctx, definition("30009:abc:early supporter", "Early")))

	def, ok := c.Get(ctx, "30009:ABC:  early   supporter ")
	require.True(t, ok)
	assert.Equal(t, "Early", def.Name)
	assert.Equal(t, 1, c.Len(ctx))
}

func TestMemoryCacheLastWriteWins(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(nil)

	require.NoError(t, c.Set(ctx, definition("30009:abc:x", "first")))
	require.NoError(t, c.Set(ctx, definition("30009:abc:x", "second")))

	def, ok := c.Get(ctx, "30009:abc:x")
	require.True(t, ok)
	assert.Equal(t, "second", def.Name)
	assert.Equal(t, 1, c.Len(ctx))
}

func TestMemoryCacheGetMany(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(nil)
	require.NoError(t, c.Set(ctx, definition("30009:abc:x", "x")))

	found := c.GetMany(ctx, []string{"30009:abc:x", "30009:abc:missing"})
	assert.Len(t, found, 1)
	assert.Contains(t, found, "30009:abc:x")

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
	assert.InDelta(t, 0.5, stats.HitRatio, 0.001)
}

func TestMemoryCacheRejectsEmptyID(t *testing.T) {
	c := NewMemoryCache(nil)
	assert.Error(t, c.Set(context.Background(), &models.BadgeDefinition{}))
	assert.Error(t, c.Set(context.Background(), nil))
}

func TestNewCache(t *testing.T) {
	c, err := NewCache(nil, nil)
	require.NoError(t, err)
	assert.NoError(t, c.Health(context.Background()))

	_, err = NewCache(&Config{Provider: "memcached"}, zap.NewNop())
	assert.Error(t, err)
}

func TestRedisCache(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()

	prefix := "badgehub-test:" + uuid.Must(uuid.NewV4()).String() + ":"
	c, err := NewRedisCache(&Config{RedisURL: url, KeyPrefix: prefix}, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set(ctx, definition("30009:abc:x", "x")))

	// A second instance sees the shared entry through Redis.
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	other := newRedisCache(redis.NewClient(opts), prefix, zap.NewNop())
	defer other.Close()

	def, ok := other.Get(ctx, "30009:ABC:x")
	require.True(t, ok)
	assert.Equal(t, "x", def.Name)

	found := other.GetMany(ctx, []string{"30009:abc:x", "30009:abc:y"})
	assert.Len(t, found, 1)
	assert.Equal(t, 1, other.Len(ctx))

	keys, err := other.client.Keys(ctx, prefix+"*").Result()
	require.NoError(t, err)
	require.NoError(t, other.client.Del(ctx, keys...).Err())
}
