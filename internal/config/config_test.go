package config

import (
	"path/filepath"
	"testing"
	"time"

	"badgehub/internal/nostr"
	"badgehub/internal/relay"
	"badgehub/internal/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("GO_ENV", "prod")
	t.Setenv("RELAY_URLS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, DefaultRelays, cfg.Relays.URLs)
	assert.Equal(t, 3, cfg.Retry.Scheduler.MaxAttempts)
	assert.Equal(t, retry.StrategyLinear, cfg.Retry.Scheduler.Strategy)
	assert.Equal(t, 6, cfg.Retry.Confirm.MaxAttempts)
	assert.Equal(t, "memory", cfg.Cache.Provider)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.IsProduction())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("GO_ENV", "production")
	t.Setenv("PORT", "9090")
	t.Setenv("RELAY_URLS", "wss://a.example, wss://b.example,,wss://a.example")
	t.Setenv("FETCH_AWARD_BUDGET", "750ms")
	t.Setenv("FETCH_DEFINITION_BUDGET", "500ms")
	t.Setenv("FETCH_FALLBACK_BUDGET", "250ms")
	t.Setenv("CONFIRM_RETRY_ATTEMPTS", "4")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, []string{"wss://a.example", "wss://b.example", "wss://a.example"}, cfg.Relays.URLs)
	assert.Equal(t, 750*time.Millisecond, cfg.Fetch.AwardBudget)
	assert.Equal(t, 500*time.Millisecond, cfg.Fetch.DefinitionBudget)
	assert.Equal(t, 4, cfg.Retry.Confirm.MaxAttempts)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("GO_ENV", "production")

	t.Run("relay scheme", func(t *testing.T) {
		t.Setenv("RELAY_URLS", "https://not-a-relay.example")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("fallback longer than first pass", func(t *testing.T) {
		t.Setenv("FETCH_FALLBACK_BUDGET", "10s")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("definition budget not shorter than award budget", func(t *testing.T) {
		t.Setenv("FETCH_DEFINITION_BUDGET", "10s")
		t.Setenv("FETCH_AWARD_BUDGET", "5s")
		_, err := Load()
		assert.ErrorContains(t, err, "definition budget")
	})

	t.Run("fallback attempts not fewer than scheduler", func(t *testing.T) {
		t.Setenv("RETRY_ATTEMPTS", "2")
		t.Setenv("FALLBACK_RETRY_ATTEMPTS", "2")
		_, err := Load()
		assert.ErrorContains(t, err, "fewer attempts")
	})

	t.Run("bad creator key", func(t *testing.T) {
		t.Setenv("CREATOR_NSEC", "nsec1garbage")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestRelayFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "relays.yaml")

	require.NoError(t, SaveRelayFile(path, []string{"wss://a.example", "wss://a.example/", " ", "wss://b.example"}))

	urls, err := LoadRelayFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"wss://a.example", "wss://b.example"}, urls)

	t.Setenv("GO_ENV", "production")
	t.Setenv("RELAY_URLS", "wss://c.example")
	t.Setenv("RELAY_FILE", path)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"wss://c.example", "wss://a.example", "wss://b.example"}, cfg.Relays.URLs)
}

func TestSigningKeyring(t *testing.T) {
	creator, err := nostr.GenerateKeySigner()
	require.NoError(t, err)
	other, err := nostr.GenerateKeySigner()
	require.NoError(t, err)

	creatorSecret, err := nostr.EncodeSecretKey(creator.SecretKey())
	require.NoError(t, err)

	keyring, pub, err := SigningConfig{CreatorKey: creatorSecret, Keys: []string{other.SecretKey()}}.Keyring()
	require.NoError(t, err)

	assert.Equal(t, creator.PublicKey(), pub)
	assert.ElementsMatch(t, []string{creator.PublicKey(), other.PublicKey()}, keyring.Keys())
}

func TestRelayConfigNewSource(t *testing.T) {
	src := RelayConfig{Mode: RelayModeMemory}.NewSource(zap.NewNop())
	_, ok := src.(*relay.MemorySource)
	assert.True(t, ok)

	pool := RelayConfig{Mode: RelayModePool, URLs: []string{"wss://relay.example"}}.NewSource(zap.NewNop())
	_, ok = pool.(*relay.Pool)
	assert.True(t, ok)
	assert.NoError(t, pool.(*relay.Pool).Close())
}
