package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"badgehub/internal/appinfo"
	"badgehub/internal/cache"
	"badgehub/internal/nostr"
	"badgehub/internal/retry"

	"github.com/joho/godotenv"
)

// DefaultRelays are used when neither RELAY_URLS nor a relay file is set.
var DefaultRelays = []string{
	"wss://relay.damus.io",
	"wss://nos.lol",
	"wss://relay.nostr.band",
	"wss://relay.primal.net",
}

// Relay modes.
const (
	RelayModePool   = "pool"
	RelayModeMemory = "memory"
)

// Config holds all configuration for the application
type Config struct {
	Server  ServerConfig  `json:"server"`
	Relays  RelayConfig   `json:"relays"`
	Fetch   FetchConfig   `json:"fetch"`
	Retry   RetryConfig   `json:"retry"`
	Cache   cache.Config  `json:"cache"`
	Signing SigningConfig `json:"-"`
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string        `json:"port"`
	Host            string        `json:"host"`
	Environment     string        `json:"environment"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	GracefulTimeout time.Duration `json:"graceful_timeout"`
	AllowedOrigins  []string      `json:"allowed_origins"`
}

// RelayConfig selects the relays records are read from and written to.
type RelayConfig struct {
	Mode           string        `json:"mode"`
	URLs           []string      `json:"urls"`
	File           string        `json:"file"`
	DialTimeout    time.Duration `json:"dial_timeout"`
	PublishTimeout time.Duration `json:"publish_timeout"`
}

// FetchConfig bounds every relay read.
type FetchConfig struct {
	AwardBudget      time.Duration `json:"award_budget"`
	DefinitionBudget time.Duration `json:"definition_budget"`
	FallbackBudget   time.Duration `json:"fallback_budget"`
	DisplayBudget    time.Duration `json:"display_budget"`
	ProfileBudget    time.Duration `json:"profile_budget"`
	CatalogBudget    time.Duration `json:"catalog_budget"`
	ConfirmBudget    time.Duration `json:"confirm_budget"`

	AwardLimit      int `json:"award_limit"`
	DefinitionLimit int `json:"definition_limit"`
	CatalogLimit    int `json:"catalog_limit"`
	DisplayLimit    int `json:"display_limit"`
	MaxLookups      int `json:"max_lookups"`
}

// RetryConfig holds the retry policies of the scheduler, the definition
// fallback path and display confirmation.
type RetryConfig struct {
	Scheduler retry.Policy `json:"scheduler"`
	Fallback  retry.Policy `json:"fallback"`
	Confirm   retry.Policy `json:"confirm"`
}

// SigningConfig holds the secret keys the server may sign with.
type SigningConfig struct {
	CreatorKey string
	Keys       []string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	env := appinfo.GetEnvironment()
	if env != "production" {
		envFile := fmt.Sprintf(".env.%s", env)
		if _, err := os.Stat(envFile); err == nil {
			_ = godotenv.Load(envFile)
		} else {
			_ = godotenv.Load()
		}
	}

	config := &Config{
		Server:  loadServerConfig(env),
		Relays:  loadRelayConfig(),
		Fetch:   loadFetchConfig(),
		Retry:   loadRetryConfig(),
		Cache:   loadCacheConfig(),
		Signing: loadSigningConfig(),
		Logging: loadLoggingConfig(env),
	}

	if config.Relays.File != "" {
		urls, err := LoadRelayFile(config.Relays.File)
		if err != nil {
			return nil, fmt.Errorf("failed to load relay file: %w", err)
		}
		config.Relays.URLs = mergeRelays(config.Relays.URLs, urls)
	}
	if len(config.Relays.URLs) == 0 {
		config.Relays.URLs = append([]string(nil), DefaultRelays...)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// Default returns the configuration used when no environment is set.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Port: "8080", Environment: "development", ReadTimeout: 15 * time.Second, WriteTimeout: 30 * time.Second, IdleTimeout: 60 * time.Second, GracefulTimeout: 15 * time.Second},
		Relays:  RelayConfig{Mode: RelayModePool, URLs: append([]string(nil), DefaultRelays...), DialTimeout: 5 * time.Second, PublishTimeout: 5 * time.Second},
		Fetch:   defaultFetchConfig(),
		Retry:   defaultRetryConfig(),
		Cache:   *cache.DefaultConfig(),
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

func loadServerConfig(env string) ServerConfig {
	return ServerConfig{
		Port:            getEnv("PORT", "8080"),
		Host:            getEnv("HOST", ""),
		Environment:     env,
		ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:     getDurationEnv("SERVER_IDLE_TIMEOUT", 60*time.Second),
		GracefulTimeout: getDurationEnv("SERVER_GRACEFUL_TIMEOUT", 15*time.Second),
		AllowedOrigins:  getListEnv("ALLOWED_ORIGINS", nil),
	}
}

func loadRelayConfig() RelayConfig {
	return RelayConfig{
		Mode:           strings.ToLower(getEnv("RELAY_MODE", RelayModePool)),
		URLs:           getListEnv("RELAY_URLS", nil),
		File:           getEnv("RELAY_FILE", ""),
		DialTimeout:    getDurationEnv("RELAY_DIAL_TIMEOUT", 5*time.Second),
		PublishTimeout: getDurationEnv("RELAY_PUBLISH_TIMEOUT", 5*time.Second),
	}
}

func defaultFetchConfig() FetchConfig {
	return FetchConfig{
		AwardBudget:      5 * time.Second,
		DefinitionBudget: 3 * time.Second,
		FallbackBudget:   2 * time.Second,
		DisplayBudget:    3 * time.Second,
		ProfileBudget:    3 * time.Second,
		CatalogBudget:    5 * time.Second,
		ConfirmBudget:    time.Second,
		AwardLimit:       500,
		DefinitionLimit:  200,
		CatalogLimit:     100,
		DisplayLimit:     10,
		MaxLookups:       8,
	}
}

func loadFetchConfig() FetchConfig {
	d := defaultFetchConfig()
	return FetchConfig{
		AwardBudget:      getDurationEnv("FETCH_AWARD_BUDGET", d.AwardBudget),
		DefinitionBudget: getDurationEnv("FETCH_DEFINITION_BUDGET", d.DefinitionBudget),
		FallbackBudget:   getDurationEnv("FETCH_FALLBACK_BUDGET", d.FallbackBudget),
		DisplayBudget:    getDurationEnv("FETCH_DISPLAY_BUDGET", d.DisplayBudget),
		ProfileBudget:    getDurationEnv("FETCH_PROFILE_BUDGET", d.ProfileBudget),
		CatalogBudget:    getDurationEnv("FETCH_CATALOG_BUDGET", d.CatalogBudget),
		ConfirmBudget:    getDurationEnv("FETCH_CONFIRM_BUDGET", d.ConfirmBudget),
		AwardLimit:       getIntEnv("FETCH_AWARD_LIMIT", d.AwardLimit),
		DefinitionLimit:  getIntEnv("FETCH_DEFINITION_LIMIT", d.DefinitionLimit),
		CatalogLimit:     getIntEnv("FETCH_CATALOG_LIMIT", d.CatalogLimit),
		DisplayLimit:     getIntEnv("FETCH_DISPLAY_LIMIT", d.DisplayLimit),
		MaxLookups:       getIntEnv("FETCH_MAX_LOOKUPS", d.MaxLookups),
	}
}

func defaultRetryConfig() RetryConfig {
	return RetryConfig{
		Scheduler: retry.Policy{MaxAttempts: 3, Interval: 250 * time.Millisecond, Strategy: retry.StrategyLinear},
		Fallback:  retry.Policy{MaxAttempts: 2, Interval: 200 * time.Millisecond, Strategy: retry.StrategyLinear},
		Confirm:   retry.Policy{MaxAttempts: 6, Interval: 100 * time.Millisecond, MaxInterval: 2 * time.Second, Strategy: retry.StrategyExponential},
	}
}

func loadRetryConfig() RetryConfig {
	d := defaultRetryConfig()
	return RetryConfig{
		Scheduler: loadPolicy("RETRY", d.Scheduler),
		Fallback:  loadPolicy("FALLBACK_RETRY", d.Fallback),
		Confirm:   loadPolicy("CONFIRM_RETRY", d.Confirm),
	}
}

func loadPolicy(prefix string, d retry.Policy) retry.Policy {
	return retry.Policy{
		MaxAttempts: getIntEnv(prefix+"_ATTEMPTS", d.MaxAttempts),
		Interval:    getDurationEnv(prefix+"_INTERVAL", d.Interval),
		MaxInterval: getDurationEnv(prefix+"_MAX_INTERVAL", d.MaxInterval),
		Strategy:    retry.Strategy(getEnv(prefix+"_STRATEGY", string(d.Strategy))),
	}
}

func loadCacheConfig() cache.Config {
	d := cache.DefaultConfig()
	return cache.Config{
		Provider:      getEnv("CACHE_PROVIDER", d.Provider),
		RedisURL:      getEnv("REDIS_URL", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		PoolSize:      getIntEnv("REDIS_POOL_SIZE", d.PoolSize),
		KeyPrefix:     getEnv("CACHE_KEY_PREFIX", d.KeyPrefix),
	}
}

func loadSigningConfig() SigningConfig {
	return SigningConfig{
		CreatorKey: getEnv("CREATOR_NSEC", ""),
		Keys:       getListEnv("SIGNER_KEYS", nil),
	}
}

func loadLoggingConfig(env string) LoggingConfig {
	return LoggingConfig{
		Level:  getEnv("LOG_LEVEL", getDefaultLogLevel(env)),
		Format: getEnv("LOG_FORMAT", getDefaultLogFormat(env)),
	}
}

// ===============================
// SIGNING
// ===============================

// Keyring builds the signer keyring and returns the creator's public key,
// which is empty when no creator key is configured.
func (s SigningConfig) Keyring() (*nostr.Keyring, string, error) {
	keyring := nostr.NewKeyring()

	var creator string
	if s.CreatorKey != "" {
		signer, err := nostr.NewKeySigner(s.CreatorKey)
		if err != nil {
			return nil, "", fmt.Errorf("creator key: %w", err)
		}
		keyring.Add(signer)
		creator = signer.PublicKey()
	}

	for i, key := range s.Keys {
		signer, err := nostr.NewKeySigner(key)
		if err != nil {
			return nil, "", fmt.Errorf("signer key %d: %w", i, err)
		}
		keyring.Add(signer)
	}
	return keyring, creator, nil
}

// ===============================
// VALIDATION
// ===============================

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error
	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server config: %w", err))
	}
	if err := c.Relays.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("relay config: %w", err))
	}
	if err := c.Fetch.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("fetch config: %w", err))
	}
	if err := c.Retry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("retry config: %w", err))
	}
	switch strings.ToLower(c.Cache.Provider) {
	case "", "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("cache config: unsupported provider %q", c.Cache.Provider))
	}
	if _, _, err := c.Signing.Keyring(); err != nil {
		errs = append(errs, fmt.Errorf("signing config: %w", err))
	}
	return errors.Join(errs...)
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	port, err := strconv.Atoi(s.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %q", s.Port)
	}
	return nil
}

// Validate validates relay configuration
func (r *RelayConfig) Validate() error {
	switch r.Mode {
	case RelayModeMemory:
		return nil
	case RelayModePool:
	default:
		return fmt.Errorf("unknown relay mode %q", r.Mode)
	}
	if len(r.URLs) == 0 {
		return fmt.Errorf("at least one relay URL is required")
	}
	for _, raw := range r.URLs {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			return fmt.Errorf("invalid relay URL %q", raw)
		}
	}
	return nil
}

// Validate validates fetch budgets
func (f *FetchConfig) Validate() error {
	budgets := map[string]time.Duration{
		"award":      f.AwardBudget,
		"definition": f.DefinitionBudget,
		"fallback":   f.FallbackBudget,
		"display":    f.DisplayBudget,
		"profile":    f.ProfileBudget,
		"catalog":    f.CatalogBudget,
		"confirm":    f.ConfirmBudget,
	}
	for name, budget := range budgets {
		if budget <= 0 {
			return fmt.Errorf("%s budget must be positive", name)
		}
	}
	if f.FallbackBudget > f.DefinitionBudget {
		return fmt.Errorf("fallback budget must not exceed the definition budget")
	}
	if f.DefinitionBudget >= f.AwardBudget {
		return fmt.Errorf("definition budget must be shorter than the award budget")
	}
	return nil
}

// Validate validates the retry policies
func (r *RetryConfig) Validate() error {
	if err := r.Scheduler.Validate(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	if err := r.Fallback.Validate(); err != nil {
		return fmt.Errorf("fallback: %w", err)
	}
	if err := r.Confirm.Validate(); err != nil {
		return fmt.Errorf("confirm: %w", err)
	}
	if r.Fallback.MaxAttempts >= r.Scheduler.MaxAttempts {
		return fmt.Errorf("fallback must make fewer attempts than the scheduler")
	}
	return nil
}

// IsProduction returns true if running in production
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// IsDevelopment returns true if running in development
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// ===============================
// HELPERS
// ===============================

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getDefaultLogLevel(env string) string {
	switch env {
	case "production":
		return "info"
	default:
		return "debug"
	}
}

func getDefaultLogFormat(env string) string {
	switch env {
	case "production":
		return "json"
	default:
		return "console"
	}
}
