// file: internal/services/service_collection.go
package services

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"badgehub/internal/appinfo"
	"badgehub/internal/cache"
	"badgehub/internal/config"
	"badgehub/internal/events"
	"badgehub/internal/fetch"
	"badgehub/internal/nostr"
	"badgehub/internal/relay"

	"go.uber.org/zap"
)

// ServiceCollection holds every service with its shared infrastructure.
type ServiceCollection struct {
	// Core Services
	AwardService    AwardService    `json:"-"`
	CatalogService  CatalogService  `json:"-"`
	DisplayService  DisplayService  `json:"-"`
	IssuanceService IssuanceService `json:"-"`
	ProfileService  ProfileService  `json:"-"`

	// Resolution pipeline
	Collector *AwardCollector   `json:"-"`
	Joiner    *DefinitionJoiner `json:"-"`
	Scheduler *fetch.Scheduler  `json:"-"`

	// Infrastructure Components
	Source   relay.Source          `json:"-"`
	Cache    cache.DefinitionCache `json:"-"`
	EventBus events.EventBus       `json:"-"`
	Keyring  *nostr.Keyring        `json:"-"`
	Resolver *ResolverConfig       `json:"-"`
	Config   *config.Config        `json:"-"`
	Logger   *zap.Logger           `json:"-"`

	startTime time.Time
	mu        sync.Mutex
	closed    bool
}

// ServiceHealth represents the health status of the service collection
type ServiceHealth struct {
	Status       string                   `json:"status"`
	Version      string                   `json:"version"`
	Timestamp    time.Time                `json:"timestamp"`
	Dependencies map[string]ServiceStatus `json:"dependencies"`
	Uptime       time.Duration            `json:"uptime"`
	Issues       []string                 `json:"issues,omitempty"`
}

// ServiceStatus represents the status of an individual dependency
type ServiceStatus struct {
	Name         string                 `json:"name"`
	Status       string                 `json:"status"` // healthy, degraded, unhealthy
	LastCheck    time.Time              `json:"last_check"`
	ResponseTime time.Duration          `json:"response_time"`
	Error        string                 `json:"error,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// Dependencies are the pieces a collection is assembled from. Nil fields
// get in-memory defaults, except Source which is required.
type Dependencies struct {
	Source   relay.Source
	Cache    cache.DefinitionCache
	EventBus events.EventBus
	Keyring  *nostr.Keyring
	Creator  string
	Resolver *ResolverConfig
	Fetch    *fetch.Scheduler
	NIP05    *NIP05Resolver
}

// NewResolverConfig maps the loaded configuration onto resolver budgets.
func NewResolverConfig(cfg *config.Config) *ResolverConfig {
	rc := DefaultResolverConfig()
	if cfg == nil {
		return rc
	}

	f := cfg.Fetch
	rc.AwardBudget = f.AwardBudget
	rc.DefinitionBudget = f.DefinitionBudget
	rc.FallbackBudget = f.FallbackBudget
	rc.DisplayBudget = f.DisplayBudget
	rc.ProfileBudget = f.ProfileBudget
	rc.CatalogBudget = f.CatalogBudget
	rc.ConfirmBudget = f.ConfirmBudget
	rc.AwardLimit = f.AwardLimit
	rc.DefinitionLimit = f.DefinitionLimit
	rc.CatalogLimit = f.CatalogLimit
	rc.DisplayLimit = f.DisplayLimit
	rc.MaxLookups = f.MaxLookups
	rc.PublishTimeout = cfg.Relays.PublishTimeout
	rc.FallbackPolicy = cfg.Retry.Fallback
	rc.ConfirmPolicy = cfg.Retry.Confirm
	return rc
}

// NewServiceCollection builds the services from configuration on top of
// an already constructed relay source.
func NewServiceCollection(cfg *config.Config, source relay.Source, logger *zap.Logger) (*ServiceCollection, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if source == nil {
		return nil, fmt.Errorf("relay source is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	defs, err := cache.NewCache(&cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	keyring, creator, err := cfg.Signing.Keyring()
	if err != nil {
		defs.Close()
		return nil, fmt.Errorf("failed to load signing keys: %w", err)
	}

	sc, err := NewServiceCollectionFrom(Dependencies{
		Source:   source,
		Cache:    defs,
		Keyring:  keyring,
		Creator:  creator,
		Resolver: NewResolverConfig(cfg),
		Fetch:    fetch.NewScheduler(source, cfg.Retry.Scheduler, logger),
	}, logger)
	if err != nil {
		defs.Close()
		return nil, err
	}
	sc.Config = cfg
	return sc, nil
}

// NewServiceCollectionFrom assembles a collection from explicit
// dependencies.
func NewServiceCollectionFrom(deps Dependencies, logger *zap.Logger) (*ServiceCollection, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("relay source is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sc := &ServiceCollection{
		Source:    deps.Source,
		Cache:     deps.Cache,
		EventBus:  deps.EventBus,
		Keyring:   deps.Keyring,
		Resolver:  deps.Resolver,
		Scheduler: deps.Fetch,
		Logger:    logger,
		startTime: time.Now(),
	}

	sc.initializeInfrastructure()
	sc.initializeServices(deps)

	logger.Info("Service collection initialized",
		zap.Int("signers", len(sc.Keyring.Keys())),
		zap.Bool("creator_configured", deps.Creator != ""),
	)
	return sc, nil
}

// ===============================
// INITIALIZATION METHODS
// ===============================

func (sc *ServiceCollection) initializeInfrastructure() {
	if sc.Resolver == nil {
		sc.Resolver = DefaultResolverConfig()
	}
	if sc.Cache == nil {
		sc.Cache = cache.NewMemoryCache(sc.Logger)
	}
	if sc.Keyring == nil {
		sc.Keyring = nostr.NewKeyring()
	}
	if sc.EventBus == nil {
		sc.EventBus = events.NewInMemoryEventBus(events.DefaultBusConfig(), sc.Logger)
	}
	if sc.Scheduler == nil {
		sc.Scheduler = fetch.NewScheduler(sc.Source, fetch.DefaultPolicy(), sc.Logger)
	}
}

func (sc *ServiceCollection) initializeServices(deps Dependencies) {
	sc.Collector = NewAwardCollector(sc.Scheduler, sc.Cache, sc.Resolver, sc.Logger)
	sc.Joiner = NewDefinitionJoiner(sc.Scheduler, sc.Cache, sc.Resolver, sc.Logger)

	sc.AwardService = NewAwardService(sc.Collector, sc.Joiner, sc.Cache, sc.EventBus, sc.Logger)
	sc.CatalogService = NewCatalogService(sc.Scheduler, sc.Joiner, sc.Cache, sc.Resolver, sc.Logger)
	sc.ProfileService = NewProfileService(sc.Scheduler, sc.Resolver, sc.Logger)
	sc.DisplayService = NewDisplayService(sc.Scheduler, sc.Keyring, sc.EventBus, sc.Resolver, sc.Logger)

	nip05 := deps.NIP05
	if nip05 == nil {
		nip05 = NewNIP05Resolver(&http.Client{Timeout: sc.Resolver.ProfileBudget}, sc.Logger)
	}
	sc.IssuanceService = NewIssuanceService(
		sc.Source,
		sc.Keyring,
		deps.Creator,
		sc.Joiner,
		sc.EventBus,
		nip05,
		sc.Resolver,
		sc.Logger,
	)
}

// Start starts the event bus workers.
func (sc *ServiceCollection) Start(ctx context.Context) error {
	return sc.EventBus.Start(ctx)
}

// ===============================
// HEALTH AND MONITORING
// ===============================

// HealthCheck reports cache and event bus health.
func (sc *ServiceCollection) HealthCheck(ctx context.Context) *ServiceHealth {
	health := &ServiceHealth{
		Status:       "healthy",
		Version:      appinfo.GetVersion(),
		Timestamp:    time.Now(),
		Dependencies: make(map[string]ServiceStatus),
		Uptime:       time.Since(sc.startTime),
	}

	check := func(name string, fn func() error, metadata map[string]interface{}) {
		start := time.Now()
		status := ServiceStatus{Name: name, Status: "healthy", LastCheck: start, Metadata: metadata}
		if err := fn(); err != nil {
			status.Status = "unhealthy"
			status.Error = err.Error()
			health.Status = "degraded"
			health.Issues = append(health.Issues, fmt.Sprintf("%s: %s", name, err))
		}
		status.ResponseTime = time.Since(start)
		health.Dependencies[name] = status
	}

	cacheMeta := map[string]interface{}{}
	if stats, err := sc.Cache.Stats(ctx); err == nil {
		cacheMeta["provider"] = stats.Provider
		cacheMeta["keys"] = stats.Keys
		cacheMeta["hit_ratio"] = stats.HitRatio
	}
	check("cache", func() error { return sc.Cache.Health(ctx) }, cacheMeta)

	busStats := sc.EventBus.Stats()
	check("event_bus", sc.EventBus.Health, map[string]interface{}{
		"published": busStats.Published,
		"failed":    busStats.Failed,
	})

	if pool, ok := sc.Source.(*relay.Pool); ok {
		health.Dependencies["relays"] = ServiceStatus{
			Name:      "relays",
			Status:    "healthy",
			LastCheck: time.Now(),
			Metadata:  map[string]interface{}{"urls": pool.URLs()},
		}
	}

	if len(health.Issues) == len(health.Dependencies) && len(health.Issues) > 0 {
		health.Status = "unhealthy"
	}
	return health
}

// Shutdown stops background work and releases connections.
func (sc *ServiceCollection) Shutdown(ctx context.Context) error {
	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		return nil
	}
	sc.closed = true
	sc.mu.Unlock()

	sc.Logger.Info("Shutting down service collection")

	var errs []error
	if err := sc.DisplayService.Close(); err != nil {
		errs = append(errs, fmt.Errorf("display service: %w", err))
	}
	if err := sc.EventBus.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("event bus: %w", err))
	}
	if err := sc.Cache.Close(); err != nil {
		errs = append(errs, fmt.Errorf("cache: %w", err))
	}
	if closer, ok := sc.Source.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("relay source: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown completed with errors: %v", errs)
	}
	sc.Logger.Info("Service collection shutdown complete")
	return nil
}
