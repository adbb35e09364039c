package services

import (
	"context"
	"sync"

	"badgehub/internal/cache"
	"badgehub/internal/fetch"
	"badgehub/internal/models"
	"badgehub/internal/nostr"
	"badgehub/internal/records"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefinitionJoiner resolves the definitions of a lookup batch, one query
// per issuer, and writes every definition it learns into the cache.
type DefinitionJoiner struct {
	scheduler *fetch.Scheduler
	fallback  *fetch.Scheduler
	cache     cache.DefinitionCache
	config    *ResolverConfig
	logger    *zap.Logger
}

// NewDefinitionJoiner creates a joiner. The fallback path reuses the
// scheduler's source with the configured fallback policy.
func NewDefinitionJoiner(scheduler *fetch.Scheduler, defs cache.DefinitionCache, config *ResolverConfig, logger *zap.Logger) *DefinitionJoiner {
	if config == nil {
		config = DefaultResolverConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefinitionJoiner{
		scheduler: scheduler,
		fallback:  scheduler.WithPolicy(config.FallbackPolicy),
		cache:     defs,
		config:    config,
		logger:    logger,
	}
}

// ResolveDefinitions looks up every group of the batch concurrently and
// returns the definitions found, keyed by canonical identifier.
// Identifiers that could not be resolved are absent.
func (j *DefinitionJoiner) ResolveDefinitions(ctx context.Context, batch *LookupBatch) map[string]*models.BadgeDefinition {
	found := make(map[string]*models.BadgeDefinition)
	if batch.Empty() {
		return found
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	if j.config.MaxLookups > 0 {
		g.SetLimit(j.config.MaxLookups)
	}

	for _, group := range batch.Groups() {
		g.Go(func() error {
			defs := j.lookup(gctx, group)

			mu.Lock()
			defer mu.Unlock()
			for _, def := range defs {
				if def.Newer(found[def.ID]) {
					found[def.ID] = def
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, def := range found {
		j.Remember(ctx, def)
	}

	j.logger.Debug("Resolved definitions",
		zap.Int("wanted", batch.Len()),
		zap.Int("found", len(found)),
		zap.Int("issuers", len(batch.Groups())),
	)
	return found
}

// Remember writes definitions learned outside a lookup, such as catalog
// listings and freshly published records, into the cache. The joiner is
// the cache's only writer.
func (j *DefinitionJoiner) Remember(ctx context.Context, defs ...*models.BadgeDefinition) {
	for _, def := range defs {
		if err := j.cache.Set(ctx, def); err != nil {
			j.logger.Warn("Failed to cache definition",
				zap.String("badge_id", def.ID),
				zap.Error(err),
			)
		}
	}
}

func (j *DefinitionJoiner) lookup(ctx context.Context, group *LookupGroup) []*models.BadgeDefinition {
	filter := group.Filter(j.config.DefinitionLimit)

	res := j.scheduler.FetchLabeled(ctx, "definition", filter, j.config.DefinitionBudget)
	if len(res.Events) == 0 {
		j.logger.Debug("Definition lookup empty, trying fallback",
			zap.String("issuer", group.Issuer),
			zap.Strings("slugs", group.Slugs),
			zap.Bool("timed_out", res.TimedOut),
		)
		res = j.fallback.FetchLabeled(ctx, "definition_fallback", filter, j.config.FallbackBudget)
	}

	return decodeDefinitions(res.Events, j.logger)
}

// decodeDefinitions keeps the latest definition per identifier.
func decodeDefinitions(events []nostr.Event, logger *zap.Logger) []*models.BadgeDefinition {
	latest := make(map[string]*models.BadgeDefinition)
	for i := range events {
		def, err := records.DecodeDefinition(&events[i])
		if err != nil {
			logger.Debug("Skipping definition record",
				zap.String("record_id", events[i].ID),
				zap.Error(err),
			)
			continue
		}
		if def.Newer(latest[def.ID]) {
			latest[def.ID] = def
		}
	}

	out := make([]*models.BadgeDefinition, 0, len(latest))
	for _, def := range latest {
		out = append(out, def)
	}
	return out
}
