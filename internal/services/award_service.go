package services

import (
	"context"

	"badgehub/internal/cache"
	"badgehub/internal/events"
	"badgehub/internal/metrics"
	"badgehub/internal/models"

	"go.uber.org/zap"
)

type awardService struct {
	collector *AwardCollector
	joiner    *DefinitionJoiner
	cache     cache.DefinitionCache
	eventBus  events.EventBus
	logger    *zap.Logger
}

// NewAwardService creates the award resolution service.
func NewAwardService(collector *AwardCollector, joiner *DefinitionJoiner, defs cache.DefinitionCache, eventBus events.EventBus, logger *zap.Logger) AwardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &awardService{
		collector: collector,
		joiner:    joiner,
		cache:     defs,
		eventBus:  eventBus,
		logger:    logger,
	}
}

// ResolveAwardsFor implements AwardService.
func (s *awardService) ResolveAwardsFor(ctx context.Context, recipient string) []*models.ResolvedAward {
	awards, batch := s.PreviewAwardsFor(ctx, recipient)
	if !batch.Empty() {
		upgrade(awards, s.joiner.ResolveDefinitions(ctx, batch))
	}

	pending := 0
	for _, a := range awards {
		if a.Pending {
			pending++
		}
	}
	if pending > 0 {
		metrics.PendingAwardsServed.Add(float64(pending))
		s.logger.Info("Serving awards with unresolved definitions",
			zap.String("recipient", recipient),
			zap.Int("awards", len(awards)),
			zap.Int("pending", pending),
		)
	}
	return awards
}

// PreviewAwardsFor implements AwardService.
func (s *awardService) PreviewAwardsFor(ctx context.Context, recipient string) ([]*models.ResolvedAward, *LookupBatch) {
	collection := s.collector.CollectAwards(ctx, recipient)

	ids := make([]string, len(collection.Awards))
	for i, a := range collection.Awards {
		ids[i] = a.BadgeID
	}
	cached := s.cache.GetMany(ctx, ids)

	awards := make([]*models.ResolvedAward, 0, len(collection.Awards))
	for _, a := range collection.Awards {
		resolved := models.NewPendingAward(a)
		resolved.Resolve(cached[a.BadgeID])
		awards = append(awards, resolved)
	}
	return awards, collection.Batch
}

// UpgradePending implements AwardService.
func (s *awardService) UpgradePending(ctx context.Context, recipient string, awards []*models.ResolvedAward) int {
	var pending []string
	for _, a := range awards {
		if a.Pending {
			pending = append(pending, a.ID)
		}
	}
	if len(pending) == 0 {
		return 0
	}

	// Another resolution may have cached some of them meanwhile.
	resolved := upgrade(awards, s.cache.GetMany(ctx, pending))

	batch := NewLookupBatch()
	for _, a := range awards {
		if a.Pending {
			batch.Add(a.ID, a.ID)
		}
	}
	if !batch.Empty() {
		resolved = append(resolved, upgrade(awards, s.joiner.ResolveDefinitions(ctx, batch))...)
	}

	if len(resolved) > 0 && s.eventBus != nil {
		if err := s.eventBus.Publish(ctx, events.NewDefinitionResolvedEvent(recipient, resolved)); err != nil {
			s.logger.Warn("Failed to publish definition event", zap.Error(err))
		}
	}
	return len(resolved)
}

// upgrade fills pending awards from defs in place and returns the badge
// identifiers it resolved.
func upgrade(awards []*models.ResolvedAward, defs map[string]*models.BadgeDefinition) []string {
	var ids []string
	for _, a := range awards {
		if !a.Pending {
			continue
		}
		if def, ok := defs[a.ID]; ok {
			a.Resolve(def)
			ids = append(ids, a.ID)
		}
	}
	return ids
}
