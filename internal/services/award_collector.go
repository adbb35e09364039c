package services

import (
	"context"

	"badgehub/internal/cache"
	"badgehub/internal/fetch"
	"badgehub/internal/models"
	"badgehub/internal/nostr"
	"badgehub/internal/records"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

// AwardCollector gathers the awards naming a recipient and keeps, per badge
// identifier, only the most recent one.
type AwardCollector struct {
	scheduler *fetch.Scheduler
	cache     cache.DefinitionCache
	config    *ResolverConfig
	logger    *zap.Logger
}

// NewAwardCollector creates an award collector.
func NewAwardCollector(scheduler *fetch.Scheduler, defs cache.DefinitionCache, config *ResolverConfig, logger *zap.Logger) *AwardCollector {
	if config == nil {
		config = DefaultResolverConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AwardCollector{
		scheduler: scheduler,
		cache:     defs,
		config:    config,
		logger:    logger,
	}
}

// CollectAwards fetches award records for recipient within the award
// budget. Surviving identifiers that are not cached are planned into the
// returned lookup batch.
func (c *AwardCollector) CollectAwards(ctx context.Context, recipient string) *AwardCollection {
	filter := nostr.Filter{
		Kinds: []int{nostr.KindBadgeAward},
		Limit: c.config.AwardLimit,
	}.WithTag("p", recipient)

	res := c.scheduler.FetchLabeled(ctx, "award", filter, c.config.AwardBudget)

	awards := DedupeAwards(res.Events, recipient, c.logger)

	batch := NewLookupBatch()
	ids := make([]string, len(awards))
	for i, a := range awards {
		ids[i] = a.BadgeID
	}
	cached := c.cache.GetMany(ctx, ids)
	for _, a := range awards {
		if _, ok := cached[a.BadgeID]; ok {
			continue
		}
		batch.Add(a.BadgeID, a.Ref)
	}

	c.logger.Debug("Collected awards",
		zap.String("recipient", recipient),
		zap.Int("records", len(res.Events)),
		zap.Int("awards", len(awards)),
		zap.Int("lookups", batch.Len()),
		zap.Bool("timed_out", res.TimedOut),
	)

	return &AwardCollection{
		Recipient: recipient,
		Awards:    awards,
		Batch:     batch,
		Complete:  res.Complete,
		TimedOut:  res.TimedOut,
	}
}

// DedupeAwards decodes award records naming recipient and keeps one per
// canonical badge identifier: the latest, ties broken by the larger record
// id. The result is ordered newest first.
func DedupeAwards(events []nostr.Event, recipient string, logger *zap.Logger) []models.AwardRecord {
	latest := make(map[string]models.AwardRecord)
	for i := range events {
		award, err := records.DecodeAwardFor(&events[i], recipient)
		if err != nil {
			if logger != nil {
				logger.Debug("Skipping award record",
					zap.String("record_id", events[i].ID),
					zap.Error(err),
				)
			}
			continue
		}
		if current, ok := latest[award.BadgeID]; ok && !award.Supersedes(current) {
			continue
		}
		latest[award.BadgeID] = *award
	}

	out := make([]models.AwardRecord, 0, len(latest))
	for _, a := range latest {
		out = append(out, a)
	}
	slices.SortFunc(out, compareAwards)
	return out
}

func compareAwards(a, b models.AwardRecord) int {
	switch {
	case a.Supersedes(b):
		return -1
	case b.Supersedes(a):
		return 1
	default:
		return 0
	}
}
