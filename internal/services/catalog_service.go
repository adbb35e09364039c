package services

import (
	"context"
	"fmt"
	"strings"

	"badgehub/internal/badgeid"
	"badgehub/internal/cache"
	"badgehub/internal/fetch"
	"badgehub/internal/models"
	"badgehub/internal/nostr"
	"badgehub/internal/records"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

type catalogService struct {
	scheduler *fetch.Scheduler
	joiner    *DefinitionJoiner
	cache     cache.DefinitionCache
	config    *ResolverConfig
	logger    *zap.Logger
}

// NewCatalogService creates the definition catalog service.
func NewCatalogService(scheduler *fetch.Scheduler, joiner *DefinitionJoiner, defs cache.DefinitionCache, config *ResolverConfig, logger *zap.Logger) CatalogService {
	if config == nil {
		config = DefaultResolverConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &catalogService{
		scheduler: scheduler,
		joiner:    joiner,
		cache:     defs,
		config:    config,
		logger:    logger,
	}
}

// ListDefinitions returns the latest definitions, optionally restricted to
// one issuer, newest first. Every definition seen is cached.
func (s *catalogService) ListDefinitions(ctx context.Context, issuer string) ([]*models.BadgeDefinition, error) {
	filter := nostr.Filter{
		Kinds: []int{nostr.KindBadgeDefinition},
		Limit: s.config.CatalogLimit,
	}
	if issuer != "" {
		key, err := nostr.DecodePublicKey(issuer)
		if err != nil {
			return nil, InvalidKeyError("issuer", issuer, err)
		}
		filter.Authors = []string{key}
	}

	res := s.scheduler.FetchLabeled(ctx, "catalog", filter, s.config.CatalogBudget)
	defs := decodeDefinitions(res.Events, s.logger)

	s.joiner.Remember(ctx, defs...)

	slices.SortFunc(defs, func(a, b *models.BadgeDefinition) int {
		switch {
		case a.Newer(b):
			return -1
		case b.Newer(a):
			return 1
		default:
			return 0
		}
	})
	return defs, nil
}

// GetDefinition returns one definition, reading through the cache.
func (s *catalogService) GetDefinition(ctx context.Context, badgeID string) (*models.BadgeDefinition, error) {
	parsed, ok := badgeid.Parse(badgeID)
	if !ok {
		return nil, InvalidIdentifierError(badgeID)
	}
	canonical := parsed.String()

	if def, ok := s.cache.Get(ctx, canonical); ok {
		return def, nil
	}

	batch := NewLookupBatch()
	batch.Add(canonical, badgeID)
	if def, ok := s.joiner.ResolveDefinitions(ctx, batch)[canonical]; ok {
		return def, nil
	}
	return nil, NewNotFoundError(fmt.Sprintf("Badge %s not found", canonical)).WithDetail("badge_id", canonical)
}

// ListRecipients returns the latest award of the badge per recipient,
// newest first.
func (s *catalogService) ListRecipients(ctx context.Context, badgeID string) ([]*RecipientAward, error) {
	parsed, ok := badgeid.Parse(badgeID)
	if !ok {
		return nil, InvalidIdentifierError(badgeID)
	}
	canonical := parsed.String()

	refs := []string{canonical}
	if raw := badgeID; raw != canonical {
		refs = append(refs, raw)
	}
	filter := nostr.Filter{
		Kinds: []int{nostr.KindBadgeAward},
		Limit: s.config.AwardLimit,
	}.WithTag("a", refs...)

	res := s.scheduler.FetchLabeled(ctx, "recipients", filter, s.config.AwardBudget)

	latest := make(map[string]models.AwardRecord)
	for i := range res.Events {
		award, err := records.DecodeAward(&res.Events[i])
		if err != nil || award.BadgeID != canonical {
			continue
		}
		for _, p := range award.Recipients {
			p = strings.ToLower(p)
			if current, ok := latest[p]; ok && !award.Supersedes(current) {
				continue
			}
			latest[p] = *award
		}
	}

	out := make([]*RecipientAward, 0, len(latest))
	for p, a := range latest {
		out = append(out, &RecipientAward{
			Recipient: p,
			AwardID:   a.ID,
			Awarder:   a.Awarder,
			AwardedAt: a.CreatedAt,
		})
	}
	slices.SortFunc(out, func(a, b *RecipientAward) int {
		switch {
		case a.AwardedAt != b.AwardedAt:
			if a.AwardedAt > b.AwardedAt {
				return -1
			}
			return 1
		case a.Recipient < b.Recipient:
			return -1
		case a.Recipient > b.Recipient:
			return 1
		default:
			return 0
		}
	})
	return out, nil
}
