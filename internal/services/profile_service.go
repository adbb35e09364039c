package services

import (
	"context"
	"fmt"

	"badgehub/internal/fetch"
	"badgehub/internal/models"
	"badgehub/internal/nostr"
	"badgehub/internal/records"

	"go.uber.org/zap"
)

type profileService struct {
	scheduler *fetch.Scheduler
	config    *ResolverConfig
	logger    *zap.Logger
}

// NewProfileService creates the profile metadata service.
func NewProfileService(scheduler *fetch.Scheduler, config *ResolverConfig, logger *zap.Logger) ProfileService {
	if config == nil {
		config = DefaultResolverConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &profileService{scheduler: scheduler, config: config, logger: logger}
}

// GetProfile decodes the latest metadata record of pubkey.
func (s *profileService) GetProfile(ctx context.Context, pubkey string) (*models.ProfileMetadata, error) {
	filter := nostr.Filter{
		Kinds:   []int{nostr.KindMetadata},
		Authors: []string{pubkey},
		Limit:   s.config.DisplayLimit,
	}
	res := s.scheduler.FetchLabeled(ctx, "profile", filter, s.config.ProfileBudget)

	var latest *nostr.Event
	for i := range res.Events {
		e := &res.Events[i]
		if e.PubKey != pubkey {
			continue
		}
		if e.Newer(latest) {
			latest = e
		}
	}
	if latest == nil {
		return nil, NewNotFoundError(fmt.Sprintf("No profile found for %s", pubkey)).WithDetail("pubkey", pubkey)
	}

	profile, err := records.DecodeProfile(latest)
	if err != nil {
		s.logger.Warn("Malformed profile record",
			zap.String("pubkey", pubkey),
			zap.String("record_id", latest.ID),
			zap.Error(err),
		)
		return &models.ProfileMetadata{PubKey: pubkey, UpdatedAt: latest.CreatedAt}, nil
	}
	return profile, nil
}
