package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"badgehub/internal/badgeid"
	"badgehub/internal/events"
	"badgehub/internal/models"
	"badgehub/internal/nostr"
	"badgehub/internal/records"
	"badgehub/internal/relay"

	"go.uber.org/zap"
)

type issuanceService struct {
	source   relay.Source
	keyring  *nostr.Keyring
	creator  string
	joiner   *DefinitionJoiner
	eventBus events.EventBus
	nip05    *NIP05Resolver
	config   *ResolverConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewIssuanceService creates the service that publishes definitions and
// awards. creator is the public key used for claims and may be empty.
func NewIssuanceService(
	source relay.Source,
	keyring *nostr.Keyring,
	creator string,
	joiner *DefinitionJoiner,
	eventBus events.EventBus,
	nip05 *NIP05Resolver,
	config *ResolverConfig,
	logger *zap.Logger,
) IssuanceService {
	if config == nil {
		config = DefaultResolverConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if nip05 == nil {
		nip05 = NewNIP05Resolver(nil, logger)
	}
	return &issuanceService{
		source:   source,
		keyring:  keyring,
		creator:  strings.ToLower(creator),
		joiner:   joiner,
		eventBus: eventBus,
		nip05:    nip05,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateDefinition publishes a badge definition signed by issuer.
func (s *issuanceService) CreateDefinition(ctx context.Context, issuer string, req *CreateDefinitionRequest) (*models.BadgeDefinition, error) {
	issuerKey, err := nostr.DecodePublicKey(issuer)
	if err != nil {
		return nil, InvalidKeyError("issuer", issuer, err)
	}
	if req == nil || badgeid.NormalizeSlug(req.Slug) == "" {
		return nil, NewValidationError("Badge slug is required", nil)
	}

	signer, ok := s.keyring.Lookup(issuerKey)
	if !ok {
		return nil, SignerUnavailableError(issuerKey)
	}

	event, err := signer.Sign(records.DefinitionTemplate(records.DefinitionInput{
		Slug:        badgeid.NormalizeSlug(req.Slug),
		Name:        req.Name,
		Description: req.Description,
		Image:       req.Image,
		Thumb:       req.Thumb,
	}, s.now().Unix()))
	if err != nil {
		return nil, NewInternalError("Failed to sign definition", err)
	}

	if err := s.publish(ctx, event); err != nil {
		return nil, err
	}

	def, err := records.DecodeDefinition(event)
	if err != nil {
		return nil, NewInternalError("Failed to decode published definition", err)
	}
	s.joiner.Remember(ctx, def)

	s.logger.Info("Badge definition published",
		zap.String("badge_id", def.ID),
		zap.String("record_id", event.ID),
	)
	return def, nil
}

// AwardBadge publishes one award record naming every recipient.
func (s *issuanceService) AwardBadge(ctx context.Context, issuer, badgeID string, recipients []string) (*models.AwardRecord, error) {
	issuerKey, err := nostr.DecodePublicKey(issuer)
	if err != nil {
		return nil, InvalidKeyError("issuer", issuer, err)
	}
	parsed, ok := badgeid.Parse(badgeID)
	if !ok || parsed.Kind != nostr.KindBadgeDefinition {
		return nil, InvalidIdentifierError(badgeID)
	}
	if parsed.Issuer != issuerKey {
		return nil, NewForbiddenError("Only the issuer of a badge can award it", nil).
			WithDetail("badge_id", parsed.String())
	}
	if len(recipients) == 0 {
		return nil, NewValidationError("At least one recipient is required", nil)
	}

	signer, ok := s.keyring.Lookup(issuerKey)
	if !ok {
		return nil, SignerUnavailableError(issuerKey)
	}

	keys := make([]string, 0, len(recipients))
	for _, r := range recipients {
		key, err := s.ResolveRecipient(ctx, r)
		if err != nil {
			return nil, err
		}
		keys = appendUnique(keys, key)
	}

	event, err := signer.Sign(records.AwardTemplate(parsed.String(), keys, s.now().Unix()))
	if err != nil {
		return nil, NewInternalError("Failed to sign award", err)
	}
	if err := s.publish(ctx, event); err != nil {
		return nil, err
	}

	award, err := records.DecodeAward(event)
	if err != nil {
		return nil, NewInternalError("Failed to decode published award", err)
	}

	if s.eventBus != nil {
		if err := s.eventBus.Publish(ctx, events.NewAwardIssuedEvent(award.ID, award.BadgeID, issuerKey, award.Recipients)); err != nil {
			s.logger.Warn("Failed to publish award event", zap.Error(err))
		}
	}

	s.logger.Info("Badge awarded",
		zap.String("badge_id", award.BadgeID),
		zap.String("record_id", award.ID),
		zap.Int("recipients", len(award.Recipients)),
	)
	return award, nil
}

// ClaimBadge awards a badge of the configured creator key to recipient.
func (s *issuanceService) ClaimBadge(ctx context.Context, badgeID, recipient string) (*models.AwardRecord, error) {
	if s.creator == "" {
		return nil, SignerUnavailableError("creator")
	}
	return s.AwardBadge(ctx, s.creator, badgeID, []string{recipient})
}

// ResolveRecipient accepts a hex key, an npub or a name@domain identifier.
func (s *issuanceService) ResolveRecipient(ctx context.Context, recipient string) (string, error) {
	recipient = strings.TrimSpace(recipient)
	if strings.Contains(recipient, "@") {
		key, err := s.nip05.Resolve(ctx, recipient)
		if err != nil {
			if errors.Is(err, ErrIdentifierNotFound) || errors.Is(err, ErrInvalidKey) {
				return "", InvalidKeyError("recipient", recipient, err)
			}
			return "", NewUpstreamError("Failed to resolve identifier", err).WithDetail("recipient", recipient)
		}
		return key, nil
	}

	key, err := nostr.DecodePublicKey(recipient)
	if err != nil {
		return "", InvalidKeyError("recipient", recipient, err)
	}
	return key, nil
}

func (s *issuanceService) publish(ctx context.Context, event *nostr.Event) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.PublishTimeout)
	defer cancel()

	if err := s.source.Publish(ctx, *event); err != nil {
		s.logger.Warn("Publish rejected",
			zap.Int("kind", event.Kind),
			zap.String("record_id", event.ID),
			zap.Error(err),
		)
		return PublishRejectedError(event.Kind, err)
	}
	return nil
}
