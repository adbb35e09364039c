// file: internal/services/interface.go
package services

import (
	"context"

	"badgehub/internal/models"
)

// ===============================
// CORE SERVICE INTERFACES
// ===============================

// AwardService resolves the badges a recipient has been awarded.
type AwardService interface {
	// ResolveAwardsFor returns the recipient's deduplicated awards joined
	// with their definitions. Awards whose definition could not be found
	// in time are returned as pending placeholders.
	ResolveAwardsFor(ctx context.Context, recipient string) []*models.ResolvedAward

	// PreviewAwardsFor joins awards with cached definitions only and
	// returns the batch still to be looked up.
	PreviewAwardsFor(ctx context.Context, recipient string) ([]*models.ResolvedAward, *LookupBatch)

	// UpgradePending resolves pending placeholders in place and returns
	// how many were upgraded.
	UpgradePending(ctx context.Context, recipient string, awards []*models.ResolvedAward) int
}

// CatalogService browses badge definitions and their recipients.
type CatalogService interface {
	ListDefinitions(ctx context.Context, issuer string) ([]*models.BadgeDefinition, error)
	GetDefinition(ctx context.Context, badgeID string) (*models.BadgeDefinition, error)
	ListRecipients(ctx context.Context, badgeID string) ([]*RecipientAward, error)
}

// DisplayService owns each user's profile display list.
type DisplayService interface {
	GetDisplayList(ctx context.Context, user string) (*models.ProfileDisplayList, error)
	ToggleDisplay(ctx context.Context, user, badgeID, awardID string, action models.DisplayAction) (*ToggleResult, error)
	State(user string) DisplayState
	Close() error
}

// IssuanceService publishes new definitions and awards.
type IssuanceService interface {
	CreateDefinition(ctx context.Context, issuer string, req *CreateDefinitionRequest) (*models.BadgeDefinition, error)
	AwardBadge(ctx context.Context, issuer, badgeID string, recipients []string) (*models.AwardRecord, error)
	ClaimBadge(ctx context.Context, badgeID, recipient string) (*models.AwardRecord, error)
	ResolveRecipient(ctx context.Context, recipient string) (string, error)
}

// ProfileService reads profile metadata.
type ProfileService interface {
	GetProfile(ctx context.Context, pubkey string) (*models.ProfileMetadata, error)
}
