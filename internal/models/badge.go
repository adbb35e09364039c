package models

import (
	"badgehub/internal/nostr"
)

// UnnamedBadge is shown for definitions published without a name tag.
const UnnamedBadge = "Unnamed Badge"

// BadgeDefinition describes a badge as published by its issuer.
// Immutable once resolved.
type BadgeDefinition struct {
	ID          string       `json:"id"`
	Kind        int          `json:"kind"`
	Slug        string       `json:"slug"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Image       string       `json:"image"`
	Thumb       string       `json:"thumb,omitempty"`
	Issuer      string       `json:"issuer"`
	CreatedAt   int64        `json:"created_at"`
	RecordID    string       `json:"record_id"`
	Raw         *nostr.Event `json:"-"`
}

// Newer reports whether d should replace other for the same identifier.
func (d *BadgeDefinition) Newer(other *BadgeDefinition) bool {
	if other == nil {
		return true
	}
	if d.CreatedAt != other.CreatedAt {
		return d.CreatedAt > other.CreatedAt
	}
	return d.RecordID > other.RecordID
}

// AwardRecord asserts that Awarder granted the badge BadgeID to the
// recipients. BadgeID is canonical.
type AwardRecord struct {
	ID         string   `json:"id"`
	BadgeID    string   `json:"badge_id"`
	Ref        string   `json:"-"` // badge reference as published
	Awarder    string   `json:"awarder"`
	Recipients []string `json:"recipients"`
	CreatedAt  int64    `json:"created_at"`
}

// Supersedes reports whether a wins over b when both reference the same
// badge for the same recipient: latest timestamp, then larger record id.
func (a AwardRecord) Supersedes(b AwardRecord) bool {
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt > b.CreatedAt
	}
	return a.ID > b.ID
}

// ResolvedAward is a definition joined with its surviving award. Pending
// awards carry only the identifier until their definition arrives.
type ResolvedAward struct {
	BadgeDefinition
	AwardID   string `json:"award_id"`
	Awarder   string `json:"awarder"`
	AwardedAt int64  `json:"awarded_at"`
	Pending   bool   `json:"pending"`
}

// NewPendingAward creates a placeholder for an award whose definition is
// not known yet.
func NewPendingAward(a AwardRecord) *ResolvedAward {
	return &ResolvedAward{
		BadgeDefinition: BadgeDefinition{ID: a.BadgeID},
		AwardID:         a.ID,
		Awarder:         a.Awarder,
		AwardedAt:       a.CreatedAt,
		Pending:         true,
	}
}

// Resolve upgrades the award in place with its definition.
func (r *ResolvedAward) Resolve(def *BadgeDefinition) {
	if def == nil {
		return
	}
	r.BadgeDefinition = *def
	r.Pending = false
}
