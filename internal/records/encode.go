package records

import (
	"strings"

	"badgehub/internal/badgeid"
	"badgehub/internal/models"
	"badgehub/internal/nostr"
)

// DefinitionInput holds the fields of a new badge definition.
type DefinitionInput struct {
	Slug        string
	Name        string
	Description string
	Image       string
	Thumb       string
}

// DefinitionTemplate builds an unsigned badge definition record.
func DefinitionTemplate(in DefinitionInput, createdAt int64) nostr.Template {
	tags := nostr.Tags{
		{"d", strings.TrimSpace(in.Slug)},
		{"name", strings.TrimSpace(in.Name)},
		{"description", strings.TrimSpace(in.Description)},
		{"image", strings.TrimSpace(in.Image)},
	}
	if thumb := strings.TrimSpace(in.Thumb); thumb != "" {
		tags = append(tags, nostr.Tag{"thumb", thumb})
	}
	return nostr.Template{
		Kind:      nostr.KindBadgeDefinition,
		CreatedAt: createdAt,
		Tags:      tags,
	}
}

// AwardTemplate builds an unsigned award record for one or more recipients.
func AwardTemplate(badgeID string, recipients []string, createdAt int64) nostr.Template {
	tags := nostr.Tags{{"a", badgeid.Normalize(badgeID)}}
	for _, p := range recipients {
		tags = append(tags, nostr.Tag{"p", p})
	}
	return nostr.Template{
		Kind:      nostr.KindBadgeAward,
		CreatedAt: createdAt,
		Tags:      tags,
	}
}

// DisplayListTemplate builds an unsigned display-list record holding the
// complete list, one reference/award-id pair per entry, in order.
func DisplayListTemplate(entries []models.DisplayEntry, createdAt int64) nostr.Template {
	tags := make(nostr.Tags, 0, 1+2*len(entries))
	tags = append(tags, nostr.Tag{"d", nostr.ProfileBadgesIdentifier})
	for _, e := range entries {
		tags = append(tags,
			nostr.Tag{"a", badgeid.Normalize(e.BadgeID)},
			nostr.Tag{"e", e.AwardID},
		)
	}
	return nostr.Template{
		Kind:      nostr.KindProfileBadges,
		CreatedAt: createdAt,
		Tags:      tags,
	}
}
