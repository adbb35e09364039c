// Package records is the typed boundary between relay records and the
// domain model. Nothing past this package reads raw tags.
package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"badgehub/internal/badgeid"
	"badgehub/internal/models"
	"badgehub/internal/nostr"
)

// Decode errors.
var (
	ErrWrongKind     = errors.New("unexpected record kind")
	ErrMissingTag    = errors.New("missing required tag")
	ErrBadContent    = errors.New("malformed record content")
	ErrNotForSubject = errors.New("record does not reference subject")
)

// DecodeDefinition reads a badge definition record.
func DecodeDefinition(e *nostr.Event) (*models.BadgeDefinition, error) {
	if e.Kind != nostr.KindBadgeDefinition {
		return nil, fmt.Errorf("%w: %d", ErrWrongKind, e.Kind)
	}
	slug, ok := e.Tags.Find("d")
	if !ok {
		return nil, fmt.Errorf("%w: d", ErrMissingTag)
	}

	name := e.Tags.Value("name")
	if name == "" {
		name = models.UnnamedBadge
	}

	return &models.BadgeDefinition{
		ID:          badgeid.Build(e.Kind, e.PubKey, slug.Value()),
		Kind:        e.Kind,
		Slug:        slug.Value(),
		Name:        name,
		Description: e.Tags.Value("description"),
		Image:       e.Tags.Value("image"),
		Thumb:       e.Tags.Value("thumb"),
		Issuer:      strings.ToLower(e.PubKey),
		CreatedAt:   e.CreatedAt,
		RecordID:    e.ID,
		Raw:         e,
	}, nil
}

// DecodeAward reads a badge award record. The badge reference is returned
// in canonical form.
func DecodeAward(e *nostr.Event) (*models.AwardRecord, error) {
	if e.Kind != nostr.KindBadgeAward {
		return nil, fmt.Errorf("%w: %d", ErrWrongKind, e.Kind)
	}
	ref := e.Tags.Value("a")
	if ref == "" {
		return nil, fmt.Errorf("%w: a", ErrMissingTag)
	}
	recipients := e.Tags.Values("p")
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: p", ErrMissingTag)
	}

	return &models.AwardRecord{
		ID:         e.ID,
		BadgeID:    badgeid.Normalize(ref),
		Ref:        ref,
		Awarder:    e.PubKey,
		Recipients: recipients,
		CreatedAt:  e.CreatedAt,
	}, nil
}

// DecodeAwardFor reads an award record and checks that it names recipient.
func DecodeAwardFor(e *nostr.Event, recipient string) (*models.AwardRecord, error) {
	award, err := DecodeAward(e)
	if err != nil {
		return nil, err
	}
	for _, p := range award.Recipients {
		if strings.EqualFold(p, recipient) {
			return award, nil
		}
	}
	return nil, ErrNotForSubject
}

// IsDisplayList reports whether the record is a display list under the
// reserved identifier.
func IsDisplayList(e *nostr.Event) bool {
	return e.Kind == nostr.KindProfileBadges && e.Tags.Value("d") == nostr.ProfileBadgesIdentifier
}

// DecodeDisplayList reads a display-list record. Reference and award-id
// tags are paired in order; unmatched trailing tags are dropped.
func DecodeDisplayList(e *nostr.Event) (*models.ProfileDisplayList, error) {
	if e.Kind != nostr.KindProfileBadges {
		return nil, fmt.Errorf("%w: %d", ErrWrongKind, e.Kind)
	}
	if !IsDisplayList(e) {
		return nil, fmt.Errorf("%w: d=%s", ErrMissingTag, nostr.ProfileBadgesIdentifier)
	}

	refs := e.Tags.Values("a")
	awards := e.Tags.Values("e")
	n := len(refs)
	if len(awards) < n {
		n = len(awards)
	}

	entries := make([]models.DisplayEntry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, models.DisplayEntry{
			BadgeID: badgeid.Normalize(refs[i]),
			AwardID: awards[i],
		})
	}

	return &models.ProfileDisplayList{
		Owner:     e.PubKey,
		Entries:   entries,
		RecordID:  e.ID,
		CreatedAt: e.CreatedAt,
	}, nil
}

// DecodeProfile reads a metadata record's JSON content.
func DecodeProfile(e *nostr.Event) (*models.ProfileMetadata, error) {
	if e.Kind != nostr.KindMetadata {
		return nil, fmt.Errorf("%w: %d", ErrWrongKind, e.Kind)
	}
	var meta models.ProfileMetadata
	if err := json.Unmarshal([]byte(e.Content), &meta); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadContent, err)
	}
	meta.PubKey = e.PubKey
	meta.UpdatedAt = e.CreatedAt
	return &meta, nil
}
