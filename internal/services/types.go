// file: internal/services/types.go
package services

import (
	"sort"
	"time"

	"badgehub/internal/badgeid"
	"badgehub/internal/models"
	"badgehub/internal/nostr"
	"badgehub/internal/retry"
)

// ===============================
// RESOLVER CONFIGURATION
// ===============================

// ResolverConfig bounds every read and write the services perform.
type ResolverConfig struct {
	AwardBudget      time.Duration `json:"award_budget"`
	DefinitionBudget time.Duration `json:"definition_budget"`
	FallbackBudget   time.Duration `json:"fallback_budget"`
	DisplayBudget    time.Duration `json:"display_budget"`
	ProfileBudget    time.Duration `json:"profile_budget"`
	CatalogBudget    time.Duration `json:"catalog_budget"`
	ConfirmBudget    time.Duration `json:"confirm_budget"`
	PublishTimeout   time.Duration `json:"publish_timeout"`

	AwardLimit      int `json:"award_limit"`
	DefinitionLimit int `json:"definition_limit"`
	CatalogLimit    int `json:"catalog_limit"`
	DisplayLimit    int `json:"display_limit"`
	MaxLookups      int `json:"max_lookups"` // concurrent issuer lookups

	FallbackPolicy retry.Policy `json:"fallback_policy"`
	ConfirmPolicy  retry.Policy `json:"confirm_policy"`
}

// DefaultResolverConfig returns the default budgets and limits.
func DefaultResolverConfig() *ResolverConfig {
	return &ResolverConfig{
		AwardBudget:      5 * time.Second,
		DefinitionBudget: 3 * time.Second,
		FallbackBudget:   2 * time.Second,
		DisplayBudget:    3 * time.Second,
		ProfileBudget:    3 * time.Second,
		CatalogBudget:    5 * time.Second,
		ConfirmBudget:    time.Second,
		PublishTimeout:   5 * time.Second,

		AwardLimit:      500,
		DefinitionLimit: 200,
		CatalogLimit:    100,
		DisplayLimit:    10,
		MaxLookups:      8,

		FallbackPolicy: retry.Policy{MaxAttempts: 2, Interval: 200 * time.Millisecond, Strategy: retry.StrategyLinear},
		ConfirmPolicy:  retry.Policy{MaxAttempts: 6, Interval: 100 * time.Millisecond, MaxInterval: 2 * time.Second, Strategy: retry.StrategyExponential},
	}
}

// ===============================
// AWARD COLLECTION TYPES
// ===============================

// AwardCollection is the surviving award set for one recipient together
// with the definitions that still have to be looked up.
type AwardCollection struct {
	Recipient string               `json:"recipient"`
	Awards    []models.AwardRecord `json:"awards"`
	Batch     *LookupBatch         `json:"-"`
	Complete  bool                 `json:"complete"`
	TimedOut  bool                 `json:"timed_out"`
}

// LookupGroup is one per-issuer definition query.
type LookupGroup struct {
	Issuer string   `json:"issuer"`
	Kinds  []int    `json:"kinds"`
	Slugs  []string `json:"slugs"`
	IDs    []string `json:"ids"` // canonical identifiers wanted from this issuer
}

// Filter builds the relay filter for the group.
func (g *LookupGroup) Filter(limit int) nostr.Filter {
	return nostr.Filter{
		Kinds:   g.Kinds,
		Authors: []string{g.Issuer},
		Limit:   limit,
	}.WithTag("d", g.Slugs...)
}

// LookupBatch groups the unresolved identifiers of a collection by issuer.
type LookupBatch struct {
	groups map[string]*LookupGroup
	order  []string
}

// NewLookupBatch creates an empty batch.
func NewLookupBatch() *LookupBatch {
	return &LookupBatch{groups: make(map[string]*LookupGroup)}
}

// Add plans a lookup for the identifier. raw is the reference as it was
// published and may differ from the canonical form; both slugs are
// queried. Identifiers that do not parse are ignored.
func (b *LookupBatch) Add(id, raw string) bool {
	parsed, ok := badgeid.Parse(id)
	if !ok {
		return false
	}

	g, exists := b.groups[parsed.Issuer]
	if !exists {
		g = &LookupGroup{Issuer: parsed.Issuer}
		b.groups[parsed.Issuer] = g
		b.order = append(b.order, parsed.Issuer)
	}

	canonical := parsed.String()
	if containsString(g.IDs, canonical) {
		return true
	}
	g.IDs = append(g.IDs, canonical)
	if !containsInt(g.Kinds, parsed.Kind) {
		g.Kinds = append(g.Kinds, parsed.Kind)
	}
	g.Slugs = appendUnique(g.Slugs, parsed.Slug)
	if rawID, ok := rawSlug(raw); ok {
		g.Slugs = appendUnique(g.Slugs, rawID)
	}
	return true
}

// Groups returns the per-issuer lookups in insertion order.
func (b *LookupBatch) Groups() []*LookupGroup {
	out := make([]*LookupGroup, 0, len(b.order))
	for _, issuer := range b.order {
		out = append(out, b.groups[issuer])
	}
	return out
}

// IDs returns every canonical identifier in the batch, sorted.
func (b *LookupBatch) IDs() []string {
	var ids []string
	for _, g := range b.groups {
		ids = append(ids, g.IDs...)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of identifiers in the batch.
func (b *LookupBatch) Len() int {
	n := 0
	for _, g := range b.groups {
		n += len(g.IDs)
	}
	return n
}

// Empty reports whether nothing needs to be looked up.
func (b *LookupBatch) Empty() bool {
	return b == nil || len(b.groups) == 0
}

// rawSlug extracts the slug of a reference without normalizing it.
func rawSlug(raw string) (string, bool) {
	parts := splitRef(raw)
	if len(parts) < 3 || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

// ===============================
// DISPLAY TYPES
// ===============================

// DisplayState is the lifecycle of one user's display list.
type DisplayState int

const (
	DisplayUnloaded DisplayState = iota
	DisplayLoading
	DisplayLoaded
	DisplayUpdating
)

func (s DisplayState) String() string {
	switch s {
	case DisplayLoading:
		return "loading"
	case DisplayLoaded:
		return "loaded"
	case DisplayUpdating:
		return "updating"
	default:
		return "unloaded"
	}
}

// ToggleResult describes a completed display toggle.
type ToggleResult struct {
	List    *models.ProfileDisplayList `json:"list"`
	Changed bool                       `json:"changed"`
	// Confirmed receives exactly one value once background confirmation
	// finishes. It is nil when nothing was published.
	Confirmed <-chan bool `json:"-"`
}

// ===============================
// CATALOG TYPES
// ===============================

// RecipientAward is the latest award of a badge to one recipient.
type RecipientAward struct {
	Recipient string `json:"recipient"`
	AwardID   string `json:"award_id"`
	Awarder   string `json:"awarder"`
	AwardedAt int64  `json:"awarded_at"`
}

// ===============================
// ISSUANCE TYPES
// ===============================

// CreateDefinitionRequest describes a new badge definition.
type CreateDefinitionRequest struct {
	Slug        string `json:"slug" validate:"required,max=128"`
	Name        string `json:"name" validate:"required,max=256"`
	Description string `json:"description" validate:"max=4096"`
	Image       string `json:"image" validate:"omitempty,url"`
	Thumb       string `json:"thumb" validate:"omitempty,url"`
}

// AwardBadgeRequest names the recipients of a new award.
type AwardBadgeRequest struct {
	Recipients []string `json:"recipients" validate:"required,min=1,max=100,dive,required"`
}
