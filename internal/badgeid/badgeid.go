// Package badgeid canonicalizes composite badge identifiers of the form
// "{kind}:{issuer}:{slug}" so equivalent references compare equal.
package badgeid

import (
	"fmt"
	"strconv"
	"strings"
)

// Delimiter separates the parts of a composite badge identifier.
const Delimiter = ":"

// ID is the typed view of a badge identifier.
type ID struct {
	Kind   int    `json:"kind"`
	Issuer string `json:"issuer"`
	Slug   string `json:"slug"`
}

// String returns the canonical form of the identifier.
func (id ID) String() string {
	return Build(id.Kind, id.Issuer, id.Slug)
}

// NormalizeSlug trims the slug and collapses internal whitespace runs to a
// single space. Punctuation and dashes are kept as-is.
func NormalizeSlug(slug string) string {
	return strings.Join(strings.Fields(slug), " ")
}

// Normalize canonicalizes a raw identifier. Inputs with fewer than three
// parts are returned unchanged. For every input Parse accepts,
// Normalize(x) equals Parse(x).String().
func Normalize(raw string) string {
	parts := strings.SplitN(raw, Delimiter, 3)
	if len(parts) < 3 {
		return raw
	}
	return strings.TrimSpace(parts[0]) + Delimiter + normalizeIssuer(parts[1]) + Delimiter + NormalizeSlug(parts[2])
}

// Build canonicalizes an identifier from its typed components.
func Build(kind int, issuer, slug string) string {
	return fmt.Sprintf("%d%s%s%s%s", kind, Delimiter, normalizeIssuer(issuer), Delimiter, NormalizeSlug(slug))
}

// Parse splits a raw identifier into its typed components. The second
// return value is false when the kind is not an integer or the issuer or
// slug is empty.
func Parse(raw string) (ID, bool) {
	parts := strings.SplitN(raw, Delimiter, 3)
	if len(parts) < 3 {
		return ID{}, false
	}

	kind, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return ID{}, false
	}

	issuer := normalizeIssuer(parts[1])
	slug := NormalizeSlug(parts[2])
	if issuer == "" || slug == "" {
		return ID{}, false
	}

	return ID{Kind: kind, Issuer: issuer, Slug: slug}, true
}

// Equal reports whether two raw identifiers denote the same badge.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

func normalizeIssuer(issuer string) string {
	return strings.ToLower(strings.TrimSpace(issuer))
}
