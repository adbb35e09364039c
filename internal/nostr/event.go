// Package nostr holds the record shapes exchanged with relays: signed
// events, subscription filters, keys and signers.
package nostr

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Record kinds used by the badge engine.
const (
	KindMetadata        = 0
	KindBadgeAward      = 8
	KindProfileBadges   = 30008
	KindBadgeDefinition = 30009
)

// ProfileBadgesIdentifier is the reserved d-tag value of display-list records.
const ProfileBadgesIdentifier = "profile_badges"

// Event is a signed, timestamped record as stored by relays.
type Event struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      Tags   `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// Template is an unsigned record shape. Signers turn it into an Event.
type Template struct {
	Kind      int
	CreatedAt int64
	Tags      Tags
	Content   string
}

// Time returns the creation timestamp as a time.Time.
func (e *Event) Time() time.Time {
	return time.Unix(e.CreatedAt, 0).UTC()
}

// Serialize returns the canonical array form used to derive the record id:
// [0, pubkey, created_at, kind, tags, content].
func (e *Event) Serialize() ([]byte, error) {
	tags := e.Tags
	if tags == nil {
		tags = Tags{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode([]interface{}{0, e.PubKey, e.CreatedAt, e.Kind, tags, e.Content}); err != nil {
		return nil, fmt.Errorf("serialize event: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Hash returns the sha256 digest of the serialized event.
func (e *Event) Hash() ([]byte, error) {
	raw, err := e.Serialize()
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(raw)
	return sum[:], nil
}

// ComputeID returns the hex record id derived from the event contents.
func (e *Event) ComputeID() (string, error) {
	h, err := e.Hash()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h), nil
}

// Newer reports whether e should win over other when both claim the same
// slot: later creation time first, then the lexicographically larger id.
func (e *Event) Newer(other *Event) bool {
	if other == nil {
		return true
	}
	if e.CreatedAt != other.CreatedAt {
		return e.CreatedAt > other.CreatedAt
	}
	return e.ID > other.ID
}

// ===============================
// TAGS
// ===============================

// Tag is a single tag entry, e.g. ["p", "<pubkey>"].
type Tag []string

// Key returns the tag name.
func (t Tag) Key() string {
	if len(t) == 0 {
		return ""
	}
	return t[0]
}

// Value returns the first tag value.
func (t Tag) Value() string {
	if len(t) < 2 {
		return ""
	}
	return t[1]
}

// Tags is the ordered tag list of an event.
type Tags []Tag

// Find returns the first tag with the given name.
func (tags Tags) Find(key string) (Tag, bool) {
	for _, t := range tags {
		if t.Key() == key && len(t) >= 2 {
			return t, true
		}
	}
	return nil, false
}

// Value returns the first value of the named tag, or "".
func (tags Tags) Value(key string) string {
	if t, ok := tags.Find(key); ok {
		return t.Value()
	}
	return ""
}

// Values returns every value of the named tag, in order.
func (tags Tags) Values(key string) []string {
	var out []string
	for _, t := range tags {
		if t.Key() == key && len(t) >= 2 {
			out = append(out, t[1])
		}
	}
	return out
}

// Has reports whether a tag with the given name and value exists.
func (tags Tags) Has(key, value string) bool {
	for _, t := range tags {
		if t.Key() == key && t.Value() == value {
			return true
		}
	}
	return false
}
