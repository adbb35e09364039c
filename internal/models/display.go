package models

// DisplayAction is a toggle request on a profile display list.
type DisplayAction string

const (
	DisplayAdd    DisplayAction = "add"
	DisplayRemove DisplayAction = "remove"
)

// Valid reports whether the action is known.
func (a DisplayAction) Valid() bool {
	return a == DisplayAdd || a == DisplayRemove
}

// DisplayEntry pairs a displayed badge with the award that granted it.
type DisplayEntry struct {
	BadgeID string `json:"badge_id"`
	AwardID string `json:"award_id"`
}

// ProfileDisplayList is the ordered set of badges a user shows on their
// profile. Only the latest published list is authoritative.
type ProfileDisplayList struct {
	Owner     string         `json:"owner"`
	Entries   []DisplayEntry `json:"entries"`
	RecordID  string         `json:"record_id,omitempty"`
	CreatedAt int64          `json:"created_at,omitempty"`
}

// IndexOf returns the position of the badge in the list, or -1.
func (l *ProfileDisplayList) IndexOf(badgeID string) int {
	for i, e := range l.Entries {
		if e.BadgeID == badgeID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy.
func (l *ProfileDisplayList) Clone() *ProfileDisplayList {
	if l == nil {
		return nil
	}
	out := *l
	out.Entries = append([]DisplayEntry(nil), l.Entries...)
	return &out
}

// Newer reports whether l outranks other as the authoritative list.
func (l *ProfileDisplayList) Newer(other *ProfileDisplayList) bool {
	if other == nil {
		return true
	}
	if l.CreatedAt != other.CreatedAt {
		return l.CreatedAt > other.CreatedAt
	}
	return l.RecordID > other.RecordID
}

// ProfileMetadata is the decoded content of a user's metadata record.
type ProfileMetadata struct {
	PubKey      string `json:"pubkey"`
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Picture     string `json:"picture,omitempty"`
	Banner      string `json:"banner,omitempty"`
	About       string `json:"about,omitempty"`
	Nip05       string `json:"nip05,omitempty"`
	Lud06       string `json:"lud06,omitempty"`
	Lud16       string `json:"lud16,omitempty"`
	Website     string `json:"website,omitempty"`
	UpdatedAt   int64  `json:"updated_at,omitempty"`
}
