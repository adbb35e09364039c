package events

// Event types published by the badge services.
const (
	TypeDefinitionResolved = "definition.resolved"
	TypeAwardIssued        = "award.issued"
	TypeDisplayPublished   = "display.published"
	TypeDisplayConfirmed   = "display.confirmed"
	TypeDisplayUnconfirmed = "display.unconfirmed"
)

// DefinitionResolvedEvent is emitted when a batch of definitions arrives
// for a recipient whose awards were served with pending placeholders.
type DefinitionResolvedEvent struct {
	Envelope
	Recipient string   `json:"recipient"`
	BadgeIDs  []string `json:"badge_ids"`
}

// NewDefinitionResolvedEvent creates a DefinitionResolvedEvent
func NewDefinitionResolvedEvent(recipient string, badgeIDs []string) *DefinitionResolvedEvent {
	return &DefinitionResolvedEvent{
		Envelope:  newEnvelope(TypeDefinitionResolved, recipient),
		Recipient: recipient,
		BadgeIDs:  badgeIDs,
	}
}

// AwardIssuedEvent is emitted after an award record was accepted by a relay.
type AwardIssuedEvent struct {
	Envelope
	AwardID    string   `json:"award_id"`
	BadgeID    string   `json:"badge_id"`
	Issuer     string   `json:"issuer"`
	Recipients []string `json:"recipients"`
}

// NewAwardIssuedEvent creates an AwardIssuedEvent. The subject is the issuer.
func NewAwardIssuedEvent(awardID, badgeID, issuer string, recipients []string) *AwardIssuedEvent {
	return &AwardIssuedEvent{
		Envelope:   newEnvelope(TypeAwardIssued, issuer),
		AwardID:    awardID,
		BadgeID:    badgeID,
		Issuer:     issuer,
		Recipients: recipients,
	}
}

// DisplayEvent reports progress of a display list update.
type DisplayEvent struct {
	Envelope
	Owner    string `json:"owner"`
	RecordID string `json:"record_id"`
	BadgeID  string `json:"badge_id"`
	Action   string `json:"action"`
	Entries  int    `json:"entries"`
}

func newDisplayEvent(eventType, owner, recordID, badgeID, action string, entries int) *DisplayEvent {
	return &DisplayEvent{
		Envelope: newEnvelope(eventType, owner),
		Owner:    owner,
		RecordID: recordID,
		BadgeID:  badgeID,
		Action:   action,
		Entries:  entries,
	}
}

// NewDisplayPublishedEvent is emitted once a new list was accepted.
func NewDisplayPublishedEvent(owner, recordID, badgeID, action string, entries int) *DisplayEvent {
	return newDisplayEvent(TypeDisplayPublished, owner, recordID, badgeID, action, entries)
}

// NewDisplayConfirmedEvent is emitted when the published list was read back.
func NewDisplayConfirmedEvent(owner, recordID string) *DisplayEvent {
	return newDisplayEvent(TypeDisplayConfirmed, owner, recordID, "", "", 0)
}

// NewDisplayUnconfirmedEvent is emitted when confirmation polling gave up.
func NewDisplayUnconfirmedEvent(owner, recordID string) *DisplayEvent {
	return newDisplayEvent(TypeDisplayUnconfirmed, owner, recordID, "", "", 0)
}
