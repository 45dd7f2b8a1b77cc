package events

// Event type constants for link detection.
const (
	TypeLinkEstablished = "link_established"
)

// LinkEstablishedEvent is emitted exactly once per process lifetime when the
// probe observes the false-to-true link transition. This is a PRIORITY event.
type LinkEstablishedEvent struct {
	BaseEvent
	ProfileLabel string `json:"profile_label,omitempty"`
}

// NewLinkEstablishedEvent creates a new link established event.
func NewLinkEstablishedEvent(ownerID, profileLabel string) LinkEstablishedEvent {
	return LinkEstablishedEvent{
		BaseEvent:    NewBaseEvent(TypeLinkEstablished, ownerID),
		ProfileLabel: profileLabel,
	}
}
