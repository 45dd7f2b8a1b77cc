package events

// Event type constants for sync scheduling.
const (
	TypeSyncRequested    = "sync_requested"
	TypeSyncCompleted    = "sync_completed"
	TypeSyncFailed       = "sync_failed"
	TypeMessagesReceived = "messages_received"
)

// SyncRequestedEvent is emitted when a sync request is accepted and a pending
// request token is allocated.
type SyncRequestedEvent struct {
	BaseEvent
	SyncID string `json:"sync_id"`
	Manual bool   `json:"manual"`
}

// NewSyncRequestedEvent creates a new sync requested event.
func NewSyncRequestedEvent(ownerID, syncID string, manual bool) SyncRequestedEvent {
	return SyncRequestedEvent{
		BaseEvent: NewBaseEvent(TypeSyncRequested, ownerID),
		SyncID:    syncID,
		Manual:    manual,
	}
}

// SyncCompletedEvent is emitted when a pending sync completes successfully.
type SyncCompletedEvent struct {
	BaseEvent
	SyncID    string `json:"sync_id"`
	SyncCount int    `json:"sync_count"`
}

// NewSyncCompletedEvent creates a new sync completed event.
func NewSyncCompletedEvent(ownerID, syncID string, syncCount int) SyncCompletedEvent {
	return SyncCompletedEvent{
		BaseEvent: NewBaseEvent(TypeSyncCompleted, ownerID),
		SyncID:    syncID,
		SyncCount: syncCount,
	}
}

// SyncFailedEvent is emitted when a pending sync fails or times out.
type SyncFailedEvent struct {
	BaseEvent
	SyncID string `json:"sync_id"`
	Error  string `json:"error"`
}

// NewSyncFailedEvent creates a new sync failed event.
func NewSyncFailedEvent(ownerID, syncID string, err error) SyncFailedEvent {
	errStr := ""
	if err != nil {
		errStr = err.Error()
	}
	return SyncFailedEvent{
		BaseEvent: NewBaseEvent(TypeSyncFailed, ownerID),
		SyncID:    syncID,
		Error:     errStr,
	}
}

// MessagesReceivedEvent is emitted when the webhook layer accepts a message
// batch pushed from the page.
type MessagesReceivedEvent struct {
	BaseEvent
	Count int `json:"count"`
}

// NewMessagesReceivedEvent creates a new messages received event.
func NewMessagesReceivedEvent(ownerID string, count int) MessagesReceivedEvent {
	return MessagesReceivedEvent{
		BaseEvent: NewBaseEvent(TypeMessagesReceived, ownerID),
		Count:     count,
	}
}
