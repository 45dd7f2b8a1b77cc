package events

// Event type constants for browser process lifecycle events.
const (
	TypeProcessStarted       = "process_started"
	TypeProcessStopped       = "process_stopped"
	TypeProcessIdleReclaimed = "process_idle_reclaimed"
)

// ProcessStartedEvent is emitted when the browser process enters the running
// state.
type ProcessStartedEvent struct {
	BaseEvent
	PID int `json:"pid"`
}

// NewProcessStartedEvent creates a new process started event.
func NewProcessStartedEvent(ownerID string, pid int) ProcessStartedEvent {
	return ProcessStartedEvent{
		BaseEvent: NewBaseEvent(TypeProcessStarted, ownerID),
		PID:       pid,
	}
}

// ProcessStoppedEvent is emitted when the process leaves the running state
// for any reason. This is a PRIORITY event: the scheduler relies on it to
// cancel in-flight sync state.
type ProcessStoppedEvent struct {
	BaseEvent
	Reason string `json:"reason"`
}

// NewProcessStoppedEvent creates a new process stopped event.
func NewProcessStoppedEvent(ownerID, reason string) ProcessStoppedEvent {
	return ProcessStoppedEvent{
		BaseEvent: NewBaseEvent(TypeProcessStopped, ownerID),
		Reason:    reason,
	}
}

// ProcessIdleReclaimedEvent is emitted when the idle monitor force-kills the
// process after the idle timeout elapses without recorded activity.
type ProcessIdleReclaimedEvent struct {
	BaseEvent
	IdleMillis int64 `json:"idle_ms"`
}

// NewProcessIdleReclaimedEvent creates a new idle reclaimed event.
func NewProcessIdleReclaimedEvent(ownerID string, idleMillis int64) ProcessIdleReclaimedEvent {
	return ProcessIdleReclaimedEvent{
		BaseEvent:  NewBaseEvent(TypeProcessIdleReclaimed, ownerID),
		IdleMillis: idleMillis,
	}
}
