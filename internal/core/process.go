package core

import "time"

// ProcessState is the lifecycle snapshot of the single automated browser
// process. Exactly one instance exists per controller; it is created on the
// first successful spawn and reset to the zero shape on kill, crash, or idle
// reclamation.
//
// Invariants: Running == false implies OwnerID == ""; Linked can only
// transition to true while Running is true.
type ProcessState struct {
	Running        bool      `json:"running"`
	OwnerID        string    `json:"owner_id,omitempty"`
	StartedAt      time.Time `json:"started_at,omitzero"`
	LastActivityAt time.Time `json:"last_activity_at,omitzero"`
	Linked         bool      `json:"linked"`
	PID            int       `json:"pid,omitempty"`
}

// IdleTime returns how long the process has been without recorded activity.
// Zero when the process is not running.
func (s ProcessState) IdleTime(now time.Time) time.Duration {
	if !s.Running || s.LastActivityAt.IsZero() {
		return 0
	}
	return now.Sub(s.LastActivityAt)
}

// StopReason describes why a process left the running state.
type StopReason string

const (
	StopReasonKill  StopReason = "kill"
	StopReasonCrash StopReason = "crash"
	StopReasonIdle  StopReason = "idle_timeout"
)
