package core

import "time"

// LinkStatus is a transient probe result describing whether the remote page
// shows an authenticated view. It is derived fresh each probe cycle and cached
// as the last-known value when the probe cannot reach the process.
type LinkStatus struct {
	Linked       bool      `json:"linked"`
	ProfileLabel string    `json:"profile_label,omitempty"`
	ObservedAt   time.Time `json:"observed_at"`
}
