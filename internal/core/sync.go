package core

import "time"

// SyncState tracks extraction scheduling for the owning process lifetime.
// It resets to the zero shape whenever the process exits; Syncing is
// exclusive (no second sync may start while it is true).
type SyncState struct {
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	NextSyncAt *time.Time `json:"next_sync_at,omitempty"`
	Syncing    bool       `json:"syncing"`
	SyncCount  int        `json:"sync_count"`
}

// PendingSyncRequest is the single outstanding signal the in-page side needs
// to begin work. Created when a sync is requested, cleared on completion or
// timeout. The page discovers it either by polling the webhook endpoint or by
// receiving a bridge push; its presence is the whole handshake.
type PendingSyncRequest struct {
	ID          string    `json:"id"`
	Manual      bool      `json:"manual"`
	RequestedAt time.Time `json:"requested_at"`
}
