package web

import (
	"time"

	"github.com/searchlet/chatbridge/internal/core"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type spawnRequest struct {
	OwnerID string `json:"owner_id"`
}

type stopRequest struct {
	OwnerID string `json:"owner_id"`
}

type processStatusResponse struct {
	core.ProcessState
	ActuallyRunning bool   `json:"actually_running"`
	ProfileLabel    string `json:"profile_label,omitempty"`
	IdleFor         string `json:"idle_for,omitempty"`
}

type syncTriggerResponse struct {
	SyncID string `json:"sync_id"`
}

type chatSyncRequest struct {
	Names []string `json:"names"`
}

type linkedWebhook struct {
	ProfileLabel string `json:"profile_label"`
}

type messagesWebhook struct {
	Messages []core.BufferedMessage `json:"messages"`
}

type messagesAccepted struct {
	Accepted int `json:"accepted"`
}

type pendingSyncResponse struct {
	Pending     bool       `json:"pending"`
	SyncID      string     `json:"sync_id,omitempty"`
	Manual      bool       `json:"manual,omitempty"`
	RequestedAt *time.Time `json:"requested_at,omitempty"`
}

type syncCompleteWebhook struct {
	SyncID  string `json:"sync_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
