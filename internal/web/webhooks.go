package web

import (
	"context"
	"net/http"
	"time"

	"github.com/searchlet/chatbridge/internal/events"
)

// Webhook endpoints are called by the observer script injected into the page.
// Every inbound webhook counts as activity for the idle clock.

// handleWebhookLinked records that the page reached the authenticated view.
// The polling probe usually wins this race; the push path exists so a slow
// poll interval does not delay the first sync.
func (s *Server) handleWebhookLinked(w http.ResponseWriter, r *http.Request) {
	var payload linkedWebhook
	if err := decodeBody(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	state := s.process.Status()
	if !state.Running {
		respondError(w, http.StatusConflict, "no browser process is running")
		return
	}

	s.process.RecordActivity()
	// SetLinked arbitrates the race against the polling probe: only the
	// caller that actually flipped the state publishes the one-shot event.
	if s.process.SetLinked(true, payload.ProfileLabel) {
		s.bus.PublishPriority(events.NewLinkEstablishedEvent(state.OwnerID, payload.ProfileLabel))
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleWebhookMessages accepts a message batch pushed from the page. The
// batch is persisted and forwarded upstream best-effort; a forwarding failure
// never fails the webhook.
func (s *Server) handleWebhookMessages(w http.ResponseWriter, r *http.Request) {
	var payload messagesWebhook
	if err := decodeBody(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	state := s.process.Status()
	if !state.Running {
		respondError(w, http.StatusConflict, "no browser process is running")
		return
	}

	s.process.RecordActivity()
	if len(payload.Messages) == 0 {
		respondJSON(w, http.StatusOK, messagesAccepted{Accepted: 0})
		return
	}

	if s.store != nil {
		if err := s.store.AppendMessageBatch(r.Context(), state.OwnerID, len(payload.Messages), time.Now()); err != nil {
			s.logger.Warn("failed to persist message batch", "error", err.Error(), "count", len(payload.Messages))
		}
	}

	s.bus.Publish(events.NewMessagesReceivedEvent(state.OwnerID, len(payload.Messages)))

	if s.notifier != nil {
		messages := payload.Messages
		ownerID := state.OwnerID
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.notifier.ReportMessages(ctx, ownerID, messages); err != nil {
				s.logger.Warn("message forwarding failed", "error", err.Error(), "count", len(messages))
			}
		}()
	}

	respondJSON(w, http.StatusOK, messagesAccepted{Accepted: len(payload.Messages)})
}

// handleWebhookHeartbeat keeps the idle clock alive while the page is open.
func (s *Server) handleWebhookHeartbeat(w http.ResponseWriter, _ *http.Request) {
	if !s.process.Status().Running {
		respondError(w, http.StatusConflict, "no browser process is running")
		return
	}
	s.process.RecordActivity()
	w.WriteHeader(http.StatusNoContent)
}

// handleWebhookPendingSync is the polling half of the sync handshake: the
// page asks whether a sync request is outstanding.
func (s *Server) handleWebhookPendingSync(w http.ResponseWriter, _ *http.Request) {
	s.process.RecordActivity()

	pending := s.syncs.Pending()
	if pending == nil {
		respondJSON(w, http.StatusOK, pendingSyncResponse{Pending: false})
		return
	}
	respondJSON(w, http.StatusOK, pendingSyncResponse{
		Pending:     true,
		SyncID:      pending.ID,
		Manual:      pending.Manual,
		RequestedAt: &pending.RequestedAt,
	})
}

// handleWebhookSyncComplete closes out a pending sync. A stale token is
// answered with 409 and leaves sync state untouched.
func (s *Server) handleWebhookSyncComplete(w http.ResponseWriter, r *http.Request) {
	var payload syncCompleteWebhook
	if err := decodeBody(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.SyncID == "" {
		respondError(w, http.StatusBadRequest, "sync_id is required")
		return
	}

	s.process.RecordActivity()

	var cause error
	if !payload.Success && payload.Error != "" {
		cause = syncFailure(payload.Error)
	}
	if err := s.syncs.CompleteSyncRequest(payload.SyncID, payload.Success, cause); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type syncFailure string

func (f syncFailure) Error() string { return string(f) }
