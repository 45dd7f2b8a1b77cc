package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/searchlet/chatbridge/internal/core"
)

// handleSpawn starts the browser process for an owner.
func (s *Server) handleSpawn(w http.ResponseWriter, r *http.Request) {
	var req spawnRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.process.Spawn(strings.TrimSpace(req.OwnerID)); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, s.process.Status())
}

// handleStop gracefully stops the process. The caller must be the owner.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.process.Kill(strings.TrimSpace(req.OwnerID)); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// handleForceStop kills the process unconditionally, sweeping orphans.
func (s *Server) handleForceStop(w http.ResponseWriter, _ *http.Request) {
	s.process.ForceKill(core.StopReasonKill)
	respondJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// handleActivity bumps the idle clock.
func (s *Server) handleActivity(w http.ResponseWriter, _ *http.Request) {
	s.process.RecordActivity()
	w.WriteHeader(http.StatusNoContent)
}

// handleProcessStatus reports the bookkeeping state plus a liveness check
// against the debug port, which is the ground truth for "actually running".
func (s *Server) handleProcessStatus(w http.ResponseWriter, _ *http.Request) {
	state := s.process.Status()
	resp := processStatusResponse{
		ProcessState:    state,
		ActuallyRunning: state.Running && s.process.IsActuallyRunning(),
		ProfileLabel:    s.link.Cached().ProfileLabel,
	}
	if state.Running {
		resp.IdleFor = state.IdleTime(time.Now()).Round(time.Second).String()
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleSyncTrigger requests a manual sync.
func (s *Server) handleSyncTrigger(w http.ResponseWriter, _ *http.Request) {
	syncID, err := s.syncs.RequestSync(true)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, syncTriggerResponse{SyncID: syncID})
}

// handleSyncStatus reports the scheduler snapshot.
func (s *Server) handleSyncStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.syncs.Snapshot())
}

// handleRecentChats lists the chats currently visible in the page.
func (s *Server) handleRecentChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.chats.GetRecentChats(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	s.process.RecordActivity()
	respondJSON(w, http.StatusOK, chats)
}

// handleChatSync extracts snippets for the named chats.
func (s *Server) handleChatSync(w http.ResponseWriter, r *http.Request) {
	var req chatSyncRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	results, err := s.chats.SyncSpecificChats(r.Context(), req.Names)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	s.process.RecordActivity()
	respondJSON(w, http.StatusOK, results)
}
