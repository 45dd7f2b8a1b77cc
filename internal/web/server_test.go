package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchlet/chatbridge/internal/config"
	"github.com/searchlet/chatbridge/internal/core"
	"github.com/searchlet/chatbridge/internal/events"
	"github.com/searchlet/chatbridge/internal/logging"
	"github.com/searchlet/chatbridge/internal/scheduler"
)

const testSecret = "super-secret-for-tests"

type stubProcess struct {
	mu       sync.Mutex
	state    core.ProcessState
	activity int
	spawnErr error
	killErr  error
}

func (s *stubProcess) Spawn(ownerID string) error {
	if s.spawnErr != nil {
		return s.spawnErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = core.ProcessState{Running: true, OwnerID: ownerID, StartedAt: time.Now(), LastActivityAt: time.Now(), PID: 4242}
	return nil
}

func (s *stubProcess) Kill(string) error { return s.killErr }
func (s *stubProcess) ForceKill(core.StopReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = core.ProcessState{}
}

func (s *stubProcess) RecordActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity++
}

func (s *stubProcess) SetLinked(linked bool, _ string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Running {
		return false
	}
	changed := s.state.Linked != linked
	s.state.Linked = linked
	return changed
}

func (s *stubProcess) Status() core.ProcessState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *stubProcess) IsActuallyRunning() bool { return s.Status().Running }

func (s *stubProcess) activityCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activity
}

type stubLink struct{ status core.LinkStatus }

func (s *stubLink) CheckOnce(context.Context) core.LinkStatus { return s.status }
func (s *stubLink) Cached() core.LinkStatus                   { return s.status }

type stubSyncs struct {
	mu          sync.Mutex
	requestErr  error
	completeErr error
	pending     *core.PendingSyncRequest
	completed   []string
}

func (s *stubSyncs) RequestSync(bool) (string, error) {
	if s.requestErr != nil {
		return "", s.requestErr
	}
	return "sync-123", nil
}

func (s *stubSyncs) CompleteSyncRequest(token string, _ bool, _ error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completeErr != nil {
		return s.completeErr
	}
	s.completed = append(s.completed, token)
	return nil
}

func (s *stubSyncs) Pending() *core.PendingSyncRequest { return s.pending }
func (s *stubSyncs) Snapshot() scheduler.Status        { return scheduler.Status{SyncCount: 3} }

type stubChats struct{ err error }

func (s *stubChats) GetRecentChats(context.Context) ([]core.ChatInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []core.ChatInfo{{Name: "Alice"}}, nil
}

func (s *stubChats) SyncSpecificChats(_ context.Context, names []string) ([]core.ChatSyncResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	results := make([]core.ChatSyncResult, len(names))
	for i, name := range names {
		results[i] = core.ChatSyncResult{Name: name, Success: true}
	}
	return results, nil
}

type testHarness struct {
	server  *httptest.Server
	process *stubProcess
	syncs   *stubSyncs
	bus     *events.EventBus
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	bus := events.New(50)
	t.Cleanup(bus.Close)

	process := &stubProcess{}
	syncs := &stubSyncs{}
	cfg := config.ServerConfig{SharedSecret: testSecret}
	srv := NewServer(cfg, process, &stubLink{}, syncs, &stubChats{}, bus, logging.NewNop())

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testHarness{server: ts, process: process, syncs: syncs, bus: bus}
}

func (h *testHarness) do(t *testing.T, method, path string, body interface{}, secret string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, h.server.URL+path, &buf)
	require.NoError(t, err)
	if secret != "" {
		req.Header.Set("X-Bridge-Secret", secret)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestAuth_MissingSecret(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodGet, "/api/v1/process/status", nil, "")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/api/v1/process/status", nil, "wrong")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealth_Unauthenticated(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodGet, "/health", nil, "")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSpawnEndpoint(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodPost, "/api/v1/process/spawn",
		map[string]string{"owner_id": "o1"}, testSecret)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var state core.ProcessState
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	assert.True(t, state.Running)
	assert.Equal(t, "o1", state.OwnerID)
}

func TestSpawnEndpoint_ConflictMapsTo409(t *testing.T) {
	h := newHarness(t)
	h.process.spawnErr = core.ErrConflict(core.CodeAlreadyRunning, "busy")

	resp := h.do(t, http.MethodPost, "/api/v1/process/spawn",
		map[string]string{"owner_id": "o2"}, testSecret)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var body errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, core.CodeAlreadyRunning, body.Code)
}

func TestStopEndpoint_AuthErrorMapsTo403(t *testing.T) {
	h := newHarness(t)
	h.process.killErr = core.ErrAuth("owner does not hold the running process")

	resp := h.do(t, http.MethodPost, "/api/v1/process/stop",
		map[string]string{"owner_id": "intruder"}, testSecret)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSyncTriggerEndpoint(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodPost, "/api/v1/sync/trigger", nil, testSecret)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body syncTriggerResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "sync-123", body.SyncID)
}

func TestSyncTriggerEndpoint_InProgressMapsTo409(t *testing.T) {
	h := newHarness(t)
	h.syncs.requestErr = core.ErrConflict(core.CodeSyncInProgress, "busy")

	resp := h.do(t, http.MethodPost, "/api/v1/sync/trigger", nil, testSecret)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestWebhookLinked_PublishesOneShotEvent(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.process.Spawn("o1"))
	linkedCh := h.bus.Subscribe(events.TypeLinkEstablished)

	resp := h.do(t, http.MethodPost, "/api/v1/webhook/linked",
		map[string]string{"profile_label": "Ada"}, testSecret)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.True(t, h.process.Status().Linked)

	select {
	case ev := <-linkedCh:
		assert.Equal(t, "o1", ev.OwnerID())
	case <-time.After(time.Second):
		t.Fatal("no link_established event")
	}

	// A second push must not fire the event again.
	resp = h.do(t, http.MethodPost, "/api/v1/webhook/linked",
		map[string]string{"profile_label": "Ada"}, testSecret)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	select {
	case <-linkedCh:
		t.Fatal("link_established must be one-shot per process lifetime")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWebhookLinked_RequiresRunningProcess(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodPost, "/api/v1/webhook/linked",
		map[string]string{"profile_label": "Ada"}, testSecret)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestWebhookMessages_CountsAsActivity(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.process.Spawn("o1"))
	msgCh := h.bus.Subscribe(events.TypeMessagesReceived)
	before := h.process.activityCount()

	payload := map[string]interface{}{
		"messages": []core.BufferedMessage{
			{ID: "m1", ChatID: "c1", Sender: "Alice", Content: "hi", Timestamp: time.Now()},
			{ID: "m2", ChatID: "c1", Sender: "Alice", Content: "there", Timestamp: time.Now()},
		},
	}
	resp := h.do(t, http.MethodPost, "/api/v1/webhook/messages", payload, testSecret)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body messagesAccepted
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 2, body.Accepted)
	assert.Greater(t, h.process.activityCount(), before)

	select {
	case ev := <-msgCh:
		received := ev.(events.MessagesReceivedEvent)
		assert.Equal(t, 2, received.Count)
	case <-time.After(time.Second):
		t.Fatal("no messages_received event")
	}
}

func TestWebhookPendingSync(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodGet, "/api/v1/webhook/pending-sync", nil, testSecret)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body pendingSyncResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body.Pending)

	h.syncs.pending = &core.PendingSyncRequest{ID: "sync-9", Manual: true, RequestedAt: time.Now()}
	resp = h.do(t, http.MethodGet, "/api/v1/webhook/pending-sync", nil, testSecret)
	defer resp.Body.Close()

	body = pendingSyncResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Pending)
	assert.Equal(t, "sync-9", body.SyncID)
	assert.True(t, body.Manual)
}

func TestWebhookSyncComplete(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodPost, "/api/v1/webhook/sync-complete",
		map[string]interface{}{"sync_id": "sync-9", "success": true}, testSecret)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{"sync-9"}, h.syncs.completed)
}

func TestWebhookSyncComplete_StaleTokenMapsTo409(t *testing.T) {
	h := newHarness(t)
	h.syncs.completeErr = core.ErrState(core.CodeStaleSyncToken, "no pending sync with that token")

	resp := h.do(t, http.MethodPost, "/api/v1/webhook/sync-complete",
		map[string]interface{}{"sync_id": "old", "success": true}, testSecret)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestWebhookSyncComplete_RequiresSyncID(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodPost, "/api/v1/webhook/sync-complete",
		map[string]interface{}{"success": true}, testSecret)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatEndpoints(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.process.Spawn("o1"))

	resp := h.do(t, http.MethodGet, "/api/v1/chats/recent", nil, testSecret)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var chats []core.ChatInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&chats))
	require.Len(t, chats, 1)

	resp = h.do(t, http.MethodPost, "/api/v1/chats/sync",
		map[string][]string{"names": {"Alice"}}, testSecret)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var results []core.ChatSyncResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&results))
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
}

func TestProcessStatusEndpoint(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.process.Spawn("o1"))

	resp := h.do(t, http.MethodGet, "/api/v1/process/status", nil, testSecret)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body processStatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Running)
	assert.True(t, body.ActuallyRunning)
	assert.Equal(t, "o1", body.OwnerID)
}
