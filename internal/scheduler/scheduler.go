// Package scheduler decides when data extraction happens and guarantees at
// most one extraction in flight. Requests are never queued: a second request
// while one is pending is rejected, and missed periodic intervals are dropped,
// not accumulated.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/searchlet/chatbridge/internal/config"
	"github.com/searchlet/chatbridge/internal/core"
	"github.com/searchlet/chatbridge/internal/events"
	"github.com/searchlet/chatbridge/internal/logging"
)

// ProcessSource exposes the process state the scheduler gates on.
type ProcessSource interface {
	Status() core.ProcessState
	RecordActivity()
}

// Status is the operator-facing sync snapshot.
type Status struct {
	LastSyncAt     *time.Time `json:"last_sync_at,omitempty"`
	NextSyncAt     *time.Time `json:"next_sync_at,omitempty"`
	Syncing        bool       `json:"syncing"`
	SyncCount      int        `json:"sync_count"`
	ProcessRunning bool       `json:"process_running"`
	Linked         bool       `json:"linked"`
}

// Scheduler owns periodic and on-demand sync decisions.
type Scheduler struct {
	logger   *logging.Logger
	bus      *events.EventBus
	process  ProcessSource
	store    core.SyncStore
	notifier core.BackendNotifier

	interval      time.Duration
	safetyTimeout time.Duration
	settleDelay   time.Duration

	mu            sync.Mutex
	state         core.SyncState
	generation    uint64
	pending       *core.PendingSyncRequest
	ownerID       string
	periodicTimer *time.Timer
	safetyTimer   *time.Timer
	settleTimer   *time.Timer

	eventCh <-chan events.Event
	done    chan struct{}

	newID func() string
	now   func() time.Time
}

// New creates a scheduler. store and notifier may be nil in tests.
func New(cfg config.SyncConfig, process ProcessSource, store core.SyncStore, notifier core.BackendNotifier, bus *events.EventBus, logger *logging.Logger) *Scheduler {
	return &Scheduler{
		logger:        logger.WithComponent("scheduler"),
		bus:           bus,
		process:       process,
		store:         store,
		notifier:      notifier,
		interval:      cfg.Interval,
		safetyTimeout: cfg.SafetyTimeout,
		settleDelay:   cfg.SettleDelay,
		newID:         uuid.NewString,
		now:           time.Now,
	}
}

// Start subscribes to process lifecycle events and begins reacting to them.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return
	}
	s.done = make(chan struct{})
	s.eventCh = s.bus.Subscribe(
		events.TypeProcessStarted,
		events.TypeProcessStopped,
		events.TypeLinkEstablished,
	)
	done := s.done
	ch := s.eventCh
	s.mu.Unlock()

	go s.run(ch, done)
}

// Stop cancels all timers and stops event handling.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.done == nil {
		s.mu.Unlock()
		return
	}
	close(s.done)
	s.done = nil
	ch := s.eventCh
	s.cancelTimersLocked()
	s.mu.Unlock()

	s.bus.Unsubscribe(ch)
}

func (s *Scheduler) run(ch <-chan events.Event, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			switch ev.EventType() {
			case events.TypeProcessStarted:
				s.onProcessStarted(ev.OwnerID())
			case events.TypeProcessStopped:
				s.onProcessStopped()
			case events.TypeLinkEstablished:
				s.onLinked(ev.OwnerID())
			}
		}
	}
}

// RequestSync allocates a pending sync request. Fails with NOT_RUNNING when
// no process exists, NOT_LINKED before authentication, and SYNC_IN_PROGRESS
// when a sync is already in flight.
func (s *Scheduler) RequestSync(manual bool) (string, error) {
	procState := s.process.Status()
	if !procState.Running {
		return "", core.ErrState(core.CodeNotRunning, "no browser process is running")
	}
	if !procState.Linked {
		return "", core.ErrState(core.CodeNotLinked, "browser is not linked yet")
	}

	s.mu.Lock()
	if s.state.Syncing {
		s.mu.Unlock()
		return "", core.ErrConflict(core.CodeSyncInProgress, "a sync is already in progress")
	}

	id := s.newID()
	s.pending = &core.PendingSyncRequest{
		ID:          id,
		Manual:      manual,
		RequestedAt: s.now(),
	}
	s.state.Syncing = true
	s.ownerID = procState.OwnerID

	// Safety ceiling: force-complete as failed if no completion arrives.
	if s.safetyTimer != nil {
		s.safetyTimer.Stop()
	}
	s.safetyTimer = time.AfterFunc(s.safetyTimeout, func() {
		s.CompleteSyncRequest(id, false, core.ErrTimeout("sync did not complete within safety ceiling"))
	})
	s.mu.Unlock()

	s.process.RecordActivity()
	s.logger.Info("sync requested", "sync_id", id, "manual", manual)
	s.bus.Publish(events.NewSyncRequestedEvent(procState.OwnerID, id, manual))
	return id, nil
}

// CompleteSyncRequest finishes the pending sync identified by token. A stale
// or unknown token is a logged no-op: SyncState is untouched. Both outcomes
// clear the pending request, reset Syncing, and reschedule the next periodic
// sync.
func (s *Scheduler) CompleteSyncRequest(token string, success bool, cause error) error {
	s.mu.Lock()
	if s.pending == nil || s.pending.ID != token {
		s.mu.Unlock()
		s.logger.Warn("ignoring completion for unknown sync token", "sync_id", token)
		return core.ErrState(core.CodeStaleSyncToken, "no pending sync with that token")
	}

	if s.safetyTimer != nil {
		s.safetyTimer.Stop()
		s.safetyTimer = nil
	}
	s.pending = nil
	s.state.Syncing = false
	ownerID := s.ownerID

	var syncCount int
	gen := s.generation
	if success {
		completedAt := s.now()
		s.state.LastSyncAt = &completedAt
		s.state.SyncCount++
		syncCount = s.state.SyncCount
	}
	s.mu.Unlock()

	if success {
		s.persistCompletion(ownerID, syncCount, gen)
		s.logger.Info("sync completed", "sync_id", token, "sync_count", syncCount)
		s.bus.Publish(events.NewSyncCompletedEvent(ownerID, token, syncCount))
	} else {
		s.logger.Warn("sync failed", "sync_id", token, "error", errString(cause))
		s.bus.Publish(events.NewSyncFailedEvent(ownerID, token, cause))
	}

	s.schedule()
	return nil
}

// persistCompletion updates the durable counters and reports status upstream,
// both best-effort. The write-back into SyncState only happens while the
// generation still matches: a process stop resets SyncState, and a store
// round-trip finishing after that must not resurrect the old count.
func (s *Scheduler) persistCompletion(ownerID string, fallbackCount int, gen uint64) {
	completedAt := s.now()

	if s.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		count, err := s.store.RecordSyncCompletion(ctx, ownerID, completedAt)
		if err != nil {
			s.logger.Warn("failed to persist sync completion", "error", err.Error())
		} else {
			s.mu.Lock()
			if s.generation == gen {
				s.state.SyncCount = count
			}
			fallbackCount = count
			s.mu.Unlock()
		}
	}

	if s.notifier != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.notifier.ReportSyncStatus(ctx, ownerID, completedAt, fallbackCount); err != nil {
				s.logger.Warn("sync status report failed", "error", err.Error())
			}
		}()
	}
}

// schedule arms the one-shot periodic timer. Called on process start and
// after every completion.
func (s *Scheduler) schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduleLocked()
}

func (s *Scheduler) scheduleLocked() {
	if s.periodicTimer != nil {
		s.periodicTimer.Stop()
	}
	next := s.now().Add(s.interval)
	s.state.NextSyncAt = &next
	s.periodicTimer = time.AfterFunc(s.interval, s.periodicFire)
}

// periodicFire runs when the periodic timer elapses. If the process is not
// running and linked the interval is simply dropped and the timer re-armed.
func (s *Scheduler) periodicFire() {
	if _, err := s.RequestSync(false); err != nil {
		s.logger.Debug("periodic sync skipped", "reason", err.Error())
		s.schedule()
	}
	// On success the completion path reschedules.
}

func (s *Scheduler) onProcessStarted(ownerID string) {
	s.mu.Lock()
	s.ownerID = ownerID
	s.mu.Unlock()

	// Durable counters survive restarts even though SyncState resets.
	if s.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		lastSyncAt, count, err := s.store.LoadSyncState(ctx, ownerID)
		if err != nil {
			s.logger.Warn("failed to load persisted sync state", "error", err.Error())
		} else {
			s.mu.Lock()
			s.state.LastSyncAt = lastSyncAt
			s.state.SyncCount = count
			s.mu.Unlock()
		}
	}

	s.schedule()
}

// onProcessStopped cancels everything: an in-flight sync cannot complete once
// the process is gone, and SyncState resets to its empty shape.
func (s *Scheduler) onProcessStopped() {
	s.mu.Lock()
	s.cancelTimersLocked()
	s.state = core.SyncState{}
	s.generation++
	s.pending = nil
	s.mu.Unlock()
}

func (s *Scheduler) cancelTimersLocked() {
	if s.periodicTimer != nil {
		s.periodicTimer.Stop()
		s.periodicTimer = nil
	}
	if s.safetyTimer != nil {
		s.safetyTimer.Stop()
		s.safetyTimer = nil
	}
	if s.settleTimer != nil {
		s.settleTimer.Stop()
		s.settleTimer = nil
	}
}

// onLinked triggers one immediate sync after a short settle delay; the page
// needs to stabilize post-login. Also notifies the backend collaborator.
func (s *Scheduler) onLinked(ownerID string) {
	s.mu.Lock()
	if s.settleTimer != nil {
		s.settleTimer.Stop()
	}
	s.settleTimer = time.AfterFunc(s.settleDelay, func() {
		if _, err := s.RequestSync(false); err != nil {
			s.logger.Debug("post-link sync skipped", "reason", err.Error())
		}
	})
	s.mu.Unlock()

	if s.notifier != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.notifier.NotifyLinked(ctx, ownerID, true); err != nil {
				s.logger.Warn("linked notification failed", "error", err.Error())
			}
		}()
	}
}

// Pending returns a copy of the outstanding sync request, if any. The webhook
// polling handshake serves this to the in-page script.
func (s *Scheduler) Pending() *core.PendingSyncRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return nil
	}
	copied := *s.pending
	return &copied
}

// Snapshot returns the operator-facing status view.
func (s *Scheduler) Snapshot() Status {
	procState := s.process.Status()

	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		LastSyncAt:     s.state.LastSyncAt,
		NextSyncAt:     s.state.NextSyncAt,
		Syncing:        s.state.Syncing,
		SyncCount:      s.state.SyncCount,
		ProcessRunning: procState.Running,
		Linked:         procState.Linked,
	}
}

// SetInterval updates the periodic interval at runtime (config hot-reload).
// Takes effect at the next reschedule.
func (s *Scheduler) SetInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = interval
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
