// Package browser owns the single automated browser process. The controller
// enforces ownerId exclusivity, launches the process against the fixed target
// URL, watches for exit, and reclaims the process after idle timeout.
//
// Ownership is a business rule, not a data race concern: all state mutation
// funnels through one mutex-guarded state object, and "may owner X do this"
// is decided by id comparison, never by locking primitives.
package browser

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"

	"github.com/searchlet/chatbridge/internal/config"
	"github.com/searchlet/chatbridge/internal/core"
	"github.com/searchlet/chatbridge/internal/events"
	"github.com/searchlet/chatbridge/internal/logging"
)

// Controller manages the lifecycle of the single browser process.
type Controller struct {
	logger *logging.Logger
	bus    *events.EventBus

	binaryPath      string
	targetURL       string
	debugPort       int
	profileRoot     string
	headless        bool
	killGracePeriod time.Duration

	mu                sync.Mutex
	state             core.ProcessState
	spawning          bool
	spawnOwner        string
	cmd               *exec.Cmd
	idleStop          chan struct{}
	idleTimeout       time.Duration
	idleCheckInterval time.Duration

	// Test seams.
	now      func() time.Time
	launch   func(profileDir string) (*exec.Cmd, error)
	portOpen func(port int) bool
}

// NewController creates a controller from browser configuration.
func NewController(cfg config.BrowserConfig, logger *logging.Logger, bus *events.EventBus) *Controller {
	c := &Controller{
		logger:            logger.WithComponent("browser"),
		bus:               bus,
		binaryPath:        cfg.BinaryPath,
		targetURL:         cfg.TargetURL,
		debugPort:         cfg.DebugPort,
		profileRoot:       cfg.ProfileRoot,
		headless:          cfg.Headless,
		killGracePeriod:   cfg.KillGracePeriod,
		idleTimeout:       cfg.IdleTimeout,
		idleCheckInterval: cfg.IdleCheckInterval,
		now:               time.Now,
		portOpen:          portOpen,
	}
	c.launch = c.launchBrowser
	return c
}

// ownerMeta is the metadata file written into each owner's profile directory.
type ownerMeta struct {
	OwnerID   string    `json:"owner_id"`
	StartedAt time.Time `json:"started_at"`
	PID       int       `json:"pid"`
	DebugPort int       `json:"debug_port"`
}

// Spawn launches the browser process for the given owner. Fails when a
// process is already running: for the same owner with
// ALREADY_RUNNING_SAME_OWNER, for a different owner with ALREADY_RUNNING.
func (c *Controller) Spawn(ownerID string) error {
	if ownerID == "" {
		return core.ErrValidation(core.CodeEmptyOwner, "owner id must not be empty")
	}

	// Claim exclusivity before launching: the spawning guard closes the gap
	// between the running check and the post-launch state assignment, so a
	// concurrent Spawn cannot pass the gate while a launch is in flight.
	c.mu.Lock()
	if c.state.Running || c.spawning {
		current := c.state.OwnerID
		if c.spawning {
			current = c.spawnOwner
		}
		c.mu.Unlock()
		if current == ownerID {
			return core.ErrConflict(core.CodeAlreadyRunningSameOwner,
				"browser already running for this owner")
		}
		return core.ErrConflict(core.CodeAlreadyRunning,
			"browser already running for another owner").WithDetail("owner_id", current)
	}
	c.spawning = true
	c.spawnOwner = ownerID
	c.mu.Unlock()

	releaseClaim := func() {
		c.mu.Lock()
		c.spawning = false
		c.spawnOwner = ""
		c.mu.Unlock()
	}

	profileDir := filepath.Join(c.profileRoot, sanitizeOwnerID(ownerID))
	if err := os.MkdirAll(profileDir, 0o700); err != nil {
		releaseClaim()
		return core.ErrState(core.CodeSpawnFailed, "failed to create profile directory").WithCause(err)
	}
	cmd, err := c.launch(profileDir)
	if err != nil {
		releaseClaim()
		return core.ErrState(core.CodeSpawnFailed, "failed to launch browser").WithCause(err)
	}

	now := c.now()

	c.mu.Lock()
	c.state = core.ProcessState{
		Running:        true,
		OwnerID:        ownerID,
		StartedAt:      now,
		LastActivityAt: now,
		PID:            cmd.Process.Pid,
	}
	c.cmd = cmd
	c.idleStop = make(chan struct{})
	idleStop := c.idleStop
	c.spawning = false
	c.spawnOwner = ""
	c.mu.Unlock()

	if err := c.writeOwnerMeta(profileDir, ownerID, cmd.Process.Pid, now); err != nil {
		c.logger.Warn("failed to write owner metadata", "error", err.Error())
	}

	go c.watchExit(cmd)
	go c.idleMonitor(idleStop)

	c.logger.Info("browser spawned",
		"owner_id", ownerID,
		"pid", cmd.Process.Pid,
		"profile_dir", profileDir,
	)
	c.bus.Publish(events.NewProcessStartedEvent(ownerID, cmd.Process.Pid))
	return nil
}

func (c *Controller) launchBrowser(profileDir string) (*exec.Cmd, error) {
	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", c.debugPort),
		"--user-data-dir=" + profileDir,
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-blink-features=AutomationControlled",
		"--disable-infobars",
		"--disable-session-crashed-bubble",
	}
	if c.headless {
		args = append(args, "--headless=new")
	}
	args = append(args, c.targetURL)

	cmd := exec.Command(c.binaryPath, args...)
	configureProcAttr(cmd)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

func (c *Controller) writeOwnerMeta(profileDir, ownerID string, pid int, startedAt time.Time) error {
	data, err := json.MarshalIndent(ownerMeta{
		OwnerID:   ownerID,
		StartedAt: startedAt,
		PID:       pid,
		DebugPort: c.debugPort,
	}, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(filepath.Join(profileDir, "owner.json"), data, 0o600)
}

// watchExit interprets the spawned process's exit. On some platforms the
// launcher exits immediately after forking the real browser (exit code 0, no
// signal); that must NOT be treated as termination. Only a non-zero exit, a
// received signal, or an explicit kill clears state; the debug port is the
// source of truth for the ambiguous case.
func (c *Controller) watchExit(cmd *exec.Cmd) {
	waitErr := cmd.Wait()

	c.mu.Lock()
	if !c.state.Running || c.cmd != cmd {
		// Already cleared by an explicit kill.
		c.mu.Unlock()
		return
	}
	ownerID := c.state.OwnerID
	c.mu.Unlock()

	if !exitIndicatesTermination(cmd.ProcessState) {
		// Launcher fork quirk: give the real browser a moment to bind the
		// debug port, then trust the port over the exit code.
		time.Sleep(2 * time.Second)
		if c.IsActuallyRunning() {
			c.logger.Info("launcher exited but browser is alive on debug port",
				"owner_id", ownerID)
			return
		}
	}

	c.logger.Warn("browser process exited",
		"owner_id", ownerID,
		"exit_code", cmd.ProcessState.ExitCode(),
		"wait_error", fmt.Sprint(waitErr),
	)
	c.clearState(core.StopReasonCrash)
}

// Kill terminates the process on behalf of ownerID. Fails with NOT_RUNNING
// when nothing runs and NOT_AUTHORIZED when the owner does not match.
func (c *Controller) Kill(ownerID string) error {
	c.mu.Lock()
	if !c.state.Running {
		c.mu.Unlock()
		return core.ErrState(core.CodeNotRunning, "no browser process is running")
	}
	if c.state.OwnerID != ownerID {
		c.mu.Unlock()
		return core.ErrAuth("owner does not hold the running process")
	}
	cmd := c.cmd
	c.mu.Unlock()

	c.terminate(cmd)
	c.clearState(core.StopReasonKill)
	return nil
}

// ForceKill terminates unconditionally, regardless of owner. It also sweeps
// any orphaned process bound to the configured debug port, the second line of
// defense against the launcher fork quirk.
func (c *Controller) ForceKill(reason core.StopReason) {
	c.mu.Lock()
	cmd := c.cmd
	running := c.state.Running
	c.mu.Unlock()

	if cmd != nil {
		c.terminate(cmd)
	}
	if n := killOrphansOnPort(c.debugPort, c.logger); n > 0 {
		c.logger.Info("orphaned browser processes reclaimed", "count", n)
	}
	if running {
		c.clearState(reason)
	}
}

func (c *Controller) terminate(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := gracefulKill(cmd, c.killGracePeriod); err != nil {
		c.logger.Warn("graceful kill failed", "error", err.Error())
	}
}

// clearState resets ProcessState to its stopped shape and emits the stopped
// event. Running == false implies OwnerID == "".
func (c *Controller) clearState(reason core.StopReason) {
	c.mu.Lock()
	if !c.state.Running {
		c.mu.Unlock()
		return
	}
	ownerID := c.state.OwnerID
	c.state = core.ProcessState{}
	c.cmd = nil
	if c.idleStop != nil {
		close(c.idleStop)
		c.idleStop = nil
	}
	c.mu.Unlock()

	c.logger.Info("browser stopped", "owner_id", ownerID, "reason", string(reason))
	c.bus.PublishPriority(events.NewProcessStoppedEvent(ownerID, string(reason)))
}

// RecordActivity bumps the last-activity timestamp. No-op when not running.
// Every externally observable interaction must call this so the idle monitor
// does not reclaim a process mid-use.
func (c *Controller) RecordActivity() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.Running {
		return
	}
	c.state.LastActivityAt = c.now()
}

// SetLinked marks the process as linked. Linked can only become true while
// the process is running. Returns true when the call actually changed the
// link state; the probe and the page webhook race to report the same
// transition, and only the winner may publish the one-shot event.
func (c *Controller) SetLinked(linked bool, profileLabel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.Running {
		return false
	}
	changed := c.state.Linked != linked
	c.state.Linked = linked
	if linked && changed {
		c.logger.Info("browser linked", "owner_id", c.state.OwnerID)
	}
	return changed
}

// Status returns a copy of the current process state.
func (c *Controller) Status() core.ProcessState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsActuallyRunning is the out-of-band liveness check: it inspects whether
// anything is bound to the debug port, catching processes that died without
// signaling and launchers that forked.
func (c *Controller) IsActuallyRunning() bool {
	return c.portOpen(c.debugPort)
}

// SetIdleTimings updates the idle reclamation tunables at runtime (config
// hot-reload). The new check interval takes effect on the next spawn.
func (c *Controller) SetIdleTimings(timeout, checkInterval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if timeout > 0 {
		c.idleTimeout = timeout
	}
	if checkInterval > 0 {
		c.idleCheckInterval = checkInterval
	}
}

// idleMonitor force-kills the process once idle time exceeds the timeout.
func (c *Controller) idleMonitor(stop <-chan struct{}) {
	c.mu.Lock()
	interval := c.idleCheckInterval
	c.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if c.checkIdle() {
				return
			}
		}
	}
}

// checkIdle performs one idle-monitor tick. Returns true when the process was
// reclaimed.
func (c *Controller) checkIdle() bool {
	c.mu.Lock()
	if !c.state.Running {
		c.mu.Unlock()
		return true
	}
	idle := c.state.IdleTime(c.now())
	timeout := c.idleTimeout
	ownerID := c.state.OwnerID
	c.mu.Unlock()

	if idle <= timeout {
		return false
	}

	c.logger.Info("idle timeout exceeded, reclaiming browser",
		"owner_id", ownerID,
		"idle", idle.String(),
	)
	c.bus.Publish(events.NewProcessIdleReclaimedEvent(ownerID, idle.Milliseconds()))
	c.ForceKill(core.StopReasonIdle)
	return true
}

// Shutdown terminates any running process during service shutdown.
func (c *Controller) Shutdown() {
	c.ForceKill(core.StopReasonKill)
}

func portOpen(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 500*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// sanitizeOwnerID maps an owner id onto a safe directory name.
func sanitizeOwnerID(ownerID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, ownerID)
}
