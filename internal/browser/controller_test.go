//go:build !windows

package browser

import (
	"errors"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchlet/chatbridge/internal/config"
	"github.com/searchlet/chatbridge/internal/core"
	"github.com/searchlet/chatbridge/internal/events"
	"github.com/searchlet/chatbridge/internal/logging"
)

func testConfig(t *testing.T) config.BrowserConfig {
	t.Helper()
	return config.BrowserConfig{
		BinaryPath:        "/bin/true",
		TargetURL:         "https://example.com",
		DebugPort:         59999, // nothing listens here
		ProfileRoot:       t.TempDir(),
		IdleTimeout:       30 * time.Minute,
		IdleCheckInterval: 10 * time.Millisecond,
		KillGracePeriod:   time.Second,
	}
}

// newTestController launches a long-lived dummy process instead of a browser.
func newTestController(t *testing.T, bus *events.EventBus) *Controller {
	t.Helper()
	c := NewController(testConfig(t), logging.NewNop(), bus)
	c.launch = func(string) (*exec.Cmd, error) {
		cmd := exec.Command("sleep", "60")
		configureProcAttr(cmd)
		require.NoError(t, cmd.Start())
		return cmd, nil
	}
	c.portOpen = func(int) bool { return false }
	return c
}

func TestSpawn_EmptyOwner(t *testing.T) {
	bus := events.New(10)
	defer bus.Close()
	c := newTestController(t, bus)

	err := c.Spawn("")
	require.Error(t, err)
	assert.Equal(t, core.CodeEmptyOwner, core.GetCode(err))
}

func TestSpawn_OwnershipConflicts(t *testing.T) {
	bus := events.New(10)
	defer bus.Close()
	c := newTestController(t, bus)
	defer c.Shutdown()

	require.NoError(t, c.Spawn("owner-a"))

	state := c.Status()
	assert.True(t, state.Running)
	assert.Equal(t, "owner-a", state.OwnerID)
	assert.NotZero(t, state.PID)
	assert.False(t, state.Linked)

	err := c.Spawn("owner-a")
	assert.Equal(t, core.CodeAlreadyRunningSameOwner, core.GetCode(err))

	err = c.Spawn("owner-b")
	assert.Equal(t, core.CodeAlreadyRunning, core.GetCode(err))
}

func TestSpawn_ConcurrentSpawnsKeepExclusivity(t *testing.T) {
	bus := events.New(10)
	defer bus.Close()
	c := newTestController(t, bus)
	defer c.Shutdown()

	// Slow launch so both goroutines pass the running check before either
	// process exists.
	innerLaunch := c.launch
	c.launch = func(dir string) (*exec.Cmd, error) {
		time.Sleep(100 * time.Millisecond)
		return innerLaunch(dir)
	}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, owner := range []string{"owner-a", "owner-b"} {
		wg.Add(1)
		go func(i int, owner string) {
			defer wg.Done()
			errs[i] = c.Spawn(owner)
		}(i, owner)
	}
	wg.Wait()

	var failures int
	for _, err := range errs {
		if err != nil {
			assert.Equal(t, core.CodeAlreadyRunning, core.GetCode(err))
			failures++
		}
	}
	assert.Equal(t, 1, failures, "exactly one concurrent spawn must lose")

	state := c.Status()
	assert.True(t, state.Running)
	winner := state.OwnerID
	assert.Contains(t, []string{"owner-a", "owner-b"}, winner)
	for i, owner := range []string{"owner-a", "owner-b"} {
		if owner == winner {
			assert.NoError(t, errs[i])
		}
	}
}

func TestSpawn_FailedLaunchReleasesClaim(t *testing.T) {
	bus := events.New(10)
	defer bus.Close()
	c := newTestController(t, bus)
	defer c.Shutdown()

	c.launch = func(string) (*exec.Cmd, error) {
		return nil, errors.New("launch blew up")
	}
	err := c.Spawn("owner-a")
	assert.Equal(t, core.CodeSpawnFailed, core.GetCode(err))

	// The failed attempt must not hold the exclusivity claim.
	c.launch = func(string) (*exec.Cmd, error) {
		cmd := exec.Command("sleep", "60")
		configureProcAttr(cmd)
		require.NoError(t, cmd.Start())
		return cmd, nil
	}
	require.NoError(t, c.Spawn("owner-a"))
	assert.True(t, c.Status().Running)
}

func TestKill_OwnerEnforcement(t *testing.T) {
	bus := events.New(10)
	defer bus.Close()
	c := newTestController(t, bus)
	defer c.Shutdown()

	err := c.Kill("owner-a")
	assert.Equal(t, core.CodeNotRunning, core.GetCode(err))

	require.NoError(t, c.Spawn("owner-a"))

	err = c.Kill("owner-b")
	assert.True(t, core.IsCategory(err, core.ErrCatAuth))
	assert.True(t, c.Status().Running, "foreign kill must not stop the process")

	stoppedCh := bus.Subscribe(events.TypeProcessStopped)
	require.NoError(t, c.Kill("owner-a"))

	state := c.Status()
	assert.False(t, state.Running)
	assert.Empty(t, state.OwnerID, "Running == false implies OwnerID empty")

	select {
	case ev := <-stoppedCh:
		stopped := ev.(events.ProcessStoppedEvent)
		assert.Equal(t, string(core.StopReasonKill), stopped.Reason)
	case <-time.After(time.Second):
		t.Fatal("no process_stopped event")
	}
}

func TestWatchExit_CrashClearsState(t *testing.T) {
	bus := events.New(10)
	defer bus.Close()
	c := NewController(testConfig(t), logging.NewNop(), bus)
	c.portOpen = func(int) bool { return false }
	c.launch = func(string) (*exec.Cmd, error) {
		cmd := exec.Command("sh", "-c", "exit 3")
		configureProcAttr(cmd)
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		return cmd, nil
	}

	stoppedCh := bus.SubscribePriority()
	require.NoError(t, c.Spawn("owner-a"))

	select {
	case ev := <-stoppedCh:
		stopped, ok := ev.(events.ProcessStoppedEvent)
		require.True(t, ok, "expected ProcessStoppedEvent, got %T", ev)
		assert.Equal(t, string(core.StopReasonCrash), stopped.Reason)
	case <-time.After(3 * time.Second):
		t.Fatal("crash was not detected")
	}
	assert.False(t, c.Status().Running)
}

func TestWatchExit_LauncherForkQuirk(t *testing.T) {
	bus := events.New(10)
	defer bus.Close()
	c := NewController(testConfig(t), logging.NewNop(), bus)
	// Exit 0 with the debug port still answering means the real browser
	// forked away from the launcher and is alive.
	c.portOpen = func(int) bool { return true }
	c.launch = func(string) (*exec.Cmd, error) {
		cmd := exec.Command("true")
		configureProcAttr(cmd)
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		return cmd, nil
	}

	require.NoError(t, c.Spawn("owner-a"))

	// The watcher waits 2s before trusting the port; give it room.
	time.Sleep(2500 * time.Millisecond)
	assert.True(t, c.Status().Running, "zero exit with live port must not clear state")
	assert.True(t, c.IsActuallyRunning())
}

func TestExitIndicatesTermination(t *testing.T) {
	clean := exec.Command("true")
	require.NoError(t, clean.Run())
	assert.False(t, exitIndicatesTermination(clean.ProcessState),
		"exit 0 without signal is the ambiguous launcher case")

	failed := exec.Command("sh", "-c", "exit 1")
	_ = failed.Run()
	assert.True(t, exitIndicatesTermination(failed.ProcessState))

	assert.False(t, exitIndicatesTermination(nil))
}

func TestRecordActivity_BumpsIdleClock(t *testing.T) {
	bus := events.New(10)
	defer bus.Close()
	c := newTestController(t, bus)
	defer c.Shutdown()

	base := time.Now()
	c.now = func() time.Time { return base }
	require.NoError(t, c.Spawn("owner-a"))

	c.now = func() time.Time { return base.Add(10 * time.Minute) }
	assert.Equal(t, 10*time.Minute, c.Status().IdleTime(c.now()))

	c.RecordActivity()
	assert.Equal(t, time.Duration(0), c.Status().IdleTime(c.now()))
}

func TestRecordActivity_NoOpWhenStopped(t *testing.T) {
	bus := events.New(10)
	defer bus.Close()
	c := newTestController(t, bus)

	c.RecordActivity()
	assert.False(t, c.Status().Running)
	assert.True(t, c.Status().LastActivityAt.IsZero())
}

func TestSetLinked_RequiresRunning(t *testing.T) {
	bus := events.New(10)
	defer bus.Close()
	c := newTestController(t, bus)
	defer c.Shutdown()

	assert.False(t, c.SetLinked(true, "profile"))
	assert.False(t, c.Status().Linked)

	require.NoError(t, c.Spawn("owner-a"))
	assert.True(t, c.SetLinked(true, "profile"), "first transition reports a change")
	assert.True(t, c.Status().Linked)

	// The probe and the webhook race to report the same transition; only
	// the first caller sees a change.
	assert.False(t, c.SetLinked(true, "profile"))
}

func TestIdleMonitor_ReclaimsAfterTimeout(t *testing.T) {
	bus := events.New(10)
	defer bus.Close()
	c := newTestController(t, bus)
	c.SetIdleTimings(20*time.Minute, 10*time.Millisecond)

	idleCh := bus.Subscribe(events.TypeProcessIdleReclaimed)

	base := time.Now()
	c.now = func() time.Time { return base }
	require.NoError(t, c.Spawn("owner-a"))

	// Jump past the idle timeout.
	c.now = func() time.Time { return base.Add(21 * time.Minute) }

	select {
	case ev := <-idleCh:
		assert.Equal(t, "owner-a", ev.OwnerID())
	case <-time.After(2 * time.Second):
		t.Fatal("idle reclamation did not trigger")
	}

	assert.Eventually(t, func() bool { return !c.Status().Running },
		2*time.Second, 10*time.Millisecond)
}

func TestSanitizeOwnerID(t *testing.T) {
	assert.Equal(t, "user_42", sanitizeOwnerID("user/42"))
	assert.Equal(t, "a-b.c_d", sanitizeOwnerID("a-b.c_d"))
	assert.Equal(t, "a_b_c", sanitizeOwnerID("a b!c"))
}
