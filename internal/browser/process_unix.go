//go:build !windows

package browser

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// configureProcAttr sets up process group isolation so the browser and its
// renderer children can be signaled as a group.
func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// gracefulKill sends SIGTERM to the process group, waits for gracePeriod,
// then sends SIGKILL if the process hasn't exited.
func gracefulKill(cmd *exec.Cmd, gracePeriod time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	pid := cmd.Process.Pid
	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		// Process may have already exited
		return fmt.Errorf("getpgid(%d): %w", pid, err)
	}

	// Send SIGTERM to the entire process group
	if err := syscall.Kill(-pgid, syscall.SIGTERM); err != nil {
		// ESRCH means process already gone
		if err == syscall.ESRCH {
			return nil
		}
		return fmt.Errorf("sigterm pgid %d: %w", pgid, err)
	}

	// Poll for exit within the grace period. The controller's exit watcher
	// owns cmd.Wait, so this must not reap the process itself.
	deadline := time.Now().Add(gracePeriod)
	for time.Now().Before(deadline) {
		if syscall.Kill(pid, 0) == syscall.ESRCH {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	// Process didn't exit, escalate to SIGKILL
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
	return nil
}

// exitIndicatesTermination reports whether the observed exit state means the
// browser is truly gone. On Unix a zero exit with no signal is the launcher
// fork case and is ambiguous; the caller falls back to the debug-port check.
func exitIndicatesTermination(ps *os.ProcessState) bool {
	if ps == nil {
		return false
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return true
	}
	return ps.ExitCode() != 0
}
