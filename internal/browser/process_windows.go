//go:build windows

package browser

import (
	"os"
	"os/exec"
	"time"
)

// configureProcAttr is a no-op on Windows.
func configureProcAttr(_ *exec.Cmd) {}

// gracefulKill terminates the process directly; Windows has no TERM/KILL
// escalation for console-less GUI processes.
func gracefulKill(cmd *exec.Cmd, _ time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

// exitIndicatesTermination reports whether the observed exit state means the
// browser is truly gone. Windows launchers do not fork-and-exit, so any exit
// is termination.
func exitIndicatesTermination(ps *os.ProcessState) bool {
	return ps != nil
}
