package browser

import (
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/searchlet/chatbridge/internal/logging"
)

// killOrphansOnPort terminates any process whose command line carries the
// configured remote-debugging port. This catches browsers left behind when
// the launcher forked and the tracked process handle went stale. Returns the
// number of processes killed.
func killOrphansOnPort(port int, logger *logging.Logger) int {
	procs, err := process.Processes()
	if err != nil {
		logger.Warn("orphan scan failed", "error", err.Error())
		return 0
	}

	marker := fmt.Sprintf("--remote-debugging-port=%d", port)
	killed := 0
	for _, p := range procs {
		cmdline, err := p.Cmdline()
		if err != nil || !strings.Contains(cmdline, marker) {
			continue
		}
		if err := p.Kill(); err != nil {
			logger.Warn("failed to kill orphaned process",
				"pid", p.Pid,
				"error", err.Error(),
			)
			continue
		}
		killed++
	}
	return killed
}
