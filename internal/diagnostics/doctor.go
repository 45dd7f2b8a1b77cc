package diagnostics

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/searchlet/chatbridge/internal/browser"
	"github.com/searchlet/chatbridge/internal/config"
)

// CheckStatus is the outcome of one doctor check.
type CheckStatus string

const (
	StatusOK   CheckStatus = "ok"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

// CheckResult is one doctor finding.
type CheckResult struct {
	Name   string      `json:"name"`
	Status CheckStatus `json:"status"`
	Detail string      `json:"detail,omitempty"`
	Advice string      `json:"advice,omitempty"`
}

// RunChecks executes the full environment check suite against a config.
func RunChecks(cfg *config.Config) []CheckResult {
	results := []CheckResult{
		checkConfig(cfg),
		checkBrowserBinary(cfg.Browser.BinaryPath),
		checkDebugPort(cfg.Browser.DebugPort),
		checkProfileRoot(cfg.Browser.ProfileRoot),
		checkStorePath(cfg.Store.Path),
		checkResources(),
	}
	return results
}

// checkConfig reports configuration validation problems.
func checkConfig(cfg *config.Config) CheckResult {
	res := CheckResult{Name: "configuration"}
	if err := config.Validate(cfg); err != nil {
		res.Status = StatusFail
		res.Detail = err.Error()
		res.Advice = "fix .chatbridge.yaml or the CHATBRIDGE_* environment"
		return res
	}
	res.Status = StatusOK
	res.Detail = "valid"
	return res
}

// checkBrowserBinary verifies a launchable browser exists.
func checkBrowserBinary(configured string) CheckResult {
	res := CheckResult{Name: "browser binary"}

	path, err := browser.ResolveBinaryPath(configured)
	if err != nil {
		res.Status = StatusFail
		res.Detail = err.Error()
		res.Advice = "install Chrome/Chromium or set browser.binary_path"
		return res
	}
	res.Status = StatusOK
	res.Detail = path
	return res
}

// checkDebugPort verifies the remote debugging port is free. A listener here
// usually means a previous browser survived a crash of this service.
func checkDebugPort(port int) CheckResult {
	res := CheckResult{Name: "debug port"}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	if err == nil {
		conn.Close()
		res.Status = StatusWarn
		res.Detail = fmt.Sprintf("port %d is already in use", port)
		res.Advice = "an orphaned browser may be running; force-stop will sweep it"
		return res
	}

	res.Status = StatusOK
	res.Detail = fmt.Sprintf("port %d is free", port)
	return res
}

// checkProfileRoot verifies the profile directory is writable.
func checkProfileRoot(root string) CheckResult {
	res := CheckResult{Name: "profile root"}

	if err := os.MkdirAll(root, 0o700); err != nil {
		res.Status = StatusFail
		res.Detail = fmt.Sprintf("cannot create %s: %v", root, err)
		return res
	}

	marker := filepath.Join(root, ".doctor-write-check")
	if err := os.WriteFile(marker, []byte("ok"), 0o600); err != nil {
		res.Status = StatusFail
		res.Detail = fmt.Sprintf("%s is not writable: %v", root, err)
		return res
	}
	os.Remove(marker)

	res.Status = StatusOK
	res.Detail = root
	return res
}

// checkStorePath verifies the state database location is usable.
func checkStorePath(path string) CheckResult {
	res := CheckResult{Name: "state store"}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		res.Status = StatusFail
		res.Detail = fmt.Sprintf("cannot create %s: %v", dir, err)
		return res
	}

	if info, err := os.Stat(path); err == nil {
		res.Status = StatusOK
		res.Detail = fmt.Sprintf("%s (%d bytes)", path, info.Size())
		return res
	}

	res.Status = StatusOK
	res.Detail = fmt.Sprintf("%s (will be created)", path)
	return res
}

// checkResources flags hosts short on memory or disk. The browser alone
// wants north of a gigabyte.
func checkResources() CheckResult {
	res := CheckResult{Name: "host resources"}

	metrics := NewCollector().Collect()
	freeMB := metrics.MemTotalMB - metrics.MemUsedMB

	switch {
	case metrics.MemTotalMB == 0:
		res.Status = StatusWarn
		res.Detail = "could not read memory statistics"
	case freeMB < 1024:
		res.Status = StatusWarn
		res.Detail = fmt.Sprintf("only %.0f MB memory free", freeMB)
		res.Advice = "a headful browser typically needs 1 GB or more"
	case metrics.DiskPercent > 95:
		res.Status = StatusWarn
		res.Detail = fmt.Sprintf("disk %.1f%% full", metrics.DiskPercent)
		res.Advice = "browser profiles grow; free some disk space"
	default:
		res.Status = StatusOK
		res.Detail = fmt.Sprintf("%.0f MB memory free, disk %.1f%% used", freeMB, metrics.DiskPercent)
	}
	return res
}
