package browser

import (
	"fmt"
	"os"
	"os/exec"
)

// binaryCandidates are tried in order when no binary path is configured.
var binaryCandidates = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
}

// ResolveBinaryPath returns a launchable browser binary. An explicitly
// configured path wins; otherwise well-known names are tried on PATH and at
// their absolute locations.
func ResolveBinaryPath(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("configured browser binary not found: %s", configured)
		}
		return configured, nil
	}

	for _, candidate := range binaryCandidates {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no Chrome or Chromium binary found on PATH")
}
