package config

import (
	"time"

	"github.com/spf13/viper"
)

// Default timing constants. The command and sync ceilings are contractual:
// no bridge command outlives two minutes, no sync outlives five.
const (
	DefaultIdleTimeout       = 30 * time.Minute
	DefaultIdleCheckInterval = 30 * time.Second
	DefaultProbeStartupDelay = 15 * time.Second
	DefaultProbeInterval     = 10 * time.Second
	DefaultSyncInterval      = 15 * time.Minute
	DefaultSyncSafetyTimeout = 5 * time.Minute
	DefaultSettleDelay       = 10 * time.Second
	DefaultCommandTimeout    = 2 * time.Minute
	DefaultSweepInterval     = 5 * time.Second
)

// setDefaults configures default values on a viper instance.
func setDefaults(v *viper.Viper) {
	// Logging
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "auto")

	// HTTP server
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8744)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.enable_cors", true)
	v.SetDefault("server.cors_origins", []string{"chrome-extension://*"})

	// Browser process
	v.SetDefault("browser.binary_path", "chromium")
	v.SetDefault("browser.target_url", "https://web.whatsapp.com")
	v.SetDefault("browser.debug_port", 9222)
	v.SetDefault("browser.profile_root", ".chatbridge/profiles")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.idle_timeout", DefaultIdleTimeout)
	v.SetDefault("browser.idle_check_interval", DefaultIdleCheckInterval)
	v.SetDefault("browser.kill_grace_period", 5*time.Second)

	// Link probe
	v.SetDefault("probe.startup_delay", DefaultProbeStartupDelay)
	v.SetDefault("probe.interval", DefaultProbeInterval)
	v.SetDefault("probe.eval_timeout", 10*time.Second)

	// Sync scheduler
	v.SetDefault("sync.interval", DefaultSyncInterval)
	v.SetDefault("sync.safety_timeout", DefaultSyncSafetyTimeout)
	v.SetDefault("sync.settle_delay", DefaultSettleDelay)

	// Command bridge
	v.SetDefault("bridge.command_timeout", DefaultCommandTimeout)
	v.SetDefault("bridge.sweep_interval", DefaultSweepInterval)

	// Backend collaborator
	v.SetDefault("backend.base_url", "")
	v.SetDefault("backend.timeout", 10*time.Second)
	v.SetDefault("backend.max_retries", 2)

	// Persistence
	v.SetDefault("store.path", ".chatbridge/state.db")
}
