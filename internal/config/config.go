package config

import "time"

// Config holds all application configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Server  ServerConfig  `mapstructure:"server"`
	Browser BrowserConfig `mapstructure:"browser"`
	Probe   ProbeConfig   `mapstructure:"probe"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Bridge  BridgeConfig  `mapstructure:"bridge"`
	Backend BackendConfig `mapstructure:"backend"`
	Store   StoreConfig   `mapstructure:"store"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig configures the HTTP control surface.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	SharedSecret    string        `mapstructure:"shared_secret"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	EnableCORS      bool          `mapstructure:"enable_cors"`
}

// BrowserConfig configures the managed browser process.
type BrowserConfig struct {
	BinaryPath        string        `mapstructure:"binary_path"`
	TargetURL         string        `mapstructure:"target_url"`
	DebugPort         int           `mapstructure:"debug_port"`
	ProfileRoot       string        `mapstructure:"profile_root"`
	Headless          bool          `mapstructure:"headless"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	IdleCheckInterval time.Duration `mapstructure:"idle_check_interval"`
	KillGracePeriod   time.Duration `mapstructure:"kill_grace_period"`
}

// ProbeConfig configures the link-state probe.
type ProbeConfig struct {
	StartupDelay time.Duration `mapstructure:"startup_delay"`
	Interval     time.Duration `mapstructure:"interval"`
	EvalTimeout  time.Duration `mapstructure:"eval_timeout"`
}

// SyncConfig configures the sync scheduler.
type SyncConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	SafetyTimeout time.Duration `mapstructure:"safety_timeout"`
	SettleDelay   time.Duration `mapstructure:"settle_delay"`
}

// BridgeConfig configures the in-page command bridge.
type BridgeConfig struct {
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
}

// BackendConfig configures the outbound backend collaborator client.
type BackendConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	AuthToken  string        `mapstructure:"auth_token"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// StoreConfig configures sync state persistence.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}
