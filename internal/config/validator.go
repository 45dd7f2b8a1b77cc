package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates the given configuration and returns the collected
// errors, or nil when the config is usable.
func Validate(cfg *Config) error {
	return NewValidator().Validate(cfg)
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateServer(&cfg.Server)
	v.validateBrowser(&cfg.Browser)
	v.validateProbe(&cfg.Probe)
	v.validateSync(&cfg.Sync)
	v.validateBridge(&cfg.Bridge)
	v.validateBackend(&cfg.Backend)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) addError(field string, value interface{}, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Value: value, Message: message})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	switch cfg.Level {
	case "", "debug", "info", "warn", "error":
	default:
		v.addError("log.level", cfg.Level, "must be one of debug, info, warn, error")
	}
	switch cfg.Format {
	case "", "auto", "text", "json":
	default:
		v.addError("log.format", cfg.Format, "must be one of auto, text, json")
	}
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if cfg.Port < 1 || cfg.Port > 65535 {
		v.addError("server.port", cfg.Port, "must be between 1 and 65535")
	}
	if cfg.SharedSecret == "" {
		v.addError("server.shared_secret", "", "must be set; all inbound routes require it")
	} else if len(cfg.SharedSecret) < 16 {
		v.addError("server.shared_secret", "***", "must be at least 16 characters")
	}
}

func (v *Validator) validateBrowser(cfg *BrowserConfig) {
	if cfg.BinaryPath == "" {
		v.addError("browser.binary_path", "", "must be set")
	}
	if cfg.TargetURL == "" {
		v.addError("browser.target_url", "", "must be set")
	} else if u, err := url.Parse(cfg.TargetURL); err != nil || u.Scheme == "" {
		v.addError("browser.target_url", cfg.TargetURL, "must be an absolute URL")
	}
	if cfg.DebugPort < 1024 || cfg.DebugPort > 65535 {
		v.addError("browser.debug_port", cfg.DebugPort, "must be between 1024 and 65535")
	}
	if cfg.IdleTimeout <= 0 {
		v.addError("browser.idle_timeout", cfg.IdleTimeout, "must be positive")
	}
	if cfg.IdleCheckInterval <= 0 {
		v.addError("browser.idle_check_interval", cfg.IdleCheckInterval, "must be positive")
	}
	if cfg.IdleCheckInterval > cfg.IdleTimeout && cfg.IdleTimeout > 0 {
		v.addError("browser.idle_check_interval", cfg.IdleCheckInterval, "must not exceed idle_timeout")
	}
}

func (v *Validator) validateProbe(cfg *ProbeConfig) {
	if cfg.Interval <= 0 {
		v.addError("probe.interval", cfg.Interval, "must be positive")
	}
	if cfg.StartupDelay < 0 {
		v.addError("probe.startup_delay", cfg.StartupDelay, "must not be negative")
	}
}

func (v *Validator) validateSync(cfg *SyncConfig) {
	if cfg.Interval <= 0 {
		v.addError("sync.interval", cfg.Interval, "must be positive")
	}
	if cfg.SafetyTimeout <= 0 {
		v.addError("sync.safety_timeout", cfg.SafetyTimeout, "must be positive")
	}
	if cfg.SettleDelay < 0 {
		v.addError("sync.settle_delay", cfg.SettleDelay, "must not be negative")
	}
}

func (v *Validator) validateBridge(cfg *BridgeConfig) {
	if cfg.CommandTimeout <= 0 {
		v.addError("bridge.command_timeout", cfg.CommandTimeout, "must be positive")
	}
	if cfg.SweepInterval <= 0 {
		v.addError("bridge.sweep_interval", cfg.SweepInterval, "must be positive")
	}
}

func (v *Validator) validateBackend(cfg *BackendConfig) {
	if cfg.BaseURL != "" {
		if u, err := url.Parse(cfg.BaseURL); err != nil || u.Scheme == "" {
			v.addError("backend.base_url", cfg.BaseURL, "must be an absolute URL when set")
		}
	}
	if cfg.MaxRetries < 0 {
		v.addError("backend.max_retries", cfg.MaxRetries, "must not be negative")
	}
}
