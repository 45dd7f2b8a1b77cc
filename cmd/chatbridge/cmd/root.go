package cmd

import (
	"github.com/spf13/cobra"

	"github.com/searchlet/chatbridge/internal/config"
	"github.com/searchlet/chatbridge/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string

	// Version info - set via SetVersion()
	appVersion string
	appCommit  string
	appDate    string
)

var rootCmd = &cobra.Command{
	Use:   "chatbridge",
	Short: "Browser automation bridge for messaging data extraction",
	Long: `chatbridge owns a single automated browser attached to a messaging web
client. It watches for the account link, schedules data syncs, and relays
extracted messages to the backend.

Run 'chatbridge serve' to start the control service.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func SetVersion(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: .chatbridge.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"log format (auto, text, json)")
}

// newLoader builds a config loader honoring the persistent flags.
func newLoader() *config.Loader {
	loader := config.NewLoader()
	if cfgFile != "" {
		loader = loader.WithConfigFile(cfgFile)
	}
	if logLevel != "" {
		loader.Viper().Set("log.level", logLevel)
	}
	if logFormat != "" {
		loader.Viper().Set("log.format", logFormat)
	}
	return loader
}

// newLogger builds the process logger from loaded config.
func newLogger(cfg *config.Config) *logging.Logger {
	return logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
}
