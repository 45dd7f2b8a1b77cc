package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/searchlet/chatbridge/internal/diagnostics"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the host environment",
	Long:  "Verify the browser binary, debug port, profile storage, and host resources.",
	RunE:  runDoctor,
}

var doctorDumpConfig bool

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorDumpConfig, "dump-config", false,
		"print the effective configuration as YAML")
}

var (
	styleOK   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styleWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	styleFail = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func runDoctor(_ *cobra.Command, _ []string) error {
	cfg, err := newLoader().LoadLenient()
	if err != nil {
		return err
	}

	if doctorDumpConfig {
		dump := *cfg
		if dump.Server.SharedSecret != "" {
			dump.Server.SharedSecret = "[REDACTED]"
		}
		if dump.Backend.AuthToken != "" {
			dump.Backend.AuthToken = "[REDACTED]"
		}
		out, err := yaml.Marshal(dump)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	}

	fmt.Println("Checking environment...")
	fmt.Println()

	failed := false
	for _, res := range diagnostics.RunChecks(cfg) {
		var icon string
		switch res.Status {
		case diagnostics.StatusOK:
			icon = styleOK.Render("✓")
		case diagnostics.StatusWarn:
			icon = styleWarn.Render("⚠")
		default:
			icon = styleFail.Render("✗")
			failed = true
		}
		fmt.Printf("  %s %-16s %s\n", icon, res.Name, res.Detail)
		if res.Advice != "" {
			fmt.Printf("    %s\n", res.Advice)
		}
	}

	fmt.Println()
	if failed {
		fmt.Println("Fix the failing checks before starting the service.")
		os.Exit(1)
	}
	fmt.Println("Environment looks good.")
	return nil
}
