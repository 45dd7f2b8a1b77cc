package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bridge status",
	Long:  "Query the running service for process and sync status.",
	RunE:  runStatusCmd,
}

var statusJSON bool

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
}

var (
	styleUp   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	styleDown = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	styleDim  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type processStatusView struct {
	Running         bool       `json:"running"`
	ActuallyRunning bool       `json:"actually_running"`
	OwnerID         string     `json:"owner_id"`
	Linked          bool       `json:"linked"`
	PID             int        `json:"pid"`
	StartedAt       *time.Time `json:"started_at"`
	IdleFor         string     `json:"idle_for"`
	ProfileLabel    string     `json:"profile_label"`
}

type syncStatusView struct {
	LastSyncAt *time.Time `json:"last_sync_at"`
	NextSyncAt *time.Time `json:"next_sync_at"`
	Syncing    bool       `json:"syncing"`
	SyncCount  int        `json:"sync_count"`
}

func runStatusCmd(_ *cobra.Command, _ []string) error {
	cfg, err := newLoader().Load()
	if err != nil {
		return err
	}

	base := fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	client := &http.Client{Timeout: 10 * time.Second}

	var proc processStatusView
	if err := fetchJSON(client, base+"/api/v1/process/status", cfg.Server.SharedSecret, &proc); err != nil {
		return fmt.Errorf("service unreachable at %s: %w", base, err)
	}
	var syncs syncStatusView
	if err := fetchJSON(client, base+"/api/v1/sync/status", cfg.Server.SharedSecret, &syncs); err != nil {
		return err
	}

	if statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{"process": proc, "sync": syncs})
	}

	if proc.Running {
		fmt.Println(styleUp.Render("● browser running"))
	} else {
		fmt.Println(styleDown.Render("○ browser stopped"))
	}
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Owner\t%s\n", orDash(proc.OwnerID))
	fmt.Fprintf(w, "PID\t%s\n", orDash(nonZero(proc.PID)))
	fmt.Fprintf(w, "Linked\t%v\n", proc.Linked)
	fmt.Fprintf(w, "Port alive\t%v\n", proc.ActuallyRunning)
	if proc.ProfileLabel != "" {
		fmt.Fprintf(w, "Profile\t%s\n", proc.ProfileLabel)
	}
	if proc.IdleFor != "" {
		fmt.Fprintf(w, "Idle for\t%s\n", proc.IdleFor)
	}
	fmt.Fprintf(w, "Syncing\t%v\n", syncs.Syncing)
	fmt.Fprintf(w, "Sync count\t%d\n", syncs.SyncCount)
	fmt.Fprintf(w, "Last sync\t%s\n", orDash(formatTime(syncs.LastSyncAt)))
	fmt.Fprintf(w, "Next sync\t%s\n", orDash(formatTime(syncs.NextSyncAt)))
	w.Flush()

	fmt.Println()
	fmt.Println(styleDim.Render("service " + base))
	return nil
}

func fetchJSON(client *http.Client, url, secret string, dst interface{}) error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Bridge-Secret", secret)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned %d: %s", url, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func nonZero(n int) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprint(n)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
