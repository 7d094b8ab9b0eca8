package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/harun/conduit/internal/config"
	"github.com/harun/conduit/internal/daemon"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of the conduit services",
	Long: `Probe the health endpoints of the toolbox, model gateway and agent, and report
any services running on this machine from their PID files.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type probeResult struct {
	Name   string
	URL    string
	Status string
	Detail string
}

func runStatus(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	ctx, cancel := context.WithTimeout(contextOf(cmd), 10*time.Second)
	defer cancel()

	for _, p := range probeServices(ctx, cfg) {
		line := fmt.Sprintf("%-8s %-10s %s", p.Name, p.Status, p.URL)
		if p.Detail != "" {
			line += "  (" + p.Detail + ")"
		}
		fmt.Fprintln(out, line)
	}

	fmt.Fprintln(out)
	printLocalProcesses(out, cfg.DataDir)
	return nil
}

func probeServices(ctx context.Context, cfg *config.Config) []probeResult {
	agentURL := fmt.Sprintf("http://localhost:%d", cfg.Agent.Port)
	targets := []struct{ name, url string }{
		{"toolbox", cfg.Toolbox.URL},
		{"gateway", gatewayURL(cfg)},
		{"agent", agentURL},
	}

	client := &http.Client{Timeout: 3 * time.Second}
	results := make([]probeResult, 0, len(targets))
	for _, t := range targets {
		results = append(results, probe(ctx, client, t.name, t.url))
	}
	return results
}

// probe reads GET /health. Any 200 is up; the body's status field refines it when present.
func probe(ctx context.Context, client *http.Client, name, baseURL string) probeResult {
	result := probeResult{Name: name, URL: baseURL, Status: "down"}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/health", nil)
	if err != nil {
		result.Detail = err.Error()
		return result
	}
	resp, err := client.Do(req)
	if err != nil {
		result.Detail = err.Error()
		return result
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode != http.StatusOK {
		result.Status = "unhealthy"
		result.Detail = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return result
	}

	result.Status = "up"
	var health struct {
		Status string `json:"status"`
	}
	if json.Unmarshal(body, &health) == nil && health.Status != "" && health.Status != "healthy" && health.Status != "ok" {
		result.Detail = health.Status
	}
	return result
}

func printLocalProcesses(out io.Writer, dataDir string) {
	names := []string{"agent", "gateway", "toolbox", "agent+toolbox"}
	found := false
	for _, name := range names {
		pidFile := daemon.PIDFilePath(dataDir, name)
		if !daemon.IsRunning(pidFile) {
			continue
		}
		found = true
		pid, _ := daemon.ReadPID(pidFile)
		line := fmt.Sprintf("Local %s: running (PID %d", name, pid)
		if info, err := os.Stat(pidFile); err == nil {
			line += ", uptime " + formatDuration(time.Since(info.ModTime()))
		}
		fmt.Fprintln(out, line+")")
	}
	if !found {
		fmt.Fprintln(out, "No local services running")
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
