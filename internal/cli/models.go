package cli

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/harun/conduit/internal/config"
	"github.com/harun/conduit/pkg/llmgateway"
	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models of a running gateway",
	RunE:  runModels,
}

var metricsReset bool

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show usage metrics of a running gateway",
	RunE:  runMetrics,
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the gateway response cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every cached response",
	RunE:  runCacheClear,
}

func init() {
	metricsCmd.Flags().BoolVar(&metricsReset, "reset", false, "reset the counters after printing them")
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(cacheCmd)
}

// gatewayURL is gateway.url, or the local gateway port when unset
func gatewayURL(cfg *config.Config) string {
	if cfg.Gateway.URL != "" {
		return cfg.Gateway.URL
	}
	return fmt.Sprintf("http://localhost:%d", cfg.Gateway.Port)
}

func gatewayClient() (*llmgateway.Client, error) {
	_, cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return llmgateway.NewClient(gatewayURL(cfg), 10*time.Second), nil
}

func runModels(cmd *cobra.Command, args []string) error {
	client, err := gatewayClient()
	if err != nil {
		return err
	}

	models, err := client.Models(contextOf(cmd))
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tPROVIDER\tTOOLS\tDESCRIPTION")
	for _, m := range models {
		tools := "text"
		if m.SupportsTools {
			tools = "native"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.Name, m.Provider, tools, m.Description)
	}
	return w.Flush()
}

func runMetrics(cmd *cobra.Command, args []string) error {
	client, err := gatewayClient()
	if err != nil {
		return err
	}
	ctx := contextOf(cmd)

	metrics, err := client.Metrics(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch metrics: %w", err)
	}
	if err := printMetrics(cmd, metrics); err != nil {
		return err
	}

	if metricsReset {
		if err := client.ResetMetrics(ctx); err != nil {
			return fmt.Errorf("failed to reset metrics: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Metrics reset")
	}
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	client, err := gatewayClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(contextOf(cmd), 10*time.Second)
	defer cancel()

	n, err := client.ClearCache(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d cached responses\n", n)
	return nil
}

func printMetrics(cmd *cobra.Command, m *llmgateway.MetricsResponse) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Since: %s\n", m.Metrics.Since.Format(time.RFC3339))
	fmt.Fprintf(out, "Cache: enabled=%t entries=%d hit rate=%.1f%%\n\n",
		m.Cache.Enabled, m.Cache.Size, m.Metrics.CacheHitRate*100)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tCALLS\tHITS\tERRORS\tTOKENS\tCOST USD\tAVG MS\tP95 MS")
	row := func(name string, mm llmgateway.ModelMetrics) {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%.6f\t%.1f\t%.1f\n",
			name, mm.Calls, mm.CacheHits, mm.Errors, mm.TotalTokens, mm.TotalCostUSD, mm.Latency.AvgMs, mm.Latency.P95Ms)
	}
	for _, name := range sortedKeys(m.Metrics.Models) {
		row(name, m.Metrics.Models[name])
	}
	row("TOTAL", m.Metrics.Totals)
	return w.Flush()
}

func sortedKeys(models map[string]llmgateway.ModelMetrics) []string {
	keys := make([]string, 0, len(models))
	for k := range models {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
