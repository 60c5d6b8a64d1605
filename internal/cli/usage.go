package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/raphaelgruber/tunechat/internal/metrics"
	"github.com/spf13/cobra"
)

var usageServer string

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show request statistics of a running chat server",
	Long: `Show runtime statistics and token usage of a running 'tunechat serve'.

Examples:
  tunechat usage
  tunechat usage --server http://chat.internal:8585`,
	Args: cobra.NoArgs,
	RunE: runUsage,
}

func init() {
	usageCmd.Flags().StringVar(&usageServer, "server", "", "server URL (default derived from server address)")
	rootCmd.AddCommand(usageCmd)
}

func runUsage(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	base := usageServer
	if base == "" {
		base = serverURL(cfg.ServerAddr)
	}

	snap, err := fetchStats(ctx, base)
	if err != nil {
		return fmt.Errorf("get server stats: %w", err)
	}
	printStats(cmd.OutOrStdout(), *snap)
	return nil
}

// serverURL turns a listen address such as ":8585" into a dialable URL.
func serverURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

func fetchStats(ctx context.Context, base string) (*metrics.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/stats", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var snap metrics.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	return &snap, nil
}

// printStats displays runtime statistics.
func printStats(out io.Writer, snap metrics.Snapshot) {
	fmt.Fprintf(out, "Statistics (in-memory, since start)\n")
	fmt.Fprintf(out, "═══════════════════════════════════════\n")
	fmt.Fprintf(out, "Uptime: %.1f seconds\n", snap.UptimeSeconds)

	sections := []struct {
		name string
		op   *metrics.OperationSnapshot
	}{
		{"Completions", snap.Completion},
		{"File uploads", snap.Upload},
		{"Job submissions", snap.JobCreate},
		{"Job polls", snap.JobPoll},
	}

	empty := true
	for _, s := range sections {
		if s.op == nil {
			continue
		}
		empty = false
		fmt.Fprintf(out, "\n%s:\n", s.name)
		printOpStats(out, s.op)
		printTokenStats(out, s.op)
	}
	if empty {
		fmt.Fprintln(out, "\nNo requests yet.")
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(out io.Writer, op *metrics.OperationSnapshot) {
	fmt.Fprintf(out, "  Calls: %d, Errors: %d, Total: %dms\n", op.Count, op.Errors, op.TotalTimeMs)
	fmt.Fprintf(out, "  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}

// printTokenStats displays token statistics if available.
func printTokenStats(out io.Writer, op *metrics.OperationSnapshot) {
	if op.InputTokens == nil || op.OutputTokens == nil {
		return
	}
	fmt.Fprintf(out, "  Tokens In:  %d total\n", *op.InputTokens)
	fmt.Fprintf(out, "  Tokens Out: %d total\n", *op.OutputTokens)
}
