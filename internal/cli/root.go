// Package cli provides the command-line interface for tunechat.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/raphaelgruber/tunechat/internal/client"
	"github.com/raphaelgruber/tunechat/internal/config"
	"github.com/raphaelgruber/tunechat/internal/llm"
	"github.com/raphaelgruber/tunechat/internal/metrics"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose    bool
	configPath string

	// Global state set up before every command
	cfg       config.Config
	logger    *slog.Logger
	closeLog  func() error
	collector *metrics.Collector
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "tunechat",
	Short: "Chat with and fine-tune hosted language models",
	Long: `tunechat talks to a hosted, OpenAI-compatible completion service.

It offers an interactive chat against a (fine-tuned) model, a websocket
chat server, and a fine-tuning workflow that validates a JSONL training
file, uploads it, creates a tuning job and waits for the resulting model.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.LoadFile(configPath)
		if err != nil {
			return err
		}

		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}
		// Keep the chat transcript free of info records.
		quiet := cmd == chatCmd && !verbose
		logger, closeLog = config.SetupLogger(cfg.LogOptions(quiet))
		slog.SetDefault(logger)

		collector = metrics.NewCollector()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLog != nil {
			if err := closeLog(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// newInvoker creates the completion invoker for the configured provider.
func newInvoker() (*llm.Invoker, error) {
	invoker, err := llm.NewInvoker(cfg, collector, logger)
	if err != nil {
		return nil, fmt.Errorf("init completion model: %w", err)
	}
	return invoker, nil
}

// newAPIClient creates the fine-tuning API client.
func newAPIClient() (*client.Client, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OpenAI API key required (set OPENAI_API_KEY)")
	}
	return client.New(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey,
		client.WithTimeout(cfg.ClientTimeout),
		client.WithMetrics(collector),
	), nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $TUNECHAT_CONFIG or ~/.config/tunechat/config.yaml)")

	// Add subcommands
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(finetuneCmd)
}
