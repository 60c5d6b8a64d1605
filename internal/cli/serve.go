package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/raphaelgruber/tunechat/internal/server"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve chat sessions over websockets",
	Long: `Start an HTTP server that hosts one chat session per websocket connection.

Endpoints:
  /ws      websocket chat
  /stats   request statistics (JSON)
  /health  liveness check

Examples:
  tunechat serve
  tunechat serve --addr 127.0.0.1:9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	invoker, err := newInvoker()
	if err != nil {
		return err
	}

	addr := cfg.ServerAddr
	if serveAddr != "" {
		addr = serveAddr
	}

	srv := server.New(server.Options{
		Completer:    invoker,
		Model:        invoker.DefaultModel(),
		SystemPrompt: cfg.SystemPrompt,
		Greeting:     cfg.ChatGreeting,
		Metrics:      collector,
		Logger:       logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting tunechat server", "addr", addr, "model", invoker.DefaultModel())
	return srv.Run(ctx, addr)
}
