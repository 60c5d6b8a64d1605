package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/tunechat/internal/models"
	"github.com/spf13/cobra"
)

var (
	askModel   string
	askSystem  string
	askTimeout time.Duration
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Send a single question to a model and print the reply",
	Long: `Send one system turn and one user turn to a model and print the reply.
Useful as a smoke test for a freshly fine-tuned model.

Examples:
  tunechat ask "What is CBD?"
  tunechat ask "What is CBD?" --model ft:gpt-3.5-turbo-0125:personal::abc123
  tunechat ask "Dosage for insomnia?" --system "Answer in one sentence."`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askModel, "model", "m", "", "model to query (default from config)")
	askCmd.Flags().StringVar(&askSystem, "system", "", "system prompt (default from config)")
	askCmd.Flags().DurationVar(&askTimeout, "timeout", 2*time.Minute, "request timeout")
}

func runAsk(cmd *cobra.Command, args []string) error {
	invoker, err := newInvoker()
	if err != nil {
		return err
	}

	model := cfg.ChatModel
	if askModel != "" {
		model = askModel
	}
	system := cfg.SmokeSystemPrompt
	if askSystem != "" {
		system = askSystem
	}

	var turns []models.Turn
	if system != "" {
		turns = append(turns, models.SystemTurn(system))
	}
	turns = append(turns, models.UserTurn(args[0]))

	ctx, cancel := context.WithTimeout(context.Background(), askTimeout)
	defer cancel()

	reply, err := invoker.Complete(ctx, model, turns)
	if err != nil {
		return fmt.Errorf("ask %s: %w", model, err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), reply)
	return nil
}
