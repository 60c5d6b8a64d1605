package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/raphaelgruber/tunechat/internal/chat"
	"github.com/raphaelgruber/tunechat/internal/metrics"
	"github.com/raphaelgruber/tunechat/internal/models"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const chatPrompt = "> "

var (
	chatModel  string
	chatSystem string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat with the configured model",
	Long: `Start an interactive chat session. Every message is sent together with
the whole conversation so far.

Commands inside the chat:
  /reset    clear the conversation
  /history  show the conversation so far
  /stats    show request statistics
  /quit     leave the chat

Examples:
  tunechat chat
  tunechat chat --model gpt-4o-mini --system "Answer briefly."`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatModel, "model", "m", "", "model to chat with (default from config)")
	chatCmd.Flags().StringVar(&chatSystem, "system", "", "system prompt sent ahead of every request")
}

func runChat(cmd *cobra.Command, args []string) error {
	invoker, err := newInvoker()
	if err != nil {
		return err
	}

	model := invoker.DefaultModel()
	if chatModel != "" {
		model = chatModel
	}
	system := cfg.SystemPrompt
	if chatSystem != "" {
		system = chatSystem
	}

	session := chat.NewSession(invoker, model, system)
	logger.Debug("chat session started", "session_id", session.ID, "model", model)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return runChatLoop(ctx, session, newScannerLines(os.Stdin, nil), os.Stdout, collector)
	}

	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}, chatPrompt)
	in := rawLines{lines: t, enter: func() (func(), error) {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return nil, err
		}
		return func() { _ = term.Restore(fd, oldState) }, nil
	}}
	return runChatLoop(ctx, session, in, t, collector)
}

// lineReader yields one line of user input at a time.
type lineReader interface {
	ReadLine() (string, error)
}

// scannerLines reads lines from a non-interactive input.
type scannerLines struct {
	scanner *bufio.Scanner
	prompt  io.Writer
}

func newScannerLines(r io.Reader, prompt io.Writer) *scannerLines {
	return &scannerLines{scanner: bufio.NewScanner(r), prompt: prompt}
}

func (s *scannerLines) ReadLine() (string, error) {
	if s.prompt != nil {
		fmt.Fprint(s.prompt, chatPrompt)
	}
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.scanner.Text(), nil
}

// rawLines holds the terminal in raw mode only while a line is read, so
// Ctrl-C still raises SIGINT while a reply is in flight.
type rawLines struct {
	lines lineReader
	enter func() (restore func(), err error)
}

func (r rawLines) ReadLine() (string, error) {
	restore, err := r.enter()
	if err != nil {
		return "", fmt.Errorf("enter raw mode: %w", err)
	}
	defer restore()
	return r.lines.ReadLine()
}

// runChatLoop drives the chat until the input ends, /quit is entered or
// ctx is cancelled. A failed completion is reported and the loop goes on.
func runChatLoop(ctx context.Context, session *chat.Session, in lineReader, out io.Writer, stats *metrics.Collector) error {
	theme := defaultTheme

	fmt.Fprintln(out, theme.titleStyle().Render(cfg.ChatTitle))
	if cfg.ChatGreeting != "" {
		fmt.Fprintln(out, cfg.ChatGreeting)
	}
	fmt.Fprintln(out, theme.hintStyle().Render("Type /reset to start over, /quit to leave."))
	fmt.Fprintln(out)

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := in.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		switch strings.TrimSpace(line) {
		case "/quit", "/exit":
			return nil
		case "/reset":
			session.Reset()
			fmt.Fprintln(out, theme.hintStyle().Render("Conversation cleared."))
			continue
		case "/history":
			renderHistory(out, theme, session.Turns())
			continue
		case "/stats":
			printStats(out, stats.Snapshot())
			continue
		}

		turn, err := session.Ask(ctx, line)
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, chat.ErrEmptyInput):
			continue
		case err != nil:
			renderChatError(out, theme, err)
		default:
			fmt.Fprintln(out, theme.assistantStyle().Render(turn.Content))
			fmt.Fprintln(out)
		}
	}
}

func renderHistory(out io.Writer, theme Theme, turns []models.Turn) {
	if len(turns) == 0 {
		fmt.Fprintln(out, theme.hintStyle().Render("No messages yet."))
		return
	}
	for _, turn := range turns {
		switch turn.Role {
		case models.RoleUser:
			fmt.Fprintln(out, theme.userStyle().Render("you: "+turn.Content))
		default:
			fmt.Fprintln(out, theme.assistantStyle().Render(string(turn.Role)+": "+turn.Content))
		}
	}
}

// renderChatError shows a completion failure without ending the chat.
func renderChatError(out io.Writer, theme Theme, err error) {
	svcErr, ok := models.AsServiceError(err)
	if !ok {
		fmt.Fprintln(out, theme.errorStyle().Render(fmt.Sprintf("Unexpected error: %v", err)))
		return
	}

	fmt.Fprintln(out, theme.errorStyle().Render(fmt.Sprintf("Error talking to the assistant: %v", svcErr)))
	hint := "Please try again."
	if svcErr.Fatal() {
		hint = "Check your API key, quota and billing settings."
	}
	fmt.Fprintln(out, theme.hintStyle().Render(hint))
}
