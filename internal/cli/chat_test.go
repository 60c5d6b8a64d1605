package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/raphaelgruber/tunechat/internal/chat"
	"github.com/raphaelgruber/tunechat/internal/config"
	"github.com/raphaelgruber/tunechat/internal/metrics"
	"github.com/raphaelgruber/tunechat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedCompleter returns replies in order, or err for inputs listed in failOn.
type scriptedCompleter struct {
	replies []string
	failOn  map[string]error
}

func (s *scriptedCompleter) Complete(_ context.Context, _ string, turns []models.Turn) (string, error) {
	last := turns[len(turns)-1].Content
	if err, ok := s.failOn[last]; ok {
		return "", err
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, nil
}

func runScript(t *testing.T, completer chat.Completer, input string) (*chat.Session, string) {
	t.Helper()
	cfg = config.Load()

	session := chat.NewSession(completer, "ft:model-x", "")
	var out bytes.Buffer
	err := runChatLoop(context.Background(), session, newScannerLines(strings.NewReader(input), nil), &out, metrics.NewCollector())
	require.NoError(t, err)
	return session, out.String()
}

func TestChatLoopConversation(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{"Hello!", "A cannabinoid."}}

	session, out := runScript(t, completer, "hi\nwhat is CBD?\n")

	assert.Contains(t, out, "Hi, I'm Dr. Cannabis!")
	assert.Contains(t, out, "Hello!")
	assert.Contains(t, out, "A cannabinoid.")
	assert.Equal(t, 4, session.Len())
}

func TestChatLoopKeepsGoingAfterErrors(t *testing.T) {
	completer := &scriptedCompleter{
		replies: []string{"still here"},
		failOn: map[string]error{
			"rate me": &models.ServiceError{Op: "completion", StatusCode: 429, Message: "rate limit reached"},
			"explode": errors.New("boom"),
		},
	}

	session, out := runScript(t, completer, "rate me\nexplode\nhello\n")

	assert.Contains(t, out, "Error talking to the assistant: completion: 429 rate limit reached")
	assert.Contains(t, out, "Check your API key")
	assert.Contains(t, out, "Unexpected error: boom")
	assert.Contains(t, out, "still here")

	// two failed user turns, then a user turn and its reply
	assert.Equal(t, 4, session.Len())
}

func TestChatLoopCommands(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{"one", "two"}}

	session, out := runScript(t, completer, "first\n/history\n/reset\n   \nsecond\n/stats\n/quit\nnever sent\n")

	assert.Contains(t, out, "you: first")
	assert.Contains(t, out, "assistant: one")
	assert.Contains(t, out, "Conversation cleared.")
	assert.Contains(t, out, "Statistics")
	assert.NotContains(t, out, "never sent")

	turns := session.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "second", turns[0].Content)
}

func TestChatLoopStopsOnCancelledContext(t *testing.T) {
	cfg = config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session := chat.NewSession(&scriptedCompleter{}, "m", "")
	err := runChatLoop(ctx, session, newScannerLines(strings.NewReader("hi\n"), nil), io.Discard, nil)
	require.NoError(t, err)
	assert.Zero(t, session.Len())
}

// interruptingCompleter cancels the chat context mid-request, the way SIGINT does.
type interruptingCompleter struct {
	cancel  context.CancelFunc
	raw     *bool
	rawSeen bool
}

func (c *interruptingCompleter) Complete(ctx context.Context, _ string, _ []models.Turn) (string, error) {
	if c.raw != nil {
		c.rawSeen = *c.raw
	}
	c.cancel()
	<-ctx.Done()
	return "", ctx.Err()
}

func TestChatLoopInterruptedDuringReply(t *testing.T) {
	cfg = config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	raw := false
	completer := &interruptingCompleter{cancel: cancel, raw: &raw}
	in := rawLines{
		lines: newScannerLines(strings.NewReader("hi\nagain\n"), nil),
		enter: func() (func(), error) {
			raw = true
			return func() { raw = false }, nil
		},
	}

	var out bytes.Buffer
	err := runChatLoop(ctx, chat.NewSession(completer, "m", ""), in, &out, nil)
	require.NoError(t, err)

	assert.False(t, completer.rawSeen, "terminal must not be raw while waiting for a reply")
	assert.False(t, raw)
	assert.NotContains(t, out.String(), "Unexpected error")
}

func TestRawLinesEnterFailure(t *testing.T) {
	in := rawLines{
		lines: newScannerLines(strings.NewReader("hi\n"), nil),
		enter: func() (func(), error) { return nil, errors.New("not a tty") },
	}

	_, err := in.ReadLine()
	assert.ErrorContains(t, err, "enter raw mode: not a tty")
}

func TestScannerLinesPrompt(t *testing.T) {
	var prompt bytes.Buffer
	lines := newScannerLines(strings.NewReader("a\n"), &prompt)

	line, err := lines.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "a", line)
	assert.Equal(t, chatPrompt, prompt.String())

	_, err = lines.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
}
