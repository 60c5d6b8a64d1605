package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/raphaelgruber/tunechat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	replies []string
	err     error
	calls   [][]models.Turn
	model   string
}

func (f *fakeCompleter) Complete(_ context.Context, model string, turns []models.Turn) (string, error) {
	f.model = model
	f.calls = append(f.calls, append([]models.Turn(nil), turns...))
	if f.err != nil {
		return "", f.err
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply, nil
}

func TestAskAppendsBothTurns(t *testing.T) {
	completer := &fakeCompleter{replies: []string{"Hello!", "CBD is a cannabinoid."}}
	s := NewSession(completer, "ft:model-x", "")

	turn, err := s.Ask(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, models.AssistantTurn("Hello!"), turn)
	assert.Equal(t, 2, s.Len())

	_, err = s.Ask(context.Background(), "what is CBD?")
	require.NoError(t, err)
	assert.Equal(t, 4, s.Len())
	assert.Equal(t, "ft:model-x", completer.model)

	// the full history is sent every time
	require.Len(t, completer.calls, 2)
	assert.Equal(t, []models.Turn{
		models.UserTurn("hi"),
		models.AssistantTurn("Hello!"),
		models.UserTurn("what is CBD?"),
	}, completer.calls[1])
}

func TestAskFailureKeepsUserTurn(t *testing.T) {
	completer := &fakeCompleter{err: &models.ServiceError{Op: "completion", StatusCode: 429, Message: "rate limit"}}
	s := NewSession(completer, "m", "")

	_, err := s.Ask(context.Background(), "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrFatalAPI)

	turns := s.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, models.RoleUser, turns[0].Role)
}

func TestAskEmptyInputIsNoop(t *testing.T) {
	completer := &fakeCompleter{}
	s := NewSession(completer, "m", "")

	for _, input := range []string{"", "   ", "\n\t"} {
		_, err := s.Ask(context.Background(), input)
		assert.True(t, errors.Is(err, ErrEmptyInput))
	}
	assert.Zero(t, s.Len())
	assert.Empty(t, completer.calls)
}

func TestSystemPromptNotStored(t *testing.T) {
	completer := &fakeCompleter{replies: []string{"ok"}}
	s := NewSession(completer, "m", "You are Dr. Cannabis.")

	_, err := s.Ask(context.Background(), "hi")
	require.NoError(t, err)

	require.Len(t, completer.calls, 1)
	assert.Equal(t, models.SystemTurn("You are Dr. Cannabis."), completer.calls[0][0])
	assert.Equal(t, []models.Turn{models.UserTurn("hi"), models.AssistantTurn("ok")}, s.Turns())
}

func TestReset(t *testing.T) {
	s := NewSession(&fakeCompleter{replies: []string{"a"}}, "m", "")
	_, err := s.Ask(context.Background(), "q")
	require.NoError(t, err)

	s.Reset()
	assert.Zero(t, s.Len())
	assert.Empty(t, s.Turns())
}

func TestTurnsReturnsCopy(t *testing.T) {
	s := NewSession(&fakeCompleter{replies: []string{"a"}}, "m", "")
	_, err := s.Ask(context.Background(), "q")
	require.NoError(t, err)

	turns := s.Turns()
	turns[0].Content = "changed"
	assert.Equal(t, "q", s.Turns()[0].Content)
}

func TestSessionIDsAreUnique(t *testing.T) {
	a := NewSession(&fakeCompleter{}, "m", "")
	b := NewSession(&fakeCompleter{}, "m", "")
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}
