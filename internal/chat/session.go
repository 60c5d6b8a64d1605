// Package chat holds a single user's conversation with a completion model.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/tunechat/internal/models"
)

// ErrEmptyInput is returned by Ask for blank input. Nothing is sent.
var ErrEmptyInput = errors.New("empty input")

// Completer sends a conversation to a model and returns its reply.
type Completer interface {
	Complete(ctx context.Context, model string, turns []models.Turn) (string, error)
}

// Session owns one conversation. It is safe for concurrent use, though a
// surface normally drives it from a single goroutine.
type Session struct {
	ID        string
	Model     string
	CreatedAt time.Time

	systemPrompt string
	completer    Completer

	mu    sync.Mutex
	turns []models.Turn
}

// NewSession creates an empty session. systemPrompt, if set, is sent ahead
// of every request but never stored in the conversation.
func NewSession(completer Completer, model, systemPrompt string) *Session {
	return &Session{
		ID:           uuid.New().String(),
		Model:        model,
		CreatedAt:    time.Now(),
		systemPrompt: systemPrompt,
		completer:    completer,
	}
}

// Ask appends input as a user turn, sends the whole conversation and
// appends the reply. On failure the user turn is kept and the error is
// returned for the caller to display.
func (s *Session) Ask(ctx context.Context, input string) (models.Turn, error) {
	if strings.TrimSpace(input) == "" {
		return models.Turn{}, ErrEmptyInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, models.UserTurn(input))

	reply, err := s.completer.Complete(ctx, s.Model, s.request())
	if err != nil {
		return models.Turn{}, err
	}

	turn := models.AssistantTurn(reply)
	s.turns = append(s.turns, turn)
	return turn, nil
}

// request builds the outgoing turn list. Caller holds mu.
func (s *Session) request() []models.Turn {
	out := make([]models.Turn, 0, len(s.turns)+1)
	if s.systemPrompt != "" {
		out = append(out, models.SystemTurn(s.systemPrompt))
	}
	return append(out, s.turns...)
}

// Reset clears the conversation.
func (s *Session) Reset() {
	s.mu.Lock()
	s.turns = nil
	s.mu.Unlock()
}

// Turns returns a copy of the conversation.
func (s *Session) Turns() []models.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of stored turns.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}
