package server

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/tunechat/internal/chat"
	"github.com/raphaelgruber/tunechat/internal/models"
)

// Message types exchanged over the websocket.
const (
	TypeAsk     = "ask"
	TypeReset   = "reset"
	TypeHistory = "history"
	TypeSession = "session"
	TypeReply   = "reply"
	TypeError   = "error"
)

// ClientMessage is sent by the browser or CLI client.
type ClientMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// ServerMessage is sent back to the client.
type ServerMessage struct {
	Type      string        `json:"type"`
	SessionID string        `json:"session_id,omitempty"`
	Greeting  string        `json:"greeting,omitempty"`
	Content   string        `json:"content,omitempty"`
	Error     string        `json:"error,omitempty"`
	Fatal     bool          `json:"fatal,omitempty"`
	Turns     []models.Turn `json:"turns,omitempty"`
}

// handleWebsocket owns one chat.Session for the lifetime of the connection.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	session := chat.NewSession(s.opts.Completer, s.opts.Model, s.opts.SystemPrompt)
	logger := s.logger.With("session_id", session.ID)
	logger.Info("session opened", "remote", r.RemoteAddr)

	if err := conn.WriteJSON(ServerMessage{Type: TypeSession, SessionID: session.ID, Greeting: s.opts.Greeting}); err != nil {
		logger.Warn("failed to send session", "error", err)
		return
	}

	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("read failed", "error", err)
			}
			break
		}

		resp := s.dispatch(r, session, msg)
		if err := conn.WriteJSON(resp); err != nil {
			logger.Warn("write failed", "error", err)
			break
		}
	}

	logger.Info("session closed", "turns", session.Len())
}

func (s *Server) dispatch(r *http.Request, session *chat.Session, msg ClientMessage) ServerMessage {
	switch msg.Type {
	case TypeAsk:
		turn, err := session.Ask(r.Context(), msg.Content)
		if err != nil {
			return errorMessage(err)
		}
		return ServerMessage{Type: TypeReply, Content: turn.Content}

	case TypeReset:
		session.Reset()
		return ServerMessage{Type: TypeReset}

	case TypeHistory:
		return ServerMessage{Type: TypeHistory, Turns: session.Turns()}

	default:
		return ServerMessage{Type: TypeError, Error: "unknown message type: " + msg.Type}
	}
}

func errorMessage(err error) ServerMessage {
	msg := ServerMessage{Type: TypeError, Error: err.Error()}
	if svcErr, ok := models.AsServiceError(err); ok {
		msg.Fatal = svcErr.Fatal()
	}
	if errors.Is(err, chat.ErrEmptyInput) {
		msg.Error = "message is empty"
	}
	return msg
}
