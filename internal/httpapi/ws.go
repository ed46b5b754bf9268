package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chayanin-k/rapport/internal/engine"
	"github.com/chayanin-k/rapport/internal/provider"
)

type wsTurn struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type wsReply struct {
	Reply string `json:"reply,omitempty"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// handleChatWS runs text-only turns over a websocket. Turns are processed
// one at a time per connection; the same engine backs both transports.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(1 << 20)

	for {
		var turn wsTurn
		if err := conn.ReadJSON(&turn); err != nil {
			return
		}

		if strings.TrimSpace(turn.SessionID) == "" {
			s.writeWS(conn, wsReply{Error: "missing session_id", Code: "missing_session_id"})
			continue
		}

		reply, err := s.runner.Turn(r.Context(), engine.TurnRequest{
			SessionID: turn.SessionID,
			Message:   turn.Message,
		})
		if err != nil {
			s.writeWS(conn, wsReply{Error: err.Error(), Code: wsErrorCode(err)})
			continue
		}
		s.writeWS(conn, wsReply{Reply: reply})
	}
}

func (s *Server) writeWS(conn *websocket.Conn, msg wsReply) {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	_ = conn.WriteJSON(msg)
}

func wsErrorCode(err error) string {
	var pe *provider.ProviderError
	switch {
	case errors.As(err, &pe):
		return "provider_error"
	case errors.Is(err, provider.ErrMalformedResponse):
		return "malformed_response"
	default:
		return "internal_error"
	}
}
