package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/chayanin-k/rapport/internal/config"
	"github.com/chayanin-k/rapport/internal/engine"
	"github.com/chayanin-k/rapport/internal/observability"
	"github.com/chayanin-k/rapport/internal/provider"
	"github.com/chayanin-k/rapport/internal/transcript"
)

// TurnRunner executes one conversational turn and returns the reply.
type TurnRunner interface {
	Turn(ctx context.Context, req engine.TurnRequest) (string, error)
}

type Server struct {
	cfg      config.Config
	runner   TurnRunner
	store    transcript.Store
	upgrader websocket.Upgrader
}

func New(cfg config.Config, runner TurnRunner, store transcript.Store) *Server {
	return &Server{
		cfg:    cfg,
		runner: runner,
		store:  store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin unless explicitly opened up. Non-browser clients
				// usually omit Origin and are allowed through.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/chat", s.handleChat)
	r.Get("/v1/chat/ws", s.handleChatWS)
	r.Get("/v1/sessions/{id}/transcript", s.handleTranscript)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "missing session id")
		return
	}

	turns, err := s.store.LoadAll(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"turns":      turns,
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, msg string) {
	respondJSON(w, status, errorResponse{Error: msg, Code: code})
}

// respondTurnError maps the error taxonomy onto HTTP statuses: provider
// failures (error envelope or malformed body) are 502, everything else that
// broke the pre-call path is 500.
func respondTurnError(w http.ResponseWriter, err error) {
	var pe *provider.ProviderError
	switch {
	case errors.As(err, &pe):
		respondError(w, http.StatusBadGateway, "provider_error", pe.Message)
	case errors.Is(err, provider.ErrMalformedResponse):
		respondError(w, http.StatusBadGateway, "malformed_response", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
