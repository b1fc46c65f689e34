package relay

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/relayvox/relayvox/internal/config"
	"github.com/relayvox/relayvox/internal/model/call"
	callservice "github.com/relayvox/relayvox/internal/service/call"
	"github.com/relayvox/relayvox/internal/service/dtmf"
)

// Completer is the slice of the completion service the relay needs. Nil means
// the backend is not configured; prompts then get a spoken notice.
type Completer interface {
	Streaming() bool
	Respond(ctx context.Context, callID string, history []call.ConversationEntry, userText string) (string, error)
	RespondStream(ctx context.Context, callID string, history []call.ConversationEntry, userText string, emit func(chunk string) error) (string, error)
}

// Handler terminates ConversationRelay websocket connections and routes
// their events through the registry, the DTMF matcher and the completion
// pipeline.
type Handler struct {
	registry *callservice.Registry
	matcher  *dtmf.Matcher
	ai       Completer
	tracker  *Tracker
	cfg      config.RelayConfig
	upgrader websocket.Upgrader
}

// New wires the relay handler. ai may be nil when no backend is configured.
func New(registry *callservice.Registry, matcher *dtmf.Matcher, ai Completer, tracker *Tracker, cfg config.RelayConfig) *Handler {
	return &Handler{
		registry: registry,
		matcher:  matcher,
		ai:       ai,
		tracker:  tracker,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the websocket endpoint. The call binds itself via
// the setup event, so the path carries no parameters.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}
