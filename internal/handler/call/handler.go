package call

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	callservice "github.com/relayvox/relayvox/internal/service/call"
	"github.com/relayvox/relayvox/pkg/utils"
)

// Ender releases the transport side of a call. The relay connection tracker
// implements it.
type Ender interface {
	EndCall(callID string) bool
}

// Handler exposes the operations API over live calls.
type Handler struct {
	registry *callservice.Registry
	ender    Ender
}

// New creates the call operations handler.
func New(registry *callservice.Registry, ender Ender) *Handler {
	return &Handler{registry: registry, ender: ender}
}

// RegisterRoutes mounts the call endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/calls", h.handleListCalls)
	r.Get("/calls/{callSid}", h.handleGetCall)
	r.Delete("/calls/{callSid}", h.handleEndCall)
}

// callListItem is the list view of a session, without the transcript.
type callListItem struct {
	ID           string    `json:"id"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	StartTime    time.Time `json:"startTime"`
	LastActivity time.Time `json:"lastActivity"`
	Messages     int       `json:"messages"`
}

func (h *Handler) handleListCalls(w http.ResponseWriter, r *http.Request) {
	sessions := h.registry.Active()

	items := make([]callListItem, 0, len(sessions))
	for _, sess := range sessions {
		items = append(items, callListItem{
			ID:           sess.ID,
			From:         sess.From,
			To:           sess.To,
			StartTime:    sess.StartTime,
			LastActivity: sess.LastActivity,
			Messages:     len(sess.History),
		})
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"calls": items,
		"count": len(items),
	})
}

func (h *Handler) handleGetCall(w http.ResponseWriter, r *http.Request) {
	callSid := chi.URLParam(r, "callSid")

	sess, ok := h.registry.Get(callSid)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "call not found")
		return
	}

	utils.RespondJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleEndCall(w http.ResponseWriter, r *http.Request) {
	callSid := chi.URLParam(r, "callSid")

	if _, ok := h.registry.Get(callSid); !ok {
		utils.RespondError(w, http.StatusNotFound, "call not found")
		return
	}

	disconnected := h.ender.EndCall(callSid)
	summary, _ := h.registry.End(callSid, "operator-api")

	log.Printf("[call] force ended call=%s disconnected=%t", callSid, disconnected)
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"summary":      summary,
		"disconnected": disconnected,
	})
}
