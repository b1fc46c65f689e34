package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/relayvox/relayvox/internal/config"
	"github.com/relayvox/relayvox/internal/handler/call"
	"github.com/relayvox/relayvox/internal/handler/relay"
	"github.com/relayvox/relayvox/internal/handler/voice"
	middlewarePkg "github.com/relayvox/relayvox/internal/middleware"
	callService "github.com/relayvox/relayvox/internal/service/call"
	"github.com/relayvox/relayvox/internal/service/dtmf"
	"github.com/relayvox/relayvox/pkg/utils"
)

// NewRouter wires HTTP routes to core services. completer may be nil when no
// completion backend is configured.
func NewRouter(cfg config.RelayConfig, registry *callService.Registry, matcher *dtmf.Matcher, completer relay.Completer, tracker *relay.Tracker) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	relay.New(registry, matcher, completer, tracker, cfg).RegisterRoutes(r)
	voice.New(cfg).RegisterRoutes(r)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		metrics := registry.Metrics()
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":       "ok",
			"activeCalls":  metrics.Active,
			"totalStarted": metrics.TotalStarted,
			"totalEnded":   metrics.TotalEnded,
		})
	})

	r.Route("/api", func(api chi.Router) {
		call.New(registry, tracker).RegisterRoutes(api)
	})

	return r
}
