package server

import (
	"net/http"

	"github.com/atende-labs/atendai/internal/api"
	"github.com/atende-labs/atendai/internal/api/handlers"
	"github.com/atende-labs/atendai/internal/api/middleware"
	"github.com/go-chi/chi/v5"
)

type RouterConfig struct {
	// AuthValidator may be nil, in which case every tenant is allowed
	// without authentication (local development only).
	AuthValidator       middleware.AuthValidator
	MessageHandler      *handlers.MessageHandler
	InvalidationHandler *handlers.InvalidationHandler
	ConversationHandler *handlers.ConversationHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 1 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		if cfg.AuthValidator != nil {
			r.Use(middleware.APIKeyAuth(cfg.AuthValidator))
		} else {
			r.Use(middleware.AllowAllTenants)
		}

		r.Post("/messages", cfg.MessageHandler.Create)

		r.Route("/invalidations", func(r chi.Router) {
			r.Post("/config", cfg.InvalidationHandler.Config)
			r.Post("/collections", cfg.InvalidationHandler.Collection)
		})

		r.Get("/conversations/{id}/history", cfg.ConversationHandler.GetHistory)
	})

	return r
}
