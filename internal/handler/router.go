package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	archiveHandler "github.com/mjchen/parley/internal/handler/archive"
	conversationHandler "github.com/mjchen/parley/internal/handler/conversation"
	personaHandler "github.com/mjchen/parley/internal/handler/persona"
	personaModel "github.com/mjchen/parley/internal/model/persona"
	archiveService "github.com/mjchen/parley/internal/service/archive"
	conversationService "github.com/mjchen/parley/internal/service/conversation"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(personas personaModel.Store, manager *conversationService.Manager, archive *archiveService.Store) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(api chi.Router) {
		personaHandler.New(personas).RegisterRoutes(api)
		conversationHandler.New(manager).RegisterRoutes(api)
		if archive != nil {
			archiveHandler.New(archive).RegisterRoutes(api)
		}
	})

	return r
}
