package api

import (
	"encoding/json"
	"net/http"

	"github.com/shirisha-ilura/UL/internal/api/handlers"
	"github.com/shirisha-ilura/UL/internal/api/middleware"
	"github.com/shirisha-ilura/UL/internal/config"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers, auth *middleware.APIKeyAuth) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Identity(cfg.DefaultUserEmail))
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-Email", "X-API-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-Trace-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(auth.Middleware)

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Builds (the negotiation the UI drives)
		r.Route("/builds", func(r chi.Router) {
			r.Get("/", h.ListBuilds)
			r.Post("/", h.StartBuild)
			r.Route("/{buildID}", func(r chi.Router) {
				r.Get("/", h.GetBuild)
				r.Delete("/", h.DeleteBuild)
				r.Post("/message", h.SendMessage)
				r.Post("/credentials", h.SubmitCredentials)
				r.Post("/approve", h.ApproveBuild)
				r.Post("/files", h.UploadBuildFile)
			})
		})

		// Agents (direct configuration + post-build test chat)
		r.Route("/agents", func(r chi.Router) {
			r.Post("/architect", h.DirectConfiguration)
			r.Route("/{agentID}/chat", func(r chi.Router) {
				r.Post("/", h.ChatWithAgent)
				r.Get("/{sessionID}", h.GetChatSession)
			})
		})
	})

	return r
}

const serviceName = "ul-gateway"

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": serviceName,
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": serviceName,
		})
	}
}
