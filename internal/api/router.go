package api

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iconidentify/mediagrabba/internal/api/handler"
	mw "github.com/iconidentify/mediagrabba/internal/api/middleware"
)

// Handlers groups the HTTP handlers mounted by NewRouter.
type Handlers struct {
	Health  *handler.HealthHandler
	Scanner *handler.ScannerHandler
	Resolve *handler.ResolveHandler
	Storage *handler.StorageHandler
}

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(h Handlers, apiKey string, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath) // Normalize paths (e.g., //ready -> /ready)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger(logger))
	r.Use(mw.Recovery(logger))
	r.Use(middleware.Timeout(5 * time.Minute))

	// Health endpoints (no auth)
	r.Get("/health", h.Health.Live)
	r.Get("/ready", h.Health.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(apiKey))

		r.Get("/stats", h.Health.Stats)
		r.Get("/scanner/stats", h.Scanner.Stats)
		r.Post("/posts/{postID}/process", h.Scanner.Process)
		r.Get("/resolve", h.Resolve.Resolve)
		r.Get("/storage/cleanup", h.Storage.Status)
		r.Post("/storage/cleanup", h.Storage.Cleanup)
	})

	return r
}
