package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/pfdl/internal/checkservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *checkservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Latest check.
	r.Get("/report", h.Report)
	r.Get("/failures", h.Failures)
	r.Get("/dataset", h.Dataset)
	r.Post("/check", h.Check)

	// Artifact index.
	r.Get("/artifacts", h.ListArtifacts)
	r.Get("/artifacts/{name}", h.GetArtifact)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
