package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/folio/internal/projectservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *projectservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)
	eh := NewExportsHandler(svc.ExportDir())

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/project", h.GetProject)

	// Chapters CRUD.
	r.Get("/chapters", h.ListChapters)
	r.Post("/chapters", h.CreateChapter)
	r.Get("/chapters/{id}", h.GetChapter)
	r.Put("/chapters/{id}", h.ReplaceChapter)
	r.Patch("/chapters/{id}", h.PatchChapter)
	r.Delete("/chapters/{id}", h.DeleteChapter)
	r.Put("/order", h.Reorder)

	// Snapshots.
	r.Get("/snapshots", h.ListSnapshots)
	r.Post("/snapshots", h.CreateSnapshot)

	// Search.
	r.Get("/search", h.Search)

	// Export.
	r.Get("/export/{format}", h.Export)
	r.Get("/exports/{filename}", eh.ServeFile)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
