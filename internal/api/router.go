package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/dbfolder/internal/view"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Databases.
	r.Get("/databases", h.ListDatabases)
	r.Post("/databases", h.CreateDatabase)
	r.Route("/databases/{path}", func(r chi.Router) {
		r.Get("/", h.GetTable)
		r.Post("/actions/{domain}", h.Dispatch)
		r.Post("/media", h.UploadMedia)

		get, put := h.formHandlers(view.FormSettings)
		r.Get("/settings", get)
		r.Put("/settings", put)
		get, put = h.formHandlers(view.FormColumn)
		r.Get("/columns/{column}/settings", get)
		r.Put("/columns/{column}/settings", put)
		get, put = h.formHandlers(view.FormFilters)
		r.Get("/filters/form", get)
		r.Put("/filters/form", put)
	})

	// Service-wide settings and persistence status.
	r.Get("/settings", h.GetGlobalSettings)
	r.Put("/settings", h.PutGlobalSettings)
	r.Get("/status", h.Status)

	// Notes and search.
	r.Get("/notes/*", h.GetNote)
	r.Get("/search", h.Search)

	// Media files.
	r.Get("/media/*", h.ServeMedia)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
