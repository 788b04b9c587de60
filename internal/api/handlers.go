package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/dbfolder/internal/apperr"
	"github.com/starford/dbfolder/internal/checksum"
	"github.com/starford/dbfolder/internal/noteservice"
	"github.com/starford/dbfolder/internal/state"
	"github.com/starford/dbfolder/internal/view"
)

const maxBodyBytes = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	views  *view.Manager
	svc    *noteservice.Service
	logger *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(views *view.Manager, svc *noteservice.Service, logger *slog.Logger) *Handler {
	return &Handler{views: views, svc: svc, logger: logger}
}

// unescape decodes a path parameter. Clients encode the slashes of note
// paths (books%2Fbooks.md).
func unescape(raw string) string {
	raw = strings.TrimPrefix(raw, "/")
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func databasePath(r *http.Request) string {
	return unescape(chi.URLParam(r, "path"))
}

// notePath extracts the note path from the URL (everything after /notes/).
func notePath(r *http.Request) string {
	return unescape(chi.URLParam(r, "*"))
}

// writeError maps err to a status code. Unexpected errors are logged and
// reported without detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(codeNotFound, "not found"))
	case errors.Is(err, apperr.ErrNoDatabaseBlock):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(codeNotDatabase, "not a database"))
	case errors.Is(err, apperr.ErrUnknownAction):
		writeJSON(w, http.StatusBadRequest, errorBody(codeUnknownAction, err.Error()))
	case errors.Is(err, apperr.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody(codeInvalidInput, err.Error()))
	case errors.Is(err, apperr.ErrAlreadyExists), errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody(codeConflict, err.Error()))
	default:
		h.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody(codeInternal, "internal error"))
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(codeBadRequest, "invalid JSON body"))
		return false
	}
	return true
}

// ListDatabases handles GET /api/databases.
//
//	@Summary		List databases
//	@Tags			databases
//	@Produce		json
//	@Success		200	{object}	DatabaseListResponse
//	@Security		BearerAuth
//	@Router			/databases [get]
func (h *Handler) ListDatabases(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListDatabases(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DatabaseListResponse{Databases: items})
}

// CreateDatabase handles POST /api/databases.
//
//	@Summary		Create a database note
//	@Tags			databases
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateDatabaseRequest	true	"Database to create"
//	@Success		201		{object}	DatabaseItem
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/databases [post]
func (h *Handler) CreateDatabase(w http.ResponseWriter, r *http.Request) {
	var req CreateDatabaseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	item, err := h.svc.CreateDatabase(r.Context(), req.Folder, req.Name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// GetTable handles GET /api/databases/{path}.
//
//	@Summary		Render a database as a table
//	@Tags			databases
//	@Produce		json
//	@Param			path	path		string	true	"Database note path (URL-encoded)"
//	@Success		200		{object}	Table
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/databases/{path} [get]
func (h *Handler) GetTable(w http.ResponseWriter, r *http.Request) {
	t, err := h.views.Table(r.Context(), databasePath(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Dispatch handles POST /api/databases/{path}/actions/{domain}.
//
//	@Summary		Apply an action to a database
//	@Tags			databases
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string			true	"Database note path (URL-encoded)"
//	@Param			domain	path		string			true	"Action domain"	Enums(columns, data, config, sorting, automation, row_templates)
//	@Param			body	body		ActionRequest	true	"Action"
//	@Success		200		{object}	Table
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/databases/{path}/actions/{domain} [post]
func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(codeBadRequest, "failed to read body"))
		return
	}
	a, err := state.DecodeAction(body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p := databasePath(r)
	if err := h.views.Dispatch(r.Context(), p, chi.URLParam(r, "domain"), a); err != nil {
		h.writeError(w, r, err)
		return
	}
	t, err := h.views.Table(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// formHandlers serves GET and PUT of one form kind.
func (h *Handler) formHandlers(kind string) (get, put http.HandlerFunc) {
	get = func(w http.ResponseWriter, r *http.Request) {
		f, err := h.views.Form(r.Context(), databasePath(r), kind, chi.URLParam(r, "column"))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, f)
	}
	put = func(w http.ResponseWriter, r *http.Request) {
		var req FormEditRequest
		if !decodeBody(w, r, &req) {
			return
		}
		f, err := h.views.ApplyForm(r.Context(), databasePath(r), kind, chi.URLParam(r, "column"), req.ID, req.Value)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, f)
	}
	return get, put
}

// GetGlobalSettings handles GET /api/settings.
//
//	@Summary		Render the service-wide settings form
//	@Tags			settings
//	@Produce		json
//	@Success		200	{object}	Form
//	@Security		BearerAuth
//	@Router			/settings [get]
func (h *Handler) GetGlobalSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.views.GlobalForm(r.Context()))
}

// PutGlobalSettings handles PUT /api/settings.
//
//	@Summary		Edit one control of the service-wide settings form
//	@Tags			settings
//	@Accept			json
//	@Produce		json
//	@Param			body	body		FormEditRequest	true	"Control edit"
//	@Success		200		{object}	Form
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/settings [put]
func (h *Handler) PutGlobalSettings(w http.ResponseWriter, r *http.Request) {
	var req FormEditRequest
	if !decodeBody(w, r, &req) {
		return
	}
	f, err := h.views.ApplyGlobalForm(r.Context(), req.ID, req.Value)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// Status handles GET /api/status.
//
//	@Summary		Persistence status of written notes
//	@Tags			databases
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Security		BearerAuth
//	@Router			/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Notes: h.views.Status(), Open: h.views.Open()})
}

// GetNote handles GET /api/notes/*.
//
//	@Summary		Get a single note by path
//	@Tags			notes
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	p := notePath(r)
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody(codeBadRequest, "path is required"))
		return
	}
	note, err := h.svc.GetNote(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", checksum.ETag([]byte(note.Content)))
	writeJSON(w, http.StatusOK, note)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across notes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody(codeBadRequest, "query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
	})
}
