package api

import (
	"bytes"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/starford/dbfolder/internal/media"
	"github.com/starford/dbfolder/internal/state"
)

// UploadMedia handles POST /api/databases/{path}/media (multipart/form-data,
// field "file"). When the optional "row" and "key" fields are set the embed
// is written into that cell.
//
//	@Summary		Upload a media file for a database
//	@Tags			media
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			path	path		string	true	"Database note path (URL-encoded)"
//	@Param			file	formData	file	true	"File to upload"
//	@Param			row		formData	string	false	"Row note path"
//	@Param			key		formData	string	false	"Media column key"
//	@Success		201		{object}	MediaAsset
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/databases/{path}/media [post]
func (h *Handler) UploadMedia(w http.ResponseWriter, r *http.Request) {
	dbPath := databasePath(r)
	if _, err := h.views.View(r.Context(), dbPath); err != nil {
		h.writeError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, media.MaxSize+1<<20)
	if err := r.ParseMultipartForm(media.MaxSize); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(codeBadRequest, "file too large or invalid multipart"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(codeBadRequest, "missing 'file' field in multipart form"))
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(codeBadRequest, "failed to read file"))
		return
	}
	asset, err := media.Save(h.views.Deps().Store, dbPath, header.Filename, data)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	row, key := r.FormValue("row"), r.FormValue("key")
	if row != "" && key != "" {
		a, err := state.NewAction(state.ActionUpdateCell, map[string]any{"path": row, "key": key, "value": asset.Embed})
		if err == nil {
			err = h.views.Dispatch(r.Context(), dbPath, state.DomainData, a)
		}
		if err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, asset)
}

// ServeMedia handles GET /api/media/*. Only files inside an attachments
// folder are served.
func (h *Handler) ServeMedia(w http.ResponseWriter, r *http.Request) {
	p := notePath(r)
	clean := path.Clean("/" + p)
	if clean != "/"+p || !strings.Contains(clean, "/"+media.Folder+"/") {
		writeJSON(w, http.StatusBadRequest, errorBody(codeBadRequest, "invalid media path"))
		return
	}
	data, err := h.views.Deps().Store.Read(p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, path.Base(p), time.Time{}, bytes.NewReader(data))
}
