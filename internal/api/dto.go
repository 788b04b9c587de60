package api

import (
	"github.com/starford/dbfolder/internal/media"
	"github.com/starford/dbfolder/internal/noteservice"
	"github.com/starford/dbfolder/internal/persist"
	"github.com/starford/dbfolder/internal/view"
)

// CreateDatabaseRequest is the request body for creating a database.
type CreateDatabaseRequest struct {
	Folder string `json:"folder" example:"books"`
	Name   string `json:"name" example:"Reading list" validate:"required"`
}

// ActionRequest is the request body of a dispatched action.
type ActionRequest struct {
	Type    string         `json:"type" example:"add_column" validate:"required"`
	Payload map[string]any `json:"payload,omitempty"`
}

// FormEditRequest sets one control of a settings form.
type FormEditRequest struct {
	ID    string `json:"id" example:"pagination_size" validate:"required"`
	Value any    `json:"value"`
}

// DatabaseItem is one database in a listing (aliased from the domain layer).
type DatabaseItem = noteservice.DatabaseItem

// DatabaseListResponse wraps database listings.
type DatabaseListResponse struct {
	Databases []DatabaseItem `json:"databases" validate:"required"`
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// Table is a rendered database (aliased from the domain layer).
type Table = view.Table

// Form is a rendered settings form (aliased from the domain layer).
type Form = view.Form

// MediaAsset is returned after a successful media upload.
type MediaAsset = media.Asset

// StatusResponse reports persistence state and open views.
type StatusResponse struct {
	Notes []persist.State `json:"notes" validate:"required"`
	Open  []string        `json:"open" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	Path    string `json:"path" example:"notes/hello.md" validate:"required"`
	Title   string `json:"title" example:"Hello" validate:"required"`
	Snippet string `json:"snippet" example:"...matched text..." validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}
