// Package noteservice lists and creates databases and reads single notes.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/starford/dbfolder/internal/apperr"
	"github.com/starford/dbfolder/internal/checksum"
	"github.com/starford/dbfolder/internal/diskconfig"
	"github.com/starford/dbfolder/internal/index"
	"github.com/starford/dbfolder/internal/marshal"
	"github.com/starford/dbfolder/internal/models"
	"github.com/starford/dbfolder/internal/parser"
	"github.com/starford/dbfolder/internal/storage"
)

// DatabaseItem is one database in a listing.
type DatabaseItem struct {
	Path        string    `json:"path"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Columns     int       `json:"columns"`
	Error       string    `json:"error,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	Path        string         `json:"path"`
	Title       string         `json:"title"`
	Content     string         `json:"content"`
	Checksum    string         `json:"checksum"`
	Tags        []string       `json:"tags"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Backlinks   []string       `json:"backlinks"`
	IsDatabase  bool           `json:"is_database"`
}

// Defaults supplies the local settings new databases start with.
type Defaults interface {
	Settings() models.DatabaseSettings
}

// Service coordinates storage and index operations.
type Service struct {
	store    storage.Provider
	db       index.NoteIndex
	defaults Defaults
	logger   *slog.Logger
}

// NewService creates a new note service.
func NewService(store storage.Provider, db index.NoteIndex, defaults Defaults, logger *slog.Logger) *Service {
	return &Service{store: store, db: db, defaults: defaults, logger: logger}
}

// ListDatabases returns every indexed database note. A database whose
// block cannot be read is listed with the error.
func (s *Service) ListDatabases(ctx context.Context) ([]DatabaseItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.db.Databases()
	if err != nil {
		return nil, err
	}
	items := make([]DatabaseItem, 0, len(rows))
	for _, r := range rows {
		item := DatabaseItem{Path: r.Path, Name: index.NameOf(r.Path), UpdatedAt: r.UpdatedAt}
		db, err := s.readDatabase(r.Path)
		if err != nil {
			s.logger.Debug("database unreadable", "path", r.Path, "error", err)
			item.Error = err.Error()
		} else {
			if db.Name != "" {
				item.Name = db.Name
			}
			item.Description = db.Description
			item.Columns = len(db.Columns)
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *Service) readDatabase(p string) (*models.DatabaseYaml, error) {
	content, err := s.store.Read(p)
	if err != nil {
		return nil, err
	}
	text, _, err := parser.ExtractDatabaseBlock(content)
	if err != nil {
		return nil, err
	}
	db, _, err := marshal.Unmarshal([]byte(text))
	return db, err
}

// CreateDatabase writes a new database note named name in folder, with the
// default local settings and one text column.
func (s *Service) CreateDatabase(ctx context.Context, folder, name string) (*DatabaseItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(strings.TrimSuffix(name, ".md"))
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("noteservice: database name %q: %w", name, apperr.ErrInvalidInput)
	}
	folder = strings.Trim(path.Clean("/"+folder), "/")
	p := path.Join(folder, name+".md")
	if _, err := s.store.Read(p); err == nil {
		return nil, fmt.Errorf("noteservice: %s: %w", p, apperr.ErrAlreadyExists)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	db := models.NewDatabaseYaml(name, s.defaults.Settings().LocalSettings)
	content, err := diskconfig.NewDatabaseNote(db)
	if err != nil {
		return nil, err
	}
	if err := s.store.Write(p, content); err != nil {
		return nil, err
	}
	if err := index.IndexFile(s.db, p, content, time.Now()); err != nil {
		return nil, err
	}
	s.logger.Info("database created", "path", p)
	return &DatabaseItem{Path: p, Name: db.Name, Description: db.Description, Columns: len(db.Columns), UpdatedAt: time.Now()}, nil
}

// GetNote reads a note from storage, parses it, and enriches with backlinks.
func (s *Service) GetNote(_ context.Context, p string) (*NoteDetail, error) {
	data, err := s.store.Read(p)
	if err != nil {
		return nil, err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	bl, err := s.db.Backlinks(p)
	if err != nil {
		return nil, err
	}
	return &NoteDetail{
		Path:        p,
		Title:       res.Title,
		Content:     string(data),
		Checksum:    checksum.Sum(data),
		Tags:        nonNilSlice(res.Tags),
		Frontmatter: res.Frontmatter,
		Backlinks:   nonNilSlice(bl),
		IsDatabase:  models.IsDatabase(res.Frontmatter),
	}, nil
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("noteservice: empty query: %w", apperr.ErrInvalidInput)
	}
	return s.db.Search(query, limit)
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
