// Package query selects the notes that form the rows of a database and
// resolves the fields available on related notes.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/starford/dbfolder/internal/apperr"
	"github.com/starford/dbfolder/internal/filter"
	"github.com/starford/dbfolder/internal/index"
	"github.com/starford/dbfolder/internal/marshal"
	"github.com/starford/dbfolder/internal/models"
	"github.com/starford/dbfolder/internal/parser"
	"github.com/starford/dbfolder/internal/storage"
)

// Service answers row and field queries from the note index.
type Service struct {
	idx    index.NoteIndex
	store  storage.Provider
	logger *slog.Logger
}

// NewService creates a query service.
func NewService(idx index.NoteIndex, store storage.Provider, logger *slog.Logger) *Service {
	return &Service{idx: idx, store: store, logger: logger}
}

// QueryRows returns the rows selected by the database's source with filters
// applied. Database notes are never rows.
func (s *Service) QueryRows(ctx context.Context, databasePath string, local models.LocalSettings, filters models.FilterSettings) ([]*models.Row, error) {
	notes, err := s.source(ctx, databasePath, local)
	if err != nil {
		return nil, err
	}

	rows := make([]*models.Row, 0, len(notes))
	for _, n := range notes {
		if n.Path == databasePath || models.IsDatabase(n.Frontmatter) {
			continue
		}
		if len(rows) >= models.MaxRows {
			s.logger.Warn("row limit reached", "database", databasePath, "limit", models.MaxRows)
			break
		}
		row, err := s.row(n, local)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return filter.Apply(filters, rows), nil
}

// Row builds the row of a single note.
func (s *Service) Row(ctx context.Context, path string, local models.LocalSettings) (*models.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n, err := s.idx.GetNote(path)
	if err != nil {
		return nil, err
	}
	return s.row(*n, local)
}

func (s *Service) source(ctx context.Context, databasePath string, local models.LocalSettings) ([]index.NoteRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	folder := index.FolderOf(databasePath)
	switch local.SourceData {
	case models.SourceCurrentFolder, "":
		return s.idx.NotesInFolder(folder, true)
	case models.SourceCurrentFolderNoSubfolders:
		return s.idx.NotesInFolder(folder, false)
	case models.SourceTag:
		return s.idx.NotesWithTag(local.SourceFormResult)
	case models.SourceOutgoingLink:
		target, err := s.idx.ResolveLink(local.SourceFormResult)
		if err != nil {
			return nil, fmt.Errorf("query: source note: %w", err)
		}
		paths, err := s.idx.Outlinks(target)
		if err != nil {
			return nil, err
		}
		return s.idx.NotesByPath(paths)
	case models.SourceIncomingLink:
		target, err := s.idx.ResolveLink(local.SourceFormResult)
		if err != nil {
			return nil, fmt.Errorf("query: source note: %w", err)
		}
		paths, err := s.idx.Backlinks(target)
		if err != nil {
			return nil, err
		}
		return s.idx.NotesByPath(paths)
	case models.SourceQuery:
		hits, err := s.idx.Search(local.SourceFormResult, models.MaxRows)
		if err != nil {
			return nil, err
		}
		paths := make([]string, len(hits))
		for i, h := range hits {
			paths[i] = h.Path
		}
		return s.idx.NotesByPath(paths)
	}
	return nil, fmt.Errorf("query: source %q: %w", local.SourceData, apperr.ErrInvalidInput)
}

func (s *Service) row(n index.NoteRow, local models.LocalSettings) (*models.Row, error) {
	values := make(map[string]any, len(n.Frontmatter)+3)
	for k, v := range n.Frontmatter {
		values[k] = v
	}
	values[models.MetadataFile] = FileLink(n.Path)
	values[models.MetadataCreated] = n.CreatedAt
	values[models.MetadataModified] = n.UpdatedAt

	row := &models.Row{
		Path:      n.Path,
		Values:    values,
		Tasks:     n.Tasks,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
	values[models.MetadataTasks] = n.Tasks

	if local.ShowMetadataInlinks {
		in, err := s.idx.Backlinks(n.Path)
		if err != nil {
			return nil, err
		}
		row.Inlinks = in
		values[models.MetadataInlinks] = in
	}
	if local.ShowMetadataOutlinks {
		out, err := s.idx.Outlinks(n.Path)
		if err != nil {
			return nil, err
		}
		row.Outlinks = out
		values[models.MetadataOutlinks] = out
	}
	return row, nil
}

// FileLink renders the wikilink shown in the file column.
func FileLink(path string) string {
	return "[[" + strings.TrimSuffix(path, ".md") + "|" + index.NameOf(path) + "]]"
}

// ResolveFields returns the fields a rollup over relatedNotePath can
// aggregate. A related database contributes its column keys; any other note
// contributes the frontmatter keys of the notes in its folder, minus the
// relation columns of the asking database.
func (s *Service) ResolveFields(ctx context.Context, relatedNotePath string, local models.LocalSettings, columns models.Columns) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if relatedNotePath == "" {
		return nil, fmt.Errorf("query: related note path: %w", apperr.ErrInvalidInput)
	}

	content, err := s.store.Read(relatedNotePath)
	if err != nil {
		return nil, err
	}
	if text, _, err := parser.ExtractDatabaseBlock(content); err == nil {
		db, _, err := marshal.Unmarshal([]byte(text))
		if err != nil {
			return nil, err
		}
		var out []string
		for _, col := range db.Columns.Ordered() {
			if col.IsMetadata || col.SkipPersist {
				continue
			}
			out = append(out, col.Key)
		}
		return out, nil
	} else if !errors.Is(err, apperr.ErrNoDatabaseBlock) {
		return nil, err
	}

	notes, err := s.idx.NotesInFolder(index.FolderOf(relatedNotePath), local.SourceData != models.SourceCurrentFolderNoSubfolders)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for _, n := range notes {
		for k := range n.Frontmatter {
			if k == models.FrontmatterKey {
				continue
			}
			seen[k] = struct{}{}
		}
	}
	for _, col := range columns {
		if col.Input == models.InputRelation {
			delete(seen, col.Key)
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}
