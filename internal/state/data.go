package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cast"
	"golang.org/x/sync/errgroup"

	"github.com/starford/dbfolder/internal/apperr"
	"github.com/starford/dbfolder/internal/chain"
	"github.com/starford/dbfolder/internal/diskconfig"
	"github.com/starford/dbfolder/internal/index"
	"github.com/starford/dbfolder/internal/models"
	"github.com/starford/dbfolder/internal/parser"
	"github.com/starford/dbfolder/internal/query"
	"github.com/starford/dbfolder/internal/storage"
)

// Data actions.
const (
	ActionAddRow                 = "add_row"
	ActionUpdateCell             = "update_cell"
	ActionRemoveRow              = "remove_row"
	ActionRenameFile             = "rename_file"
	ActionEditOptionForAllRows   = "edit_option_for_all_rows"
	ActionRemoveOptionForAllRows = "remove_option_for_all_rows"
	ActionRemoveFieldForAllRows  = "remove_field_for_all_rows"
	ActionRenameFieldForAllRows  = "rename_field_for_all_rows"
)

var dataActions = []string{
	ActionAddRow, ActionUpdateCell, ActionRemoveRow, ActionRenameFile,
	ActionEditOptionForAllRows, ActionRemoveOptionForAllRows,
	ActionRemoveFieldForAllRows, ActionRenameFieldForAllRows,
}

// DefaultBulkLimit bounds concurrent row rewrites when Deps leaves it unset.
const DefaultBulkLimit = 8

// DataStore caches the rows of a view and rewrites row notes. Row writes
// are synchronous: each one is a read-modify-write of the note's
// frontmatter.
type DataStore struct {
	cfg       *diskconfig.Config
	store     storage.Provider
	idx       index.NoteIndex
	query     *query.Service
	templates *RowTemplatesStore
	logger    *slog.Logger
	bulkLimit int

	mu   sync.RWMutex
	rows []*models.Row
}

// Load replaces the row cache with the rows selected by the view's source.
// Filters are not applied here.
func (d *DataStore) Load(ctx context.Context) error {
	db := d.cfg.Yaml()
	rows, err := d.query.QueryRows(ctx, d.cfg.Path(), db.Config, models.FilterSettings{})
	if err != nil {
		return fmt.Errorf("state: load rows: %w", err)
	}
	d.mu.Lock()
	d.rows = rows
	d.mu.Unlock()
	return nil
}

// Rows returns a copy of the cached rows.
func (d *DataStore) Rows() []*models.Row {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*models.Row, len(d.rows))
	for i, r := range d.rows {
		out[i] = cloneRow(r)
	}
	return out
}

// Row returns the cached row at p.
func (d *DataStore) Row(p string) (*models.Row, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, r := range d.rows {
		if r.Path == p {
			return cloneRow(r), true
		}
	}
	return nil, false
}

// Contains reports whether p is one of the cached rows.
func (d *DataStore) Contains(p string) bool {
	_, ok := d.Row(p)
	return ok
}

// Refresh rebuilds the cached row at p from the index. A note the index no
// longer knows is dropped.
func (d *DataStore) Refresh(ctx context.Context, p string) error {
	row, err := d.query.Row(ctx, p, d.cfg.Yaml().Config)
	if errors.Is(err, apperr.ErrNotFound) {
		d.drop(p)
		return nil
	}
	if err != nil {
		return fmt.Errorf("state: refresh %s: %w", p, err)
	}
	d.put(row)
	return nil
}

// Drop removes the row at p from the cache.
func (d *DataStore) Drop(p string) {
	d.drop(p)
}

func cloneRow(r *models.Row) *models.Row {
	out := *r
	out.Values = make(map[string]any, len(r.Values))
	for k, v := range r.Values {
		out.Values[k] = v
	}
	return &out
}

func (d *DataStore) put(row *models.Row) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, r := range d.rows {
		if r.Path == row.Path {
			d.rows[i] = row
			return
		}
	}
	d.rows = append(d.rows, row)
	sort.Slice(d.rows, func(i, j int) bool { return d.rows[i].Path < d.rows[j].Path })
}

func (d *DataStore) drop(p string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, r := range d.rows {
		if r.Path == p {
			d.rows = append(d.rows[:i], d.rows[i+1:]...)
			return
		}
	}
}

// persisted reports whether a column's cells are stored in row frontmatter.
func persisted(col *models.Column) bool {
	if col.IsMetadata || col.SkipPersist {
		return false
	}
	return col.Input != models.InputFormula && col.Input != models.InputRollup
}

// destination returns the folder new rows are created in.
func destination(dbPath string, local models.LocalSettings) string {
	switch local.SourceData {
	case models.SourceCurrentFolder, models.SourceCurrentFolderNoSubfolders, "":
		return index.FolderOf(dbPath)
	}
	return strings.Trim(local.SourceDestinationPath, "/")
}

// AddRow creates a row note named filename from the selected row template,
// with an empty field per column and values applied on top.
func (d *DataStore) AddRow(ctx context.Context, filename string, values map[string]any) (string, error) {
	name := strings.TrimSuffix(strings.TrimSpace(filename), ".md")
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", invalid("row name %q", filename)
	}
	db := d.cfg.Yaml()
	p := path.Join(destination(d.cfg.Path(), db.Config), name+".md")
	if _, err := d.store.Stat(p); err == nil {
		return "", fmt.Errorf("state: add row %s: %w", p, apperr.ErrAlreadyExists)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return "", err
	}

	base, err := d.templates.Content()
	if err != nil {
		return "", err
	}
	set := make(map[string]any, len(db.Columns)+len(values))
	for _, col := range db.Columns {
		if persisted(col) {
			set[col.Key] = ""
		}
	}
	for k, v := range values {
		set[k] = v
	}
	content, err := parser.EditFrontmatter(base, parser.FieldEdit{Set: set, QuoteWrap: db.Config.FrontmatterQuoteWrap})
	if err != nil {
		return "", err
	}
	if err := d.store.Write(p, content); err != nil {
		return "", fmt.Errorf("state: add row: %w", err)
	}
	if err := d.reindex(ctx, p, content); err != nil {
		return "", err
	}
	d.logger.Info("row added", "row", p)
	return p, nil
}

func (d *DataStore) reindex(ctx context.Context, p string, content []byte) error {
	if err := index.IndexFile(d.idx, p, content, time.Now()); err != nil {
		return fmt.Errorf("state: index %s: %w", p, err)
	}
	row, err := d.query.Row(ctx, p, d.cfg.Yaml().Config)
	if err != nil {
		return err
	}
	d.put(row)
	return nil
}

func (d *DataStore) rewrite(ctx context.Context, p string, edit parser.FieldEdit) error {
	content, err := d.store.Read(p)
	if err != nil {
		return fmt.Errorf("state: rewrite row: %w", err)
	}
	edit.QuoteWrap = d.cfg.Yaml().Config.FrontmatterQuoteWrap
	out, err := parser.EditFrontmatter(content, edit)
	if err != nil {
		return fmt.Errorf("state: rewrite row %s: %w", p, err)
	}
	if err := d.store.Write(p, out); err != nil {
		return fmt.Errorf("state: rewrite row: %w", err)
	}
	return d.reindex(ctx, p, out)
}

// UpdateCell writes value under key in the frontmatter of row p.
func (d *DataStore) UpdateCell(ctx context.Context, p, key string, value any) error {
	if key == "" || models.MetadataColumn(key) != nil {
		return invalid("cell key %q", key)
	}
	if !d.Contains(p) {
		return fmt.Errorf("state: row %s: %w", p, apperr.ErrNotFound)
	}
	return d.rewrite(ctx, p, parser.FieldEdit{Set: map[string]any{key: value}})
}

// RemoveRow deletes the note of row p.
func (d *DataStore) RemoveRow(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !d.Contains(p) {
		return fmt.Errorf("state: row %s: %w", p, apperr.ErrNotFound)
	}
	if err := d.store.Delete(p); err != nil {
		return fmt.Errorf("state: remove row: %w", err)
	}
	if err := d.idx.DeleteNote(p); err != nil {
		return fmt.Errorf("state: remove row: %w", err)
	}
	d.drop(p)

	if d.cfg.Yaml().Config.RemoveEmptyFolders {
		if err := d.store.RemoveEmptyDirs(index.FolderOf(d.cfg.Path())); err != nil {
			d.logger.Warn("remove empty folders", "error", err)
		}
	}
	d.logger.Info("row removed", "row", p)
	return nil
}

// RenameFile renames the note of row p within its folder and returns the
// new path.
func (d *DataStore) RenameFile(ctx context.Context, p, newName string) (string, error) {
	name := strings.TrimSuffix(strings.TrimSpace(newName), ".md")
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", invalid("file name %q", newName)
	}
	if !d.Contains(p) {
		return "", fmt.Errorf("state: row %s: %w", p, apperr.ErrNotFound)
	}
	np := path.Join(index.FolderOf(p), name+".md")
	if np == p {
		return p, nil
	}
	if err := d.store.Move(p, np); err != nil {
		return "", fmt.Errorf("state: rename row: %w", err)
	}
	if err := d.idx.DeleteNote(p); err != nil {
		return "", fmt.Errorf("state: rename row: %w", err)
	}
	d.drop(p)
	content, err := d.store.Read(np)
	if err != nil {
		return "", fmt.Errorf("state: rename row: %w", err)
	}
	if err := d.reindex(ctx, np, content); err != nil {
		return "", err
	}
	return np, nil
}

// rewriteAll applies the edit chosen by fn to every cached row it selects,
// with bounded concurrency. It returns the number of rewritten rows.
func (d *DataStore) rewriteAll(ctx context.Context, fn func(row *models.Row) (parser.FieldEdit, bool)) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.bulkLimit)
	var n atomic.Int64
	for _, row := range d.Rows() {
		edit, ok := fn(row)
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := d.rewrite(gctx, row.Path, edit); err != nil {
				return err
			}
			n.Add(1)
			return nil
		})
	}
	err := g.Wait()
	return int(n.Load()), err
}

// EditOptionForAllRows replaces option from with to in the cells of key.
// List cells have matching elements replaced.
func (d *DataStore) EditOptionForAllRows(ctx context.Context, key, from, to string) (int, error) {
	if key == "" {
		return 0, invalid("field key is empty")
	}
	return d.rewriteAll(ctx, func(row *models.Row) (parser.FieldEdit, bool) {
		switch v := row.Values[key].(type) {
		case []any:
			out := make([]any, len(v))
			changed := false
			for i, item := range v {
				out[i] = item
				if cast.ToString(item) == from {
					out[i] = to
					changed = true
				}
			}
			return parser.FieldEdit{Set: map[string]any{key: out}}, changed
		case nil:
			return parser.FieldEdit{}, false
		default:
			if cast.ToString(v) != from {
				return parser.FieldEdit{}, false
			}
			return parser.FieldEdit{Set: map[string]any{key: to}}, true
		}
	})
}

// RemoveOptionForAllRows clears option from the cells of key.
func (d *DataStore) RemoveOptionForAllRows(ctx context.Context, key, option string) (int, error) {
	if key == "" {
		return 0, invalid("field key is empty")
	}
	return d.rewriteAll(ctx, func(row *models.Row) (parser.FieldEdit, bool) {
		switch v := row.Values[key].(type) {
		case []any:
			out := make([]any, 0, len(v))
			for _, item := range v {
				if cast.ToString(item) != option {
					out = append(out, item)
				}
			}
			return parser.FieldEdit{Set: map[string]any{key: out}}, len(out) != len(v)
		case nil:
			return parser.FieldEdit{}, false
		default:
			if cast.ToString(v) != option {
				return parser.FieldEdit{}, false
			}
			return parser.FieldEdit{Set: map[string]any{key: ""}}, true
		}
	})
}

// RemoveFieldForAllRows deletes key from every row holding it.
func (d *DataStore) RemoveFieldForAllRows(ctx context.Context, key string) (int, error) {
	if key == "" {
		return 0, invalid("field key is empty")
	}
	return d.rewriteAll(ctx, func(row *models.Row) (parser.FieldEdit, bool) {
		if _, ok := row.Values[key]; !ok {
			return parser.FieldEdit{}, false
		}
		return parser.FieldEdit{Remove: []string{key}}, true
	})
}

// RenameFieldForAllRows renames key from to to in every row holding it.
func (d *DataStore) RenameFieldForAllRows(ctx context.Context, from, to string) (int, error) {
	if from == "" || to == "" {
		return 0, invalid("field key is empty")
	}
	if from == to {
		return 0, nil
	}
	return d.rewriteAll(ctx, func(row *models.Row) (parser.FieldEdit, bool) {
		if _, ok := row.Values[from]; !ok {
			return parser.FieldEdit{}, false
		}
		return parser.FieldEdit{Rename: map[string]string{from: to}}, true
	})
}

type addRowPayload struct {
	Filename string         `json:"filename"`
	Values   map[string]any `json:"values"`
}

type cellPayload struct {
	Path  string `json:"path"`
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type renameFilePayload struct {
	Path    string `json:"path"`
	NewName string `json:"new_name"`
}

type optionPayload struct {
	Key       string `json:"key"`
	Option    string `json:"option"`
	NewOption string `json:"new_option"`
}

type fieldPayload struct {
	Key    string `json:"key"`
	NewKey string `json:"new_key"`
}

func (d *DataStore) chain() *chain.Chain[*Response] {
	return chain.New(
		on(ActionAddRow, func(ctx context.Context, a Action) error {
			p, err := decodePayload[addRowPayload](a)
			if err != nil {
				return err
			}
			_, err = d.AddRow(ctx, p.Filename, p.Values)
			return err
		}),
		on(ActionUpdateCell, func(ctx context.Context, a Action) error {
			p, err := decodePayload[cellPayload](a)
			if err != nil {
				return err
			}
			return d.UpdateCell(ctx, p.Path, p.Key, p.Value)
		}),
		on(ActionRemoveRow, func(ctx context.Context, a Action) error {
			p, err := decodePayload[cellPayload](a)
			if err != nil {
				return err
			}
			return d.RemoveRow(ctx, p.Path)
		}),
		on(ActionRenameFile, func(ctx context.Context, a Action) error {
			p, err := decodePayload[renameFilePayload](a)
			if err != nil {
				return err
			}
			_, err = d.RenameFile(ctx, p.Path, p.NewName)
			return err
		}),
		on(ActionEditOptionForAllRows, func(ctx context.Context, a Action) error {
			p, err := decodePayload[optionPayload](a)
			if err != nil {
				return err
			}
			_, err = d.EditOptionForAllRows(ctx, p.Key, p.Option, p.NewOption)
			return err
		}),
		on(ActionRemoveOptionForAllRows, func(ctx context.Context, a Action) error {
			p, err := decodePayload[optionPayload](a)
			if err != nil {
				return err
			}
			_, err = d.RemoveOptionForAllRows(ctx, p.Key, p.Option)
			return err
		}),
		on(ActionRemoveFieldForAllRows, func(ctx context.Context, a Action) error {
			p, err := decodePayload[fieldPayload](a)
			if err != nil {
				return err
			}
			_, err = d.RemoveFieldForAllRows(ctx, p.Key)
			return err
		}),
		on(ActionRenameFieldForAllRows, func(ctx context.Context, a Action) error {
			p, err := decodePayload[fieldPayload](a)
			if err != nil {
				return err
			}
			_, err = d.RenameFieldForAllRows(ctx, p.Key, p.NewKey)
			return err
		}),
	)
}
