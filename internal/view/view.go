// Package view opens databases and renders them as tables.
package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/starford/dbfolder/internal/apperr"
	"github.com/starford/dbfolder/internal/diskconfig"
	"github.com/starford/dbfolder/internal/filter"
	"github.com/starford/dbfolder/internal/index"
	"github.com/starford/dbfolder/internal/models"
	"github.com/starford/dbfolder/internal/persist"
	"github.com/starford/dbfolder/internal/query"
	"github.com/starford/dbfolder/internal/rollup"
	"github.com/starford/dbfolder/internal/settings"
	"github.com/starford/dbfolder/internal/state"
	"github.com/starford/dbfolder/internal/storage"
)

// Deps are the collaborators shared by every open view.
type Deps struct {
	Store   storage.Provider
	Index   index.NoteIndex
	Query   *query.Service
	Global  *settings.GlobalStore
	Tracker *persist.Tracker
	Logger  *slog.Logger

	// BulkLimit bounds concurrent row rewrites; zero means the state default.
	BulkLimit int
}

// View is one open database: its disk configuration, its stores and the
// query service its rows come from.
type View struct {
	deps   Deps
	logger *slog.Logger
	config *diskconfig.Config
	state  *state.TableState
}

// Open loads the database note at p and its rows.
func Open(ctx context.Context, d Deps, p string) (*View, error) {
	cfg, err := diskconfig.Load(ctx, d.Store, d.Tracker, d.Logger, p)
	if err != nil {
		return nil, fmt.Errorf("view: open: %w", err)
	}
	ts := state.New(state.Deps{
		Config: cfg,
		Store:  d.Store,
		Index:  d.Index,
		Query:  d.Query,
		Global: d.Global,
		Logger: d.Logger,

		BulkLimit: d.BulkLimit,
	})
	if err := ts.Load(ctx); err != nil {
		return nil, fmt.Errorf("view: open %s: %w", p, err)
	}
	return &View{deps: d, logger: d.Logger.With("database", p), config: cfg, state: ts}, nil
}

// Path returns the note path of the database.
func (v *View) Path() string {
	return v.config.Path()
}

// State returns the stores of the view.
func (v *View) State() *state.TableState {
	return v.state
}

// Status returns the persistence state of the configuration block.
func (v *View) Status() persist.State {
	return v.config.Status()
}

// Reload rereads the configuration block and the rows.
func (v *View) Reload(ctx context.Context) error {
	if err := v.config.Reload(ctx); err != nil {
		return err
	}
	return v.state.Load(ctx)
}

// Dispatch applies a to the view. Rows are reloaded when the action changes
// which notes the view selects.
func (v *View) Dispatch(ctx context.Context, domain string, a state.Action) error {
	before := v.state.Settings.Local()
	if err := v.state.Dispatch(ctx, domain, a); err != nil {
		return err
	}
	return v.afterChange(ctx, before)
}

// afterChange reloads the rows when the row source or the link metadata
// differ from before.
func (v *View) afterChange(ctx context.Context, before models.LocalSettings) error {
	after := v.state.Settings.Local()
	if before.SourceData == after.SourceData &&
		before.SourceFormResult == after.SourceFormResult &&
		before.ShowMetadataInlinks == after.ShowMetadataInlinks &&
		before.ShowMetadataOutlinks == after.ShowMetadataOutlinks {
		return nil
	}
	v.logger.Debug("row source changed, reloading rows", "source", after.SourceData)
	return v.state.Data.Load(ctx)
}

// Table is the rendered form of a view.
type Table struct {
	Path        string                       `json:"path"`
	Name        string                       `json:"name"`
	Description string                       `json:"description"`
	Columns     []*models.Column             `json:"columns"`
	Rows        []*models.Row                `json:"rows"`
	Filters     models.FilterSettings        `json:"filters"`
	Sorting     []state.SortCriterion        `json:"sorting"`
	Config      models.LocalSettings         `json:"config"`
	Status      persist.State                `json:"status"`
	Warnings    map[string][]string          `json:"warnings,omitempty"`
	CellErrors  map[string]map[string]string `json:"cell_errors,omitempty"`
}

func (t *Table) cellError(row, key string, err error) {
	if t.CellErrors == nil {
		t.CellErrors = make(map[string]map[string]string)
	}
	if t.CellErrors[row] == nil {
		t.CellErrors[row] = make(map[string]string)
	}
	t.CellErrors[row][key] = err.Error()
}

// Table renders the view: ordered visible columns, and the rows with
// rollups and formulas computed, then filtered and sorted.
func (v *View) Table(ctx context.Context) (*Table, error) {
	db := v.config.Yaml()
	t := &Table{
		Path:        v.Path(),
		Name:        db.Name,
		Description: db.Description,
		Columns:     Columns(db),
		Filters:     db.Filters,
		Sorting:     state.CriteriaOf(db.Columns),
		Config:      db.Config,
		Status:      v.Status(),
		Warnings:    v.config.Warnings(),
	}
	if len(t.Warnings) == 0 {
		t.Warnings = nil
	}

	rows := v.state.Data.Rows()
	if err := v.rollups(ctx, t, db, rows); err != nil {
		return nil, err
	}
	if db.Config.EnableJSFormulas {
		v.formulas(t, db, rows)
	}
	hideCompletedTasks(db, rows)

	rows = filter.Apply(db.Filters, rows)
	t.Rows = state.SortRows(rows, db.Columns, t.Sorting)
	return t, nil
}

// metadataFlags lists the optional metadata columns and whether each one
// is shown.
func metadataFlags(local models.LocalSettings) []struct {
	id   string
	show bool
} {
	return []struct {
		id   string
		show bool
	}{
		{models.MetadataCreated, local.ShowMetadataCreated},
		{models.MetadataModified, local.ShowMetadataModified},
		{models.MetadataTasks, local.ShowMetadataTasks},
		{models.MetadataOutlinks, local.ShowMetadataOutlinks},
		{models.MetadataInlinks, local.ShowMetadataInlinks},
	}
}

// Columns returns the columns a table shows, in order. The file column is
// always present; the other metadata columns follow the show flags.
func Columns(db *models.DatabaseYaml) []*models.Column {
	cols := db.Columns.Clone()
	if _, ok := cols[models.MetadataFile]; !ok {
		file := models.MetadataColumn(models.MetadataFile)
		file.Position = -1
		for _, col := range cols {
			if col.Position <= file.Position {
				file.Position = col.Position - 1
			}
		}
		cols[file.ID] = file
	}
	next := cols.NextPosition()
	for _, m := range metadataFlags(db.Config) {
		if !m.show {
			delete(cols, m.id)
			continue
		}
		if _, ok := cols[m.id]; ok {
			continue
		}
		col := models.MetadataColumn(m.id)
		col.Position = next
		next++
		cols[col.ID] = col
	}

	out := make([]*models.Column, 0, len(cols))
	for _, col := range cols.Ordered() {
		if col.IsHidden || col.Input == models.InputNewColumn || col.ID == models.MetadataRowContextMenu {
			continue
		}
		out = append(out, col)
	}
	return out
}

// rollups fills every rollup cell from the rows its relation links to.
// Related rows are read once per render.
func (v *View) rollups(ctx context.Context, t *Table, db *models.DatabaseYaml, rows []*models.Row) error {
	related := make(map[string]*models.Row)
	lookup := func(link string) (*models.Row, error) {
		p, err := v.deps.Index.ResolveLink(link)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if r, ok := related[p]; ok {
			return r, nil
		}
		r, err := v.deps.Query.Row(ctx, p, db.Config)
		if err != nil {
			return nil, err
		}
		related[p] = r
		return r, nil
	}

	for _, col := range db.Columns.Ordered() {
		if col.Input != models.InputRollup {
			continue
		}
		relation, ok := db.Columns[col.Config.AsociatedRelationID]
		if !ok || relation.Input != models.InputRelation {
			for _, row := range rows {
				row.Values[col.Key] = nil
				t.cellError(row.Path, col.Key, fmt.Errorf("relation column %q not found", col.Config.AsociatedRelationID))
			}
			continue
		}
		for _, row := range rows {
			var linked []*models.Row
			for _, link := range rollup.Links(row.Values[relation.Key]) {
				r, err := lookup(link)
				if err != nil {
					return fmt.Errorf("view: rollup %s: %w", col.Key, err)
				}
				if r != nil {
					linked = append(linked, r)
				}
			}
			value, err := rollup.Compute(col.Config.RollupAction, col.Config.RollupKey, linked)
			if err != nil {
				t.cellError(row.Path, col.Key, err)
			}
			row.Values[col.Key] = value
		}
	}
	return nil
}

// formulas evaluates every formula column. A failing formula leaves an
// empty cell and a cell error.
func (v *View) formulas(t *Table, db *models.DatabaseYaml, rows []*models.Row) {
	engine := v.state.Automation.Engine()
	for _, col := range db.Columns.Ordered() {
		if col.Input != models.InputFormula || strings.TrimSpace(col.Config.FormulaQuery) == "" {
			continue
		}
		for _, row := range rows {
			out, err := engine.Evaluate(col.Config.FormulaQuery, row)
			if err != nil {
				v.logger.Debug("formula failed", "column", col.Key, "row", row.Path, "error", err)
				t.cellError(row.Path, col.Key, err)
				out = ""
			}
			row.Values[col.Key] = out
		}
	}
}

// hideCompletedTasks drops completed tasks from the task cell when the task
// column asks for it.
func hideCompletedTasks(db *models.DatabaseYaml, rows []*models.Row) {
	col := models.MetadataColumn(models.MetadataTasks)
	if stored, ok := db.Columns[models.MetadataTasks]; ok {
		col = stored
	}
	if !col.Config.TaskHideCompleted {
		return
	}
	for _, row := range rows {
		open := make([]models.Task, 0, len(row.Tasks))
		for _, task := range row.Tasks {
			if !task.Completed {
				open = append(open, task)
			}
		}
		row.Values[models.MetadataTasks] = open
	}
}

// inSource reports whether note p can be a row of a folder-sourced
// database at dbPath.
func inSource(p, dbPath string, local models.LocalSettings) bool {
	folder := index.FolderOf(dbPath)
	dir := index.FolderOf(p)
	if local.SourceData == models.SourceCurrentFolderNoSubfolders {
		return dir == folder
	}
	return folder == "" || dir == folder || strings.HasPrefix(dir, folder+"/")
}

// inFolder reports whether p sits directly in folder.
func inFolder(p, folder string) bool {
	return index.FolderOf(p) == strings.Trim(path.Clean("/"+folder), "/")
}
