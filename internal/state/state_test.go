package state

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/dbfolder/internal/apperr"
	"github.com/starford/dbfolder/internal/diskconfig"
	"github.com/starford/dbfolder/internal/index"
	"github.com/starford/dbfolder/internal/marshal"
	"github.com/starford/dbfolder/internal/models"
	"github.com/starford/dbfolder/internal/parser"
	"github.com/starford/dbfolder/internal/persist"
	"github.com/starford/dbfolder/internal/query"
	"github.com/starford/dbfolder/internal/storage"
	"github.com/starford/dbfolder/internal/testutil"
)

const dbPath = "books/books.md"

func databaseNote(columns, config string) string {
	return "---\ndatabase-plugin: basic\n---\n```yaml:dbfolder\nname: Books\ndescription: test\n" +
		"columns:" + columns + "\nconfig:\n" + config +
		"filters:\n  enabled: false\n  conditions: []\n```\n"
}

const statusColumn = `
  status:
    input: select
    key: status
    accessorKey: status
    label: Status
    position: 0
    options:
      - label: Todo
        color: red
      - label: Done
        color: green`

type fixture struct {
	ts    *TableState
	store storage.Provider
	idx   index.NoteIndex
}

func setup(t *testing.T, files map[string]string) *fixture {
	t.Helper()
	store, db := testutil.IndexedVault(t, files)
	logger := testutil.Logger()
	tracker := persist.NewTracker(logger)
	cfg, err := diskconfig.Load(context.Background(), store, tracker, logger, dbPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ts := New(Deps{
		Config: cfg,
		Store:  store,
		Index:  db,
		Query:  query.NewService(db, store, logger),
		Logger: logger,
	})
	if err := ts.Load(context.Background()); err != nil {
		t.Fatalf("state Load: %v", err)
	}
	return &fixture{ts: ts, store: store, idx: db}
}

func (f *fixture) dispatch(t *testing.T, domain, actionType string, payload any) error {
	t.Helper()
	a, err := NewAction(actionType, payload)
	if err != nil {
		t.Fatal(err)
	}
	return f.ts.Dispatch(context.Background(), domain, a)
}

func (f *fixture) mustDispatch(t *testing.T, domain, actionType string, payload any) {
	t.Helper()
	if err := f.dispatch(t, domain, actionType, payload); err != nil {
		t.Fatalf("%s/%s: %v", domain, actionType, err)
	}
}

func (f *fixture) frontmatter(t *testing.T, p string) map[string]any {
	t.Helper()
	content, err := f.store.Read(p)
	if err != nil {
		t.Fatal(err)
	}
	res, err := parser.Parse(content)
	if err != nil {
		t.Fatal(err)
	}
	return res.Frontmatter
}

func (f *fixture) persisted(t *testing.T) *models.DatabaseYaml {
	t.Helper()
	if err := f.ts.Config().Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	content, err := f.store.Read(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	text, _, err := parser.ExtractDatabaseBlock(content)
	if err != nil {
		t.Fatal(err)
	}
	db, _, err := marshal.Unmarshal([]byte(text))
	if err != nil {
		t.Fatal(err)
	}
	return db
}

func TestInsertAndDeleteColumn(t *testing.T) {
	f := setup(t, map[string]string{
		dbPath:       databaseNote(" {}", "  remove_field_when_delete_column: true\n"),
		"books/a.md": "---\nc1: hello\nother: keep\n---\nbody\n",
		"books/b.md": "---\nother: y\n---\n",
	})
	original, _ := f.store.Read("books/b.md")

	f.mustDispatch(t, DomainColumns, ActionAddColumn, map[string]any{"id": "c1", "input": "text", "label": "Name"})
	cols := f.ts.Columns.All()
	if len(cols) != 1 || cols["c1"] == nil || cols["c1"].Label != "Name" {
		t.Fatalf("columns after insert = %+v", cols)
	}
	if got := f.persisted(t).Columns; len(got) != 1 || got["c1"].Input != models.InputText {
		t.Errorf("persisted columns = %+v", got)
	}

	f.mustDispatch(t, DomainColumns, ActionRemoveColumn, map[string]any{"id": "c1"})
	if n := len(f.ts.Columns.All()); n != 0 {
		t.Fatalf("columns after delete = %d", n)
	}
	if got := f.persisted(t).Columns; len(got) != 0 {
		t.Errorf("persisted columns after delete = %+v", got)
	}
	fm := f.frontmatter(t, "books/a.md")
	if _, ok := fm["c1"]; ok {
		t.Errorf("c1 still present in row: %v", fm)
	}
	if fm["other"] != "keep" {
		t.Errorf("unrelated field lost: %v", fm)
	}
	if now, _ := f.store.Read("books/b.md"); string(now) != string(original) {
		t.Errorf("row without the field was rewritten:\n%s", now)
	}
}

func TestDeleteColumn_KeepsFieldsByDefault(t *testing.T) {
	f := setup(t, map[string]string{
		dbPath:       databaseNote(" {}", ""),
		"books/a.md": "---\nc1: hello\n---\n",
	})
	f.mustDispatch(t, DomainColumns, ActionAddColumn, map[string]any{"id": "c1", "label": "Name"})
	f.mustDispatch(t, DomainColumns, ActionRemoveColumn, map[string]any{"id": "c1"})
	if fm := f.frontmatter(t, "books/a.md"); fm["c1"] != "hello" {
		t.Errorf("field removed without remove_field_when_delete_column: %v", fm)
	}
}

func TestEditOptionForAllRows(t *testing.T) {
	f := setup(t, map[string]string{
		dbPath:       databaseNote(statusColumn, ""),
		"books/a.md": "---\nstatus: Todo\n---\n",
		"books/b.md": "---\nstatus: Done\n---\n",
		"books/c.md": "---\nstatus: [Todo, Later]\n---\n",
	})
	untouched, _ := f.store.Read("books/b.md")

	f.mustDispatch(t, DomainData, ActionEditOptionForAllRows, map[string]any{"key": "status", "option": "Todo", "new_option": "Doing"})

	if got := f.frontmatter(t, "books/a.md")["status"]; got != "Doing" {
		t.Errorf("a status = %v, want Doing", got)
	}
	if diff := cmp.Diff([]any{"Doing", "Later"}, f.frontmatter(t, "books/c.md")["status"]); diff != "" {
		t.Errorf("c status mismatch (-want +got):\n%s", diff)
	}
	if now, _ := f.store.Read("books/b.md"); string(now) != string(untouched) {
		t.Errorf("row with another value was rewritten:\n%s", now)
	}
	row, ok := f.ts.Data.Row("books/a.md")
	if !ok || row.Values["status"] != "Doing" {
		t.Errorf("cached row = %+v", row)
	}
}

func TestEditOption_RenamesColumnAndRows(t *testing.T) {
	f := setup(t, map[string]string{
		dbPath:       databaseNote(statusColumn, ""),
		"books/a.md": "---\nstatus: Todo\n---\n",
	})
	f.mustDispatch(t, DomainColumns, ActionEditOption, map[string]any{"id": "status", "option": "Todo", "new_option": "Doing"})
	col := f.ts.Columns.All()["status"]
	if col.FindOption("Doing") != 0 || col.FindOption("Todo") != -1 {
		t.Errorf("options = %+v", col.Options)
	}
	if got := f.frontmatter(t, "books/a.md")["status"]; got != "Doing" {
		t.Errorf("status = %v", got)
	}

	err := f.dispatch(t, DomainColumns, ActionEditOption, map[string]any{"id": "status", "option": "Doing", "new_option": "Done"})
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("duplicate rename err = %v, want ErrInvalidInput", err)
	}

	f.mustDispatch(t, DomainColumns, ActionRemoveOption, map[string]any{"id": "status", "option": "Doing"})
	if got := f.frontmatter(t, "books/a.md")["status"]; got != "" {
		t.Errorf("status after removal = %v", got)
	}
}

func TestRemoveAndRenameFieldForAllRows(t *testing.T) {
	f := setup(t, map[string]string{
		dbPath:       databaseNote(" {}", ""),
		"books/a.md": "---\nold: 1\nkeep: 2\n---\n",
		"books/b.md": "---\nold: 3\n---\n",
	})
	f.mustDispatch(t, DomainData, ActionRenameFieldForAllRows, map[string]any{"key": "old", "new_key": "new"})
	for _, p := range []string{"books/a.md", "books/b.md"} {
		fm := f.frontmatter(t, p)
		if _, ok := fm["old"]; ok {
			t.Errorf("%s still has old: %v", p, fm)
		}
		if _, ok := fm["new"]; !ok {
			t.Errorf("%s missing new: %v", p, fm)
		}
	}
	f.mustDispatch(t, DomainData, ActionRemoveFieldForAllRows, map[string]any{"key": "new"})
	if fm := f.frontmatter(t, "books/a.md"); fm["keep"] != 2 || fm["new"] != nil {
		t.Errorf("a after removal = %v", fm)
	}
}

func TestRowLifecycle(t *testing.T) {
	f := setup(t, map[string]string{
		dbPath:              databaseNote(statusColumn, "  row_templates_folder: templates\n"),
		"templates/book.md": "---\nkind: book\n---\n## Notes\n",
		"books/existing.md": "---\nstatus: Done\n---\n",
	})
	ctx := context.Background()

	f.mustDispatch(t, DomainRowTemplates, ActionSelectTemplate, map[string]any{"path": "templates/book.md"})
	f.mustDispatch(t, DomainData, ActionAddRow, map[string]any{"filename": "Dune", "values": map[string]any{"status": "Todo"}})

	content, err := f.store.Read("books/Dune.md")
	if err != nil {
		t.Fatalf("new row not written: %v", err)
	}
	if !strings.Contains(string(content), "## Notes") {
		t.Errorf("template body missing:\n%s", content)
	}
	fm := f.frontmatter(t, "books/Dune.md")
	if fm["kind"] != "book" || fm["status"] != "Todo" {
		t.Errorf("new row frontmatter = %v", fm)
	}
	if err := f.dispatch(t, DomainData, ActionAddRow, map[string]any{"filename": "Dune"}); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate add err = %v, want ErrAlreadyExists", err)
	}

	f.mustDispatch(t, DomainData, ActionUpdateCell, map[string]any{"path": "books/Dune.md", "key": "status", "value": "Done"})
	if got := f.frontmatter(t, "books/Dune.md")["status"]; got != "Done" {
		t.Errorf("status = %v", got)
	}
	if err := f.dispatch(t, DomainData, ActionUpdateCell, map[string]any{"path": "books/Dune.md", "key": models.MetadataFile, "value": "x"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("metadata cell err = %v, want ErrInvalidInput", err)
	}

	f.mustDispatch(t, DomainData, ActionRenameFile, map[string]any{"path": "books/Dune.md", "new_name": "Dune Messiah"})
	if f.ts.Data.Contains("books/Dune.md") || !f.ts.Data.Contains("books/Dune Messiah.md") {
		t.Errorf("rows after rename = %v", rowPaths(f.ts.Data.Rows()))
	}

	f.mustDispatch(t, DomainData, ActionRemoveRow, map[string]any{"path": "books/Dune Messiah.md"})
	if _, err := f.store.Read("books/Dune Messiah.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("removed row still on disk: %v", err)
	}
	if diff := cmp.Diff([]string{"books/existing.md"}, rowPaths(f.ts.Data.Rows())); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	if err := f.ts.Data.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"books/existing.md"}, rowPaths(f.ts.Data.Rows())); diff != "" {
		t.Errorf("reloaded rows mismatch (-want +got):\n%s", diff)
	}
}

func TestRefreshRow(t *testing.T) {
	f := setup(t, map[string]string{
		dbPath:       databaseNote(statusColumn, ""),
		"books/a.md": "---\nstatus: Todo\n---\n",
	})
	ctx := context.Background()

	content := []byte("---\nstatus: Done\n---\n")
	if err := f.store.Write("books/a.md", content); err != nil {
		t.Fatal(err)
	}
	if err := index.IndexFile(f.idx, "books/a.md", content, time.Time{}); err != nil {
		t.Fatal(err)
	}
	if err := f.ts.Data.Refresh(ctx, "books/a.md"); err != nil {
		t.Fatal(err)
	}
	row, ok := f.ts.Data.Row("books/a.md")
	if !ok || row.Values["status"] != "Done" {
		t.Fatalf("refreshed row = %+v", row)
	}

	if err := f.idx.DeleteNote("books/a.md"); err != nil {
		t.Fatal(err)
	}
	if err := f.ts.Data.Refresh(ctx, "books/a.md"); err != nil {
		t.Fatal(err)
	}
	if f.ts.Data.Contains("books/a.md") {
		t.Error("row of a deleted note still cached")
	}
}

func rowPaths(rows []*models.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Path
	}
	return out
}

func TestColumnValidation(t *testing.T) {
	f := setup(t, map[string]string{dbPath: databaseNote(statusColumn, "")})

	cases := []struct {
		name       string
		actionType string
		payload    map[string]any
		want       error
	}{
		{"duplicate label", ActionAddColumn, map[string]any{"label": "status"}, apperr.ErrInvalidInput},
		{"bad input", ActionAddColumn, map[string]any{"label": "X", "input": "hologram"}, apperr.ErrInvalidInput},
		{"reserved id", ActionAddColumn, map[string]any{"id": models.MetadataFile, "label": "X"}, apperr.ErrInvalidInput},
		{"empty option", ActionAddOption, map[string]any{"id": "status", "option": " "}, apperr.ErrInvalidInput},
		{"duplicate option", ActionAddOption, map[string]any{"id": "status", "option": "Todo"}, apperr.ErrInvalidInput},
		{"empty label", ActionAlterLabel, map[string]any{"id": "status", "label": ""}, apperr.ErrInvalidInput},
		{"missing column", ActionAlterLabel, map[string]any{"id": "nope", "label": "X"}, apperr.ErrNotFound},
		{"bad width", ActionAlterSize, map[string]any{"id": "status", "width": 0}, apperr.ErrInvalidInput},
		{"bad rollup", ActionAlterColumnConfig, map[string]any{"id": "status", "config": map[string]any{"rollup_action": "Median"}}, apperr.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := f.dispatch(t, DomainColumns, tc.actionType, tc.payload); !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
	if f.ts.Config().Status().Status == persist.StatusPending {
		t.Error("rejected actions scheduled a write")
	}
	if diff := cmp.Diff([]string{"status"}, keys(f.ts.Columns.All())); diff != "" {
		t.Errorf("columns changed (-want +got):\n%s", diff)
	}
}

func keys(cols models.Columns) []string {
	var out []string
	for _, c := range cols.Ordered() {
		out = append(out, c.ID)
	}
	return out
}

func TestColumnAlterations(t *testing.T) {
	f := setup(t, map[string]string{
		dbPath:       databaseNote(statusColumn, ""),
		"books/a.md": "---\nstatus: Todo\nauthor: Herbert\n---\n",
		"books/b.md": "---\nauthor: [Austen, Bronte]\n---\n",
	})
	f.mustDispatch(t, DomainColumns, ActionAddColumn, map[string]any{"label": "Author"})
	f.mustDispatch(t, DomainColumns, ActionAlterType, map[string]any{"id": "author", "input": "tags"})
	col := f.ts.Columns.All()["author"]
	var labels []string
	for _, o := range col.Options {
		labels = append(labels, o.Label)
	}
	if diff := cmp.Diff([]string{"Austen", "Bronte", "Herbert"}, labels); diff != "" {
		t.Errorf("collected options mismatch (-want +got):\n%s", diff)
	}
	if col.Position != 1 {
		t.Errorf("position = %d, want 1", col.Position)
	}

	f.mustDispatch(t, DomainColumns, ActionAlterLabel, map[string]any{"id": "author", "label": "Writer"})
	f.mustDispatch(t, DomainColumns, ActionAlterSize, map[string]any{"id": "author", "width": 240})
	f.mustDispatch(t, DomainColumns, ActionAlterHidden, map[string]any{"id": "author", "hidden": true})
	f.mustDispatch(t, DomainColumns, ActionAlterColumnConfig, map[string]any{"id": "author", "config": map[string]any{"content_alignment": models.AlignCenter}})
	f.mustDispatch(t, DomainColumns, ActionAlterID, map[string]any{"id": "author", "new_id": "writer"})

	got := f.persisted(t).Columns["writer"]
	if got == nil {
		t.Fatalf("renamed column not persisted")
	}
	if got.Label != "Writer" || got.Width != 240 || !got.IsHidden || got.Config.ContentAlignment != models.AlignCenter || got.Key != "writer" {
		t.Errorf("persisted column = %+v", got)
	}
	if fm := f.frontmatter(t, "books/a.md"); fm["writer"] != "Herbert" || fm["author"] != nil {
		t.Errorf("row field not renamed: %v", fm)
	}
}

func TestSorting(t *testing.T) {
	f := setup(t, map[string]string{
		dbPath: databaseNote(statusColumn+`
  pages:
    input: number
    label: Pages
    position: 1`, ""),
	})
	f.mustDispatch(t, DomainSorting, ActionAddSort, map[string]any{"id": "status"})
	f.mustDispatch(t, DomainSorting, ActionAddSort, map[string]any{"id": "pages", "desc": true})
	want := []SortCriterion{{ID: "status"}, {ID: "pages", Desc: true}}
	if diff := cmp.Diff(want, f.ts.Sorting.Criteria()); diff != "" {
		t.Errorf("criteria mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, CriteriaOf(f.persisted(t).Columns)); diff != "" {
		t.Errorf("persisted criteria mismatch (-want +got):\n%s", diff)
	}

	f.mustDispatch(t, DomainSorting, ActionRemoveSort, map[string]any{"id": "status"})
	if diff := cmp.Diff([]SortCriterion{{ID: "pages", Desc: true}}, f.ts.Sorting.Criteria()); diff != "" {
		t.Errorf("criteria after remove (-want +got):\n%s", diff)
	}
	f.mustDispatch(t, DomainColumns, ActionAlterSorting, map[string]any{"sorting": []SortCriterion{{ID: "status", Desc: true}}})
	if diff := cmp.Diff([]SortCriterion{{ID: "status", Desc: true}}, f.ts.Sorting.Criteria()); diff != "" {
		t.Errorf("criteria after alter (-want +got):\n%s", diff)
	}
	f.mustDispatch(t, DomainSorting, ActionClearSorting, nil)
	if got := f.ts.Sorting.Criteria(); len(got) != 0 {
		t.Errorf("criteria after clear = %v", got)
	}
	if err := f.dispatch(t, DomainSorting, ActionAddSort, map[string]any{"id": "nope"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown column err = %v", err)
	}
}

func TestUpdateCell_QuoteWrap(t *testing.T) {
	f := setup(t, map[string]string{
		dbPath:       databaseNote(statusColumn, "  frontmatter_quote_wrap: true\n"),
		"books/a.md": "---\nstatus: Todo\npages: 3\n---\nbody\n",
	})
	f.mustDispatch(t, DomainData, ActionUpdateCell, map[string]any{"path": "books/a.md", "key": "status", "value": "Done"})
	f.mustDispatch(t, DomainData, ActionUpdateCell, map[string]any{"path": "books/a.md", "key": "pages", "value": 4})

	content, err := f.store.Read("books/a.md")
	if err != nil {
		t.Fatal(err)
	}
	if want := "---\nstatus: \"Done\"\npages: 4\n---\nbody\n"; string(content) != want {
		t.Errorf("row = %q, want %q", content, want)
	}
}

func TestSortRows(t *testing.T) {
	rows := []*models.Row{
		{Path: "a", Values: map[string]any{"n": 10, "s": "b"}},
		{Path: "b", Values: map[string]any{"n": 2, "s": "a"}},
		{Path: "c", Values: map[string]any{"s": "a"}},
		{Path: "d", Values: map[string]any{"n": "7", "s": "B"}},
	}
	cols := models.Columns{"n": {ID: "n", Key: "n"}, "s": {ID: "s", Key: "s"}}

	got := rowPaths(SortRows(rows, cols, []SortCriterion{{ID: "n"}}))
	if diff := cmp.Diff([]string{"b", "d", "a", "c"}, got); diff != "" {
		t.Errorf("ascending mismatch (-want +got):\n%s", diff)
	}
	got = rowPaths(SortRows(rows, cols, []SortCriterion{{ID: "n", Desc: true}}))
	if diff := cmp.Diff([]string{"a", "d", "b", "c"}, got); diff != "" {
		t.Errorf("descending mismatch (-want +got):\n%s", diff)
	}
	got = rowPaths(SortRows(rows, cols, []SortCriterion{{ID: "s"}, {ID: "n", Desc: true}}))
	if diff := cmp.Diff([]string{"b", "c", "a", "d"}, got); diff != "" {
		t.Errorf("two keys mismatch (-want +got):\n%s", diff)
	}
}

func TestSortRows_DateColumn(t *testing.T) {
	rows := []*models.Row{
		{Path: "late", Values: map[string]any{"due": "03/15/2024"}},
		{Path: "early", Values: map[string]any{"due": "2024-02-01"}},
		{Path: "mid", Values: map[string]any{"due": "Mar 1, 2024"}},
		{Path: "none", Values: map[string]any{}},
	}
	cols := models.Columns{"due": {ID: "due", Key: "due", Input: models.InputCalendar}}

	got := rowPaths(SortRows(rows, cols, []SortCriterion{{ID: "due"}}))
	if diff := cmp.Diff([]string{"early", "mid", "late", "none"}, got); diff != "" {
		t.Errorf("date order mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigActions(t *testing.T) {
	f := setup(t, map[string]string{dbPath: databaseNote(statusColumn, "")})

	f.mustDispatch(t, DomainConfig, ActionAlterConfig, map[string]any{"config": map[string]any{"pagination_size": 25, "sticky_first_column": true}})
	local := f.ts.Settings.Local()
	if local.PaginationSize != 25 || !local.StickyFirstColumn {
		t.Errorf("local = %+v", local)
	}
	if err := f.dispatch(t, DomainConfig, ActionAlterConfig, map[string]any{"config": map[string]any{"pagination_size": -1}}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("negative pagination err = %v", err)
	}

	filters := map[string]any{
		"enabled": true,
		"conditions": []any{
			map[string]any{"condition": "OR", "filters": []any{
				map[string]any{"field": "status", "operator": models.OperatorEqual, "value": "Todo"},
			}},
		},
	}
	f.mustDispatch(t, DomainConfig, ActionAlterFilters, map[string]any{"filters": filters})
	got := f.persisted(t).Filters
	if !got.Enabled || len(got.Conditions) != 1 {
		t.Fatalf("persisted filters = %+v", got)
	}
	if g, ok := got.Conditions[0].(*models.ConditionGroup); !ok || g.Condition != models.ConditionOr || len(g.Filters) != 1 {
		t.Errorf("group = %+v", got.Conditions[0])
	}

	f.mustDispatch(t, DomainConfig, ActionToggleFilters, nil)
	if f.ts.Settings.Filters().Enabled {
		t.Error("toggle_filters did not disable filters")
	}

	if err := f.dispatch(t, DomainConfig, ActionAlterGlobalSettings, map[string]any{"config": map[string]any{"enable_debug_mode": true}}); err == nil {
		t.Error("global settings without a store should fail")
	}
}

type fakeGlobal struct {
	settings models.DatabaseSettings
}

func (g *fakeGlobal) Settings() models.DatabaseSettings { return g.settings }

func (g *fakeGlobal) UpdateGlobal(patch map[string]any) error {
	return diskconfig.ApplyPatch(&g.settings.GlobalSettings, patch)
}

func TestAlterGlobalSettings(t *testing.T) {
	f := setup(t, map[string]string{dbPath: databaseNote(statusColumn, "")})
	g := &fakeGlobal{settings: models.DefaultSettings()}
	f.ts.Settings.global = g

	f.mustDispatch(t, DomainConfig, ActionAlterGlobalSettings, map[string]any{"config": map[string]any{"enable_debug_mode": true, "logger_level_info": "debug"}})
	got := f.ts.Settings.Global().GlobalSettings
	if !got.EnableDebugMode || got.LoggerLevelInfo != "debug" {
		t.Errorf("global = %+v", got)
	}
}

func TestAutomation(t *testing.T) {
	f := setup(t, map[string]string{
		dbPath:               databaseNote(statusColumn, ""),
		"formulas/by.md":     "by {{.Row.author}}\n",
		"formulas/broken.md": "{{\n",
		"formulas/deep/x.md": "nested\n",
	})
	if f.ts.Automation.Enabled() {
		t.Fatal("formulas enabled by default")
	}
	f.mustDispatch(t, DomainAutomation, ActionToggleFormulas, nil)
	if !f.ts.Automation.Enabled() {
		t.Error("toggle_formulas did not enable formulas")
	}
	f.mustDispatch(t, DomainAutomation, ActionToggleFormulas, map[string]any{"enabled": true})
	if !f.ts.Automation.Enabled() {
		t.Error("explicit enable flipped the flag")
	}

	f.mustDispatch(t, DomainAutomation, ActionSetFormulaFolder, map[string]any{"folder": "formulas"})
	if diff := cmp.Diff([]string{"by"}, f.ts.Automation.Engine().Names()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
	out, err := f.ts.Automation.Engine().Evaluate(`{{template "by" .}}`, &models.Row{Path: "x.md", Values: map[string]any{"author": "Le Guin"}})
	if err != nil || out != "by Le Guin" {
		t.Errorf("Evaluate = %q, %v", out, err)
	}

	if err := f.store.Write("formulas/more.md", []byte("more")); err != nil {
		t.Fatal(err)
	}
	f.mustDispatch(t, DomainAutomation, ActionReloadFormulas, nil)
	if diff := cmp.Diff([]string{"by", "more"}, f.ts.Automation.Engine().Names()); diff != "" {
		t.Errorf("names after reload mismatch (-want +got):\n%s", diff)
	}
}

func TestRowTemplates(t *testing.T) {
	f := setup(t, map[string]string{
		dbPath:     databaseNote(statusColumn, ""),
		"tpl/a.md": "A\n",
		"tpl/b.md": "B\n",
	})
	f.mustDispatch(t, DomainRowTemplates, ActionSetTemplateFolder, map[string]any{"folder": "tpl"})
	got, err := f.ts.RowTemplates.Templates()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"tpl/a.md", "tpl/b.md"}, got); diff != "" {
		t.Errorf("templates mismatch (-want +got):\n%s", diff)
	}
	if err := f.dispatch(t, DomainRowTemplates, ActionSelectTemplate, map[string]any{"path": "books/books.md"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("foreign template err = %v", err)
	}
	f.mustDispatch(t, DomainRowTemplates, ActionSelectTemplate, map[string]any{"path": "tpl/b.md"})
	if f.ts.RowTemplates.Selected() != "tpl/b.md" {
		t.Errorf("selected = %q", f.ts.RowTemplates.Selected())
	}
	f.mustDispatch(t, DomainRowTemplates, ActionSelectTemplate, map[string]any{"path": ""})
	if f.ts.RowTemplates.Selected() != "" {
		t.Errorf("selection not cleared")
	}
}

func TestUnknownAction(t *testing.T) {
	f := setup(t, map[string]string{dbPath: databaseNote(statusColumn, "")})
	if err := f.dispatch(t, DomainColumns, "rename_everything", nil); !errors.Is(err, apperr.ErrUnknownAction) {
		t.Errorf("unknown type err = %v", err)
	}
	if err := f.dispatch(t, "weather", ActionAddColumn, nil); !errors.Is(err, apperr.ErrUnknownAction) {
		t.Errorf("unknown domain err = %v", err)
	}
	// A type owned by another domain is not matched.
	if err := f.dispatch(t, DomainSorting, ActionAddColumn, nil); !errors.Is(err, apperr.ErrUnknownAction) {
		t.Errorf("cross-domain err = %v", err)
	}
}

func TestDecodeAction(t *testing.T) {
	a, err := DecodeAction([]byte(`{"type":"add_sort","payload":{"id":"status","desc":true}}`))
	if err != nil {
		t.Fatal(err)
	}
	p, err := decodePayload[sortPayload](a)
	if err != nil || p.ID != "status" || !p.Desc {
		t.Errorf("payload = %+v, %v", p, err)
	}
	if _, err := DecodeAction([]byte(`{"payload":{}}`)); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("missing type err = %v", err)
	}
	if _, err := DecodeAction([]byte(`{`)); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("bad json err = %v", err)
	}
	bad := Action{Type: ActionAddSort, Payload: []byte(`[1]`)}
	if _, err := decodePayload[sortPayload](bad); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("bad payload err = %v", err)
	}
}

func TestActionTypesCoverChains(t *testing.T) {
	types := ActionTypes()
	if diff := cmp.Diff(Domains(), sortedDomains(types)); diff != "" {
		t.Errorf("domains mismatch (-want +got):\n%s", diff)
	}
	f := setup(t, map[string]string{dbPath: databaseNote(statusColumn, "")})
	for domain, list := range types {
		if got := f.ts.chains[domain].Len(); got != len(list) {
			t.Errorf("%s chain has %d handlers, %d action types", domain, got, len(list))
		}
	}
}

func sortedDomains(types map[string][]string) []string {
	var out []string
	for _, d := range Domains() {
		if _, ok := types[d]; ok {
			out = append(out, d)
		}
	}
	return out
}
