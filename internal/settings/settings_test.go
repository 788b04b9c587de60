package settings

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/dbfolder/internal/apperr"
	"github.com/starford/dbfolder/internal/diskconfig"
	"github.com/starford/dbfolder/internal/models"
	"github.com/starford/dbfolder/internal/parser"
	"github.com/starford/dbfolder/internal/persist"
	"github.com/starford/dbfolder/internal/query"
	"github.com/starford/dbfolder/internal/rollup"
	"github.com/starford/dbfolder/internal/state"
	"github.com/starford/dbfolder/internal/storage"
	"github.com/starford/dbfolder/internal/testutil"
	"github.com/starford/dbfolder/internal/ui"
)

const dbPath = "books/books.md"

const defaultFilters = "  enabled: false\n  conditions: []\n"

func databaseNote(name, columns, filters string) string {
	return "---\ndatabase-plugin: basic\n---\n```yaml:dbfolder\nname: " + name + "\ndescription: test\n" +
		"columns:" + columns + "\nconfig:\n  source_data: current_folder\nfilters:\n" + filters + "```\n"
}

const bookColumns = `
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
        color: green
  rel:
    input: relation
    key: rel
    accessorKey: rel
    label: Project
    position: 1
    config:
      related_note_path: projects/projects.md
  total:
    input: rollup
    key: total
    accessorKey: total
    label: Total
    position: 2
    config:
      asociated_relation_id: rel
      rollup_action: Summatory`

const projectColumns = `
  budget:
    input: number
    key: budget
    accessorKey: budget
    label: Budget
    position: 0
  owner:
    input: text
    key: owner
    accessorKey: owner
    label: Owner
    position: 1`

type fixture struct {
	target Target
	view   *state.TableState
	store  storage.Provider
}

func setup(t *testing.T, filters string) *fixture {
	t.Helper()
	store, db := testutil.IndexedVault(t, map[string]string{
		dbPath:                 databaseNote("Books", bookColumns, filters),
		"books/a.md":           "---\nstatus: Todo\ntags: [fantasy]\n---\n",
		"books/b.md":           "---\nstatus: Done\n---\n",
		"projects/projects.md": databaseNote("Projects", projectColumns, defaultFilters),
	})
	logger := testutil.Logger()
	cfg, err := diskconfig.Load(context.Background(), store, persist.NewTracker(logger), logger, dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = cfg.Flush(context.Background()) })
	global, err := Open("", logger)
	if err != nil {
		t.Fatal(err)
	}
	q := query.NewService(db, store, logger)
	view := state.New(state.Deps{Config: cfg, Store: store, Index: db, Query: q, Global: global, Logger: logger})
	if err := view.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	return &fixture{
		target: Target{View: view, Global: global, Index: db, Query: q},
		view:   view,
		store:  store,
	}
}

func mustApply(t *testing.T, f *ui.Form, id string, value any) {
	t.Helper()
	if err := f.Apply(id, value); err != nil {
		t.Fatalf("Apply(%s, %v): %v", id, value, err)
	}
}

func control(t *testing.T, f *ui.Form, id string) *ui.Control {
	t.Helper()
	c, ok := f.Get(id)
	if !ok {
		t.Fatalf("control %s not rendered", id)
	}
	return c
}

func TestRender_Global(t *testing.T) {
	global, err := Open("", testutil.Logger())
	if err != nil {
		t.Fatal(err)
	}
	target := Target{Global: global}
	f, _ := Render(context.Background(), target)

	for _, id := range []string{"source_data", "group_folder_column", "reload_formulas", "logger_level_info"} {
		if _, ok := f.Get(id); ok {
			t.Errorf("global form renders %s", id)
		}
	}
	var sections []string
	for _, c := range f.Controls() {
		sections = append(sections, c.ID)
	}
	want := []string{"developer", "media", "helpers", "metadata", "folder", "rows", "formulas", "row_templates", "dates"}
	if diff := cmp.Diff(want, sections); diff != "" {
		t.Errorf("sections (-want +got):\n%s", diff)
	}

	mustApply(t, f, "enable_debug_mode", true)
	mustApply(t, f, "pagination_size", 50)
	mustApply(t, f, "media_settings.width", "240")
	if err := f.Apply("pagination_size", 5); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("pagination below minimum: %v", err)
	}
	if err := f.Apply("media_settings.height", "tall"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("non-numeric height: %v", err)
	}

	st := global.Settings()
	if !st.GlobalSettings.EnableDebugMode || st.LocalSettings.PaginationSize != 50 || st.GlobalSettings.MediaSettings.Width != 240 {
		t.Fatalf("settings = %+v", st)
	}

	f, _ = Render(context.Background(), target)
	if err := f.Apply("logger_level_info", "verbose"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("unknown level: %v", err)
	}
	mustApply(t, f, "logger_level_info", "debug")
	if got := global.Settings().GlobalSettings.LoggerLevelInfo; got != "debug" {
		t.Errorf("logger level = %q", got)
	}
}

func TestRender_Local(t *testing.T) {
	fx := setup(t, defaultFilters)
	f, _ := Render(context.Background(), fx.target)

	if _, ok := f.Get("enable_debug_mode"); ok {
		t.Error("local form renders developer settings")
	}
	if _, ok := f.Get("source_form_result"); ok {
		t.Error("folder source renders a source value")
	}

	group := control(t, f, "group_folder_column")
	if !slices.Contains(group.Options, ui.Option{Value: "status", Label: "Status"}) {
		t.Errorf("group column options = %+v", group.Options)
	}

	mustApply(t, f, "pagination_size", 25)
	mustApply(t, f, "show_metadata_created", true)
	mustApply(t, f, "source_data", models.SourceTag)

	local := fx.view.Settings.Local()
	if local.PaginationSize != 25 || !local.ShowMetadataCreated || local.SourceData != models.SourceTag {
		t.Fatalf("local = %+v", local)
	}
	if fx.target.Global.Settings().LocalSettings.PaginationSize != models.DefaultLocalSettings().PaginationSize {
		t.Error("local edit leaked into the global defaults")
	}

	f, _ = Render(context.Background(), fx.target)
	result := control(t, f, "source_form_result")
	if !slices.Contains(result.Suggestions, "fantasy") {
		t.Errorf("tag suggestions = %v", result.Suggestions)
	}
	control(t, f, "source_destination_path")
	mustApply(t, f, "source_form_result", "fantasy")
	if got := fx.view.Settings.Local().SourceFormResult; got != "fantasy" {
		t.Errorf("source_form_result = %q", got)
	}
}

func TestRender_LocalFormulas(t *testing.T) {
	fx := setup(t, defaultFilters)
	f, _ := Render(context.Background(), fx.target)
	if _, ok := f.Get("formula_folder_path"); ok {
		t.Fatal("formula folder shown while formulas are disabled")
	}
	mustApply(t, f, "enable_js_formulas", true)
	if !fx.view.Automation.Enabled() {
		t.Fatal("formulas not enabled")
	}

	f, _ = Render(context.Background(), fx.target)
	mustApply(t, f, "formula_folder_path", "projects")
	if got := fx.view.Settings.Local().FormulaFolderPath; got != "projects" {
		t.Errorf("formula folder = %q", got)
	}
	mustApply(t, f, "reload_formulas", nil)
}

func TestRenderColumn_Options(t *testing.T) {
	fx := setup(t, defaultFilters)
	ctx := context.Background()
	f, _, err := RenderColumn(ctx, fx.target, "status")
	if err != nil {
		t.Fatal(err)
	}

	mustApply(t, f, "options.add", "Doing")
	for _, v := range []string{"", "Todo"} {
		if err := f.Apply("options.add", v); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Errorf("add %q: %v", v, err)
		}
	}
	if err := f.Apply("options.0.label", "Todo"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("unchanged label: %v", err)
	}
	mustApply(t, f, "options.0.label", "Pending")
	mustApply(t, f, "options.1.color", "blue")
	mustApply(t, f, "options.1.delete", nil)

	got := fx.view.Columns.All()["status"].Options
	if len(got) != 2 {
		t.Fatalf("options = %+v", got)
	}
	want := []models.SelectOption{{Label: "Pending", Color: "red"}, {Label: "Doing", Color: got[1].Color}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("options (-want +got):\n%s", diff)
	}

	content, err := fx.store.Read("books/a.md")
	if err != nil {
		t.Fatal(err)
	}
	res, err := parser.Parse(content)
	if err != nil {
		t.Fatal(err)
	}
	if res.Frontmatter["status"] != "Pending" {
		t.Errorf("row status = %v, want Pending", res.Frontmatter["status"])
	}
}

func TestRenderColumn_Rollup(t *testing.T) {
	fx := setup(t, defaultFilters)
	ctx := context.Background()

	f, errs, err := RenderColumn(ctx, fx.target, "total")
	if err != nil {
		t.Fatal(err)
	}
	key := control(t, f, "rollup_key")
	if !key.Required {
		t.Error("empty rollup key not marked required")
	}
	if diff := cmp.Diff([]string{"budget", "owner"}, key.Suggestions); diff != "" {
		t.Errorf("key suggestions (-want +got):\n%s", diff)
	}
	if len(errs[TitleRollupKey]) == 0 {
		t.Error("missing key not reported")
	}
	if err := f.Apply("rollup_key", " "); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("blank key: %v", err)
	}
	mustApply(t, f, "rollup_key", "budget")
	if got := fx.view.Columns.All()["total"].Config.RollupKey; got != "budget" {
		t.Errorf("rollup key = %q", got)
	}

	mustApply(t, f, "rollup_action", rollup.ActionAllTasks)
	f, errs, err = RenderColumn(ctx, fx.target, "total")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := f.Get("rollup_key"); ok {
		t.Error("embed action renders a key control")
	}
	if len(errs[TitleRollupKey]) != 0 {
		t.Errorf("embed action reported %v", errs[TitleRollupKey])
	}
}

func TestRenderColumn_RollupWithoutAction(t *testing.T) {
	fx := setup(t, defaultFilters)
	if err := fx.view.Config().UpdateColumnConfig("total", map[string]any{"rollup_action": ""}); err != nil {
		t.Fatal(err)
	}

	f, errs, err := RenderColumn(context.Background(), fx.target, "total")
	if err != nil {
		t.Fatal(err)
	}
	if !control(t, f, "rollup_key").Required {
		t.Error("rollup without action must ask for a key")
	}
	if len(errs[TitleRollupKey]) == 0 {
		t.Error("missing key not reported")
	}
}

func TestRenderColumn_Errors(t *testing.T) {
	fx := setup(t, defaultFilters)
	if _, _, err := RenderColumn(context.Background(), fx.target, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing column: %v", err)
	}
	if _, _, err := RenderColumn(context.Background(), Target{}, "status"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("no view: %v", err)
	}

	f, _, err := RenderColumn(context.Background(), fx.target, "rel")
	if err != nil {
		t.Fatal(err)
	}
	related := control(t, f, "related_note_path")
	if diff := cmp.Diff([]string{"projects/projects.md"}, related.Suggestions); diff != "" {
		t.Errorf("related suggestions (-want +got):\n%s", diff)
	}
}

const groupFilters = `  enabled: false
  conditions:
    - condition: AND
      disabled: false
      filters:
        - field: status
          operator: EQUAL
          type: select
          value: Todo
`

func TestRenderFilters(t *testing.T) {
	fx := setup(t, groupFilters)
	ctx := context.Background()
	f, errs, err := RenderFilters(ctx, fx.target)
	if err != nil {
		t.Fatal(err)
	}
	if len(errs) != 0 {
		t.Errorf("unexpected errors %v", errs)
	}
	control(t, f, "filters.0.condition")
	control(t, f, "filters.0.0.field")

	mustApply(t, f, "filters.enabled", true)
	mustApply(t, f, "filters.0.0.value", "Done")
	mustApply(t, f, "filters.0.condition", models.ConditionOr)
	mustApply(t, f, "filters.0.add", nil)
	mustApply(t, f, "filters.add_group", nil)

	fs := fx.view.Settings.Filters()
	if !fs.Enabled {
		t.Error("filters not enabled")
	}
	want := models.Filters{
		&models.ConditionGroup{
			Condition: models.ConditionOr,
			Filters: models.Filters{
				&models.AtomicFilter{Field: "status", Operator: models.OperatorEqual, Type: "select", Value: "Done"},
				&models.AtomicFilter{Field: "status", Operator: models.OperatorContains, Type: "select"},
			},
		},
		&models.ConditionGroup{Condition: models.ConditionAnd, Filters: models.Filters{}},
	}
	if diff := cmp.Diff(want, fs.Conditions); diff != "" {
		t.Errorf("filters (-want +got):\n%s", diff)
	}

	mustApply(t, f, "filters.0.0.delete", nil)
	if g := fx.view.Settings.Filters().Conditions[0].(*models.ConditionGroup); len(g.Filters) != 1 {
		t.Errorf("group has %d filters after delete", len(g.Filters))
	}
	if err := f.Apply("filters.0.0.operator", "LIKE"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("unknown operator: %v", err)
	}
}
