package settings

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cast"

	"github.com/starford/dbfolder/internal/apperr"
	"github.com/starford/dbfolder/internal/chain"
	"github.com/starford/dbfolder/internal/logging"
	"github.com/starford/dbfolder/internal/models"
	"github.com/starford/dbfolder/internal/state"
	"github.com/starford/dbfolder/internal/ui"
)

// Section handler titles.
const (
	TitleDeveloper    = "developer"
	TitleMedia        = "media"
	TitleHelpers      = "helpers"
	TitleMetadata     = "columns metadata"
	TitleFolder       = "folder"
	TitleRows         = "rows"
	TitleSource       = "source"
	TitleFormulas     = "formulas"
	TitleRowTemplates = "row templates"
	TitleDates        = "dates"
)

// Pagination slider bounds.
const (
	MinPageSize  = 10
	MaxPageSize  = 200
	PageSizeStep = 5
)

var (
	sectionsOnce sync.Once
	sectionList  []section
)

func sections() []section {
	sectionsOnce.Do(func() {
		sectionList = []section{
			{globalOnly: true, chain: newSection("developer", "Developer", developerHandler())},
			{globalOnly: true, chain: newSection("media", "Media", mediaHandler())},
			{globalOnly: true, chain: newSection("helpers", "Helpers", helpersHandler())},
			{chain: newSection("metadata", "Columns", metadataHandler())},
			{chain: newSection("folder", "Folder", folderHandler())},
			{chain: newSection("rows", "Rows", rowsHandler())},
			{localOnly: true, chain: newSection("source", "Source", sourceHandler())},
			{chain: newSection("formulas", "Formulas", formulasHandler())},
			{chain: newSection("row_templates", "Row templates", rowTemplatesHandler())},
			{chain: newSection("dates", "Dates", datesHandler())},
		}
	})
	return sectionList
}

func developerHandler() *chain.Step[*Response] {
	return chain.Func(TitleDeveloper, func(s *chain.Step[*Response], r *Response) *Response {
		g := r.global()
		r.globalToggle("enable_debug_mode", "Debug mode", "Log actions and repairs at debug level", g.EnableDebugMode)
		if g.EnableDebugMode {
			r.Container.Dropdown("logger_level_info", "Logger level", "", g.LoggerLevelInfo,
				ui.Options(logging.LevelNames()...),
				func(v string) error { return r.setGlobal("logger_level_info", v) })
		}
		return s.GoNext(r)
	})
}

func mediaHandler() *chain.Step[*Response] {
	return chain.Func(TitleMedia, func(s *chain.Step[*Response], r *Response) *Response {
		m := r.global().MediaSettings
		set := func(key string, v any) error {
			return r.setGlobal("media_settings", map[string]any{key: v})
		}
		dimension := func(key string) func(string) error {
			return func(v string) error {
				n, err := cast.ToIntE(strings.TrimSpace(v))
				if err != nil || n <= 0 {
					return fmt.Errorf("settings: %s must be a positive number: %w", key, apperr.ErrInvalidInput)
				}
				return set(key, n)
			}
		}

		r.Container.Toggle("media_settings.enable_media_view", "Media links", "Render links to media as embeds", m.EnableMediaView,
			func(v bool) error { return set("enable_media_view", v) })
		if m.EnableMediaView {
			r.Container.Text("media_settings.width", "Width", "", cast.ToString(m.Width), dimension("width"))
			r.Container.Text("media_settings.height", "Height", "", cast.ToString(m.Height), dimension("height"))
		}
		r.Container.Toggle("media_settings.link_alias_enabled", "Link alias", "Show media links with an alias", m.LinkAliasEnabled,
			func(v bool) error { return set("link_alias_enabled", v) })
		return s.GoNext(r)
	})
}

func helpersHandler() *chain.Step[*Response] {
	return chain.Func(TitleHelpers, func(s *chain.Step[*Response], r *Response) *Response {
		g := r.global()
		r.globalToggle("show_search_bar_by_default", "Search bar", "Show the search bar when a table opens", g.ShowSearchBarByDefault)
		r.globalToggle("enable_auto_update", "Auto update", "Refresh tables when their notes change", g.EnableAutoUpdate)
		r.globalToggle("enable_row_shadow", "Row shadow", "", g.EnableRowShadow)
		r.globalToggle("enable_show_state", "Show state", "Expose the table state for debugging", g.EnableShowState)
		r.Container.Text("csv_file_header_key", "CSV file header", "Header of the file column in exports", g.CSVFileHeaderKey,
			func(v string) error {
				if strings.TrimSpace(v) == "" {
					return fmt.Errorf("settings: csv header is empty: %w", apperr.ErrInvalidInput)
				}
				return r.setGlobal("csv_file_header_key", v)
			})
		return s.GoNext(r)
	})
}

func metadataHandler() *chain.Step[*Response] {
	return chain.Func(TitleMetadata, func(s *chain.Step[*Response], r *Response) *Response {
		l := r.local()
		r.localToggle("show_metadata_created", "Created", "Show the creation time column", l.ShowMetadataCreated)
		r.localToggle("show_metadata_modified", "Modified", "Show the modification time column", l.ShowMetadataModified)
		r.localToggle("show_metadata_tasks", "Tasks", "Show the task column", l.ShowMetadataTasks)
		r.localToggle("show_metadata_inlinks", "Inlinks", "Show the notes linking to each row", l.ShowMetadataInlinks)
		r.localToggle("show_metadata_outlinks", "Outlinks", "Show the notes each row links to", l.ShowMetadataOutlinks)
		return s.GoNext(r)
	})
}

func folderHandler() *chain.Step[*Response] {
	return chain.Func(TitleFolder, func(s *chain.Step[*Response], r *Response) *Response {
		l := r.local()
		r.localToggle("sticky_first_column", "Sticky first column", "", l.StickyFirstColumn)
		r.localToggle("remove_field_when_delete_column", "Remove field on delete",
			"Deleting a column also removes its field from every row", l.RemoveFieldWhenDeleteColumn)
		r.Container.Dropdown("cell_size", "Cell size", "", l.CellSize,
			ui.Options(models.CellSizeCompact, models.CellSizeNormal, models.CellSizeWide),
			func(v string) error { return r.setLocal("cell_size", v) })
		if r.Local {
			opts := []ui.Option{{Value: "", Label: "None"}}
			for _, col := range r.View.Columns.All().Ordered() {
				if col.Input == models.InputSelect && !col.IsMetadata {
					opts = append(opts, ui.Option{Value: col.Key, Label: col.Label})
				}
			}
			r.Container.Dropdown("group_folder_column", "Group folder column",
				"Move rows into subfolders named after this column", l.GroupFolderColumn, opts,
				func(v string) error { return r.setLocal("group_folder_column", v) })
		}
		r.localToggle("remove_empty_folders", "Remove empty folders", "", l.RemoveEmptyFolders)
		r.localToggle("automatically_group_files", "Group files automatically", "", l.AutomaticallyGroupFiles)
		r.localToggle("hoist_files_with_empty_attributes", "Hoist files with empty attributes", "", l.HoistFilesWithEmptyAttributes)
		r.localToggle("frontmatter_quote_wrap", "Quote frontmatter values",
			"Write text cells as double-quoted YAML strings", l.FrontmatterQuoteWrap)
		return s.GoNext(r)
	})
}

func rowsHandler() *chain.Step[*Response] {
	return chain.Func(TitleRows, func(s *chain.Step[*Response], r *Response) *Response {
		l := r.local()
		r.Container.Slider("pagination_size", "Rows per page", "", float64(l.PaginationSize),
			MinPageSize, MaxPageSize, PageSizeStep,
			func(v float64) error { return r.setLocal("pagination_size", int(v)) })
		r.localToggle("inline_default", "Inline fields", "New columns store their field inline", l.InlineDefault)
		r.Container.Dropdown("inline_new_position", "Inline position", "Where new inline fields are written", l.InlineNewPosition,
			ui.Options(models.InlinePositionTop, models.InlinePositionBottom),
			func(v string) error { return r.setLocal("inline_new_position", v) })
		return s.GoNext(r)
	})
}

func sourceHandler() *chain.Step[*Response] {
	return chain.Func(TitleSource, func(s *chain.Step[*Response], r *Response) *Response {
		l := r.local()
		r.Container.Dropdown("source_data", "Source", "Which notes become rows", l.SourceData, ui.Options(Sources()...),
			func(v string) error { return r.setLocal("source_data", v) })

		setResult := func(v string) error { return r.setLocal("source_form_result", v) }
		switch l.SourceData {
		case models.SourceCurrentFolder, models.SourceCurrentFolderNoSubfolders:
			return s.GoNext(r)
		case models.SourceTag:
			r.Container.Search("source_form_result", "Tag", "", l.SourceFormResult, r.tags(), setResult)
		case models.SourceOutgoingLink, models.SourceIncomingLink:
			r.Container.Search("source_form_result", "Note", "", l.SourceFormResult, r.notes(), setResult)
		case models.SourceQuery:
			r.localText("source_form_result", "Query", "Full-text query selecting the rows", l.SourceFormResult)
		}
		if l.SourceFormResult == "" {
			s.AddError("source has no value")
		}
		r.Container.Search("source_destination_path", "Destination", "Folder new rows are created in",
			l.SourceDestinationPath, r.folders(),
			func(v string) error { return r.setLocal("source_destination_path", v) })
		return s.GoNext(r)
	})
}

func formulasHandler() *chain.Step[*Response] {
	return chain.Func(TitleFormulas, func(s *chain.Step[*Response], r *Response) *Response {
		l := r.local()
		r.Container.Toggle("enable_js_formulas", "Formulas", "Evaluate formula columns", l.EnableJSFormulas,
			func(v bool) error {
				if r.Local {
					return r.dispatch(state.DomainAutomation, state.ActionToggleFormulas, map[string]any{"enabled": v})
				}
				return r.setLocal("enable_js_formulas", v)
			})
		if !l.EnableJSFormulas {
			return s.GoNext(r)
		}
		r.Container.Search("formula_folder_path", "Formula folder", "Notes in this folder become named templates",
			l.FormulaFolderPath, r.folders(),
			func(v string) error {
				if r.Local {
					return r.dispatch(state.DomainAutomation, state.ActionSetFormulaFolder, map[string]any{"folder": v})
				}
				return r.setLocal("formula_folder_path", v)
			})
		if r.Local {
			r.Container.Button("reload_formulas", "Reload", strings.Join(r.View.Automation.Engine().Names(), ", "),
				func() error { return r.dispatch(state.DomainAutomation, state.ActionReloadFormulas, nil) })
		}
		return s.GoNext(r)
	})
}

func rowTemplatesHandler() *chain.Step[*Response] {
	return chain.Func(TitleRowTemplates, func(s *chain.Step[*Response], r *Response) *Response {
		l := r.local()
		r.Container.Search("row_templates_folder", "Templates folder", "", l.RowTemplatesFolder, r.folders(),
			func(v string) error {
				if r.Local {
					return r.dispatch(state.DomainRowTemplates, state.ActionSetTemplateFolder, map[string]any{"folder": v})
				}
				return r.setLocal("row_templates_folder", v)
			})
		if !r.Local {
			return s.GoNext(r)
		}
		templates, err := r.View.RowTemplates.Templates()
		if err != nil {
			s.AddError(err.Error())
			return s.GoNext(r)
		}
		opts := []ui.Option{{Value: "", Label: "None"}}
		for _, p := range templates {
			opts = append(opts, ui.Option{Value: p, Label: p})
		}
		r.Container.Dropdown("current_row_template", "Row template", "Content new rows start from",
			r.View.RowTemplates.Selected(), opts,
			func(v string) error {
				return r.dispatch(state.DomainRowTemplates, state.ActionSelectTemplate, map[string]any{"path": v})
			})
		return s.GoNext(r)
	})
}

func datesHandler() *chain.Step[*Response] {
	return chain.Func(TitleDates, func(s *chain.Step[*Response], r *Response) *Response {
		l := r.local()
		format := func(key string) func(string) error {
			return func(v string) error {
				if strings.TrimSpace(v) == "" {
					return fmt.Errorf("settings: %s is empty: %w", key, apperr.ErrInvalidInput)
				}
				return r.setLocal(key, v)
			}
		}
		r.Container.Text("date_format", "Date format", "", l.DateFormat, format("date_format"))
		r.Container.Text("datetime_format", "Date and time format", "", l.DatetimeFormat, format("datetime_format"))
		return s.GoNext(r)
	})
}
