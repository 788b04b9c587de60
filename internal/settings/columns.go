package settings

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cast"

	"github.com/starford/dbfolder/internal/apperr"
	"github.com/starford/dbfolder/internal/chain"
	"github.com/starford/dbfolder/internal/formula"
	"github.com/starford/dbfolder/internal/models"
	"github.com/starford/dbfolder/internal/rollup"
	"github.com/starford/dbfolder/internal/state"
	"github.com/starford/dbfolder/internal/ui"
)

// Column handler titles.
const (
	TitleColumnMedia    = "column media"
	TitleLinkAlias      = "link alias"
	TitleAlignment      = "text alignment"
	TitleHideCompleted  = "task hide completed"
	TitleInline         = "inline"
	TitleOptions        = "column options"
	TitleFormulaInput   = "formula input"
	TitleRelatedNote    = "related note path"
	TitleRollupRelation = "rollup relation"
	TitleRollupAction   = "rollup action"
	TitleRollupKey      = "rollup key"
)

var (
	columnChainsOnce sync.Once
	columnChains     map[models.InputType]*chain.Chain[*Response]
)

// columnChain returns the chain rendering the settings of input.
func columnChain(input models.InputType) *chain.Chain[*Response] {
	columnChainsOnce.Do(func() {
		build := func(handlers ...chain.Handler[*Response]) *chain.Chain[*Response] {
			return newSection("column", "Column", handlers...)
		}
		plain := func() *chain.Chain[*Response] {
			return build(alignmentHandler(), inlineHandler())
		}
		columnChains = map[models.InputType]*chain.Chain[*Response]{
			models.InputText:         build(columnMediaHandler(), linkAliasHandler(), alignmentHandler(), inlineHandler()),
			models.InputMarkdown:     build(columnMediaHandler(), linkAliasHandler(), alignmentHandler(), inlineHandler()),
			models.InputNumber:       plain(),
			models.InputCalendar:     plain(),
			models.InputCalendarTime: plain(),
			models.InputCheckbox:     plain(),
			models.InputSelect:       build(alignmentHandler(), inlineHandler(), optionsHandler()),
			models.InputTags:         build(alignmentHandler(), inlineHandler(), optionsHandler()),
			models.InputTask:         build(hideCompletedHandler()),
			models.InputFormula:      build(formulaInputHandler(), alignmentHandler()),
			models.InputRelation:     build(relatedNoteHandler()),
			models.InputRollup:       build(rollupRelationHandler(), rollupActionHandler(), rollupKeyHandler()),
		}
	})
	return columnChains[input]
}

// RenderColumn builds the settings form of column id of t.View.
func RenderColumn(ctx context.Context, t Target, id string) (*ui.Form, map[string][]string, error) {
	if t.View == nil {
		return nil, nil, fmt.Errorf("settings: column %s needs a database: %w", id, apperr.ErrInvalidInput)
	}
	col, ok := t.View.Columns.All()[id]
	if !ok {
		return nil, nil, fmt.Errorf("settings: column %s: %w", id, apperr.ErrNotFound)
	}
	f := ui.NewForm("column:"+id, col.Label)
	r := t.response(ctx, f)
	r.Column = col
	if c := columnChain(col.Input); c != nil {
		c.Handle(r)
	}
	return f, r.Errors, nil
}

func (r *Response) setColumnConfig(key string, value any) error {
	return r.dispatch(state.DomainColumns, state.ActionAlterColumnConfig, map[string]any{
		"id":     r.Column.ID,
		"config": map[string]any{key: value},
	})
}

func (r *Response) columnToggle(key, name, desc string, value bool) *ui.Control {
	return r.Container.Toggle(key, name, desc, value, func(v bool) error { return r.setColumnConfig(key, v) })
}

func columnMediaHandler() *chain.Step[*Response] {
	return chain.Func(TitleColumnMedia, func(s *chain.Step[*Response], r *Response) *Response {
		cfg := r.Column.Config
		r.columnToggle("enable_media_view", "Media links", "Render links to media as embeds", cfg.EnableMediaView)
		if !cfg.EnableMediaView {
			return s.GoNext(r)
		}
		dimension := func(key string) func(string) error {
			return func(v string) error {
				n, err := cast.ToIntE(strings.TrimSpace(v))
				if err != nil || n <= 0 {
					return fmt.Errorf("settings: %s must be a positive number: %w", key, apperr.ErrInvalidInput)
				}
				return r.setColumnConfig(key, n)
			}
		}
		r.Container.Text("media_width", "Width", "", cast.ToString(cfg.MediaWidth), dimension("media_width"))
		r.Container.Text("media_height", "Height", "", cast.ToString(cfg.MediaHeight), dimension("media_height"))
		return s.GoNext(r)
	})
}

func linkAliasHandler() *chain.Step[*Response] {
	return chain.Func(TitleLinkAlias, func(s *chain.Step[*Response], r *Response) *Response {
		r.columnToggle("link_alias_enabled", "Link alias", "Show links with their alias", r.Column.Config.LinkAliasEnabled)
		return s.GoNext(r)
	})
}

func alignmentHandler() *chain.Step[*Response] {
	return chain.Func(TitleAlignment, func(s *chain.Step[*Response], r *Response) *Response {
		opts := []ui.Option{
			{Value: "", Label: "Default"},
			{Value: models.AlignLeft, Label: "Left"},
			{Value: models.AlignCenter, Label: "Center"},
			{Value: models.AlignRight, Label: "Right"},
			{Value: models.AlignJustify, Label: "Justify"},
			{Value: models.AlignWrap, Label: "Wrap"},
			{Value: models.AlignNoWrap, Label: "No wrap"},
		}
		r.Container.Dropdown("content_alignment", "Alignment", "", r.Column.Config.ContentAlignment, opts,
			func(v string) error { return r.setColumnConfig("content_alignment", v) })
		return s.GoNext(r)
	})
}

func hideCompletedHandler() *chain.Step[*Response] {
	return chain.Func(TitleHideCompleted, func(s *chain.Step[*Response], r *Response) *Response {
		r.columnToggle("task_hide_completed", "Hide completed", "Hide completed tasks", r.Column.Config.TaskHideCompleted)
		return s.GoNext(r)
	})
}

func inlineHandler() *chain.Step[*Response] {
	return chain.Func(TitleInline, func(s *chain.Step[*Response], r *Response) *Response {
		r.columnToggle("isInline", "Inline", "Store the field inline in the note body", r.Column.Config.IsInline)
		return s.GoNext(r)
	})
}

// optionsHandler edits the options of a select or tags column. Renames and
// deletions are applied to every row holding the option.
func optionsHandler() *chain.Step[*Response] {
	return chain.Func(TitleOptions, func(s *chain.Step[*Response], r *Response) *Response {
		id := r.Column.ID
		edit := func(actionType string, payload map[string]any) error {
			payload["id"] = id
			return r.dispatch(state.DomainColumns, actionType, payload)
		}

		r.Container.Text("options.add", "Add option", "Add a label to the options of this column", "",
			func(v string) error {
				label := strings.TrimSpace(v)
				if label == "" {
					return fmt.Errorf("settings: empty option: %w", apperr.ErrInvalidInput)
				}
				if r.Column.FindOption(label) >= 0 {
					return fmt.Errorf("settings: duplicate option %q: %w", label, apperr.ErrInvalidInput)
				}
				return edit(state.ActionAddOption, map[string]any{"option": label})
			})

		for i, opt := range r.Column.Options {
			label := opt.Label
			prefix := fmt.Sprintf("options.%d", i)
			row := r.Container.Section(prefix, label)
			row.Text(prefix+".label", "Label", "", label, func(v string) error {
				next := strings.TrimSpace(v)
				switch {
				case next == "":
					return fmt.Errorf("settings: empty option: %w", apperr.ErrInvalidInput)
				case next == label:
					return fmt.Errorf("settings: option %q was not changed: %w", label, apperr.ErrInvalidInput)
				case r.Column.FindOption(next) >= 0:
					return fmt.Errorf("settings: duplicate option %q: %w", next, apperr.ErrInvalidInput)
				}
				return edit(state.ActionEditOption, map[string]any{"option": label, "new_option": next})
			})
			row.ColorPicker(prefix+".color", "Color", opt.Color, func(v string) error {
				return edit(state.ActionEditOption, map[string]any{"option": label, "color": v})
			})
			row.Button(prefix+".delete", "Delete", "", func() error {
				return edit(state.ActionRemoveOption, map[string]any{"option": label})
			})
		}
		return s.GoNext(r)
	})
}

func formulaInputHandler() *chain.Step[*Response] {
	return chain.Func(TitleFormulaInput, func(s *chain.Step[*Response], r *Response) *Response {
		current := r.Column.Config.FormulaQuery
		if err := formula.Check(current); err != nil {
			s.AddError(err.Error())
		}
		if !r.View.Automation.Enabled() {
			s.AddError("formulas are disabled for this database")
		}
		r.Container.Text("formula_query", "Formula", "Template evaluated for each row", current,
			func(v string) error {
				if err := formula.Check(v); err != nil {
					return err
				}
				return r.setColumnConfig("formula_query", v)
			})
		return s.GoNext(r)
	})
}

func relatedNoteHandler() *chain.Step[*Response] {
	return chain.Func(TitleRelatedNote, func(s *chain.Step[*Response], r *Response) *Response {
		var suggestions []string
		if r.Index != nil {
			dbs, err := r.Index.Databases()
			if err != nil {
				s.AddError(err.Error())
			}
			for _, n := range dbs {
				if n.Path != r.View.Config().Path() {
					suggestions = append(suggestions, n.Path)
				}
			}
		}
		current := r.Column.Config.RelatedNotePath
		if current == "" {
			s.AddError("related note path is empty")
		}
		r.Container.Search("related_note_path", "Related database", "Database whose notes this column links to",
			current, suggestions,
			func(v string) error { return r.setColumnConfig("related_note_path", strings.TrimSpace(v)) })
		return s.GoNext(r)
	})
}

func rollupRelationHandler() *chain.Step[*Response] {
	return chain.Func(TitleRollupRelation, func(s *chain.Step[*Response], r *Response) *Response {
		var opts []ui.Option
		for _, col := range r.View.Columns.All().Ordered() {
			if col.Input == models.InputRelation {
				opts = append(opts, ui.Option{Value: col.ID, Label: col.Label})
			}
		}
		if len(opts) == 0 {
			s.AddError("no relation column to roll up")
			return s.Stop(r)
		}
		r.Container.Dropdown("asociated_relation_id", "Relation", "Relation column to aggregate over",
			r.Column.Config.AsociatedRelationID, opts,
			func(v string) error { return r.setColumnConfig("asociated_relation_id", v) })
		return s.GoNext(r)
	})
}

func rollupActionHandler() *chain.Step[*Response] {
	return chain.Func(TitleRollupAction, func(s *chain.Step[*Response], r *Response) *Response {
		r.Container.Dropdown("rollup_action", "Action", "", r.Column.Config.RollupAction, ui.Options(rollup.Actions()...),
			func(v string) error { return r.setColumnConfig("rollup_action", v) })
		return s.GoNext(r)
	})
}

// rollupKeyHandler renders the key picker of value actions. Embed actions
// work on task lists and end the chain without a key control.
func rollupKeyHandler() *chain.Step[*Response] {
	return chain.Func(TitleRollupKey, func(s *chain.Step[*Response], r *Response) *Response {
		cfg := r.Column.Config
		if rollup.IsEmbed(cfg.RollupAction) {
			return s.Stop(r)
		}
		cols := r.View.Columns.All()
		relation, ok := cols[cfg.AsociatedRelationID]
		if !ok {
			s.AddError(fmt.Sprintf("relation column %q not found", cfg.AsociatedRelationID))
			return s.Stop(r)
		}

		var fields []string
		if r.Query != nil && relation.Config.RelatedNotePath != "" {
			var err error
			fields, err = r.Query.ResolveFields(r.Ctx, relation.Config.RelatedNotePath, r.View.Settings.Local(), cols)
			if err != nil {
				s.AddError(err.Error())
			}
		}
		c := r.Container.Search("rollup_key", "Key", "Field of the related notes to aggregate", cfg.RollupKey, fields,
			func(v string) error {
				v = strings.TrimSpace(v)
				if v == "" {
					return fmt.Errorf("settings: %w: %w", rollup.ErrKeyRequired, apperr.ErrInvalidInput)
				}
				return r.setColumnConfig("rollup_key", v)
			})
		if cfg.RollupKey == "" {
			c.Required = true
			s.AddError(rollup.ErrKeyRequired.Error())
		}
		return s.GoNext(r)
	})
}
