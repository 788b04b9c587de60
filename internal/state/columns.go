package state

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/cast"

	"github.com/starford/dbfolder/internal/apperr"
	"github.com/starford/dbfolder/internal/chain"
	"github.com/starford/dbfolder/internal/diskconfig"
	"github.com/starford/dbfolder/internal/models"
	"github.com/starford/dbfolder/internal/rollup"
)

// Column actions.
const (
	ActionAddColumn         = "add_column"
	ActionRemoveColumn      = "remove_column"
	ActionAlterSorting      = "alter_sorting"
	ActionAddOption         = "add_option"
	ActionEditOption        = "edit_option"
	ActionRemoveOption      = "remove_option"
	ActionAlterType         = "alter_type"
	ActionAlterLabel        = "alter_label"
	ActionAlterSize         = "alter_size"
	ActionAlterHidden       = "alter_hidden"
	ActionAlterID           = "alter_id"
	ActionAlterColumnConfig = "alter_config"
)

var columnActions = []string{
	ActionAddColumn, ActionRemoveColumn, ActionAlterSorting, ActionAddOption,
	ActionEditOption, ActionRemoveOption, ActionAlterType, ActionAlterLabel,
	ActionAlterSize, ActionAlterHidden, ActionAlterID, ActionAlterColumnConfig,
}

// optionColors is cycled through when an option is added without a color.
var optionColors = []string{
	"hsl(0, 95%, 90%)", "hsl(30, 95%, 90%)", "hsl(60, 95%, 90%)",
	"hsl(120, 95%, 90%)", "hsl(180, 95%, 90%)", "hsl(240, 95%, 90%)",
	"hsl(300, 95%, 90%)",
}

// ColumnsStore mutates the column definitions of a view.
type ColumnsStore struct {
	cfg     *diskconfig.Config
	data    *DataStore
	sorting *SortingStore
}

// All returns a copy of the column definitions.
func (c *ColumnsStore) All() models.Columns {
	return c.cfg.Yaml().Columns
}

func (c *ColumnsStore) column(id string) (*models.Column, error) {
	col, ok := c.cfg.Yaml().Columns[id]
	if !ok {
		return nil, fmt.Errorf("state: column %s: %w", id, apperr.ErrNotFound)
	}
	return col, nil
}

func labelTaken(cols models.Columns, label, exceptID string) bool {
	for id, col := range cols {
		if id != exceptID && strings.EqualFold(col.Label, label) {
			return true
		}
	}
	return false
}

func columnID(label string) string {
	return strings.Join(strings.Fields(strings.ToLower(label)), "_")
}

func uniqueID(cols models.Columns, base string) string {
	if base == "" {
		base = "column"
	}
	id := base
	for n := 1; ; n++ {
		if _, taken := cols[id]; !taken && models.MetadataColumn(id) == nil {
			return id
		}
		id = fmt.Sprintf("%s%d", base, n)
	}
}

func nextLabel(cols models.Columns) string {
	for n := len(cols) + 1; ; n++ {
		label := fmt.Sprintf("Column %d", n)
		if !labelTaken(cols, label, "") {
			return label
		}
	}
}

// AddColumnRequest describes a new column. TemplateID duplicates an
// existing column's type, options, and config.
type AddColumnRequest struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Input      string `json:"input"`
	TemplateID string `json:"template_id"`
}

// AddColumn appends a column after the last one and returns its id.
func (c *ColumnsStore) AddColumn(req AddColumnRequest) (string, error) {
	db := c.cfg.Yaml()
	label := strings.TrimSpace(req.Label)

	var col *models.Column
	if req.TemplateID != "" {
		tmpl, ok := db.Columns[req.TemplateID]
		if !ok {
			return "", fmt.Errorf("state: template column %s: %w", req.TemplateID, apperr.ErrNotFound)
		}
		col = tmpl.Clone()
		col.IsSorted, col.IsSortedDesc, col.SortIndex = false, false, 0
		if label == "" {
			label = tmpl.Label + " copy"
		}
	}
	if label == "" {
		label = nextLabel(db.Columns)
	}
	if labelTaken(db.Columns, label, "") {
		return "", invalid("column label %q already exists", label)
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uniqueID(db.Columns, columnID(label))
	} else if models.MetadataColumn(id) != nil {
		return "", invalid("column id %q is reserved", id)
	}

	if col == nil {
		input := models.InputType(req.Input)
		if input == "" {
			input = models.InputText
		}
		if !slices.Contains(models.UserSelectable(), input) {
			return "", invalid("column input %q", req.Input)
		}
		col = models.NewColumn(id, label, input)
	}
	col.ID, col.Key, col.AccessorKey, col.Label = id, id, id, label
	col.Position = db.Columns.NextPosition()
	if err := c.cfg.AddColumn(col); err != nil {
		return "", err
	}
	return id, nil
}

// RemoveColumn deletes column id. With remove_field_when_delete_column the
// field is stripped from every row.
func (c *ColumnsStore) RemoveColumn(ctx context.Context, id string) error {
	db := c.cfg.Yaml()
	col, ok := db.Columns[id]
	if !ok {
		return fmt.Errorf("state: column %s: %w", id, apperr.ErrNotFound)
	}
	if err := c.cfg.RemoveColumn(id); err != nil {
		return err
	}
	if db.Config.RemoveFieldWhenDeleteColumn && persisted(col) {
		if _, err := c.data.RemoveFieldForAllRows(ctx, col.Key); err != nil {
			return err
		}
	}
	return nil
}

// AddOption appends an option to a select or tags column.
func (c *ColumnsStore) AddOption(id, label, color string) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return invalid("option label is empty")
	}
	return c.cfg.Mutate(func(db *models.DatabaseYaml) error {
		col, ok := db.Columns[id]
		if !ok {
			return fmt.Errorf("state: column %s: %w", id, apperr.ErrNotFound)
		}
		if col.Input != models.InputSelect && col.Input != models.InputTags {
			return invalid("column %s has no options", id)
		}
		if col.FindOption(label) >= 0 {
			return invalid("option %q already exists", label)
		}
		if len(col.Options) >= models.MaxOptions {
			return invalid("more than %d options", models.MaxOptions)
		}
		if color == "" {
			color = optionColors[len(col.Options)%len(optionColors)]
		}
		col.Options = append(col.Options, models.SelectOption{Label: label, Color: color})
		return nil
	})
}

// EditOption renames or recolors option label of column id. A rename is
// applied to every row holding the old label.
func (c *ColumnsStore) EditOption(ctx context.Context, id, label, newLabel, color string) error {
	newLabel = strings.TrimSpace(newLabel)
	if newLabel == "" {
		newLabel = label
	}
	var key string
	err := c.cfg.Mutate(func(db *models.DatabaseYaml) error {
		col, ok := db.Columns[id]
		if !ok {
			return fmt.Errorf("state: column %s: %w", id, apperr.ErrNotFound)
		}
		i := col.FindOption(label)
		if i < 0 {
			return fmt.Errorf("state: option %q: %w", label, apperr.ErrNotFound)
		}
		if newLabel != label && col.FindOption(newLabel) >= 0 {
			return invalid("option %q already exists", newLabel)
		}
		col.Options[i].Label = newLabel
		if color != "" {
			col.Options[i].Color = color
		}
		key = col.Key
		return nil
	})
	if err != nil || newLabel == label {
		return err
	}
	_, err = c.data.EditOptionForAllRows(ctx, key, label, newLabel)
	return err
}

// RemoveOption deletes option label of column id and clears it from every
// row.
func (c *ColumnsStore) RemoveOption(ctx context.Context, id, label string) error {
	var key string
	err := c.cfg.Mutate(func(db *models.DatabaseYaml) error {
		col, ok := db.Columns[id]
		if !ok {
			return fmt.Errorf("state: column %s: %w", id, apperr.ErrNotFound)
		}
		i := col.FindOption(label)
		if i < 0 {
			return fmt.Errorf("state: option %q: %w", label, apperr.ErrNotFound)
		}
		col.Options = append(col.Options[:i], col.Options[i+1:]...)
		key = col.Key
		return nil
	})
	if err != nil {
		return err
	}
	_, err = c.data.RemoveOptionForAllRows(ctx, key, label)
	return err
}

// AlterType changes the input type of column id. A column becoming select
// or tags without options collects them from the row values.
func (c *ColumnsStore) AlterType(id, input string) error {
	t := models.InputType(input)
	if !slices.Contains(models.UserSelectable(), t) {
		return invalid("column input %q", input)
	}
	var options []models.SelectOption
	if t == models.InputSelect || t == models.InputTags {
		col, err := c.column(id)
		if err != nil {
			return err
		}
		options = c.collectOptions(col)
	}
	return c.cfg.Mutate(func(db *models.DatabaseYaml) error {
		col, ok := db.Columns[id]
		if !ok {
			return fmt.Errorf("state: column %s: %w", id, apperr.ErrNotFound)
		}
		col.Input = t
		if len(col.Options) == 0 && options != nil {
			col.Options = options
		}
		return nil
	})
}

func (c *ColumnsStore) collectOptions(col *models.Column) []models.SelectOption {
	seen := make(map[string]struct{})
	add := func(v any) {
		s := strings.TrimSpace(cast.ToString(v))
		if s != "" {
			seen[s] = struct{}{}
		}
	}
	for _, row := range c.data.Rows() {
		switch v := row.Values[col.Key].(type) {
		case []any:
			for _, item := range v {
				add(item)
			}
		case nil:
		default:
			add(v)
		}
	}
	labels := make([]string, 0, len(seen))
	for s := range seen {
		labels = append(labels, s)
	}
	sort.Strings(labels)
	if len(labels) > models.MaxOptions {
		labels = labels[:models.MaxOptions]
	}
	out := make([]models.SelectOption, len(labels))
	for i, l := range labels {
		out[i] = models.SelectOption{Label: l, Color: optionColors[i%len(optionColors)]}
	}
	return out
}

// AlterLabel renames the label of column id.
func (c *ColumnsStore) AlterLabel(id, label string) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return invalid("column label is empty")
	}
	return c.cfg.Mutate(func(db *models.DatabaseYaml) error {
		col, ok := db.Columns[id]
		if !ok {
			return fmt.Errorf("state: column %s: %w", id, apperr.ErrNotFound)
		}
		if labelTaken(db.Columns, label, id) {
			return invalid("column label %q already exists", label)
		}
		col.Label = label
		return nil
	})
}

// AlterSize sets the width of column id.
func (c *ColumnsStore) AlterSize(id string, width int) error {
	if width <= 0 {
		return invalid("column width %d", width)
	}
	return c.cfg.UpdateColumnProperties(id, map[string]any{"width": width})
}

// AlterHidden shows or hides column id.
func (c *ColumnsStore) AlterHidden(id string, hidden bool) error {
	return c.cfg.UpdateColumnProperties(id, map[string]any{"isHidden": hidden})
}

// AlterID renames column id to newID, moving the field in every row and
// repointing rollups that use the column as their relation.
func (c *ColumnsStore) AlterID(ctx context.Context, id, newID string) error {
	newID = strings.TrimSpace(newID)
	if newID == "" {
		return invalid("column id is empty")
	}
	if models.MetadataColumn(newID) != nil {
		return invalid("column id %q is reserved", newID)
	}
	col, err := c.column(id)
	if err != nil {
		return err
	}
	if newID == id {
		return nil
	}
	if err := c.cfg.UpdateColumnKey(id, newID); err != nil {
		return err
	}
	if !persisted(col) {
		return nil
	}
	_, err = c.data.RenameFieldForAllRows(ctx, col.Key, newID)
	return err
}

// AlterConfig merges patch into the config of column id.
func (c *ColumnsStore) AlterConfig(id string, patch map[string]any) error {
	if v, ok := patch["rollup_action"]; ok {
		action := cast.ToString(v)
		if action != "" && !slices.Contains(rollup.Actions(), action) {
			return invalid("rollup action %q", action)
		}
	}
	if v, ok := patch["content_alignment"]; ok {
		switch cast.ToString(v) {
		case "", models.AlignLeft, models.AlignCenter, models.AlignRight,
			models.AlignJustify, models.AlignNoWrap, models.AlignWrap:
		default:
			return invalid("content alignment %q", v)
		}
	}
	return c.cfg.UpdateColumnConfig(id, patch)
}

type columnPayload struct {
	AddColumnRequest
	NewID     string          `json:"new_id"`
	Width     int             `json:"width"`
	Hidden    bool            `json:"hidden"`
	Option    string          `json:"option"`
	NewOption string          `json:"new_option"`
	Color     string          `json:"color"`
	Config    map[string]any  `json:"config"`
	Sorting   []SortCriterion `json:"sorting"`
}

func (c *ColumnsStore) chain() *chain.Chain[*Response] {
	handle := func(actionType string, fn func(ctx context.Context, p columnPayload) error) chain.Handler[*Response] {
		return on(actionType, func(ctx context.Context, a Action) error {
			p, err := decodePayload[columnPayload](a)
			if err != nil {
				return err
			}
			return fn(ctx, p)
		})
	}
	return chain.New(
		handle(ActionAddColumn, func(_ context.Context, p columnPayload) error {
			_, err := c.AddColumn(p.AddColumnRequest)
			return err
		}),
		handle(ActionRemoveColumn, func(ctx context.Context, p columnPayload) error {
			return c.RemoveColumn(ctx, p.ID)
		}),
		handle(ActionAlterSorting, func(_ context.Context, p columnPayload) error {
			return c.sorting.Set(p.Sorting)
		}),
		handle(ActionAddOption, func(_ context.Context, p columnPayload) error {
			return c.AddOption(p.ID, p.Option, p.Color)
		}),
		handle(ActionEditOption, func(ctx context.Context, p columnPayload) error {
			return c.EditOption(ctx, p.ID, p.Option, p.NewOption, p.Color)
		}),
		handle(ActionRemoveOption, func(ctx context.Context, p columnPayload) error {
			return c.RemoveOption(ctx, p.ID, p.Option)
		}),
		handle(ActionAlterType, func(_ context.Context, p columnPayload) error {
			return c.AlterType(p.ID, p.Input)
		}),
		handle(ActionAlterLabel, func(_ context.Context, p columnPayload) error {
			return c.AlterLabel(p.ID, p.Label)
		}),
		handle(ActionAlterSize, func(_ context.Context, p columnPayload) error {
			return c.AlterSize(p.ID, p.Width)
		}),
		handle(ActionAlterHidden, func(_ context.Context, p columnPayload) error {
			return c.AlterHidden(p.ID, p.Hidden)
		}),
		handle(ActionAlterID, func(ctx context.Context, p columnPayload) error {
			return c.AlterID(ctx, p.ID, p.NewID)
		}),
		handle(ActionAlterColumnConfig, func(_ context.Context, p columnPayload) error {
			return c.AlterConfig(p.ID, p.Config)
		}),
	)
}
