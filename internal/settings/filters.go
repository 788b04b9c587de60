package settings

import (
	"context"
	"fmt"
	"sync"

	"github.com/starford/dbfolder/internal/apperr"
	"github.com/starford/dbfolder/internal/chain"
	"github.com/starford/dbfolder/internal/filter"
	"github.com/starford/dbfolder/internal/models"
	"github.com/starford/dbfolder/internal/state"
	"github.com/starford/dbfolder/internal/ui"
)

// Filter handler titles.
const (
	TitleFiltersEnabled = "filters enabled"
	TitleFilterGroup    = "filter group"
	TitleAddFilter      = "add new filter"
)

var (
	filtersOnce  sync.Once
	filtersChain *chain.Chain[*Response]
)

func filtersSection() *chain.Chain[*Response] {
	filtersOnce.Do(func() {
		filtersChain = newSection("filters", "Filters", filtersEnabledHandler(), filterGroupHandler(), addFilterHandler())
	})
	return filtersChain
}

// RenderFilters builds the filter editor of t.View.
func RenderFilters(ctx context.Context, t Target) (*ui.Form, map[string][]string, error) {
	if t.View == nil {
		return nil, nil, fmt.Errorf("settings: filters need a database: %w", apperr.ErrInvalidInput)
	}
	f := ui.NewForm("filters", "Filters")
	r := t.response(ctx, f)
	filtersSection().Handle(r)
	return f, r.Errors, nil
}

// editFilters applies fn to the current filter tree and stores the result.
func (r *Response) editFilters(fn func(models.Filters) (models.Filters, error)) error {
	fs := r.View.Settings.Filters()
	next, err := fn(fs.Conditions)
	if err != nil {
		return err
	}
	fs.Conditions = next
	return r.dispatch(state.DomainConfig, state.ActionAlterFilters, map[string]any{"filters": fs})
}

// editNode replaces the node at p with the result of fn applied to a copy.
func (r *Response) editNode(p filter.Path, fn func(models.Filter) error) error {
	return r.editFilters(func(list models.Filters) (models.Filters, error) {
		node, err := filter.At(list, p)
		if err != nil {
			return nil, err
		}
		cp := models.CloneFilter(node)
		if err := fn(cp); err != nil {
			return nil, err
		}
		return filter.Replace(list, p, cp)
	})
}

func filtersEnabledHandler() *chain.Step[*Response] {
	return chain.Func(TitleFiltersEnabled, func(s *chain.Step[*Response], r *Response) *Response {
		enabled := r.View.Settings.Filters().Enabled
		r.Container.Toggle("filters.enabled", "Enabled", "Apply the filters below to the rows", enabled,
			func(v bool) error {
				if v == r.View.Settings.Filters().Enabled {
					return nil
				}
				return r.dispatch(state.DomainConfig, state.ActionToggleFilters, nil)
			})
		return s.GoNext(r)
	})
}

// filterGroupHandler renders the whole filter tree, whatever its depth.
func filterGroupHandler() *chain.Step[*Response] {
	return chain.Func(TitleFilterGroup, func(s *chain.Step[*Response], r *Response) *Response {
		fields := filterFields(r.View.Columns.All())
		for i, node := range r.View.Settings.Filters().Conditions {
			r.renderFilter(s, r.Container, filter.Path{i}, node, fields)
		}
		return s.GoNext(r)
	})
}

func (r *Response) renderFilter(s *chain.Step[*Response], c ui.Container, p filter.Path, node models.Filter, fields []ui.Option) {
	id := "filters." + p.String()
	switch n := node.(type) {
	case *models.AtomicFilter:
		if !hasOption(fields, n.Field) {
			s.AddError(fmt.Sprintf("filter %s uses unknown field %q", p, n.Field))
		}
		row := c.Section(id, n.Field)
		row.Dropdown(id+".field", "Field", "", n.Field, fields, func(v string) error {
			return r.editNode(p, func(f models.Filter) error {
				f.(*models.AtomicFilter).Field = v
				return nil
			})
		})
		row.Dropdown(id+".operator", "Operator", "", n.Operator, ui.Options(models.Operators()...), func(v string) error {
			return r.editNode(p, func(f models.Filter) error {
				f.(*models.AtomicFilter).Operator = v
				return nil
			})
		})
		if n.Operator != models.OperatorIsEmpty && n.Operator != models.OperatorIsNotEmpty {
			row.Text(id+".value", "Value", "", n.Value, func(v string) error {
				return r.editNode(p, func(f models.Filter) error {
					f.(*models.AtomicFilter).Value = v
					return nil
				})
			})
		}
		row.Button(id+".delete", "Delete", "", func() error { return r.removeFilter(p) })

	case *models.ConditionGroup:
		title := n.Label
		if title == "" {
			title = n.Condition
		}
		group := c.Section(id, title)
		group.Dropdown(id+".condition", "Condition", "", n.Condition, ui.Options(models.ConditionAnd, models.ConditionOr),
			func(v string) error {
				return r.editNode(p, func(f models.Filter) error {
					f.(*models.ConditionGroup).Condition = v
					return nil
				})
			})
		group.Toggle(id+".disabled", "Disabled", "A disabled group matches every row", n.Disabled, func(v bool) error {
			return r.editNode(p, func(f models.Filter) error {
				f.(*models.ConditionGroup).Disabled = v
				return nil
			})
		})
		group.Text(id+".label", "Label", "", n.Label, func(v string) error {
			return r.editNode(p, func(f models.Filter) error {
				f.(*models.ConditionGroup).Label = v
				return nil
			})
		})
		group.ColorPicker(id+".color", "Color", n.Color, func(v string) error {
			return r.editNode(p, func(f models.Filter) error {
				f.(*models.ConditionGroup).Color = v
				return nil
			})
		})
		for i, child := range n.Filters {
			r.renderFilter(s, group, append(append(filter.Path(nil), p...), i), child, fields)
		}
		r.addButtons(group, id, p, fields)
		group.Button(id+".delete", "Delete group", "", func() error { return r.removeFilter(p) })
	}
}

func (r *Response) removeFilter(p filter.Path) error {
	return r.editFilters(func(list models.Filters) (models.Filters, error) {
		return filter.Remove(list, p)
	})
}

// addButtons renders the controls appending an atomic filter or a group
// under parent.
func (r *Response) addButtons(c ui.Container, id string, parent filter.Path, fields []ui.Option) {
	c.Button(id+".add", "Add filter", "", func() error {
		if len(fields) == 0 {
			return fmt.Errorf("settings: no field to filter on: %w", apperr.ErrInvalidInput)
		}
		f := &models.AtomicFilter{Field: fields[0].Value, Operator: models.OperatorContains, Type: r.fieldType(fields[0].Value)}
		return r.editFilters(func(list models.Filters) (models.Filters, error) {
			return filter.Insert(list, parent, f)
		})
	})
	c.Button(id+".add_group", "Add group", "", func() error {
		g := &models.ConditionGroup{Condition: models.ConditionAnd, Filters: models.Filters{}}
		return r.editFilters(func(list models.Filters) (models.Filters, error) {
			return filter.Insert(list, parent, g)
		})
	})
}

func addFilterHandler() *chain.Step[*Response] {
	return chain.Func(TitleAddFilter, func(s *chain.Step[*Response], r *Response) *Response {
		r.addButtons(r.Container, "filters", nil, filterFields(r.View.Columns.All()))
		return s.GoNext(r)
	})
}

func (r *Response) fieldType(key string) string {
	if col := r.View.Columns.All().ByKey(key); col != nil {
		return string(col.Input)
	}
	return string(models.InputText)
}

// filterFields lists the columns a filter can compare, in column order.
func filterFields(cols models.Columns) []ui.Option {
	var out []ui.Option
	for _, col := range cols.Ordered() {
		if col.SkipPersist {
			continue
		}
		out = append(out, ui.Option{Value: col.Key, Label: col.Label})
	}
	return out
}

func hasOption(opts []ui.Option, value string) bool {
	for _, o := range opts {
		if o.Value == value {
			return true
		}
	}
	return false
}
