package view

import (
	"context"
	"fmt"

	"github.com/starford/dbfolder/internal/apperr"
	"github.com/starford/dbfolder/internal/settings"
	"github.com/starford/dbfolder/internal/ui"
)

// Form kinds of a view.
const (
	FormSettings = "settings"
	FormColumn   = "column"
	FormFilters  = "filters"
)

// Form is a rendered settings form and what its handlers reported.
type Form struct {
	Form   *ui.Form            `json:"form"`
	Errors map[string][]string `json:"errors,omitempty"`
}

func newForm(f *ui.Form, errs map[string][]string) *Form {
	if len(errs) == 0 {
		errs = nil
	}
	return &Form{Form: f, Errors: errs}
}

func (v *View) target() settings.Target {
	return settings.Target{View: v.state, Global: v.deps.Global, Index: v.deps.Index, Query: v.deps.Query}
}

// Form renders the form of kind. column names the column of a column form.
func (v *View) Form(ctx context.Context, kind, column string) (*Form, error) {
	switch kind {
	case FormSettings:
		return newForm(settings.Render(ctx, v.target())), nil
	case FormColumn:
		f, errs, err := settings.RenderColumn(ctx, v.target(), column)
		if err != nil {
			return nil, err
		}
		return newForm(f, errs), nil
	case FormFilters:
		f, errs, err := settings.RenderFilters(ctx, v.target())
		if err != nil {
			return nil, err
		}
		return newForm(f, errs), nil
	}
	return nil, fmt.Errorf("view: form %q: %w", kind, apperr.ErrNotFound)
}

// ApplyForm sets control id of a freshly rendered form to value and returns
// the form rendered again.
func (v *View) ApplyForm(ctx context.Context, kind, column, id string, value any) (*Form, error) {
	f, err := v.Form(ctx, kind, column)
	if err != nil {
		return nil, err
	}
	before := v.state.Settings.Local()
	if err := f.Form.Apply(id, value); err != nil {
		return nil, err
	}
	if err := v.afterChange(ctx, before); err != nil {
		return nil, err
	}
	return v.Form(ctx, kind, column)
}

// GlobalForm renders the service-wide settings form.
func GlobalForm(ctx context.Context, d Deps) *Form {
	return newForm(settings.Render(ctx, settings.Target{Global: d.Global, Index: d.Index, Query: d.Query}))
}

// ApplyGlobalForm sets control id of the service-wide form to value.
func ApplyGlobalForm(ctx context.Context, d Deps, id string, value any) (*Form, error) {
	if err := GlobalForm(ctx, d).Form.Apply(id, value); err != nil {
		return nil, err
	}
	return GlobalForm(ctx, d), nil
}
