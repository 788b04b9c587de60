package settings

import (
	"context"
	"errors"
	"sort"

	"github.com/starford/dbfolder/internal/chain"
	"github.com/starford/dbfolder/internal/index"
	"github.com/starford/dbfolder/internal/models"
	"github.com/starford/dbfolder/internal/query"
	"github.com/starford/dbfolder/internal/state"
	"github.com/starford/dbfolder/internal/ui"
)

// Response travels through a settings chain. Local selects the view's disk
// configuration as the target of local settings; otherwise they become the
// defaults of new databases.
type Response struct {
	Ctx       context.Context
	Container ui.Container
	Local     bool
	View      *state.TableState
	Global    *GlobalStore
	Index     index.NoteIndex
	Query     *query.Service
	Column    *models.Column
	Errors    map[string][]string
}

// ErrorMap implements chain.Response.
func (r *Response) ErrorMap() map[string][]string {
	return r.Errors
}

// Target names what a form edits. A nil View renders the service-wide form.
type Target struct {
	View   *state.TableState
	Global *GlobalStore
	Index  index.NoteIndex
	Query  *query.Service
}

func (t Target) response(ctx context.Context, f *ui.Form) *Response {
	return &Response{
		Ctx:       ctx,
		Container: f.Root(),
		Local:     t.View != nil,
		View:      t.View,
		Global:    t.Global,
		Index:     t.Index,
		Query:     t.Query,
		Errors:    make(map[string][]string),
	}
}

// Render builds the settings form of t. The returned map holds what the
// handlers reported, keyed by handler title.
func Render(ctx context.Context, t Target) (*ui.Form, map[string][]string) {
	f := ui.NewForm("settings", "Settings")
	r := t.response(ctx, f)
	for _, s := range sections() {
		if r.Local && s.globalOnly || !r.Local && s.localOnly {
			continue
		}
		s.chain.Handle(r)
	}
	return f, r.Errors
}

type section struct {
	globalOnly bool
	localOnly  bool
	chain      *chain.Chain[*Response]
}

// newSection links handlers behind a pre-step that opens the section
// header, so each handler renders inside it.
func newSection(id, title string, handlers ...chain.Handler[*Response]) *chain.Chain[*Response] {
	return chain.New(handlers...).WithPreStep(func(r *Response) *Response {
		out := *r
		out.Container = r.Container.Section(id, title)
		return &out
	})
}

func (r *Response) local() models.LocalSettings {
	if r.Local {
		return r.View.Settings.Local()
	}
	return r.Global.Settings().LocalSettings
}

func (r *Response) global() models.GlobalSettings {
	if r.Global == nil {
		return models.DefaultSettings().GlobalSettings
	}
	return r.Global.Settings().GlobalSettings
}

// dispatch runs an action against the view.
func (r *Response) dispatch(domain, actionType string, payload any) error {
	a, err := state.NewAction(actionType, payload)
	if err != nil {
		return err
	}
	return r.View.Dispatch(r.Ctx, domain, a)
}

// setLocal writes one local setting to its target.
func (r *Response) setLocal(key string, value any) error {
	if r.Local {
		return r.dispatch(state.DomainConfig, state.ActionAlterConfig, map[string]any{"config": map[string]any{key: value}})
	}
	return r.Global.UpdateLocalDefaults(map[string]any{key: value})
}

// setGlobal writes one global setting, through the view when there is one.
func (r *Response) setGlobal(key string, value any) error {
	patch := map[string]any{key: value}
	if r.View != nil {
		return r.dispatch(state.DomainConfig, state.ActionAlterGlobalSettings, map[string]any{"config": patch})
	}
	if r.Global == nil {
		return errors.New("settings: no global settings store")
	}
	return r.Global.UpdateGlobal(patch)
}

func (r *Response) localToggle(key, name, desc string, value bool) *ui.Control {
	return r.Container.Toggle(key, name, desc, value, func(v bool) error { return r.setLocal(key, v) })
}

func (r *Response) localText(key, name, desc, value string) *ui.Control {
	return r.Container.Text(key, name, desc, value, func(v string) error { return r.setLocal(key, v) })
}

func (r *Response) globalToggle(key, name, desc string, value bool) *ui.Control {
	return r.Container.Toggle(key, name, desc, value, func(v bool) error { return r.setGlobal(key, v) })
}

// folders returns every folder holding a note, root first.
func (r *Response) folders() []string {
	if r.Index == nil {
		return nil
	}
	paths, err := r.Index.AllPaths()
	if err != nil {
		return nil
	}
	seen := map[string]struct{}{"/": {}}
	for p := range paths {
		if dir := index.FolderOf(p); dir != "" {
			seen[dir] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// notes returns every indexed note path.
func (r *Response) notes() []string {
	if r.Index == nil {
		return nil
	}
	paths, err := r.Index.AllPaths()
	if err != nil {
		return nil
	}
	return sortedKeys(paths)
}

// tags returns every tag used in the vault.
func (r *Response) tags() []string {
	if r.Index == nil {
		return nil
	}
	notes, err := r.Index.NotesInFolder("", true)
	if err != nil {
		return nil
	}
	seen := map[string]struct{}{}
	for _, n := range notes {
		for _, t := range n.Tags {
			seen[t] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
