package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/starford/dbfolder/internal/apperr"
	"github.com/starford/dbfolder/internal/index"
	"github.com/starford/dbfolder/internal/models"
	"github.com/starford/dbfolder/internal/persist"
	"github.com/starford/dbfolder/internal/state"
)

// Notifier receives the changes clients should react to.
type Notifier interface {
	DatabaseUpdated(database, op string)
	RowsUpdated(database, op, path string)
}

type nopNotifier struct{}

func (nopNotifier) DatabaseUpdated(string, string) {}
func (nopNotifier) RowsUpdated(string, string, string) {}

// Manager caches the open views of the process and keeps them in step with
// the vault.
type Manager struct {
	deps     Deps
	notifier Notifier
	logger   *slog.Logger

	mu    sync.Mutex
	views map[string]*View
}

// NewManager returns a manager without open views. A nil notifier drops
// change notifications.
func NewManager(d Deps, n Notifier) *Manager {
	if n == nil {
		n = nopNotifier{}
	}
	return &Manager{deps: d, notifier: n, logger: d.Logger, views: make(map[string]*View)}
}

// Deps returns the collaborators the manager opens views with.
func (m *Manager) Deps() Deps {
	return m.deps
}

// View returns the open view of the database note at p, opening it on
// first use.
func (m *Manager) View(ctx context.Context, p string) (*View, error) {
	p = strings.TrimPrefix(p, "/")
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.views[p]; ok {
		return v, nil
	}
	v, err := Open(ctx, m.deps, p)
	if err != nil {
		return nil, err
	}
	m.views[p] = v
	m.logger.Debug("view opened", "database", p)
	return v, nil
}

// Open returns the paths of the open views, sorted.
func (m *Manager) Open() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.views))
	for p := range m.views {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Evict forgets the view of p. The next request opens it again.
func (m *Manager) Evict(p string) {
	m.mu.Lock()
	delete(m.views, p)
	m.mu.Unlock()
}

func (m *Manager) snapshot() []*View {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*View, 0, len(m.views))
	for _, v := range m.views {
		out = append(out, v)
	}
	return out
}

// Table renders the database at p.
func (m *Manager) Table(ctx context.Context, p string) (*Table, error) {
	v, err := m.View(ctx, p)
	if err != nil {
		return nil, err
	}
	return v.Table(ctx)
}

// Dispatch applies a to the database at p and notifies clients.
func (m *Manager) Dispatch(ctx context.Context, p, domain string, a state.Action) error {
	v, err := m.View(ctx, p)
	if err != nil {
		return err
	}
	if err := v.Dispatch(ctx, domain, a); err != nil {
		return err
	}
	if domain == state.DomainData {
		m.notifier.RowsUpdated(v.Path(), a.Type, "")
	} else {
		m.notifier.DatabaseUpdated(v.Path(), a.Type)
	}
	return nil
}

// Form renders a form of the database at p.
func (m *Manager) Form(ctx context.Context, p, kind, column string) (*Form, error) {
	v, err := m.View(ctx, p)
	if err != nil {
		return nil, err
	}
	return v.Form(ctx, kind, column)
}

// ApplyForm edits one control of a form of the database at p.
func (m *Manager) ApplyForm(ctx context.Context, p, kind, column, id string, value any) (*Form, error) {
	v, err := m.View(ctx, p)
	if err != nil {
		return nil, err
	}
	f, err := v.ApplyForm(ctx, kind, column, id, value)
	if err != nil {
		return nil, err
	}
	m.notifier.DatabaseUpdated(v.Path(), "settings")
	return f, nil
}

// GlobalForm renders the service-wide settings form.
func (m *Manager) GlobalForm(ctx context.Context) *Form {
	return GlobalForm(ctx, m.deps)
}

// ApplyGlobalForm edits one control of the service-wide settings form.
func (m *Manager) ApplyGlobalForm(ctx context.Context, id string, value any) (*Form, error) {
	return ApplyGlobalForm(ctx, m.deps, id, value)
}

// Status returns the persistence state of every written note.
func (m *Manager) Status() []persist.State {
	return m.deps.Tracker.Snapshot()
}

// Flush waits for pending configuration writes.
func (m *Manager) Flush(ctx context.Context) error {
	return m.deps.Tracker.Flush(ctx)
}

// HandleNoteEvent applies a watcher event to every open view. It has the
// shape of index.EventCallback once bound to a context.
func (m *Manager) HandleNoteEvent(ctx context.Context, kind, p string) {
	for _, v := range m.snapshot() {
		if p == v.Path() {
			m.databaseChanged(ctx, v, kind)
			continue
		}
		changed, err := v.noteChanged(ctx, kind, p)
		if err != nil {
			m.logger.Warn("refresh rows", "database", v.Path(), "path", p, "error", err)
			continue
		}
		if changed {
			m.notifier.RowsUpdated(v.Path(), kind, p)
		}
	}
}

// databaseChanged follows an edit of the database note itself. Writes of
// its own configuration block are ignored.
func (m *Manager) databaseChanged(ctx context.Context, v *View, kind string) {
	if kind == index.EventDeleted {
		m.Evict(v.Path())
		m.notifier.DatabaseUpdated(v.Path(), kind)
		return
	}
	content, err := m.deps.Store.Read(v.Path())
	if err != nil {
		m.logger.Warn("read database note", "database", v.Path(), "error", err)
		return
	}
	if v.config.OwnWrite(content) {
		return
	}
	if err := v.Reload(ctx); err != nil {
		if errors.Is(err, apperr.ErrNoDatabaseBlock) {
			m.Evict(v.Path())
		}
		m.logger.Warn("reload database", "database", v.Path(), "error", err)
		return
	}
	m.logger.Info("database reloaded after external edit", "database", v.Path())
	m.notifier.DatabaseUpdated(v.Path(), "reloaded")
}

// noteChanged brings the view up to date with an event on note p and
// reports whether the view changed.
func (v *View) noteChanged(ctx context.Context, kind, p string) (bool, error) {
	local := v.state.Settings.Local()
	formulas := false
	if local.EnableJSFormulas && inFolder(p, local.FormulaFolderPath) {
		if err := v.state.Automation.Reload(ctx); err != nil {
			return false, fmt.Errorf("view: reload formulas: %w", err)
		}
		formulas = true
	}

	switch local.SourceData {
	case models.SourceCurrentFolder, models.SourceCurrentFolderNoSubfolders, "":
		if !inSource(p, v.Path(), local) {
			return formulas, nil
		}
		switch {
		case kind == index.EventDeleted:
			if !v.state.Data.Contains(p) {
				return formulas, nil
			}
			v.state.Data.Drop(p)
			return true, nil
		case kind == index.EventUpdated && v.state.Data.Contains(p):
			return true, v.state.Data.Refresh(ctx, p)
		}
	}
	// Tag, link and query sources can gain or lose any note.
	return true, v.state.Data.Load(ctx)
}
