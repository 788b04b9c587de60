// Package state holds the per-view stores of an open database and the action
// chains that mutate them. Every mutation enters through Dispatch.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/starford/dbfolder/internal/apperr"
	"github.com/starford/dbfolder/internal/chain"
	"github.com/starford/dbfolder/internal/diskconfig"
	"github.com/starford/dbfolder/internal/formula"
	"github.com/starford/dbfolder/internal/index"
	"github.com/starford/dbfolder/internal/models"
	"github.com/starford/dbfolder/internal/query"
	"github.com/starford/dbfolder/internal/storage"
)

// Action domains.
const (
	DomainColumns      = "columns"
	DomainData         = "data"
	DomainConfig       = "config"
	DomainSorting      = "sorting"
	DomainAutomation   = "automation"
	DomainRowTemplates = "row_templates"
)

// Domains lists every action domain.
func Domains() []string {
	return []string{DomainColumns, DomainData, DomainConfig, DomainSorting, DomainAutomation, DomainRowTemplates}
}

// Action is a discriminated mutation request.
type Action struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewAction encodes payload into an Action.
func NewAction(actionType string, payload any) (Action, error) {
	a := Action{Type: actionType}
	if payload == nil {
		return a, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return a, fmt.Errorf("state: encode %s payload: %w", actionType, err)
	}
	a.Payload = raw
	return a, nil
}

// DecodeAction parses a JSON action.
func DecodeAction(data []byte) (Action, error) {
	var a Action
	if err := json.Unmarshal(data, &a); err != nil {
		return a, fmt.Errorf("state: decode action: %v: %w", err, apperr.ErrInvalidInput)
	}
	if a.Type == "" {
		return a, fmt.Errorf("state: action type is empty: %w", apperr.ErrInvalidInput)
	}
	return a, nil
}

func decodePayload[T any](a Action) (T, error) {
	var p T
	if len(a.Payload) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(a.Payload, &p); err != nil {
		return p, fmt.Errorf("state: %s payload: %v: %w", a.Type, err, apperr.ErrInvalidInput)
	}
	return p, nil
}

// Response travels through an action chain. The matching handler sets
// Handled and records its outcome in Err.
type Response struct {
	Ctx     context.Context
	Action  Action
	Handled bool
	Err     error
	Errors  map[string][]string
}

// ErrorMap implements chain.Response.
func (r *Response) ErrorMap() map[string][]string {
	return r.Errors
}

// on returns the handler owning actionType. A match runs fn and stops the
// chain; anything else continues.
func on(actionType string, fn func(ctx context.Context, a Action) error) chain.Handler[*Response] {
	return chain.Func(actionType, func(s *chain.Step[*Response], r *Response) *Response {
		if r.Action.Type != actionType {
			return s.GoNext(r)
		}
		r.Handled = true
		r.Err = fn(r.Ctx, r.Action)
		return s.Stop(r)
	})
}

// GlobalSettings is the plugin-wide settings store.
type GlobalSettings interface {
	Settings() models.DatabaseSettings
	UpdateGlobal(patch map[string]any) error
}

// Deps are the collaborators of a TableState.
type Deps struct {
	Config *diskconfig.Config
	Store  storage.Provider
	Index  index.NoteIndex
	Query  *query.Service
	Global GlobalSettings
	Logger *slog.Logger

	// BulkLimit bounds concurrent row rewrites of bulk actions.
	BulkLimit int
}

// TableState groups the stores of one open view.
type TableState struct {
	logger *slog.Logger
	config *diskconfig.Config

	Columns      *ColumnsStore
	Data         *DataStore
	Settings     *ConfigStore
	Sorting      *SortingStore
	Automation   *AutomationStore
	RowTemplates *RowTemplatesStore

	chains map[string]*chain.Chain[*Response]
}

// New wires the stores and their action chains. Rows and formulas are not
// loaded until Load is called.
func New(d Deps) *TableState {
	logger := d.Logger.With("database", d.Config.Path())
	s := &TableState{logger: logger, config: d.Config}

	bulk := d.BulkLimit
	if bulk <= 0 {
		bulk = DefaultBulkLimit
	}
	s.Data = &DataStore{cfg: d.Config, store: d.Store, idx: d.Index, query: d.Query, logger: logger, bulkLimit: bulk}
	s.Sorting = &SortingStore{cfg: d.Config}
	s.Settings = &ConfigStore{cfg: d.Config, global: d.Global}
	s.Automation = &AutomationStore{cfg: d.Config, store: d.Store, logger: logger, engine: formula.New()}
	s.RowTemplates = &RowTemplatesStore{cfg: d.Config, store: d.Store}
	s.Columns = &ColumnsStore{cfg: d.Config, data: s.Data, sorting: s.Sorting}
	s.Data.templates = s.RowTemplates

	s.chains = map[string]*chain.Chain[*Response]{
		DomainColumns:      s.Columns.chain(),
		DomainData:         s.Data.chain(),
		DomainConfig:       s.Settings.chain(),
		DomainSorting:      s.Sorting.chain(),
		DomainAutomation:   s.Automation.chain(),
		DomainRowTemplates: s.RowTemplates.chain(),
	}
	return s
}

// Load fills the row cache and the formula templates.
func (s *TableState) Load(ctx context.Context) error {
	if err := s.Data.Load(ctx); err != nil {
		return err
	}
	return s.Automation.Reload(ctx)
}

// Config returns the disk configuration backing the state.
func (s *TableState) Config() *diskconfig.Config {
	return s.config
}

// Dispatch runs action through the chain of domain. An action no handler
// owns is reported as apperr.ErrUnknownAction.
func (s *TableState) Dispatch(ctx context.Context, domain string, a Action) error {
	c, ok := s.chains[domain]
	if !ok {
		return fmt.Errorf("state: domain %q: %w", domain, apperr.ErrUnknownAction)
	}
	r := c.Handle(&Response{Ctx: ctx, Action: a, Errors: make(map[string][]string)})
	if !r.Handled {
		s.logger.Warn("unhandled action", "domain", domain, "type", a.Type)
		return fmt.Errorf("state: %s action %q: %w", domain, a.Type, apperr.ErrUnknownAction)
	}
	if r.Err != nil {
		s.logger.Debug("action failed", "domain", domain, "type", a.Type, "error", r.Err)
		return r.Err
	}
	s.logger.Debug("action applied", "domain", domain, "type", a.Type)
	return nil
}

// ActionTypes returns the action types each domain handles, in chain order.
func ActionTypes() map[string][]string {
	return map[string][]string{
		DomainColumns:      columnActions,
		DomainData:         dataActions,
		DomainConfig:       configActions,
		DomainSorting:      sortingActions,
		DomainAutomation:   automationActions,
		DomainRowTemplates: rowTemplateActions,
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("state: %s: %w", fmt.Sprintf(format, args...), apperr.ErrInvalidInput)
}
