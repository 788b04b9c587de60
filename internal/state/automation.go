package state

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/starford/dbfolder/internal/apperr"
	"github.com/starford/dbfolder/internal/chain"
	"github.com/starford/dbfolder/internal/diskconfig"
	"github.com/starford/dbfolder/internal/formula"
	"github.com/starford/dbfolder/internal/index"
	"github.com/starford/dbfolder/internal/models"
	"github.com/starford/dbfolder/internal/parser"
	"github.com/starford/dbfolder/internal/storage"
)

// Automation actions.
const (
	ActionToggleFormulas   = "toggle_formulas"
	ActionSetFormulaFolder = "set_formula_folder"
	ActionReloadFormulas   = "reload_formulas"
)

var automationActions = []string{ActionToggleFormulas, ActionSetFormulaFolder, ActionReloadFormulas}

// AutomationStore owns the formula engine of a view. Every note directly in
// the formula folder contributes a named template: its name and its body.
type AutomationStore struct {
	cfg    *diskconfig.Config
	store  storage.Provider
	logger *slog.Logger
	engine *formula.Engine
}

// Engine returns the formula engine.
func (s *AutomationStore) Engine() *formula.Engine {
	return s.engine
}

// Enabled reports whether formula columns are evaluated.
func (s *AutomationStore) Enabled() bool {
	return s.cfg.Yaml().Config.EnableJSFormulas
}

// Reload loads the named templates of the formula folder. Notes that fail
// to parse are skipped with a warning.
func (s *AutomationStore) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	folder := strings.Trim(s.cfg.Yaml().Config.FormulaFolderPath, "/")
	notes, err := s.store.List(folder)
	if errors.Is(err, apperr.ErrNotFound) {
		return s.Engine().Load(nil)
	}
	if err != nil {
		return err
	}

	named := make(map[string]string)
	for _, n := range notes {
		if index.FolderOf(n.Path) != folder || n.Path == s.cfg.Path() {
			continue
		}
		content, err := s.store.Read(n.Path)
		if err != nil {
			return err
		}
		res, err := parser.Parse(content)
		if err != nil || models.IsDatabase(res.Frontmatter) {
			continue
		}
		src := strings.TrimSpace(res.Body)
		if err := formula.Check(src); err != nil {
			s.logger.Warn("formula skipped", "note", n.Path, "error", err)
			continue
		}
		named[index.NameOf(n.Path)] = src
	}
	return s.Engine().Load(named)
}

// ToggleFormulas switches formula evaluation on or off.
func (s *AutomationStore) ToggleFormulas(enabled bool) error {
	return s.cfg.UpdateConfig(map[string]any{"enable_js_formulas": enabled})
}

// SetFormulaFolder changes the formula folder and reloads its templates.
func (s *AutomationStore) SetFormulaFolder(ctx context.Context, folder string) error {
	folder = strings.TrimSpace(folder)
	if folder == "" {
		folder = "/"
	}
	if err := s.cfg.UpdateConfig(map[string]any{"formula_folder_path": folder}); err != nil {
		return err
	}
	return s.Reload(ctx)
}

type automationPayload struct {
	Enabled *bool  `json:"enabled"`
	Folder  string `json:"folder"`
}

func (s *AutomationStore) chain() *chain.Chain[*Response] {
	return chain.New(
		on(ActionToggleFormulas, func(_ context.Context, a Action) error {
			p, err := decodePayload[automationPayload](a)
			if err != nil {
				return err
			}
			enabled := !s.Enabled()
			if p.Enabled != nil {
				enabled = *p.Enabled
			}
			return s.ToggleFormulas(enabled)
		}),
		on(ActionSetFormulaFolder, func(ctx context.Context, a Action) error {
			p, err := decodePayload[automationPayload](a)
			if err != nil {
				return err
			}
			return s.SetFormulaFolder(ctx, p.Folder)
		}),
		on(ActionReloadFormulas, func(ctx context.Context, _ Action) error {
			return s.Reload(ctx)
		}),
	)
}
