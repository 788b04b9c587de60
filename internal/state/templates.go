package state

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/starford/dbfolder/internal/apperr"
	"github.com/starford/dbfolder/internal/chain"
	"github.com/starford/dbfolder/internal/diskconfig"
	"github.com/starford/dbfolder/internal/storage"
)

// Row template actions.
const (
	ActionSetTemplateFolder = "set_template_folder"
	ActionSelectTemplate    = "select_template"
)

var rowTemplateActions = []string{ActionSetTemplateFolder, ActionSelectTemplate}

// RowTemplatesStore tracks the folder of row templates and the template new
// rows start from.
type RowTemplatesStore struct {
	cfg   *diskconfig.Config
	store storage.Provider
}

// Templates lists the notes of the row templates folder.
func (s *RowTemplatesStore) Templates() ([]string, error) {
	folder := strings.Trim(s.cfg.Yaml().Config.RowTemplatesFolder, "/")
	notes, err := s.store.List(folder)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(notes))
	for _, n := range notes {
		if n.Path != s.cfg.Path() {
			out = append(out, n.Path)
		}
	}
	return out, nil
}

// Selected returns the current row template, "" when none is selected.
func (s *RowTemplatesStore) Selected() string {
	return s.cfg.Yaml().Config.CurrentRowTemplate
}

// Content returns the content of the selected template, nil when none is
// selected.
func (s *RowTemplatesStore) Content() ([]byte, error) {
	p := s.Selected()
	if p == "" {
		return nil, nil
	}
	content, err := s.store.Read(p)
	if err != nil {
		return nil, fmt.Errorf("state: row template: %w", err)
	}
	return content, nil
}

// SetFolder changes the row templates folder.
func (s *RowTemplatesStore) SetFolder(folder string) error {
	folder = strings.TrimSpace(folder)
	if folder == "" {
		folder = "/"
	}
	return s.cfg.UpdateConfig(map[string]any{"row_templates_folder": folder})
}

// Select makes p the template of new rows. An empty path clears it.
func (s *RowTemplatesStore) Select(p string) error {
	if p != "" {
		templates, err := s.Templates()
		if err != nil {
			return err
		}
		found := false
		for _, t := range templates {
			if t == p {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("state: row template %s: %w", p, apperr.ErrNotFound)
		}
	}
	return s.cfg.UpdateConfig(map[string]any{"current_row_template": p})
}

type templatePayload struct {
	Folder string `json:"folder"`
	Path   string `json:"path"`
}

func (s *RowTemplatesStore) chain() *chain.Chain[*Response] {
	return chain.New(
		on(ActionSetTemplateFolder, func(_ context.Context, a Action) error {
			p, err := decodePayload[templatePayload](a)
			if err != nil {
				return err
			}
			return s.SetFolder(p.Folder)
		}),
		on(ActionSelectTemplate, func(_ context.Context, a Action) error {
			p, err := decodePayload[templatePayload](a)
			if err != nil {
				return err
			}
			return s.Select(p.Path)
		}),
	)
}
