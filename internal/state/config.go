package state

import (
	"context"
	"errors"

	"github.com/starford/dbfolder/internal/chain"
	"github.com/starford/dbfolder/internal/diskconfig"
	"github.com/starford/dbfolder/internal/models"
)

// Config actions.
const (
	ActionAlterConfig         = "alter_config"
	ActionAlterFilters        = "alter_filters"
	ActionToggleFilters       = "toggle_filters"
	ActionAlterGlobalSettings = "alter_global_settings"
)

var configActions = []string{ActionAlterConfig, ActionAlterFilters, ActionToggleFilters, ActionAlterGlobalSettings}

// ConfigStore exposes the local settings and filters of a view, and the
// plugin-wide settings.
type ConfigStore struct {
	cfg    *diskconfig.Config
	global GlobalSettings
}

// Local returns the view's local settings.
func (s *ConfigStore) Local() models.LocalSettings {
	return s.cfg.Yaml().Config
}

// Filters returns the view's filter settings.
func (s *ConfigStore) Filters() models.FilterSettings {
	return s.cfg.Yaml().Filters
}

// Global returns the plugin-wide settings, or the defaults without a store.
func (s *ConfigStore) Global() models.DatabaseSettings {
	if s.global == nil {
		return models.DefaultSettings()
	}
	return s.global.Settings()
}

// AlterConfig merges patch into the local settings.
func (s *ConfigStore) AlterConfig(patch map[string]any) error {
	if v, ok := patch["pagination_size"]; ok {
		if n, isNum := number(v); isNum && n <= 0 {
			return invalid("pagination size %v", v)
		}
	}
	return s.cfg.UpdateConfig(patch)
}

// AlterFilters replaces the filter settings.
func (s *ConfigStore) AlterFilters(filters models.FilterSettings) error {
	return s.cfg.UpdateFilters(filters)
}

// ToggleFilters flips whether filters are applied.
func (s *ConfigStore) ToggleFilters() error {
	return s.cfg.Mutate(func(db *models.DatabaseYaml) error {
		db.Filters.Enabled = !db.Filters.Enabled
		return nil
	})
}

// AlterGlobalSettings merges patch into the plugin-wide settings.
func (s *ConfigStore) AlterGlobalSettings(patch map[string]any) error {
	if s.global == nil {
		return errors.New("state: no global settings store")
	}
	return s.global.UpdateGlobal(patch)
}

type configPayload struct {
	Config  map[string]any        `json:"config"`
	Filters models.FilterSettings `json:"filters"`
}

func (s *ConfigStore) chain() *chain.Chain[*Response] {
	return chain.New(
		on(ActionAlterConfig, func(_ context.Context, a Action) error {
			p, err := decodePayload[configPayload](a)
			if err != nil {
				return err
			}
			return s.AlterConfig(p.Config)
		}),
		on(ActionAlterFilters, func(_ context.Context, a Action) error {
			p, err := decodePayload[configPayload](a)
			if err != nil {
				return err
			}
			return s.AlterFilters(p.Filters)
		}),
		on(ActionToggleFilters, func(context.Context, Action) error {
			return s.ToggleFilters()
		}),
		on(ActionAlterGlobalSettings, func(_ context.Context, a Action) error {
			p, err := decodePayload[configPayload](a)
			if err != nil {
				return err
			}
			return s.AlterGlobalSettings(p.Config)
		}),
	)
}
