// Package settings renders the editable settings of the service and of one
// database as chains of handlers, and persists the plugin-wide settings file.
package settings

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"github.com/starford/dbfolder/internal/apperr"
	"github.com/starford/dbfolder/internal/diskconfig"
	"github.com/starford/dbfolder/internal/logging"
	"github.com/starford/dbfolder/internal/marshal"
	"github.com/starford/dbfolder/internal/models"
	pkgconfig "github.com/starford/dbfolder/pkg/config"
)

// lockTimeout bounds the wait for the settings file lock.
const lockTimeout = 2 * time.Second

// GlobalStore holds the plugin-wide settings and the local defaults applied
// to new databases. An empty path keeps the settings in memory only.
type GlobalStore struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	settings models.DatabaseSettings
	hooks    []func(models.DatabaseSettings)
}

// Open loads the settings file at path, repairing missing keys. A missing
// file yields the defaults.
func Open(path string, logger *slog.Logger) (*GlobalStore, error) {
	s := &GlobalStore{path: path, logger: logger, settings: models.DefaultSettings()}
	if path == "" {
		return s, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Info("settings file not found, using defaults", slog.String("path", path))
		return s, nil
	}

	var raw map[string]any
	if err := s.locked(func() error { return pkgconfig.Read(path, &raw) }); err != nil {
		return nil, fmt.Errorf("settings: open %s: %w", path, err)
	}
	loaded, warnings, err := marshal.Settings(raw)
	if err != nil {
		return nil, fmt.Errorf("settings: open %s: %w", path, err)
	}
	for title, msgs := range warnings {
		for _, msg := range msgs {
			logger.Warn("settings repaired", slog.String("handler", title), slog.String("warning", msg))
		}
	}
	if err := validate(*loaded); err != nil {
		return nil, fmt.Errorf("settings: open %s: %w", path, err)
	}
	s.settings = *loaded
	return s, nil
}

// Path returns the settings file path.
func (s *GlobalStore) Path() string {
	return s.path
}

// Settings returns a copy of the current settings.
func (s *GlobalStore) Settings() models.DatabaseSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// OnChange registers fn to run after every successful update.
func (s *GlobalStore) OnChange(fn func(models.DatabaseSettings)) {
	s.mu.Lock()
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

// UpdateGlobal merges patch into the global settings.
func (s *GlobalStore) UpdateGlobal(patch map[string]any) error {
	return s.update(func(next *models.DatabaseSettings) error {
		if media, ok := patch["media_settings"].(map[string]any); ok {
			rest := make(map[string]any, len(patch))
			for k, v := range patch {
				if k != "media_settings" {
					rest[k] = v
				}
			}
			if err := diskconfig.ApplyPatch(&next.GlobalSettings.MediaSettings, media); err != nil {
				return err
			}
			patch = rest
		}
		return diskconfig.ApplyPatch(&next.GlobalSettings, patch)
	})
}

// UpdateLocalDefaults merges patch into the local settings given to new
// databases.
func (s *GlobalStore) UpdateLocalDefaults(patch map[string]any) error {
	return s.update(func(next *models.DatabaseSettings) error {
		return diskconfig.ApplyPatch(&next.LocalSettings, patch)
	})
}

// ConfigureLogging applies the developer settings to ctrl now and after
// every update.
func (s *GlobalStore) ConfigureLogging(ctrl *logging.Controller) error {
	apply := func(st models.DatabaseSettings) error {
		return ctrl.Configure(st.GlobalSettings.EnableDebugMode, st.GlobalSettings.LoggerLevelInfo)
	}
	s.OnChange(func(st models.DatabaseSettings) {
		if err := apply(st); err != nil {
			s.logger.Warn("apply logging settings", slog.String("error", err.Error()))
		}
	})
	return apply(s.Settings())
}

func (s *GlobalStore) update(fn func(next *models.DatabaseSettings) error) error {
	s.mu.Lock()
	next := s.settings
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := validate(next); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.save(next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.settings = next
	hooks := append([]func(models.DatabaseSettings)(nil), s.hooks...)
	s.mu.Unlock()

	for _, h := range hooks {
		h(next)
	}
	return nil
}

func (s *GlobalStore) save(st models.DatabaseSettings) error {
	if s.path == "" {
		return nil
	}
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}
	return s.locked(func() error {
		if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("settings: write %s: %w", s.path, err)
		}
		s.logger.Debug("settings persisted", slog.String("path", s.path))
		return nil
	})
}

func (s *GlobalStore) locked(fn func() error) error {
	fl := flock.New(s.path + ".lock")
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	ok, err := fl.TryLockContext(ctx, 20*time.Millisecond)
	if err != nil {
		return fmt.Errorf("settings: lock %s: %w", s.path, err)
	}
	if !ok {
		return fmt.Errorf("settings: lock %s: %w", s.path, apperr.ErrConflict)
	}
	defer func() { _ = fl.Unlock() }()
	return fn()
}

func validate(st models.DatabaseSettings) error {
	g, l := st.GlobalSettings, st.LocalSettings
	err := validation.Errors{
		"logger_level_info":   validation.Validate(g.LoggerLevelInfo, validation.Required, validation.In(anySlice(logging.LevelNames())...)),
		"media_settings":      validation.Validate(g.MediaSettings.Width, validation.Min(0)),
		"pagination_size":     validation.Validate(l.PaginationSize, validation.Required, validation.Min(1)),
		"cell_size":           validation.Validate(l.CellSize, validation.In(models.CellSizeCompact, models.CellSizeNormal, models.CellSizeWide)),
		"inline_new_position": validation.Validate(l.InlineNewPosition, validation.In(models.InlinePositionTop, models.InlinePositionBottom)),
		"source_data":         validation.Validate(l.SourceData, validation.In(anySlice(Sources())...)),
	}.Filter()
	if err != nil {
		return fmt.Errorf("settings: %v: %w", err, apperr.ErrInvalidInput)
	}
	return nil
}

// Sources lists the selectable row sources.
func Sources() []string {
	return []string{
		models.SourceCurrentFolder, models.SourceCurrentFolderNoSubfolders, models.SourceTag,
		models.SourceOutgoingLink, models.SourceIncomingLink, models.SourceQuery,
	}
}

func anySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
