// Package diskconfig owns the configuration block of one database note. It
// keeps the typed configuration in memory, applies mutations synchronously,
// and persists them to the note in the background.
package diskconfig

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/starford/dbfolder/internal/apperr"
	"github.com/starford/dbfolder/internal/checksum"
	"github.com/starford/dbfolder/internal/marshal"
	"github.com/starford/dbfolder/internal/models"
	"github.com/starford/dbfolder/internal/parser"
	"github.com/starford/dbfolder/internal/persist"
	"github.com/starford/dbfolder/internal/storage"
)

// DatabaseMarker is the frontmatter value written to new database notes.
const DatabaseMarker = "basic"

// Config is the in-memory view of a database note's configuration block.
type Config struct {
	path    string
	store   storage.Provider
	tracker *persist.Tracker
	logger  *slog.Logger

	mu          sync.RWMutex
	db          *models.DatabaseYaml
	warnings    map[string][]string
	legacy      bool
	lastWritten string
}

// Load reads the note at path and runs the marshalling pipeline over its
// configuration block.
func Load(ctx context.Context, store storage.Provider, tracker *persist.Tracker, logger *slog.Logger, path string) (*Config, error) {
	c := &Config{path: path, store: store, tracker: tracker, logger: logger.With("database", path)}
	if err := c.Reload(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload replaces the in-memory configuration with the note's current block.
func (c *Config) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	content, err := c.store.Read(c.path)
	if err != nil {
		return fmt.Errorf("diskconfig: load %s: %w", c.path, err)
	}
	text, legacy, err := parser.ExtractDatabaseBlock(content)
	if err != nil {
		return fmt.Errorf("diskconfig: load %s: %w", c.path, err)
	}
	db, warnings, err := marshal.Unmarshal([]byte(text))
	if err != nil {
		return fmt.Errorf("diskconfig: load %s: %w", c.path, err)
	}
	for title, msgs := range warnings {
		for _, msg := range msgs {
			c.logger.Warn("config repaired", "handler", title, "warning", msg)
		}
	}

	c.mu.Lock()
	c.db = db
	c.warnings = warnings
	c.legacy = legacy
	c.mu.Unlock()
	return nil
}

// Path returns the note path of the database.
func (c *Config) Path() string {
	return c.path
}

// Yaml returns a deep copy of the current configuration.
func (c *Config) Yaml() *models.DatabaseYaml {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db.Clone()
}

// Warnings returns the repairs applied by the last load.
func (c *Config) Warnings() map[string][]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]string, len(c.warnings))
	for k, v := range c.warnings {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Legacy reports whether the note still uses the old block delimiters.
func (c *Config) Legacy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.legacy
}

// OwnWrite reports whether content is what this config last wrote.
func (c *Config) OwnWrite(content []byte) bool {
	sum := checksum.Sum(content)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sum == c.lastWritten
}

// Status returns the persistence state of the note.
func (c *Config) Status() persist.State {
	return c.tracker.Status(c.path)
}

// Flush waits for pending writes.
func (c *Config) Flush(ctx context.Context) error {
	return c.tracker.Flush(ctx)
}

// Mutate applies fn to a copy of the configuration. When fn succeeds the
// copy becomes current and a write is scheduled.
func (c *Config) Mutate(fn func(db *models.DatabaseYaml) error) error {
	c.mu.Lock()
	next := c.db.Clone()
	if err := fn(next); err != nil {
		c.mu.Unlock()
		return err
	}
	c.db = next
	c.mu.Unlock()

	c.persist()
	return nil
}

// Repair rewrites the block in its repaired, modern form.
func (c *Config) Repair() {
	c.persist()
}

func (c *Config) persist() {
	c.tracker.Go(c.path, c.write)
}

func (c *Config) write() error {
	db := c.Yaml()
	for id, col := range db.Columns {
		if col.SkipPersist {
			delete(db.Columns, id)
		}
	}
	text, err := marshal.Serialize(db)
	if err != nil {
		return err
	}
	content, err := c.store.Read(c.path)
	if err != nil {
		return fmt.Errorf("diskconfig: persist %s: %w", c.path, err)
	}
	out := parser.ReplaceDatabaseBlock(content, text)

	c.mu.Lock()
	c.lastWritten = checksum.Sum(out)
	c.legacy = false
	c.mu.Unlock()

	if err := c.store.Write(c.path, out); err != nil {
		return fmt.Errorf("diskconfig: persist %s: %w", c.path, err)
	}
	c.logger.Debug("config persisted")
	return nil
}

// UpdateConfig merges patch into the local settings.
func (c *Config) UpdateConfig(patch map[string]any) error {
	return c.Mutate(func(db *models.DatabaseYaml) error {
		return ApplyPatch(&db.Config, patch)
	})
}

// UpdateFilters replaces the filter block.
func (c *Config) UpdateFilters(filters models.FilterSettings) error {
	return c.Mutate(func(db *models.DatabaseYaml) error {
		db.Filters = filters.Clone()
		if db.Filters.Conditions == nil {
			db.Filters.Conditions = models.Filters{}
		}
		return nil
	})
}

// UpdateColumnConfig merges patch into the config of column id.
func (c *Config) UpdateColumnConfig(id string, patch map[string]any) error {
	return c.Mutate(func(db *models.DatabaseYaml) error {
		col, ok := db.Columns[id]
		if !ok {
			return fmt.Errorf("diskconfig: column %s: %w", id, apperr.ErrNotFound)
		}
		return ApplyPatch(&col.Config, patch)
	})
}

// UpdateColumnProperties merges patch into the top-level fields of column id.
func (c *Config) UpdateColumnProperties(id string, patch map[string]any) error {
	return c.Mutate(func(db *models.DatabaseYaml) error {
		col, ok := db.Columns[id]
		if !ok {
			return fmt.Errorf("diskconfig: column %s: %w", id, apperr.ErrNotFound)
		}
		if err := ApplyPatch(col, patch); err != nil {
			return err
		}
		col.ID = id
		return nil
	})
}

// UpdateColumnKey moves column oldID to newID, updating its key and
// accessor key. Rollups related through oldID are repointed in the same
// mutation.
func (c *Config) UpdateColumnKey(oldID, newID string) error {
	return c.Mutate(func(db *models.DatabaseYaml) error {
		col, ok := db.Columns[oldID]
		if !ok {
			return fmt.Errorf("diskconfig: column %s: %w", oldID, apperr.ErrNotFound)
		}
		if oldID == newID {
			return nil
		}
		if _, exists := db.Columns[newID]; exists {
			return fmt.Errorf("diskconfig: column %s: %w", newID, apperr.ErrAlreadyExists)
		}
		delete(db.Columns, oldID)
		col.ID, col.Key, col.AccessorKey = newID, newID, newID
		db.Columns[newID] = col
		for _, other := range db.Columns {
			if other.Config.AsociatedRelationID == oldID {
				other.Config.AsociatedRelationID = newID
			}
		}
		return nil
	})
}

// AddColumn inserts col.
func (c *Config) AddColumn(col *models.Column) error {
	return c.Mutate(func(db *models.DatabaseYaml) error {
		if _, exists := db.Columns[col.ID]; exists {
			return fmt.Errorf("diskconfig: column %s: %w", col.ID, apperr.ErrAlreadyExists)
		}
		if len(db.Columns) >= models.MaxColumns {
			return fmt.Errorf("diskconfig: more than %d columns: %w", models.MaxColumns, apperr.ErrInvalidInput)
		}
		db.Columns[col.ID] = col.Clone()
		return nil
	})
}

// RemoveColumn deletes column id.
func (c *Config) RemoveColumn(id string) error {
	return c.Mutate(func(db *models.DatabaseYaml) error {
		if _, ok := db.Columns[id]; !ok {
			return fmt.Errorf("diskconfig: column %s: %w", id, apperr.ErrNotFound)
		}
		delete(db.Columns, id)
		return nil
	})
}

// UpdateDatabaseInfo sets the name and description.
func (c *Config) UpdateDatabaseInfo(name, description string) error {
	return c.Mutate(func(db *models.DatabaseYaml) error {
		db.Name = name
		db.Description = description
		return nil
	})
}

// ApplyPatch decodes patch over dst, leaving absent fields untouched.
func ApplyPatch(dst any, patch map[string]any) error {
	if len(patch) == 0 {
		return nil
	}
	out, err := yaml.Marshal(patch)
	if err != nil {
		return fmt.Errorf("diskconfig: encode patch: %w", err)
	}
	if err := yaml.Unmarshal(out, dst); err != nil {
		return fmt.Errorf("diskconfig: apply patch: %v: %w", err, apperr.ErrInvalidInput)
	}
	return nil
}

// NewDatabaseNote renders the content of a new database note.
func NewDatabaseNote(db *models.DatabaseYaml) ([]byte, error) {
	text, err := marshal.Serialize(db)
	if err != nil {
		return nil, err
	}
	content, err := parser.EditFrontmatter(nil, parser.FieldEdit{Set: map[string]any{models.FrontmatterKey: DatabaseMarker}})
	if err != nil {
		return nil, err
	}
	return parser.ReplaceDatabaseBlock(content, text), nil
}
