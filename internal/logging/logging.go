// Package logging builds the process logger and lets the developer settings
// change its level at runtime.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/starford/dbfolder/internal/apperr"
)

// Level names accepted by SetLevelInfo.
var levelNames = []string{"debug", "info", "warn", "error"}

// LevelNames returns the level names a user may choose.
func LevelNames() []string {
	return append([]string(nil), levelNames...)
}

// Controller owns the level of a JSON logger. Outside debug mode the logger
// runs at the configured base level; in debug mode it runs at the level
// chosen in the developer settings.
type Controller struct {
	level slog.LevelVar

	mu        sync.Mutex
	base      slog.Level
	debug     bool
	debugInfo slog.Level
}

// New returns a JSON logger writing to w and its controller.
func New(w io.Writer, base slog.Level) (*slog.Logger, *Controller) {
	c := &Controller{base: base, debugInfo: slog.LevelDebug}
	c.level.Set(base)
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: &c.level}))
	return logger, c
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return 0, fmt.Errorf("logging: level %q: %w", name, apperr.ErrInvalidInput)
	}
	return l, nil
}

// SetDebugMode switches debug mode on or off.
func (c *Controller) SetDebugMode(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.debug = on
	c.apply()
}

// SetLevelInfo sets the level used in debug mode.
func (c *Controller) SetLevelInfo(name string) error {
	l, err := ParseLevel(name)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.debugInfo = l
	c.apply()
	return nil
}

func (c *Controller) apply() {
	if c.debug {
		c.level.Set(c.debugInfo)
		return
	}
	c.level.Set(c.base)
}

// Configure applies the developer settings at once.
func (c *Controller) Configure(debug bool, levelInfo string) error {
	if levelInfo != "" {
		if err := c.SetLevelInfo(levelInfo); err != nil {
			return err
		}
	}
	c.SetDebugMode(debug)
	return nil
}

// Level returns the current level.
func (c *Controller) Level() slog.Level {
	return c.level.Level()
}

// Debug reports whether debug mode is on.
func (c *Controller) Debug() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.debug
}
