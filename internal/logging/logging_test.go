package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/starford/dbfolder/internal/apperr"
)

func TestController(t *testing.T) {
	var buf bytes.Buffer
	logger, c := New(&buf, slog.LevelWarn)

	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %s", buf.String())
	}

	if err := c.SetLevelInfo("info"); err != nil {
		t.Fatal(err)
	}
	if c.Level() != slog.LevelWarn {
		t.Errorf("level changed outside debug mode: %v", c.Level())
	}

	c.SetDebugMode(true)
	logger.Info("shown")
	if !strings.Contains(buf.String(), `"msg":"shown"`) {
		t.Errorf("info not logged in debug mode: %s", buf.String())
	}
	logger.Debug("still hidden")
	if strings.Contains(buf.String(), "still hidden") {
		t.Error("debug logged at info level")
	}

	c.SetDebugMode(false)
	if c.Level() != slog.LevelWarn || c.Debug() {
		t.Errorf("level after debug off = %v", c.Level())
	}
}

func TestConfigure(t *testing.T) {
	var buf bytes.Buffer
	_, c := New(&buf, slog.LevelError)
	if err := c.Configure(true, "debug"); err != nil {
		t.Fatal(err)
	}
	if c.Level() != slog.LevelDebug {
		t.Errorf("level = %v", c.Level())
	}
	if err := c.Configure(true, "loud"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("bad level err = %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	for _, name := range LevelNames() {
		if _, err := ParseLevel(name); err != nil {
			t.Errorf("ParseLevel(%q): %v", name, err)
		}
	}
}
