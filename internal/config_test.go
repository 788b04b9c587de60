package internal

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/dbfolder/internal/parser"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
}

func TestHTTPConfig_Address(t *testing.T) {
	cfg := NewDefaultConfig()
	if got := cfg.App.HTTP.Address(); got != "127.0.0.1:8080" {
		t.Errorf("address = %q", got)
	}
	cfg.App.HTTP.Host = ""
	if got := cfg.App.HTTP.Address(); got != ":8080" {
		t.Errorf("address = %q", got)
	}
}

func TestVaultConfig_BulkWriteLimit(t *testing.T) {
	for _, tc := range []struct {
		limit int
		ok    bool
	}{
		{0, true}, {1, true}, {64, true}, {-1, false}, {65, false},
	} {
		cfg := VaultConfig{Path: "./vault", BulkWriteLimit: tc.limit}
		if err := cfg.Validate(); (err == nil) != tc.ok {
			t.Errorf("limit %d: err = %v, want ok=%v", tc.limit, err, tc.ok)
		}
	}
}

func TestSSEConfig_NegativeThrottle(t *testing.T) {
	cfg := SSEConfig{RefreshThrottle: -time.Second}
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative throttle should fail validation")
	}
}

func TestRun_RequiresConfig(t *testing.T) {
	if err := Run(context.Background()); err == nil {
		t.Fatal("Run without config should fail")
	}
}

func TestRepair(t *testing.T) {
	dir := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Vault.Path = filepath.Join(dir, "vault")
	cfg.SQLite.Path = filepath.Join(dir, "index.db")
	cfg.Settings.Path = ""

	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		t.Fatal(err)
	}
	note := "---\ndatabase-plugin: basic\n---\n%% dbfolder:yaml\nname: Old\n%%\n"
	if err := os.WriteFile(filepath.Join(cfg.Vault.Path, "old.md"), []byte(note), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := Repair(context.Background(), "old.md", &out, WithConfig(cfg), WithLogOutput(io.Discard)); err != nil {
		t.Fatalf("Repair: %v", err)
	}
	if !strings.Contains(out.String(), "old.md: configuration:") {
		t.Errorf("warnings not printed:\n%s", out.String())
	}
	if !strings.HasSuffix(out.String(), "old.md: block rewritten\n") {
		t.Errorf("output = %q", out.String())
	}
	data, err := os.ReadFile(filepath.Join(cfg.Vault.Path, "old.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), parser.BlockStart) || strings.Contains(string(data), parser.LegacyBlockStart) {
		t.Errorf("block not rewritten in modern form:\n%s", data)
	}

	if err := Repair(context.Background(), "missing.md", io.Discard, WithConfig(cfg), WithLogOutput(io.Discard)); err == nil {
		t.Error("Repair of a missing note should fail")
	}
}
