package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/starford/dbfolder/internal/apperr"
)

func TestExtractDatabaseBlock(t *testing.T) {
	content := []byte("---\ndatabase-plugin: basic\n---\n\n```yaml:dbfolder\nname: Books\ndescription: my books\n```\n")
	text, legacy, err := ExtractDatabaseBlock(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if legacy {
		t.Error("legacy = true, want false")
	}
	if text != "name: Books\ndescription: my books" {
		t.Errorf("text = %q", text)
	}
}

func TestExtractDatabaseBlock_Legacy(t *testing.T) {
	content := []byte("intro\n%% dbfolder:yaml\nname: Old\n%%\n")
	text, legacy, err := ExtractDatabaseBlock(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !legacy {
		t.Error("legacy = false, want true")
	}
	if text != "name: Old" {
		t.Errorf("text = %q", text)
	}
}

func TestExtractDatabaseBlock_Missing(t *testing.T) {
	_, _, err := ExtractDatabaseBlock([]byte("# nothing here\n"))
	if !errors.Is(err, apperr.ErrNoDatabaseBlock) {
		t.Errorf("err = %v, want ErrNoDatabaseBlock", err)
	}
}

func TestReplaceDatabaseBlock(t *testing.T) {
	content := []byte("before\n```yaml:dbfolder\nname: A\n```\nafter\n")
	got := string(ReplaceDatabaseBlock(content, "name: B\n"))
	want := "before\n```yaml:dbfolder\nname: B\n```\nafter\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestReplaceDatabaseBlock_UpgradesLegacy(t *testing.T) {
	content := []byte("%% dbfolder:yaml\nname: Old\n%%\n")
	got := string(ReplaceDatabaseBlock(content, "name: New"))
	if strings.Contains(got, "%%") {
		t.Errorf("legacy delimiters kept: %q", got)
	}
	text, legacy, err := ExtractDatabaseBlock([]byte(got))
	if err != nil || legacy || text != "name: New" {
		t.Errorf("extract after replace = %q, %v, %v", text, legacy, err)
	}
}

func TestReplaceDatabaseBlock_Appends(t *testing.T) {
	got := string(ReplaceDatabaseBlock([]byte("---\na: 1\n---\n"), "name: X"))
	want := "---\na: 1\n---\n\n```yaml:dbfolder\nname: X\n```\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
