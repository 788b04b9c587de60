package formula

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/dbfolder/internal/apperr"
	"github.com/starford/dbfolder/internal/models"
)

func testRow() *models.Row {
	return &models.Row{
		Path:   "books/Dune.md",
		Values: map[string]any{"pages": float64(412), "author": "Herbert", "tags": []any{"a", "b"}},
	}
}

func TestEvaluate(t *testing.T) {
	e := New()
	cases := []struct {
		expr, want string
	}{
		{`{{.Row.author}}`, "Herbert"},
		{`{{upper .Row.author}}`, "HERBERT"},
		{`{{mul .Row.pages 2}}`, "824"},
		{`{{.Name}}`, "Dune"},
		{`{{join ", " .Row.tags}}`, "a, b"},
		{`{{default "none" .Row.missing}}`, "none"},
	}
	for _, tc := range cases {
		got, err := e.Evaluate(tc.expr, testRow())
		if err != nil {
			t.Errorf("%s: %v", tc.expr, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s = %q, want %q", tc.expr, got, tc.want)
		}
	}
}

func TestEvaluate_Errors(t *testing.T) {
	e := New()
	if _, err := e.Evaluate(`{{.Row.pages`, testRow()); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("parse error = %v, want ErrInvalidInput", err)
	}
	if _, err := e.Evaluate(`{{div .Row.pages 0}}`, testRow()); err == nil {
		t.Error("expected division error")
	}
}

func TestLoadNamedTemplates(t *testing.T) {
	e := New()
	err := e.Load(map[string]string{
		"long": `{{if gt (.Row.pages | printf "%v" | len) 2}}long{{else}}short{{end}}`,
		"by":   `by {{.Row.author}}`,
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff([]string{"by", "long"}, e.Names()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
	got, err := e.Evaluate(`{{template "by" .}}`, testRow())
	if err != nil || got != "by Herbert" {
		t.Errorf("Evaluate = %q, %v", got, err)
	}
	if err := e.Load(map[string]string{"bad": "{{"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
	if diff := cmp.Diff([]string{"by", "long"}, e.Names()); diff != "" {
		t.Errorf("failed load replaced templates (-want +got):\n%s", diff)
	}
}

func TestCheck(t *testing.T) {
	if err := Check(`{{upper .Row.author}}`); err != nil {
		t.Errorf("Check valid: %v", err)
	}
	if err := Check(`{{nope .Row.author}}`); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("Check unknown func = %v, want ErrInvalidInput", err)
	}
}
