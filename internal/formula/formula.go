// Package formula evaluates formula columns. A formula is a text/template
// executed against the row; named templates loaded from the formula folder
// can be invoked with {{template "name" .}}.
package formula

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"
	"text/template"

	"github.com/spf13/cast"

	"github.com/starford/dbfolder/internal/apperr"
	"github.com/starford/dbfolder/internal/models"
)

const rootName = "dbfolder"

// Data is what a formula sees as dot.
type Data struct {
	Row   map[string]any
	Path  string
	Name  string
	Tasks []models.Task
}

// Engine holds the named templates shared by every formula of a view.
type Engine struct {
	mu    sync.RWMutex
	base  *template.Template
	names []string
}

// New returns an engine without named templates.
func New() *Engine {
	return &Engine{base: newRoot()}
}

func newRoot() *template.Template {
	return template.New(rootName).Option("missingkey=zero").Funcs(funcs)
}

var funcs = template.FuncMap{
	"add":   func(a, b any) float64 { return cast.ToFloat64(a) + cast.ToFloat64(b) },
	"sub":   func(a, b any) float64 { return cast.ToFloat64(a) - cast.ToFloat64(b) },
	"mul":   func(a, b any) float64 { return cast.ToFloat64(a) * cast.ToFloat64(b) },
	"div":   div,
	"upper": func(v any) string { return strings.ToUpper(cast.ToString(v)) },
	"lower": func(v any) string { return strings.ToLower(cast.ToString(v)) },
	"join":  func(sep string, v any) string { return strings.Join(cast.ToStringSlice(v), sep) },
	"default": func(def, v any) any {
		if v == nil || cast.ToString(v) == "" {
			return def
		}
		return v
	},
}

func div(a, b any) (float64, error) {
	d := cast.ToFloat64(b)
	if d == 0 {
		return 0, fmt.Errorf("division by zero")
	}
	return cast.ToFloat64(a) / d, nil
}

// Load replaces the named templates. name -> template source.
func (e *Engine) Load(named map[string]string) error {
	root := newRoot()
	names := make([]string, 0, len(named))
	for name, src := range named {
		if _, err := root.New(name).Parse(src); err != nil {
			return fmt.Errorf("formula: parse %s: %v: %w", name, err, apperr.ErrInvalidInput)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	e.mu.Lock()
	e.base = root
	e.names = names
	e.mu.Unlock()
	return nil
}

// Check parses src without loading it.
func Check(src string) error {
	if _, err := newRoot().Parse(src); err != nil {
		return fmt.Errorf("formula: parse: %v: %w", err, apperr.ErrInvalidInput)
	}
	return nil
}

// Names returns the loaded template names.
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.names...)
}

// Evaluate executes expr for row.
func (e *Engine) Evaluate(expr string, row *models.Row) (string, error) {
	e.mu.RLock()
	base, err := e.base.Clone()
	e.mu.RUnlock()
	if err != nil {
		return "", fmt.Errorf("formula: clone: %w", err)
	}
	tmpl, err := base.New("formula").Parse(expr)
	if err != nil {
		return "", fmt.Errorf("formula: parse: %v: %w", err, apperr.ErrInvalidInput)
	}
	data := Data{Row: row.Values, Path: row.Path, Tasks: row.Tasks}
	data.Name = strings.TrimSuffix(row.Path[strings.LastIndex(row.Path, "/")+1:], ".md")

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("formula: execute: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
