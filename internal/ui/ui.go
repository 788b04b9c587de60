// Package ui records settings widgets as a JSON control tree. Handlers
// render into a Container; the HTTP layer serves the tree and feeds user
// edits back through Form.Apply.
package ui

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/spf13/cast"

	"github.com/starford/dbfolder/internal/apperr"
)

// Kind is the widget type of a control.
type Kind string

// Control kinds.
const (
	KindSection  Kind = "section"
	KindToggle   Kind = "toggle"
	KindSlider   Kind = "slider"
	KindText     Kind = "text"
	KindDropdown Kind = "dropdown"
	KindColor    Kind = "color"
	KindSearch   Kind = "search"
	KindButton   Kind = "button"
)

// Option is one choice of a dropdown.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Control is one node of the tree. Sections hold children.
type Control struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"kind"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Value       any        `json:"value,omitempty"`
	Options     []Option   `json:"options,omitempty"`
	Suggestions []string   `json:"suggestions,omitempty"`
	Min         float64    `json:"min,omitempty"`
	Max         float64    `json:"max,omitempty"`
	Step        float64    `json:"step,omitempty"`
	Required    bool       `json:"required,omitempty"`
	Disabled    bool       `json:"disabled,omitempty"`
	Children    []*Control `json:"children,omitempty"`

	onChange func(value any) error
}

// Container is a render target for controls.
type Container interface {
	Section(id, title string) Container
	Toggle(id, name, desc string, value bool, onChange func(bool) error) *Control
	Slider(id, name, desc string, value, lo, hi, step float64, onChange func(float64) error) *Control
	Text(id, name, desc, value string, onChange func(string) error) *Control
	Dropdown(id, name, desc, value string, options []Option, onChange func(string) error) *Control
	ColorPicker(id, name, value string, onChange func(string) error) *Control
	Search(id, name, desc, value string, suggestions []string, onChange func(string) error) *Control
	Button(id, name, desc string, onClick func() error) *Control
}

// Form is the root of a control tree.
type Form struct {
	mu   sync.Mutex
	root *Control
	byID map[string]*Control
}

// NewForm returns an empty form.
func NewForm(id, title string) *Form {
	f := &Form{root: &Control{ID: id, Kind: KindSection, Name: title}, byID: make(map[string]*Control)}
	return f
}

// Root returns the top-level container.
func (f *Form) Root() Container {
	return &section{form: f, node: f.root}
}

// Controls returns the top-level controls.
func (f *Form) Controls() []*Control {
	return f.root.Children
}

// Get returns the control with id.
func (f *Form) Get(id string) (*Control, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	return c, ok
}

// MarshalJSON renders the tree.
func (f *Form) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.root)
}

// Apply delivers a user edit of control id. The value is coerced to the
// control's type before the change callback runs; on success the control
// keeps the new value.
func (f *Form) Apply(id string, value any) error {
	c, ok := f.Get(id)
	if !ok {
		return fmt.Errorf("ui: control %s: %w", id, apperr.ErrNotFound)
	}
	if c.Disabled {
		return fmt.Errorf("ui: control %s is disabled: %w", id, apperr.ErrInvalidInput)
	}
	v, err := coerce(c, value)
	if err != nil {
		return err
	}
	if c.onChange == nil {
		return nil
	}
	if err := c.onChange(v); err != nil {
		return err
	}
	if c.Kind != KindButton {
		c.Value = v
	}
	return nil
}

func coerce(c *Control, value any) (any, error) {
	switch c.Kind {
	case KindToggle:
		b, err := cast.ToBoolE(value)
		if err != nil {
			return nil, fmt.Errorf("ui: %s expects a boolean: %w", c.ID, apperr.ErrInvalidInput)
		}
		return b, nil
	case KindSlider:
		n, err := cast.ToFloat64E(value)
		if err != nil || n < c.Min || n > c.Max {
			return nil, fmt.Errorf("ui: %s expects a number in [%v, %v]: %w", c.ID, c.Min, c.Max, apperr.ErrInvalidInput)
		}
		return n, nil
	case KindDropdown:
		s := cast.ToString(value)
		if !slices.ContainsFunc(c.Options, func(o Option) bool { return o.Value == s }) {
			return nil, fmt.Errorf("ui: %s has no option %q: %w", c.ID, s, apperr.ErrInvalidInput)
		}
		return s, nil
	case KindButton:
		return nil, nil
	case KindSection:
		return nil, fmt.Errorf("ui: %s is a section: %w", c.ID, apperr.ErrInvalidInput)
	}
	s, err := cast.ToStringE(value)
	if err != nil {
		return nil, fmt.Errorf("ui: %s expects a string: %w", c.ID, apperr.ErrInvalidInput)
	}
	return s, nil
}

type section struct {
	form *Form
	node *Control
}

func (s *section) add(c *Control) *Control {
	s.form.mu.Lock()
	defer s.form.mu.Unlock()
	s.node.Children = append(s.node.Children, c)
	if c.ID != "" {
		s.form.byID[c.ID] = c
	}
	return c
}

func (s *section) Section(id, title string) Container {
	return &section{form: s.form, node: s.add(&Control{ID: id, Kind: KindSection, Name: title})}
}

func (s *section) Toggle(id, name, desc string, value bool, onChange func(bool) error) *Control {
	return s.add(&Control{ID: id, Kind: KindToggle, Name: name, Description: desc, Value: value,
		onChange: func(v any) error { return onChange(v.(bool)) }})
}

func (s *section) Slider(id, name, desc string, value, lo, hi, step float64, onChange func(float64) error) *Control {
	return s.add(&Control{ID: id, Kind: KindSlider, Name: name, Description: desc, Value: value, Min: lo, Max: hi, Step: step,
		onChange: func(v any) error { return onChange(v.(float64)) }})
}

func (s *section) Text(id, name, desc, value string, onChange func(string) error) *Control {
	return s.add(&Control{ID: id, Kind: KindText, Name: name, Description: desc, Value: value,
		onChange: stringChange(onChange)})
}

func (s *section) Dropdown(id, name, desc, value string, options []Option, onChange func(string) error) *Control {
	return s.add(&Control{ID: id, Kind: KindDropdown, Name: name, Description: desc, Value: value, Options: options,
		onChange: stringChange(onChange)})
}

func (s *section) ColorPicker(id, name, value string, onChange func(string) error) *Control {
	return s.add(&Control{ID: id, Kind: KindColor, Name: name, Value: value, onChange: stringChange(onChange)})
}

func (s *section) Search(id, name, desc, value string, suggestions []string, onChange func(string) error) *Control {
	return s.add(&Control{ID: id, Kind: KindSearch, Name: name, Description: desc, Value: value, Suggestions: suggestions,
		onChange: stringChange(onChange)})
}

func (s *section) Button(id, name, desc string, onClick func() error) *Control {
	return s.add(&Control{ID: id, Kind: KindButton, Name: name, Description: desc,
		onChange: func(any) error { return onClick() }})
}

func stringChange(fn func(string) error) func(any) error {
	return func(v any) error { return fn(v.(string)) }
}

// Options builds dropdown options whose label equals their value.
func Options(values ...string) []Option {
	out := make([]Option, len(values))
	for i, v := range values {
		out[i] = Option{Value: v, Label: v}
	}
	return out
}
