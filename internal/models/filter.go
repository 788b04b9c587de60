package models

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Filter is a node of a filter tree: either *AtomicFilter or *ConditionGroup.
type Filter interface {
	isFilter()
}

// AtomicFilter compares one row field against a literal.
type AtomicFilter struct {
	Field    string `yaml:"field" json:"field"`
	Operator string `yaml:"operator" json:"operator"`
	Type     string `yaml:"type" json:"type"`
	Value    string `yaml:"value,omitempty" json:"value,omitempty"`
}

// ConditionGroup combines nested filters with AND or OR.
type ConditionGroup struct {
	Condition string  `yaml:"condition" json:"condition"`
	Disabled  bool    `yaml:"disabled" json:"disabled"`
	Filters   Filters `yaml:"filters" json:"filters"`
	Label     string  `yaml:"label,omitempty" json:"label,omitempty"`
	Color     string  `yaml:"color,omitempty" json:"color,omitempty"`
}

func (*AtomicFilter) isFilter()   {}
func (*ConditionGroup) isFilter() {}

// Filters is an ordered list of filter nodes.
type Filters []Filter

// UnmarshalYAML decodes each element as a group when it carries a
// "condition" key and as an atomic filter otherwise.
func (f *Filters) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*f = nil
		return nil
	}
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("filters: expected a sequence, got %s", node.Tag)
	}
	out := make(Filters, 0, len(node.Content))
	for _, item := range node.Content {
		var probe struct {
			Condition *string `yaml:"condition"`
		}
		if err := item.Decode(&probe); err != nil {
			return fmt.Errorf("filters: %w", err)
		}
		if probe.Condition != nil {
			var g ConditionGroup
			if err := item.Decode(&g); err != nil {
				return fmt.Errorf("filters: group: %w", err)
			}
			out = append(out, &g)
			continue
		}
		var a AtomicFilter
		if err := item.Decode(&a); err != nil {
			return fmt.Errorf("filters: atomic: %w", err)
		}
		out = append(out, &a)
	}
	*f = out
	return nil
}

// UnmarshalJSON mirrors UnmarshalYAML for API payloads.
func (f *Filters) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("filters: %w", err)
	}
	if raw == nil {
		*f = nil
		return nil
	}
	out := make(Filters, 0, len(raw))
	for _, item := range raw {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(item, &probe); err != nil {
			return fmt.Errorf("filters: %w", err)
		}
		if _, ok := probe["condition"]; ok {
			var g ConditionGroup
			if err := json.Unmarshal(item, &g); err != nil {
				return fmt.Errorf("filters: group: %w", err)
			}
			out = append(out, &g)
			continue
		}
		var a AtomicFilter
		if err := json.Unmarshal(item, &a); err != nil {
			return fmt.Errorf("filters: atomic: %w", err)
		}
		out = append(out, &a)
	}
	*f = out
	return nil
}

// Clone returns a deep copy of the tree.
func (f Filters) Clone() Filters {
	if f == nil {
		return nil
	}
	out := make(Filters, len(f))
	for i, node := range f {
		out[i] = CloneFilter(node)
	}
	return out
}

// CloneFilter returns a deep copy of a single node.
func CloneFilter(node Filter) Filter {
	switch n := node.(type) {
	case *AtomicFilter:
		c := *n
		return &c
	case *ConditionGroup:
		c := *n
		c.Filters = n.Filters.Clone()
		return &c
	}
	return nil
}

// FilterSettings is the persisted filter block of a database.
type FilterSettings struct {
	Enabled    bool    `yaml:"enabled" json:"enabled"`
	Conditions Filters `yaml:"conditions" json:"conditions"`
}

// Clone returns a deep copy of s.
func (s FilterSettings) Clone() FilterSettings {
	return FilterSettings{Enabled: s.Enabled, Conditions: s.Conditions.Clone()}
}
