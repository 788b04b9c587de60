// Package filter evaluates and edits filter trees. Every walker is
// structurally recursive, so trees of any depth are supported.
package filter

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/starford/dbfolder/internal/apperr"
	"github.com/starford/dbfolder/internal/models"
)

// Evaluate reports whether row satisfies every top-level filter.
func Evaluate(filters models.Filters, row *models.Row) bool {
	for _, f := range filters {
		if !Matches(f, row) {
			return false
		}
	}
	return true
}

// Apply returns the rows satisfying settings. Disabled settings keep all rows.
func Apply(settings models.FilterSettings, rows []*models.Row) []*models.Row {
	if !settings.Enabled || len(settings.Conditions) == 0 {
		return rows
	}
	out := make([]*models.Row, 0, len(rows))
	for _, r := range rows {
		if Evaluate(settings.Conditions, r) {
			out = append(out, r)
		}
	}
	return out
}

// Matches evaluates a single node. Empty and disabled groups are satisfied.
func Matches(f models.Filter, row *models.Row) bool {
	switch n := f.(type) {
	case *models.ConditionGroup:
		if n.Disabled || len(n.Filters) == 0 {
			return true
		}
		if n.Condition == models.ConditionOr {
			for _, child := range n.Filters {
				if Matches(child, row) {
					return true
				}
			}
			return false
		}
		for _, child := range n.Filters {
			if !Matches(child, row) {
				return false
			}
		}
		return true
	case *models.AtomicFilter:
		v, _ := row.Value(n.Field)
		if isTimeType(n.Type) {
			return compareTime(n.Type, n.Operator, v, n.Value)
		}
		return compare(n.Operator, v, n.Value)
	}
	return true
}

func compare(op string, cell any, literal string) bool {
	switch op {
	case models.OperatorIsEmpty:
		return isEmpty(cell)
	case models.OperatorIsNotEmpty:
		return !isEmpty(cell)
	case models.OperatorEqual:
		return anyElement(cell, func(v any) bool { return equal(v, literal) })
	case models.OperatorNotEqual:
		return !anyElement(cell, func(v any) bool { return equal(v, literal) })
	case models.OperatorContains:
		return anyElement(cell, func(v any) bool { return containsFold(cast.ToString(v), literal) })
	case models.OperatorNotContains:
		return !anyElement(cell, func(v any) bool { return containsFold(cast.ToString(v), literal) })
	case models.OperatorStartsWith:
		return strings.HasPrefix(strings.ToLower(cast.ToString(cell)), strings.ToLower(literal))
	case models.OperatorEndsWith:
		return strings.HasSuffix(strings.ToLower(cast.ToString(cell)), strings.ToLower(literal))
	case models.OperatorGreaterThan:
		return order(cell, literal) > 0
	case models.OperatorLessThan:
		if isEmpty(cell) {
			return false
		}
		return order(cell, literal) < 0
	case models.OperatorGreaterThanOrEqual:
		return order(cell, literal) >= 0
	case models.OperatorLessThanOrEqual:
		if isEmpty(cell) {
			return false
		}
		return order(cell, literal) <= 0
	}
	return true
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []any:
		return len(val) == 0
	case []string:
		return len(val) == 0
	}
	return false
}

// anyElement applies fn to each element of a list cell, or to the cell.
func anyElement(cell any, fn func(any) bool) bool {
	switch list := cell.(type) {
	case []any:
		for _, v := range list {
			if fn(v) {
				return true
			}
		}
		return false
	case []string:
		for _, v := range list {
			if fn(v) {
				return true
			}
		}
		return false
	}
	return fn(cell)
}

func equal(v any, literal string) bool {
	if a, b, ok := numbers(v, literal); ok {
		return a == b
	}
	return cast.ToString(v) == literal
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// order compares numerically when both sides are numbers, otherwise as
// strings.
func order(v any, literal string) int {
	if a, b, ok := numbers(v, literal); ok {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	}
	return strings.Compare(cast.ToString(v), literal)
}

func numbers(v any, literal string) (float64, float64, bool) {
	if _, isBool := v.(bool); isBool || v == nil {
		return 0, 0, false
	}
	a, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, 0, false
	}
	if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
		return 0, 0, false
	}
	b, err := cast.ToFloat64E(strings.TrimSpace(literal))
	if err != nil || strings.TrimSpace(literal) == "" {
		return 0, 0, false
	}
	return a, b, true
}

// Depth returns the nesting depth of the tree. A list of atomic filters has
// depth 1; an empty list has depth 0.
func Depth(filters models.Filters) int {
	depth := 0
	for _, f := range filters {
		d := 1
		if g, ok := f.(*models.ConditionGroup); ok {
			d = 1 + Depth(g.Filters)
		}
		if d > depth {
			depth = d
		}
	}
	return depth
}

// Path addresses a node: the index at each level from the top.
type Path []int

// String renders the path as dotted indexes.
func (p Path) String() string {
	parts := make([]string, len(p))
	for i, idx := range p {
		parts[i] = fmt.Sprint(idx)
	}
	return strings.Join(parts, ".")
}

// ParsePath parses the String form of a Path.
func ParsePath(s string) (Path, error) {
	if s == "" {
		return Path{}, nil
	}
	parts := strings.Split(s, ".")
	out := make(Path, len(parts))
	for i, part := range parts {
		n, err := cast.ToIntE(part)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("filter: path %q: %w", s, apperr.ErrInvalidInput)
		}
		out[i] = n
	}
	return out, nil
}

// Walk visits every node depth-first in order. Returning false from fn skips
// the children of a group.
func Walk(filters models.Filters, fn func(path Path, f models.Filter) bool) {
	walk(filters, nil, fn)
}

func walk(filters models.Filters, prefix Path, fn func(Path, models.Filter) bool) {
	for i, f := range filters {
		p := append(append(Path(nil), prefix...), i)
		if !fn(p, f) {
			continue
		}
		if g, ok := f.(*models.ConditionGroup); ok {
			walk(g.Filters, p, fn)
		}
	}
}

// At returns the node at path.
func At(filters models.Filters, path Path) (models.Filter, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("filter: empty path: %w", apperr.ErrInvalidInput)
	}
	list := filters
	for depth, idx := range path {
		if idx < 0 || idx >= len(list) {
			return nil, fmt.Errorf("filter: path %s: %w", path, apperr.ErrNotFound)
		}
		node := list[idx]
		if depth == len(path)-1 {
			return node, nil
		}
		g, ok := node.(*models.ConditionGroup)
		if !ok {
			return nil, fmt.Errorf("filter: path %s crosses an atomic filter: %w", path, apperr.ErrNotFound)
		}
		list = g.Filters
	}
	return nil, fmt.Errorf("filter: path %s: %w", path, apperr.ErrNotFound)
}

// Insert appends f to the group at parent (the top level for an empty path)
// and returns the edited copy.
func Insert(filters models.Filters, parent Path, f models.Filter) (models.Filters, error) {
	out := filters.Clone()
	if len(parent) == 0 {
		return append(out, f), nil
	}
	node, err := At(out, parent)
	if err != nil {
		return nil, err
	}
	g, ok := node.(*models.ConditionGroup)
	if !ok {
		return nil, fmt.Errorf("filter: %s is not a group: %w", parent, apperr.ErrInvalidInput)
	}
	g.Filters = append(g.Filters, f)
	return out, nil
}

// Remove deletes the node at path and returns the edited copy.
func Remove(filters models.Filters, path Path) (models.Filters, error) {
	return edit(filters, path, func(list models.Filters, idx int) models.Filters {
		return append(list[:idx:idx], list[idx+1:]...)
	})
}

// Replace swaps the node at path for f and returns the edited copy.
func Replace(filters models.Filters, path Path, f models.Filter) (models.Filters, error) {
	return edit(filters, path, func(list models.Filters, idx int) models.Filters {
		list[idx] = f
		return list
	})
}

func edit(filters models.Filters, path Path, fn func(list models.Filters, idx int) models.Filters) (models.Filters, error) {
	out := filters.Clone()
	if _, err := At(out, path); err != nil {
		return nil, err
	}
	last := path[len(path)-1]
	if len(path) == 1 {
		return fn(out, last), nil
	}
	parent, _ := At(out, path[:len(path)-1])
	g := parent.(*models.ConditionGroup)
	g.Filters = fn(g.Filters, last)
	return out, nil
}
