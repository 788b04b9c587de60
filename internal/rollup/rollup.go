// Package rollup aggregates a field across the notes a relation column links
// to.
package rollup

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/spf13/cast"

	"github.com/starford/dbfolder/internal/apperr"
	"github.com/starford/dbfolder/internal/models"
	"github.com/starford/dbfolder/internal/parser"
)

// Embed actions work on the task list of related notes and take no key.
const (
	ActionAllTasks      = "All Tasks"
	ActionTaskTodo      = "Task TODO"
	ActionTaskCompleted = "Task Completed"
)

// Value actions aggregate the field named by rollup_key.
const (
	ActionSum           = "Summatory"
	ActionCountAll      = "Count All"
	ActionCountUnique   = "Count Unique Values"
	ActionOriginalValue = "Original Value"
	ActionTruthyCount   = "Truthy Count"
	ActionFalsyCount    = "Falsy Count"
	ActionPercentEmpty  = "Percent Empty"
	ActionPercentFilled = "Percent Filled"
)

// ErrKeyRequired is returned when a value action has no rollup_key.
var ErrKeyRequired = errors.New("rollup key required")

// EmbedActions lists the actions that need no key.
func EmbedActions() []string {
	return []string{ActionAllTasks, ActionTaskTodo, ActionTaskCompleted}
}

// ValueActions lists the actions that need a key.
func ValueActions() []string {
	return []string{
		ActionSum, ActionCountAll, ActionCountUnique, ActionOriginalValue,
		ActionTruthyCount, ActionFalsyCount, ActionPercentEmpty, ActionPercentFilled,
	}
}

// Actions lists every action, value actions first.
func Actions() []string {
	return append(ValueActions(), EmbedActions()...)
}

// IsEmbed reports whether action operates on task lists.
func IsEmbed(action string) bool {
	switch action {
	case ActionAllTasks, ActionTaskTodo, ActionTaskCompleted:
		return true
	}
	return false
}

// RequiresKey reports whether action needs a rollup_key.
func RequiresKey(action string) bool {
	for _, a := range ValueActions() {
		if a == action {
			return true
		}
	}
	return false
}

// Links returns the wikilink targets stored in a relation cell.
func Links(value any) []string {
	switch v := value.(type) {
	case string:
		return parser.Links(v)
	case []any:
		var out []string
		seen := map[string]struct{}{}
		for _, item := range v {
			for _, l := range parser.Links(cast.ToString(item)) {
				if _, dup := seen[l]; dup {
					continue
				}
				seen[l] = struct{}{}
				out = append(out, l)
			}
		}
		return out
	}
	return nil
}

// Compute runs action over the related rows.
func Compute(action, key string, related []*models.Row) (any, error) {
	if IsEmbed(action) {
		return tasks(action, related), nil
	}
	if !RequiresKey(action) {
		return nil, fmt.Errorf("rollup: action %q: %w", action, apperr.ErrUnknownAction)
	}
	if key == "" {
		return nil, fmt.Errorf("rollup: action %q: %w", action, ErrKeyRequired)
	}

	values := make([]any, 0, len(related))
	for _, r := range related {
		v, _ := r.Value(key)
		values = append(values, v)
	}

	switch action {
	case ActionSum:
		sum := 0.0
		for _, v := range flatten(values) {
			if n, err := cast.ToFloat64E(v); err == nil && v != nil {
				sum += n
			}
		}
		return sum, nil
	case ActionCountAll:
		return len(related), nil
	case ActionCountUnique:
		seen := map[string]struct{}{}
		for _, v := range flatten(values) {
			if s := cast.ToString(v); s != "" {
				seen[s] = struct{}{}
			}
		}
		return len(seen), nil
	case ActionOriginalValue:
		var out []string
		for _, v := range flatten(values) {
			if s := cast.ToString(v); s != "" {
				out = append(out, s)
			}
		}
		return strings.Join(out, ", "), nil
	case ActionTruthyCount:
		return countTruthy(values), nil
	case ActionFalsyCount:
		return len(values) - countTruthy(values), nil
	case ActionPercentEmpty:
		return percent(len(values)-countFilled(values), len(values)), nil
	case ActionPercentFilled:
		return percent(countFilled(values), len(values)), nil
	}
	return nil, fmt.Errorf("rollup: action %q: %w", action, apperr.ErrUnknownAction)
}

func tasks(action string, related []*models.Row) []models.Task {
	out := []models.Task{}
	for _, r := range related {
		for _, t := range r.Tasks {
			switch {
			case action == ActionTaskTodo && t.Completed:
				continue
			case action == ActionTaskCompleted && !t.Completed:
				continue
			}
			out = append(out, t)
		}
	}
	return out
}

func flatten(values []any) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		if list, ok := v.([]any); ok {
			out = append(out, list...)
			continue
		}
		out = append(out, v)
	}
	return out
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		s := strings.ToLower(strings.TrimSpace(val))
		return s != "" && s != "false" && s != "0"
	case []any:
		return len(val) > 0
	}
	if n, err := cast.ToFloat64E(v); err == nil {
		return n != 0
	}
	return true
}

func countTruthy(values []any) int {
	n := 0
	for _, v := range values {
		if truthy(v) {
			n++
		}
	}
	return n
}

func countFilled(values []any) int {
	n := 0
	for _, v := range values {
		switch val := v.(type) {
		case nil:
		case string:
			if strings.TrimSpace(val) != "" {
				n++
			}
		case []any:
			if len(val) > 0 {
				n++
			}
		default:
			n++
		}
	}
	return n
}

// percent returns part/total as a percentage rounded to two decimals.
func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*10000) / 100
}

// Fields returns the sorted union of frontmatter keys of rows, the
// candidates for a rollup_key.
func Fields(rows []*models.Row) []string {
	seen := map[string]struct{}{}
	for _, r := range rows {
		for k := range r.Values {
			if strings.HasPrefix(k, "__") {
				continue
			}
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
