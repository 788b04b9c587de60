package marshal

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/starford/dbfolder/internal/chain"
	"github.com/starford/dbfolder/internal/parser"
)

// entry is one key of a defaults record, in declaration order.
type entry struct {
	key   string
	value any
}

// entriesOf lists the yaml keys of a defaults struct with their values.
func entriesOf(v any) []entry {
	var node yaml.Node
	if err := node.Encode(v); err != nil {
		panic(fmt.Sprintf("marshal: encode defaults: %v", err))
	}
	out := make([]entry, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var val any
		if err := node.Content[i+1].Decode(&val); err != nil {
			panic(fmt.Sprintf("marshal: decode default %s: %v", node.Content[i].Value, err))
		}
		out = append(out, entry{key: node.Content[i].Value, value: val})
	}
	return out
}

// defaultsMap returns a fresh map holding every entry.
func defaultsMap(entries []entry) map[string]any {
	m := make(map[string]any, len(entries))
	for _, e := range entries {
		m[e.key] = copyValue(e.value)
	}
	return m
}

func copyValue(v any) any {
	src, ok := v.(map[string]any)
	if !ok {
		return v
	}
	dst := make(map[string]any, len(src))
	for k, val := range src {
		dst[k] = copyValue(val)
	}
	return dst
}

// fillDefaults repairs m against entries. A missing or null key takes the
// default and records a warning unless the default is the empty string.
// Boolean keys are coerced whether or not they were missing.
func fillDefaults[R chain.Response](s *chain.Step[R], m map[string]any, entries []entry) {
	for _, e := range entries {
		loaded, ok := m[e.key]
		if !ok || loaded == nil {
			val := copyValue(e.value)
			if str, isStr := val.(string); isStr {
				val = parser.UnescapeSpecialCharacters(str)
			}
			m[e.key] = val
			if val != "" {
				s.AddError(fmt.Sprintf("%s was not defined. Default value %v loaded", e.key, val))
			}
			continue
		}
		switch def := e.value.(type) {
		case bool:
			m[e.key] = ToBool(loaded)
		case int:
			n, err := cast.ToIntE(loaded)
			if err != nil {
				m[e.key] = def
				s.AddError(fmt.Sprintf("%s has invalid value %v. Default value %d loaded", e.key, loaded, def))
				continue
			}
			m[e.key] = n
		case string:
			if _, isStr := loaded.(string); !isStr {
				m[e.key] = cast.ToString(loaded)
			}
		}
	}
}

// ToBool reports whether the string form of v is "true", ignoring case.
func ToBool(v any) bool {
	return strings.ToLower(cast.ToString(v)) == "true"
}

// asMap accepts both map shapes yaml.v3 produces.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, m != nil
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}
