package marshal

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cast"

	"github.com/starford/dbfolder/internal/chain"
	"github.com/starford/dbfolder/internal/models"
)

const defaultDatabaseName = "new database"

var (
	localDefaults  = entriesOf(models.DefaultLocalSettings())
	columnDefaults = entriesOf(models.DefaultColumnConfig())
)

// Column flags coerced to booleans when present.
var columnFlags = []string{
	"isHidden", "isSorted", "isSortedDesc", "isMetadata",
	"skipPersist", "isDragDisabled", "csvCandidate",
}

func databaseInfoHandler() *chain.Step[*Response] {
	return chain.Func(TitleDatabaseInfo, func(s *chain.Step[*Response], r *Response) *Response {
		switch name := r.Yaml["name"].(type) {
		case nil:
			r.Yaml["name"] = defaultDatabaseName
			s.AddError(fmt.Sprintf("name was not defined. Default value %s loaded", defaultDatabaseName))
		case string:
		default:
			r.Yaml["name"] = cast.ToString(name)
		}
		switch desc := r.Yaml["description"].(type) {
		case nil:
			r.Yaml["description"] = ""
		case string:
		default:
			r.Yaml["description"] = cast.ToString(desc)
		}
		return s.GoNext(r)
	})
}

func columnsHandler() *chain.Step[*Response] {
	return chain.Func(TitleColumns, func(s *chain.Step[*Response], r *Response) *Response {
		raw, ok := asMap(r.Yaml["columns"])
		if !ok {
			r.Yaml["columns"] = map[string]any{}
			s.AddError("columns were not defined. An empty column set loaded")
			return s.GoNext(r)
		}

		ids := make([]string, 0, len(raw))
		for id := range raw {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		out := make(map[string]any, len(raw))
		for i, id := range ids {
			col, ok := asMap(raw[id])
			if !ok {
				s.AddError(fmt.Sprintf("column %s is not a mapping and was dropped", id))
				continue
			}
			repairColumn(s, id, i, col)
			out[id] = col
		}
		r.Yaml["columns"] = out
		return s.GoNext(r)
	})
}

func repairColumn(s *chain.Step[*Response], id string, index int, col map[string]any) {
	for _, field := range []string{"key", "accessorKey", "label"} {
		switch v := col[field].(type) {
		case nil:
			col[field] = id
			s.AddError(fmt.Sprintf("column %s: %s was not defined. Default value %s loaded", id, field, id))
		case string:
			if v == "" {
				col[field] = id
			}
		default:
			col[field] = cast.ToString(v)
		}
	}

	input := models.InputType(cast.ToString(col["input"]))
	if !input.Valid() {
		col["input"] = string(models.InputText)
		s.AddError(fmt.Sprintf("column %s: input %q is not valid. Default value %s loaded", id, input, models.InputText))
	}

	if pos, err := cast.ToIntE(col["position"]); err != nil || col["position"] == nil {
		col["position"] = index
	} else {
		col["position"] = pos
	}

	for _, flag := range columnFlags {
		if v, ok := col[flag]; ok && v != nil {
			col[flag] = ToBool(v)
		}
	}

	col["options"] = repairOptions(s, id, col["options"])

	config, ok := asMap(col["config"])
	if !ok {
		col["config"] = defaultsMap(columnDefaults)
		s.AddError(fmt.Sprintf("column %s: config was not defined. Default column config loaded", id))
		return
	}
	fillColumnConfig(s, id, config)
	col["config"] = config
}

func fillColumnConfig(s *chain.Step[*Response], id string, config map[string]any) {
	for _, e := range columnDefaults {
		loaded, ok := config[e.key]
		if !ok || loaded == nil {
			config[e.key] = e.value
			s.AddError(fmt.Sprintf("column %s: %s was not defined. Default value %v loaded", id, e.key, e.value))
			continue
		}
		switch def := e.value.(type) {
		case bool:
			config[e.key] = ToBool(loaded)
		case int:
			n, err := cast.ToIntE(loaded)
			if err != nil {
				config[e.key] = def
				s.AddError(fmt.Sprintf("column %s: %s has invalid value %v. Default value %d loaded", id, e.key, loaded, def))
				continue
			}
			config[e.key] = n
		}
	}
	for _, key := range []string{"content_alignment", "formula_query", "related_note_path", "asociated_relation_id", "rollup_action", "rollup_key"} {
		if v, ok := config[key]; ok && v != nil {
			if _, isStr := v.(string); !isStr {
				config[key] = cast.ToString(v)
			}
		}
	}
}

// repairOptions normalizes select options. Plain strings become options
// without color; entries without a label are dropped.
func repairOptions(s *chain.Step[*Response], id string, v any) []any {
	list, ok := v.([]any)
	if !ok {
		return []any{}
	}
	out := make([]any, 0, len(list))
	for _, item := range list {
		switch o := item.(type) {
		case string:
			if o == "" {
				continue
			}
			out = append(out, map[string]any{"label": o, "color": ""})
			s.AddError(fmt.Sprintf("column %s: option %q had no color", id, o))
		default:
			m, ok := asMap(o)
			label := strings.TrimSpace(cast.ToString(m["label"]))
			if !ok || label == "" {
				s.AddError(fmt.Sprintf("column %s: option without label dropped", id))
				continue
			}
			out = append(out, map[string]any{"label": label, "color": cast.ToString(m["color"])})
		}
	}
	return out
}

func configurationHandler() *chain.Step[*Response] {
	return chain.Func(TitleConfig, func(s *chain.Step[*Response], r *Response) *Response {
		config, ok := asMap(r.Yaml["config"])
		if !ok {
			r.Yaml["config"] = defaultsMap(localDefaults)
			s.AddError("configuration was null or invalid. Default configuration loaded")
			return s.GoNext(r)
		}
		fillDefaults(s, config, localDefaults)
		r.Yaml["config"] = config
		return s.GoNext(r)
	})
}

func filtersHandler() *chain.Step[*Response] {
	return chain.Func(TitleFilters, func(s *chain.Step[*Response], r *Response) *Response {
		filters, ok := asMap(r.Yaml["filters"])
		if !ok {
			r.Yaml["filters"] = map[string]any{"enabled": false, "conditions": []any{}}
			s.AddError("filters were not defined. Empty filters loaded")
			return s.GoNext(r)
		}
		filters["enabled"] = ToBool(filters["enabled"])
		conditions, _ := filters["conditions"].([]any)
		filters["conditions"] = repairFilters(s, conditions, "conditions")
		r.Yaml["filters"] = filters
		return s.GoNext(r)
	})
}

// repairFilters walks the filter tree without a depth limit.
func repairFilters(s *chain.Step[*Response], list []any, path string) []any {
	out := make([]any, 0, len(list))
	for i, item := range list {
		at := fmt.Sprintf("%s[%d]", path, i)
		node, ok := asMap(item)
		if !ok {
			s.AddError(fmt.Sprintf("%s is not a filter and was dropped", at))
			continue
		}
		if _, isGroup := node["condition"]; isGroup {
			cond := strings.ToUpper(cast.ToString(node["condition"]))
			if cond != models.ConditionAnd && cond != models.ConditionOr {
				s.AddError(fmt.Sprintf("%s: condition %q is not valid. Default value %s loaded", at, cond, models.ConditionAnd))
				cond = models.ConditionAnd
			}
			node["condition"] = cond
			node["disabled"] = ToBool(node["disabled"])
			children, _ := node["filters"].([]any)
			node["filters"] = repairFilters(s, children, at+".filters")
			out = append(out, node)
			continue
		}
		field := cast.ToString(node["field"])
		operator := cast.ToString(node["operator"])
		if field == "" || operator == "" {
			s.AddError(fmt.Sprintf("%s: filter without field or operator dropped", at))
			continue
		}
		node["field"] = field
		node["operator"] = operator
		node["type"] = cast.ToString(node["type"])
		if v, ok := node["value"]; ok && v != nil {
			node["value"] = cast.ToString(v)
		}
		out = append(out, node)
	}
	return out
}
