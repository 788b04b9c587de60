package parser

import (
	"bytes"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// FieldEdit describes a frontmatter rewrite. Set writes values (new keys are
// appended in sorted order), Remove deletes keys, Rename moves a key while
// keeping its position. QuoteWrap writes the string values of Set as
// double-quoted scalars.
type FieldEdit struct {
	Set       map[string]any
	Remove    []string
	Rename    map[string]string
	QuoteWrap bool
}

// EditFrontmatter applies edit to the frontmatter of content, creating a
// frontmatter block when none exists. Key order and the body are preserved.
func EditFrontmatter(content []byte, edit FieldEdit) ([]byte, error) {
	raw, body, ok := splitRaw(content)
	if !ok {
		body = content
	}

	mapping := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	if ok && len(bytes.TrimSpace(raw)) > 0 {
		var doc yaml.Node
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parser: frontmatter: %w", err)
		}
		if len(doc.Content) > 0 && doc.Content[0].Kind == yaml.MappingNode {
			mapping = doc.Content[0]
		}
	}

	for from, to := range edit.Rename {
		if i := keyIndex(mapping, from); i >= 0 && from != to {
			if j := keyIndex(mapping, to); j >= 0 {
				removePair(mapping, j)
				i = keyIndex(mapping, from)
			}
			mapping.Content[i].Value = to
		}
	}

	for _, key := range edit.Remove {
		if i := keyIndex(mapping, key); i >= 0 {
			removePair(mapping, i)
		}
	}

	keys := make([]string, 0, len(edit.Set))
	for k := range edit.Set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value, err := valueNode(edit.Set[key], edit.QuoteWrap)
		if err != nil {
			return nil, fmt.Errorf("parser: encode %s: %w", key, err)
		}
		if i := keyIndex(mapping, key); i >= 0 {
			mapping.Content[i+1] = value
			continue
		}
		mapping.Content = append(mapping.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
			value,
		)
	}

	var buf bytes.Buffer
	buf.WriteString(fmDelim + "\n")
	if len(mapping.Content) > 0 {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(mapping); err != nil {
			return nil, fmt.Errorf("parser: encode frontmatter: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("parser: encode frontmatter: %w", err)
		}
	}
	buf.WriteString(fmDelim + "\n")
	buf.Write(body)
	return buf.Bytes(), nil
}

func valueNode(v any, quote bool) (*yaml.Node, error) {
	if str, ok := v.(string); ok && quote {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Style: yaml.DoubleQuotedStyle, Value: str}, nil
	}
	var node yaml.Node
	if err := node.Encode(v); err != nil {
		return nil, err
	}
	return &node, nil
}

func keyIndex(mapping *yaml.Node, key string) int {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return i
		}
	}
	return -1
}

func removePair(mapping *yaml.Node, i int) {
	mapping.Content = append(mapping.Content[:i], mapping.Content[i+2:]...)
}
