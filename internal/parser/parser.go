// Package parser extracts frontmatter, wikilinks, tags, and tasks from
// Markdown content, and rewrites frontmatter fields and database blocks.
package parser

import (
	"bytes"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/dbfolder/internal/models"
)

var (
	wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)
	tagRe      = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
)

const fmDelim = "---"

// Result holds the output of parsing a Markdown file.
type Result struct {
	Frontmatter map[string]any
	Body        string
	Links       []string
	Tags        []string
	Tasks       []models.Task
	Title       string
}

// Parse extracts frontmatter, body, wikilinks, tags, and tasks from raw
// Markdown bytes.
func Parse(data []byte) (*Result, error) {
	fm, body := splitFrontmatter(data)

	return &Result{
		Frontmatter: fm,
		Body:        body,
		Links:       extractLinks(body, fm),
		Tags:        extractTags(body, fm),
		Tasks:       extractTasks(body),
		Title:       deriveTitle(fm, body),
	}, nil
}

// splitRaw separates the raw YAML frontmatter from the body. ok is false when
// the content has no complete frontmatter block.
func splitRaw(data []byte) (yamlBlock, body []byte, ok bool) {
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(fmDelim)) {
		return nil, data, false
	}
	rest := trimmed[len(fmDelim):]
	idx := bytes.Index(rest, []byte("\n"+fmDelim))
	if idx < 0 {
		return nil, data, false
	}
	yamlBlock = bytes.TrimPrefix(rest[:idx], []byte("\n"))
	body = rest[idx+1+len(fmDelim):]
	if nl := bytes.IndexByte(body, '\n'); nl >= 0 && len(bytes.TrimSpace(body[:nl])) == 0 {
		body = body[nl+1:]
	} else if len(bytes.TrimSpace(body)) == 0 {
		body = nil
	}
	return yamlBlock, body, true
}

// splitFrontmatter decodes the frontmatter map. Invalid YAML falls back to
// treating the whole content as body.
func splitFrontmatter(data []byte) (map[string]any, string) {
	raw, body, ok := splitRaw(data)
	if !ok {
		return nil, string(data)
	}
	var fm map[string]any
	if err := yaml.Unmarshal(raw, &fm); err != nil {
		return nil, string(data)
	}
	return fm, strings.TrimLeft(string(body), "\n\r")
}

// extractLinks returns deduplicated wikilink targets from the body and from
// string or list frontmatter values, normalising aliases.
func extractLinks(body string, fm map[string]any) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(text string) {
		for _, m := range wikilinkRe.FindAllStringSubmatch(text, -1) {
			target := m[1]
			if i := strings.Index(target, "|"); i >= 0 {
				target = target[:i]
			}
			target = strings.TrimSpace(target)
			if target == "" {
				continue
			}
			if _, ok := seen[target]; ok {
				continue
			}
			seen[target] = struct{}{}
			out = append(out, target)
		}
	}
	add(body)
	keys := make([]string, 0, len(fm))
	for k := range fm {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch val := fm[k].(type) {
		case string:
			add(val)
		case []any:
			for _, item := range val {
				if s, ok := item.(string); ok {
					add(s)
				}
			}
		}
	}
	return out
}

// extractTags collects #tags from body and from frontmatter "tags" field.
func extractTags(body string, fm map[string]any) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(t string) {
		t = strings.TrimPrefix(strings.TrimSpace(t), "#")
		if t == "" {
			return
		}
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	switch v := fm["tags"].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	case string:
		for _, s := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }) {
			add(s)
		}
	}

	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]any, body string) string {
	if s, ok := fm["title"].(string); ok && s != "" {
		return s
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

// Links returns the deduplicated wikilink targets of text.
func Links(text string) []string {
	return extractLinks(text, nil)
}
