package parser

import (
	"regexp"
	"strings"

	"github.com/starford/dbfolder/internal/apperr"
)

// Database block sentinels.
const (
	BlockStart       = "```yaml:dbfolder"
	BlockEnd         = "```"
	LegacyBlockStart = "%% dbfolder:yaml"
	LegacyBlockEnd   = "%%"
)

var (
	blockRe       = regexp.MustCompile("```yaml:dbfolder\\s+([\\w\\W]+?)\\s+```")
	legacyBlockRe = regexp.MustCompile(`%% dbfolder:yaml\s+([\w\W]+?)\s+%%`)
)

// ExtractDatabaseBlock returns the YAML text of the database block. legacy
// reports whether the block used the old %% delimiters.
func ExtractDatabaseBlock(content []byte) (yamlText string, legacy bool, err error) {
	if m := blockRe.FindSubmatch(content); m != nil {
		return string(m[1]), false, nil
	}
	if m := legacyBlockRe.FindSubmatch(content); m != nil {
		return string(m[1]), true, nil
	}
	return "", false, apperr.ErrNoDatabaseBlock
}

// ReplaceDatabaseBlock swaps the database block of content for yamlText,
// converting a legacy block to the current form. Content without a block
// gets one appended.
func ReplaceDatabaseBlock(content []byte, yamlText string) []byte {
	block := BlockStart + "\n" + strings.TrimRight(yamlText, "\n") + "\n" + BlockEnd

	loc := blockRe.FindIndex(content)
	if loc == nil {
		loc = legacyBlockRe.FindIndex(content)
	}
	if loc == nil {
		out := strings.TrimRight(string(content), "\n")
		if out != "" {
			out += "\n\n"
		}
		return []byte(out + block + "\n")
	}

	out := make([]byte, 0, len(content)+len(block))
	out = append(out, content[:loc[0]]...)
	out = append(out, block...)
	out = append(out, content[loc[1]:]...)
	return out
}
