package parser

import "strings"

var unescaper = strings.NewReplacer(`\\`, `\`, `\"`, `"`, `\n`, "\n")

// UnescapeSpecialCharacters decodes the backslash, double quote and newline
// escapes found in string defaults.
func UnescapeSpecialCharacters(s string) string {
	return unescaper.Replace(s)
}
