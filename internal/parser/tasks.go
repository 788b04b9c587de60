package parser

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/starford/dbfolder/internal/models"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.TaskList))

// extractTasks returns every checkbox list item of body in document order.
func extractTasks(body string) []models.Task {
	if !strings.Contains(body, "[") {
		return nil
	}
	source := []byte(body)
	document := markdown.Parser().Parse(text.NewReader(source))

	var out []models.Task
	_ = ast.Walk(document, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		box, ok := n.(*extast.TaskCheckBox)
		if !ok {
			return ast.WalkContinue, nil
		}
		parent := box.Parent()
		line := 0
		if lines := parent.Lines(); lines != nil && lines.Len() > 0 {
			line = 1 + bytes.Count(source[:lines.At(0).Start], []byte("\n"))
		}
		out = append(out, models.Task{
			Text:      strings.TrimSpace(string(parent.Text(source))),
			Completed: box.IsChecked,
			Line:      line,
		})
		return ast.WalkSkipChildren, nil
	})
	return out
}
