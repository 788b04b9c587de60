// Package models defines the domain types for dbfolder.
package models

import "time"

// Note represents a parsed Markdown file in the vault.
type Note struct {
	Path        string         `json:"path"`
	Content     []byte         `json:"-"`
	Body        string         `json:"body"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Title       string         `json:"title,omitempty"`
	Links       []string       `json:"links,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Tasks       []Task         `json:"tasks,omitempty"`
	Checksum    string         `json:"checksum"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NoteMetadata is a lightweight representation returned by list operations.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Task is a markdown checkbox list item found in a note body.
type Task struct {
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
	Line      int    `json:"line"`
}

// IsDatabase reports whether the frontmatter marks the note as a database.
func IsDatabase(frontmatter map[string]any) bool {
	if frontmatter == nil {
		return false
	}
	_, ok := frontmatter[FrontmatterKey]
	return ok
}
