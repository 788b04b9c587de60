package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"sort"
	"time"

	"github.com/spf13/cast"

	"github.com/starford/dbfolder/internal/apperr"
	"github.com/starford/dbfolder/internal/models"
)

// NoteRow represents a row in the notes table.
type NoteRow struct {
	Path        string
	Folder      string
	Name        string
	Title       string
	Checksum    string
	Tags        []string
	Frontmatter map[string]any
	Tasks       []models.Task
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path    string
	Title   string
	Snippet string
}

const defaultSearchLimit = 20

func scanSearch(rows *sql.Rows) ([]SearchResult, error) {
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Path, &r.Title, &r.Snippet); err != nil {
			return nil, fmt.Errorf("index: scan search hit: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// fieldText flattens the scalar frontmatter values of a note, in key order,
// so cell values are searchable.
func fieldText(fm map[string]any) string {
	keys := make([]string, 0, len(fm))
	for k := range fm {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		switch v := fm[k].(type) {
		case []any:
			for _, item := range v {
				if s, err := cast.ToStringE(item); err == nil && s != "" {
					parts = append(parts, s)
				}
			}
		case map[string]any:
		default:
			if s, err := cast.ToStringE(v); err == nil && s != "" {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(parts, " ")
}

const noteColumns = `path, folder, name, title, checksum, tags, frontmatter, tasks, created_at, updated_at`

// FolderOf returns the vault folder of a note path ("" for the root).
func FolderOf(p string) string {
	dir := path.Dir(p)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// NameOf returns the note name: the base name without the .md extension.
func NameOf(p string) string {
	return strings.TrimSuffix(path.Base(p), ".md")
}

// UpsertNote inserts or replaces a note, its FTS entry, and links within a
// transaction. The creation time of an existing note is kept.
func (db *DB) UpsertNote(n NoteRow, body string, links []string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if n.Tags == nil {
		n.Tags = []string{}
	}
	if n.Tasks == nil {
		n.Tasks = []models.Task{}
	}
	tagsJSON, _ := json.Marshal(n.Tags)
	tasksJSON, _ := json.Marshal(n.Tasks)
	fmJSON, err := json.Marshal(jsonSafe(n.Frontmatter))
	if err != nil {
		return fmt.Errorf("index: encode frontmatter: %w", err)
	}
	if n.Frontmatter == nil {
		fmJSON = []byte("{}")
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = time.Now()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = n.UpdatedAt
	}

	_, err = tx.Exec(`
		INSERT INTO notes (path, folder, name, title, checksum, tags, frontmatter, tasks, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title       = excluded.title,
			checksum    = excluded.checksum,
			tags        = excluded.tags,
			frontmatter = excluded.frontmatter,
			tasks       = excluded.tasks,
			body        = excluded.body,
			updated_at  = excluded.updated_at
	`, n.Path, FolderOf(n.Path), NameOf(n.Path), n.Title, n.Checksum, string(tagsJSON),
		string(fmJSON), string(tasksJSON), body, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert note: %w", err)
	}

	// FTS upsert (no-op when FTS5 tag is absent).
	if err := ftsUpsert(tx, n, body); err != nil {
		return err
	}

	// Replace links: delete old then bulk insert.
	_, _ = tx.Exec(`DELETE FROM links WHERE source = ?`, n.Path)
	if len(links) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO links (source, target, type) VALUES (?, ?, 'inline')`)
		if err != nil {
			return fmt.Errorf("index: prepare link insert: %w", err)
		}
		defer stmt.Close()
		for _, target := range links {
			if _, err := stmt.Exec(n.Path, normalizeTarget(target)); err != nil {
				return fmt.Errorf("index: insert link: %w", err)
			}
		}
	}

	return tx.Commit()
}

// normalizeTarget drops a heading or block reference and the .md suffix.
func normalizeTarget(target string) string {
	if i := strings.IndexAny(target, "#^"); i >= 0 {
		target = target[:i]
	}
	return strings.TrimSuffix(strings.TrimSpace(target), ".md")
}

// DeleteNote removes a note, its FTS entry, and outgoing links.
func (db *DB) DeleteNote(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, path)
	_, _ = tx.Exec(`DELETE FROM links WHERE source = ?`, path)
	_, _ = tx.Exec(`DELETE FROM notes WHERE path = ?`, path)

	return tx.Commit()
}

// GetChecksum returns the stored checksum for a note, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM notes WHERE path = ?`, path).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

// GetNote returns one indexed note.
func (db *DB) GetNote(path string) (*NoteRow, error) {
	rows, err := db.conn.Query(`SELECT `+noteColumns+` FROM notes WHERE path = ?`, path)
	if err != nil {
		return nil, fmt.Errorf("index: get note: %w", err)
	}
	notes, err := scanNotes(rows)
	if err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		return nil, fmt.Errorf("index: note %s: %w", path, apperr.ErrNotFound)
	}
	return &notes[0], nil
}

// NotesInFolder returns the notes of folder ("" is the vault root),
// including subfolders when recursive is set.
func (db *DB) NotesInFolder(folder string, recursive bool) ([]NoteRow, error) {
	folder = strings.Trim(folder, "/")
	var (
		rows *sql.Rows
		err  error
	)
	switch {
	case recursive && folder == "":
		rows, err = db.conn.Query(`SELECT ` + noteColumns + ` FROM notes ORDER BY path`)
	case recursive:
		rows, err = db.conn.Query(`SELECT `+noteColumns+` FROM notes
			WHERE folder = ? OR substr(folder, 1, length(?) + 1) = ? || '/'
			ORDER BY path`, folder, folder, folder)
	default:
		rows, err = db.conn.Query(`SELECT `+noteColumns+` FROM notes WHERE folder = ? ORDER BY path`, folder)
	}
	if err != nil {
		return nil, fmt.Errorf("index: notes in folder: %w", err)
	}
	return scanNotes(rows)
}

// NotesWithTag returns notes carrying tag or one of its nested tags.
func (db *DB) NotesWithTag(tag string) ([]NoteRow, error) {
	tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
	rows, err := db.conn.Query(`SELECT `+noteColumns+` FROM notes
		WHERE EXISTS (
			SELECT 1 FROM json_each(notes.tags)
			WHERE json_each.value = ? OR substr(json_each.value, 1, length(?) + 1) = ? || '/'
		)
		ORDER BY path`, tag, tag, tag)
	if err != nil {
		return nil, fmt.Errorf("index: notes with tag: %w", err)
	}
	return scanNotes(rows)
}

// NotesByPath returns the indexed notes among paths, ordered by path.
func (db *DB) NotesByPath(paths []string) ([]NoteRow, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	args := make([]any, len(paths))
	for i, p := range paths {
		args[i] = p
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(paths)), ",")
	rows, err := db.conn.Query(`SELECT `+noteColumns+` FROM notes WHERE path IN (`+placeholders+`) ORDER BY path`, args...)
	if err != nil {
		return nil, fmt.Errorf("index: notes by path: %w", err)
	}
	return scanNotes(rows)
}

// Databases returns every note marked as a database in its frontmatter.
func (db *DB) Databases() ([]NoteRow, error) {
	rows, err := db.conn.Query(`SELECT `+noteColumns+` FROM notes
		WHERE json_extract(frontmatter, ?) IS NOT NULL
		ORDER BY path`, `$."`+models.FrontmatterKey+`"`)
	if err != nil {
		return nil, fmt.Errorf("index: databases: %w", err)
	}
	return scanNotes(rows)
}

// ResolveLink returns the path of the note a wikilink target points to.
// An exact path match wins over a name match.
func (db *DB) ResolveLink(target string) (string, error) {
	target = normalizeTarget(target)
	if target == "" {
		return "", fmt.Errorf("index: resolve empty link: %w", apperr.ErrNotFound)
	}
	var p string
	err := db.conn.QueryRow(`SELECT path FROM notes
		WHERE path = ? OR name = ?
		ORDER BY path = ? DESC, length(path), path
		LIMIT 1`, target+".md", NameOf(target+".md"), target+".md").Scan(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("index: resolve %s: %w", target, apperr.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("index: resolve %s: %w", target, err)
	}
	return p, nil
}

// AllPaths returns every indexed note path.
func (db *DB) AllPaths() (map[string]struct{}, error) {
	rows, err := db.conn.Query(`SELECT path FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all paths: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out[p] = struct{}{}
	}
	return out, rows.Err()
}

// AllChecksums returns path -> checksum for every indexed note.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// Backlinks returns the notes linking to the note at path, by full path or
// by name.
func (db *DB) Backlinks(path string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT DISTINCT source FROM links WHERE target IN (?, ?) ORDER BY source`,
		strings.TrimSuffix(path, ".md"), NameOf(path))
	if err != nil {
		return nil, fmt.Errorf("index: backlinks: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Outlinks returns the resolved paths the note at path links to. Targets
// without a matching note are skipped.
func (db *DB) Outlinks(path string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT target FROM links WHERE source = ? ORDER BY rowid`, path)
	if err != nil {
		return nil, fmt.Errorf("index: outlinks: %w", err)
	}
	var targets []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			rows.Close()
			return nil, err
		}
		targets = append(targets, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(targets))
	var out []string
	for _, t := range targets {
		p, err := db.ResolveLink(t)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

func scanNotes(rows *sql.Rows) ([]NoteRow, error) {
	defer rows.Close()
	var out []NoteRow
	for rows.Next() {
		var (
			n               NoteRow
			tags, fm, tasks string
		)
		if err := rows.Scan(&n.Path, &n.Folder, &n.Name, &n.Title, &n.Checksum,
			&tags, &fm, &tasks, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("index: scan note: %w", err)
		}
		_ = json.Unmarshal([]byte(tags), &n.Tags)
		_ = json.Unmarshal([]byte(fm), &n.Frontmatter)
		_ = json.Unmarshal([]byte(tasks), &n.Tasks)
		out = append(out, n)
	}
	return out, rows.Err()
}

// jsonSafe converts yaml-decoded values into shapes encoding/json accepts.
func jsonSafe(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = jsonSafe(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = jsonSafe(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = jsonSafe(item)
		}
		return out
	}
	return v
}
