package index

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/dbfolder/internal/checksum"
	"github.com/starford/dbfolder/internal/parser"
	"github.com/starford/dbfolder/internal/storage"
)

// SyncReport counts what a Sync changed.
type SyncReport struct {
	Indexed   int
	Removed   int
	Failed    int
	Databases int
}

// Sync brings the index in line with the vault: notes whose checksum
// changed are parsed and upserted, and entries whose file is gone are
// removed. Per-note failures are logged and counted, not returned.
func Sync(db *DB, store storage.Provider, logger *slog.Logger) (SyncReport, error) {
	var rep SyncReport

	metas, err := store.List("")
	if err != nil {
		return rep, fmt.Errorf("index: sync: %w", err)
	}
	checksums, err := db.AllChecksums()
	if err != nil {
		return rep, fmt.Errorf("index: sync: %w", err)
	}

	onDisk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		onDisk[m.Path] = struct{}{}
		if checksums[m.Path] == m.Checksum {
			continue
		}
		data, err := store.Read(m.Path)
		if err == nil {
			err = IndexFile(db, m.Path, data, m.UpdatedAt)
		}
		if err != nil {
			rep.Failed++
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		rep.Indexed++
	}

	for p := range checksums {
		if _, ok := onDisk[p]; ok {
			continue
		}
		if err := db.DeleteNote(p); err != nil {
			rep.Failed++
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		rep.Removed++
	}

	dbs, err := db.Databases()
	if err != nil {
		return rep, fmt.Errorf("index: sync: %w", err)
	}
	rep.Databases = len(dbs)

	logger.Info("sync: done",
		slog.Int("notes", len(metas)),
		slog.Int("indexed", rep.Indexed),
		slog.Int("removed", rep.Removed),
		slog.Int("failed", rep.Failed),
		slog.Int("databases", rep.Databases))
	return rep, nil
}

// IndexFile parses data and upserts it into the DB. A zero modTime means
// now.
func IndexFile(db NoteIndex, path string, data []byte, modTime time.Time) error {
	res, err := parser.Parse(data)
	if err != nil {
		return err
	}

	row := NoteRow{
		Path:        path,
		Title:       res.Title,
		Checksum:    checksum.Sum(data),
		Tags:        res.Tags,
		Frontmatter: res.Frontmatter,
		Tasks:       res.Tasks,
		UpdatedAt:   modTime,
	}
	return db.UpsertNote(row, res.Body, res.Links)
}
