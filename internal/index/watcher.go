package index

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/dbfolder/internal/apperr"
	"github.com/starford/dbfolder/internal/checksum"
	"github.com/starford/dbfolder/internal/storage"
)

// Event kinds passed to EventCallback.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// EventCallback is called after a watcher-driven index change.
// kind is one of EventCreated, EventUpdated, EventDeleted.
type EventCallback func(kind string, path string)

// settleDelay is how long a note must stay quiet before its events are
// applied. Editors and atomic writes touch a file several times per save.
const settleDelay = 150 * time.Millisecond

// watcher coalesces fsnotify events per note and applies them to the index
// once the vault settles.
type watcher struct {
	db     *DB
	store  storage.Provider
	root   string
	logger *slog.Logger
	cb     EventCallback
	fsw    *fsnotify.Watcher

	pending   map[string]struct{}
	reconcile bool
}

// Watch starts an fsnotify watcher on the vault root and keeps the index in
// step with the notes on disk until ctx is cancelled.
//
// Events are batched per note. A note whose content still matches the
// indexed checksum produces no callback, so writes the service already
// indexed itself are not reported twice. Renames and new directories
// trigger a reconciliation pass over the whole vault.
func Watch(ctx context.Context, db *DB, store storage.Provider, vaultRoot string, logger *slog.Logger, cb EventCallback) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := addDirsRecursive(fsw, vaultRoot); err != nil {
		return err
	}
	if cb == nil {
		cb = func(string, string) {}
	}
	w := &watcher{
		db:      db,
		store:   store,
		root:    vaultRoot,
		logger:  logger,
		cb:      cb,
		fsw:     fsw,
		pending: make(map[string]struct{}),
	}

	logger.Info("watcher: started", slog.String("root", vaultRoot))

	settle := time.NewTimer(settleDelay)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case <-settle.C:
			w.flush()

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if w.observe(ev) {
				settle.Reset(settleDelay)
			}

		case watchErr, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// observe records ev and reports whether anything became pending.
func (w *watcher) observe(ev fsnotify.Event) bool {
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if strings.HasPrefix(info.Name(), ".") {
				return false
			}
			if err := addDirsRecursive(w.fsw, ev.Name); err != nil {
				w.logger.Warn("watcher: add new dir failed",
					slog.String("path", ev.Name),
					slog.String("error", err.Error()))
			}
			// Files moved in with the directory raise no events of their own.
			w.reconcile = true
			return true
		}
	}

	rel, ok := w.notePath(ev.Name)
	if !ok {
		return false
	}
	w.pending[rel] = struct{}{}
	if ev.Op&fsnotify.Rename != 0 {
		// Rename fires on the old path only; the new path may land outside
		// any watched directory.
		w.reconcile = true
	}
	return true
}

// notePath maps an absolute event path to a vault-relative note path.
// Hidden files and non-markdown files are ignored.
func (w *watcher) notePath(abs string) (string, bool) {
	if !strings.HasSuffix(abs, ".md") || strings.HasPrefix(filepath.Base(abs), ".") {
		return "", false
	}
	rel, err := filepath.Rel(w.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// flush applies every pending note in path order, then reconciles if a
// rename or new directory was seen.
func (w *watcher) flush() {
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	w.pending = make(map[string]struct{})

	for _, p := range paths {
		w.apply(p)
	}
	if w.reconcile {
		w.reconcile = false
		w.reconcileVault()
	}
}

// apply brings one note's index entry in line with the disk.
func (w *watcher) apply(p string) {
	indexed, err := w.db.GetChecksum(p)
	if err != nil {
		w.logger.Warn("watcher: checksum lookup failed", slog.String("path", p), slog.String("error", err.Error()))
		return
	}

	data, err := w.store.Read(p)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		if indexed == "" {
			return
		}
		if err := w.db.DeleteNote(p); err != nil {
			w.logger.Warn("watcher: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			return
		}
		w.logger.Debug("watcher: deleted", slog.String("path", p))
		w.cb(EventDeleted, p)
		return
	case err != nil:
		w.logger.Warn("watcher: read failed", slog.String("path", p), slog.String("error", err.Error()))
		return
	}

	if checksum.Sum(data) == indexed {
		return
	}
	if err := IndexFile(w.db, p, data, time.Now()); err != nil {
		w.logger.Warn("watcher: index failed", slog.String("path", p), slog.String("error", err.Error()))
		return
	}
	kind := EventUpdated
	if indexed == "" {
		kind = EventCreated
	}
	w.logger.Debug("watcher: indexed", slog.String("path", p), slog.String("op", kind))
	w.cb(kind, p)
}

// reconcileVault removes index entries whose files are gone and indexes
// files whose checksum differs from the index.
func (w *watcher) reconcileVault() {
	checksums, err := w.db.AllChecksums()
	if err != nil {
		w.logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}
	metas, err := w.store.List("")
	if err != nil {
		w.logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	seen := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		seen[m.Path] = struct{}{}
		if checksums[m.Path] != m.Checksum {
			w.apply(m.Path)
		}
	}
	for p := range checksums {
		if _, ok := seen[p]; !ok {
			w.apply(p)
		}
	}
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the
// watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return w.Add(path)
		}
		return nil
	})
}
