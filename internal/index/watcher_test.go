package index

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/starford/dbfolder/internal/storage"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) record(kind, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind+":"+path)
}

func (r *recorder) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.events, event)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

type watchEnv struct {
	dir   string
	store storage.Provider
	db    *DB
	rec   *recorder
}

// startWatch indexes files, then runs the watcher until the test ends.
func startWatch(t *testing.T, files map[string]string) *watchEnv {
	t.Helper()
	dir := t.TempDir()
	for p, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	db := testDB(t)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	if _, err := Sync(db, store, logger); err != nil {
		t.Fatal(err)
	}

	env := &watchEnv{dir: dir, store: store, db: db, rec: &recorder{}}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Watch(ctx, db, store, dir, logger, env.rec.record)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
	return env
}

func (e *watchEnv) write(t *testing.T, p, content string) {
	t.Helper()
	full := filepath.Join(e.dir, filepath.FromSlash(p))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (e *watchEnv) indexed(p string) bool {
	cs, _ := e.db.GetChecksum(p)
	return cs != ""
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestWatcher_NewRowIndexed(t *testing.T) {
	env := startWatch(t, nil)

	env.write(t, "books/dune.md", "---\nstatus: Todo\n---\n# Dune\n")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return env.rec.has("created:books/dune.md")
	}, "expected created:books/dune.md callback")
	note, err := env.db.GetNote("books/dune.md")
	if err != nil {
		t.Fatal(err)
	}
	if note.Frontmatter["status"] != "Todo" {
		t.Errorf("frontmatter = %v", note.Frontmatter)
	}
}

func TestWatcher_CellEditReportsUpdate(t *testing.T) {
	env := startWatch(t, map[string]string{"books/dune.md": "---\nstatus: Todo\n---\n"})

	env.write(t, "books/dune.md", "---\nstatus: Done\n---\n")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return env.rec.has("updated:books/dune.md")
	}, "expected updated:books/dune.md callback")
}

func TestWatcher_UnchangedContentIsQuiet(t *testing.T) {
	const content = "---\nstatus: Todo\n---\n"
	env := startWatch(t, map[string]string{"books/dune.md": content, "books/emma.md": "# Emma\n"})

	env.write(t, "books/dune.md", content)
	env.write(t, "books/emma.md", "# Emma, revised\n")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return env.rec.has("updated:books/emma.md")
	}, "expected updated:books/emma.md callback")
	if got := env.rec.snapshot(); slices.Contains(got, "updated:books/dune.md") {
		t.Errorf("rewrite with identical content reported: %v", got)
	}
}

func TestWatcher_NewFolderWatched(t *testing.T) {
	env := startWatch(t, nil)

	if err := os.MkdirAll(filepath.Join(env.dir, "films"), 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(settleDelay * 2)
	env.write(t, "films/alien.md", "# Alien\n")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return env.indexed("films/alien.md")
	}, "note in new folder not indexed")
}

func TestWatcher_DeleteRemovesRow(t *testing.T) {
	env := startWatch(t, map[string]string{"books/dune.md": "# Dune\n"})

	if err := os.Remove(filepath.Join(env.dir, "books", "dune.md")); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return !env.indexed("books/dune.md") && env.rec.has("deleted:books/dune.md")
	}, "deleted note still indexed")
}

func TestWatcher_RenameReconciles(t *testing.T) {
	env := startWatch(t, map[string]string{"books/old.md": "# Rename\n"})

	if err := os.Rename(filepath.Join(env.dir, "books", "old.md"), filepath.Join(env.dir, "books", "renamed.md")); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return !env.indexed("books/old.md") && env.indexed("books/renamed.md")
	}, "rename reconciliation failed: old path should be removed and new path indexed")
}

func TestWatcher_IgnoresHiddenAndNonMarkdown(t *testing.T) {
	env := startWatch(t, map[string]string{"books/emma.md": "# Emma\n"})

	env.write(t, "books/.draft.md", "# Hidden\n")
	env.write(t, "books/cover.png", "png")
	env.write(t, "books/dune.md", "# Dune\n")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return env.indexed("books/dune.md")
	}, "visible note not indexed")
	if env.indexed("books/.draft.md") {
		t.Error("hidden note indexed")
	}
}
