// Package testutil provides shared test helpers for setting up vaults and
// note indexes.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/starford/dbfolder/internal/index"
	"github.com/starford/dbfolder/internal/storage"
)

// TestDB creates a temporary SQLite index that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "dbfolder-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary vault directory with a storage.Provider.
func TestVault(t *testing.T) (string, storage.Provider) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// IndexedVault writes files (path -> content) into a new vault and indexes
// them.
func IndexedVault(t *testing.T, files map[string]string) (storage.Provider, *index.DB) {
	t.Helper()
	_, store := TestVault(t)
	for p, content := range files {
		if err := store.Write(p, []byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	db := TestDB(t)
	if _, err := index.Sync(db, store, Logger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	return store, db
}
