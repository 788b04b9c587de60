package index

// NoteIndex defines the interface for note indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type NoteIndex interface {
	UpsertNote(n NoteRow, body string, links []string) error
	DeleteNote(path string) error
	GetChecksum(path string) (string, error)
	GetNote(path string) (*NoteRow, error)
	NotesInFolder(folder string, recursive bool) ([]NoteRow, error)
	NotesWithTag(tag string) ([]NoteRow, error)
	NotesByPath(paths []string) ([]NoteRow, error)
	Databases() ([]NoteRow, error)
	ResolveLink(target string) (string, error)
	Search(query string, limit int) ([]SearchResult, error)
	Backlinks(path string) ([]string, error)
	Outlinks(path string) ([]string, error)
	AllPaths() (map[string]struct{}, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies NoteIndex at compile time.
var _ NoteIndex = (*DB)(nil)
