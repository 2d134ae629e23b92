package index

// ChapterIndex defines the interface for chapter indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type ChapterIndex interface {
	UpsertChapter(c ChapterRow, body string) error
	DeleteChapter(id string) error
	GetChecksum(id string) (string, error)
	GetChapter(id string) (*ChapterRow, error)
	ListChapters() ([]ChapterRow, error)
	Search(query string, caseSensitive bool, limit int) ([]SearchResult, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies ChapterIndex at compile time.
var _ ChapterIndex = (*DB)(nil)
