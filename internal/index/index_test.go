package index

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/folio/internal/storage"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "folio-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM chapters`).Scan(&count); err != nil {
		t.Fatalf("chapters table missing: %v", err)
	}
}

func TestUpsertAndGetChecksum(t *testing.T) {
	db := testDB(t)
	row := ChapterRow{
		ID:        "c1",
		Title:     "Opening",
		Checksum:  "abc123",
		Status:    "draft",
		WordCount: 4,
		UpdatedAt: time.Now(),
	}
	if err := db.UpsertChapter(row, "The ship left port."); err != nil {
		t.Fatalf("UpsertChapter: %v", err)
	}
	cs, err := db.GetChecksum("c1")
	if err != nil {
		t.Fatalf("GetChecksum: %v", err)
	}
	if cs != "abc123" {
		t.Errorf("checksum = %q, want %q", cs, "abc123")
	}
}

func TestUpsertUpdatesExisting(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertChapter(ChapterRow{ID: "up", Title: "Old", Checksum: "1", UpdatedAt: now}, "old body")
	_ = db.UpsertChapter(ChapterRow{ID: "up", Title: "New", Checksum: "2", Status: "final", WordCount: 2, UpdatedAt: now}, "new body")

	got, err := db.GetChapter("up")
	if err != nil {
		t.Fatalf("GetChapter: %v", err)
	}
	if got == nil || got.Title != "New" || got.Checksum != "2" || got.Status != "final" || got.WordCount != 2 {
		t.Errorf("GetChapter = %+v", got)
	}
	res, _ := db.Search("old", true, 0)
	if len(res) != 0 {
		t.Error("old body should be replaced on upsert")
	}
}

func TestDeleteChapter(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertChapter(ChapterRow{ID: "del", Checksum: "x", UpdatedAt: time.Now()}, "body")

	if err := db.DeleteChapter("del"); err != nil {
		t.Fatalf("DeleteChapter: %v", err)
	}
	cs, _ := db.GetChecksum("del")
	if cs != "" {
		t.Errorf("deleted chapter still has checksum %q", cs)
	}
	if err := db.DeleteChapter("never-there"); err != nil {
		t.Errorf("DeleteChapter unknown: %v", err)
	}
}

func TestGetChecksum_NotFound(t *testing.T) {
	db := testDB(t)
	cs, err := db.GetChecksum("nonexistent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs != "" {
		t.Errorf("expected empty checksum, got %q", cs)
	}
}

func TestGetChapter_NotFound(t *testing.T) {
	db := testDB(t)
	got, err := db.GetChapter("nonexistent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestListChapters_OrderedByTitle(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertChapter(ChapterRow{ID: "b", Title: "Beta", UpdatedAt: now}, "")
	_ = db.UpsertChapter(ChapterRow{ID: "a", Title: "Alpha", UpdatedAt: now}, "")
	_ = db.UpsertChapter(ChapterRow{ID: "c", Title: "Gamma", UpdatedAt: now}, "")

	rows, err := db.ListChapters()
	if err != nil {
		t.Fatalf("ListChapters: %v", err)
	}
	var got []string
	for _, r := range rows {
		got = append(got, r.ID)
	}
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("order = %v, want [a b c]", got)
	}
}

func TestAllChecksums(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertChapter(ChapterRow{ID: "a", Checksum: "1", UpdatedAt: time.Now()}, "")
	_ = db.UpsertChapter(ChapterRow{ID: "b", Checksum: "2", UpdatedAt: time.Now()}, "")

	m, err := db.AllChecksums()
	if err != nil {
		t.Fatalf("AllChecksums: %v", err)
	}
	if len(m) != 2 || m["a"] != "1" || m["b"] != "2" {
		t.Errorf("AllChecksums = %v", m)
	}
}

func TestSearch_CaseSensitivity(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertChapter(ChapterRow{ID: "s", Title: "Storm", UpdatedAt: time.Now()}, "The Storm broke.\nno storm here")

	results, err := db.Search("storm", false, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || len(results[0].Matches) != 2 {
		t.Fatalf("insensitive results = %+v, want 2 matches", results)
	}
	first := results[0].Matches[0]
	if first.Line != 1 || first.Start != 4 || first.End != 9 || first.Content != "The Storm broke." {
		t.Errorf("first match = %+v", first)
	}

	results, err = db.Search("Storm", true, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || len(results[0].Matches) != 1 || results[0].Matches[0].Line != 1 {
		t.Errorf("sensitive results = %+v, want one match on line 1", results)
	}

	results, _ = db.Search("STORM", true, 10)
	if len(results) != 0 {
		t.Errorf("sensitive search should not fold case, got %+v", results)
	}
}

func TestSearch_NonASCIIFolding(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertChapter(ChapterRow{ID: "u", Title: "Übung", UpdatedAt: time.Now()}, "ÜBER alles")

	results, err := db.Search("über", false, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ChapterTitle != "Übung" {
		t.Errorf("results = %+v", results)
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertChapter(ChapterRow{ID: "s", UpdatedAt: time.Now()}, "anything")

	results, err := db.Search("", false, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results != nil {
		t.Errorf("empty query returned %+v", results)
	}
}

func TestSearch_Limit(t *testing.T) {
	db := testDB(t)
	for _, id := range []string{"a", "b", "c"} {
		_ = db.UpsertChapter(ChapterRow{ID: id, Title: id, UpdatedAt: time.Now()}, "shared word")
	}
	results, err := db.Search("shared", true, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("len = %d, want 2", len(results))
	}
}

func TestMatchLines_Overlapping(t *testing.T) {
	got := MatchLines("aaaa", "aa", true)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3: %+v", len(got), got)
	}
	for i, m := range got {
		if m.Start != i || m.End != i+2 {
			t.Errorf("match %d = %+v", i, m)
		}
	}
}

func TestMatchLines_EndUsesQueryLength(t *testing.T) {
	got := MatchLines("say HELLO", "hello", false)
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Start != 4 || got[0].End != 9 || got[0].Content != "say HELLO" {
		t.Errorf("match = %+v", got[0])
	}
}

func TestSearchText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no frontmatter", "plain body", "plain body"},
		{"frontmatter", "---\ntitle: \"A\"\n---\n\nBody", "\n\nBody"},
		{"unterminated", "--- only", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SearchText([]byte(tt.in)); got != tt.want {
				t.Errorf("SearchText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIndexFile_LineNumbersAfterFrontmatter(t *testing.T) {
	db := testDB(t)
	data := []byte("---\ntitle: \"Harbor\"\nstatus: \"final\"\n---\n\nThe gulls cried.\n")
	if err := IndexFile(db, "h1", data, time.Now()); err != nil {
		t.Fatalf("IndexFile: %v", err)
	}

	row, _ := db.GetChapter("h1")
	if row == nil || row.Title != "Harbor" || row.Status != "final" || row.WordCount != 3 {
		t.Errorf("row = %+v", row)
	}
	if row != nil && row.Checksum != storage.Checksum(data) {
		t.Errorf("checksum = %q", row.Checksum)
	}

	results, _ := db.Search("gulls", false, 0)
	if len(results) != 1 || results[0].Matches[0].Line != 3 {
		t.Errorf("results = %+v, want match on line 3", results)
	}
	results, _ = db.Search("Harbor", true, 0)
	if len(results) != 0 {
		t.Errorf("frontmatter should not be searchable, got %+v", results)
	}
}

func TestChapterID(t *testing.T) {
	if got := ChapterID("chapters/abc-123.md"); got != "abc-123" {
		t.Errorf("ChapterID = %q", got)
	}
}

func TestSync(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	db := testDB(t)
	_ = db.UpsertChapter(ChapterRow{ID: "stale", Checksum: "old", UpdatedAt: time.Now()}, "gone")

	if err := os.MkdirAll(filepath.Join(dir, ChaptersDir), 0o755); err != nil {
		t.Fatal(err)
	}
	_ = os.WriteFile(filepath.Join(dir, ChaptersDir, "one.md"), []byte("---\ntitle: \"One\"\n---\n\nfirst"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, ChaptersDir, "notes.txt"), []byte("ignored"), 0o644)

	if err := Sync(db, store, quietLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	m, _ := db.AllChecksums()
	if len(m) != 1 {
		t.Fatalf("checksums = %v, want only one", m)
	}
	if _, ok := m["one"]; !ok {
		t.Errorf("one not indexed: %v", m)
	}
	row, _ := db.GetChapter("one")
	if row == nil || row.Title != "One" {
		t.Errorf("row = %+v", row)
	}
}
