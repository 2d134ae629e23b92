// Package testutil provides shared test helpers for setting up projects and databases.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/project"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "folio-test-*.db")
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

// TestProject creates a fresh project under a temporary directory.
func TestProject(t *testing.T, title, author string) *project.Project {
	t.Helper()
	p, err := project.Create(t.TempDir(), title, author)
	if err != nil {
		t.Fatalf("project.Create: %v", err)
	}
	return p
}

// Recorder is a Publisher that records what it receives. Titles is keyed by
// chapter id and holds the last title published for it.
type Recorder struct {
	Events  []string
	Titles  map[string]string
	Exports []string
}

// PublishChapterEvent records "kind:id" and the title.
func (r *Recorder) PublishChapterEvent(kind, id, title string) {
	r.Events = append(r.Events, kind+":"+id)
	if r.Titles == nil {
		r.Titles = make(map[string]string)
	}
	r.Titles[id] = title
}

// PublishManuscriptEvent records "manuscript".
func (r *Recorder) PublishManuscriptEvent() {
	r.Events = append(r.Events, "manuscript")
}

// PublishExport records the format.
func (r *Recorder) PublishExport(format, _ string) {
	r.Exports = append(r.Exports, format)
}
