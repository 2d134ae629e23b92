package projectservice

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/export"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/project"
	"github.com/starford/folio/internal/testutil"
)

func testService(t *testing.T) (*Service, *testutil.Recorder) {
	t.Helper()
	rec := &testutil.Recorder{}
	proj := testutil.TestProject(t, "Tide", "Ana")
	svc := NewService(proj, testutil.TestDB(t), WithPublisher(rec))
	return svc, rec
}

func TestCreateAndGetChapter(t *testing.T) {
	svc, rec := testService(t)
	ctx := context.Background()

	created, err := svc.CreateChapter(ctx, "Arrival", "", "The boat came in.")
	if err != nil {
		t.Fatalf("CreateChapter: %v", err)
	}
	if created.Title != "Arrival" || created.WordCount != 4 || created.Checksum == "" {
		t.Errorf("created = %+v", created)
	}

	got, err := svc.GetChapter(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetChapter: %v", err)
	}
	if got.Content != "The boat came in." || got.Checksum != created.Checksum {
		t.Errorf("got = %+v", got)
	}
	if len(rec.Events) != 1 || rec.Events[0] != "created:"+created.ID {
		t.Errorf("events = %v", rec.Events)
	}
	if rec.Titles[created.ID] != "Arrival" {
		t.Errorf("published title = %q", rec.Titles[created.ID])
	}

	state := svc.Project(ctx)
	if state.TotalWordCount != 4 || state.Metadata.Title != "Tide" {
		t.Errorf("state = %+v", state)
	}
}

func TestGetChapter_NotFound(t *testing.T) {
	svc, _ := testService(t)
	_, err := svc.GetChapter(context.Background(), "missing")
	if !errors.Is(err, apperr.ErrChapterNotFound) {
		t.Errorf("err = %v, want ErrChapterNotFound", err)
	}
}

func TestUpdateChapter_OptimisticLocking(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()
	c, _ := svc.CreateChapter(ctx, "One", "", "v1")

	content := "v2 is longer"
	status := models.StatusRevised
	updated, err := svc.UpdateChapter(ctx, c.ID, ChapterUpdate{Content: &content, Status: &status}, c.Checksum)
	if err != nil {
		t.Fatalf("UpdateChapter: %v", err)
	}
	if updated.Content != content || updated.Status != models.StatusRevised || updated.WordCount != 3 {
		t.Errorf("updated = %+v", updated)
	}
	if updated.Checksum == c.Checksum {
		t.Error("checksum did not change")
	}

	stale := "v3"
	_, err = svc.UpdateChapter(ctx, c.ID, ChapterUpdate{Content: &stale}, c.Checksum)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("stale update err = %v, want ErrConflict", err)
	}

	node := svc.Project(ctx).Structure.Nodes[c.ID]
	if node.WordCount != 3 || node.Status != models.StatusRevised {
		t.Errorf("node = %+v", node)
	}
}

func TestUpdateChapter_MoodAndPOV(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()
	c, _ := svc.CreateChapter(ctx, "One", "", "")

	mood, pov := "tense", "Mira"
	got, err := svc.UpdateChapter(ctx, c.ID, ChapterUpdate{Mood: &mood, POV: &pov}, "")
	if err != nil {
		t.Fatalf("UpdateChapter: %v", err)
	}
	if got.Mood == nil || *got.Mood != "tense" || got.POV == nil || *got.POV != "Mira" {
		t.Errorf("got = %+v", got)
	}

	empty := ""
	got, _ = svc.UpdateChapter(ctx, c.ID, ChapterUpdate{Mood: &empty}, "")
	if got.Mood != nil {
		t.Errorf("mood = %q, want cleared", *got.Mood)
	}
}

func TestRenameChapter(t *testing.T) {
	svc, rec := testService(t)
	ctx := context.Background()
	c, _ := svc.CreateChapter(ctx, "Old", "", "")

	got, err := svc.RenameChapter(ctx, c.ID, "New")
	if err != nil {
		t.Fatalf("RenameChapter: %v", err)
	}
	if got.Title != "New" {
		t.Errorf("title = %q", got.Title)
	}
	if svc.Project(ctx).Structure.Nodes[c.ID].Title != "New" {
		t.Error("node title not updated")
	}
	if rec.Events[len(rec.Events)-1] != "updated:"+c.ID || rec.Titles[c.ID] != "New" {
		t.Errorf("events = %v, titles = %v", rec.Events, rec.Titles)
	}
}

func TestDeleteChapter(t *testing.T) {
	svc, rec := testService(t)
	ctx := context.Background()
	c, _ := svc.CreateChapter(ctx, "Gone", "", "unique marker")

	if err := svc.DeleteChapter(ctx, c.ID); err != nil {
		t.Fatalf("DeleteChapter: %v", err)
	}
	if _, err := svc.GetChapter(ctx, c.ID); !errors.Is(err, apperr.ErrChapterNotFound) {
		t.Errorf("GetChapter after delete err = %v", err)
	}
	results, _ := svc.Search(ctx, "marker", false, 0)
	if len(results) != 0 {
		t.Errorf("deleted chapter still searchable: %+v", results)
	}
	if rec.Events[len(rec.Events)-1] != "deleted:"+c.ID {
		t.Errorf("events = %v", rec.Events)
	}
	if rec.Titles[c.ID] != "Gone" {
		t.Errorf("deleted title = %q", rec.Titles[c.ID])
	}

	n := len(rec.Events)
	if err := svc.DeleteChapter(ctx, c.ID); err != nil {
		t.Errorf("second delete err = %v", err)
	}
	if len(rec.Events) != n {
		t.Errorf("second delete published %v", rec.Events[n:])
	}
}

func TestDeleteChapter_DropsDanglingReferences(t *testing.T) {
	svc, rec := testService(t)
	ctx := context.Background()
	kept, _ := svc.CreateChapter(ctx, "Kept", "", "")

	// A hand-edited structure can name a node that does not exist.
	st := &svc.proj.Structure
	st.Nodes[st.Root].Children = append(st.Nodes[st.Root].Children, "ghost")
	st.Order = append(st.Order, "ghost")
	if err := svc.proj.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	n := len(rec.Events)

	if err := svc.DeleteChapter(ctx, "ghost"); err != nil {
		t.Fatalf("DeleteChapter: %v", err)
	}
	got := svc.Project(ctx).Structure
	if want := []string{kept.ID}; !slices.Equal(got.Nodes[got.Root].Children, want) {
		t.Errorf("root children = %v, want %v", got.Nodes[got.Root].Children, want)
	}
	if want := []string{kept.ID}; !slices.Equal(got.Order, want) {
		t.Errorf("order = %v, want %v", got.Order, want)
	}
	if len(rec.Events) != n {
		t.Errorf("ghost delete published %v", rec.Events[n:])
	}

	reopened, err := project.Open(svc.Path())
	if err != nil {
		t.Fatalf("project.Open: %v", err)
	}
	if slices.Contains(reopened.Structure.Order, "ghost") {
		t.Errorf("saved order still has ghost: %v", reopened.Structure.Order)
	}
}

func TestChapterIDsStayInChaptersDir(t *testing.T) {
	svc, rec := testService(t)
	ctx := context.Background()

	// A markdown file elsewhere in the project must not be reachable by id.
	out, err := svc.ExportFile(ctx, export.FormatMarkdown, "")
	if err != nil {
		t.Fatalf("ExportFile: %v", err)
	}
	content := "overwritten"
	ids := []string{"../exports/Tide", "..", "a/b", `a\b`, ""}
	for _, id := range ids {
		t.Run(id, func(t *testing.T) {
			if _, err := svc.GetChapter(ctx, id); !errors.Is(err, apperr.ErrInvalidID) {
				t.Errorf("GetChapter err = %v", err)
			}
			if _, err := svc.UpdateChapter(ctx, id, ChapterUpdate{Content: &content}, ""); !errors.Is(err, apperr.ErrInvalidID) {
				t.Errorf("UpdateChapter err = %v", err)
			}
			if _, err := svc.RenameChapter(ctx, id, "x"); !errors.Is(err, apperr.ErrInvalidID) {
				t.Errorf("RenameChapter err = %v", err)
			}
			if err := svc.DeleteChapter(ctx, id); !errors.Is(err, apperr.ErrInvalidID) {
				t.Errorf("DeleteChapter err = %v", err)
			}
		})
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("export file: %v", err)
	}
	if strings.Contains(string(data), content) {
		t.Errorf("export file was overwritten: %q", data)
	}
	if len(rec.Events) != 0 {
		t.Errorf("events = %v", rec.Events)
	}
}

func TestListChapters_TreeOrder(t *testing.T) {
	svc, rec := testService(t)
	ctx := context.Background()
	a, _ := svc.CreateChapter(ctx, "A", "", "")
	b, _ := svc.CreateChapter(ctx, "B", "", "")

	if err := svc.ReorderChapters(ctx, []string{b.ID, a.ID}, ""); err != nil {
		t.Fatalf("ReorderChapters: %v", err)
	}
	items, err := svc.ListChapters(ctx)
	if err != nil {
		t.Fatalf("ListChapters: %v", err)
	}
	if len(items) != 2 || items[0].ID != b.ID || items[1].ID != a.ID {
		t.Errorf("items = %+v", items)
	}
	if rec.Events[len(rec.Events)-1] != "manuscript" {
		t.Errorf("events = %v", rec.Events)
	}
}

func TestSearch_TreeOrderAndNodeTitles(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()
	z, _ := svc.CreateChapter(ctx, "Zebra", "", "the lighthouse")
	a, _ := svc.CreateChapter(ctx, "Aardvark", "", "a Lighthouse too\nand lighthouse again")

	results, err := svc.Search(ctx, "lighthouse", false, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 || results[0].ChapterID != z.ID || results[1].ChapterID != a.ID {
		t.Fatalf("results = %+v, want tree order", results)
	}
	if results[1].ChapterTitle != "Aardvark" || len(results[1].Matches) != 2 {
		t.Errorf("second = %+v", results[1])
	}
	// Line 1 is the blank line after the frontmatter block.
	if results[0].Matches[0].Line < 2 {
		t.Errorf("line = %d", results[0].Matches[0].Line)
	}

	limited, _ := svc.Search(ctx, "lighthouse", false, 1)
	if len(limited) != 1 || limited[0].ChapterID != z.ID {
		t.Errorf("limited = %+v", limited)
	}

	none, err := svc.Search(ctx, "", false, 0)
	if err != nil || none == nil || len(none) != 0 {
		t.Errorf("empty query = %v, %v", none, err)
	}
}

func TestSearch_DropsFilesOutsideTree(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()
	stray := filepath.Join(svc.Path(), "chapters", "stray.md")
	if err := os.WriteFile(stray, []byte("lighthouse"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := svc.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	results, _ := svc.Search(ctx, "lighthouse", false, 0)
	if len(results) != 0 {
		t.Errorf("results = %+v, want none", results)
	}
}

func TestSnapshots(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()
	p, err := svc.CreateSnapshot(ctx, "before edit")
	if err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	if !strings.HasPrefix(p, "snapshots/") {
		t.Errorf("path = %q", p)
	}
	list, err := svc.ListSnapshots(ctx)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(list) != 1 || list[0].Name != "before edit" {
		t.Errorf("list = %+v", list)
	}
}

func TestExport(t *testing.T) {
	svc, rec := testService(t)
	ctx := context.Background()
	_, _ = svc.CreateChapter(ctx, "Arrival", "", "Hello *sea*.")

	var buf bytes.Buffer
	if err := svc.Export(ctx, export.FormatMarkdown, &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.Contains(buf.String(), "## Arrival\n\nHello *sea*.") {
		t.Errorf("markdown = %q", buf.String())
	}

	out, err := svc.ExportFile(ctx, export.FormatText, "")
	if err != nil {
		t.Fatalf("ExportFile: %v", err)
	}
	if out != filepath.Join(svc.Path(), "exports", "Tide.txt") {
		t.Errorf("out = %q", out)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("export file missing: %v", err)
	}
	if len(rec.Exports) != 2 || rec.Exports[0] != "markdown" || rec.Exports[1] != "text" {
		t.Errorf("exports = %v", rec.Exports)
	}
}

func TestExportFile_ExportDir(t *testing.T) {
	dir := t.TempDir()
	proj := testutil.TestProject(t, "Tide", "Ana")
	svc := NewService(proj, testutil.TestDB(t), WithExportDir(dir))

	if svc.ExportDir() != dir {
		t.Errorf("ExportDir = %q, want %q", svc.ExportDir(), dir)
	}
	out, err := svc.ExportFile(context.Background(), export.FormatHTML, "")
	if err != nil {
		t.Fatalf("ExportFile: %v", err)
	}
	if out != filepath.Join(dir, "Tide.html") {
		t.Errorf("out = %q", out)
	}
}
