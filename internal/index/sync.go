package index

import (
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/starford/folio/internal/parser"
	"github.com/starford/folio/internal/storage"
)

// ChaptersDir is the project-relative directory holding chapter files.
const ChaptersDir = "chapters"

const chapterExt = ".md"

// Sync walks the chapter directory and brings the index up to date:
//   - new/changed files are parsed and upserted
//   - files removed from disk are deleted from the index
func Sync(db ChapterIndex, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List(ChaptersDir, chapterExt)
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		id := ChapterID(m.Path)
		disk[id] = struct{}{}

		if checksums[id] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := IndexFile(db, id, data, m.UpdatedAt); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("chapter", id))
		}
	}

	// Remove stale entries.
	for id := range checksums {
		if _, ok := disk[id]; !ok {
			if err := db.DeleteChapter(id); err != nil {
				logger.Warn("sync: delete failed", slog.String("chapter", id), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("chapter", id))
			}
		}
	}

	return nil
}

// IndexFile parses a chapter file and upserts it under id.
func IndexFile(db ChapterIndex, id string, data []byte, updatedAt time.Time) error {
	c := parser.ParseChapter(data, id)
	row := ChapterRow{
		ID:        id,
		Title:     c.Title,
		Checksum:  storage.Checksum(data),
		Status:    string(c.Status),
		WordCount: c.WordCount,
		UpdatedAt: updatedAt,
	}
	return db.UpsertChapter(row, SearchText(data))
}

// ChapterID maps a chapter file path to its id (the file name stem).
func ChapterID(p string) string {
	return strings.TrimSuffix(path.Base(p), chapterExt)
}
