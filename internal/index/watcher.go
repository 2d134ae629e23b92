package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/folio/internal/storage"
)

// Event kinds passed to EventCallback.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// EventCallback is called after a watcher-driven index change with the
// affected chapter id.
type EventCallback func(kind string, id string)

const reconcileDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the project's chapter directory and
// processes file change events until ctx is cancelled. It calls cb (if
// non-nil) after each successful index mutation.
//
// Rename events trigger a debounced reconciliation pass that removes stale
// index entries whose files no longer exist on disk. Temp files from atomic
// writes are ignored; the final rename surfaces as a Create of the chapter.
func Watch(ctx context.Context, db ChapterIndex, store storage.Provider, logger *slog.Logger, cb EventCallback) error {
	dir := filepath.Join(store.Root(), ChaptersDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("dir", dir))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile(db, store, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			name := filepath.Base(ev.Name)
			if !strings.HasSuffix(name, chapterExt) || strings.HasPrefix(name, ".") {
				continue
			}
			id := strings.TrimSuffix(name, chapterExt)
			rel := ChaptersDir + "/" + name

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				data, readErr := store.Read(rel)
				if readErr != nil {
					logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", readErr.Error()))
					continue
				}
				cs, _ := db.GetChecksum(id)
				if cs == storage.Checksum(data) {
					continue
				}
				if idxErr := IndexFile(db, id, data, time.Now().UTC()); idxErr != nil {
					logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", idxErr.Error()))
					continue
				}
				kind := EventUpdated
				if cs == "" {
					kind = EventCreated
				}
				logger.Debug("watcher: indexed", slog.String("chapter", id), slog.String("op", kind))
				if cb != nil {
					cb(kind, id)
				}

			case ev.Op&fsnotify.Remove != 0:
				if delErr := db.DeleteChapter(id); delErr != nil {
					logger.Warn("watcher: delete failed", slog.String("chapter", id), slog.String("error", delErr.Error()))
					continue
				}
				logger.Debug("watcher: deleted", slog.String("chapter", id))
				if cb != nil {
					cb(EventDeleted, id)
				}

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify reports Rename on the old name only; a new name
				// inside the directory arrives as a separate Create.
				if delErr := db.DeleteChapter(id); delErr != nil {
					logger.Warn("watcher: rename delete failed", slog.String("chapter", id), slog.String("error", delErr.Error()))
				} else if cb != nil {
					cb(EventDeleted, id)
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reconcile removes index entries without a file on disk and indexes files
// whose checksum differs from the index.
func reconcile(db ChapterIndex, store storage.Provider, logger *slog.Logger, cb EventCallback) {
	checksums, err := db.AllChecksums()
	if err != nil {
		logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}

	metas, err := store.List(ChaptersDir, chapterExt)
	if err != nil {
		logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]storage.FileMeta, len(metas))
	for _, m := range metas {
		disk[ChapterID(m.Path)] = m
	}

	for id := range checksums {
		if _, ok := disk[id]; !ok {
			if delErr := db.DeleteChapter(id); delErr == nil {
				logger.Debug("reconcile: removed stale", slog.String("chapter", id))
				if cb != nil {
					cb(EventDeleted, id)
				}
			}
		}
	}

	for id, m := range disk {
		if checksums[id] == m.Checksum {
			continue
		}
		data, readErr := store.Read(m.Path)
		if readErr != nil {
			continue
		}
		if idxErr := IndexFile(db, id, data, m.UpdatedAt); idxErr == nil {
			logger.Debug("reconcile: indexed", slog.String("chapter", id))
			if cb != nil {
				cb(EventCreated, id)
			}
		}
	}
}
