// Package projectservice coordinates the open project with the search index,
// the exporter and change notifications.
package projectservice

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/export"
	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/project"
	"github.com/starford/folio/internal/storage"
)

// Publisher receives change notifications. *sse.Broker implements it.
type Publisher interface {
	PublishChapterEvent(kind, id, title string)
	PublishManuscriptEvent()
	PublishExport(format, path string)
}

// ProjectState is the full representation of the open project.
type ProjectState struct {
	Path           string                     `json:"path"`
	Metadata       models.ProjectMetadata     `json:"metadata"`
	Structure      models.ManuscriptStructure `json:"structure"`
	TotalWordCount int                        `json:"total_word_count"`
}

// ChapterDetail is a chapter plus the checksum of its file, for If-Match.
type ChapterDetail struct {
	*models.Chapter
	Checksum string `json:"checksum"`
}

// ChapterListItem is a lightweight item in a list response.
type ChapterListItem struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	Status     models.Status `json:"status"`
	WordCount  int           `json:"word_count"`
	ModifiedAt time.Time     `json:"modified_at"`
}

// ChapterUpdate carries the fields to change. Nil fields are left alone.
type ChapterUpdate struct {
	Title   *string
	Content *string
	Status  *models.Status
	Mood    *string
	POV     *string
}

// Service serialises every project mutation behind one mutex.
type Service struct {
	mu        sync.Mutex
	proj      *project.Project
	db        index.ChapterIndex
	exporter  *export.Exporter
	publisher Publisher
	exportDir string
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the change notification sink.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithExporter replaces the default exporter.
func WithExporter(e *export.Exporter) Option {
	return func(s *Service) { s.exporter = e }
}

// WithExportDir sets where ExportFile writes when no path is given.
func WithExportDir(dir string) Option {
	return func(s *Service) { s.exportDir = dir }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a new project service.
func NewService(proj *project.Project, db index.ChapterIndex, opts ...Option) *Service {
	s := &Service{proj: proj, db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.exporter == nil {
		s.exporter = export.New(export.WithLogger(s.logger))
	}
	return s
}

// Path returns the project directory.
func (s *Service) Path() string {
	return s.proj.Path()
}

// ExportDir returns the directory default exports are written to.
func (s *Service) ExportDir() string {
	if s.exportDir != "" {
		return s.exportDir
	}
	return filepath.Join(s.proj.Path(), project.ExportsDir)
}

// Project returns a copy of the project state.
func (s *Service) Project(_ context.Context) *ProjectState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &ProjectState{
		Path:           s.proj.Path(),
		Metadata:       s.proj.Metadata,
		Structure:      cloneStructure(s.proj.Structure),
		TotalWordCount: s.proj.TotalWordCount(),
	}
}

// ListChapters returns the chapters in tree order.
func (s *Service) ListChapters(_ context.Context) ([]ChapterListItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chapters, err := s.proj.Chapters()
	if err != nil {
		return nil, err
	}
	items := make([]ChapterListItem, len(chapters))
	for i, c := range chapters {
		items[i] = ChapterListItem{
			ID:         c.ID,
			Title:      c.Title,
			Status:     c.Status,
			WordCount:  c.WordCount,
			ModifiedAt: c.ModifiedAt,
		}
	}
	return items, nil
}

// GetChapter reads one chapter with its file checksum.
func (s *Service) GetChapter(_ context.Context, id string) (*ChapterDetail, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detail(id)
}

// CreateChapter adds a chapter under parentID (the root when empty) with an
// optional initial body, and indexes it.
func (s *Service) CreateChapter(_ context.Context, title, parentID, content string) (*ChapterDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.proj.AddChapter(title, parentID)
	if err != nil {
		return nil, err
	}
	if content != "" {
		c.SetContent(content)
		if err := s.proj.UpdateChapter(c); err != nil {
			return nil, err
		}
	}
	d, err := s.reindex(c.ID)
	if err != nil {
		return nil, err
	}
	s.publish(index.EventCreated, c.ID, d.Title)
	return d, nil
}

// UpdateChapter applies upd to chapter id. A non-empty ifMatch must equal the
// current file checksum, otherwise apperr.ErrConflict is returned.
func (s *Service) UpdateChapter(_ context.Context, id string, upd ChapterUpdate, ifMatch string) (*ChapterDetail, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.detail(id)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && ifMatch != current.Checksum {
		return nil, fmt.Errorf("projectservice: chapter %s: %w", id, apperr.ErrConflict)
	}

	c := current.Chapter
	if upd.Title != nil {
		c.Title = *upd.Title
	}
	if upd.Content != nil {
		c.SetContent(*upd.Content)
	}
	if upd.Status != nil {
		c.SetStatus(*upd.Status)
	}
	if upd.Mood != nil {
		c.Mood = optional(*upd.Mood)
	}
	if upd.POV != nil {
		c.POV = optional(*upd.POV)
	}
	c.ModifiedAt = time.Now().UTC()

	if err := s.proj.UpdateChapter(c); err != nil {
		return nil, err
	}
	d, err := s.reindex(id)
	if err != nil {
		return nil, err
	}
	s.publish(index.EventUpdated, id, d.Title)
	return d, nil
}

// RenameChapter changes the title of a chapter node and its file.
func (s *Service) RenameChapter(_ context.Context, id, title string) (*ChapterDetail, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.proj.RenameChapter(id, title); err != nil {
		return nil, err
	}
	d, err := s.reindex(id)
	if err != nil {
		return nil, err
	}
	s.publish(index.EventUpdated, id, d.Title)
	return d, nil
}

// DeleteChapter removes a chapter from the tree, the disk and the index. An
// unknown id is not an error: any dangling references to it are still dropped
// from the tree, and no event is published.
func (s *Service) DeleteChapter(_ context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	node, existed := s.proj.Structure.Nodes[id]
	var title string
	if existed {
		title = node.Title
	}
	if err := s.proj.DeleteChapter(id); err != nil {
		return err
	}
	if err := s.db.DeleteChapter(id); err != nil {
		return err
	}
	if existed {
		s.publish(index.EventDeleted, id, title)
	}
	return nil
}

// ReorderChapters replaces the children of parentID and the flat order.
func (s *Service) ReorderChapters(_ context.Context, ids []string, parentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.proj.ReorderChapters(ids, parentID); err != nil {
		return err
	}
	if s.publisher != nil {
		s.publisher.PublishManuscriptEvent()
	}
	return nil
}

// CreateSnapshot writes a snapshot and returns its project-relative path.
func (s *Service) CreateSnapshot(_ context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proj.CreateSnapshot(name)
}

// ListSnapshots returns the snapshots, newest first.
func (s *Service) ListSnapshots(_ context.Context) ([]project.SnapshotInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proj.ListSnapshots()
}

// Search scans the indexed chapters. Results follow tree order and carry the
// node title; indexed files that are not chapter nodes are dropped. limit caps
// the number of chapters; zero or less means no cap.
func (s *Service) Search(_ context.Context, query string, caseSensitive bool, limit int) ([]index.SearchResult, error) {
	results, err := s.db.Search(query, caseSensitive, 0)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	order := treeOrder(s.proj.Structure)
	titles := make(map[string]string, len(order))
	for _, id := range order {
		titles[id] = s.proj.Structure.Nodes[id].Title
	}
	s.mu.Unlock()

	rank := make(map[string]int, len(order))
	for i, id := range order {
		rank[id] = i
	}
	results = slices.DeleteFunc(results, func(r index.SearchResult) bool {
		_, ok := rank[r.ChapterID]
		return !ok
	})
	slices.SortStableFunc(results, func(a, b index.SearchResult) int {
		return rank[a.ChapterID] - rank[b.ChapterID]
	})
	for i := range results {
		results[i].ChapterTitle = titles[results[i].ChapterID]
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	return results, nil
}

// Manuscript assembles the export view.
func (s *Service) Manuscript(_ context.Context) (*models.Manuscript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proj.Manuscript()
}

// Export streams the manuscript to w.
func (s *Service) Export(ctx context.Context, f export.Format, w io.Writer) error {
	m, err := s.Manuscript(ctx)
	if err != nil {
		return err
	}
	if err := s.exporter.Export(ctx, m, f, w); err != nil {
		return err
	}
	if s.publisher != nil {
		s.publisher.PublishExport(string(f), "")
	}
	return nil
}

// ExportFile renders the manuscript to path, or to <ExportDir>/<title><ext>
// when path is empty.
func (s *Service) ExportFile(ctx context.Context, f export.Format, path string) (string, error) {
	m, err := s.Manuscript(ctx)
	if err != nil {
		return "", err
	}
	if path == "" && s.exportDir != "" {
		path = filepath.Join(s.exportDir, project.SanitizeFilename(m.Title)+f.Extension())
	}
	out, err := s.exporter.ExportFile(ctx, m, f, s.proj.Path(), path)
	if err != nil {
		return "", err
	}
	if s.publisher != nil {
		s.publisher.PublishExport(string(f), out)
	}
	return out, nil
}

// Sync brings the index up to date with the chapter files.
func (s *Service) Sync(_ context.Context) error {
	return index.Sync(s.db, s.proj.Store(), s.logger)
}

func (s *Service) detail(id string) (*ChapterDetail, error) {
	c, err := s.proj.Chapter(id)
	if err != nil {
		return nil, err
	}
	data, err := s.proj.Store().Read(chapterFile(id))
	if err != nil {
		return nil, fmt.Errorf("projectservice: %w", err)
	}
	return &ChapterDetail{Chapter: c, Checksum: storage.Checksum(data)}, nil
}

func (s *Service) reindex(id string) (*ChapterDetail, error) {
	data, err := s.proj.Store().Read(chapterFile(id))
	if err != nil {
		return nil, fmt.Errorf("projectservice: %w", err)
	}
	if err := index.IndexFile(s.db, id, data, time.Now().UTC()); err != nil {
		s.logger.Warn("reindex failed", slog.String("chapter", id), slog.String("error", err.Error()))
	}
	return s.detail(id)
}

func (s *Service) publish(kind, id, title string) {
	if s.publisher != nil {
		s.publisher.PublishChapterEvent(kind, id, title)
	}
}

// checkID rejects ids that would resolve outside the chapters directory.
func checkID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("projectservice: %q: %w", id, apperr.ErrInvalidID)
	}
	return nil
}

func chapterFile(id string) string {
	return path.Join(project.ChaptersDir, models.ChapterFilename(id))
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// treeOrder lists chapter node ids depth-first from the root.
func treeOrder(st models.ManuscriptStructure) []string {
	var out []string
	seen := make(map[string]bool)
	var walk func(id string)
	walk = func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true
		n, ok := st.Nodes[id]
		if !ok {
			return
		}
		if n.NodeType == models.NodeChapter {
			out = append(out, id)
		}
		for _, child := range n.Children {
			walk(child)
		}
	}
	walk(st.Root)
	return out
}

func cloneStructure(st models.ManuscriptStructure) models.ManuscriptStructure {
	out := models.ManuscriptStructure{
		Root:  st.Root,
		Nodes: make(map[string]*models.ManuscriptNode, len(st.Nodes)),
		Order: slices.Clone(st.Order),
	}
	for id, n := range st.Nodes {
		cp := *n
		cp.Children = slices.Clone(n.Children)
		out.Nodes[id] = &cp
	}
	return out
}
