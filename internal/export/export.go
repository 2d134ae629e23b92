package export

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/markdown"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/project"
	"github.com/starford/folio/internal/render"
	"github.com/starford/folio/internal/storage"
)

//go:embed templates
var templateFS embed.FS

var (
	htmlTemplate  = template.Must(template.ParseFS(templateFS, "templates/html.tmpl"))
	latexTemplate = template.Must(template.New("latex.tmpl").Delims("[[", "]]").ParseFS(templateFS, "templates/latex.tmpl"))
	epubTemplates = template.Must(template.ParseFS(templateFS, "templates/epub.tmpl"))
)

const defaultWorkers = 4

// Exporter renders manuscripts. The zero value is not usable; call New.
type Exporter struct {
	workers int
	now     func() time.Time
	newID   func() string
	logger  *slog.Logger
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithWorkers bounds how many chapters are rendered concurrently.
func WithWorkers(n int) Option {
	return func(e *Exporter) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithClock overrides the time source used for EPUB timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// WithIDGenerator overrides the generator of EPUB identifiers.
func WithIDGenerator(fn func() string) Option {
	return func(e *Exporter) { e.newID = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Exporter) { e.logger = l }
}

// New creates an Exporter.
func New(opts ...Option) *Exporter {
	e := &Exporter{
		workers: defaultWorkers,
		now:     time.Now,
		newID:   uuid.NewString,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export writes m to w in format f. Chapters appear in the order given.
func (e *Exporter) Export(ctx context.Context, m *models.Manuscript, f Format, w io.Writer) error {
	var err error
	switch f {
	case FormatMarkdown:
		_, err = io.WriteString(w, Markdown(m))
	case FormatText:
		_, err = io.WriteString(w, Text(m))
	case FormatHTML:
		err = e.html(ctx, m, w)
	case FormatLaTeX:
		err = e.latex(ctx, m, w)
	case FormatEPUB:
		err = e.epub(ctx, m, w)
	default:
		return fmt.Errorf("export: %q: %w", f, apperr.ErrInvalidFormat)
	}
	if err != nil {
		return fmt.Errorf("export: %s: %w", f, err)
	}
	return nil
}

// ExportFile renders m and writes it atomically to path. An empty path
// selects DefaultPath under projectDir. It returns the written path.
func (e *Exporter) ExportFile(ctx context.Context, m *models.Manuscript, f Format, projectDir, path string) (string, error) {
	if path == "" {
		path = DefaultPath(projectDir, m.Title, f)
	}
	var buf bytes.Buffer
	if err := e.Export(ctx, m, f, &buf); err != nil {
		return "", err
	}
	if err := storage.WriteFileAtomic(path, buf.Bytes()); err != nil {
		return "", fmt.Errorf("export: write %s: %w", path, err)
	}
	e.logger.Info("manuscript exported",
		slog.String("format", string(f)),
		slog.String("path", path),
		slog.Int("chapters", len(m.Chapters)),
		slog.Int("bytes", buf.Len()))
	return path, nil
}

// DefaultPath is <projectDir>/exports/<sanitized title><ext>.
func DefaultPath(projectDir, title string, f Format) string {
	return filepath.Join(projectDir, project.ExportsDir, project.SanitizeFilename(title)+f.Extension())
}

// Markdown concatenates the title block and the raw chapter bodies.
func Markdown(m *models.Manuscript) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", m.Title)
	if m.Author != "" {
		fmt.Fprintf(&b, "*By %s*\n\n", m.Author)
	}
	b.WriteString("---\n\n")
	for _, c := range m.Chapters {
		fmt.Fprintf(&b, "## %s\n\n", c.Title)
		b.WriteString(c.Content)
		b.WriteString("\n\n---\n\n")
	}
	return b.String()
}

// Text produces plain text with uppercased titles and stripped emphasis.
func Text(m *models.Manuscript) string {
	upper := cases.Upper(language.Und)
	var b strings.Builder
	b.WriteString(upper.String(m.Title))
	b.WriteString("\n")
	if m.Author != "" {
		b.WriteString("by " + m.Author)
	}
	b.WriteString("\n\n")
	for _, c := range m.Chapters {
		b.WriteString(upper.String(c.Title))
		b.WriteString("\n\n")
		b.WriteString(render.StripMarkdown(c.Content))
		b.WriteString("\n\n")
	}
	return b.String()
}

type htmlChapter struct {
	Title string
	Lines []string
}

func (e *Exporter) html(ctx context.Context, m *models.Manuscript, w io.Writer) error {
	bodies, err := e.renderAll(ctx, m.Chapters, render.HTML)
	if err != nil {
		return err
	}
	data := struct {
		Title    string
		Author   string
		Chapters []htmlChapter
	}{
		Title:  render.EscapeHTML(m.Title),
		Author: render.EscapeHTML(m.Author),
	}
	for i, c := range m.Chapters {
		data.Chapters = append(data.Chapters, htmlChapter{
			Title: render.EscapeHTML(c.Title),
			Lines: markdown.Lines(bodies[i]),
		})
	}
	return htmlTemplate.Execute(w, data)
}

type latexChapter struct {
	Title string
	Body  string
}

func (e *Exporter) latex(ctx context.Context, m *models.Manuscript, w io.Writer) error {
	bodies, err := e.renderAll(ctx, m.Chapters, render.LaTeX)
	if err != nil {
		return err
	}
	data := struct {
		Title    string
		Author   string
		Chapters []latexChapter
	}{
		Title:  render.EscapeLaTeX(m.Title),
		Author: render.EscapeLaTeX(m.Author),
	}
	for i, c := range m.Chapters {
		data.Chapters = append(data.Chapters, latexChapter{
			Title: render.EscapeLaTeX(c.Title),
			Body:  bodies[i],
		})
	}
	return latexTemplate.Execute(w, data)
}

// renderAll converts every chapter body concurrently and returns the results
// in input order.
func (e *Exporter) renderAll(ctx context.Context, chapters []*models.Chapter, fn func(string) string) ([]string, error) {
	out := make([]string, len(chapters))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, c := range chapters {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = fn(c.Content)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
