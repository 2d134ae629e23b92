package export

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"hash/crc32"
	"io"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/render"
)

// MimeType is the content of the leading mimetype entry.
const MimeType = "application/epub+zip"

const opfTimeLayout = "2006-01-02T15:04:05Z"

//go:embed templates/style.css
var epubStyle []byte

type epubChapter struct {
	ID        string
	Href      string
	Title     string
	Body      string
	PlayOrder int
}

type epubData struct {
	Title    string
	Author   string
	NavID    string
	BookID   string
	Modified string
	Chapters []epubChapter
}

func (e *Exporter) epub(ctx context.Context, m *models.Manuscript, w io.Writer) error {
	bodies, err := e.renderAll(ctx, m.Chapters, render.XHTML)
	if err != nil {
		return err
	}

	now := e.now().UTC()
	data := epubData{
		Title:    render.EscapeXML(m.Title),
		Author:   render.EscapeXML(m.Author),
		NavID:    e.newID(),
		BookID:   e.newID(),
		Modified: now.Format(opfTimeLayout),
	}
	for i, c := range m.Chapters {
		n := i + 1
		data.Chapters = append(data.Chapters, epubChapter{
			ID:        fmt.Sprintf("chapter-%d", n),
			Href:      fmt.Sprintf("chapter-%d.xhtml", n),
			Title:     render.EscapeXML(c.Title),
			Body:      bodies[i],
			PlayOrder: n + 1,
		})
	}

	p := &packager{zw: zip.NewWriter(w), modified: now}
	if err := p.mimetype(); err != nil {
		return err
	}
	if err := p.template("META-INF/container.xml", "container.xml", nil); err != nil {
		return err
	}
	if err := p.add("OEBPS/style.css", epubStyle); err != nil {
		return err
	}
	if err := p.template("OEBPS/title.xhtml", "title.xhtml", data); err != nil {
		return err
	}
	for _, c := range data.Chapters {
		if err := p.template("OEBPS/"+c.Href, "chapter.xhtml", c); err != nil {
			return err
		}
	}
	if err := p.template("OEBPS/nav.xhtml", "nav.xhtml", data); err != nil {
		return err
	}
	if err := p.template("OEBPS/toc.ncx", "toc.ncx", data); err != nil {
		return err
	}
	if err := p.template("OEBPS/content.opf", "content.opf", data); err != nil {
		return err
	}
	if err := p.zw.Close(); err != nil {
		return fmt.Errorf("epub: finish archive: %w", err)
	}
	return nil
}

type packager struct {
	zw       *zip.Writer
	modified time.Time
}

// mimetype writes the first entry stored, with sizes and CRC in the local
// header and no extra field, so the content sits at a fixed offset.
func (p *packager) mimetype() error {
	content := []byte(MimeType)
	fw, err := p.zw.CreateRaw(&zip.FileHeader{
		Name:               "mimetype",
		Method:             zip.Store,
		CRC32:              crc32.ChecksumIEEE(content),
		CompressedSize64:   uint64(len(content)),
		UncompressedSize64: uint64(len(content)),
	})
	if err != nil {
		return fmt.Errorf("epub: mimetype: %w", err)
	}
	if _, err := fw.Write(content); err != nil {
		return fmt.Errorf("epub: mimetype: %w", err)
	}
	return nil
}

func (p *packager) add(name string, content []byte) error {
	fw, err := p.zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: p.modified,
	})
	if err != nil {
		return fmt.Errorf("epub: %s: %w", name, err)
	}
	if _, err := fw.Write(content); err != nil {
		return fmt.Errorf("epub: %s: %w", name, err)
	}
	return nil
}

func (p *packager) template(name, tmpl string, data any) error {
	var buf bytes.Buffer
	if err := epubTemplates.ExecuteTemplate(&buf, tmpl, data); err != nil {
		return fmt.Errorf("epub: %s: %w", name, err)
	}
	return p.add(name, buf.Bytes())
}
