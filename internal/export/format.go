// Package export assembles a manuscript into a publishable document.
package export

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/folio/internal/apperr"
)

// Format is an export target.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
	FormatHTML     Format = "html"
	FormatLaTeX    Format = "latex"
	FormatEPUB     Format = "epub"
)

// Formats lists every supported target.
var Formats = []Format{FormatMarkdown, FormatText, FormatHTML, FormatLaTeX, FormatEPUB}

var aliases = map[string]Format{
	"md":    FormatMarkdown,
	"txt":   FormatText,
	"plain": FormatText,
	"htm":   FormatHTML,
	"tex":   FormatLaTeX,
}

// ParseFormat resolves a user-supplied format name or file extension.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))
	if f, ok := aliases[s]; ok {
		return f, nil
	}
	f := Format(s)
	if err := f.Validate(); err != nil {
		return "", fmt.Errorf("export: %q: %w", s, apperr.ErrInvalidFormat)
	}
	return f, nil
}

// Validate implements validation.Validatable.
func (f Format) Validate() error {
	return validation.Validate(string(f),
		validation.Required,
		validation.In("markdown", "text", "html", "latex", "epub"),
	)
}

// Extension is the default file extension, with the leading dot.
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return ".md"
	case FormatText:
		return ".txt"
	case FormatHTML:
		return ".html"
	case FormatLaTeX:
		return ".tex"
	case FormatEPUB:
		return ".epub"
	default:
		return ""
	}
}

// ContentType is the media type served for downloads.
func (f Format) ContentType() string {
	switch f {
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatText:
		return "text/plain; charset=utf-8"
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatLaTeX:
		return "application/x-tex"
	case FormatEPUB:
		return "application/epub+zip"
	default:
		return "application/octet-stream"
	}
}
