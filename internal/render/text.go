package render

import (
	"strings"

	"github.com/starford/folio/internal/markdown"
)

var emphasisStripper = strings.NewReplacer("**", "", "__", "", "*", "", "_", "")

// StripMarkdown reduces chapter Markdown to plain text line by line: lines
// are trimmed, leading heading markers dropped and every emphasis delimiter
// deleted. It does not use the block parser.
func StripMarkdown(text string) string {
	var b strings.Builder
	for _, line := range markdown.Lines(text) {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "#") {
			l = strings.TrimSpace(strings.TrimLeft(l, "#"))
		}
		b.WriteString(emphasisStripper.Replace(l))
		b.WriteByte('\n')
	}
	return b.String()
}
