package markdown

import "strings"

// Span maps an inline delimiter onto the markup that opens and closes it.
type Span struct {
	Delim string
	Open  string
	Close string
}

// Toggle replaces every occurrence of delim, alternately with open and
// close. An odd count leaves the last span open.
func Toggle(text, delim, open, close string) string {
	if delim == "" || !strings.Contains(text, delim) {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	inside := false
	for {
		i := strings.Index(text, delim)
		if i < 0 {
			break
		}
		b.WriteString(text[:i])
		if inside {
			b.WriteString(close)
		} else {
			b.WriteString(open)
		}
		inside = !inside
		text = text[i+len(delim):]
	}
	b.WriteString(text)
	return b.String()
}

// ApplySpans runs Toggle for each span in order over the whole text.
func ApplySpans(text string, spans []Span) string {
	for _, s := range spans {
		text = Toggle(text, s.Delim, s.Open, s.Close)
	}
	return text
}
