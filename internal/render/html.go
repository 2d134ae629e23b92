// Package render turns chapter Markdown into target markup. HTML, XHTML and
// LaTeX share the block events from package markdown and differ only in
// escaping and the markup each event maps to.
package render

import (
	"fmt"
	"strings"

	"github.com/starford/folio/internal/markdown"
)

var (
	htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	xmlEscaper  = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;")
)

var htmlSpans = []markdown.Span{
	{Delim: "**", Open: "<strong>", Close: "</strong>"},
	{Delim: "__", Open: "<strong>", Close: "</strong>"},
	{Delim: "*", Open: "<em>", Close: "</em>"},
	{Delim: "_", Open: "<em>", Close: "</em>"},
	{Delim: "`", Open: "<code>", Close: "</code>"},
}

// EscapeHTML escapes &, < and >. Quotes are left alone.
func EscapeHTML(s string) string { return htmlEscaper.Replace(s) }

// EscapeXML escapes &, <, >, " and ' for XML documents.
func EscapeXML(s string) string { return xmlEscaper.Replace(s) }

// InlineHTML escapes s and converts emphasis, strong and code spans.
func InlineHTML(s string) string {
	return markdown.ApplySpans(EscapeHTML(s), htmlSpans)
}

// InlineXHTML is InlineHTML with XML escaping.
func InlineXHTML(s string) string {
	return markdown.ApplySpans(EscapeXML(s), htmlSpans)
}

// HTML renders chapter Markdown as an HTML fragment.
func HTML(text string) string {
	return renderHTML(text, InlineHTML)
}

// XHTML renders chapter Markdown as an XHTML fragment for EPUB documents.
func XHTML(text string) string {
	return renderHTML(text, InlineXHTML)
}

func renderHTML(text string, inline func(string) string) string {
	var b strings.Builder
	for _, e := range markdown.Parse(text) {
		switch e.Type {
		case markdown.Rule:
			b.WriteString("<hr />\n")
		case markdown.Heading:
			fmt.Fprintf(&b, "<h%d>%s</h%d>\n", e.Level, inline(e.Text), e.Level)
		case markdown.QuoteStart:
			b.WriteString("<blockquote>\n")
		case markdown.QuoteLine:
			b.WriteString("<p>" + inline(e.Text) + "</p>\n")
		case markdown.QuoteEnd:
			b.WriteString("</blockquote>\n")
		case markdown.ListStart:
			b.WriteString("<" + listTag(e.List) + ">\n")
		case markdown.ListItem:
			b.WriteString("<li>" + inline(e.Text) + "</li>\n")
		case markdown.ListEnd:
			b.WriteString("</" + listTag(e.List) + ">\n")
		case markdown.Paragraph:
			b.WriteString("<p>" + inline(strings.Join(e.Lines, "\n")) + "</p>\n")
		case markdown.Blank:
		}
	}
	return b.String()
}

func listTag(k markdown.ListKind) string {
	if k == markdown.Ordered {
		return "ol"
	}
	return "ul"
}
