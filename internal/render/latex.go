package render

import (
	"strings"

	"github.com/starford/folio/internal/markdown"
)

// latexEscaper replaces the ten LaTeX specials in one pass, so the braces
// of \textbackslash{} are never escaped again.
var latexEscaper = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	"&", `\&`,
	"%", `\%`,
	"$", `\$`,
	"#", `\#`,
	"_", `\_`,
	"{", `\{`,
	"}", `\}`,
	"~", `\textasciitilde{}`,
	"^", `\textasciicircum{}`,
)

// Spans run on already escaped text, so underscores appear as `\_`.
var latexSpans = []markdown.Span{
	{Delim: "**", Open: `\textbf{`, Close: "}"},
	{Delim: `\_\_`, Open: `\textbf{`, Close: "}"},
	{Delim: "*", Open: `\emph{`, Close: "}"},
	{Delim: `\_`, Open: `\emph{`, Close: "}"},
	{Delim: "`", Open: `\texttt{`, Close: "}"},
}

const latexRule = `\bigskip\noindent\rule{\textwidth}{0.4pt}\bigskip` + "\n\n"

// EscapeLaTeX escapes LaTeX special characters.
func EscapeLaTeX(s string) string { return latexEscaper.Replace(s) }

// InlineLaTeX escapes s and converts emphasis, strong and code spans.
func InlineLaTeX(s string) string {
	return markdown.ApplySpans(EscapeLaTeX(s), latexSpans)
}

// LaTeX renders chapter Markdown as LaTeX body text. Each list item gets its
// own itemize or enumerate environment, and paragraph lines are emitted one
// per source line.
func LaTeX(text string) string {
	var b strings.Builder
	for _, e := range markdown.Parse(text) {
		switch e.Type {
		case markdown.Rule:
			b.WriteString(latexRule)
		case markdown.Heading:
			title := e.Text
			if e.Marks > e.Level {
				title = strings.TrimSpace(strings.TrimLeft(title, "#"))
			}
			b.WriteString(`\` + sectionCommand(e.Marks) + "{" + InlineLaTeX(title) + "}\n\n")
		case markdown.QuoteStart:
			b.WriteString("\\begin{quote}\n")
		case markdown.QuoteLine:
			b.WriteString(InlineLaTeX(e.Text) + "\n")
		case markdown.QuoteEnd:
			b.WriteString("\\end{quote}\n")
		case markdown.ListItem:
			env := "itemize"
			if e.List == markdown.Ordered {
				env = "enumerate"
			}
			b.WriteString("\\begin{" + env + "}\n\\item " + InlineLaTeX(e.Text) + "\n\\end{" + env + "}\n")
		case markdown.ListStart, markdown.ListEnd:
		case markdown.Paragraph:
			for _, line := range e.Lines {
				b.WriteString(InlineLaTeX(line) + "\n")
			}
		case markdown.Blank:
			b.WriteString("\n")
		}
	}
	return b.String()
}

func sectionCommand(marks int) string {
	switch marks {
	case 1:
		return "section"
	case 2:
		return "subsection"
	case 3:
		return "subsubsection"
	default:
		return "paragraph"
	}
}
