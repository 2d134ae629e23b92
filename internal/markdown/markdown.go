// Package markdown implements the block-level state machine shared by the
// HTML, XHTML and LaTeX renderers. It recognises a fixed subset: rules,
// ATX headings, block quotes, flat unordered and ordered lists, and
// paragraphs. Renderers consume the emitted events; the parser holds no
// target-specific knowledge.
package markdown

import "strings"

// EventType identifies a block event.
type EventType int

const (
	Rule EventType = iota
	Heading
	QuoteStart
	QuoteLine
	QuoteEnd
	ListStart
	ListItem
	ListEnd
	Paragraph
	Blank
)

func (t EventType) String() string {
	switch t {
	case Rule:
		return "rule"
	case Heading:
		return "heading"
	case QuoteStart:
		return "quote-start"
	case QuoteLine:
		return "quote-line"
	case QuoteEnd:
		return "quote-end"
	case ListStart:
		return "list-start"
	case ListItem:
		return "list-item"
	case ListEnd:
		return "list-end"
	case Paragraph:
		return "paragraph"
	case Blank:
		return "blank"
	default:
		return "unknown"
	}
}

// ListKind distinguishes bullet lists from numbered lists.
type ListKind int

const (
	Unordered ListKind = iota
	Ordered
)

// Event is one block-level construct. Only the fields relevant to Type are set.
type Event struct {
	Type EventType
	// Level is the heading level clamped to 6; Marks is the raw '#' count.
	Level int
	Marks int
	// Text is the trimmed inline payload of a heading, quote line or list item.
	Text string
	List ListKind
	// Lines holds the trimmed source lines of a paragraph.
	Lines []string
}

// Lines splits text into lines the way the renderers expect: '\n'
// separated, a trailing '\r' dropped, and no empty final line after a
// terminating newline.
func Lines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

type parser struct {
	events    []Event
	unordered bool
	ordered   bool
	quote     bool
	para      []string
}

// Parse runs the block state machine over text in a single pass.
func Parse(text string) []Event {
	p := &parser{}
	for _, line := range Lines(text) {
		p.line(strings.TrimSpace(line))
	}
	p.flush()
	p.closeAll()
	return p.events
}

func (p *parser) line(t string) {
	if t == "---" || t == "***" || t == "___" {
		p.flush()
		p.closeAll()
		p.emit(Event{Type: Rule})
		return
	}

	if strings.HasPrefix(t, "#") {
		p.flush()
		p.closeAll()
		marks := len(t) - len(strings.TrimLeft(t, "#"))
		level := min(marks, 6)
		p.emit(Event{Type: Heading, Level: level, Marks: marks, Text: strings.TrimSpace(t[level:])})
		return
	}

	if strings.HasPrefix(t, "> ") || t == ">" {
		p.flush()
		p.closeUnordered()
		p.closeOrdered()
		if !p.quote {
			p.emit(Event{Type: QuoteStart})
			p.quote = true
		}
		var text string
		if t != ">" {
			text = strings.TrimSpace(t[2:])
		}
		p.emit(Event{Type: QuoteLine, Text: text})
		return
	}
	p.closeQuote()

	if strings.HasPrefix(t, "- ") || strings.HasPrefix(t, "* ") {
		p.flush()
		p.closeOrdered()
		if !p.unordered {
			p.emit(Event{Type: ListStart, List: Unordered})
			p.unordered = true
		}
		p.emit(Event{Type: ListItem, List: Unordered, Text: strings.TrimSpace(t[2:])})
		return
	}
	if p.unordered && t != "" {
		p.closeUnordered()
	}

	if rest, ok := OrderedItem(t); ok {
		p.flush()
		p.closeUnordered()
		if !p.ordered {
			p.emit(Event{Type: ListStart, List: Ordered})
			p.ordered = true
		}
		p.emit(Event{Type: ListItem, List: Ordered, Text: rest})
		return
	}
	if p.ordered && t != "" {
		p.closeOrdered()
	}

	if t == "" {
		p.flush()
		p.closeUnordered()
		p.closeOrdered()
		p.emit(Event{Type: Blank})
		return
	}

	p.para = append(p.para, t)
}

func (p *parser) emit(e Event) {
	p.events = append(p.events, e)
}

func (p *parser) flush() {
	if len(p.para) == 0 {
		return
	}
	p.emit(Event{Type: Paragraph, Lines: p.para})
	p.para = nil
}

func (p *parser) closeUnordered() {
	if p.unordered {
		p.emit(Event{Type: ListEnd, List: Unordered})
		p.unordered = false
	}
}

func (p *parser) closeOrdered() {
	if p.ordered {
		p.emit(Event{Type: ListEnd, List: Ordered})
		p.ordered = false
	}
}

func (p *parser) closeQuote() {
	if p.quote {
		p.emit(Event{Type: QuoteEnd})
		p.quote = false
	}
}

func (p *parser) closeAll() {
	p.closeUnordered()
	p.closeOrdered()
	p.closeQuote()
}

// OrderedItem reports whether line is "<digits>. <rest>" and returns the
// trimmed rest. Only the first ". " in the line is considered.
func OrderedItem(line string) (string, bool) {
	i := strings.Index(line, ". ")
	if i <= 0 {
		return "", false
	}
	for _, r := range line[:i] {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return strings.TrimSpace(line[i+2:]), true
}
