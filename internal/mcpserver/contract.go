package mcpserver

// ChapterFormatContract describes the chapter body format that LLM consumers
// should follow when creating or updating chapters.
const ChapterFormatContract = `# Folio Chapter Format Contract

A chapter is one Markdown file under ` + "`" + `chapters/` + "`" + `, named after its id.
Folio writes the frontmatter itself; tools take and return the **body only**.

## Stored file

` + "```" + `markdown
---
id: "5b0e…"
title: "The Crossing"
status: "draft"            # draft | revised | final | trash
mood: "tense"              # optional
pov: "Mira"                # optional
word_count: 1234
created_at: "2026-01-15T09:30:00Z"
modified_at: "2026-01-16T18:02:11Z"
---

Body text…
` + "```" + `

## Body syntax understood by every export format

1. **Headings:** ` + "`" + `# ` + "`" + ` to ` + "`" + `###### ` + "`" + ` at the start of a line.
2. **Emphasis:** ` + "`" + `**bold**` + "`" + ` or ` + "`" + `__bold__` + "`" + `, ` + "`" + `*italic*` + "`" + ` or ` + "`" + `_italic_` + "`" + `, ` + "`" + "`" + "code" + "`" + "`" + `.
   Markers toggle left to right and do not nest.
3. **Lists:** ` + "`" + `- ` + "`" + ` or ` + "`" + `* ` + "`" + ` for bullets, ` + "`" + `1. ` + "`" + ` for numbered items.
4. **Quotes:** lines starting with ` + "`" + `> ` + "`" + `.
5. **Scene breaks:** a line containing only ` + "`" + `---` + "`" + `, ` + "`" + `***` + "`" + ` or ` + "`" + `___` + "`" + `.
6. **Paragraphs** are separated by a blank line.

Links, images, tables and raw HTML are not rendered; avoid them.

## Concurrency

` + "`" + `read_chapter` + "`" + ` returns a ` + "`" + `checksum` + "`" + `. Pass it to ` + "`" + `update_chapter` + "`" + `
to reject the write when the chapter changed in the meantime.
`
