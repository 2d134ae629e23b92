// Package parser reads and writes chapter files: a frontmatter block followed
// by the Markdown body.
package parser

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/folio/internal/models"
)

const delim = "---"

// FormatChapter serializes c as a chapter file.
func FormatChapter(c *models.Chapter) []byte {
	var b bytes.Buffer
	b.WriteString(delim + "\n")
	writeField(&b, "id", c.ID)
	writeField(&b, "title", c.Title)
	writeField(&b, "status", string(c.Status))
	if c.Mood != nil {
		writeField(&b, "mood", *c.Mood)
	}
	if c.POV != nil {
		writeField(&b, "pov", *c.POV)
	}
	fmt.Fprintf(&b, "word_count: %d\n", c.WordCount)
	writeField(&b, "created_at", c.CreatedAt.Format(time.RFC3339))
	writeField(&b, "modified_at", c.ModifiedAt.Format(time.RFC3339))
	b.WriteString(delim + "\n\n")
	b.WriteString(c.Content)
	return b.Bytes()
}

func writeField(b *bytes.Buffer, key, value string) {
	b.WriteString(key)
	b.WriteString(": ")
	b.WriteString(strconv.Quote(value))
	b.WriteByte('\n')
}

// ParseChapter decodes a chapter file. It never fails: missing or malformed
// frontmatter degrades to default metadata. The id always comes from
// fallbackID (the file name stem), never from the file contents.
func ParseChapter(data []byte, fallbackID string) *models.Chapter {
	now := time.Now().UTC()
	raw := string(data)

	c := &models.Chapter{
		ID:         fallbackID,
		Title:      "Untitled",
		Content:    raw,
		Status:     models.StatusDraft,
		CreatedAt:  now,
		ModifiedAt: now,
	}

	if !strings.HasPrefix(raw, delim) {
		c.Title = fallbackID
		c.WordCount = models.CountWords(raw)
		return c
	}

	block, body, ok := splitFrontmatter(raw)
	if !ok {
		c.WordCount = models.CountWords(raw)
		return c
	}

	fields := decodeFields(block)
	if v, ok := fields["title"]; ok {
		c.Title = v
	}
	if v, ok := fields["status"]; ok {
		c.Status = models.ParseStatus(v)
	}
	if v, ok := fields["mood"]; ok {
		c.Mood = &v
	}
	if v, ok := fields["pov"]; ok {
		c.POV = &v
	}
	if v, ok := fields["created_at"]; ok {
		c.CreatedAt = parseTime(v, now)
	}
	if v, ok := fields["modified_at"]; ok {
		c.ModifiedAt = parseTime(v, now)
	}

	c.Content = body
	c.WordCount = models.CountWords(body)
	return c
}

// Body returns the chapter body with any frontmatter block removed.
func Body(data []byte) string {
	raw := string(data)
	if !strings.HasPrefix(raw, delim) {
		return raw
	}
	if _, body, ok := splitFrontmatter(raw); ok {
		return body
	}
	return raw
}

// splitFrontmatter separates the block between the leading delimiter and the
// first delimiter line after it from the body. ok is false when the closing
// delimiter is missing.
func splitFrontmatter(raw string) (block, body string, ok bool) {
	rest := raw[len(delim):]
	idx := strings.Index(rest, "\n"+delim)
	if idx < 0 {
		return "", "", false
	}
	block = rest[:idx]
	after := rest[idx+1+len(delim):]
	// Drop the remainder of the closing delimiter line.
	if nl := strings.IndexByte(after, '\n'); nl >= 0 {
		after = after[nl+1:]
	} else {
		after = ""
	}
	// One blank line separates the block from the body; anything past it
	// belongs to the body.
	if trimmed, found := strings.CutPrefix(after, "\r\n"); found {
		after = trimmed
	} else {
		after = strings.TrimPrefix(after, "\n")
	}
	return block, after, true
}

// decodeFields reads the frontmatter block as YAML, falling back to a plain
// key: value line scan when the block is not valid YAML.
func decodeFields(block string) map[string]string {
	var fm map[string]any
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return scanFields(block)
	}
	out := make(map[string]string, len(fm))
	for k, v := range fm {
		switch val := v.(type) {
		case nil:
		case string:
			out[k] = val
		case time.Time:
			out[k] = val.Format(time.RFC3339Nano)
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

func scanFields(block string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(block, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		out[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"`)
	}
	return out
}

func parseTime(v string, fallback time.Time) time.Time {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return t.UTC()
}
