// Package models defines the domain types for Folio.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the editorial state of a chapter or node.
type Status string

const (
	StatusDraft   Status = "draft"
	StatusRevised Status = "revised"
	StatusFinal   Status = "final"
	StatusTrash   Status = "trash"
)

// ParseStatus maps s onto a known status. Unknown values become StatusDraft.
func ParseStatus(s string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusRevised:
		return StatusRevised
	case StatusFinal:
		return StatusFinal
	case StatusTrash:
		return StatusTrash
	default:
		return StatusDraft
	}
}

// UnmarshalText lets documents carry any status string without failing to decode.
func (s *Status) UnmarshalText(b []byte) error {
	*s = ParseStatus(string(b))
	return nil
}

// Chapter is one chapter file: frontmatter metadata plus the raw Markdown body.
type Chapter struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Status     Status    `json:"status"`
	Mood       *string   `json:"mood,omitempty"`
	POV        *string   `json:"pov,omitempty"`
	WordCount  int       `json:"word_count"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// NewChapter returns an empty draft chapter with a fresh id.
func NewChapter(title string) *Chapter {
	now := time.Now().UTC()
	return &Chapter{
		ID:         uuid.NewString(),
		Title:      title,
		Status:     StatusDraft,
		CreatedAt:  now,
		ModifiedAt: now,
	}
}

// Filename is the chapter's file name inside the chapters directory.
func (c *Chapter) Filename() string {
	return ChapterFilename(c.ID)
}

// SetContent replaces the body and recomputes the word count.
func (c *Chapter) SetContent(content string) {
	c.Content = content
	c.WordCount = CountWords(content)
	c.touch()
}

// SetStatus updates the editorial status.
func (c *Chapter) SetStatus(s Status) {
	c.Status = s
	c.touch()
}

// SetMood sets or clears (nil) the mood annotation.
func (c *Chapter) SetMood(mood *string) {
	c.Mood = mood
	c.touch()
}

// SetPOV sets or clears (nil) the point-of-view annotation.
func (c *Chapter) SetPOV(pov *string) {
	c.POV = pov
	c.touch()
}

func (c *Chapter) touch() {
	c.ModifiedAt = time.Now().UTC()
}

// ChapterFilename maps a chapter id to its file name.
func ChapterFilename(id string) string {
	return id + ".md"
}

// CountWords returns the number of whitespace-delimited tokens in text.
func CountWords(text string) int {
	return len(strings.Fields(text))
}
