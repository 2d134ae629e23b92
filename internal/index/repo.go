package index

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ChapterRow represents a row in the chapters table.
type ChapterRow struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Checksum  string    `json:"checksum"`
	Status    string    `json:"status"`
	WordCount int       `json:"word_count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpsertChapter inserts or replaces a chapter and its searchable body.
func (db *DB) UpsertChapter(c ChapterRow, body string) error {
	_, err := db.conn.Exec(`
		INSERT INTO chapters (id, title, checksum, status, word_count, body, folded, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title      = excluded.title,
			checksum   = excluded.checksum,
			status     = excluded.status,
			word_count = excluded.word_count,
			body       = excluded.body,
			folded     = excluded.folded,
			updated_at = excluded.updated_at
	`, c.ID, c.Title, c.Checksum, c.Status, c.WordCount, body, strings.ToLower(body), c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert chapter: %w", err)
	}
	return nil
}

// DeleteChapter removes a chapter row. Unknown ids are ignored.
func (db *DB) DeleteChapter(id string) error {
	if _, err := db.conn.Exec(`DELETE FROM chapters WHERE id = ?`, id); err != nil {
		return fmt.Errorf("index: delete chapter: %w", err)
	}
	return nil
}

// GetChecksum returns the stored checksum for a chapter, or empty string if not found.
func (db *DB) GetChecksum(id string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM chapters WHERE id = ?`, id).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// GetChapter returns one indexed chapter, or nil when it is not indexed.
func (db *DB) GetChapter(id string) (*ChapterRow, error) {
	var r ChapterRow
	err := db.conn.QueryRow(`
		SELECT id, title, checksum, status, word_count, updated_at
		FROM chapters WHERE id = ?
	`, id).Scan(&r.ID, &r.Title, &r.Checksum, &r.Status, &r.WordCount, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: get chapter: %w", err)
	}
	return &r, nil
}

// ListChapters returns every indexed chapter ordered by title.
func (db *DB) ListChapters() ([]ChapterRow, error) {
	rows, err := db.conn.Query(`
		SELECT id, title, checksum, status, word_count, updated_at
		FROM chapters ORDER BY title, id
	`)
	if err != nil {
		return nil, fmt.Errorf("index: list chapters: %w", err)
	}
	defer rows.Close()

	var out []ChapterRow
	for rows.Next() {
		var r ChapterRow
		if err := rows.Scan(&r.ID, &r.Title, &r.Checksum, &r.Status, &r.WordCount, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AllChecksums returns id → checksum for every indexed chapter.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT id, checksum FROM chapters`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var id, cs string
		if err := rows.Scan(&id, &cs); err != nil {
			return nil, err
		}
		out[id] = cs
	}
	return out, rows.Err()
}
