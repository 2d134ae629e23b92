package index

import (
	"fmt"
	"strings"

	"github.com/starford/folio/internal/markdown"
)

// SearchMatch is one occurrence of the query inside a chapter body. Line is
// 1-based; Start and End are byte offsets into the (case-folded, when the
// search is case-insensitive) line.
type SearchMatch struct {
	Line    int    `json:"line_number"`
	Content string `json:"line_content"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
}

// SearchResult groups the matches of one chapter.
type SearchResult struct {
	ChapterID    string        `json:"chapter_id"`
	ChapterTitle string        `json:"chapter_title"`
	Matches      []SearchMatch `json:"matches"`
}

// Search selects candidate chapters in SQL, then scans their bodies line by
// line. An empty query matches nothing. limit caps the number of chapters
// returned; zero or less means no cap.
func (db *DB) Search(query string, caseSensitive bool, limit int) ([]SearchResult, error) {
	if query == "" {
		return nil, nil
	}

	column, needle := "body", query
	if !caseSensitive {
		column, needle = "folded", strings.ToLower(query)
	}
	rows, err := db.conn.Query(`
		SELECT id, title, body FROM chapters
		WHERE instr(`+column+`, ?) > 0
		ORDER BY title, id
	`, needle)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var id, title, body string
		if err := rows.Scan(&id, &title, &body); err != nil {
			return nil, err
		}
		matches := MatchLines(body, query, caseSensitive)
		if len(matches) == 0 {
			continue
		}
		out = append(out, SearchResult{ChapterID: id, ChapterTitle: title, Matches: matches})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}

// MatchLines reports every occurrence of query in text, line by line.
// Overlapping occurrences are all reported: the scan resumes one byte after
// each match start. End is Start plus the byte length of query as given.
func MatchLines(text, query string, caseSensitive bool) []SearchMatch {
	if query == "" {
		return nil
	}
	needle := query
	if !caseSensitive {
		needle = strings.ToLower(query)
	}

	var out []SearchMatch
	for i, line := range markdown.Lines(text) {
		haystack := line
		if !caseSensitive {
			haystack = strings.ToLower(line)
		}
		for start := 0; start <= len(haystack); {
			pos := strings.Index(haystack[start:], needle)
			if pos < 0 {
				break
			}
			abs := start + pos
			out = append(out, SearchMatch{Line: i + 1, Content: line, Start: abs, End: abs + len(query)})
			start = abs + 1
		}
	}
	return out
}

// SearchText is the part of a chapter file that search sees: everything
// after the second "---" when the file opens with one, otherwise the whole
// file. Line numbers in matches count from there.
func SearchText(data []byte) string {
	s := string(data)
	if !strings.HasPrefix(s, "---") {
		return s
	}
	parts := strings.SplitN(s, "---", 3)
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}
