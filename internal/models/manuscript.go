package models

import (
	"fmt"
	"time"
)

// NodeType tags a manuscript node. The set is closed.
type NodeType string

const (
	NodeBook    NodeType = "book"
	NodePart    NodeType = "part"
	NodeChapter NodeType = "chapter"
	NodeScene   NodeType = "scene"
)

// UnmarshalText rejects unknown node types so a corrupt structure fails to load.
func (t *NodeType) UnmarshalText(b []byte) error {
	switch v := NodeType(b); v {
	case NodeBook, NodePart, NodeChapter, NodeScene:
		*t = v
		return nil
	default:
		return fmt.Errorf("unknown node type %q", string(b))
	}
}

// ManuscriptNode is one entry of the manuscript tree. Children are ids into
// ManuscriptStructure.Nodes. WordCount is a cache written by chapter updates;
// nothing recomputes it for non-chapter nodes.
type ManuscriptNode struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	NodeType  NodeType `json:"node_type"`
	Children  []string `json:"children"`
	Status    Status   `json:"status"`
	Mood      *string  `json:"mood"`
	POV       *string  `json:"pov"`
	WordCount int      `json:"word_count"`
}

// ManuscriptStructure is the persisted tree: a flat id index plus the root id.
// Order is a second, independently maintained top-level ordering.
type ManuscriptStructure struct {
	Root  string                     `json:"root"`
	Nodes map[string]*ManuscriptNode `json:"nodes"`
	Order []string                   `json:"order"`
}

// ProjectMetadata is author-facing descriptive data, independent of the tree.
type ProjectMetadata struct {
	Title           string    `json:"title" toml:"title"`
	Author          string    `json:"author" toml:"author"`
	Genre           string    `json:"genre" toml:"genre"`
	WordCountTarget *int      `json:"word_count_target,omitempty" toml:"word_count_target,omitempty"`
	Deadline        *string   `json:"deadline,omitempty" toml:"deadline,omitempty"`
	CreatedAt       time.Time `json:"created_at" toml:"created_at"`
	ModifiedAt      time.Time `json:"modified_at" toml:"modified_at"`
}

// DefaultMetadata is used when a project has no metadata document.
func DefaultMetadata() ProjectMetadata {
	now := time.Now().UTC()
	return ProjectMetadata{
		Title:      "Untitled",
		CreatedAt:  now,
		ModifiedAt: now,
	}
}

// Snapshot is the point-in-time envelope written under snapshots/.
type Snapshot struct {
	Timestamp time.Time           `json:"timestamp"`
	Name      string              `json:"name"`
	Structure ManuscriptStructure `json:"structure"`
	Metadata  ProjectMetadata     `json:"metadata"`
}

// Manuscript is the export view of a project: ordered chapters plus the
// title page data.
type Manuscript struct {
	Title    string
	Author   string
	Chapters []*Chapter
}
