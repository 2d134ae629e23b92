// Package project implements the manuscript aggregate: a directory holding the
// tree structure, the metadata document and one file per chapter.
package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/parser"
	"github.com/starford/folio/internal/storage"
)

// Persisted layout.
const (
	StructureFile = "manuscript.json"
	MetadataFile  = "metadata.toml"
	ChaptersDir   = "chapters"
	SnapshotsDir  = "snapshots"
	ExportsDir    = "exports"

	dirSuffix = ".folio"
)

var subdirs = []string{
	ChaptersDir,
	SnapshotsDir,
	"history",
	"notes/characters",
	"notes/locations",
	"notes/worldbuilding",
	"notes/scratch",
	"fonts",
	"sounds",
	"ghost-notes",
	ExportsDir,
}

// Project owns one open manuscript directory. It is not safe for concurrent
// use, and nothing coordinates two Projects over the same directory.
type Project struct {
	store     storage.Provider
	Metadata  models.ProjectMetadata
	Structure models.ManuscriptStructure
}

// Create allocates <rootDir>/<sanitized title>.folio, lays out the fixed
// subdirectories, and persists a project holding a single book node.
func Create(rootDir, title, author string) (*Project, error) {
	dir := filepath.Join(rootDir, SanitizeFilename(title)+dirSuffix)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("project: create dir: %w", err)
	}
	store, err := storage.NewFS(dir)
	if err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}
	exists, err := store.Exists(StructureFile)
	if err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("project: %s: %w", dir, apperr.ErrAlreadyExists)
	}
	for _, sub := range subdirs {
		if err := store.MkdirAll(sub); err != nil {
			return nil, fmt.Errorf("project: %w", err)
		}
	}

	now := time.Now().UTC()
	rootID := uuid.NewString()
	p := &Project{
		store: store,
		Metadata: models.ProjectMetadata{
			Title:      title,
			Author:     author,
			CreatedAt:  now,
			ModifiedAt: now,
		},
		Structure: models.ManuscriptStructure{
			Root: rootID,
			Nodes: map[string]*models.ManuscriptNode{
				rootID: {
					ID:       rootID,
					Title:    title,
					NodeType: models.NodeBook,
					Children: []string{},
					Status:   models.StatusDraft,
				},
			},
			Order: []string{},
		},
	}
	if err := p.Save(); err != nil {
		return nil, err
	}
	return p, nil
}

// Open loads the project in dir. A missing structure document is
// apperr.ErrNotFound; a missing metadata document yields defaults.
func Open(dir string) (*Project, error) {
	store, err := storage.NewFS(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("project: %s: %w", dir, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("project: %w", err)
	}
	return OpenStore(store)
}

// OpenStore loads a project through an existing storage provider.
func OpenStore(store storage.Provider) (*Project, error) {
	ok, err := store.Exists(StructureFile)
	if err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("project: %s: %w", filepath.Join(store.Root(), StructureFile), apperr.ErrNotFound)
	}

	data, err := store.Read(StructureFile)
	if err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}
	var structure models.ManuscriptStructure
	if err := json.Unmarshal(data, &structure); err != nil {
		return nil, fmt.Errorf("project: %w: %v", apperr.ErrInvalidStructure, err)
	}
	if structure.Nodes == nil {
		structure.Nodes = map[string]*models.ManuscriptNode{}
	}

	metadata := models.DefaultMetadata()
	ok, err = store.Exists(MetadataFile)
	if err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}
	if ok {
		raw, err := store.Read(MetadataFile)
		if err != nil {
			return nil, fmt.Errorf("project: %w", err)
		}
		metadata = models.ProjectMetadata{}
		if err := toml.Unmarshal(raw, &metadata); err != nil {
			return nil, fmt.Errorf("project: %w: %v", apperr.ErrInvalidMetadata, err)
		}
	}

	return &Project{store: store, Metadata: metadata, Structure: structure}, nil
}

// Path returns the project directory.
func (p *Project) Path() string {
	return p.store.Root()
}

// Store exposes the underlying file provider.
func (p *Project) Store() storage.Provider {
	return p.store
}

// Save writes the structure document, then the metadata document. The two
// writes are independent: when the second fails the first has already landed.
func (p *Project) Save() error {
	structure, err := json.MarshalIndent(p.Structure, "", "  ")
	if err != nil {
		return fmt.Errorf("project: encode structure: %w", err)
	}
	if err := p.store.Write(StructureFile, structure); err != nil {
		return fmt.Errorf("project: save structure: %w", err)
	}

	metadata, err := toml.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("project: encode metadata: %w", err)
	}
	if err := p.store.Write(MetadataFile, metadata); err != nil {
		return fmt.Errorf("project: save metadata: %w", err)
	}
	return nil
}

// TotalWordCount sums the cached word count of every node, chapter or not.
func (p *Project) TotalWordCount() int {
	total := 0
	for _, n := range p.Structure.Nodes {
		total += n.WordCount
	}
	return total
}

func (p *Project) touch() {
	p.Metadata.ModifiedAt = time.Now().UTC()
}

func chapterPath(id string) string {
	return ChaptersDir + "/" + models.ChapterFilename(id)
}

// SanitizeFilename keeps letters, digits, '-', '_' and spaces, replaces
// everything else with '_' and trims surrounding space.
func SanitizeFilename(name string) string {
	s := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == ' ' {
			return r
		}
		return '_'
	}, name)
	s = strings.TrimSpace(s)
	if s == "" {
		return "untitled"
	}
	return s
}

func writeChapter(store storage.Provider, c *models.Chapter) error {
	if err := store.Write(chapterPath(c.ID), parser.FormatChapter(c)); err != nil {
		return fmt.Errorf("project: write chapter %s: %w", c.ID, err)
	}
	return nil
}
