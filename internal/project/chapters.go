package project

import (
	"fmt"
	"slices"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/parser"
)

// AddChapter creates a chapter node under parentID (the root when empty),
// appends it to the flat order and writes its file. An unknown parent leaves
// the node reachable only through Order.
func (p *Project) AddChapter(title, parentID string) (*models.Chapter, error) {
	c := models.NewChapter(title)
	if parentID == "" {
		parentID = p.Structure.Root
	}

	p.Structure.Nodes[c.ID] = &models.ManuscriptNode{
		ID:       c.ID,
		Title:    title,
		NodeType: models.NodeChapter,
		Children: []string{},
		Status:   models.StatusDraft,
	}
	p.Structure.Order = append(p.Structure.Order, c.ID)
	if parent, ok := p.Structure.Nodes[parentID]; ok {
		parent.Children = append(parent.Children, c.ID)
	}

	if err := writeChapter(p.store, c); err != nil {
		return nil, err
	}
	p.touch()
	if err := p.Save(); err != nil {
		return nil, err
	}
	return c, nil
}

// Chapter reads one chapter file.
func (p *Project) Chapter(id string) (*models.Chapter, error) {
	path := chapterPath(id)
	ok, err := p.store.Exists(path)
	if err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("project: chapter %s: %w", id, apperr.ErrChapterNotFound)
	}
	data, err := p.store.Read(path)
	if err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}
	return parser.ParseChapter(data, id), nil
}

// UpdateChapter persists c and mirrors its cached fields onto the tree node.
func (p *Project) UpdateChapter(c *models.Chapter) error {
	if err := writeChapter(p.store, c); err != nil {
		return err
	}
	if n, ok := p.Structure.Nodes[c.ID]; ok {
		n.Title = c.Title
		n.WordCount = c.WordCount
		n.Status = c.Status
		n.Mood = c.Mood
		n.POV = c.POV
	}
	p.touch()
	return p.Save()
}

// DeleteChapter detaches id from every parent and from the flat order, then
// removes its file and node. Deleting an unknown id only saves.
func (p *Project) DeleteChapter(id string) error {
	for _, n := range p.Structure.Nodes {
		n.Children = slices.DeleteFunc(n.Children, func(c string) bool { return c == id })
	}
	p.Structure.Order = slices.DeleteFunc(p.Structure.Order, func(c string) bool { return c == id })

	if _, ok := p.Structure.Nodes[id]; ok {
		path := chapterPath(id)
		exists, err := p.store.Exists(path)
		if err != nil {
			return fmt.Errorf("project: %w", err)
		}
		if exists {
			if err := p.store.Delete(path); err != nil {
				return fmt.Errorf("project: %w", err)
			}
		}
		delete(p.Structure.Nodes, id)
	}

	p.touch()
	return p.Save()
}

// RenameChapter sets the node title and, when the file exists, the title in
// the file's frontmatter.
func (p *Project) RenameChapter(id, title string) error {
	n, ok := p.Structure.Nodes[id]
	if !ok {
		return fmt.Errorf("project: chapter %s: %w", id, apperr.ErrChapterNotFound)
	}
	n.Title = title

	path := chapterPath(id)
	exists, err := p.store.Exists(path)
	if err != nil {
		return fmt.Errorf("project: %w", err)
	}
	if exists {
		data, err := p.store.Read(path)
		if err != nil {
			return fmt.Errorf("project: %w", err)
		}
		c := parser.ParseChapter(data, id)
		c.Title = title
		if err := writeChapter(p.store, c); err != nil {
			return err
		}
	}

	p.touch()
	return p.Save()
}

// ReorderChapters replaces the children of parentID (the root when empty)
// and the flat order with ids. The ids are not validated.
func (p *Project) ReorderChapters(ids []string, parentID string) error {
	if parentID == "" {
		parentID = p.Structure.Root
	}
	order := slices.Clone(ids)
	if order == nil {
		order = []string{}
	}
	if parent, ok := p.Structure.Nodes[parentID]; ok {
		parent.Children = slices.Clone(order)
	}
	p.Structure.Order = order

	p.touch()
	return p.Save()
}

// Chapters returns the chapter nodes in tree order (depth-first from the
// root), skipping nodes whose file is missing. Nodes outside the tree are not
// visited.
func (p *Project) Chapters() ([]*models.Chapter, error) {
	var out []*models.Chapter
	seen := make(map[string]bool)

	var walk func(id string) error
	walk = func(id string) error {
		if seen[id] {
			return nil
		}
		seen[id] = true
		n, ok := p.Structure.Nodes[id]
		if !ok {
			return nil
		}
		if n.NodeType == models.NodeChapter {
			path := chapterPath(id)
			exists, err := p.store.Exists(path)
			if err != nil {
				return fmt.Errorf("project: %w", err)
			}
			if exists {
				data, err := p.store.Read(path)
				if err != nil {
					return fmt.Errorf("project: %w", err)
				}
				out = append(out, parser.ParseChapter(data, id))
			}
		}
		for _, child := range n.Children {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(p.Structure.Root); err != nil {
		return nil, err
	}
	return out, nil
}

// Manuscript assembles the export view of the project.
func (p *Project) Manuscript() (*models.Manuscript, error) {
	chapters, err := p.Chapters()
	if err != nil {
		return nil, err
	}
	return &models.Manuscript{
		Title:    p.Metadata.Title,
		Author:   p.Metadata.Author,
		Chapters: chapters,
	}, nil
}
