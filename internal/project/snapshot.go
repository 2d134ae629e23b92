package project

import (
	"encoding/json"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/starford/folio/internal/models"
)

const snapshotTimeLayout = "2006-01-02T15-04-05"

// CreateSnapshot writes the current structure and metadata to
// snapshots/<timestamp>-<name>.json and returns the file path relative to the
// project. An empty name becomes "manual".
func (p *Project) CreateSnapshot(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		name = "manual"
	}
	now := time.Now().UTC()
	snap := models.Snapshot{
		Timestamp: now,
		Name:      name,
		Structure: p.Structure,
		Metadata:  p.Metadata,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("project: encode snapshot: %w", err)
	}

	rel := path.Join(SnapshotsDir, now.Format(snapshotTimeLayout)+"-"+SanitizeFilename(name)+".json")
	if err := p.store.Write(rel, data); err != nil {
		return "", fmt.Errorf("project: write snapshot: %w", err)
	}
	return rel, nil
}

// SnapshotInfo describes one stored snapshot.
type SnapshotInfo struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

// ListSnapshots returns stored snapshots, newest first. Files that do not
// decode are skipped.
func (p *Project) ListSnapshots() ([]SnapshotInfo, error) {
	files, err := p.store.List(SnapshotsDir, ".json")
	if err != nil {
		return nil, fmt.Errorf("project: list snapshots: %w", err)
	}
	out := make([]SnapshotInfo, 0, len(files))
	for _, f := range files {
		data, err := p.store.Read(f.Path)
		if err != nil {
			return nil, fmt.Errorf("project: %w", err)
		}
		var snap models.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			continue
		}
		out = append(out, SnapshotInfo{Path: f.Path, Name: snap.Name, Timestamp: snap.Timestamp})
	}
	slices.SortStableFunc(out, func(a, b SnapshotInfo) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return out, nil
}
