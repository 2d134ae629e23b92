// Package storage defines the project file-system abstraction.
package storage

import "time"

// FileMeta is a lightweight description of one stored file.
type FileMeta struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider is the interface for project file operations. All paths are
// relative to the project root.
type Provider interface {
	// Root returns the absolute project directory.
	Root() string
	// List returns metadata for every file with the given extension directly under dir.
	List(dir, ext string) ([]FileMeta, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Exists reports whether a regular file exists at path.
	Exists(path string) (bool, error)
	// MkdirAll creates dir and any missing parents.
	MkdirAll(dir string) error
}
