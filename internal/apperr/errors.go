package apperr

import "errors"

var (
	ErrNotFound         = errors.New("project not found")
	ErrChapterNotFound  = errors.New("chapter not found")
	ErrInvalidID        = errors.New("invalid chapter id")
	ErrInvalidStructure = errors.New("invalid manuscript structure")
	ErrInvalidMetadata  = errors.New("invalid project metadata")
	ErrAlreadyExists    = errors.New("already exists")
	ErrConflict         = errors.New("conflict")
	ErrInvalidFormat    = errors.New("unsupported export format")
)
