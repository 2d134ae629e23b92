package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/projectservice"
)

const maxTitleLength = 200

var statusRule = validation.In(models.StatusDraft, models.StatusRevised, models.StatusFinal, models.StatusTrash)

// CreateChapterRequest is the request body for creating a chapter.
type CreateChapterRequest struct {
	Title    string `json:"title" example:"The Crossing" validate:"required"`
	ParentID string `json:"parent_id,omitempty" example:"3f6c1c2e-..."`
	Content  string `json:"content,omitempty" example:"It was dark."`
}

// Validate validates the create request.
func (r *CreateChapterRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Title, validation.Required, validation.RuneLength(1, maxTitleLength)),
	)
}

// ReplaceChapterRequest is the request body for PUT: the body is replaced,
// the other fields only when present.
type ReplaceChapterRequest struct {
	Content *string        `json:"content" example:"It was dark." validate:"required"`
	Title   *string        `json:"title,omitempty"`
	Status  *models.Status `json:"status,omitempty" example:"draft"`
}

// Validate validates the replace request.
func (r *ReplaceChapterRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Content, validation.NotNil),
		validation.Field(&r.Title, validation.NilOrNotEmpty, validation.RuneLength(1, maxTitleLength)),
		validation.Field(&r.Status, statusRule),
	)
}

// PatchChapterRequest is the request body for PATCH. Absent fields are kept;
// an empty mood or pov clears it.
type PatchChapterRequest struct {
	Title   *string        `json:"title,omitempty"`
	Content *string        `json:"content,omitempty"`
	Status  *models.Status `json:"status,omitempty"`
	Mood    *string        `json:"mood,omitempty"`
	POV     *string        `json:"pov,omitempty"`
}

// Validate validates the patch request.
func (r *PatchChapterRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Title, validation.NilOrNotEmpty, validation.RuneLength(1, maxTitleLength)),
		validation.Field(&r.Status, statusRule),
	)
}

func (r *PatchChapterRequest) update() projectservice.ChapterUpdate {
	return projectservice.ChapterUpdate{
		Title:   r.Title,
		Content: r.Content,
		Status:  r.Status,
		Mood:    r.Mood,
		POV:     r.POV,
	}
}

// ReorderRequest is the request body for PUT /api/order.
type ReorderRequest struct {
	IDs      []string `json:"ids" validate:"required"`
	ParentID string   `json:"parent_id,omitempty"`
}

// Validate validates the reorder request.
func (r *ReorderRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.IDs, validation.NotNil, validation.Each(validation.Required)),
	)
}

// SnapshotRequest is the request body for POST /api/snapshots.
type SnapshotRequest struct {
	Name string `json:"name,omitempty" example:"before rewrite"`
}

// Validate validates the snapshot request.
func (r *SnapshotRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.RuneLength(0, maxTitleLength)),
	)
}

// ChapterDetail is the full chapter response type (aliased from the domain layer).
type ChapterDetail = projectservice.ChapterDetail

// ChapterListItem is a lightweight item in a list response (aliased from the domain layer).
type ChapterListItem = projectservice.ChapterListItem

// ChapterListResponse wraps chapter listings.
type ChapterListResponse struct {
	Chapters []ChapterListItem `json:"chapters" validate:"required"`
	Total    int               `json:"total" example:"12" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Query   string               `json:"query" example:"lighthouse"`
	Results []index.SearchResult `json:"results" validate:"required"`
}

// SnapshotResponse is returned after a snapshot is written.
type SnapshotResponse struct {
	Path string `json:"path" example:"snapshots/2026-01-02T03-04-05-manual.json" validate:"required"`
}

// ExportResponse is returned when an export is saved inside the project.
type ExportResponse struct {
	Format string `json:"format" example:"epub" validate:"required"`
	Path   string `json:"path" validate:"required"`
	URL    string `json:"url" example:"/api/exports/Book.epub" validate:"required"`
}
