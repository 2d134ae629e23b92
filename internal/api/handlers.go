package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/folio/internal/export"
	"github.com/starford/folio/internal/project"
	"github.com/starford/folio/internal/projectservice"
)

const maxBodyBytes = 10 << 20

// validator mirrors pkg/config.Validator for request bodies.
type validator interface {
	Validate() error
}

// Handler holds API route handlers.
type Handler struct {
	svc *projectservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *projectservice.Service) *Handler {
	return &Handler{svc: svc}
}

// decode reads a JSON body into v and validates it. It writes the error
// response itself and reports whether the handler may continue.
func decode(w http.ResponseWriter, r *http.Request, v validator) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "invalid JSON body", Code: codeInvalidBody})
		return false
	}
	if err := v.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: err.Error(), Code: codeInvalidBody})
		return false
	}
	return true
}

// writeError maps domain errors onto status codes and logs anything else.
func writeError(w http.ResponseWriter, err error, op string, attrs ...any) {
	if status, body, ok := domainError(err); ok {
		writeJSON(w, status, body)
		return
	}
	slog.Error(op+" failed", append(attrs, slog.String("error", err.Error()))...)
	writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
}

// ifMatch returns the If-Match header without surrounding quotes (ETag form).
func ifMatch(r *http.Request) string {
	return strings.Trim(r.Header.Get("If-Match"), `"`)
}

func writeChapter(w http.ResponseWriter, status int, c *ChapterDetail) {
	w.Header().Set("ETag", strconv.Quote(c.Checksum))
	writeJSON(w, status, c)
}

// GetProject handles GET /api/project.
//
//	@Summary		Get the project metadata, structure and word count
//	@Tags			project
//	@Produce		json
//	@Success		200	{object}	projectservice.ProjectState
//	@Security		BearerAuth
//	@Router			/project [get]
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Project(r.Context()))
}

// ListChapters handles GET /api/chapters.
//
//	@Summary		List chapters in manuscript order
//	@Tags			chapters
//	@Produce		json
//	@Success		200	{object}	ChapterListResponse
//	@Security		BearerAuth
//	@Router			/chapters [get]
func (h *Handler) ListChapters(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListChapters(r.Context())
	if err != nil {
		writeError(w, err, "list chapters")
		return
	}
	if items == nil {
		items = []ChapterListItem{}
	}
	writeJSON(w, http.StatusOK, ChapterListResponse{Chapters: items, Total: len(items)})
}

// GetChapter handles GET /api/chapters/{id}.
//
//	@Summary		Get a single chapter
//	@Tags			chapters
//	@Produce		json
//	@Param			id	path		string	true	"Chapter id"
//	@Success		200	{object}	ChapterDetail
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/chapters/{id} [get]
func (h *Handler) GetChapter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := h.svc.GetChapter(r.Context(), id)
	if err != nil {
		writeError(w, err, "get chapter", slog.String("chapter", id))
		return
	}
	writeChapter(w, http.StatusOK, c)
}

// CreateChapter handles POST /api/chapters.
//
//	@Summary		Create a chapter
//	@Tags			chapters
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateChapterRequest	true	"Chapter to create"
//	@Success		201		{object}	ChapterDetail
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/chapters [post]
func (h *Handler) CreateChapter(w http.ResponseWriter, r *http.Request) {
	var req CreateChapterRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.svc.CreateChapter(r.Context(), req.Title, req.ParentID, req.Content)
	if err != nil {
		writeError(w, err, "create chapter", slog.String("title", req.Title))
		return
	}
	w.Header().Set("Location", "/api/chapters/"+c.ID)
	writeChapter(w, http.StatusCreated, c)
}

// ReplaceChapter handles PUT /api/chapters/{id}.
//
//	@Summary		Replace a chapter body with optimistic concurrency
//	@Tags			chapters
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string					true	"Chapter id"
//	@Param			If-Match	header		string					false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body		body		ReplaceChapterRequest	true	"New content"
//	@Success		200			{object}	ChapterDetail
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/chapters/{id} [put]
func (h *Handler) ReplaceChapter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req ReplaceChapterRequest
	if !decode(w, r, &req) {
		return
	}
	upd := projectservice.ChapterUpdate{Title: req.Title, Content: req.Content, Status: req.Status}
	c, err := h.svc.UpdateChapter(r.Context(), id, upd, ifMatch(r))
	if err != nil {
		writeError(w, err, "replace chapter", slog.String("chapter", id))
		return
	}
	writeChapter(w, http.StatusOK, c)
}

// PatchChapter handles PATCH /api/chapters/{id}.
//
//	@Summary		Update chapter fields with optimistic concurrency
//	@Tags			chapters
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string				true	"Chapter id"
//	@Param			If-Match	header		string				false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body		body		PatchChapterRequest	true	"Fields to change"
//	@Success		200			{object}	ChapterDetail
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/chapters/{id} [patch]
func (h *Handler) PatchChapter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req PatchChapterRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.svc.UpdateChapter(r.Context(), id, req.update(), ifMatch(r))
	if err != nil {
		writeError(w, err, "patch chapter", slog.String("chapter", id))
		return
	}
	writeChapter(w, http.StatusOK, c)
}

// DeleteChapter handles DELETE /api/chapters/{id}.
//
//	@Summary		Delete a chapter
//	@Description	Deleting an id that is not in the tree succeeds and drops any references to it.
//	@Tags			chapters
//	@Param			id	path	string	true	"Chapter id"
//	@Success		204	"Chapter deleted"
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/chapters/{id} [delete]
func (h *Handler) DeleteChapter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.DeleteChapter(r.Context(), id); err != nil {
		writeError(w, err, "delete chapter", slog.String("chapter", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reorder handles PUT /api/order.
//
//	@Summary		Replace the chapter order under a parent
//	@Tags			chapters
//	@Accept			json
//	@Param			body	body	ReorderRequest	true	"New order"
//	@Success		204		"Order saved"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/order [put]
func (h *Handler) Reorder(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.ReorderChapters(r.Context(), req.IDs, req.ParentID); err != nil {
		writeError(w, err, "reorder chapters")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSnapshots handles GET /api/snapshots.
//
//	@Summary		List snapshots, newest first
//	@Tags			snapshots
//	@Produce		json
//	@Success		200	{array}	project.SnapshotInfo
//	@Security		BearerAuth
//	@Router			/snapshots [get]
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListSnapshots(r.Context())
	if err != nil {
		writeError(w, err, "list snapshots")
		return
	}
	if list == nil {
		list = []project.SnapshotInfo{}
	}
	writeJSON(w, http.StatusOK, list)
}

// CreateSnapshot handles POST /api/snapshots.
//
//	@Summary		Snapshot the structure and metadata
//	@Tags			snapshots
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SnapshotRequest	false	"Snapshot name"
//	@Success		201		{object}	SnapshotResponse
//	@Security		BearerAuth
//	@Router			/snapshots [post]
func (h *Handler) CreateSnapshot(w http.ResponseWriter, r *http.Request) {
	var req SnapshotRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	p, err := h.svc.CreateSnapshot(r.Context(), req.Name)
	if err != nil {
		writeError(w, err, "create snapshot")
		return
	}
	writeJSON(w, http.StatusCreated, SnapshotResponse{Path: p})
}

// Search handles GET /api/search.
//
//	@Summary		Search the manuscript line by line
//	@Tags			search
//	@Produce		json
//	@Param			q				query		string	true	"Search query"
//	@Param			case_sensitive	query		bool	false	"Match case"
//	@Param			limit			query		int		false	"Max chapters"
//	@Success		200				{object}	SearchResponse
//	@Failure		400				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	caseSensitive, _ := strconv.ParseBool(r.URL.Query().Get("case_sensitive"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, caseSensitive, limit)
	if err != nil {
		writeError(w, err, "search", slog.String("query", q))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Query: q, Results: results})
}

// Export handles GET /api/export/{format}. The document is returned as an
// attachment; with ?save=true it is written under exports/ instead.
//
//	@Summary		Export the manuscript
//	@Tags			export
//	@Produce		octet-stream
//	@Param			format	path		string	true	"Target format"	Enums(markdown, text, html, latex, epub)
//	@Param			save	query		bool	false	"Write into the project's exports directory"
//	@Success		200		{file}		binary
//	@Success		201		{object}	ExportResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/export/{format} [get]
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	f, err := export.ParseFormat(chi.URLParam(r, "format"))
	if err != nil {
		writeError(w, err, "export")
		return
	}

	if save, _ := strconv.ParseBool(r.URL.Query().Get("save")); save {
		out, err := h.svc.ExportFile(r.Context(), f, "")
		if err != nil {
			writeError(w, err, "export", slog.String("format", string(f)))
			return
		}
		name := filepath.Base(out)
		writeJSON(w, http.StatusCreated, ExportResponse{Format: string(f), Path: out, URL: "/api/exports/" + name})
		return
	}

	var buf bytes.Buffer
	if err := h.svc.Export(r.Context(), f, &buf); err != nil {
		writeError(w, err, "export", slog.String("format", string(f)))
		return
	}
	name := project.SanitizeFilename(h.svc.Project(r.Context()).Metadata.Title) + f.Extension()
	w.Header().Set("Content-Type", f.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
