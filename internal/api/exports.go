package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

// ExportsHandler serves files previously written to the exports directory.
type ExportsHandler struct {
	dir string
}

// NewExportsHandler creates a handler serving files from dir.
func NewExportsHandler(dir string) *ExportsHandler {
	return &ExportsHandler{dir: filepath.Clean(dir)}
}

// safeName validates that the filename is a plain name (no path separators,
// no traversal) and returns the absolute path under the exports dir.
func (h *ExportsHandler) safeName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("filename is required")
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	abs := filepath.Join(h.dir, cleaned)
	if !strings.HasPrefix(abs, h.dir+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes exports directory")
	}
	return abs, nil
}

// ServeFile handles GET /api/exports/{filename}.
func (h *ExportsHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	abs, err := h.safeName(chi.URLParam(r, "filename"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(abs)))
	http.ServeFile(w, r, abs)
}
