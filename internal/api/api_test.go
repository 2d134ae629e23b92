package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/starford/folio/internal/export"
	"github.com/starford/folio/internal/projectservice"
	"github.com/starford/folio/internal/sse"
	"github.com/starford/folio/internal/testutil"
)

// testEnv sets up a temp project, SQLite DB, service, and router for testing.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*projectservice.Service, http.Handler) {
	t.Helper()
	return testEnvWithSSE(t, authToken != "", authToken, nil)
}

func testEnvWithSSE(t *testing.T, authEnabled bool, token string, sseHandler http.Handler) (*projectservice.Service, http.Handler) {
	t.Helper()
	proj := testutil.TestProject(t, "Night Train", "R. Vale")
	svc := projectservice.NewService(proj, testutil.TestDB(t))
	return svc, NewRouter(svc, authEnabled, token, sseHandler)
}

func do(t *testing.T, router http.Handler, method, target string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rd)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createChapter(t *testing.T, router http.Handler, title, content string) ChapterDetail {
	t.Helper()
	w := do(t, router, http.MethodPost, "/chapters", map[string]string{"title": title, "content": content})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var c ChapterDetail
	if err := json.Unmarshal(w.Body.Bytes(), &c); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return c
}

func TestCreateAndGetChapter(t *testing.T) {
	_, router := testEnv(t, "")

	created := createChapter(t, router, "Departure", "The whistle blew.")
	if created.ID == "" || created.Checksum == "" {
		t.Fatalf("created = %+v", created)
	}

	w := do(t, router, http.MethodGet, "/chapters/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	if etag := w.Header().Get("ETag"); etag != strconv.Quote(created.Checksum) {
		t.Errorf("ETag = %q", etag)
	}
	var got ChapterDetail
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Title != "Departure" || got.Content != "The whistle blew." || got.WordCount != 3 {
		t.Errorf("got = %+v", got)
	}
}

func TestCreateChapter_Validation(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/chapters", map[string]string{"content": "no title"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing title = %d, want 400", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/chapters", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad JSON = %d, want 400", rec.Code)
	}
}

func TestReplaceWithOptimisticLocking(t *testing.T) {
	_, router := testEnv(t, "")
	c := createChapter(t, router, "Lock", "v1")

	w := do(t, router, http.MethodPut, "/chapters/"+c.ID, map[string]string{"content": "v2"}, "If-Match", strconv.Quote(c.Checksum))
	if w.Code != http.StatusOK {
		t.Fatalf("update with correct checksum = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodPut, "/chapters/"+c.ID, map[string]string{"content": "v3"}, "If-Match", c.Checksum)
	if w.Code != http.StatusConflict {
		t.Errorf("update with stale checksum = %d, want 409", w.Code)
	}
}

func TestReplace_RequiresContent(t *testing.T) {
	_, router := testEnv(t, "")
	c := createChapter(t, router, "Body", "")

	w := do(t, router, http.MethodPut, "/chapters/"+c.ID, map[string]string{"title": "Only title"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing content = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodPut, "/chapters/"+c.ID, map[string]string{"content": ""})
	if w.Code != http.StatusOK {
		t.Errorf("empty content = %d, want 200", w.Code)
	}
}

func TestPatchChapter(t *testing.T) {
	_, router := testEnv(t, "")
	c := createChapter(t, router, "Patch", "body stays")

	w := do(t, router, http.MethodPatch, "/chapters/"+c.ID, map[string]string{"status": "final", "mood": "quiet"})
	if w.Code != http.StatusOK {
		t.Fatalf("patch = %d, body = %s", w.Code, w.Body.String())
	}
	var got ChapterDetail
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Status != "final" || got.Mood == nil || *got.Mood != "quiet" || got.Content != "body stays" {
		t.Errorf("got = %+v", got)
	}

	w = do(t, router, http.MethodPatch, "/chapters/"+c.ID, map[string]string{"title": ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty title = %d, want 400", w.Code)
	}
}

func TestDeleteChapter(t *testing.T) {
	_, router := testEnv(t, "")
	c := createChapter(t, router, "Del", "x")

	w := do(t, router, http.MethodDelete, "/chapters/"+c.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	w = do(t, router, http.MethodGet, "/chapters/"+c.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
	w = do(t, router, http.MethodDelete, "/chapters/"+c.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("second delete = %d, want 204", w.Code)
	}
}

func TestChapterRoutesRejectPathLikeIDs(t *testing.T) {
	_, router := testEnv(t, "")
	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		var body any
		if method == http.MethodPut {
			body = map[string]any{"content": "x"}
		}
		w := do(t, router, method, "/chapters/..%5Cexports%5CTide", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s = %d, want 400", method, w.Code)
			continue
		}
		var resp errResponse
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.Code != codeInvalidID {
			t.Errorf("%s code = %q", method, resp.Code)
		}
	}
}

func TestListChaptersAndReorder(t *testing.T) {
	_, router := testEnv(t, "")
	a := createChapter(t, router, "A", "")
	b := createChapter(t, router, "B", "")

	w := do(t, router, http.MethodPut, "/order", map[string]any{"ids": []string{b.ID, a.ID}})
	if w.Code != http.StatusNoContent {
		t.Fatalf("reorder = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodGet, "/chapters", nil)
	var resp ChapterListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 2 || resp.Chapters[0].ID != b.ID || resp.Chapters[1].ID != a.ID {
		t.Errorf("list = %+v", resp)
	}

	w = do(t, router, http.MethodPut, "/order", map[string]any{"parent_id": "x"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("reorder without ids = %d, want 400", w.Code)
	}
}

func TestGetProject(t *testing.T) {
	_, router := testEnv(t, "")
	createChapter(t, router, "One", "two words")

	w := do(t, router, http.MethodGet, "/project", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("project = %d", w.Code)
	}
	var state projectservice.ProjectState
	_ = json.Unmarshal(w.Body.Bytes(), &state)
	if state.Metadata.Title != "Night Train" || state.TotalWordCount != 2 || len(state.Structure.Nodes) != 2 {
		t.Errorf("state = %+v", state)
	}
}

func TestSnapshotsEndpoints(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/snapshots", map[string]string{"name": "draft one"})
	if w.Code != http.StatusCreated {
		t.Fatalf("snapshot = %d, body = %s", w.Code, w.Body.String())
	}
	var snap SnapshotResponse
	_ = json.Unmarshal(w.Body.Bytes(), &snap)
	if !strings.HasSuffix(snap.Path, "-draft one.json") {
		t.Errorf("path = %q", snap.Path)
	}

	w = do(t, router, http.MethodGet, "/snapshots", nil)
	var list []map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if len(list) != 1 {
		t.Errorf("snapshots = %v", list)
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	c := createChapter(t, router, "Search Me", "uniqueword appears here")

	w := do(t, router, http.MethodGet, "/search?q=UNIQUEWORD", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d", w.Code)
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 || resp.Results[0].ChapterID != c.ID || resp.Results[0].ChapterTitle != "Search Me" {
		t.Errorf("results = %+v", resp.Results)
	}

	w = do(t, router, http.MethodGet, "/search?q=UNIQUEWORD&case_sensitive=true", nil)
	resp = SearchResponse{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 0 {
		t.Errorf("case-sensitive results = %+v", resp.Results)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/search", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestExportDownload(t *testing.T) {
	_, router := testEnv(t, "")
	createChapter(t, router, "Platform", "Steam *rose*.")

	w := do(t, router, http.MethodGet, "/export/html", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != export.FormatHTML.ContentType() {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="Night Train.html"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !strings.Contains(w.Body.String(), "<em>rose</em>") {
		t.Errorf("body missing rendered chapter")
	}
}

func TestExportUnknownFormat(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/export/docx", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown format = %d, want 400", w.Code)
	}
}

func TestExportSaveAndServe(t *testing.T) {
	svc, router := testEnv(t, "")
	createChapter(t, router, "Platform", "Steam rose.")

	w := do(t, router, http.MethodGet, "/export/md?save=true", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("save export = %d, body = %s", w.Code, w.Body.String())
	}
	var resp ExportResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Format != "markdown" || resp.Path != filepath.Join(svc.Path(), "exports", "Night Train.md") {
		t.Errorf("resp = %+v", resp)
	}
	if _, err := os.Stat(resp.Path); err != nil {
		t.Fatalf("export not written: %v", err)
	}

	w = do(t, router, http.MethodGet, "/exports/Night%20Train.md", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("serve export = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "## Platform") {
		t.Errorf("served body = %q", w.Body.String())
	}
}

func TestServeExport_NotFound(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/exports/missing.epub", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing export = %d, want 404", w.Code)
	}
}

func TestServeExport_TraversalBlocked(t *testing.T) {
	h := NewExportsHandler(t.TempDir())
	for _, name := range []string{"../manuscript.json", "..", "a/b.md", ""} {
		if _, err := h.safeName(name); err == nil {
			t.Errorf("safeName(%q) accepted", name)
		}
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	w := do(t, router, http.MethodPost, "/chapters", map[string]string{"title": "Auth"}, "Authorization", "Bearer secret123")
	if w.Code != http.StatusCreated {
		t.Errorf("authed create = %d, want 201", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	w := do(t, router, http.MethodGet, "/chapters", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	w := do(t, router, http.MethodGet, "/chapters", nil, "Authorization", "Bearer wrong")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_QueryToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	w := do(t, router, http.MethodGet, "/chapters?access_token=secret123", nil)
	if w.Code != http.StatusOK {
		t.Errorf("GET with query token = %d, want 200", w.Code)
	}

	w = do(t, router, http.MethodPost, "/chapters?access_token=secret123", map[string]string{"title": "No"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("POST with query token = %d, want 401", w.Code)
	}
	var body errResponse
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Code != "unauthorized" {
		t.Errorf("code = %q", body.Code)
	}
}

func TestErrorCodes(t *testing.T) {
	_, router := testEnv(t, "")
	c := createChapter(t, router, "Coded", "x")

	tests := []struct {
		name   string
		method string
		target string
		body   any
		hdr    []string
		status int
		code   string
	}{
		{"missing chapter", http.MethodGet, "/chapters/nope", nil, nil, http.StatusNotFound, "not_found"},
		{"stale checksum", http.MethodPut, "/chapters/" + c.ID, map[string]string{"content": "y"}, []string{"If-Match", `"stale"`}, http.StatusConflict, "checksum_mismatch"},
		{"unknown format", http.MethodGet, "/export/docx", nil, nil, http.StatusBadRequest, "invalid_format"},
		{"bad body", http.MethodPost, "/chapters", map[string]string{}, nil, http.StatusBadRequest, "invalid_body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, tt.method, tt.target, tt.body, tt.hdr...)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.status, w.Body.String())
			}
			var body errResponse
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Code != tt.code {
				t.Errorf("code = %q, want %q", body.Code, tt.code)
			}
		})
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/chapters", nil)
	if w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

func TestSSEEvents_AuthProtected(t *testing.T) {
	broker := sse.NewBroker(time.Second)
	defer broker.Close()
	_, router := testEnvWithSSE(t, true, "secret", broker)

	w := do(t, router, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	broker := sse.NewBroker(time.Second)
	defer broker.Close()
	_, router := testEnvWithSSE(t, true, "tok", broker)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
}
