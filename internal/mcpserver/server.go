// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Folio manuscript tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/export"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/projectservice"
)

const (
	chapterFormatURI   = "folio://chapter-format"
	defaultSearchLimit = 20
)

// Server wraps the MCP server with Folio tools.
type Server struct {
	mcp *server.MCPServer
	svc *projectservice.Service
}

// New creates a new MCP server with all Folio tools registered.
func New(svc *projectservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Folio",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_project",
		mcp.WithDescription("Return the project metadata, manuscript tree and total word count."),
	), s.getProject)

	s.mcp.AddTool(mcp.NewTool("list_chapters",
		mcp.WithDescription("List chapters in manuscript order with status and word count."),
	), s.listChapters)

	s.mcp.AddTool(mcp.NewTool("read_chapter",
		mcp.WithDescription("Read one chapter: metadata, Markdown body and the checksum to pass to update_chapter."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Chapter id")),
	), s.readChapter)

	s.mcp.AddTool(mcp.NewTool("create_chapter",
		mcp.WithDescription("Create a chapter at the end of the manuscript or under a parent node. "+
			"The body MUST follow the chapter format contract; read it first via "+
			"get_chapter_contract or the "+chapterFormatURI+" resource."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Chapter title")),
		mcp.WithString("content", mcp.Description("Markdown body, without frontmatter")),
		mcp.WithString("parent_id", mcp.Description("Parent node id (defaults to the book root)")),
	), s.createChapter)

	s.mcp.AddTool(mcp.NewTool("update_chapter",
		mcp.WithDescription("Change the body or metadata of a chapter. Omitted fields are kept."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Chapter id")),
		mcp.WithString("content", mcp.Description("New Markdown body, without frontmatter")),
		mcp.WithString("status", mcp.Description("Editorial status"),
			mcp.Enum(string(models.StatusDraft), string(models.StatusRevised), string(models.StatusFinal), string(models.StatusTrash))),
		mcp.WithString("mood", mcp.Description("Scene mood; empty clears it")),
		mcp.WithString("pov", mcp.Description("Point-of-view character; empty clears it")),
		mcp.WithString("checksum", mcp.Description("Checksum from read_chapter; the write is rejected if the chapter changed")),
	), s.updateChapter)

	s.mcp.AddTool(mcp.NewTool("rename_chapter",
		mcp.WithDescription("Rename a chapter in the manuscript tree and in its file."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Chapter id")),
		mcp.WithString("title", mcp.Required(), mcp.Description("New title")),
	), s.renameChapter)

	s.mcp.AddTool(mcp.NewTool("search_manuscript",
		mcp.WithDescription("Search chapter bodies line by line. Returns line numbers and byte offsets per match."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Literal text to find")),
		mcp.WithBoolean("case_sensitive", mcp.Description("Match case (default false)")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of chapters (default 20)")),
	), s.searchManuscript)

	s.mcp.AddTool(mcp.NewTool("export_manuscript",
		mcp.WithDescription("Export the whole manuscript into the project's exports directory and return the file path."),
		mcp.WithString("format", mcp.Required(), mcp.Description("Target format"),
			mcp.Enum(formatNames()...)),
		mcp.WithString("path", mcp.Description("Output file path (defaults to exports/<title>.<ext>)")),
	), s.exportManuscript)

	s.mcp.AddTool(mcp.NewTool("import_chapter",
		mcp.WithDescription("Create a chapter from a Markdown or plain-text document at an http(s) URL or in a base64 data URI."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:text/markdown;base64,… URI")),
		mcp.WithString("title", mcp.Description("Chapter title (defaults to the file name)")),
	), s.importChapter)

	s.mcp.AddTool(mcp.NewTool("get_chapter_contract",
		mcp.WithDescription("Returns the Folio chapter format contract. "+
			"Call this before creating or updating chapters to ensure correct structure."),
	), s.getChapterContract)

	// Resource: chapter format contract.
	s.mcp.AddResource(
		mcp.NewResource(chapterFormatURI, "Chapter Format Contract",
			mcp.WithResourceDescription("Chapter file layout and the Markdown subset every export format renders."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readChapterFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func formatNames() []string {
	out := make([]string, len(export.Formats))
	for i, f := range export.Formats {
		out[i] = string(f)
	}
	return out
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// toolError turns a domain error into a tool-error result.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrChapterNotFound):
		return mcp.NewToolResultError("chapter not found")
	case errors.Is(err, apperr.ErrInvalidID):
		return mcp.NewToolResultError("invalid chapter id")
	case errors.Is(err, apperr.ErrConflict):
		return mcp.NewToolResultError("checksum mismatch: the chapter changed, read it again")
	default:
		return mcp.NewToolResultError(err.Error())
	}
}

func (s *Server) getProject(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Project(ctx))
}

func (s *Server) listChapters(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.svc.ListChapters(ctx)
	if err != nil {
		return toolError(err), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no chapters"), nil
	}
	return jsonResult(items)
}

func (s *Server) readChapter(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, err := s.svc.GetChapter(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(c)
}

func (s *Server) createChapter(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, err := s.svc.CreateChapter(ctx, title, req.GetString("parent_id", ""), req.GetString("content", ""))
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", c.ID)), nil
}

func (s *Server) updateChapter(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	args := req.GetArguments()
	var upd projectservice.ChapterUpdate
	if v, ok := args["content"].(string); ok {
		upd.Content = &v
	}
	if v, ok := args["status"].(string); ok {
		st := models.ParseStatus(v)
		upd.Status = &st
	}
	if v, ok := args["mood"].(string); ok {
		upd.Mood = &v
	}
	if v, ok := args["pov"].(string); ok {
		upd.POV = &v
	}

	c, err := s.svc.UpdateChapter(ctx, id, upd, req.GetString("checksum", ""))
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %s (checksum %s)", c.ID, c.Checksum)), nil
}

func (s *Server) renameChapter(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.svc.RenameChapter(ctx, id, title); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("renamed: %s", id)), nil
}

func (s *Server) searchManuscript(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", defaultSearchLimit)
	results, err := s.svc.Search(ctx, query, req.GetBool("case_sensitive", false), limit)
	if err != nil {
		return toolError(err), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no matches"), nil
	}
	return jsonResult(results)
}

func (s *Server) exportManuscript(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f, err := export.ParseFormat(name)
	if err != nil {
		return toolError(err), nil
	}
	out, err := s.svc.ExportFile(ctx, f, req.GetString("path", ""))
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("exported: %s", out)), nil
}

func (s *Server) getChapterContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ChapterFormatContract), nil
}

func (s *Server) readChapterFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      chapterFormatURI,
			MIMEType: "text/markdown",
			Text:     ChapterFormatContract,
		},
	}, nil
}
