// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes dbfolder tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/dbfolder/internal/apperr"
	"github.com/starford/dbfolder/internal/noteservice"
	"github.com/starford/dbfolder/internal/state"
	"github.com/starford/dbfolder/internal/view"
)

// FormatURI is the resource URI of the database format contract.
const FormatURI = "dbfolder://database-format"

// Server wraps the MCP server with dbfolder tools.
type Server struct {
	mcp   *server.MCPServer
	views *view.Manager
	svc   *noteservice.Service
}

// New creates a new MCP server with all dbfolder tools registered.
func New(views *view.Manager, svc *noteservice.Service) *Server {
	s := &Server{views: views, svc: svc}

	s.mcp = server.NewMCPServer(
		"dbfolder",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_databases",
		mcp.WithDescription("List every database note in the vault with its name and column count."),
	), s.listDatabases)

	s.mcp.AddTool(mcp.NewTool("read_table",
		mcp.WithDescription("Render a database as a table: visible columns and rows with filters, "+
			"sorting, formulas and rollups applied."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the database note (e.g. books/books.md)")),
	), s.readTable)

	s.mcp.AddTool(mcp.NewTool("dispatch_action",
		mcp.WithDescription("Apply one action to a database and return the updated table. "+
			"Read the contract first via the get_database_contract tool or the "+FormatURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the database note")),
		mcp.WithString("domain", mcp.Required(), mcp.Description("Action domain"),
			mcp.Enum(state.Domains()...)),
		mcp.WithString("type", mcp.Required(), mcp.Description("Action type (e.g. add_row, update_cell, add_column)")),
		mcp.WithObject("payload", mcp.Description("Action payload")),
	), s.dispatchAction)

	s.mcp.AddTool(mcp.NewTool("attach_media",
		mcp.WithDescription("Download an image or PDF (http(s) URL or data URI) into the database's "+
			"attachments folder. With row and key set, the embed is written into that cell."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the database note")),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data URI of the file")),
		mcp.WithString("filename", mcp.Description("File name to store under (derived from the URL when empty)")),
		mcp.WithString("row", mcp.Description("Row note path whose cell receives the embed")),
		mcp.WithString("key", mcp.Description("Column key of the cell")),
	), s.attachMedia)

	s.mcp.AddTool(mcp.NewTool("get_database_contract",
		mcp.WithDescription("Returns the dbfolder database note format and action reference. "+
			"Call this before dispatching actions."),
	), s.getDatabaseContract)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through notes content and titles."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full content of a Markdown note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. folder/note.md)")),
	), s.readNote)

	// Resource: database format contract.
	s.mcp.AddResource(
		mcp.NewResource(FormatURI, "Database Format Contract",
			mcp.WithResourceDescription("Format of database notes and the actions that edit them."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
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

// toolError turns err into a tool error result. Unexpected errors are
// returned as protocol errors.
func toolError(err error) (*mcp.CallToolResult, error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound),
		errors.Is(err, apperr.ErrNoDatabaseBlock),
		errors.Is(err, apperr.ErrInvalidInput),
		errors.Is(err, apperr.ErrUnknownAction),
		errors.Is(err, apperr.ErrAlreadyExists),
		errors.Is(err, apperr.ErrConflict):
		return mcp.NewToolResultError(err.Error()), nil
	default:
		return nil, err
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcpserver: encode result: %w", err)
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listDatabases(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.svc.ListDatabases(ctx)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(items)
}

func (s *Server) readTable(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	t, err := s.views.Table(ctx, p)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(t)
}

func (s *Server) dispatchAction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	domain, err := req.RequireString("domain")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	actionType, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	a, err := state.NewAction(actionType, req.GetArguments()["payload"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.views.Dispatch(ctx, p, domain, a); err != nil {
		return toolError(err)
	}
	t, err := s.views.Table(ctx, p)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(t)
}

func (s *Server) getDatabaseContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(DatabaseFormatContract), nil
}

func (s *Server) readFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      FormatURI,
			MIMEType: "text/markdown",
			Text:     DatabaseFormatContract,
		},
	}, nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(results)
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.GetNote(ctx, p)
	if err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(note.Content), nil
}
