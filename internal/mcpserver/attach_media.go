package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/dbfolder/internal/media"
	"github.com/starford/dbfolder/internal/state"
)

func (s *Server) attachMedia(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dbPath, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.views.View(ctx, dbPath); err != nil {
		return toolError(err)
	}

	data, ext, err := media.Fetch(ctx, rawURL)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filename := req.GetString("filename", "")
	if filename == "" {
		filename = media.FilenameFromURL(rawURL, ext)
	}
	asset, err := media.Save(s.views.Deps().Store, dbPath, filename, data)
	if err != nil {
		return toolError(err)
	}

	row, key := req.GetString("row", ""), req.GetString("key", "")
	if row != "" && key != "" {
		a, err := state.NewAction(state.ActionUpdateCell, map[string]any{"path": row, "key": key, "value": asset.Embed})
		if err != nil {
			return nil, err
		}
		if err := s.views.Dispatch(ctx, dbPath, state.DomainData, a); err != nil {
			return toolError(err)
		}
	}
	return jsonResult(asset)
}
