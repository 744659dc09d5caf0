package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tgarchive/mcp-telegram-archive/internal/peers"
)

// ChannelsSearchHandler handles the searchChannels tool
type ChannelsSearchHandler struct {
	auth  Authorizer
	index Directory
}

// NewChannelsSearchHandler creates a new ChannelsSearchHandler
func NewChannelsSearchHandler(auth Authorizer, index Directory) *ChannelsSearchHandler {
	return &ChannelsSearchHandler{auth: auth, index: index}
}

// Tool returns the MCP tool definition
func (h *ChannelsSearchHandler) Tool() mcp.Tool {
	return mcp.NewTool("searchChannels",
		mcp.WithDescription("Search the dialog list by title or username (case-insensitive substring match)."),
		mcp.WithString("keywords",
			mcp.Required(),
			mcp.Description("Substring to match against channel titles and usernames"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results to return (default: 100)"),
		),
	)
}

// SearchResultsList represents the searchChannels result
type SearchResultsList struct {
	Query   string      `json:"query"`
	Results []peers.Ref `json:"results"`
	Count   int         `json:"count"`
}

// Handle processes the searchChannels tool request
func (h *ChannelsSearchHandler) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := ensureAuthorized(ctx, h.auth); res != nil {
		return res, nil
	}

	keywords := mcp.ParseString(request, "keywords", "")
	if keywords == "" {
		return mcp.NewToolResultError("InvalidArgument: keywords parameter is required"), nil
	}

	limit := mcp.ParseInt(request, "limit", 100)
	if limit <= 0 {
		limit = 100
	}

	results := h.index.Search(keywords, limit)
	data, err := json.MarshalIndent(SearchResultsList{Query: keywords, Results: results, Count: len(results)}, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
