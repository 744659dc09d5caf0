package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tgarchive/mcp-telegram-archive/internal/archive"
	"github.com/tgarchive/mcp-telegram-archive/internal/peers"
)

// ArchiveSearchHandler handles the searchArchivedMessages tool
type ArchiveSearchHandler struct {
	auth  Authorizer
	store *archive.Store
}

// NewArchiveSearchHandler creates a new ArchiveSearchHandler
func NewArchiveSearchHandler(auth Authorizer, store *archive.Store) *ArchiveSearchHandler {
	return &ArchiveSearchHandler{auth: auth, store: store}
}

// Tool returns the MCP tool definition
func (h *ArchiveSearchHandler) Tool() mcp.Tool {
	return mcp.NewTool("searchArchivedMessages",
		mcp.WithDescription("Search already-archived messages of a channel with a regular expression. Only works for channels with a sync job."),
		mcp.WithString("channelId",
			mcp.Required(),
			mcp.Description("Channel ID (numeric, -100-prefixed for channels) or @username"),
		),
		mcp.WithString("pattern",
			mcp.Required(),
			mcp.Description("RE2 regular expression matched against message texts"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of matches to return (default: 100)"),
		),
		mcp.WithBoolean("caseInsensitive",
			mcp.Description("Match case-insensitively (default: false)"),
		),
	)
}

// ArchiveSearchResult represents the searchArchivedMessages result
type ArchiveSearchResult struct {
	ChannelID string                    `json:"channelId"`
	Stats     archive.Stats             `json:"stats"`
	Returned  int                       `json:"returned"`
	Matches   []archive.ArchivedMessage `json:"matches"`
}

// Handle processes the searchArchivedMessages tool request
func (h *ArchiveSearchHandler) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := ensureAuthorized(ctx, h.auth); res != nil {
		return res, nil
	}

	ref, err := peers.Parse(request.GetArguments()["channelId"])
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("InvalidPeerId: %v", err)), nil
	}

	pattern := mcp.ParseString(request, "pattern", "")
	if pattern == "" {
		return mcp.NewToolResultError("InvalidArgument: pattern parameter is required"), nil
	}

	limit := mcp.ParseInt(request, "limit", 100)
	caseInsensitive := mcp.ParseBoolean(request, "caseInsensitive", false)

	matches, err := h.store.SearchMessages(ref.Key(), pattern, limit, caseInsensitive)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("InvalidArgument: %v", err)), nil
	}
	stats, err := h.store.MessageStats(ref.Key())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to collect stats: %v", err)), nil
	}

	result := ArchiveSearchResult{
		ChannelID: ref.Key(),
		Stats:     stats,
		Returned:  len(matches),
		Matches:   matches,
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal matches: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
