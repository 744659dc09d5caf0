package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tgarchive/mcp-telegram-archive/internal/peers"
)

// ChannelsListHandler handles the listChannels tool
type ChannelsListHandler struct {
	auth  Authorizer
	index Directory
}

// NewChannelsListHandler creates a new ChannelsListHandler
func NewChannelsListHandler(auth Authorizer, index Directory) *ChannelsListHandler {
	return &ChannelsListHandler{auth: auth, index: index}
}

// Tool returns the MCP tool definition
func (h *ChannelsListHandler) Tool() mcp.Tool {
	return mcp.NewTool("listChannels",
		mcp.WithDescription("List the channels, groups and users from the account's dialog list."),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of entries to return (default: 50)"),
		),
	)
}

// ChannelsList represents the listChannels result
type ChannelsList struct {
	Channels []peers.Ref `json:"channels"`
	Count    int         `json:"count"`
}

// Handle processes the listChannels tool request
func (h *ChannelsListHandler) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := ensureAuthorized(ctx, h.auth); res != nil {
		return res, nil
	}

	limit := mcp.ParseInt(request, "limit", 50)
	if limit <= 0 {
		limit = 50
	}

	channels := h.index.List(limit)
	data, err := json.MarshalIndent(ChannelsList{Channels: channels, Count: len(channels)}, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal channels: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
