package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tgarchive/mcp-telegram-archive/internal/messages"
	"github.com/tgarchive/mcp-telegram-archive/internal/peers"
)

// ChannelMessagesHandler handles the getChannelMessages tool
type ChannelMessagesHandler struct {
	auth    Authorizer
	index   Directory
	history History
}

// NewChannelMessagesHandler creates a new ChannelMessagesHandler
func NewChannelMessagesHandler(auth Authorizer, index Directory, history History) *ChannelMessagesHandler {
	return &ChannelMessagesHandler{auth: auth, index: index, history: history}
}

// Tool returns the MCP tool definition
func (h *ChannelMessagesHandler) Tool() mcp.Tool {
	return mcp.NewTool("getChannelMessages",
		mcp.WithDescription("Fetch recent messages from a channel, optionally filtered by a regular expression."),
		mcp.WithString("channelId",
			mcp.Required(),
			mcp.Description("Channel ID (numeric, -100-prefixed for channels) or @username"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of messages to fetch (default: 100)"),
		),
		mcp.WithString("filterPattern",
			mcp.Description("RE2 regular expression applied to message texts after fetching"),
		),
	)
}

// MessagesResult represents the getChannelMessages result
type MessagesResult struct {
	PeerTitle    string             `json:"peerTitle"`
	TotalFetched int                `json:"totalFetched"`
	Returned     int                `json:"returned"`
	Messages     []messages.Message `json:"messages"`
}

// Handle processes the getChannelMessages tool request
func (h *ChannelMessagesHandler) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := ensureAuthorized(ctx, h.auth); res != nil {
		return res, nil
	}

	ref, err := peers.Parse(request.GetArguments()["channelId"])
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("InvalidPeerId: %v", err)), nil
	}

	limit := mcp.ParseInt(request, "limit", 100)
	if limit <= 0 {
		limit = 100
	}

	var filter *regexp.Regexp
	if pattern := mcp.ParseString(request, "filterPattern", ""); pattern != "" {
		filter, err = regexp.Compile(pattern)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("InvalidArgument: bad filterPattern: %v", err)), nil
		}
	}

	if enriched, err := h.index.Resolve(ctx, ref); err == nil {
		ref = enriched
	}

	fetched, err := h.history.History(ctx, ref, messages.Options{Limit: limit})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get messages: %v", err)), nil
	}

	returned := fetched
	if filter != nil {
		returned = make([]messages.Message, 0, len(fetched))
		for _, m := range fetched {
			if filter.MatchString(m.Text) {
				returned = append(returned, m)
			}
		}
	}

	result := MessagesResult{
		PeerTitle:    ref.Title,
		TotalFetched: len(fetched),
		Returned:     len(returned),
		Messages:     returned,
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal messages: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
