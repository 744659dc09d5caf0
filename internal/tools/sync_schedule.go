package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tgarchive/mcp-telegram-archive/internal/archive"
	"github.com/tgarchive/mcp-telegram-archive/internal/peers"
)

// Depth bounds for scheduleMessageSync.
const (
	minSyncDepth = 1
	maxSyncDepth = 50000
)

// SyncScheduleHandler handles the scheduleMessageSync tool
type SyncScheduleHandler struct {
	auth   Authorizer
	index  Directory
	store  *archive.Store
	worker Scheduler
}

// NewSyncScheduleHandler creates a new SyncScheduleHandler
func NewSyncScheduleHandler(auth Authorizer, index Directory, store *archive.Store, worker Scheduler) *SyncScheduleHandler {
	return &SyncScheduleHandler{auth: auth, index: index, store: store, worker: worker}
}

// Tool returns the MCP tool definition
func (h *SyncScheduleHandler) Tool() mcp.Tool {
	return mcp.NewTool("scheduleMessageSync",
		mcp.WithDescription("Schedule background archiving of a channel's messages into the local database."),
		mcp.WithString("channelId",
			mcp.Required(),
			mcp.Description("Channel ID (numeric, -100-prefixed for channels) or @username"),
		),
		mcp.WithNumber("depth",
			mcp.Description("How many messages to keep archived, 1-50000 (default: 1000)"),
		),
	)
}

// Handle processes the scheduleMessageSync tool request
func (h *SyncScheduleHandler) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := ensureAuthorized(ctx, h.auth); res != nil {
		return res, nil
	}

	ref, err := peers.Parse(request.GetArguments()["channelId"])
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("InvalidPeerId: %v", err)), nil
	}

	depth := mcp.ParseInt(request, "depth", archive.DefaultTarget)
	if depth < minSyncDepth || depth > maxSyncDepth {
		return mcp.NewToolResultError(fmt.Sprintf("InvalidArgument: depth must be between %d and %d", minSyncDepth, maxSyncDepth)), nil
	}

	if enriched, err := h.index.Resolve(ctx, ref); err == nil {
		ref = enriched
	}

	job, err := h.store.UpsertJob(ref.Key(), ref.Title, string(ref.Kind), int64(depth))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to schedule sync: %v", err)), nil
	}
	h.worker.Resume()

	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal job: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
