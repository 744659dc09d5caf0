package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tgarchive/mcp-telegram-archive/internal/archive"
)

// SyncJobsHandler handles the listMessageSyncJobs tool
type SyncJobsHandler struct {
	auth  Authorizer
	store *archive.Store
}

// NewSyncJobsHandler creates a new SyncJobsHandler
func NewSyncJobsHandler(auth Authorizer, store *archive.Store) *SyncJobsHandler {
	return &SyncJobsHandler{auth: auth, store: store}
}

// Tool returns the MCP tool definition
func (h *SyncJobsHandler) Tool() mcp.Tool {
	return mcp.NewTool("listMessageSyncJobs",
		mcp.WithDescription("List all archiving jobs with their status and progress."),
	)
}

// JobsList represents the listMessageSyncJobs result
type JobsList struct {
	Jobs  []*archive.Job `json:"jobs"`
	Count int            `json:"count"`
}

// Handle processes the listMessageSyncJobs tool request
func (h *SyncJobsHandler) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := ensureAuthorized(ctx, h.auth); res != nil {
		return res, nil
	}

	jobs, err := h.store.ListJobs()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list jobs: %v", err)), nil
	}

	data, err := json.MarshalIndent(JobsList{Jobs: jobs, Count: len(jobs)}, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal jobs: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
