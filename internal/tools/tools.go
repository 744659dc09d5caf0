// Package tools implements the MCP tool surface: channel discovery over the
// dialog index, on-demand history reads and the archive job tools.
package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tgarchive/mcp-telegram-archive/internal/messages"
	"github.com/tgarchive/mcp-telegram-archive/internal/peers"
)

// Handler defines the interface for MCP tool handlers
type Handler interface {
	Tool() mcp.Tool
	Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// RegisterTools registers all handlers with the MCP server
func RegisterTools(s *server.MCPServer, handlers []Handler) {
	for _, h := range handlers {
		s.AddTool(h.Tool(), h.Handle)
	}
}

// Authorizer reports whether the Telegram session is usable. The gateway
// implements it.
type Authorizer interface {
	IsAuthorized(ctx context.Context) (bool, error)
}

// Directory is the dialog-index view the tools need.
type Directory interface {
	List(limit int) []peers.Ref
	Search(keyword string, limit int) []peers.Ref
	Resolve(ctx context.Context, ref peers.Ref) (peers.Ref, error)
}

// History fetches live channel history; the messages provider implements it.
type History interface {
	History(ctx context.Context, ref peers.Ref, opts messages.Options) ([]messages.Message, error)
}

// Scheduler triggers the sync worker; the syncer service implements it.
type Scheduler interface {
	Resume()
}

// ensureAuthorized gates every tool call on a usable Telegram session. A
// non-nil result is the tool error to return.
func ensureAuthorized(ctx context.Context, auth Authorizer) *mcp.CallToolResult {
	ok, err := auth.IsAuthorized(ctx)
	if err != nil {
		return mcp.NewToolResultError("Unauthorized: " + err.Error())
	}
	if !ok {
		return mcp.NewToolResultError("Unauthorized: Telegram session is not signed in; run the login command first")
	}
	return nil
}
