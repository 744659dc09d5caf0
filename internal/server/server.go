// Package server wires the whole process together: Telegram client, dialog
// index, archive store, sync worker and the HTTP transport for MCP sessions.
package server

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/tgarchive/mcp-telegram-archive/internal/archive"
	"github.com/tgarchive/mcp-telegram-archive/internal/dialogs"
	"github.com/tgarchive/mcp-telegram-archive/internal/messages"
	"github.com/tgarchive/mcp-telegram-archive/internal/syncer"
	"github.com/tgarchive/mcp-telegram-archive/internal/tgclient"
	"github.com/tgarchive/mcp-telegram-archive/internal/tools"
)

const serviceName = "mcp-telegram-archive"

// Config holds everything the server needs to run.
type Config struct {
	Telegram tgclient.Config
	Host     string
	Port     int
	DataDir  string
	Version  string
}

// Server represents the MCP server for the Telegram archive.
type Server struct {
	cfg Config
	log *zap.Logger
}

// New creates a new server from the given configuration.
func New(cfg Config, log *zap.Logger) *Server {
	return &Server{cfg: cfg, log: log}
}

// Run connects to Telegram and serves MCP over HTTP until ctx is canceled.
// Shutdown order: HTTP listener first, then the sync worker (awaiting its
// current job), then the archive database and the Telegram connection.
func (s *Server) Run(ctx context.Context) error {
	client, waiter := tgclient.CreateClient(s.cfg.Telegram, s.log)

	// waiter.Run wraps client.Run to absorb short FLOOD_WAIT errors on any
	// MTProto call.
	err := waiter.Run(ctx, func(ctx context.Context) error {
		return client.Run(ctx, func(ctx context.Context) error {
			gateway := tgclient.NewGateway(client, s.cfg.Telegram, s.log.Named("gateway"))
			if err := gateway.Authenticate(ctx); err != nil {
				return err
			}

			index := dialogs.New(gateway, s.log.Named("dialogs"))
			if err := index.Load(ctx); err != nil {
				return fmt.Errorf("loading dialog index: %w", err)
			}
			s.log.Info("dialog index loaded", zap.Int("entries", index.Len()))

			store, err := archive.Open(filepath.Join(s.cfg.DataDir, "messages.db"))
			if err != nil {
				return err
			}
			defer store.Close()

			provider := messages.NewProvider(gateway.API(), gateway)
			worker := syncer.New(store, provider, index, syncer.Config{}, s.log.Named("syncer"))
			// Pick up jobs left over from a previous run.
			worker.Resume()

			mcpServer := mcpserver.NewMCPServer(
				serviceName,
				s.cfg.Version,
				mcpserver.WithToolCapabilities(true),
			)
			tools.RegisterTools(mcpServer, []tools.Handler{
				tools.NewChannelsListHandler(gateway, index),
				tools.NewChannelsSearchHandler(gateway, index),
				tools.NewChannelMessagesHandler(gateway, index, provider),
				tools.NewSyncScheduleHandler(gateway, index, store, worker),
				tools.NewSyncJobsHandler(gateway, store),
				tools.NewArchiveSearchHandler(gateway, store),
			})

			host := NewHost(mcpServer, s.log.Named("http"))
			addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
			serveErr := host.Serve(ctx, addr)

			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := worker.Shutdown(stopCtx); err != nil {
				s.log.Warn("sync worker did not stop cleanly", zap.Error(err))
			}
			return serveErr
		})
	})
	if err != nil {
		return fmt.Errorf("running server: %w", err)
	}
	return nil
}
