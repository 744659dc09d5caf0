package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

const sessionHeader = "Mcp-Session-Id"

// JSON-RPC error codes of the transport layer.
const (
	codeSessionNotFound = -32001
	codeBadRequest      = -32000
	codeMethodNotFound  = -32601
)

// session is one MCP client connection. Notifications have nowhere to go
// over plain request/response HTTP, so the channel is drained until the
// session closes.
type session struct {
	id            string
	notifications chan mcp.JSONRPCNotification
	initialized   atomic.Bool
	done          chan struct{}
	closeOnce     sync.Once
}

func newSession() *session {
	s := &session{
		id:            uuid.NewString(),
		notifications: make(chan mcp.JSONRPCNotification, 64),
		done:          make(chan struct{}),
	}
	go func() {
		for {
			select {
			case <-s.done:
				return
			case <-s.notifications:
			}
		}
	}()
	return s
}

func (s *session) SessionID() string { return s.id }

func (s *session) NotificationChannel() chan<- mcp.JSONRPCNotification {
	return s.notifications
}

func (s *session) Initialize() { s.initialized.Store(true) }

func (s *session) Initialized() bool { return s.initialized.Load() }

func (s *session) close() { s.closeOnce.Do(func() { close(s.done) }) }

// Host serves MCP over HTTP: POST /mcp dispatches JSON-RPC messages into the
// MCP server, with sessions keyed by the Mcp-Session-Id header.
type Host struct {
	mcp *mcpserver.MCPServer
	log *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewHost creates an HTTP host around an MCP server.
func NewHost(mcp *mcpserver.MCPServer, log *zap.Logger) *Host {
	return &Host{
		mcp:      mcp,
		log:      log,
		sessions: make(map[string]*session),
	}
}

// Serve listens on addr until ctx is canceled, then drains in-flight
// requests and closes all sessions.
func (h *Host) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	h.log.Info("listening", zap.String("addr", addr))

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutCtx)
		h.closeAllSessions()
		return err
	case err := <-errCh:
		h.closeAllSessions()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (h *Host) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	switch r.URL.Path {
	case "/mcp":
		h.handleMCP(w, r)
	case "/health":
		h.handleHealth(w, r)
	default:
		writeJSONRPCError(w, http.StatusNotFound, codeMethodNotFound, "Not found")
	}
}

func (h *Host) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *Host) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodDelete:
		h.handleDelete(w, r)
	default:
		// No server-push stream; GET has nothing to offer.
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Host) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONRPCError(w, http.StatusBadRequest, codeBadRequest, "Bad Request: unreadable body")
		return
	}

	var (
		sess  *session
		fresh bool
	)
	if id := r.Header.Get(sessionHeader); id != "" {
		h.mu.RLock()
		sess = h.sessions[id]
		h.mu.RUnlock()
		if sess == nil {
			writeJSONRPCError(w, http.StatusNotFound, codeSessionNotFound, "Session not found")
			return
		}
	} else {
		// A session is only minted for the protocol's initialize request.
		var probe struct {
			Method string `json:"method"`
		}
		if err := json.Unmarshal(body, &probe); err != nil || probe.Method != "initialize" {
			writeJSONRPCError(w, http.StatusBadRequest, codeBadRequest, "Bad Request: No valid session ID provided")
			return
		}

		sess = newSession()
		if err := h.mcp.RegisterSession(r.Context(), sess); err != nil {
			sess.close()
			writeJSONRPCError(w, http.StatusInternalServerError, codeBadRequest, "Failed to create session: "+err.Error())
			return
		}
		h.mu.Lock()
		h.sessions[sess.id] = sess
		h.mu.Unlock()
		fresh = true
		h.log.Debug("session opened", zap.String("session_id", sess.id))
	}

	ctx := h.mcp.WithContext(r.Context(), sess)
	response := h.mcp.HandleMessage(ctx, body)

	w.Header().Set("Content-Type", "application/json")
	if fresh {
		w.Header().Set(sessionHeader, sess.id)
	}
	if response == nil {
		// Notifications produce no response body.
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error("writing response", zap.Error(err))
	}
}

func (h *Host) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(sessionHeader)
	if id == "" {
		writeJSONRPCError(w, http.StatusBadRequest, codeBadRequest, "Bad Request: No valid session ID provided")
		return
	}

	h.mu.Lock()
	sess := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()

	if sess == nil {
		writeJSONRPCError(w, http.StatusNotFound, codeSessionNotFound, "Session not found")
		return
	}
	h.mcp.UnregisterSession(r.Context(), id)
	sess.close()
	h.log.Debug("session closed", zap.String("session_id", id))
	w.WriteHeader(http.StatusOK)
}

func (h *Host) closeAllSessions() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sess := range h.sessions {
		h.mcp.UnregisterSession(context.Background(), id)
		sess.close()
		delete(h.sessions, id)
	}
}

func writeJSONRPCError(w http.ResponseWriter, status, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      nil,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
