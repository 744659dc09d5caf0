package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/tgarchive/mcp-telegram-archive/internal/archive"
	"github.com/tgarchive/mcp-telegram-archive/internal/peers"
	"github.com/tgarchive/mcp-telegram-archive/internal/tools"
)

type allowAll struct{}

func (allowAll) IsAuthorized(context.Context) (bool, error) { return true, nil }

type staticDirectory struct{ refs []peers.Ref }

func (d staticDirectory) List(limit int) []peers.Ref {
	if limit > len(d.refs) {
		limit = len(d.refs)
	}
	return d.refs[:limit]
}

func (d staticDirectory) Search(keyword string, limit int) []peers.Ref { return nil }

func (d staticDirectory) Resolve(_ context.Context, ref peers.Ref) (peers.Ref, error) {
	for _, r := range d.refs {
		if r.ID == ref.ID {
			return r, nil
		}
	}
	return ref, nil
}

type noopScheduler struct{}

func (noopScheduler) Resume() {}

func testHost(t *testing.T) *Host {
	t.Helper()
	store, err := archive.Open(filepath.Join(t.TempDir(), "messages.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	dir := staticDirectory{refs: []peers.Ref{
		{ID: -1001, Kind: peers.KindChannel, Title: "Alpha"},
	}}
	mcpServer := mcpserver.NewMCPServer("test", "0.0.1", mcpserver.WithToolCapabilities(true))
	tools.RegisterTools(mcpServer, []tools.Handler{
		tools.NewSyncScheduleHandler(allowAll{}, dir, store, noopScheduler{}),
		tools.NewSyncJobsHandler(allowAll{}, store),
	})
	return NewHost(mcpServer, zap.NewNop())
}

func post(t *testing.T, host *Host, sessionID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}
	rec := httptest.NewRecorder()
	host.ServeHTTP(rec, req)
	return rec
}

const initializeBody = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"test-client","version":"1.0"},"capabilities":{}}}`

func initSession(t *testing.T, host *Host) string {
	t.Helper()
	rec := post(t, host, "", initializeBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("initialize returned %d: %s", rec.Code, rec.Body.String())
	}
	id := rec.Header().Get(sessionHeader)
	if id == "" {
		t.Fatal("initialize response carries no session id header")
	}
	return id
}

func errorCode(t *testing.T, body string) int {
	t.Helper()
	var resp struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("unmarshaling %q: %v", body, err)
	}
	return resp.Error.Code
}

func TestPostWithoutSessionRequiresInitialize(t *testing.T) {
	host := testHost(t)

	rec := post(t, host, "", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if code := errorCode(t, rec.Body.String()); code != codeBadRequest {
		t.Errorf("error code = %d, want %d", code, codeBadRequest)
	}
	if !strings.Contains(rec.Body.String(), "No valid session ID provided") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestPostWithUnknownSession(t *testing.T) {
	host := testHost(t)

	rec := post(t, host, "b8d7e0a3-missing", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if code := errorCode(t, rec.Body.String()); code != codeSessionNotFound {
		t.Errorf("error code = %d, want %d", code, codeSessionNotFound)
	}
	if !strings.Contains(rec.Body.String(), "Session not found") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestInitializeMintsSession(t *testing.T) {
	host := testHost(t)

	id := initSession(t, host)

	// The minted session is usable for follow-up calls.
	rec := post(t, host, id, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("tools/list returned %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "scheduleMessageSync") {
		t.Errorf("tool listing missing scheduleMessageSync: %s", rec.Body.String())
	}

	// Notifications get no response body.
	rec = post(t, host, id, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	if rec.Code != http.StatusAccepted {
		t.Errorf("notification status = %d, want 202", rec.Code)
	}
}

func TestSessionsShareState(t *testing.T) {
	host := testHost(t)

	// Session A schedules a job.
	a := initSession(t, host)
	rec := post(t, host, a, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"scheduleMessageSync","arguments":{"channelId":"-1001","depth":500}}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("scheduleMessageSync returned %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "pending") {
		t.Fatalf("schedule result: %s", rec.Body.String())
	}

	// Session B sees it immediately.
	b := initSession(t, host)
	if a == b {
		t.Fatal("sessions share an id")
	}
	rec = post(t, host, b, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"listMessageSyncJobs","arguments":{}}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("listMessageSyncJobs returned %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "-1001") || !strings.Contains(rec.Body.String(), "Alpha") {
		t.Errorf("job scheduled by session A not visible to session B: %s", rec.Body.String())
	}
}

func TestDeleteClosesSession(t *testing.T) {
	host := testHost(t)
	id := initSession(t, host)

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	req.Header.Set(sessionHeader, id)
	rec := httptest.NewRecorder()
	host.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", rec.Code)
	}

	rec2 := post(t, host, id, `{"jsonrpc":"2.0","id":3,"method":"tools/list"}`)
	if rec2.Code != http.StatusNotFound || errorCode(t, rec2.Body.String()) != codeSessionNotFound {
		t.Errorf("closed session still accepted: %d %s", rec2.Code, rec2.Body.String())
	}
}

func TestTransportEndpoints(t *testing.T) {
	host := testHost(t)

	// OPTIONS answers CORS preflights with 204 on any path.
	req := httptest.NewRequest(http.MethodOptions, "/mcp", nil)
	rec := httptest.NewRecorder()
	host.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("OPTIONS status = %d, want 204", rec.Code)
	}

	// No SSE stream: GET /mcp is not allowed.
	req = httptest.NewRequest(http.MethodGet, "/mcp", nil)
	rec = httptest.NewRecorder()
	host.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /mcp status = %d, want 405", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	host.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("health = %d %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec = httptest.NewRecorder()
	host.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound || errorCode(t, rec.Body.String()) != codeMethodNotFound {
		t.Errorf("unknown path = %d %s", rec.Code, rec.Body.String())
	}
}
