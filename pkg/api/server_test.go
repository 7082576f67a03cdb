package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrlesur/live-memory/pkg/auth"
	"github.com/chrlesur/live-memory/pkg/backup"
	"github.com/chrlesur/live-memory/pkg/config"
	"github.com/chrlesur/live-memory/pkg/consolidator"
	"github.com/chrlesur/live-memory/pkg/events"
	"github.com/chrlesur/live-memory/pkg/gc"
	"github.com/chrlesur/live-memory/pkg/graph"
	"github.com/chrlesur/live-memory/pkg/llm"
	"github.com/chrlesur/live-memory/pkg/locks"
	"github.com/chrlesur/live-memory/pkg/notes"
	"github.com/chrlesur/live-memory/pkg/space"
	"github.com/chrlesur/live-memory/pkg/storage"
	"github.com/chrlesur/live-memory/pkg/tools"
	"github.com/chrlesur/live-memory/pkg/types"
	"github.com/chrlesur/live-memory/pkg/version"
)

const testBootstrapKey = "bootstrap-key-for-tests"

func newTestServer(t *testing.T) (*Server, *tools.Services) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	lockRegistry := locks.NewRegistry()
	cfg := &config.Settings{
		ServerName:            "live-memory",
		AdminBootstrapKey:     testBootstrapKey,
		ConsolidationMaxNotes: 50,
		GCMaxAgeDays:          7,
		BackupRetention:       5,
		LLMMaxTokens:          100000,
		LLMTemperature:        0.3,
	}
	client := llm.NewClient(cfg)
	noteSvc := notes.NewService(store, broker)
	cons := consolidator.NewService(store, client, lockRegistry, broker, cfg)
	svcs := &tools.Services{
		Config:       cfg,
		Store:        store,
		LLM:          client,
		Tokens:       auth.NewService(store, lockRegistry, broker, testBootstrapKey),
		Spaces:       space.NewService(store, broker),
		Notes:        noteSvc,
		Consolidator: cons,
		GC:           gc.NewService(store, noteSvc, cons, lockRegistry, broker),
		Backups:      backup.NewService(store, broker, cfg),
		Graph:        graph.NewService(store, broker),
		StartedAt:    time.Now(),
	}
	return NewServer(svcs, tools.NewRegistry(svcs), broker), svcs
}

type sseEvent struct {
	name string
	data string
}

// readSSE parses event/data frames off the stream until it closes.
func readSSE(body io.Reader, out chan<- sseEvent) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	name := "message"
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if data.Len() > 0 {
				out <- sseEvent{name: name, data: strings.TrimSuffix(data.String(), "\n")}
			}
			name = "message"
			data.Reset()
			continue
		}
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data.WriteString(strings.TrimPrefix(line, "data: "))
			data.WriteByte('\n')
		}
	}
}

// testRPCResponse keeps the result raw so each test decodes its own shape.
type testRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// mcpSession drives one SSE stream and its message endpoint the way a real
// MCP client would.
type mcpSession struct {
	t      *testing.T
	token  string
	msgURL string
	events chan sseEvent
}

func openSession(t *testing.T, baseURL, token string) *mcpSession {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, baseURL+"/sse", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	s := &mcpSession{t: t, token: token, events: make(chan sseEvent, 32)}
	go readSSE(resp.Body, s.events)

	endpoint := s.waitEvent("endpoint")
	require.True(t, strings.HasPrefix(endpoint.data, "/messages?session_id="), "endpoint = %q", endpoint.data)
	s.msgURL = baseURL + endpoint.data
	return s
}

func (s *mcpSession) waitEvent(name string) sseEvent {
	s.t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case evt := <-s.events:
			if evt.name == name {
				return evt
			}
		case <-deadline:
			s.t.Fatalf("no %s event within 5s", name)
		}
	}
}

// post sends one raw body to the session endpoint.
func (s *mcpSession) post(body string) (int, []byte) {
	s.t.Helper()
	req, err := http.NewRequest(http.MethodPost, s.msgURL, strings.NewReader(body))
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)
	return resp.StatusCode, data
}

// rpc posts one request and returns the response routed over the stream.
func (s *mcpSession) rpc(id int, method string, params any) testRPCResponse {
	s.t.Helper()
	req := map[string]any{"jsonrpc": "2.0", "id": id, "method": method}
	if params != nil {
		req["params"] = params
	}
	body, err := json.Marshal(req)
	require.NoError(s.t, err)

	status, _ := s.post(string(body))
	require.Equal(s.t, http.StatusAccepted, status)

	for {
		evt := s.waitEvent("message")
		var resp testRPCResponse
		require.NoError(s.t, json.Unmarshal([]byte(evt.data), &resp))
		if len(resp.ID) == 0 {
			// Notification pushed between request and response.
			continue
		}
		var got int
		require.NoError(s.t, json.Unmarshal(resp.ID, &got))
		if got == id {
			return resp
		}
	}
}

// callTool runs one tool over the wire and decodes the payload carried in
// the first content block.
func (s *mcpSession) callTool(id int, name string, args map[string]any) map[string]any {
	s.t.Helper()
	resp := s.rpc(id, "tools/call", map[string]any{"name": name, "arguments": args})
	require.Nil(s.t, resp.Error)

	var wrapped struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	require.NoError(s.t, json.Unmarshal(resp.Result, &wrapped))
	require.Len(s.t, wrapped.Content, 1)
	require.Equal(s.t, "text", wrapped.Content[0].Type)
	require.False(s.t, wrapped.IsError)

	var payload map[string]any
	require.NoError(s.t, json.Unmarshal([]byte(wrapped.Content[0].Text), &payload))
	return payload
}

func TestServerMCPRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)

	sess := openSession(t, ts.URL, testBootstrapKey)

	resp := sess.rpc(1, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "test-client", "version": "0.0.1"},
	})
	require.Nil(t, resp.Error)
	var init struct {
		ProtocolVersion string `json:"protocolVersion"`
		ServerInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
		Capabilities map[string]json.RawMessage `json:"capabilities"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &init))
	assert.Equal(t, protocolVersion, init.ProtocolVersion)
	assert.Equal(t, "live-memory", init.ServerInfo.Name)
	assert.Equal(t, version.Version, init.ServerInfo.Version)
	assert.Contains(t, init.Capabilities, "tools")

	// The initialized notification is acknowledged without a reply.
	status, _ := sess.post(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	assert.Equal(t, http.StatusAccepted, status)

	resp = sess.rpc(2, "ping", nil)
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{}`, string(resp.Result))

	resp = sess.rpc(3, "tools/list", nil)
	require.Nil(t, resp.Error)
	var listing struct {
		Tools []struct {
			Name        string         `json:"name"`
			Description string         `json:"description"`
			InputSchema map[string]any `json:"inputSchema"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &listing))
	require.Len(t, listing.Tools, 30)
	assert.Equal(t, "system_health", listing.Tools[0].Name)
	assert.NotEmpty(t, listing.Tools[0].Description)
	assert.Equal(t, "object", listing.Tools[0].InputSchema["type"])

	created := sess.callTool(4, "space_create", map[string]any{
		"space_id": "projet-alpha",
		"rules":    "# Règles\n\nTenir journal.md à jour.",
	})
	assert.Equal(t, "created", created["status"])
	// The bootstrap key authenticates as the synthetic admin.
	assert.Equal(t, "admin", created["owner"])

	noted := sess.callTool(5, "live_note", map[string]any{
		"space_id": "projet-alpha",
		"content":  "Premier déploiement effectué sur fr1.",
	})
	assert.Equal(t, "created", noted["status"])
	assert.Equal(t, "admin", noted["agent"])

	read := sess.callTool(6, "live_read", map[string]any{"space_id": "projet-alpha"})
	assert.Equal(t, "ok", read["status"])
	assert.Equal(t, float64(1), read["count"])
}

func TestServerToolCallUsesPostIdentity(t *testing.T) {
	srv, svcs := newTestServer(t)
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)

	clearToken, _, err := svcs.Tokens.CreateToken(context.Background(), "agent-viewer",
		[]types.Permission{types.PermissionRead}, nil, 0)
	require.NoError(t, err)

	sess := openSession(t, ts.URL, clearToken)
	payload := sess.callTool(1, "space_create", map[string]any{
		"space_id": "alpha",
		"rules":    "# Règles",
	})
	assert.Equal(t, "forbidden", payload["status"])
	assert.Contains(t, payload["message"], "write permission required")
}

func TestServerUnknownMethod(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)

	sess := openSession(t, ts.URL, testBootstrapKey)
	resp := sess.rpc(1, "resources/list", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeMethodNotFound, resp.Error.Code)
	assert.Equal(t, "method not found: resources/list", resp.Error.Message)
}

func TestServerToolCallWithoutName(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)

	sess := openSession(t, ts.URL, testBootstrapKey)
	resp := sess.rpc(1, "tools/call", map[string]any{"arguments": map[string]any{}})
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestServerUnknownSession(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)

	body := `{"jsonrpc":"2.0","id":1,"method":"ping"}`
	for _, target := range []string{"/messages", "/messages?session_id=ghost"} {
		req, err := http.NewRequest(http.MethodPost, ts.URL+target, strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+testBootstrapKey)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		var reply map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
		resp.Body.Close()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode, "target %s", target)
		assert.Equal(t, "unknown session", reply["error"])
	}
}

func TestServerParseError(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)

	sess := openSession(t, ts.URL, testBootstrapKey)
	status, body := sess.post(`{"jsonrpc":`)
	require.Equal(t, http.StatusBadRequest, status)

	var resp testRPCResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeParseError, resp.Error.Code)
}

func TestServerMethodRouting(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/sse"},
		{http.MethodGet, "/messages"},
		{http.MethodDelete, "/sse"},
	}
	for _, tt := range tests {
		req, err := http.NewRequest(tt.method, ts.URL+tt.path, nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+testBootstrapKey)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, "%s %s", tt.method, tt.path)
	}
}

func TestServerEventNotifications(t *testing.T) {
	srv, svcs := newTestServer(t)
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.forwardEvents(ctx)
	require.Eventually(t, func() bool { return srv.broker.SubscriberCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	scopedClear, _, err := svcs.Tokens.CreateToken(context.Background(), "agent-beta",
		[]types.Permission{types.PermissionRead, types.PermissionWrite}, []string{"beta"}, 0)
	require.NoError(t, err)

	universal := openSession(t, ts.URL, testBootstrapKey)
	scoped := openSession(t, ts.URL, scopedClear)

	srv.broker.Publish(&events.Event{
		Type:    events.NoteWritten,
		SpaceID: "alpha",
		Agent:   "cline",
		Message: "note enregistrée",
	})

	evt := universal.waitEvent("message")
	var notif struct {
		Method string `json:"method"`
		Params struct {
			Level  string `json:"level"`
			Logger string `json:"logger"`
			Data   struct {
				SpaceID string `json:"space_id"`
				Agent   string `json:"agent"`
				Message string `json:"message"`
			} `json:"data"`
		} `json:"params"`
	}
	require.NoError(t, json.Unmarshal([]byte(evt.data), &notif))
	assert.Equal(t, "notifications/message", notif.Method)
	assert.Equal(t, "info", notif.Params.Level)
	assert.Equal(t, "note.written", notif.Params.Logger)
	assert.Equal(t, "alpha", notif.Params.Data.SpaceID)
	assert.Equal(t, "cline", notif.Params.Data.Agent)

	// The session scoped to beta never sees an alpha event.
	select {
	case evt := <-scoped.events:
		t.Fatalf("scoped session received %s: %s", evt.name, evt.data)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestServerShutdownClosesSessions(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)

	openSession(t, ts.URL, testBootstrapKey)
	require.Equal(t, 1, srv.hub.count())

	require.NoError(t, srv.Shutdown(context.Background()))
	assert.Equal(t, 0, srv.hub.count())
}

func TestSessionBufferOverflow(t *testing.T) {
	hub := newSessionHub()
	sess := hub.add(nil)
	defer hub.remove(sess.id)

	for i := 0; i < cap(sess.out); i++ {
		require.True(t, sess.trySend([]byte("x")))
	}
	// Notifications drop once the buffer is full.
	assert.False(t, sess.trySend([]byte("overflow")))
}
