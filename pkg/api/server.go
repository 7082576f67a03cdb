package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/chrlesur/live-memory/pkg/auth"
	"github.com/chrlesur/live-memory/pkg/config"
	"github.com/chrlesur/live-memory/pkg/events"
	"github.com/chrlesur/live-memory/pkg/log"
	"github.com/chrlesur/live-memory/pkg/metrics"
	"github.com/chrlesur/live-memory/pkg/tools"
	"github.com/chrlesur/live-memory/pkg/version"
)

const (
	// protocolVersion is the MCP revision this server speaks.
	protocolVersion = "2024-11-05"

	// pingInterval paces SSE keep-alive comments so idle streams survive
	// reverse proxies.
	pingInterval = 15 * time.Second

	// maxMessageSize caps one POSTed JSON-RPC request.
	maxMessageSize = 1 << 20
)

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Server is the HTTP front of the service. It speaks MCP over SSE: clients
// open a stream on /sse, receive a per-session message endpoint, and POST
// JSON-RPC requests there; responses and event notifications travel back
// on the stream. Health, readiness and prometheus endpoints ride on the
// same listener.
type Server struct {
	cfg      *config.Settings
	services *tools.Services
	registry *tools.Registry
	tokens   *auth.Service
	broker   *events.Broker
	hub      *sessionHub
	logger   zerolog.Logger

	httpSrv *http.Server
	stop    context.CancelFunc
}

// NewServer assembles the HTTP layer over the tool registry. The broker
// must be started before Start so event notifications reach sessions.
func NewServer(svcs *tools.Services, registry *tools.Registry, broker *events.Broker) *Server {
	return &Server{
		cfg:      svcs.Config,
		services: svcs,
		registry: registry,
		tokens:   svcs.Tokens,
		broker:   broker,
		hub:      newSessionHub(),
		logger:   log.WithComponent("api"),
	}
}

// Start launches the background loops and serves until Shutdown. A clean
// shutdown returns nil.
func (s *Server) Start(addr string) error {
	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel

	go s.forwardEvents(ctx)
	go newCollector(s.services.Store).run(ctx)
	go newHealthMonitor(s.services.Store, s.cfg).run(ctx)

	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: s.handler(),
		// No global read/write timeouts: /sse streams stay open for hours
		// and a read deadline would cancel their request contexts.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Int("tools", s.registry.Len()).Msg("MCP server listening")
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the background loops, closes every SSE session and drains
// the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.stop != nil {
		s.stop()
	}
	s.hub.closeAll()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// handler builds the route table and wraps it in the middleware chain,
// auth outermost.
func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sse", s.handleSSE)
	mux.HandleFunc("POST /messages", s.handleMessages)
	mux.Handle("GET /health", metrics.HealthHandler())
	mux.Handle("GET /ready", metrics.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler())

	var h http.Handler = mux
	h = s.withLogging(h)
	h = s.withAuth(h)
	return h
}

// handleSSE opens one session stream: an endpoint event naming the session
// message URL, then queued JSON-RPC responses and notifications, with ping
// comments to keep intermediaries from reaping the connection.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	identity, _ := auth.FromContext(r.Context())
	sess := s.hub.add(identity)
	defer s.hub.remove(sess.id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: endpoint\ndata: /messages?session_id=%s\n\n", sess.id)
	flusher.Flush()

	s.logger.Debug().Str("session", sess.id).Str("identity", identityName(identity)).Msg("SSE session opened")

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case frame := <-sess.out:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", frame)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			s.logger.Debug().Str("session", sess.id).Msg("SSE session closed by client")
			return
		case <-sess.done:
			return
		}
	}
}

// handleMessages accepts one JSON-RPC request for an open session. The
// HTTP reply is always 202; the JSON-RPC response goes out on the session
// stream.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.hub.get(r.URL.Query().Get("session_id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown session"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageSize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		// No id to echo; the error has to ride the HTTP reply.
		writeJSON(w, http.StatusBadRequest, rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: codeParseError, Message: "parse error: " + err.Error()},
		})
		return
	}

	// Notifications never get a response.
	if len(req.ID) == 0 {
		s.logger.Debug().Str("session", sess.id).Str("method", req.Method).Msg("Notification received")
		w.WriteHeader(http.StatusAccepted)
		return
	}

	resp := s.dispatch(r.Context(), &req)
	frame, err := json.Marshal(resp)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "unencodable response"})
		return
	}
	if !sess.send(frame) {
		s.logger.Warn().Str("session", sess.id).Str("method", req.Method).Msg("Session buffer full, response dropped")
	}

	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte("Accepted"))
}

// dispatch routes one JSON-RPC request. The identity comes from the POST
// request context, so a session opened with one token cannot escalate by
// posting with another.
func (s *Server) dispatch(ctx context.Context, req *rpcRequest) *rpcResponse {
	resp := &rpcResponse{JSONRPC: "2.0", ID: req.ID}

	switch req.Method {
	case "initialize":
		resp.Result = map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities": map[string]any{
				"tools": map[string]any{"listChanged": false},
			},
			"serverInfo": map[string]any{
				"name":    s.cfg.ServerName,
				"version": version.Version,
			},
		}

	case "ping":
		resp.Result = map[string]any{}

	case "tools/list":
		resp.Result = map[string]any{"tools": s.toolEntries()}

	case "tools/call":
		var params struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
			resp.Error = &rpcError{Code: codeInvalidParams, Message: "tools/call requires a tool name"}
			return resp
		}
		identity, _ := auth.FromContext(ctx)
		result := s.registry.Call(ctx, identity, params.Name, params.Arguments)
		text, err := json.Marshal(result)
		if err != nil {
			resp.Error = &rpcError{Code: codeInternalError, Message: "unencodable tool result"}
			return resp
		}
		resp.Result = map[string]any{
			"content": []map[string]any{{"type": "text", "text": string(text)}},
			"isError": false,
		}

	default:
		resp.Error = &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)}
	}
	return resp
}

// toolEntries projects the catalogue into MCP tool descriptors.
func (s *Server) toolEntries() []map[string]any {
	catalogue := s.registry.Tools()
	entries := make([]map[string]any, 0, len(catalogue))
	for _, t := range catalogue {
		entries = append(entries, map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"inputSchema": t.Schema,
		})
	}
	return entries
}

// forwardEvents fans service events out to the sessions allowed to see
// them.
func (s *Server) forwardEvents(ctx context.Context) {
	sub := s.broker.Subscribe()
	defer s.broker.Unsubscribe(sub)
	for {
		select {
		case evt, ok := <-sub:
			if !ok {
				return
			}
			s.hub.broadcast(evt)
		case <-ctx.Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func identityName(id *auth.Identity) string {
	if id == nil {
		return ""
	}
	return id.Name
}
