package graph

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chrlesur/live-memory/pkg/log"
	"github.com/chrlesur/live-memory/pkg/version"
)

const (
	// protocolVersion is the MCP revision the remote graph service speaks.
	protocolVersion = "2024-11-05"

	// endpointWait bounds the wait for the session endpoint event after
	// the SSE stream opens.
	endpointWait = 15 * time.Second
	// defaultTimeout applies to each tool call.
	defaultTimeout = 120 * time.Second
	// ingestTimeout covers memory_ingest, which runs entity extraction on
	// the remote and is far slower than any other call.
	ingestTimeout = 180 * time.Second

	// maxEventSize caps one SSE frame; document listings can run large.
	maxEventSize = 1 << 20
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ToolCaller is the slice of Client the bridge consumes; tests substitute
// fakes.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (map[string]any, error)
	Close() error
}

// DialFunc opens a ready-to-call session against a graph service.
type DialFunc func(ctx context.Context, rawURL, token string, timeout time.Duration) (ToolCaller, error)

// Dial connects a real Client and performs the MCP handshake.
func Dial(ctx context.Context, rawURL, token string, timeout time.Duration) (ToolCaller, error) {
	c := NewClient(rawURL, token, timeout)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Client is a minimal MCP client for the remote graph service. Requests
// are POSTed to a per-session URL; responses and notifications come back
// over a long-lived SSE stream and are routed to callers by request id.
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	http    *http.Client
	logger  zerolog.Logger

	mu         sync.Mutex
	sessionURL string
	pending    map[int]chan *rpcResponse
	nextID     int
	cancel     context.CancelFunc

	endpoint     chan struct{}
	endpointOnce sync.Once
}

// NewClient prepares a client for the service at rawURL. A trailing /sse
// is stripped so both forms of the URL work. timeout <= 0 selects the
// default per-call timeout.
func NewClient(rawURL, token string, timeout time.Duration) *Client {
	base := strings.TrimRight(rawURL, "/")
	base = strings.TrimSuffix(base, "/sse")
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: base,
		token:   token,
		timeout: timeout,
		http: &http.Client{
			// No global timeout: the SSE stream must outlive every call.
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
				ResponseHeaderTimeout: endpointWait,
			},
		},
		pending:  make(map[int]chan *rpcResponse),
		endpoint: make(chan struct{}),
		logger:   log.WithComponent("graph"),
	}
}

// Connect opens the SSE stream, waits for the session endpoint and runs
// the initialize handshake.
func (c *Client) Connect(ctx context.Context) error {
	streamCtx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, c.baseURL+"/sse", nil)
	if err != nil {
		cancel()
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return fmt.Errorf("cannot reach %s/sse: %w", c.baseURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("graph service returned status %d", resp.StatusCode)
	}

	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	go c.listen(resp.Body)

	select {
	case <-c.endpoint:
	case <-ctx.Done():
		c.Close()
		return ctx.Err()
	case <-time.After(endpointWait):
		c.Close()
		return fmt.Errorf("no endpoint event from %s/sse after %s", c.baseURL, endpointWait)
	}

	_, err = c.call(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]string{
			"name":    "live-memory-bridge",
			"version": version.Version,
		},
	})
	if err != nil {
		c.Close()
		return fmt.Errorf("initialize handshake failed: %w", err)
	}
	if err := c.notify(ctx, "notifications/initialized"); err != nil {
		c.Close()
		return fmt.Errorf("initialized notification failed: %w", err)
	}

	c.logger.Debug().Str("url", c.baseURL).Msg("Connected to graph service")
	return nil
}

// Close tears down the stream and unblocks every waiting caller.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.sessionURL = ""
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	return nil
}

// CallTool invokes one remote tool and returns its decoded reply. The MCP
// layer wraps tool output in content blocks; the first text block is
// decoded as JSON, and non-JSON text comes back as {"status":"ok","raw":
// text}.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	if args == nil {
		args = map[string]any{}
	}
	resp, err := c.call(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return nil, err
	}

	var wrapped struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(resp.Result, &wrapped); err == nil && len(wrapped.Content) > 0 {
		text := wrapped.Content[0].Text
		var reply map[string]any
		if err := json.Unmarshal([]byte(text), &reply); err == nil && reply != nil {
			return reply, nil
		}
		return map[string]any{"status": "ok", "raw": text}, nil
	}

	var reply map[string]any
	if err := json.Unmarshal(resp.Result, &reply); err != nil || reply == nil {
		return map[string]any{}, nil
	}
	return reply, nil
}

// call sends one JSON-RPC request and waits for its response on the SSE
// stream.
func (c *Client) call(ctx context.Context, method string, params any) (*rpcResponse, error) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	ch := make(chan *rpcResponse, 1)
	c.pending[id] = ch
	sessionURL := c.sessionURL
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if sessionURL == "" {
		return nil, errors.New("graph client is not connected")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.post(ctx, sessionURL, rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		return nil, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, errors.New("graph connection closed")
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("%s failed: %s", method, resp.Error.Message)
		}
		return resp, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("no reply to %s: %w", method, ctx.Err())
	}
}

// notify sends a JSON-RPC notification; nothing comes back.
func (c *Client) notify(ctx context.Context, method string) error {
	c.mu.Lock()
	sessionURL := c.sessionURL
	c.mu.Unlock()
	if sessionURL == "" {
		return errors.New("graph client is not connected")
	}
	return c.post(ctx, sessionURL, rpcRequest{JSONRPC: "2.0", Method: method})
}

func (c *Client) post(ctx context.Context, postURL string, payload rpcRequest) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("graph request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("graph service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// listen consumes the SSE stream until it closes, dispatching each frame.
func (c *Client) listen(body io.ReadCloser) {
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	eventType := "message"
	var data bytes.Buffer
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			c.dispatch(eventType, strings.TrimSuffix(data.String(), "\n"))
			eventType = "message"
			data.Reset()
			continue
		}
		switch {
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data.WriteString(strings.TrimPrefix(line, "data: "))
			data.WriteByte('\n')
		case strings.HasPrefix(line, ":"):
			// Keep-alive comment.
		}
	}
	if err := scanner.Err(); err != nil {
		c.logger.Debug().Err(err).Msg("Graph SSE stream closed")
	}
}

func (c *Client) dispatch(eventType, data string) {
	if data == "" {
		return
	}
	switch eventType {
	case "endpoint":
		c.mu.Lock()
		c.sessionURL = c.resolveURL(data)
		c.mu.Unlock()
		c.endpointOnce.Do(func() { close(c.endpoint) })

	case "message":
		var resp rpcResponse
		if err := json.Unmarshal([]byte(data), &resp); err != nil {
			c.logger.Debug().Err(err).Msg("Unparseable graph SSE message")
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		c.mu.Unlock()
		if !ok {
			// Server notification, or a reply nobody waits for anymore.
			return
		}
		select {
		case ch <- &resp:
		default:
		}
	}
}

// resolveURL turns the endpoint event payload into an absolute URL.
func (c *Client) resolveURL(endpoint string) string {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return endpoint
	}
	ref, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	return base.ResolveReference(ref).String()
}
