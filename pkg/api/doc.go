/*
Package api implements the MCP server: SSE transport, JSON-RPC dispatch,
authentication middleware and the operational HTTP endpoints.

A client opens a stream on GET /sse and receives an endpoint event naming
its per-session message URL. Every JSON-RPC request is POSTed there and
acknowledged with 202; the response travels back on the stream, matched by
request id. Service events (notes written, consolidations, backups) are
fanned out to sessions as notifications/message, filtered by the token
scope of each stream.

# Architecture

	┌──────────────────────── HTTP LISTENER ────────────────────────┐
	│                                                                │
	│   withAuth ──▶ withLogging ──▶ mux                             │
	│                                                                │
	│   GET  /sse       endpoint event, responses, notifications    │
	│   POST /messages  JSON-RPC: initialize, ping, tools/list,     │
	│                   tools/call ──▶ tools.Registry.Call          │
	│   GET  /health    component health (public)                   │
	│   GET  /ready     readiness gate (public)                     │
	│   GET  /metrics   prometheus (public)                         │
	│                                                                │
	│   background: event fan-out, inventory collector,             │
	│               storage health monitor                          │
	└────────────────────────────────────────────────────────────────┘

# Authentication

Bearer tokens ride the Authorization header, with a ?token= query fallback
for SSE clients that cannot set headers. The bootstrap key authenticates a
synthetic admin. Everything except the public endpoints requires a valid
token; the identity travels on the request context and each tool call uses
the identity of its own POST.

# Usage

	srv := api.NewServer(services, registry, broker)
	go func() {
		if err := srv.Start(addr); err != nil {
			log.Errorf("server stopped", err)
		}
	}()
	...
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
*/
package api
