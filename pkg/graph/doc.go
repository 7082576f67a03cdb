// Package graph bridges spaces to an external knowledge-graph service
// speaking MCP over SSE. A space is bound to one remote memory; a push
// replaces the remote documents with the current bank files so the graph
// is recomputed from current content, and the binding can be inspected
// or removed without touching remote data.
package graph
