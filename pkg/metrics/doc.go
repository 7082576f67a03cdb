/*
Package metrics provides Prometheus metrics collection and exposition for
Live Memory, plus the component health checker behind /health and /ready.

All metrics are registered on the global registry at package init and
exposed through promhttp on /metrics. The package sits at the bottom of
the dependency graph: storage, tools and the consolidator all record into
it, so it must not import any of them.

# Metrics Catalog

Storage:

livemem_storage_operations_total{operation, status}:
  - Type: Counter
  - Description: Object store operations by operation (get/put/delete/
    list/head/copy) and status (ok/error)

livemem_storage_operation_duration_seconds{operation}:
  - Type: Histogram
  - Description: Object store operation latency

Tools:

livemem_tool_calls_total{tool, status}:
  - Type: Counter
  - Description: MCP tool calls by tool name and envelope status

livemem_tool_call_duration_seconds{tool}:
  - Type: Histogram
  - Description: Tool call latency including storage and LLM time

Notes and consolidation:

livemem_notes_written_total:
  - Type: Counter
  - Description: Live notes appended

livemem_consolidations_total{status}:
  - Type: Counter
  - Description: Consolidation runs by outcome (ok/empty/conflict/error)

livemem_consolidation_notes_processed_total:
  - Type: Counter
  - Description: Notes folded into banks

livemem_consolidation_duration_seconds:
  - Type: Histogram
  - Description: End-to-end consolidation latency; buckets reach into
    minutes because one run is one large LLM call

livemem_llm_tokens_total{kind}:
  - Type: Counter
  - Description: LLM tokens by kind (prompt/completion)

Backups, graph, sessions:

livemem_backups_created_total:
  - Type: Counter
  - Description: Space snapshots written under _backups/

livemem_graph_documents_pushed_total:
  - Type: Counter
  - Description: Documents ingested into knowledge graphs

livemem_active_sse_sessions:
  - Type: Gauge
  - Description: Currently connected MCP SSE sessions

Inventory (sampled periodically by the pkg/api collector):

livemem_spaces_total, livemem_live_notes_total, livemem_bank_files_total:
  - Type: Gauge
  - Description: Spaces, pending notes and bank files on the store

# Usage

Recording metrics:

	metrics.NotesWritten.Inc()
	metrics.Consolidations.WithLabelValues("ok").Inc()

Timing an operation:

	start := time.Now()
	// ... perform operation ...
	metrics.Since(metrics.ToolCallDuration.WithLabelValues("live_note"), start)

Health checking:

	metrics.SetVersion(version)
	metrics.SetComponent("storage", true, "")
	metrics.SetComponent("llm", false, "endpoint not configured")

	http.Handle("/health", metrics.HealthHandler())
	http.Handle("/metrics", metrics.Handler())

Components storage and api are critical: when one is unhealthy the
service reports unhealthy and /health answers 503. Any other failing
component (llm, graph) only degrades the status, the endpoint stays 200.

# Monitoring

Useful PromQL:

  - Tool error rate: rate(livemem_tool_calls_total{status="error"}[5m])
  - p95 tool latency: histogram_quantile(0.95, livemem_tool_call_duration_seconds_bucket)
  - Consolidation failures: rate(livemem_consolidations_total{status="error"}[15m])
  - Token burn: rate(livemem_llm_tokens_total[1h])
  - Backlog growth: deriv(livemem_live_notes_total[30m]) > 0

# See Also

  - Prometheus client library: https://github.com/prometheus/client_golang
  - pkg/api for the /metrics and /health routes and the inventory collector
*/
package metrics
