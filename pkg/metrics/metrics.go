package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Storage metrics
	StorageOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livemem_storage_operations_total",
			Help: "Total number of object store operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	StorageOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "livemem_storage_operation_duration_seconds",
			Help:    "Object store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Tool metrics
	ToolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livemem_tool_calls_total",
			Help: "Total number of MCP tool calls by tool and result status",
		},
		[]string{"tool", "status"},
	)

	ToolCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "livemem_tool_call_duration_seconds",
			Help:    "MCP tool call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	// Note metrics
	NotesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "livemem_notes_written_total",
			Help: "Total number of live notes written",
		},
	)

	// Consolidation metrics
	Consolidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livemem_consolidations_total",
			Help: "Total number of consolidation runs by status",
		},
		[]string{"status"},
	)

	ConsolidationNotesProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "livemem_consolidation_notes_processed_total",
			Help: "Total number of notes folded into banks",
		},
	)

	ConsolidationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "livemem_consolidation_duration_seconds",
			Help:    "End-to-end consolidation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	LLMTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livemem_llm_tokens_total",
			Help: "Total LLM tokens consumed by kind (prompt, completion)",
		},
		[]string{"kind"},
	)

	// Backup metrics
	BackupsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "livemem_backups_created_total",
			Help: "Total number of space backups created",
		},
	)

	// Graph bridge metrics
	GraphDocumentsPushed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "livemem_graph_documents_pushed_total",
			Help: "Total number of documents pushed to knowledge graphs",
		},
	)

	// Session metrics
	ActiveSSESessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "livemem_active_sse_sessions",
			Help: "Number of currently connected SSE sessions",
		},
	)

	// Inventory gauges, set by the periodic collector
	SpacesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "livemem_spaces_total",
			Help: "Total number of memory spaces",
		},
	)

	LiveNotesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "livemem_live_notes_total",
			Help: "Total number of live notes awaiting consolidation",
		},
	)

	BankFilesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "livemem_bank_files_total",
			Help: "Total number of bank files across all spaces",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(StorageOperations)
	prometheus.MustRegister(StorageOperationDuration)
	prometheus.MustRegister(ToolCalls)
	prometheus.MustRegister(ToolCallDuration)
	prometheus.MustRegister(NotesWritten)
	prometheus.MustRegister(Consolidations)
	prometheus.MustRegister(ConsolidationNotesProcessed)
	prometheus.MustRegister(ConsolidationDuration)
	prometheus.MustRegister(LLMTokens)
	prometheus.MustRegister(BackupsCreated)
	prometheus.MustRegister(GraphDocumentsPushed)
	prometheus.MustRegister(ActiveSSESessions)
	prometheus.MustRegister(SpacesTotal)
	prometheus.MustRegister(LiveNotesTotal)
	prometheus.MustRegister(BankFilesTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
