package types

// Envelope is embedded by every tool result. Status is always set;
// Message carries human-readable detail for non-ok outcomes.
type Envelope struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Fail builds a bare envelope for an expected non-ok outcome.
func Fail(status Status, message string) Envelope {
	return Envelope{Status: status, Message: message}
}

// StatusCode exposes the status through an interface, letting the tool
// dispatcher label metrics without knowing the concrete result type.
func (e Envelope) StatusCode() Status { return e.Status }

// Space results

type SpaceCreateResult struct {
	Envelope
	SpaceID     string `json:"space_id"`
	Description string `json:"description,omitempty"`
	Owner       string `json:"owner"`
	CreatedAt   string `json:"created_at"`
	RulesSize   int    `json:"rules_size"`
}

type SpaceListEntry struct {
	SpaceID        string `json:"space_id"`
	Description    string `json:"description,omitempty"`
	CreatedAt      string `json:"created_at"`
	NotesCount     int    `json:"notes_count"`
	BankFilesCount int    `json:"bank_files_count"`
}

type SpaceListResult struct {
	Envelope
	Spaces []SpaceListEntry `json:"spaces"`
	Count  int              `json:"count"`
}

type SpaceInfoResult struct {
	Envelope
	SpaceID             string             `json:"space_id"`
	Description         string             `json:"description,omitempty"`
	Owner               string             `json:"owner"`
	CreatedAt           string             `json:"created_at"`
	RulesSize           int                `json:"rules_size"`
	NotesCount          int                `json:"notes_count"`
	NotesSize           int64              `json:"notes_size"`
	OldestNote          string             `json:"oldest_note,omitempty"`
	NewestNote          string             `json:"newest_note,omitempty"`
	BankFiles           []string           `json:"bank_files"`
	BankSize            int64              `json:"bank_size"`
	HasSynthesis        bool               `json:"has_synthesis"`
	LastConsolidation   string             `json:"last_consolidation,omitempty"`
	ConsolidationCount  int                `json:"consolidation_count"`
	TotalNotesProcessed int                `json:"total_notes_processed"`
	GraphMemory         *GraphMemoryConfig `json:"graph_memory,omitempty"`
}

type SpaceRulesResult struct {
	Envelope
	SpaceID string `json:"space_id"`
	Rules   string `json:"rules"`
	Size    int    `json:"size"`
}

type NotePreview struct {
	Filename string   `json:"filename"`
	Agent    string   `json:"agent"`
	Category Category `json:"category"`
}

type SpaceSummaryResult struct {
	Envelope
	SpaceID     string        `json:"space_id"`
	Synthesis   string        `json:"synthesis,omitempty"`
	RecentNotes []NotePreview `json:"recent_notes"`
	NotesCount  int           `json:"notes_count"`
	BankFiles   []string      `json:"bank_files"`
}

type SpaceExportResult struct {
	Envelope
	SpaceID       string `json:"space_id"`
	ArchiveBase64 string `json:"archive_base64"`
	ArchiveSize   int    `json:"archive_size"`
	FilesCount    int    `json:"files_count"`
}

type SpaceDeleteResult struct {
	Envelope
	SpaceID      string `json:"space_id"`
	FilesDeleted int    `json:"files_deleted"`
}

// Note results

type NoteWriteResult struct {
	Envelope
	SpaceID   string   `json:"space_id"`
	Filename  string   `json:"filename"`
	Agent     string   `json:"agent"`
	Category  Category `json:"category"`
	Timestamp string   `json:"timestamp"`
	Size      int      `json:"size"`
}

type NotesReadResult struct {
	Envelope
	SpaceID string `json:"space_id"`
	Notes   []Note `json:"notes"`
	Count   int    `json:"count"`
	Total   int    `json:"total"`
	HasMore bool   `json:"has_more"`
}

type SearchMatch struct {
	Filename string   `json:"filename"`
	Agent    string   `json:"agent"`
	Category Category `json:"category"`
	Snippet  string   `json:"snippet"`
}

type SearchResult struct {
	Envelope
	SpaceID string        `json:"space_id"`
	Query   string        `json:"query"`
	Matches []SearchMatch `json:"matches"`
	Count   int           `json:"count"`
}

// Bank results

type BankFile struct {
	Filename string `json:"filename"`
	Content  string `json:"content,omitempty"`
	Size     int    `json:"size"`
}

type BankReadResult struct {
	Envelope
	SpaceID  string `json:"space_id"`
	Filename string `json:"filename"`
	Content  string `json:"content"`
	Size     int    `json:"size"`
}

type BankReadAllResult struct {
	Envelope
	SpaceID   string     `json:"space_id"`
	Files     []BankFile `json:"files"`
	Count     int        `json:"count"`
	TotalSize int        `json:"total_size"`
}

type BankListResult struct {
	Envelope
	SpaceID string     `json:"space_id"`
	Files   []BankFile `json:"files"`
	Count   int        `json:"count"`
}

// TokenUsage reports LLM token consumption of a consolidation run.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ConsolidationResult struct {
	Envelope
	SpaceID            string      `json:"space_id"`
	Agent              string      `json:"agent,omitempty"`
	NotesProcessed     int         `json:"notes_processed"`
	NotesRemaining     int         `json:"notes_remaining"`
	BankFilesCreated   int         `json:"bank_files_created"`
	BankFilesUpdated   int         `json:"bank_files_updated"`
	BankFilesUnchanged int         `json:"bank_files_unchanged"`
	SynthesisSize      int         `json:"synthesis_size"`
	DurationSeconds    float64     `json:"duration_seconds"`
	Model              string      `json:"model,omitempty"`
	Usage              *TokenUsage `json:"usage,omitempty"`
}

// Graph results

type GraphConnectResult struct {
	Envelope
	SpaceID     string           `json:"space_id"`
	GraphMemory GraphConnectInfo `json:"graph_memory"`
}

type GraphConnectInfo struct {
	URL           string `json:"url"`
	MemoryID      string `json:"memory_id"`
	Ontology      string `json:"ontology"`
	MemoryCreated bool   `json:"memory_created"`
}

type GraphPushResult struct {
	Envelope
	SpaceID               string           `json:"space_id"`
	MemoryID              string           `json:"memory_id,omitempty"`
	Pushed                int              `json:"pushed"`
	DeletedBeforeReingest int              `json:"deleted_before_reingest"`
	CleanedOrphans        int              `json:"cleaned_orphans"`
	Errors                int              `json:"errors"`
	ErrorDetails          []GraphPushError `json:"error_details,omitempty"`
	DurationSeconds       float64          `json:"duration_seconds"`
}

type GraphPushError struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// GraphConfigInfo is the connection block echoed by graph_status. The
// bearer token never leaves the meta file.
type GraphConfigInfo struct {
	URL         string `json:"url"`
	MemoryID    string `json:"memory_id"`
	Ontology    string `json:"ontology"`
	ConnectedAt string `json:"connected_at,omitempty"`
}

// GraphDocument describes one document known to the remote graph.
type GraphDocument struct {
	Filename    string `json:"filename"`
	EntityCount int    `json:"entity_count"`
	IngestedAt  string `json:"ingested_at,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// GraphEntity is one entry of the remote graph's top-entities ranking.
type GraphEntity struct {
	Name  string `json:"name"`
	Count int    `json:"count,omitempty"`
}

type GraphStatusResult struct {
	Envelope
	SpaceID        string           `json:"space_id"`
	Connected      bool             `json:"connected"`
	Reachable      bool             `json:"reachable"`
	Config         *GraphConfigInfo `json:"config,omitempty"`
	LastPushAt     string           `json:"last_push_at,omitempty"`
	PushCount      int              `json:"push_count,omitempty"`
	Stats          *GraphStats      `json:"graph_stats,omitempty"`
	TopEntities    []GraphEntity    `json:"top_entities,omitempty"`
	GraphDocuments []GraphDocument  `json:"graph_documents,omitempty"`
	Error          string           `json:"error,omitempty"`
}

type GraphDisconnectResult struct {
	Envelope
	SpaceID        string               `json:"space_id"`
	WasConnectedTo *GraphDisconnectInfo `json:"was_connected_to,omitempty"`
}

type GraphDisconnectInfo struct {
	URL       string `json:"url"`
	MemoryID  string `json:"memory_id"`
	PushCount int    `json:"push_count"`
}

// Backup results

type BackupCreateResult struct {
	Envelope
	BackupID      string `json:"backup_id"`
	SpaceID       string `json:"space_id"`
	Timestamp     string `json:"timestamp"`
	Description   string `json:"description,omitempty"`
	FilesBackedUp int    `json:"files_backed_up"`
	TotalSize     int64  `json:"total_size"`
	Pruned        int    `json:"pruned"`
}

type BackupEntry struct {
	BackupID    string `json:"backup_id"`
	SpaceID     string `json:"space_id"`
	Timestamp   string `json:"timestamp"`
	Description string `json:"description,omitempty"`
	Files       int    `json:"files,omitempty"`
	TotalSize   int64  `json:"total_size,omitempty"`
}

type BackupListResult struct {
	Envelope
	Backups []BackupEntry `json:"backups"`
	Count   int           `json:"count"`
}

type BackupRestoreResult struct {
	Envelope
	BackupID      string `json:"backup_id"`
	SpaceID       string `json:"space_id"`
	FilesRestored int    `json:"files_restored"`
}

type BackupDownloadResult struct {
	Envelope
	BackupID      string `json:"backup_id"`
	ArchiveBase64 string `json:"archive_base64"`
	ArchiveSize   int    `json:"archive_size"`
	FilesCount    int    `json:"files_count"`
}

type BackupDeleteResult struct {
	Envelope
	BackupID     string `json:"backup_id"`
	FilesDeleted int    `json:"files_deleted"`
}

// Token administration results

type TokenCreateResult struct {
	Envelope
	Token       string       `json:"token"`
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions"`
	SpaceIDs    []string     `json:"space_ids"`
	ExpiresAt   string       `json:"expires_at,omitempty"`
}

type TokenListEntry struct {
	Hash        string       `json:"hash"`
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions"`
	SpaceIDs    []string     `json:"space_ids"`
	CreatedAt   string       `json:"created_at"`
	ExpiresAt   string       `json:"expires_at,omitempty"`
	LastUsedAt  string       `json:"last_used_at,omitempty"`
	Revoked     bool         `json:"revoked"`
}

type TokenListResult struct {
	Envelope
	Tokens []TokenListEntry `json:"tokens"`
	Count  int              `json:"count"`
}

type TokenActionResult struct {
	Envelope
	Name string `json:"name,omitempty"`
	Hash string `json:"hash,omitempty"`
}

// Garbage collection results

type GCAgentGroup struct {
	Count int   `json:"count"`
	Size  int64 `json:"size"`
}

type GCSpaceScan struct {
	TotalNotes   int                     `json:"total_notes"`
	OldNotes     int                     `json:"old_notes"`
	OldNotesSize int64                   `json:"old_notes_size"`
	ByAgent      map[string]GCAgentGroup `json:"by_agent"`
	Oldest       string                  `json:"oldest,omitempty"`
}

type GCConsolidation struct {
	SpaceID string `json:"space_id"`
	Agent   string `json:"agent"`
	Notes   int    `json:"notes"`
}

type GCResult struct {
	Envelope
	MaxAgeDays    int                    `json:"max_age_days"`
	CutoffDate    string                 `json:"cutoff_date"`
	Confirm       bool                   `json:"confirm"`
	DeleteOnly    bool                   `json:"delete_only,omitempty"`
	Spaces        map[string]GCSpaceScan `json:"spaces"`
	TotalOldNotes int                    `json:"total_old_notes"`
	TotalOldSize  int64                  `json:"total_old_size"`
	Consolidated  []GCConsolidation      `json:"consolidated,omitempty"`
	Skipped       []GCConsolidation      `json:"skipped,omitempty"`
	Failed        []GCConsolidation      `json:"failed,omitempty"`
	Deleted       int                    `json:"deleted,omitempty"`
}

// System results

type StorageHealth struct {
	Connected bool    `json:"connected"`
	LatencyMS float64 `json:"latency_ms,omitempty"`
	Error     string  `json:"error,omitempty"`
}

type LLMHealth struct {
	Configured bool    `json:"configured"`
	Model      string  `json:"model,omitempty"`
	LatencyMS  float64 `json:"latency_ms,omitempty"`
	Warning    string  `json:"warning,omitempty"`
	Error      string  `json:"error,omitempty"`
}

type HealthResult struct {
	Envelope
	Service       string        `json:"service"`
	Version       string        `json:"version"`
	Storage       StorageHealth `json:"storage"`
	LLM           LLMHealth     `json:"llm"`
	SpacesCount   int           `json:"spaces_count"`
	UptimeSeconds float64       `json:"uptime_seconds"`
}

type PlatformInfo struct {
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

type ToolDescription struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type AboutResult struct {
	Envelope
	Name          string            `json:"name"`
	Version       string            `json:"version"`
	Description   string            `json:"description"`
	Author        string            `json:"author"`
	Documentation string            `json:"documentation"`
	Platform      PlatformInfo      `json:"platform"`
	Tools         []ToolDescription `json:"tools"`
}
