package types

import (
	"errors"
	"time"
)

// Status is the envelope code every tool result carries.
type Status string

const (
	StatusOK            Status = "ok"
	StatusCreated       Status = "created"
	StatusDeleted       Status = "deleted"
	StatusConnected     Status = "connected"
	StatusDisconnected  Status = "disconnected"
	StatusDegraded      Status = "degraded"
	StatusNotFound      Status = "not_found"
	StatusForbidden     Status = "forbidden"
	StatusConflict      Status = "conflict"
	StatusAlreadyExists Status = "already_exists"
	StatusError         Status = "error"
)

// Sentinel errors mapped to envelope codes at the tool boundary.
var (
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalid       = errors.New("invalid argument")
)

// Permission is a capability carried by a token.
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
	PermissionAdmin Permission = "admin"
)

// ValidPermission reports whether p is one of the three known permissions.
func ValidPermission(p Permission) bool {
	switch p {
	case PermissionRead, PermissionWrite, PermissionAdmin:
		return true
	}
	return false
}

// Category classifies a live note.
type Category string

const (
	CategoryObservation Category = "observation"
	CategoryDecision    Category = "decision"
	CategoryTodo        Category = "todo"
	CategoryInsight     Category = "insight"
	CategoryQuestion    Category = "question"
	CategoryProgress    Category = "progress"
	CategoryIssue       Category = "issue"
)

// Categories lists every valid note category.
func Categories() []Category {
	return []Category{
		CategoryObservation,
		CategoryDecision,
		CategoryTodo,
		CategoryInsight,
		CategoryQuestion,
		CategoryProgress,
		CategoryIssue,
	}
}

// Ontologies accepted by the graph bridge.
var Ontologies = []string{"general", "legal", "cloud", "managed-services", "presales"}

// ValidOntology reports whether name is a known graph ontology.
func ValidOntology(name string) bool {
	for _, o := range Ontologies {
		if o == name {
			return true
		}
	}
	return false
}

// SpaceMeta is the persisted metadata of a space (_meta.json).
type SpaceMeta struct {
	SpaceID             string             `json:"space_id"`
	Description         string             `json:"description"`
	Owner               string             `json:"owner"`
	CreatedAt           time.Time          `json:"created_at"`
	Version             int                `json:"version"`
	RulesSize           int                `json:"rules_size"`
	LastConsolidation   *time.Time         `json:"last_consolidation,omitempty"`
	ConsolidationCount  int                `json:"consolidation_count"`
	TotalNotesProcessed int                `json:"total_notes_processed"`
	GraphMemory         *GraphMemoryConfig `json:"graph_memory,omitempty"`
}

// GraphMemoryConfig records the binding between a space and a remote
// knowledge-graph memory.
type GraphMemoryConfig struct {
	URL         string      `json:"url"`
	Token       string      `json:"token"`
	MemoryID    string      `json:"memory_id"`
	Ontology    string      `json:"ontology"`
	ConnectedAt time.Time   `json:"connected_at"`
	LastPushAt  *time.Time  `json:"last_push_at,omitempty"`
	PushCount   int         `json:"push_count"`
	LastStats   *GraphStats `json:"last_stats,omitempty"`
}

// GraphStats is a cached snapshot of remote graph counters.
type GraphStats struct {
	DocumentCount int `json:"document_count"`
	EntityCount   int `json:"entity_count"`
	RelationCount int `json:"relation_count"`
}

// Note is a parsed live note (front matter plus body).
type Note struct {
	Filename  string   `json:"filename"`
	Timestamp string   `json:"timestamp"` // RFC3339 UTC
	Agent     string   `json:"agent"`
	Category  Category `json:"category"`
	Tags      []string `json:"tags"`
	SpaceID   string   `json:"space_id"`
	Content   string   `json:"content"`
	Size      int      `json:"size"`
}

// TokenRecord is one entry of the persisted token registry. Only the
// sha256 digest of the bearer token is ever stored.
type TokenRecord struct {
	Hash        string       `json:"hash"`
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions"`
	SpaceIDs    []string     `json:"space_ids"`
	CreatedAt   time.Time    `json:"created_at"`
	ExpiresAt   *time.Time   `json:"expires_at"`
	LastUsedAt  *time.Time   `json:"last_used_at"`
	Revoked     bool         `json:"revoked"`
}

// Expired reports whether the record carries an expiry in the past.
func (r *TokenRecord) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// TokensFile is the on-store shape of _system/tokens.json.
type TokensFile struct {
	Version int           `json:"version"`
	Tokens  []TokenRecord `json:"tokens"`
}

// BackupManifest is stored inside each snapshot as _backup.json and
// skipped on restore and download.
type BackupManifest struct {
	BackupID    string    `json:"backup_id"`
	SpaceID     string    `json:"space_id"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description,omitempty"`
	Files       int       `json:"files"`
	TotalSize   int64     `json:"total_size"`
	CreatedBy   string    `json:"created_by,omitempty"`
}
