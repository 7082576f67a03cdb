package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chrlesur/live-memory/pkg/graph"
	"github.com/chrlesur/live-memory/pkg/types"
)

// DefaultTimeout bounds each tool call unless the caller's context is
// tighter.
const DefaultTimeout = 60 * time.Second

// Client is a typed Live Memory client. It speaks the same MCP session
// protocol agents use and maps every tool to a method returning that
// tool's result struct.
//
// Transport and protocol failures surface as errors. Expected non-ok
// outcomes (missing space, busy lock, confirmation required) come back
// in the result envelope for the caller to inspect.
type Client struct {
	mcp graph.ToolCaller
}

// New dials the server at rawURL, with or without the trailing /sse,
// authenticates with token and performs the MCP handshake.
func New(ctx context.Context, rawURL, token string) (*Client, error) {
	mcp, err := graph.Dial(ctx, rawURL, token, DefaultTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", rawURL, err)
	}
	return &Client{mcp: mcp}, nil
}

// NewFromCaller wraps an already-connected session.
func NewFromCaller(mcp graph.ToolCaller) *Client {
	return &Client{mcp: mcp}
}

// Close terminates the session stream.
func (c *Client) Close() error {
	return c.mcp.Close()
}

// CallTool invokes any tool by name and returns the raw decoded reply.
// The typed methods below cover the full catalogue; CallTool remains for
// tools this client does not know about yet.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	return c.mcp.CallTool(ctx, name, args)
}

// call invokes a tool and redecodes its reply into out.
func (c *Client) call(ctx context.Context, name string, args map[string]any, out any) error {
	raw, err := c.mcp.CallTool(ctx, name, args)
	if err != nil {
		return err
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to encode %s reply: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s reply: %w", name, err)
	}
	return nil
}

// System tools

// Health reports storage and LLM health plus server uptime.
func (c *Client) Health(ctx context.Context) (*types.HealthResult, error) {
	var out types.HealthResult
	if err := c.call(ctx, "system_health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// About returns the server build, platform and tool catalogue.
func (c *Client) About(ctx context.Context) (*types.AboutResult, error) {
	var out types.AboutResult
	if err := c.call(ctx, "system_about", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Space tools

// SpaceCreate creates a space. Description may be empty; rules must
// carry a non-empty collaboration document.
func (c *Client) SpaceCreate(ctx context.Context, spaceID, description, rules string) (*types.SpaceCreateResult, error) {
	var out types.SpaceCreateResult
	err := c.call(ctx, "space_create", map[string]any{
		"space_id":    spaceID,
		"description": description,
		"rules":       rules,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SpaceList lists the spaces visible to the token.
func (c *Client) SpaceList(ctx context.Context) (*types.SpaceListResult, error) {
	var out types.SpaceListResult
	if err := c.call(ctx, "space_list", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SpaceInfo returns metadata, note statistics and bank inventory.
func (c *Client) SpaceInfo(ctx context.Context, spaceID string) (*types.SpaceInfoResult, error) {
	var out types.SpaceInfoResult
	if err := c.call(ctx, "space_info", map[string]any{"space_id": spaceID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SpaceRules returns the collaboration rules document.
func (c *Client) SpaceRules(ctx context.Context, spaceID string) (*types.SpaceRulesResult, error) {
	var out types.SpaceRulesResult
	if err := c.call(ctx, "space_rules", map[string]any{"space_id": spaceID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SpaceSummary returns the synthesis plus recent note previews.
func (c *Client) SpaceSummary(ctx context.Context, spaceID string) (*types.SpaceSummaryResult, error) {
	var out types.SpaceSummaryResult
	if err := c.call(ctx, "space_summary", map[string]any{"space_id": spaceID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SpaceExport downloads the whole space as a base64 tar.gz archive.
func (c *Client) SpaceExport(ctx context.Context, spaceID string) (*types.SpaceExportResult, error) {
	var out types.SpaceExportResult
	if err := c.call(ctx, "space_export", map[string]any{"space_id": spaceID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SpaceDelete removes a space and everything in it. With confirm false
// the server answers with a confirmation-required envelope and deletes
// nothing.
func (c *Client) SpaceDelete(ctx context.Context, spaceID string, confirm bool) (*types.SpaceDeleteResult, error) {
	var out types.SpaceDeleteResult
	err := c.call(ctx, "space_delete", map[string]any{
		"space_id": spaceID,
		"confirm":  confirm,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Live memory tools

// NoteOptions carries the optional live_note fields. An empty Agent
// defaults to the token name server side.
type NoteOptions struct {
	Agent    string
	Category string
	Tags     string
}

// LiveNote appends a timestamped note to the space's working memory.
func (c *Client) LiveNote(ctx context.Context, spaceID, content string, opts NoteOptions) (*types.NoteWriteResult, error) {
	var out types.NoteWriteResult
	err := c.call(ctx, "live_note", map[string]any{
		"space_id": spaceID,
		"content":  content,
		"agent":    opts.Agent,
		"category": opts.Category,
		"tags":     opts.Tags,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ReadOptions filters live_read. Zero values mean no filter and the
// server's default limit.
type ReadOptions struct {
	Agent    string
	Category string
	Since    string
	Limit    int
}

// LiveRead returns notes newest first.
func (c *Client) LiveRead(ctx context.Context, spaceID string, opts ReadOptions) (*types.NotesReadResult, error) {
	var out types.NotesReadResult
	err := c.call(ctx, "live_read", map[string]any{
		"space_id": spaceID,
		"agent":    opts.Agent,
		"category": opts.Category,
		"since":    opts.Since,
		"limit":    opts.Limit,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// LiveSearch scans notes and bank files for a substring. limit 0 uses
// the server default.
func (c *Client) LiveSearch(ctx context.Context, spaceID, query string, limit int) (*types.SearchResult, error) {
	var out types.SearchResult
	err := c.call(ctx, "live_search", map[string]any{
		"space_id": spaceID,
		"query":    query,
		"limit":    limit,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Memory bank tools

// BankRead returns one consolidated bank file.
func (c *Client) BankRead(ctx context.Context, spaceID, filename string) (*types.BankReadResult, error) {
	var out types.BankReadResult
	err := c.call(ctx, "bank_read", map[string]any{
		"space_id": spaceID,
		"filename": filename,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// BankReadAll returns every bank file with content.
func (c *Client) BankReadAll(ctx context.Context, spaceID string) (*types.BankReadAllResult, error) {
	var out types.BankReadAllResult
	if err := c.call(ctx, "bank_read_all", map[string]any{"space_id": spaceID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BankList lists bank files without their content.
func (c *Client) BankList(ctx context.Context, spaceID string) (*types.BankListResult, error) {
	var out types.BankListResult
	if err := c.call(ctx, "bank_list", map[string]any{"space_id": spaceID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BankConsolidate folds live notes into the bank through the LLM. An
// empty agent consolidates every agent's notes, which requires admin.
func (c *Client) BankConsolidate(ctx context.Context, spaceID, agent string) (*types.ConsolidationResult, error) {
	var out types.ConsolidationResult
	err := c.call(ctx, "bank_consolidate", map[string]any{
		"space_id": spaceID,
		"agent":    agent,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Graph bridge tools

// GraphConnectOptions identifies the remote graph memory. MemoryID and
// Ontology may be empty; the server then creates a memory named after
// the space.
type GraphConnectOptions struct {
	URL      string
	Token    string
	MemoryID string
	Ontology string
}

// GraphConnect attaches the space to an external graph service.
func (c *Client) GraphConnect(ctx context.Context, spaceID string, opts GraphConnectOptions) (*types.GraphConnectResult, error) {
	var out types.GraphConnectResult
	err := c.call(ctx, "graph_connect", map[string]any{
		"space_id":  spaceID,
		"url":       opts.URL,
		"token":     opts.Token,
		"memory_id": opts.MemoryID,
		"ontology":  opts.Ontology,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GraphPush reingests the space's bank files into the connected graph.
func (c *Client) GraphPush(ctx context.Context, spaceID string) (*types.GraphPushResult, error) {
	var out types.GraphPushResult
	if err := c.call(ctx, "graph_push", map[string]any{"space_id": spaceID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GraphStatus reports the connection, reachability and remote stats.
func (c *Client) GraphStatus(ctx context.Context, spaceID string) (*types.GraphStatusResult, error) {
	var out types.GraphStatusResult
	if err := c.call(ctx, "graph_status", map[string]any{"space_id": spaceID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GraphDisconnect detaches the space; remote data is left in place.
func (c *Client) GraphDisconnect(ctx context.Context, spaceID string) (*types.GraphDisconnectResult, error) {
	var out types.GraphDisconnectResult
	if err := c.call(ctx, "graph_disconnect", map[string]any{"space_id": spaceID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Backup tools

// BackupCreate snapshots a space. Older backups past the retention
// limit are pruned in the same call.
func (c *Client) BackupCreate(ctx context.Context, spaceID, description string) (*types.BackupCreateResult, error) {
	var out types.BackupCreateResult
	err := c.call(ctx, "backup_create", map[string]any{
		"space_id":    spaceID,
		"description": description,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// BackupList lists backups for one space, or all spaces when spaceID is
// empty.
func (c *Client) BackupList(ctx context.Context, spaceID string) (*types.BackupListResult, error) {
	var out types.BackupListResult
	if err := c.call(ctx, "backup_list", map[string]any{"space_id": spaceID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BackupDownload returns a backup as a base64 tar.gz archive.
func (c *Client) BackupDownload(ctx context.Context, backupID string) (*types.BackupDownloadResult, error) {
	var out types.BackupDownloadResult
	if err := c.call(ctx, "backup_download", map[string]any{"backup_id": backupID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BackupRestore rebuilds a deleted space from a backup. The server
// refuses when the space still exists.
func (c *Client) BackupRestore(ctx context.Context, backupID string, confirm bool) (*types.BackupRestoreResult, error) {
	var out types.BackupRestoreResult
	err := c.call(ctx, "backup_restore", map[string]any{
		"backup_id": backupID,
		"confirm":   confirm,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// BackupDelete permanently removes a backup.
func (c *Client) BackupDelete(ctx context.Context, backupID string, confirm bool) (*types.BackupDeleteResult, error) {
	var out types.BackupDeleteResult
	err := c.call(ctx, "backup_delete", map[string]any{
		"backup_id": backupID,
		"confirm":   confirm,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Administration tools

// TokenCreate mints a bearer token. permissions and spaceIDs are comma
// separated; spaceIDs "*" grants every space; expiresDays 0 means no
// expiry.
func (c *Client) TokenCreate(ctx context.Context, name, permissions, spaceIDs string, expiresDays int) (*types.TokenCreateResult, error) {
	var out types.TokenCreateResult
	err := c.call(ctx, "admin_create_token", map[string]any{
		"name":         name,
		"permissions":  permissions,
		"space_ids":    spaceIDs,
		"expires_days": expiresDays,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// TokenList lists token records. Secrets are never returned, only
// display hashes.
func (c *Client) TokenList(ctx context.Context) (*types.TokenListResult, error) {
	var out types.TokenListResult
	if err := c.call(ctx, "admin_list_tokens", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TokenRevoke revokes a token by name or display hash.
func (c *Client) TokenRevoke(ctx context.Context, tokenRef string) (*types.TokenActionResult, error) {
	var out types.TokenActionResult
	if err := c.call(ctx, "admin_revoke_token", map[string]any{"token_ref": tokenRef}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TokenUpdateOptions carries the admin_update_token fields. Empty
// strings leave the attribute untouched; a nil ExpiresDays keeps the
// current expiry and 0 clears it.
type TokenUpdateOptions struct {
	Permissions string
	SpaceIDs    string
	ExpiresDays *int
}

// TokenUpdate changes a token's permissions, space scope or expiry.
func (c *Client) TokenUpdate(ctx context.Context, tokenRef string, opts TokenUpdateOptions) (*types.TokenActionResult, error) {
	args := map[string]any{
		"token_ref":   tokenRef,
		"permissions": opts.Permissions,
		"space_ids":   opts.SpaceIDs,
	}
	if opts.ExpiresDays != nil {
		args["expires_days"] = *opts.ExpiresDays
	}
	var out types.TokenActionResult
	if err := c.call(ctx, "admin_update_token", args, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GCOptions selects what admin_gc_notes touches. SpaceID "" scans every
// space; MaxAgeDays 0 uses the server default; Confirm false only
// scans; DeleteOnly skips the consolidation step.
type GCOptions struct {
	SpaceID    string
	MaxAgeDays int
	Confirm    bool
	DeleteOnly bool
}

// GCNotes scans for or collects notes older than the age threshold.
func (c *Client) GCNotes(ctx context.Context, opts GCOptions) (*types.GCResult, error) {
	var out types.GCResult
	err := c.call(ctx, "admin_gc_notes", map[string]any{
		"space_id":     opts.SpaceID,
		"max_age_days": opts.MaxAgeDays,
		"confirm":      opts.Confirm,
		"delete_only":  opts.DeleteOnly,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
