package framework

import (
	"context"

	"github.com/chrlesur/live-memory/pkg/client"
	"github.com/chrlesur/live-memory/pkg/types"
)

// Client wraps the typed client with fail-fast helpers. The embedded
// client keeps the full tool API available to tests.
type Client struct {
	*client.Client
	t TestingT
}

// MustCreateSpace creates a space and fails the test unless the server
// reports ok.
func (c *Client) MustCreateSpace(ctx context.Context, spaceID, description, rules string) *types.SpaceCreateResult {
	c.t.Helper()
	res, err := c.SpaceCreate(ctx, spaceID, description, rules)
	if err != nil {
		c.t.Fatalf("space_create %s: %v", spaceID, err)
	}
	if res.Status != types.StatusCreated {
		c.t.Fatalf("space_create %s: status %s (%s)", spaceID, res.Status, res.Message)
	}
	return res
}

// MustNote appends a note and fails the test unless the server reports
// ok.
func (c *Client) MustNote(ctx context.Context, spaceID, content string, opts client.NoteOptions) *types.NoteWriteResult {
	c.t.Helper()
	res, err := c.LiveNote(ctx, spaceID, content, opts)
	if err != nil {
		c.t.Fatalf("live_note in %s: %v", spaceID, err)
	}
	if res.Status != types.StatusCreated {
		c.t.Fatalf("live_note in %s: status %s (%s)", spaceID, res.Status, res.Message)
	}
	return res
}

// MustBackup snapshots a space and fails the test unless the server
// reports ok.
func (c *Client) MustBackup(ctx context.Context, spaceID, description string) *types.BackupCreateResult {
	c.t.Helper()
	res, err := c.BackupCreate(ctx, spaceID, description)
	if err != nil {
		c.t.Fatalf("backup_create %s: %v", spaceID, err)
	}
	if res.Status != types.StatusCreated {
		c.t.Fatalf("backup_create %s: status %s (%s)", spaceID, res.Status, res.Message)
	}
	return res
}

// NoteTotal reports the space's note count, or -1 on any failure.
// Waiters poll it.
func (c *Client) NoteTotal(ctx context.Context, spaceID string) int {
	res, err := c.LiveRead(ctx, spaceID, client.ReadOptions{Limit: 1})
	if err != nil || res.Status != types.StatusOK {
		return -1
	}
	return res.Total
}

// BackupTotal reports how many backups exist for the space, or -1 on
// any failure.
func (c *Client) BackupTotal(ctx context.Context, spaceID string) int {
	res, err := c.BackupList(ctx, spaceID)
	if err != nil || res.Status != types.StatusOK {
		return -1
	}
	return res.Count
}

// BankFilenames lists the bank inventory, nil on any failure.
func (c *Client) BankFilenames(ctx context.Context, spaceID string) []string {
	res, err := c.BankList(ctx, spaceID)
	if err != nil || res.Status != types.StatusOK {
		return nil
	}
	names := make([]string, 0, len(res.Files))
	for _, f := range res.Files {
		names = append(names, f.Filename)
	}
	return names
}

// SpaceExists reports whether space_info answers ok.
func (c *Client) SpaceExists(ctx context.Context, spaceID string) bool {
	res, err := c.SpaceInfo(ctx, spaceID)
	return err == nil && res.Status == types.StatusOK
}
