package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/chrlesur/live-memory/pkg/events"
	"github.com/chrlesur/live-memory/pkg/locks"
	"github.com/chrlesur/live-memory/pkg/storage"
	"github.com/chrlesur/live-memory/pkg/types"
)

func newTestService(t *testing.T, bootstrapKey string) (*Service, storage.Store) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)
	return NewService(store, locks.NewRegistry(), broker, bootstrapKey), store
}

func TestHashToken(t *testing.T) {
	hash := HashToken("lm_example")

	if !strings.HasPrefix(hash, "sha256:") {
		t.Errorf("HashToken() = %s, want sha256: prefix", hash)
	}
	if len(hash) != len("sha256:")+64 {
		t.Errorf("HashToken() length = %d, want %d", len(hash), len("sha256:")+64)
	}
	if hash != HashToken("lm_example") {
		t.Error("HashToken() not deterministic")
	}
	if hash == HashToken("lm_other") {
		t.Error("HashToken() collides for different tokens")
	}
}

func TestDisplayHash(t *testing.T) {
	hash := HashToken("lm_example")
	display := DisplayHash(hash)

	if len(display) != 23 {
		t.Errorf("DisplayHash() length = %d, want 23", len(display))
	}
	if !strings.HasSuffix(display, "...") {
		t.Errorf("DisplayHash() = %s, want ... suffix", display)
	}
	if DisplayHash("short") != "short" {
		t.Errorf("DisplayHash(short) = %s, want unchanged", DisplayHash("short"))
	}
}

func TestCreateToken(t *testing.T) {
	svc, store := newTestService(t, "")
	ctx := context.Background()

	token, rec, err := svc.CreateToken(ctx, "claude", []types.Permission{types.PermissionRead, types.PermissionWrite}, []string{"alpha"}, 0)
	if err != nil {
		t.Fatalf("CreateToken() error = %v", err)
	}

	if !strings.HasPrefix(token, "lm_") {
		t.Errorf("token = %s, want lm_ prefix", token)
	}
	if len(token) != 3+43 {
		t.Errorf("token length = %d, want 46", len(token))
	}
	if rec.Hash != HashToken(token) {
		t.Error("record hash does not match token hash")
	}
	if rec.ExpiresAt != nil {
		t.Error("ExpiresAt set without expires_days")
	}
	if rec.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	// The registry must never contain the clear token
	raw, found, err := store.Get(ctx, types.TokensKey)
	if err != nil || !found {
		t.Fatalf("Get(tokens.json) found = %v, err = %v", found, err)
	}
	if strings.Contains(string(raw), token) {
		t.Error("clear token persisted in registry")
	}
	if !strings.Contains(string(raw), rec.Hash) {
		t.Error("token hash missing from registry")
	}
}

func TestCreateToken_Expiry(t *testing.T) {
	svc, _ := newTestService(t, "")

	_, rec, err := svc.CreateToken(context.Background(), "short-lived", []types.Permission{types.PermissionRead}, nil, 30)
	if err != nil {
		t.Fatalf("CreateToken() error = %v", err)
	}
	if rec.ExpiresAt == nil {
		t.Fatal("ExpiresAt = nil, want ~30 days out")
	}

	days := time.Until(*rec.ExpiresAt).Hours() / 24
	if days < 29 || days > 31 {
		t.Errorf("expiry %.1f days out, want ~30", days)
	}
}

func TestCreateToken_Validation(t *testing.T) {
	svc, _ := newTestService(t, "")
	ctx := context.Background()
	read := []types.Permission{types.PermissionRead}

	if _, _, err := svc.CreateToken(ctx, "bad name!", read, nil, 0); err == nil {
		t.Error("CreateToken() with invalid name should return error")
	}
	if _, _, err := svc.CreateToken(ctx, "claude", nil, nil, 0); err == nil {
		t.Error("CreateToken() with no permissions should return error")
	}
	if _, _, err := svc.CreateToken(ctx, "claude", []types.Permission{"root"}, nil, 0); err == nil {
		t.Error("CreateToken() with unknown permission should return error")
	}
	if _, _, err := svc.CreateToken(ctx, "claude", read, []string{"bad space"}, 0); err == nil {
		t.Error("CreateToken() with invalid space id should return error")
	}
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newTestService(t, "")
	ctx := context.Background()

	token, _, err := svc.CreateToken(ctx, "claude", []types.Permission{types.PermissionRead, types.PermissionWrite}, []string{"alpha"}, 0)
	if err != nil {
		t.Fatalf("CreateToken() error = %v", err)
	}

	id, err := svc.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if id.Name != "claude" {
		t.Errorf("identity name = %s, want claude", id.Name)
	}
	if id.Bootstrap {
		t.Error("Bootstrap = true for registry token, want false")
	}
	if !id.HasPermission(types.PermissionWrite) || id.IsAdmin() {
		t.Errorf("identity permissions = %v, want read+write only", id.Permissions)
	}
	if !id.CanAccess("alpha") || id.CanAccess("beta") {
		t.Errorf("identity scopes = %v, want alpha only", id.SpaceIDs)
	}
}

func TestAuthenticate_Unknown(t *testing.T) {
	svc, _ := newTestService(t, "")

	if _, err := svc.Authenticate(context.Background(), "lm_never_issued"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Authenticate() error = %v, want ErrUnauthorized", err)
	}
	if _, err := svc.Authenticate(context.Background(), ""); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Authenticate(empty) error = %v, want ErrUnauthorized", err)
	}
}

func TestAuthenticate_Bootstrap(t *testing.T) {
	svc, _ := newTestService(t, "super-secret")

	id, err := svc.Authenticate(context.Background(), "super-secret")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if !id.Bootstrap {
		t.Error("Bootstrap = false, want true")
	}
	if id.Name != "admin" {
		t.Errorf("identity name = %s, want admin", id.Name)
	}
	if !id.IsAdmin() {
		t.Error("bootstrap identity lacks admin permission")
	}
	if !id.CanAccess("any-space") {
		t.Error("bootstrap identity not universal")
	}
}

func TestAuthenticate_BootstrapDisabled(t *testing.T) {
	svc, _ := newTestService(t, "")

	// With no bootstrap key configured, the empty-key identity must not exist
	if _, err := svc.Authenticate(context.Background(), "super-secret"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Authenticate() error = %v, want ErrUnauthorized", err)
	}
}

func TestAuthenticate_Revoked(t *testing.T) {
	svc, _ := newTestService(t, "")
	ctx := context.Background()

	token, _, err := svc.CreateToken(ctx, "claude", []types.Permission{types.PermissionRead}, nil, 0)
	if err != nil {
		t.Fatalf("CreateToken() error = %v", err)
	}
	if _, err := svc.RevokeToken(ctx, "claude"); err != nil {
		t.Fatalf("RevokeToken() error = %v", err)
	}

	if _, err := svc.Authenticate(ctx, token); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Authenticate() after revoke error = %v, want ErrUnauthorized", err)
	}
}

func TestAuthenticate_Expired(t *testing.T) {
	svc, store := newTestService(t, "")
	ctx := context.Background()

	// Plant a record whose expiry is already in the past
	past := time.Now().UTC().Add(-time.Hour)
	file := types.TokensFile{
		Version: 1,
		Tokens: []types.TokenRecord{{
			Hash:        HashToken("lm_expired"),
			Name:        "stale",
			Permissions: []types.Permission{types.PermissionRead},
			CreatedAt:   past.AddDate(0, 0, -30),
			ExpiresAt:   &past,
		}},
	}
	if err := storage.PutJSON(ctx, store, types.TokensKey, file); err != nil {
		t.Fatalf("PutJSON() error = %v", err)
	}

	if _, err := svc.Authenticate(ctx, "lm_expired"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Authenticate() on expired token error = %v, want ErrUnauthorized", err)
	}
}

func TestRevokeToken_ByHashPrefix(t *testing.T) {
	svc, _ := newTestService(t, "")
	ctx := context.Background()

	_, rec, err := svc.CreateToken(ctx, "claude", []types.Permission{types.PermissionRead}, nil, 0)
	if err != nil {
		t.Fatalf("CreateToken() error = %v", err)
	}

	// The truncated display form from list_tokens must be accepted
	revoked, err := svc.RevokeToken(ctx, DisplayHash(rec.Hash))
	if err != nil {
		t.Fatalf("RevokeToken() error = %v", err)
	}
	if revoked.Name != "claude" {
		t.Errorf("revoked name = %s, want claude", revoked.Name)
	}
	if !revoked.Revoked {
		t.Error("Revoked = false after revoke")
	}
}

func TestRevokeToken_NotFound(t *testing.T) {
	svc, _ := newTestService(t, "")

	_, err := svc.RevokeToken(context.Background(), "ghost")
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("RevokeToken() error = %v, want ErrNotFound", err)
	}
}

func TestUpdateToken(t *testing.T) {
	svc, _ := newTestService(t, "")
	ctx := context.Background()

	_, _, err := svc.CreateToken(ctx, "claude", []types.Permission{types.PermissionRead}, []string{"alpha"}, 0)
	if err != nil {
		t.Fatalf("CreateToken() error = %v", err)
	}

	// Widen permissions, clear the scope, add an expiry
	scope := []string{}
	days := 7
	rec, err := svc.UpdateToken(ctx, "claude", TokenUpdate{
		Permissions: []types.Permission{types.PermissionRead, types.PermissionWrite},
		SpaceIDs:    &scope,
		ExpiresDays: &days,
	})
	if err != nil {
		t.Fatalf("UpdateToken() error = %v", err)
	}
	if len(rec.Permissions) != 2 {
		t.Errorf("permissions = %v, want read+write", rec.Permissions)
	}
	if len(rec.SpaceIDs) != 0 {
		t.Errorf("space_ids = %v, want empty (universal)", rec.SpaceIDs)
	}
	if rec.ExpiresAt == nil {
		t.Error("ExpiresAt = nil after update, want set")
	}

	// Clear the expiry, keep everything else
	zero := 0
	rec, err = svc.UpdateToken(ctx, "claude", TokenUpdate{ExpiresDays: &zero})
	if err != nil {
		t.Fatalf("UpdateToken() error = %v", err)
	}
	if rec.ExpiresAt != nil {
		t.Error("ExpiresAt still set after clearing")
	}
	if len(rec.Permissions) != 2 {
		t.Errorf("permissions = %v changed by unrelated update", rec.Permissions)
	}
}

func TestUpdateToken_NotFound(t *testing.T) {
	svc, _ := newTestService(t, "")

	_, err := svc.UpdateToken(context.Background(), "ghost", TokenUpdate{})
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("UpdateToken() error = %v, want ErrNotFound", err)
	}
}

func TestListTokens(t *testing.T) {
	svc, _ := newTestService(t, "")
	ctx := context.Background()

	tokens, err := svc.ListTokens(ctx)
	if err != nil {
		t.Fatalf("ListTokens() error = %v", err)
	}
	if len(tokens) != 0 {
		t.Errorf("ListTokens() on empty registry = %d entries, want 0", len(tokens))
	}

	for _, name := range []string{"claude", "gemini"} {
		if _, _, err := svc.CreateToken(ctx, name, []types.Permission{types.PermissionRead}, nil, 0); err != nil {
			t.Fatalf("CreateToken(%s) error = %v", name, err)
		}
	}

	tokens, err = svc.ListTokens(ctx)
	if err != nil {
		t.Fatalf("ListTokens() error = %v", err)
	}
	if len(tokens) != 2 {
		t.Errorf("ListTokens() = %d entries, want 2", len(tokens))
	}
}

func TestMarkUsed(t *testing.T) {
	svc, _ := newTestService(t, "")
	ctx := context.Background()

	_, rec, err := svc.CreateToken(ctx, "claude", []types.Permission{types.PermissionRead}, nil, 0)
	if err != nil {
		t.Fatalf("CreateToken() error = %v", err)
	}

	now := time.Now().UTC()
	if err := svc.markUsed(ctx, rec.Hash, now); err != nil {
		t.Fatalf("markUsed() error = %v", err)
	}

	tokens, err := svc.ListTokens(ctx)
	if err != nil {
		t.Fatalf("ListTokens() error = %v", err)
	}
	if tokens[0].LastUsedAt == nil || !tokens[0].LastUsedAt.Equal(now) {
		t.Errorf("LastUsedAt = %v, want %v", tokens[0].LastUsedAt, now)
	}
}
