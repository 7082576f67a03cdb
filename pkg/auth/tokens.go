package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/chrlesur/live-memory/pkg/events"
	"github.com/chrlesur/live-memory/pkg/locks"
	"github.com/chrlesur/live-memory/pkg/log"
	"github.com/chrlesur/live-memory/pkg/storage"
	"github.com/chrlesur/live-memory/pkg/types"
)

const (
	tokenPrefix = "lm_"
	hashPrefix  = "sha256:"

	// displayHashChars bounds the hash fragment shown in listings.
	displayHashChars = 20
)

// ErrUnauthorized is returned by Authenticate when no live identity matches
// the presented token. The API layer maps it to HTTP 401.
var ErrUnauthorized = errors.New("invalid or expired token")

// Service authenticates bearer tokens and manages the registry persisted
// at _system/tokens.json. All registry mutations serialize on the shared
// tokens lock so concurrent read-modify-write cycles never lose entries.
type Service struct {
	store        storage.Store
	locks        *locks.Registry
	broker       *events.Broker
	bootstrapKey string
	logger       zerolog.Logger
}

// NewService creates the token service. An empty bootstrapKey disables the
// bootstrap identity entirely.
func NewService(store storage.Store, lr *locks.Registry, broker *events.Broker, bootstrapKey string) *Service {
	return &Service{
		store:        store,
		locks:        lr,
		broker:       broker,
		bootstrapKey: bootstrapKey,
		logger:       log.WithComponent("auth"),
	}
}

// HashToken returns the persisted form of a clear bearer token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hashPrefix + hex.EncodeToString(sum[:])
}

// DisplayHash truncates a stored hash for listings and logs.
func DisplayHash(hash string) string {
	if len(hash) <= displayHashChars {
		return hash
	}
	return hash[:displayHashChars] + "..."
}

// Authenticate resolves a clear bearer token to an identity. The bootstrap
// key, when configured, yields a synthetic admin with universal scope.
func (s *Service) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}

	if s.bootstrapKey != "" && token == s.bootstrapKey {
		return &Identity{
			Name:        "admin",
			Permissions: []types.Permission{types.PermissionRead, types.PermissionWrite, types.PermissionAdmin},
			Bootstrap:   true,
		}, nil
	}

	hash := HashToken(token)
	s.locks.Tokens().Lock()
	file, err := s.loadTokens(ctx)
	s.locks.Tokens().Unlock()
	if err != nil {
		return nil, err
	}

	for i := range file.Tokens {
		rec := &file.Tokens[i]
		if rec.Hash != hash {
			continue
		}
		if rec.Revoked || rec.Expired(time.Now().UTC()) {
			return nil, ErrUnauthorized
		}
		s.touchLastUsed(hash)
		return &Identity{
			Name:        rec.Name,
			Permissions: rec.Permissions,
			SpaceIDs:    rec.SpaceIDs,
			TokenHash:   hash,
		}, nil
	}
	return nil, ErrUnauthorized
}

// CreateToken mints a new bearer token and appends its record to the
// registry. The clear token is returned exactly once and never stored.
func (s *Service) CreateToken(ctx context.Context, name string, permissions []types.Permission, spaceIDs []string, expiresDays int) (string, *types.TokenRecord, error) {
	if err := types.ValidateAgent(name); err != nil {
		return "", nil, fmt.Errorf("invalid token name: %w", err)
	}
	if len(permissions) == 0 {
		return "", nil, fmt.Errorf("%w: at least one permission required", types.ErrInvalid)
	}
	for _, p := range permissions {
		if !types.ValidPermission(p) {
			return "", nil, fmt.Errorf("%w: unknown permission %q", types.ErrInvalid, p)
		}
	}
	for _, spaceID := range spaceIDs {
		if err := types.ValidateSpaceID(spaceID); err != nil {
			return "", nil, err
		}
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("failed to generate token: %w", err)
	}
	token := tokenPrefix + base64.RawURLEncoding.EncodeToString(raw)

	rec := types.TokenRecord{
		Hash:        HashToken(token),
		Name:        name,
		Permissions: permissions,
		SpaceIDs:    spaceIDs,
		CreatedAt:   time.Now().UTC(),
	}
	if expiresDays > 0 {
		expires := rec.CreatedAt.AddDate(0, 0, expiresDays)
		rec.ExpiresAt = &expires
	}

	s.locks.Tokens().Lock()
	defer s.locks.Tokens().Unlock()

	file, err := s.loadTokens(ctx)
	if err != nil {
		return "", nil, err
	}
	file.Tokens = append(file.Tokens, rec)
	if err := s.saveTokens(ctx, file); err != nil {
		return "", nil, err
	}

	s.broker.Publish(&events.Event{
		Type:    events.TokenCreated,
		Agent:   name,
		Message: fmt.Sprintf("token %s created", name),
	})
	s.logger.Info().Str("name", name).Str("hash", DisplayHash(rec.Hash)).Msg("Token created")
	return token, &rec, nil
}

// ListTokens returns every registry record, revoked ones included.
func (s *Service) ListTokens(ctx context.Context) ([]types.TokenRecord, error) {
	s.locks.Tokens().Lock()
	file, err := s.loadTokens(ctx)
	s.locks.Tokens().Unlock()
	if err != nil {
		return nil, err
	}
	return file.Tokens, nil
}

// RevokeToken marks the matching record revoked. The selector is either a
// token name or a stored hash prefix (the truncated form from listings is
// accepted). Revoking an already revoked token succeeds.
func (s *Service) RevokeToken(ctx context.Context, selector string) (*types.TokenRecord, error) {
	s.locks.Tokens().Lock()
	defer s.locks.Tokens().Unlock()

	file, err := s.loadTokens(ctx)
	if err != nil {
		return nil, err
	}
	rec := findToken(file, selector)
	if rec == nil {
		return nil, fmt.Errorf("%w: token %q", types.ErrNotFound, selector)
	}

	rec.Revoked = true
	if err := s.saveTokens(ctx, file); err != nil {
		return nil, err
	}

	s.broker.Publish(&events.Event{
		Type:    events.TokenRevoked,
		Agent:   rec.Name,
		Message: fmt.Sprintf("token %s revoked", rec.Name),
	})
	s.logger.Info().Str("name", rec.Name).Str("hash", DisplayHash(rec.Hash)).Msg("Token revoked")
	return rec, nil
}

// TokenUpdate carries the fields UpdateToken should replace. Nil fields
// keep the current value; an empty SpaceIDs slice clears the scope and an
// ExpiresDays of zero clears the expiry.
type TokenUpdate struct {
	Permissions []types.Permission
	SpaceIDs    *[]string
	ExpiresDays *int
}

// UpdateToken rewrites the mutable fields of the matching record.
func (s *Service) UpdateToken(ctx context.Context, selector string, update TokenUpdate) (*types.TokenRecord, error) {
	if update.Permissions != nil {
		for _, p := range update.Permissions {
			if !types.ValidPermission(p) {
				return nil, fmt.Errorf("%w: unknown permission %q", types.ErrInvalid, p)
			}
		}
	}
	if update.SpaceIDs != nil {
		for _, spaceID := range *update.SpaceIDs {
			if err := types.ValidateSpaceID(spaceID); err != nil {
				return nil, err
			}
		}
	}

	s.locks.Tokens().Lock()
	defer s.locks.Tokens().Unlock()

	file, err := s.loadTokens(ctx)
	if err != nil {
		return nil, err
	}
	rec := findToken(file, selector)
	if rec == nil {
		return nil, fmt.Errorf("%w: token %q", types.ErrNotFound, selector)
	}

	if update.Permissions != nil {
		rec.Permissions = update.Permissions
	}
	if update.SpaceIDs != nil {
		rec.SpaceIDs = *update.SpaceIDs
	}
	if update.ExpiresDays != nil {
		if *update.ExpiresDays > 0 {
			expires := time.Now().UTC().AddDate(0, 0, *update.ExpiresDays)
			rec.ExpiresAt = &expires
		} else {
			rec.ExpiresAt = nil
		}
	}

	if err := s.saveTokens(ctx, file); err != nil {
		return nil, err
	}

	s.logger.Info().Str("name", rec.Name).Str("hash", DisplayHash(rec.Hash)).Msg("Token updated")
	return rec, nil
}

// findToken matches by exact name first, then by hash prefix. Trailing dots
// from the truncated display form are ignored.
func findToken(file *types.TokensFile, selector string) *types.TokenRecord {
	if selector == "" {
		return nil
	}
	for i := range file.Tokens {
		if file.Tokens[i].Name == selector {
			return &file.Tokens[i]
		}
	}
	prefix := strings.TrimRight(selector, ".")
	if prefix == "" {
		return nil
	}
	for i := range file.Tokens {
		if strings.HasPrefix(file.Tokens[i].Hash, prefix) {
			return &file.Tokens[i]
		}
	}
	return nil
}

func (s *Service) loadTokens(ctx context.Context) (*types.TokensFile, error) {
	file := &types.TokensFile{Version: 1}
	found, err := storage.GetJSON(ctx, s.store, types.TokensKey, file)
	if err != nil {
		return nil, fmt.Errorf("failed to load token registry: %w", err)
	}
	if !found {
		return &types.TokensFile{Version: 1}, nil
	}
	return file, nil
}

func (s *Service) saveTokens(ctx context.Context, file *types.TokensFile) error {
	if err := storage.PutJSON(ctx, s.store, types.TokensKey, file); err != nil {
		return fmt.Errorf("failed to save token registry: %w", err)
	}
	return nil
}

// touchLastUsed records token usage without delaying the request. The
// update is best-effort; a lost write only skews last_used_at.
func (s *Service) touchLastUsed(hash string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.markUsed(ctx, hash, time.Now().UTC()); err != nil {
			s.logger.Warn().Err(err).Str("hash", DisplayHash(hash)).Msg("Failed to update last_used_at")
		}
	}()
}

func (s *Service) markUsed(ctx context.Context, hash string, now time.Time) error {
	s.locks.Tokens().Lock()
	defer s.locks.Tokens().Unlock()

	file, err := s.loadTokens(ctx)
	if err != nil {
		return err
	}
	for i := range file.Tokens {
		if file.Tokens[i].Hash == hash {
			file.Tokens[i].LastUsedAt = &now
			return s.saveTokens(ctx, file)
		}
	}
	return nil
}
