package tools

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/chrlesur/live-memory/pkg/auth"
	"github.com/chrlesur/live-memory/pkg/types"
)

func (r *Registry) registerAdmin(s *Services) {
	r.add(&Tool{
		Name:        "admin_create_token",
		Description: "Crée un token d'authentification (le clair n'est affiché qu'une seule fois).",
		Schema: objectSchema([]string{"name", "permissions"}, map[string]any{
			"name":         stringProp("Nom descriptif (ex : agent-cline)"),
			"permissions":  stringProp("Permissions séparées par des virgules : read, write, admin"),
			"space_ids":    stringProp("Espaces autorisés séparés par des virgules (vide = tous)"),
			"expires_days": intProp("Durée de validité en jours (0 = sans expiration)"),
		}),
		Requires: Requirement{Permission: types.PermissionAdmin},
		Handler: func(ctx context.Context, _ *auth.Identity, args json.RawMessage) (any, error) {
			var in struct {
				Name        string `json:"name"`
				Permissions string `json:"permissions"`
				SpaceIDs    string `json:"space_ids"`
				ExpiresDays int    `json:"expires_days"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			token, rec, err := s.Tokens.CreateToken(ctx, in.Name,
				splitPermissions(in.Permissions), splitCSV(in.SpaceIDs), in.ExpiresDays)
			if err != nil {
				return nil, err
			}
			result := &types.TokenCreateResult{
				Envelope:    types.Envelope{Status: types.StatusCreated},
				Token:       token,
				Name:        rec.Name,
				Permissions: rec.Permissions,
				SpaceIDs:    rec.SpaceIDs,
			}
			if result.SpaceIDs == nil {
				result.SpaceIDs = []string{}
			}
			if rec.ExpiresAt != nil {
				result.ExpiresAt = rec.ExpiresAt.Format(time.RFC3339)
			}
			return result, nil
		},
	})

	r.add(&Tool{
		Name:        "admin_list_tokens",
		Description: "Liste les tokens : métadonnées seulement, hash tronqué.",
		Schema:      objectSchema(nil, map[string]any{}),
		Requires:    Requirement{Permission: types.PermissionAdmin},
		Handler: func(ctx context.Context, _ *auth.Identity, _ json.RawMessage) (any, error) {
			records, err := s.Tokens.ListTokens(ctx)
			if err != nil {
				return nil, err
			}
			result := &types.TokenListResult{
				Envelope: types.Envelope{Status: types.StatusOK},
				Tokens:   make([]types.TokenListEntry, 0, len(records)),
			}
			for _, rec := range records {
				entry := types.TokenListEntry{
					Hash:        auth.DisplayHash(rec.Hash),
					Name:        rec.Name,
					Permissions: rec.Permissions,
					SpaceIDs:    rec.SpaceIDs,
					CreatedAt:   rec.CreatedAt.Format(time.RFC3339),
					Revoked:     rec.Revoked,
				}
				if entry.SpaceIDs == nil {
					entry.SpaceIDs = []string{}
				}
				if rec.ExpiresAt != nil {
					entry.ExpiresAt = rec.ExpiresAt.Format(time.RFC3339)
				}
				if rec.LastUsedAt != nil {
					entry.LastUsedAt = rec.LastUsedAt.Format(time.RFC3339)
				}
				result.Tokens = append(result.Tokens, entry)
			}
			result.Count = len(result.Tokens)
			return result, nil
		},
	})

	r.add(&Tool{
		Name:        "admin_revoke_token",
		Description: "Révoque un token définitivement, par nom ou préfixe de hash.",
		Schema: objectSchema([]string{"token_ref"}, map[string]any{
			"token_ref": stringProp("Nom du token ou préfixe du hash affiché par admin_list_tokens"),
		}),
		Requires: Requirement{Permission: types.PermissionAdmin},
		Handler: func(ctx context.Context, _ *auth.Identity, args json.RawMessage) (any, error) {
			var in struct {
				TokenRef string `json:"token_ref"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			rec, err := s.Tokens.RevokeToken(ctx, in.TokenRef)
			if err != nil {
				return nil, err
			}
			return &types.TokenActionResult{
				Envelope: types.Envelope{Status: types.StatusOK, Message: "token revoked"},
				Name:     rec.Name,
				Hash:     auth.DisplayHash(rec.Hash),
			}, nil
		},
	})

	r.add(&Tool{
		Name:        "admin_update_token",
		Description: "Modifie les permissions, la portée ou l'expiration d'un token.",
		Schema: objectSchema([]string{"token_ref"}, map[string]any{
			"token_ref":    stringProp("Nom du token ou préfixe du hash"),
			"permissions":  stringProp("Nouvelles permissions séparées par des virgules (vide = inchangé)"),
			"space_ids":    stringProp("Nouveaux espaces séparés par des virgules (vide = inchangé)"),
			"expires_days": intProp("Nouvelle durée en jours, 0 retire l'expiration (absent = inchangé)"),
		}),
		Requires: Requirement{Permission: types.PermissionAdmin},
		Handler: func(ctx context.Context, _ *auth.Identity, args json.RawMessage) (any, error) {
			var in struct {
				TokenRef    string `json:"token_ref"`
				Permissions string `json:"permissions"`
				SpaceIDs    string `json:"space_ids"`
				ExpiresDays *int   `json:"expires_days"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			update := auth.TokenUpdate{ExpiresDays: in.ExpiresDays}
			if in.Permissions != "" {
				update.Permissions = splitPermissions(in.Permissions)
			}
			if in.SpaceIDs != "" {
				ids := splitCSV(in.SpaceIDs)
				update.SpaceIDs = &ids
			}
			rec, err := s.Tokens.UpdateToken(ctx, in.TokenRef, update)
			if err != nil {
				return nil, err
			}
			return &types.TokenActionResult{
				Envelope: types.Envelope{Status: types.StatusOK, Message: "token updated"},
				Name:     rec.Name,
				Hash:     auth.DisplayHash(rec.Hash),
			}, nil
		},
	})

	r.add(&Tool{
		Name:        "admin_gc_notes",
		Description: "Collecte les notes anciennes : scan seul, ou consolidation/purge avec confirm.",
		Schema: objectSchema(nil, map[string]any{
			"space_id":     stringProp("Limite la collecte à cet espace (vide = tous)"),
			"max_age_days": intProp("Âge minimal des notes en jours (défaut 7)"),
			"confirm":      boolProp("false = rapport seul ; true = agit sur les notes trouvées"),
			"delete_only":  boolProp("Avec confirm : supprime les notes sans les consolider"),
		}),
		Requires: Requirement{Permission: types.PermissionAdmin},
		Handler: func(ctx context.Context, _ *auth.Identity, args json.RawMessage) (any, error) {
			var in struct {
				SpaceID    string `json:"space_id"`
				MaxAgeDays int    `json:"max_age_days"`
				Confirm    bool   `json:"confirm"`
				DeleteOnly bool   `json:"delete_only"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			if in.MaxAgeDays <= 0 {
				in.MaxAgeDays = s.Config.GCMaxAgeDays
			}
			if !in.Confirm {
				return s.GC.Scan(ctx, in.SpaceID, in.MaxAgeDays)
			}
			return s.GC.Run(ctx, in.SpaceID, in.MaxAgeDays, in.DeleteOnly)
		},
	})
}

// splitCSV splits a comma-separated argument, trimming blanks.
func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitPermissions(raw string) []types.Permission {
	parts := splitCSV(raw)
	perms := make([]types.Permission, 0, len(parts))
	for _, p := range parts {
		perms = append(perms, types.Permission(p))
	}
	return perms
}
