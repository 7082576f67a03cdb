package tools

import (
	"context"
	"encoding/json"

	"github.com/chrlesur/live-memory/pkg/auth"
	"github.com/chrlesur/live-memory/pkg/types"
)

func (r *Registry) registerSpace(s *Services) {
	r.add(&Tool{
		Name:        "space_create",
		Description: "Crée un espace mémoire avec ses règles de consolidation.",
		Schema: objectSchema([]string{"space_id", "rules"}, map[string]any{
			"space_id":    stringProp("Identifiant unique (alphanumérique, tirets, max 64 caractères)"),
			"rules":       stringProp("Règles de consolidation en Markdown (structure de la bank)"),
			"description": stringProp("Description courte de l'espace"),
			"created_by":  stringProp("Créateur (défaut : nom du token)"),
		}),
		Requires: Requirement{Permission: types.PermissionWrite},
		Handler: func(ctx context.Context, id *auth.Identity, args json.RawMessage) (any, error) {
			var in struct {
				SpaceID     string `json:"space_id"`
				Rules       string `json:"rules"`
				Description string `json:"description"`
				CreatedBy   string `json:"created_by"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			if in.CreatedBy == "" {
				in.CreatedBy = id.Name
			}
			return s.Spaces.Create(ctx, in.SpaceID, in.Description, in.Rules, in.CreatedBy)
		},
	})

	r.add(&Tool{
		Name:        "space_list",
		Description: "Liste les espaces mémoire accessibles par le token courant.",
		Schema:      objectSchema(nil, map[string]any{}),
		Requires:    Requirement{Permission: types.PermissionRead},
		Handler: func(ctx context.Context, id *auth.Identity, _ json.RawMessage) (any, error) {
			return s.Spaces.List(ctx, id)
		},
	})

	r.add(&Tool{
		Name:        "space_info",
		Description: "Détails d'un espace : métadonnées, compteurs, consolidations.",
		Schema: objectSchema([]string{"space_id"}, map[string]any{
			"space_id": stringProp("Identifiant de l'espace"),
		}),
		Requires: Requirement{Permission: types.PermissionRead, SpaceAccess: true},
		Handler: func(ctx context.Context, _ *auth.Identity, args json.RawMessage) (any, error) {
			var in struct {
				SpaceID string `json:"space_id"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			return s.Spaces.Info(ctx, in.SpaceID)
		},
	})

	r.add(&Tool{
		Name:        "space_rules",
		Description: "Lit les règles de consolidation d'un espace.",
		Schema: objectSchema([]string{"space_id"}, map[string]any{
			"space_id": stringProp("Identifiant de l'espace"),
		}),
		Requires: Requirement{Permission: types.PermissionRead, SpaceAccess: true},
		Handler: func(ctx context.Context, _ *auth.Identity, args json.RawMessage) (any, error) {
			var in struct {
				SpaceID string `json:"space_id"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			return s.Spaces.Rules(ctx, in.SpaceID)
		},
	})

	r.add(&Tool{
		Name:        "space_summary",
		Description: "Résumé d'un espace : synthèse, notes récentes, fichiers bank.",
		Schema: objectSchema([]string{"space_id"}, map[string]any{
			"space_id": stringProp("Identifiant de l'espace"),
		}),
		Requires: Requirement{Permission: types.PermissionRead, SpaceAccess: true},
		Handler: func(ctx context.Context, _ *auth.Identity, args json.RawMessage) (any, error) {
			var in struct {
				SpaceID string `json:"space_id"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			return s.Spaces.Summary(ctx, in.SpaceID)
		},
	})

	r.add(&Tool{
		Name:        "space_export",
		Description: "Exporte un espace complet en archive tar.gz (base64).",
		Schema: objectSchema([]string{"space_id"}, map[string]any{
			"space_id": stringProp("Identifiant de l'espace"),
		}),
		Requires: Requirement{Permission: types.PermissionRead, SpaceAccess: true},
		Handler: func(ctx context.Context, _ *auth.Identity, args json.RawMessage) (any, error) {
			var in struct {
				SpaceID string `json:"space_id"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			return s.Spaces.Export(ctx, in.SpaceID)
		},
	})

	r.add(&Tool{
		Name:        "space_delete",
		Description: "Supprime un espace et tout son contenu (irréversible).",
		Schema: objectSchema([]string{"space_id", "confirm"}, map[string]any{
			"space_id": stringProp("Identifiant de l'espace"),
			"confirm":  boolProp("Doit valoir true pour confirmer la suppression"),
		}),
		Requires: Requirement{Permission: types.PermissionAdmin, SpaceAccess: true},
		Handler: func(ctx context.Context, _ *auth.Identity, args json.RawMessage) (any, error) {
			var in struct {
				SpaceID string `json:"space_id"`
				Confirm bool   `json:"confirm"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			return s.Spaces.Delete(ctx, in.SpaceID, in.Confirm)
		},
	})
}
