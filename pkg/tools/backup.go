package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/chrlesur/live-memory/pkg/auth"
	"github.com/chrlesur/live-memory/pkg/types"
)

func (r *Registry) registerBackup(s *Services) {
	r.add(&Tool{
		Name:        "backup_create",
		Description: "Sauvegarde l'espace complet sous _backups/ (rétention appliquée).",
		Schema: objectSchema([]string{"space_id"}, map[string]any{
			"space_id":    stringProp("Espace à sauvegarder"),
			"description": stringProp("Description de la sauvegarde"),
		}),
		Requires: Requirement{Permission: types.PermissionWrite, SpaceAccess: true},
		Handler: func(ctx context.Context, id *auth.Identity, args json.RawMessage) (any, error) {
			var in struct {
				SpaceID     string `json:"space_id"`
				Description string `json:"description"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			return s.Backups.Create(ctx, in.SpaceID, in.Description, id.Name)
		},
	})

	r.add(&Tool{
		Name:        "backup_list",
		Description: "Liste les sauvegardes, d'un espace ou de tous.",
		Schema: objectSchema(nil, map[string]any{
			"space_id": stringProp("Limite la liste à cet espace"),
		}),
		Requires: Requirement{Permission: types.PermissionRead},
		Handler: func(ctx context.Context, id *auth.Identity, args json.RawMessage) (any, error) {
			var in struct {
				SpaceID string `json:"space_id"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			if in.SpaceID != "" {
				if err := auth.CheckAccess(id, in.SpaceID); err != nil {
					return nil, err
				}
			}
			return s.Backups.List(ctx, in.SpaceID)
		},
	})

	r.add(&Tool{
		Name:        "backup_download",
		Description: "Télécharge une sauvegarde en archive tar.gz (base64).",
		Schema: objectSchema([]string{"backup_id"}, map[string]any{
			"backup_id": stringProp("Identifiant de la sauvegarde (espace/horodatage)"),
		}),
		Requires: Requirement{Permission: types.PermissionRead},
		Handler: func(ctx context.Context, id *auth.Identity, args json.RawMessage) (any, error) {
			var in struct {
				BackupID string `json:"backup_id"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			// The space scope lives in the backup id itself.
			if spaceID, _, ok := strings.Cut(in.BackupID, "/"); ok && spaceID != "" {
				if err := auth.CheckAccess(id, spaceID); err != nil {
					return nil, err
				}
			}
			return s.Backups.Download(ctx, in.BackupID)
		},
	})

	r.add(&Tool{
		Name:        "backup_restore",
		Description: "Restaure une sauvegarde vers son espace d'origine (espace absent requis).",
		Schema: objectSchema([]string{"backup_id", "confirm"}, map[string]any{
			"backup_id": stringProp("Identifiant de la sauvegarde"),
			"confirm":   boolProp("Doit valoir true pour confirmer la restauration"),
		}),
		Requires: Requirement{Permission: types.PermissionAdmin},
		Handler: func(ctx context.Context, _ *auth.Identity, args json.RawMessage) (any, error) {
			var in struct {
				BackupID string `json:"backup_id"`
				Confirm  bool   `json:"confirm"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			return s.Backups.Restore(ctx, in.BackupID, in.Confirm)
		},
	})

	r.add(&Tool{
		Name:        "backup_delete",
		Description: "Supprime définitivement une sauvegarde.",
		Schema: objectSchema([]string{"backup_id", "confirm"}, map[string]any{
			"backup_id": stringProp("Identifiant de la sauvegarde"),
			"confirm":   boolProp("Doit valoir true pour confirmer la suppression"),
		}),
		Requires: Requirement{Permission: types.PermissionAdmin},
		Handler: func(ctx context.Context, _ *auth.Identity, args json.RawMessage) (any, error) {
			var in struct {
				BackupID string `json:"backup_id"`
				Confirm  bool   `json:"confirm"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			return s.Backups.Delete(ctx, in.BackupID, in.Confirm)
		},
	})
}
