package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/chrlesur/live-memory/pkg/auth"
	"github.com/chrlesur/live-memory/pkg/storage"
	"github.com/chrlesur/live-memory/pkg/types"
)

func (r *Registry) registerBank(s *Services) {
	r.add(&Tool{
		Name:        "bank_read",
		Description: "Lit un fichier de la Memory Bank.",
		Schema: objectSchema([]string{"space_id", "filename"}, map[string]any{
			"space_id": stringProp("Espace cible"),
			"filename": stringProp("Nom du fichier bank (ex : activeContext.md)"),
		}),
		Requires: Requirement{Permission: types.PermissionRead, SpaceAccess: true},
		Handler: func(ctx context.Context, _ *auth.Identity, args json.RawMessage) (any, error) {
			var in struct {
				SpaceID  string `json:"space_id"`
				Filename string `json:"filename"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			return bankRead(ctx, s.Store, in.SpaceID, in.Filename)
		},
	})

	r.add(&Tool{
		Name:        "bank_read_all",
		Description: "Lit toute la Memory Bank en une requête (démarrage d'agent).",
		Schema: objectSchema([]string{"space_id"}, map[string]any{
			"space_id": stringProp("Espace cible"),
		}),
		Requires: Requirement{Permission: types.PermissionRead, SpaceAccess: true},
		Handler: func(ctx context.Context, _ *auth.Identity, args json.RawMessage) (any, error) {
			var in struct {
				SpaceID string `json:"space_id"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			return bankReadAll(ctx, s.Store, in.SpaceID)
		},
	})

	r.add(&Tool{
		Name:        "bank_list",
		Description: "Liste les fichiers de la Memory Bank sans leur contenu.",
		Schema: objectSchema([]string{"space_id"}, map[string]any{
			"space_id": stringProp("Espace cible"),
		}),
		Requires: Requirement{Permission: types.PermissionRead, SpaceAccess: true},
		Handler: func(ctx context.Context, _ *auth.Identity, args json.RawMessage) (any, error) {
			var in struct {
				SpaceID string `json:"space_id"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			return bankList(ctx, s.Store, in.SpaceID)
		},
	})

	r.add(&Tool{
		Name:        "bank_consolidate",
		Description: "Déclenche la consolidation LLM : les notes live deviennent des fichiers bank.",
		Schema: objectSchema([]string{"space_id"}, map[string]any{
			"space_id": stringProp("Espace à consolider"),
			"agent":    stringProp("Limite la consolidation aux notes de cet agent (admin : vide = tous)"),
		}),
		Requires: Requirement{Permission: types.PermissionWrite, SpaceAccess: true},
		Handler: func(ctx context.Context, id *auth.Identity, args json.RawMessage) (any, error) {
			var in struct {
				SpaceID string `json:"space_id"`
				Agent   string `json:"agent"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			// Non-admin callers consolidate their own notes only; an empty
			// agent means every agent, which stays an admin operation.
			if !id.IsAdmin() {
				switch in.Agent {
				case "", id.Name:
					in.Agent = id.Name
				default:
					return nil, fmt.Errorf("%w: token %s cannot consolidate notes of agent %s",
						types.ErrForbidden, id.Name, in.Agent)
				}
			}
			return s.Consolidator.Consolidate(ctx, in.SpaceID, in.Agent)
		},
	})
}

func bankRead(ctx context.Context, store storage.Store, spaceID, filename string) (*types.BankReadResult, error) {
	if err := types.ValidateSpaceID(spaceID); err != nil {
		return nil, err
	}
	if err := types.ValidateBankFilename(filename); err != nil {
		return nil, err
	}

	data, found, err := store.Get(ctx, types.BankKey(spaceID, filename))
	if err != nil {
		return nil, err
	}
	if !found {
		return &types.BankReadResult{
			Envelope: types.Fail(types.StatusNotFound,
				fmt.Sprintf("file %s not found in space %s", filename, spaceID)),
			SpaceID:  spaceID,
			Filename: filename,
		}, nil
	}
	return &types.BankReadResult{
		Envelope: types.Envelope{Status: types.StatusOK},
		SpaceID:  spaceID,
		Filename: filename,
		Content:  string(data),
		Size:     len(data),
	}, nil
}

func bankReadAll(ctx context.Context, store storage.Store, spaceID string) (*types.BankReadAllResult, error) {
	if err := types.ValidateSpaceID(spaceID); err != nil {
		return nil, err
	}
	exists, err := store.Exists(ctx, types.MetaKey(spaceID))
	if err != nil {
		return nil, err
	}
	if !exists {
		return &types.BankReadAllResult{
			Envelope: types.Fail(types.StatusNotFound, fmt.Sprintf("space %s does not exist", spaceID)),
			SpaceID:  spaceID,
		}, nil
	}

	objects, err := storage.FetchAll(ctx, store, types.BankPrefix(spaceID), false)
	if err != nil {
		return nil, err
	}
	result := &types.BankReadAllResult{
		Envelope: types.Envelope{Status: types.StatusOK},
		SpaceID:  spaceID,
		Files:    make([]types.BankFile, 0, len(objects)),
	}
	for _, obj := range objects {
		result.Files = append(result.Files, types.BankFile{
			Filename: path.Base(obj.Key),
			Content:  string(obj.Content),
			Size:     len(obj.Content),
		})
		result.TotalSize += len(obj.Content)
	}
	result.Count = len(result.Files)
	return result, nil
}

func bankList(ctx context.Context, store storage.Store, spaceID string) (*types.BankListResult, error) {
	if err := types.ValidateSpaceID(spaceID); err != nil {
		return nil, err
	}
	exists, err := store.Exists(ctx, types.MetaKey(spaceID))
	if err != nil {
		return nil, err
	}
	if !exists {
		return &types.BankListResult{
			Envelope: types.Fail(types.StatusNotFound, fmt.Sprintf("space %s does not exist", spaceID)),
			SpaceID:  spaceID,
		}, nil
	}

	infos, err := store.List(ctx, types.BankPrefix(spaceID))
	if err != nil {
		return nil, err
	}
	result := &types.BankListResult{
		Envelope: types.Envelope{Status: types.StatusOK},
		SpaceID:  spaceID,
		Files:    []types.BankFile{},
	}
	for _, info := range infos {
		if storage.IsKeep(info.Key) {
			continue
		}
		result.Files = append(result.Files, types.BankFile{
			Filename: path.Base(info.Key),
			Size:     int(info.Size),
		})
	}
	result.Count = len(result.Files)
	return result, nil
}
