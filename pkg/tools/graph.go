package tools

import (
	"context"
	"encoding/json"

	"github.com/chrlesur/live-memory/pkg/auth"
	"github.com/chrlesur/live-memory/pkg/types"
)

func (r *Registry) registerGraph(s *Services) {
	r.add(&Tool{
		Name:        "graph_connect",
		Description: "Connecte l'espace à une mémoire du service de graphe de connaissances.",
		Schema: objectSchema([]string{"space_id", "url", "token", "memory_id"}, map[string]any{
			"space_id":  stringProp("Espace à connecter"),
			"url":       stringProp("URL du service de graphe (endpoint MCP SSE)"),
			"token":     stringProp("Token bearer du service distant"),
			"memory_id": stringProp("Identifiant de la mémoire distante"),
			"ontology":  stringProp("general|legal|cloud|managed-services|presales (défaut : general)"),
		}),
		Requires: Requirement{Permission: types.PermissionWrite, SpaceAccess: true},
		Handler: func(ctx context.Context, _ *auth.Identity, args json.RawMessage) (any, error) {
			var in struct {
				SpaceID  string `json:"space_id"`
				URL      string `json:"url"`
				Token    string `json:"token"`
				MemoryID string `json:"memory_id"`
				Ontology string `json:"ontology"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			return s.Graph.Connect(ctx, in.SpaceID, in.URL, in.Token, in.MemoryID, in.Ontology)
		},
	})

	r.add(&Tool{
		Name:        "graph_push",
		Description: "Pousse les fichiers bank vers la mémoire de graphe connectée.",
		Schema: objectSchema([]string{"space_id"}, map[string]any{
			"space_id": stringProp("Espace connecté"),
		}),
		Requires: Requirement{Permission: types.PermissionWrite, SpaceAccess: true},
		Handler: func(ctx context.Context, _ *auth.Identity, args json.RawMessage) (any, error) {
			var in struct {
				SpaceID string `json:"space_id"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			return s.Graph.Push(ctx, in.SpaceID)
		},
	})

	r.add(&Tool{
		Name:        "graph_status",
		Description: "État de la connexion graphe : statistiques et documents ingérés.",
		Schema: objectSchema([]string{"space_id"}, map[string]any{
			"space_id": stringProp("Espace à inspecter"),
		}),
		Requires: Requirement{Permission: types.PermissionRead, SpaceAccess: true},
		Handler: func(ctx context.Context, _ *auth.Identity, args json.RawMessage) (any, error) {
			var in struct {
				SpaceID string `json:"space_id"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			return s.Graph.Status(ctx, in.SpaceID)
		},
	})

	r.add(&Tool{
		Name:        "graph_disconnect",
		Description: "Déconnecte l'espace de sa mémoire de graphe (les données distantes restent).",
		Schema: objectSchema([]string{"space_id"}, map[string]any{
			"space_id": stringProp("Espace à déconnecter"),
		}),
		Requires: Requirement{Permission: types.PermissionWrite, SpaceAccess: true},
		Handler: func(ctx context.Context, _ *auth.Identity, args json.RawMessage) (any, error) {
			var in struct {
				SpaceID string `json:"space_id"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			return s.Graph.Disconnect(ctx, in.SpaceID)
		},
	})
}
