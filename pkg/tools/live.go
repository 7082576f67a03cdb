package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/chrlesur/live-memory/pkg/auth"
	"github.com/chrlesur/live-memory/pkg/notes"
	"github.com/chrlesur/live-memory/pkg/types"
)

func (r *Registry) registerLive(s *Services) {
	r.add(&Tool{
		Name:        "live_note",
		Description: "Écrit une note horodatée dans l'espace (append-only, sans conflit).",
		Schema: objectSchema([]string{"space_id", "content"}, map[string]any{
			"space_id": stringProp("Espace cible"),
			"content":  stringProp("Contenu de la note (texte libre, max 100000 caractères)"),
			"agent":    stringProp("Identifiant de l'agent (défaut : nom du token)"),
			"category": stringProp("observation|decision|todo|insight|question|progress|issue (défaut : observation)"),
			"tags":     stringProp("Tags séparés par des virgules"),
		}),
		Requires: Requirement{Permission: types.PermissionWrite, SpaceAccess: true},
		Handler: func(ctx context.Context, id *auth.Identity, args json.RawMessage) (any, error) {
			var in struct {
				SpaceID  string `json:"space_id"`
				Content  string `json:"content"`
				Agent    string `json:"agent"`
				Category string `json:"category"`
				Tags     string `json:"tags"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			if in.Agent == "" {
				in.Agent = id.Name
			}
			if in.Category == "" {
				in.Category = string(types.CategoryObservation)
			}
			return s.Notes.Write(ctx, notes.WriteRequest{
				SpaceID:  in.SpaceID,
				Agent:    in.Agent,
				Category: types.Category(in.Category),
				Content:  in.Content,
				Tags:     splitTags(in.Tags),
			})
		},
	})

	r.add(&Tool{
		Name:        "live_read",
		Description: "Lit les notes live récentes, filtrables par agent, catégorie et date.",
		Schema: objectSchema([]string{"space_id"}, map[string]any{
			"space_id": stringProp("Espace cible"),
			"agent":    stringProp("Filtre sur l'agent"),
			"category": stringProp("Filtre sur la catégorie"),
			"since":    stringProp("Timestamp minimal au format AAAAMMJJTHHMMSS"),
			"limit":    intProp("Nombre maximal de notes (défaut 50, max 200)"),
		}),
		Requires: Requirement{Permission: types.PermissionRead, SpaceAccess: true},
		Handler: func(ctx context.Context, _ *auth.Identity, args json.RawMessage) (any, error) {
			var in struct {
				SpaceID  string `json:"space_id"`
				Agent    string `json:"agent"`
				Category string `json:"category"`
				Since    string `json:"since"`
				Limit    int    `json:"limit"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			return s.Notes.Read(ctx, notes.ReadRequest{
				SpaceID:  in.SpaceID,
				Limit:    in.Limit,
				Category: types.Category(in.Category),
				Agent:    in.Agent,
				Since:    in.Since,
			})
		},
	})

	r.add(&Tool{
		Name:        "live_search",
		Description: "Recherche texte (insensible à la casse) dans les notes live.",
		Schema: objectSchema([]string{"space_id", "query"}, map[string]any{
			"space_id": stringProp("Espace cible"),
			"query":    stringProp("Texte recherché dans le contenu et les tags"),
			"limit":    intProp("Nombre maximal de résultats (défaut 20, max 100)"),
		}),
		Requires: Requirement{Permission: types.PermissionRead, SpaceAccess: true},
		Handler: func(ctx context.Context, _ *auth.Identity, args json.RawMessage) (any, error) {
			var in struct {
				SpaceID string `json:"space_id"`
				Query   string `json:"query"`
				Limit   int    `json:"limit"`
			}
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			return s.Notes.Search(ctx, in.SpaceID, in.Query, in.Limit)
		},
	})
}

// splitTags turns the wire's comma-separated tag string into a slice.
func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}
