package tools

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"runtime"
	"strings"
	"time"

	"github.com/chrlesur/live-memory/pkg/auth"
	"github.com/chrlesur/live-memory/pkg/llm"
	"github.com/chrlesur/live-memory/pkg/types"
	"github.com/chrlesur/live-memory/pkg/version"
)

func (r *Registry) registerSystem(s *Services) {
	r.add(&Tool{
		Name:        "system_health",
		Description: "Vérifie l'état du service : stockage, endpoint LLM, nombre d'espaces.",
		Schema:      objectSchema(nil, map[string]any{}),
		Handler: func(ctx context.Context, _ *auth.Identity, _ json.RawMessage) (any, error) {
			return systemHealth(ctx, s), nil
		},
	})

	r.add(&Tool{
		Name:        "system_about",
		Description: "Informations sur le service : version, plateforme, outils disponibles.",
		Schema:      objectSchema(nil, map[string]any{}),
		Handler: func(_ context.Context, _ *auth.Identity, _ json.RawMessage) (any, error) {
			return r.about(s), nil
		},
	})
}

// systemHealth probes storage and the LLM endpoint. Any component that is
// not fully healthy turns the overall status to degraded; a storage
// failure additionally leaves spaces_count at -1.
func systemHealth(ctx context.Context, s *Services) *types.HealthResult {
	result := &types.HealthResult{
		Envelope:    types.Envelope{Status: types.StatusOK},
		Service:     s.Config.ServerName,
		Version:     version.Version,
		SpacesCount: -1,
	}
	if !s.StartedAt.IsZero() {
		result.UptimeSeconds = math.Round(time.Since(s.StartedAt).Seconds()*10) / 10
	}

	degraded := false
	if latency, err := s.Store.Ping(ctx); err != nil {
		result.Storage = types.StorageHealth{Error: err.Error()}
		degraded = true
	} else {
		result.Storage = types.StorageHealth{Connected: true, LatencyMS: roundMS(latency)}
	}

	latency, err := s.LLM.Ping(ctx)
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		result.LLM = types.LLMHealth{Warning: "llm endpoint not configured"}
		degraded = true
	case err != nil:
		result.LLM = types.LLMHealth{Configured: true, Model: s.LLM.Model(), Error: err.Error()}
		degraded = true
	default:
		result.LLM = types.LLMHealth{Configured: true, Model: s.LLM.Model(), LatencyMS: roundMS(latency)}
	}

	if result.Storage.Connected {
		if prefixes, err := s.Store.ListPrefixes(ctx, ""); err == nil {
			count := 0
			for _, p := range prefixes {
				if !strings.HasPrefix(p, "_") {
					count++
				}
			}
			result.SpacesCount = count
		}
	}

	if degraded {
		result.Status = types.StatusDegraded
	}
	return result
}

func (r *Registry) about(s *Services) *types.AboutResult {
	list := make([]types.ToolDescription, 0, r.Len())
	for _, t := range r.Tools() {
		desc := t.Description
		if runes := []rune(desc); len(runes) > 100 {
			desc = string(runes[:100])
		}
		list = append(list, types.ToolDescription{Name: t.Name, Description: desc})
	}
	return &types.AboutResult{
		Envelope:      types.Envelope{Status: types.StatusOK},
		Name:          s.Config.ServerName,
		Version:       version.Version,
		Description:   "Mémoire de travail partagée pour agents IA collaboratifs",
		Author:        "Cloud Temple",
		Documentation: "https://github.com/chrlesur/live-memory",
		Platform: types.PlatformInfo{
			GoVersion: runtime.Version(),
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
		},
		Tools: list,
	}
}

func roundMS(d time.Duration) float64 {
	return math.Round(float64(d.Microseconds())/100) / 10
}
