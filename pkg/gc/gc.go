package gc

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/chrlesur/live-memory/pkg/consolidator"
	"github.com/chrlesur/live-memory/pkg/events"
	"github.com/chrlesur/live-memory/pkg/locks"
	"github.com/chrlesur/live-memory/pkg/log"
	"github.com/chrlesur/live-memory/pkg/notes"
	"github.com/chrlesur/live-memory/pkg/storage"
	"github.com/chrlesur/live-memory/pkg/types"
)

// DefaultMaxAgeDays is the orphan threshold applied when the caller
// passes none.
const DefaultMaxAgeDays = 7

// gcNoticeFormat is written as a live note before each forced
// consolidation so the trace ends up in the bank. French, like the
// consolidation prompts. Verbs: note count, agent, age in days.
const gcNoticeFormat = "⚠️ GARBAGE COLLECTOR — Consolidation forcée\n\n" +
	"Le Garbage Collector a détecté %d notes orphelines de l'agent '%s' (> %d jours).\n" +
	"Ces notes n'ont jamais été consolidées par l'agent.\n" +
	"Le GC force leur intégration dans la Memory Bank.\n\n" +
	"**Attention** : cette consolidation est automatique. " +
	"Les notes intégrées peuvent manquer de contexte car l'agent n'est plus actif."

// Service finds live notes abandoned by agents that disappeared without
// consolidating, and either folds them into the bank through the
// consolidator or deletes them outright.
type Service struct {
	store        storage.Store
	notes        *notes.Service
	consolidator *consolidator.Service
	locks        *locks.Registry
	broker       *events.Broker
	logger       zerolog.Logger
}

// NewService creates the garbage collector.
func NewService(store storage.Store, noteSvc *notes.Service, cons *consolidator.Service, registry *locks.Registry, broker *events.Broker) *Service {
	return &Service{
		store:        store,
		notes:        noteSvc,
		consolidator: cons,
		locks:        registry,
		broker:       broker,
		logger:       log.WithComponent("gc"),
	}
}

// Scan reports orphaned notes without touching them. A note is orphaned
// when the timestamp in its key is older than maxAgeDays. Spaces with no
// orphans are left out of the report.
func (s *Service) Scan(ctx context.Context, spaceID string, maxAgeDays int) (*types.GCResult, error) {
	result, _, err := s.scan(ctx, spaceID, maxAgeDays)
	return result, err
}

// Run executes the confirmed collection. The default path writes a forced
// consolidation notice per (space, agent) and feeds the orphans through
// the consolidator; deleteOnly removes them without an LLM call, losing
// their content.
func (s *Service) Run(ctx context.Context, spaceID string, maxAgeDays int, deleteOnly bool) (*types.GCResult, error) {
	result, keysBySpace, err := s.scan(ctx, spaceID, maxAgeDays)
	if err != nil {
		return nil, err
	}
	result.Confirm = true
	result.DeleteOnly = deleteOnly
	if deleteOnly {
		return s.deleteOld(ctx, spaceID, result, keysBySpace)
	}
	return s.consolidateOld(ctx, spaceID, result)
}

// scan builds the report and keeps the matching keys aside for the delete
// path. The age comparison is lexicographic, which works because note keys
// start with a fixed-width UTC stamp.
func (s *Service) scan(ctx context.Context, spaceID string, maxAgeDays int) (*types.GCResult, map[string][]string, error) {
	if maxAgeDays <= 0 {
		maxAgeDays = DefaultMaxAgeDays
	}
	if spaceID != "" {
		if err := types.ValidateSpaceID(spaceID); err != nil {
			return nil, nil, err
		}
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -maxAgeDays)
	cutoffStamp := cutoff.Format(types.NoteStampLayout)

	spaceIDs := []string{spaceID}
	if spaceID == "" {
		prefixes, err := s.store.ListPrefixes(ctx, "")
		if err != nil {
			return nil, nil, err
		}
		spaceIDs = spaceIDs[:0]
		for _, root := range prefixes {
			if strings.HasPrefix(root, "_") {
				continue
			}
			spaceIDs = append(spaceIDs, root)
		}
	}

	result := &types.GCResult{
		Envelope:   types.Envelope{Status: types.StatusOK},
		MaxAgeDays: maxAgeDays,
		CutoffDate: cutoff.Format(time.RFC3339),
		Spaces:     make(map[string]types.GCSpaceScan),
	}
	keysBySpace := make(map[string][]string)

	for _, sid := range spaceIDs {
		exists, err := s.store.Exists(ctx, types.MetaKey(sid))
		if err != nil {
			return nil, nil, err
		}
		if !exists {
			continue
		}

		infos, err := s.store.List(ctx, types.LivePrefix(sid))
		if err != nil {
			return nil, nil, err
		}

		scan := types.GCSpaceScan{ByAgent: make(map[string]types.GCAgentGroup)}
		var keys []string
		for _, info := range infos {
			if !strings.HasSuffix(info.Key, ".md") {
				continue
			}
			scan.TotalNotes++
			filename := path.Base(info.Key)
			stamp := notes.KeyTimestamp(filename)
			if stamp == "" || stamp >= cutoffStamp {
				continue
			}
			scan.OldNotes++
			scan.OldNotesSize += info.Size
			agent := notes.KeyAgent(filename)
			group := scan.ByAgent[agent]
			group.Count++
			group.Size += info.Size
			scan.ByAgent[agent] = group
			if scan.Oldest == "" || stamp < scan.Oldest {
				scan.Oldest = stamp
			}
			keys = append(keys, info.Key)
		}

		if scan.OldNotes == 0 {
			continue
		}
		result.Spaces[sid] = scan
		result.TotalOldNotes += scan.OldNotes
		result.TotalOldSize += scan.OldNotesSize
		keysBySpace[sid] = keys
	}

	return result, keysBySpace, nil
}

// consolidateOld drives one consolidation per (space, agent) group. The
// notice is written first, with the same agent name, so it joins the batch
// and the bank records why notes arrived without their author.
func (s *Service) consolidateOld(ctx context.Context, spaceID string, result *types.GCResult) (*types.GCResult, error) {
	if result.TotalOldNotes == 0 {
		result.Message = "Aucune note orpheline à consolider"
		return result, nil
	}

	spaceIDs := make([]string, 0, len(result.Spaces))
	for sid := range result.Spaces {
		spaceIDs = append(spaceIDs, sid)
	}
	sort.Strings(spaceIDs)

	total := 0
	for _, sid := range spaceIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		space := result.Spaces[sid]
		agents := make([]string, 0, len(space.ByAgent))
		for agent := range space.ByAgent {
			agents = append(agents, agent)
		}
		sort.Strings(agents)

		for _, agent := range agents {
			group := space.ByAgent[agent]
			entry := types.GCConsolidation{SpaceID: sid, Agent: agent, Notes: group.Count}

			notice := fmt.Sprintf(gcNoticeFormat, group.Count, agent, result.MaxAgeDays)
			if _, err := s.notes.Write(ctx, notes.WriteRequest{
				SpaceID:  sid,
				Agent:    agent,
				Category: types.CategoryObservation,
				Content:  notice,
				Tags:     []string{"gc", "maintenance"},
			}); err != nil {
				s.logger.Error().Err(err).Str("space_id", sid).Str("agent", agent).
					Msg("GC notice write failed")
				result.Failed = append(result.Failed, entry)
				continue
			}

			if s.locks.Locked(sid) {
				result.Skipped = append(result.Skipped, entry)
				continue
			}

			res, err := s.consolidator.Consolidate(ctx, sid, agent)
			switch {
			case err != nil:
				s.logger.Error().Err(err).Str("space_id", sid).Str("agent", agent).
					Msg("GC consolidation failed")
				result.Failed = append(result.Failed, entry)
			case res.Status == types.StatusConflict:
				// Lock grabbed between the check and the call.
				result.Skipped = append(result.Skipped, entry)
			case res.Status != types.StatusOK:
				s.logger.Error().Str("space_id", sid).Str("agent", agent).
					Str("cause", res.Message).Msg("GC consolidation failed")
				result.Failed = append(result.Failed, entry)
			default:
				entry.Notes = res.NotesProcessed
				result.Consolidated = append(result.Consolidated, entry)
				total += res.NotesProcessed
				s.logger.Info().Int("notes", res.NotesProcessed).Str("agent", agent).
					Str("space_id", sid).Msg("GC consolidated orphan notes")
			}
		}
	}

	result.Message = fmt.Sprintf("GC : %d notes orphelines consolidées dans %d espace(s)",
		total, len(result.Spaces))
	s.broker.Publish(&events.Event{
		Type:    events.GCCompleted,
		SpaceID: spaceID,
		Message: result.Message,
	})
	return result, nil
}

// deleteOld removes every orphaned key without consolidation. Their
// content is lost; the consolidate path is the safe default.
func (s *Service) deleteOld(ctx context.Context, spaceID string, result *types.GCResult, keysBySpace map[string][]string) (*types.GCResult, error) {
	if result.TotalOldNotes == 0 {
		result.Message = "Aucune note orpheline à supprimer"
		return result, nil
	}

	spaceIDs := make([]string, 0, len(keysBySpace))
	for sid := range keysBySpace {
		spaceIDs = append(spaceIDs, sid)
	}
	sort.Strings(spaceIDs)

	keys := make([]string, 0, result.TotalOldNotes)
	for _, sid := range spaceIDs {
		keys = append(keys, keysBySpace[sid]...)
	}

	deleted, err := storage.DeleteMany(ctx, s.store, keys)
	if err != nil {
		return nil, err
	}

	result.Status = types.StatusDeleted
	result.Deleted = deleted
	result.Message = fmt.Sprintf("⚠️ %d notes supprimées SANS consolidation dans %d espace(s)",
		deleted, len(result.Spaces))
	s.logger.Warn().Int("deleted", deleted).Int("spaces", len(result.Spaces)).
		Msg("GC deleted orphan notes without consolidation")
	s.broker.Publish(&events.Event{
		Type:    events.GCCompleted,
		SpaceID: spaceID,
		Message: result.Message,
	})
	return result, nil
}
