package space

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/chrlesur/live-memory/pkg/auth"
	"github.com/chrlesur/live-memory/pkg/events"
	"github.com/chrlesur/live-memory/pkg/log"
	"github.com/chrlesur/live-memory/pkg/notes"
	"github.com/chrlesur/live-memory/pkg/storage"
	"github.com/chrlesur/live-memory/pkg/types"
)

// summaryNotes is the number of recent notes previewed by Summary.
const summaryNotes = 5

// Service implements the space lifecycle on the object store.
type Service struct {
	store  storage.Store
	broker *events.Broker
	logger zerolog.Logger
}

// NewService creates the space service.
func NewService(store storage.Store, broker *events.Broker) *Service {
	return &Service{
		store:  store,
		broker: broker,
		logger: log.WithComponent("space"),
	}
}

// Create provisions a new space: metadata, rules, and the two directory
// markers. An existing _meta.json makes the id taken, whatever else is
// present under the prefix.
func (s *Service) Create(ctx context.Context, spaceID, description, rules, owner string) (*types.SpaceCreateResult, error) {
	if err := types.ValidateSpaceID(spaceID); err != nil {
		return nil, err
	}
	if strings.HasPrefix(spaceID, "_") {
		return nil, fmt.Errorf("%w: space_id must not start with an underscore", types.ErrInvalid)
	}
	if err := types.ValidateRules(rules); err != nil {
		return nil, err
	}
	if err := types.ValidateDescription(description); err != nil {
		return nil, err
	}

	exists, err := s.store.Exists(ctx, types.MetaKey(spaceID))
	if err != nil {
		return nil, err
	}
	if exists {
		return &types.SpaceCreateResult{
			Envelope: types.Fail(types.StatusAlreadyExists, fmt.Sprintf("space %s already exists", spaceID)),
			SpaceID:  spaceID,
		}, nil
	}

	meta := types.SpaceMeta{
		SpaceID:     spaceID,
		Description: description,
		Owner:       owner,
		CreatedAt:   time.Now().UTC(),
		Version:     1,
		RulesSize:   len(rules),
	}
	if err := storage.PutJSON(ctx, s.store, types.MetaKey(spaceID), meta); err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, types.RulesKey(spaceID), []byte(rules), "text/markdown"); err != nil {
		return nil, err
	}
	for _, key := range []string{
		types.LivePrefix(spaceID) + types.KeepFile,
		types.BankPrefix(spaceID) + types.KeepFile,
	} {
		if err := s.store.Put(ctx, key, nil, ""); err != nil {
			return nil, err
		}
	}

	s.broker.Publish(&events.Event{
		Type:    events.SpaceCreated,
		SpaceID: spaceID,
		Agent:   owner,
		Message: fmt.Sprintf("space %s created", spaceID),
	})
	s.logger.Info().Str("space_id", spaceID).Str("owner", owner).Msg("Space created")

	return &types.SpaceCreateResult{
		Envelope:    types.Envelope{Status: types.StatusCreated},
		SpaceID:     spaceID,
		Description: description,
		Owner:       owner,
		CreatedAt:   meta.CreatedAt.Format(time.RFC3339),
		RulesSize:   meta.RulesSize,
	}, nil
}

// List enumerates the spaces visible to the identity. Roots starting with
// an underscore are reserved and prefixes without _meta.json are not
// spaces; both are skipped silently.
func (s *Service) List(ctx context.Context, id *auth.Identity) (*types.SpaceListResult, error) {
	roots, err := s.store.ListPrefixes(ctx, "")
	if err != nil {
		return nil, err
	}

	entries := make([]types.SpaceListEntry, 0, len(roots))
	for _, root := range roots {
		if strings.HasPrefix(root, "_") {
			continue
		}
		if !id.CanAccess(root) {
			continue
		}

		var meta types.SpaceMeta
		found, err := storage.GetJSON(ctx, s.store, types.MetaKey(root), &meta)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}

		noteInfos, err := s.store.List(ctx, types.LivePrefix(root))
		if err != nil {
			return nil, err
		}
		bankInfos, err := s.store.List(ctx, types.BankPrefix(root))
		if err != nil {
			return nil, err
		}

		entries = append(entries, types.SpaceListEntry{
			SpaceID:        meta.SpaceID,
			Description:    meta.Description,
			CreatedAt:      meta.CreatedAt.Format(time.RFC3339),
			NotesCount:     countObjects(noteInfos),
			BankFilesCount: countObjects(bankInfos),
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].SpaceID < entries[j].SpaceID })

	return &types.SpaceListResult{
		Envelope: types.Envelope{Status: types.StatusOK},
		Spaces:   entries,
		Count:    len(entries),
	}, nil
}

// Info reports a space's metadata and storage footprint.
func (s *Service) Info(ctx context.Context, spaceID string) (*types.SpaceInfoResult, error) {
	if err := types.ValidateSpaceID(spaceID); err != nil {
		return nil, err
	}

	var meta types.SpaceMeta
	found, err := storage.GetJSON(ctx, s.store, types.MetaKey(spaceID), &meta)
	if err != nil {
		return nil, err
	}
	if !found {
		return &types.SpaceInfoResult{
			Envelope: types.Fail(types.StatusNotFound, fmt.Sprintf("space %s does not exist", spaceID)),
			SpaceID:  spaceID,
		}, nil
	}

	noteInfos, err := s.store.List(ctx, types.LivePrefix(spaceID))
	if err != nil {
		return nil, err
	}
	bankInfos, err := s.store.List(ctx, types.BankPrefix(spaceID))
	if err != nil {
		return nil, err
	}
	hasSynthesis, err := s.store.Exists(ctx, types.SynthesisKey(spaceID))
	if err != nil {
		return nil, err
	}

	result := &types.SpaceInfoResult{
		Envelope:            types.Envelope{Status: types.StatusOK},
		SpaceID:             meta.SpaceID,
		Description:         meta.Description,
		Owner:               meta.Owner,
		CreatedAt:           meta.CreatedAt.Format(time.RFC3339),
		RulesSize:           meta.RulesSize,
		BankFiles:           bankNames(spaceID, bankInfos),
		HasSynthesis:        hasSynthesis,
		ConsolidationCount:  meta.ConsolidationCount,
		TotalNotesProcessed: meta.TotalNotesProcessed,
		GraphMemory:         meta.GraphMemory,
	}
	if meta.LastConsolidation != nil {
		result.LastConsolidation = meta.LastConsolidation.Format(time.RFC3339)
	}

	var noteKeys []string
	for _, info := range noteInfos {
		if storage.IsKeep(info.Key) {
			continue
		}
		result.NotesCount++
		result.NotesSize += info.Size
		noteKeys = append(noteKeys, info.Key)
	}
	for _, info := range bankInfos {
		if !storage.IsKeep(info.Key) {
			result.BankSize += info.Size
		}
	}
	if len(noteKeys) > 0 {
		sort.Strings(noteKeys)
		result.OldestNote = notes.KeyTimestamp(strings.TrimPrefix(noteKeys[0], types.LivePrefix(spaceID)))
		result.NewestNote = notes.KeyTimestamp(strings.TrimPrefix(noteKeys[len(noteKeys)-1], types.LivePrefix(spaceID)))
	}

	return result, nil
}

// Rules returns the raw body of _rules.md.
func (s *Service) Rules(ctx context.Context, spaceID string) (*types.SpaceRulesResult, error) {
	if err := types.ValidateSpaceID(spaceID); err != nil {
		return nil, err
	}

	data, found, err := s.store.Get(ctx, types.RulesKey(spaceID))
	if err != nil {
		return nil, err
	}
	if !found {
		return &types.SpaceRulesResult{
			Envelope: types.Fail(types.StatusNotFound, fmt.Sprintf("space %s does not exist", spaceID)),
			SpaceID:  spaceID,
		}, nil
	}

	return &types.SpaceRulesResult{
		Envelope: types.Envelope{Status: types.StatusOK},
		SpaceID:  spaceID,
		Rules:    string(data),
		Size:     len(data),
	}, nil
}

// Summary composes the rolling synthesis, a preview of the most recent
// notes, and the bank file listing into one call.
func (s *Service) Summary(ctx context.Context, spaceID string) (*types.SpaceSummaryResult, error) {
	if err := types.ValidateSpaceID(spaceID); err != nil {
		return nil, err
	}

	exists, err := s.store.Exists(ctx, types.MetaKey(spaceID))
	if err != nil {
		return nil, err
	}
	if !exists {
		return &types.SpaceSummaryResult{
			Envelope: types.Fail(types.StatusNotFound, fmt.Sprintf("space %s does not exist", spaceID)),
			SpaceID:  spaceID,
		}, nil
	}

	synthesis, _, err := s.store.Get(ctx, types.SynthesisKey(spaceID))
	if err != nil {
		return nil, err
	}

	noteInfos, err := s.store.List(ctx, types.LivePrefix(spaceID))
	if err != nil {
		return nil, err
	}
	var noteKeys []string
	for _, info := range noteInfos {
		if !storage.IsKeep(info.Key) {
			noteKeys = append(noteKeys, info.Key)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(noteKeys)))

	recent := make([]types.NotePreview, 0, summaryNotes)
	for _, key := range noteKeys {
		if len(recent) >= summaryNotes {
			break
		}
		data, found, err := s.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		note := notes.Parse(strings.TrimPrefix(key, types.LivePrefix(spaceID)), data)
		recent = append(recent, types.NotePreview{
			Filename: note.Filename,
			Agent:    note.Agent,
			Category: note.Category,
		})
	}

	bankInfos, err := s.store.List(ctx, types.BankPrefix(spaceID))
	if err != nil {
		return nil, err
	}

	return &types.SpaceSummaryResult{
		Envelope:    types.Envelope{Status: types.StatusOK},
		SpaceID:     spaceID,
		Synthesis:   string(synthesis),
		RecentNotes: recent,
		NotesCount:  len(noteKeys),
		BankFiles:   bankNames(spaceID, bankInfos),
	}, nil
}

// Delete removes every object under the space prefix. Backups of the space
// survive under _backups/.
func (s *Service) Delete(ctx context.Context, spaceID string, confirm bool) (*types.SpaceDeleteResult, error) {
	if err := types.ValidateSpaceID(spaceID); err != nil {
		return nil, err
	}
	if !confirm {
		return &types.SpaceDeleteResult{
			Envelope: types.Fail(types.StatusError, "confirm must be true to delete a space"),
			SpaceID:  spaceID,
		}, nil
	}

	exists, err := s.store.Exists(ctx, types.MetaKey(spaceID))
	if err != nil {
		return nil, err
	}
	if !exists {
		return &types.SpaceDeleteResult{
			Envelope: types.Fail(types.StatusNotFound, fmt.Sprintf("space %s does not exist", spaceID)),
			SpaceID:  spaceID,
		}, nil
	}

	infos, err := s.store.List(ctx, types.SpacePrefix(spaceID))
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(infos))
	for i, info := range infos {
		keys[i] = info.Key
	}
	deleted, err := storage.DeleteMany(ctx, s.store, keys)
	if err != nil {
		return nil, err
	}

	s.broker.Publish(&events.Event{
		Type:    events.SpaceDeleted,
		SpaceID: spaceID,
		Message: fmt.Sprintf("space %s deleted (%d objects)", spaceID, deleted),
	})
	s.logger.Info().Str("space_id", spaceID).Int("deleted", deleted).Msg("Space deleted")

	return &types.SpaceDeleteResult{
		Envelope:     types.Envelope{Status: types.StatusDeleted},
		SpaceID:      spaceID,
		FilesDeleted: deleted,
	}, nil
}

// countObjects counts listing entries that are real objects.
func countObjects(infos []storage.ObjectInfo) int {
	n := 0
	for _, info := range infos {
		if !storage.IsKeep(info.Key) {
			n++
		}
	}
	return n
}

// bankNames strips the prefix from bank listings, keep markers excluded.
func bankNames(spaceID string, infos []storage.ObjectInfo) []string {
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if storage.IsKeep(info.Key) {
			continue
		}
		names = append(names, strings.TrimPrefix(info.Key, types.BankPrefix(spaceID)))
	}
	sort.Strings(names)
	return names
}
