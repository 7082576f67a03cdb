package consolidator

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/chrlesur/live-memory/pkg/config"
	"github.com/chrlesur/live-memory/pkg/events"
	"github.com/chrlesur/live-memory/pkg/llm"
	"github.com/chrlesur/live-memory/pkg/locks"
	"github.com/chrlesur/live-memory/pkg/log"
	"github.com/chrlesur/live-memory/pkg/metrics"
	"github.com/chrlesur/live-memory/pkg/notes"
	"github.com/chrlesur/live-memory/pkg/storage"
	"github.com/chrlesur/live-memory/pkg/types"
)

// Service runs the consolidation pipeline: live notes in, bank files and
// a residual synthesis out, one LLM call per run.
type Service struct {
	store       storage.Store
	llm         llm.Client
	locks       *locks.Registry
	broker      *events.Broker
	logger      zerolog.Logger
	maxNotes    int
	maxTokens   int
	temperature float64
}

// NewService creates the consolidation service.
func NewService(store storage.Store, client llm.Client, registry *locks.Registry, broker *events.Broker, cfg *config.Settings) *Service {
	return &Service{
		store:       store,
		llm:         client,
		locks:       registry,
		broker:      broker,
		logger:      log.WithComponent("consolidator"),
		maxNotes:    cfg.ConsolidationMaxNotes,
		maxTokens:   cfg.LLMMaxTokens,
		temperature: cfg.LLMTemperature,
	}
}

// inputs is the snapshot a consolidation run works on. noteKeys are the
// exact keys that will be deleted after a successful commit; notes
// written after the snapshot are untouched.
type inputs struct {
	rules      string
	synthesis  string
	noteBodies []string
	noteKeys   []string
	remaining  int
	bank       []bankFile
}

// Consolidate folds the live notes of a space into its bank. With a
// non-empty agent only that agent's notes are processed; the tool layer
// restricts non-admin callers to their own name. At most one run per
// space at a time, concurrent callers get a conflict envelope without
// an LLM call.
func (s *Service) Consolidate(ctx context.Context, spaceID, agent string) (*types.ConsolidationResult, error) {
	if err := types.ValidateSpaceID(spaceID); err != nil {
		return nil, err
	}
	if agent != "" {
		if err := types.ValidateAgent(agent); err != nil {
			return nil, err
		}
	}

	release, ok := s.locks.TryConsolidate(spaceID)
	if !ok {
		metrics.Consolidations.WithLabelValues("conflict").Inc()
		return &types.ConsolidationResult{
			Envelope: types.Fail(types.StatusConflict, fmt.Sprintf("consolidation already running for space %s", spaceID)),
			SpaceID:  spaceID,
			Agent:    agent,
		}, nil
	}
	defer release()

	start := time.Now()

	in, early, err := s.collect(ctx, spaceID, agent)
	if err != nil {
		return nil, err
	}
	if early != nil {
		return early, nil
	}

	s.logger.Info().
		Str("space_id", spaceID).
		Str("agent", agent).
		Int("notes", len(in.noteKeys)).
		Int("bank_files", len(in.bank)).
		Msg("Consolidation started")

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: buildUserPrompt(spaceID, in.rules, in.synthesis, in.noteBodies, in.bank)},
	}

	plan, completion, err := s.callLLM(ctx, messages)
	if err != nil {
		return s.fail(spaceID, agent, err), nil
	}

	created, updated, unchanged, err := s.commit(ctx, spaceID, plan, in.noteKeys)
	if err != nil {
		s.fail(spaceID, agent, err)
		return nil, err
	}

	elapsed := math.Round(time.Since(start).Seconds()*10) / 10
	metrics.Consolidations.WithLabelValues("ok").Inc()
	metrics.ConsolidationNotesProcessed.Add(float64(len(in.noteKeys)))
	metrics.Since(metrics.ConsolidationDuration, start)
	metrics.LLMTokens.WithLabelValues("prompt").Add(float64(completion.Usage.PromptTokens))
	metrics.LLMTokens.WithLabelValues("completion").Add(float64(completion.Usage.CompletionTokens))

	s.broker.Publish(&events.Event{
		Type:    events.ConsolidationDone,
		SpaceID: spaceID,
		Agent:   agent,
		Message: fmt.Sprintf("consolidated %d notes into %d bank files", len(in.noteKeys), created+updated),
	})
	s.logger.Info().
		Str("space_id", spaceID).
		Int("notes_processed", len(in.noteKeys)).
		Int("created", created).
		Int("updated", updated).
		Float64("duration_seconds", elapsed).
		Int("total_tokens", completion.Usage.TotalTokens).
		Msg("Consolidation completed")

	return &types.ConsolidationResult{
		Envelope:           types.Envelope{Status: types.StatusOK},
		SpaceID:            spaceID,
		Agent:              agent,
		NotesProcessed:     len(in.noteKeys),
		NotesRemaining:     in.remaining,
		BankFilesCreated:   created,
		BankFilesUpdated:   updated,
		BankFilesUnchanged: unchanged,
		SynthesisSize:      len(plan.Synthesis),
		DurationSeconds:    elapsed,
		Model:              completion.Model,
		Usage: &types.TokenUsage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
			TotalTokens:      completion.Usage.TotalTokens,
		},
	}, nil
}

// collect gathers rules, previous synthesis, the filtered note snapshot
// and the current bank files. A non-nil result short-circuits the run.
func (s *Service) collect(ctx context.Context, spaceID, agent string) (*inputs, *types.ConsolidationResult, error) {
	exists, err := s.store.Exists(ctx, types.MetaKey(spaceID))
	if err != nil {
		return nil, nil, err
	}
	if !exists {
		return nil, &types.ConsolidationResult{
			Envelope: types.Fail(types.StatusNotFound, fmt.Sprintf("space %s does not exist", spaceID)),
			SpaceID:  spaceID,
			Agent:    agent,
		}, nil
	}

	rulesData, found, err := s.store.Get(ctx, types.RulesKey(spaceID))
	if err != nil {
		return nil, nil, err
	}
	if !found {
		return nil, &types.ConsolidationResult{
			Envelope: types.Fail(types.StatusError, fmt.Sprintf("space %s has no rules", spaceID)),
			SpaceID:  spaceID,
			Agent:    agent,
		}, nil
	}

	synthesisData, _, err := s.store.Get(ctx, types.SynthesisKey(spaceID))
	if err != nil {
		return nil, nil, err
	}

	liveObjects, err := storage.FetchAll(ctx, s.store, types.LivePrefix(spaceID), false)
	if err != nil {
		return nil, nil, err
	}
	sort.Slice(liveObjects, func(i, j int) bool { return liveObjects[i].Key < liveObjects[j].Key })

	in := &inputs{
		rules:     string(rulesData),
		synthesis: string(synthesisData),
	}
	for _, obj := range liveObjects {
		if agent != "" {
			note := notes.Parse(strings.TrimPrefix(obj.Key, types.LivePrefix(spaceID)), obj.Content)
			if note.Agent != agent {
				continue
			}
		}
		in.noteKeys = append(in.noteKeys, obj.Key)
		in.noteBodies = append(in.noteBodies, string(obj.Content))
	}

	if len(in.noteKeys) == 0 {
		metrics.Consolidations.WithLabelValues("empty").Inc()
		return nil, &types.ConsolidationResult{
			Envelope: types.Envelope{Status: types.StatusOK, Message: "No new notes to consolidate"},
			SpaceID:  spaceID,
			Agent:    agent,
		}, nil
	}

	// Oldest first when over the cap; the rest waits for the next run.
	if len(in.noteKeys) > s.maxNotes {
		in.remaining = len(in.noteKeys) - s.maxNotes
		in.noteKeys = in.noteKeys[:s.maxNotes]
		in.noteBodies = in.noteBodies[:s.maxNotes]
	}

	bankObjects, err := storage.FetchAll(ctx, s.store, types.BankPrefix(spaceID), false)
	if err != nil {
		return nil, nil, err
	}
	for _, obj := range bankObjects {
		in.bank = append(in.bank, bankFile{
			Name:    strings.TrimPrefix(obj.Key, types.BankPrefix(spaceID)),
			Content: string(obj.Content),
		})
	}

	return in, nil, nil
}

// callLLM performs the completion and parses the plan. An unparseable
// reply gets exactly one retry carrying the bad reply and a corrective
// instruction; a plan with bad filenames or actions is rejected outright.
func (s *Service) callLLM(ctx context.Context, messages []llm.Message) (*Plan, *llm.Completion, error) {
	var plan *Plan
	var completion *llm.Completion

	for attempt := 0; attempt < 2; attempt++ {
		var err error
		completion, err = s.llm.Complete(ctx, llm.Request{
			Messages:    messages,
			MaxTokens:   s.maxTokens,
			Temperature: s.temperature,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("llm call failed: %w", err)
		}

		plan, err = parsePlan(completion.Content)
		if err == nil {
			break
		}
		if attempt > 0 {
			return nil, nil, fmt.Errorf("llm returned invalid JSON after retry: %w", err)
		}

		s.logger.Warn().Err(err).Msg("LLM reply not parseable, retrying")
		messages = append(messages,
			llm.Message{Role: llm.RoleAssistant, Content: completion.Content},
			llm.Message{Role: llm.RoleUser, Content: retryInstruction},
		)
	}

	if err := validatePlan(plan); err != nil {
		return nil, nil, fmt.Errorf("llm returned an invalid plan: %w", err)
	}
	return plan, completion, nil
}

// commit writes the plan in a fixed order: bank files, then synthesis,
// then the metadata counters. The snapshot notes are deleted last and
// only once everything else succeeded, so a failure at any earlier point
// leaves them in live/ for the next run.
func (s *Service) commit(ctx context.Context, spaceID string, plan *Plan, noteKeys []string) (created, updated, unchanged int, err error) {
	for _, file := range plan.BankFiles {
		if file.Content == "" {
			s.logger.Warn().Str("filename", file.Filename).Msg("Plan entry with empty content skipped")
			continue
		}
		if err := s.store.Put(ctx, types.BankKey(spaceID, file.Filename), []byte(file.Content), "text/markdown"); err != nil {
			return 0, 0, 0, fmt.Errorf("write bank file %s: %w", file.Filename, err)
		}
		if file.Action == ActionCreated {
			created++
		} else {
			updated++
		}
	}

	now := time.Now().UTC()
	synthesis := fmt.Sprintf("---\nconsolidated_at: %q\nnotes_processed: %d\n---\n\n%s",
		now.Format(time.RFC3339), len(noteKeys), plan.Synthesis)
	if err := s.store.Put(ctx, types.SynthesisKey(spaceID), []byte(synthesis), "text/markdown"); err != nil {
		return 0, 0, 0, fmt.Errorf("write synthesis: %w", err)
	}

	var meta types.SpaceMeta
	found, err := storage.GetJSON(ctx, s.store, types.MetaKey(spaceID), &meta)
	if err != nil {
		return 0, 0, 0, err
	}
	if !found {
		return 0, 0, 0, fmt.Errorf("space %s metadata vanished during consolidation", spaceID)
	}
	meta.LastConsolidation = &now
	meta.ConsolidationCount++
	meta.TotalNotesProcessed += len(noteKeys)
	if err := storage.PutJSON(ctx, s.store, types.MetaKey(spaceID), meta); err != nil {
		return 0, 0, 0, fmt.Errorf("update metadata: %w", err)
	}

	if _, err := storage.DeleteMany(ctx, s.store, noteKeys); err != nil {
		// The bank is already committed; leftovers reappear next run.
		s.logger.Warn().Err(err).Str("space_id", spaceID).Msg("Failed to delete consolidated notes")
	}

	bankInfos, err := s.store.List(ctx, types.BankPrefix(spaceID))
	if err != nil {
		return 0, 0, 0, err
	}
	total := 0
	for _, info := range bankInfos {
		if !storage.IsKeep(info.Key) {
			total++
		}
	}
	if unchanged = total - created - updated; unchanged < 0 {
		unchanged = 0
	}

	return created, updated, unchanged, nil
}

// fail records a failed run and builds its envelope.
func (s *Service) fail(spaceID, agent string, cause error) *types.ConsolidationResult {
	metrics.Consolidations.WithLabelValues("error").Inc()
	s.broker.Publish(&events.Event{
		Type:    events.ConsolidationFailed,
		SpaceID: spaceID,
		Agent:   agent,
		Message: cause.Error(),
	})
	s.logger.Error().Err(cause).Str("space_id", spaceID).Msg("Consolidation failed")

	return &types.ConsolidationResult{
		Envelope: types.Fail(types.StatusError, cause.Error()),
		SpaceID:  spaceID,
		Agent:    agent,
	}
}
