package gc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/chrlesur/live-memory/pkg/config"
	"github.com/chrlesur/live-memory/pkg/consolidator"
	"github.com/chrlesur/live-memory/pkg/events"
	"github.com/chrlesur/live-memory/pkg/llm"
	"github.com/chrlesur/live-memory/pkg/locks"
	"github.com/chrlesur/live-memory/pkg/notes"
	"github.com/chrlesur/live-memory/pkg/storage"
	"github.com/chrlesur/live-memory/pkg/types"
)

const planReply = `{"bank_files":[{"filename":"journal.md","content":"# Journal","action":"created"}],"synthesis":"Synthèse."}`

// fakeLLM returns one scripted reply and records every request.
type fakeLLM struct {
	requests []llm.Request
	reply    string
	err      error
}

func (f *fakeLLM) Complete(_ context.Context, req llm.Request) (*llm.Completion, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Completion{Content: f.reply, Model: "fake-model"}, nil
}

func (f *fakeLLM) Ping(context.Context) (time.Duration, error) { return time.Millisecond, f.err }
func (f *fakeLLM) Model() string                               { return "fake-model" }

func newTestGC(t *testing.T, client llm.Client) (*Service, storage.Store, *locks.Registry) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	registry := locks.NewRegistry()
	cfg := &config.Settings{
		ConsolidationMaxNotes: 30,
		LLMMaxTokens:          100000,
		LLMTemperature:        0.3,
	}
	noteSvc := notes.NewService(store, broker)
	cons := consolidator.NewService(store, client, registry, broker, cfg)
	return NewService(store, noteSvc, cons, registry, broker), store, registry
}

func seedSpace(t *testing.T, store storage.Store, spaceID string) {
	t.Helper()
	ctx := context.Background()
	rules := "# Rules\n\nTenir journal.md à jour."
	meta := types.SpaceMeta{
		SpaceID:   spaceID,
		Owner:     "tester",
		CreatedAt: time.Now().UTC(),
		Version:   1,
		RulesSize: len(rules),
	}
	if err := storage.PutJSON(ctx, store, types.MetaKey(spaceID), meta); err != nil {
		t.Fatalf("PutJSON(meta) error = %v", err)
	}
	for key, data := range map[string][]byte{
		spaceID + "/_rules.md":  []byte(rules),
		spaceID + "/live/.keep": nil,
		spaceID + "/bank/.keep": nil,
	} {
		if err := store.Put(ctx, key, data, ""); err != nil {
			t.Fatalf("Put(%s) error = %v", key, err)
		}
	}
}

func seedNote(t *testing.T, store storage.Store, spaceID, stamp, agent, content string) string {
	t.Helper()
	ts, err := time.Parse(types.NoteStampLayout, stamp)
	if err != nil {
		t.Fatalf("bad stamp %q: %v", stamp, err)
	}
	key := fmt.Sprintf("%s%s_%s_observation_%08x.md", types.LivePrefix(spaceID), stamp, agent, len(content))
	body := fmt.Sprintf("---\ntimestamp: %s\nagent: %s\ncategory: observation\nspace_id: %s\n---\n\n%s",
		ts.Format(time.RFC3339), agent, spaceID, content)
	if err := store.Put(context.Background(), key, []byte(body), "text/markdown"); err != nil {
		t.Fatalf("Put(%s) error = %v", key, err)
	}
	return key
}

// noteStamp formats a key timestamp a number of days in the past.
func noteStamp(now time.Time, daysAgo int) string {
	return now.AddDate(0, 0, -daysAgo).Format(types.NoteStampLayout)
}

func objectSize(t *testing.T, store storage.Store, key string) int64 {
	t.Helper()
	data, found, err := store.Get(context.Background(), key)
	if err != nil || !found {
		t.Fatalf("Get(%s) = found %v, err %v", key, found, err)
	}
	return int64(len(data))
}

func liveNoteKeys(t *testing.T, store storage.Store, spaceID string) []string {
	t.Helper()
	infos, err := store.List(context.Background(), types.LivePrefix(spaceID))
	if err != nil {
		t.Fatalf("List(live) error = %v", err)
	}
	var keys []string
	for _, info := range infos {
		if !storage.IsKeep(info.Key) {
			keys = append(keys, info.Key)
		}
	}
	return keys
}

func TestScan(t *testing.T) {
	svc, store, _ := newTestGC(t, &fakeLLM{reply: planReply})
	ctx := context.Background()
	now := time.Now().UTC()

	seedSpace(t, store, "alpha")
	oldA := seedNote(t, store, "alpha", noteStamp(now, 10), "claude", "Vieille décision")
	oldB := seedNote(t, store, "alpha", noteStamp(now, 9), "gemini", "Vieille observation un peu plus longue")
	seedNote(t, store, "alpha", noteStamp(now, 0), "claude", "Note fraîche")
	if err := store.Put(ctx, "alpha/live/undated.md", []byte("pas de timestamp"), ""); err != nil {
		t.Fatalf("Put(undated) error = %v", err)
	}

	got, err := svc.Scan(ctx, "alpha", 7)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if got.Status != types.StatusOK {
		t.Fatalf("Status = %q, want %q", got.Status, types.StatusOK)
	}
	if got.Confirm {
		t.Error("Confirm = true on a dry run")
	}
	if got.MaxAgeDays != 7 {
		t.Errorf("MaxAgeDays = %d, want 7", got.MaxAgeDays)
	}
	if _, err := time.Parse(time.RFC3339, got.CutoffDate); err != nil {
		t.Errorf("CutoffDate = %q, not RFC3339: %v", got.CutoffDate, err)
	}
	if got.TotalOldNotes != 2 {
		t.Fatalf("TotalOldNotes = %d, want 2", got.TotalOldNotes)
	}

	space, ok := got.Spaces["alpha"]
	if !ok {
		t.Fatalf("Spaces = %v, missing alpha", got.Spaces)
	}
	if space.TotalNotes != 4 {
		t.Errorf("TotalNotes = %d, want 4", space.TotalNotes)
	}
	if space.OldNotes != 2 {
		t.Errorf("OldNotes = %d, want 2", space.OldNotes)
	}
	wantSize := objectSize(t, store, oldA) + objectSize(t, store, oldB)
	if space.OldNotesSize != wantSize {
		t.Errorf("OldNotesSize = %d, want %d", space.OldNotesSize, wantSize)
	}
	if got.TotalOldSize != wantSize {
		t.Errorf("TotalOldSize = %d, want %d", got.TotalOldSize, wantSize)
	}
	if space.Oldest != noteStamp(now, 10) {
		t.Errorf("Oldest = %q, want %q", space.Oldest, noteStamp(now, 10))
	}
	if g := space.ByAgent["claude"]; g.Count != 1 || g.Size != objectSize(t, store, oldA) {
		t.Errorf("ByAgent[claude] = %+v, want count 1 size %d", g, objectSize(t, store, oldA))
	}
	if g := space.ByAgent["gemini"]; g.Count != 1 {
		t.Errorf("ByAgent[gemini] = %+v, want count 1", g)
	}
}

func TestScan_AllSpaces(t *testing.T) {
	svc, store, _ := newTestGC(t, &fakeLLM{reply: planReply})
	ctx := context.Background()
	now := time.Now().UTC()

	seedSpace(t, store, "alpha")
	seedSpace(t, store, "beta")
	seedSpace(t, store, "gamma")
	seedNote(t, store, "alpha", noteStamp(now, 10), "claude", "Vieux alpha")
	seedNote(t, store, "beta", noteStamp(now, 20), "gemini", "Vieux beta")
	seedNote(t, store, "gamma", noteStamp(now, 0), "claude", "Frais gamma")

	// Prefixes without _meta.json and system prefixes never enter the report.
	for key, data := range map[string][]byte{
		"orphan/live/20240101T000000_claude_observation_00000001.md": []byte("note"),
		"_backups/alpha/2024-01-01T00-00-00/_backup.json":            []byte("{}"),
	} {
		if err := store.Put(ctx, key, data, ""); err != nil {
			t.Fatalf("Put(%s) error = %v", key, err)
		}
	}

	got, err := svc.Scan(ctx, "", 7)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(got.Spaces) != 2 {
		t.Fatalf("Spaces = %v, want alpha and beta only", got.Spaces)
	}
	if _, ok := got.Spaces["alpha"]; !ok {
		t.Error("Spaces missing alpha")
	}
	if _, ok := got.Spaces["beta"]; !ok {
		t.Error("Spaces missing beta")
	}
	if got.TotalOldNotes != 2 {
		t.Errorf("TotalOldNotes = %d, want 2", got.TotalOldNotes)
	}
}

func TestScan_AgeBoundary(t *testing.T) {
	svc, store, _ := newTestGC(t, &fakeLLM{reply: planReply})
	now := time.Now().UTC()

	seedSpace(t, store, "alpha")
	seedNote(t, store, "alpha", noteStamp(now, 6), "claude", "Encore vivante")
	seedNote(t, store, "alpha", noteStamp(now, 8), "claude", "Orpheline")

	// maxAgeDays 0 falls back to the default threshold.
	got, err := svc.Scan(context.Background(), "alpha", 0)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if got.MaxAgeDays != DefaultMaxAgeDays {
		t.Errorf("MaxAgeDays = %d, want %d", got.MaxAgeDays, DefaultMaxAgeDays)
	}
	space := got.Spaces["alpha"]
	if space.OldNotes != 1 {
		t.Fatalf("OldNotes = %d, want 1", space.OldNotes)
	}
	if space.Oldest != noteStamp(now, 8) {
		t.Errorf("Oldest = %q, want %q", space.Oldest, noteStamp(now, 8))
	}
}

func TestScan_MissingSpace(t *testing.T) {
	svc, _, _ := newTestGC(t, &fakeLLM{reply: planReply})

	got, err := svc.Scan(context.Background(), "ghost", 7)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(got.Spaces) != 0 || got.TotalOldNotes != 0 {
		t.Errorf("Scan(ghost) = %+v, want an empty report", got)
	}
}

func TestScan_InvalidSpaceID(t *testing.T) {
	svc, _, _ := newTestGC(t, &fakeLLM{reply: planReply})

	if _, err := svc.Scan(context.Background(), "bad space", 7); !errors.Is(err, types.ErrInvalid) {
		t.Fatalf("Scan() error = %v, want ErrInvalid", err)
	}
}

func TestRun_Consolidate(t *testing.T) {
	client := &fakeLLM{reply: planReply}
	svc, store, _ := newTestGC(t, client)
	ctx := context.Background()
	now := time.Now().UTC()

	seedSpace(t, store, "alpha")
	seedNote(t, store, "alpha", noteStamp(now, 10), "claude", "Décision ancienne")
	seedNote(t, store, "alpha", noteStamp(now, 9), "claude", "Observation ancienne")

	got, err := svc.Run(ctx, "alpha", 7, false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got.Status != types.StatusOK {
		t.Fatalf("Status = %q, message %q", got.Status, got.Message)
	}
	if !got.Confirm || got.DeleteOnly {
		t.Errorf("Confirm = %v, DeleteOnly = %v", got.Confirm, got.DeleteOnly)
	}
	if len(got.Consolidated) != 1 {
		t.Fatalf("Consolidated = %+v, want one entry", got.Consolidated)
	}
	entry := got.Consolidated[0]
	if entry.SpaceID != "alpha" || entry.Agent != "claude" {
		t.Errorf("entry = %+v", entry)
	}
	// Two orphans plus the notice written by the GC itself.
	if entry.Notes != 3 {
		t.Errorf("entry.Notes = %d, want 3", entry.Notes)
	}
	if got.Message != "GC : 3 notes orphelines consolidées dans 1 espace(s)" {
		t.Errorf("Message = %q", got.Message)
	}

	if len(client.requests) != 1 {
		t.Fatalf("LLM calls = %d, want 1", len(client.requests))
	}
	prompt := client.requests[0].Messages[1].Content
	if !strings.Contains(prompt, "GARBAGE COLLECTOR") {
		t.Error("prompt does not carry the GC notice")
	}
	if !strings.Contains(prompt, "2 notes orphelines de l'agent 'claude' (> 7 jours)") {
		t.Errorf("prompt notice wording wrong:\n%s", prompt)
	}
	if !strings.Contains(prompt, `"maintenance"`) {
		t.Error("prompt notice is missing its tags")
	}
	if !strings.Contains(prompt, "Décision ancienne") {
		t.Error("prompt is missing the orphaned notes")
	}

	if keys := liveNoteKeys(t, store, "alpha"); len(keys) != 0 {
		t.Errorf("live notes after GC = %v, want none", keys)
	}
	if _, found, err := store.Get(ctx, "alpha/bank/journal.md"); err != nil || !found {
		t.Errorf("bank/journal.md found = %v, err = %v", found, err)
	}
}

func TestRun_Consolidate_MultiAgent(t *testing.T) {
	client := &fakeLLM{reply: planReply}
	svc, store, _ := newTestGC(t, client)
	now := time.Now().UTC()

	seedSpace(t, store, "alpha")
	seedNote(t, store, "alpha", noteStamp(now, 10), "gemini", "Note gemini")
	seedNote(t, store, "alpha", noteStamp(now, 12), "claude", "Note claude")

	got, err := svc.Run(context.Background(), "alpha", 7, false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(got.Consolidated) != 2 {
		t.Fatalf("Consolidated = %+v, want two entries", got.Consolidated)
	}
	// Agents run in sorted order, one consolidation each.
	if got.Consolidated[0].Agent != "claude" || got.Consolidated[1].Agent != "gemini" {
		t.Errorf("agents = %q, %q", got.Consolidated[0].Agent, got.Consolidated[1].Agent)
	}
	for _, entry := range got.Consolidated {
		if entry.Notes != 2 {
			t.Errorf("entry %+v, want 2 notes (orphan plus notice)", entry)
		}
	}
	if len(client.requests) != 2 {
		t.Errorf("LLM calls = %d, want 2", len(client.requests))
	}
	if got.Message != "GC : 4 notes orphelines consolidées dans 1 espace(s)" {
		t.Errorf("Message = %q", got.Message)
	}
}

func TestRun_Consolidate_UnderscoreAgent(t *testing.T) {
	client := &fakeLLM{reply: planReply}
	svc, store, _ := newTestGC(t, client)
	now := time.Now().UTC()

	// Underscores are legal in agent names and also separate the key
	// segments; grouping must still recover the full name.
	seedSpace(t, store, "alpha")
	seedNote(t, store, "alpha", noteStamp(now, 10), "data_miner", "Relevé abandonné")
	seedNote(t, store, "alpha", noteStamp(now, 9), "data_miner", "Second relevé")

	got, err := svc.Run(context.Background(), "alpha", 7, false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(got.Consolidated) != 1 {
		t.Fatalf("Consolidated = %+v, want one entry", got.Consolidated)
	}
	entry := got.Consolidated[0]
	if entry.Agent != "data_miner" {
		t.Errorf("entry.Agent = %q, want data_miner", entry.Agent)
	}
	// Both orphans plus the notice, not just the notice.
	if entry.Notes != 3 {
		t.Errorf("entry.Notes = %d, want 3", entry.Notes)
	}
	if len(client.requests) != 1 {
		t.Fatalf("LLM calls = %d, want 1", len(client.requests))
	}
	prompt := client.requests[0].Messages[1].Content
	if !strings.Contains(prompt, "2 notes orphelines de l'agent 'data_miner'") {
		t.Errorf("prompt notice wording wrong:\n%s", prompt)
	}
	if keys := liveNoteKeys(t, store, "alpha"); len(keys) != 0 {
		t.Errorf("live notes after GC = %v, want none", keys)
	}
}

func TestRun_Consolidate_Locked(t *testing.T) {
	client := &fakeLLM{reply: planReply}
	svc, store, registry := newTestGC(t, client)
	now := time.Now().UTC()

	seedSpace(t, store, "alpha")
	seedNote(t, store, "alpha", noteStamp(now, 10), "claude", "Vieille note")

	release, ok := registry.TryConsolidate("alpha")
	if !ok {
		t.Fatal("TryConsolidate() failed on a fresh registry")
	}
	defer release()

	got, err := svc.Run(context.Background(), "alpha", 7, false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(got.Skipped) != 1 {
		t.Fatalf("Skipped = %+v, want one entry", got.Skipped)
	}
	if got.Skipped[0].Agent != "claude" || got.Skipped[0].Notes != 1 {
		t.Errorf("skipped entry = %+v", got.Skipped[0])
	}
	if len(got.Consolidated) != 0 {
		t.Errorf("Consolidated = %+v, want none", got.Consolidated)
	}
	if len(client.requests) != 0 {
		t.Errorf("LLM calls = %d during a locked run", len(client.requests))
	}
	// The notice was written before the lock check and stays live.
	if keys := liveNoteKeys(t, store, "alpha"); len(keys) != 2 {
		t.Errorf("live notes = %d, want orphan plus notice", len(keys))
	}
	if got.Message != "GC : 0 notes orphelines consolidées dans 1 espace(s)" {
		t.Errorf("Message = %q", got.Message)
	}
}

func TestRun_Consolidate_LLMFailure(t *testing.T) {
	client := &fakeLLM{err: errors.New("connection refused")}
	svc, store, _ := newTestGC(t, client)
	now := time.Now().UTC()

	seedSpace(t, store, "alpha")
	seedNote(t, store, "alpha", noteStamp(now, 10), "claude", "Vieille note")

	got, err := svc.Run(context.Background(), "alpha", 7, false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(got.Failed) != 1 {
		t.Fatalf("Failed = %+v, want one entry", got.Failed)
	}
	if len(got.Consolidated) != 0 {
		t.Errorf("Consolidated = %+v, want none", got.Consolidated)
	}
	// Nothing was deleted, the orphan and the notice are still there.
	if keys := liveNoteKeys(t, store, "alpha"); len(keys) != 2 {
		t.Errorf("live notes = %d, want 2", len(keys))
	}
}

func TestRun_Consolidate_Empty(t *testing.T) {
	client := &fakeLLM{reply: planReply}
	svc, store, _ := newTestGC(t, client)
	now := time.Now().UTC()

	seedSpace(t, store, "alpha")
	seedNote(t, store, "alpha", noteStamp(now, 0), "claude", "Note fraîche")

	got, err := svc.Run(context.Background(), "alpha", 7, false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got.Message != "Aucune note orpheline à consolider" {
		t.Errorf("Message = %q", got.Message)
	}
	if !got.Confirm {
		t.Error("Confirm = false after a run")
	}
	if len(client.requests) != 0 {
		t.Errorf("LLM calls = %d on an empty scan", len(client.requests))
	}
}

func TestRun_DeleteOnly(t *testing.T) {
	client := &fakeLLM{reply: planReply}
	svc, store, _ := newTestGC(t, client)
	ctx := context.Background()
	now := time.Now().UTC()

	seedSpace(t, store, "alpha")
	old1 := seedNote(t, store, "alpha", noteStamp(now, 10), "claude", "Vieille A")
	old2 := seedNote(t, store, "alpha", noteStamp(now, 9), "gemini", "Vieille B")
	fresh := seedNote(t, store, "alpha", noteStamp(now, 0), "claude", "Fraîche")

	got, err := svc.Run(ctx, "alpha", 7, true)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got.Status != types.StatusDeleted {
		t.Errorf("Status = %q, want %q", got.Status, types.StatusDeleted)
	}
	if got.Deleted != 2 {
		t.Errorf("Deleted = %d, want 2", got.Deleted)
	}
	if !got.DeleteOnly {
		t.Error("DeleteOnly = false")
	}
	if got.Message != "⚠️ 2 notes supprimées SANS consolidation dans 1 espace(s)" {
		t.Errorf("Message = %q", got.Message)
	}
	if len(client.requests) != 0 {
		t.Errorf("LLM calls = %d, delete_only must not consolidate", len(client.requests))
	}
	for _, key := range []string{old1, old2} {
		if _, found, _ := store.Get(ctx, key); found {
			t.Errorf("%s still present after delete", key)
		}
	}
	if _, found, _ := store.Get(ctx, fresh); !found {
		t.Error("fresh note was deleted")
	}
}

func TestRun_DeleteOnly_Empty(t *testing.T) {
	svc, store, _ := newTestGC(t, &fakeLLM{reply: planReply})
	now := time.Now().UTC()

	seedSpace(t, store, "alpha")
	seedNote(t, store, "alpha", noteStamp(now, 0), "claude", "Note fraîche")

	got, err := svc.Run(context.Background(), "alpha", 7, true)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got.Status != types.StatusOK {
		t.Errorf("Status = %q, want %q", got.Status, types.StatusOK)
	}
	if got.Deleted != 0 {
		t.Errorf("Deleted = %d, want 0", got.Deleted)
	}
	if got.Message != "Aucune note orpheline à supprimer" {
		t.Errorf("Message = %q", got.Message)
	}
}
