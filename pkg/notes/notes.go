package notes

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/chrlesur/live-memory/pkg/events"
	"github.com/chrlesur/live-memory/pkg/log"
	"github.com/chrlesur/live-memory/pkg/metrics"
	"github.com/chrlesur/live-memory/pkg/storage"
	"github.com/chrlesur/live-memory/pkg/types"
)

const (
	// DefaultReadLimit bounds live_read when the caller passes none.
	DefaultReadLimit = 50
	// MaxReadLimit caps live_read whatever the caller asks for.
	MaxReadLimit = 200
	// DefaultSearchLimit bounds live_search when the caller passes none.
	DefaultSearchLimit = 20
	// MaxSearchLimit caps live_search whatever the caller asks for.
	MaxSearchLimit = 100
	// snippetRadius is the number of characters kept around a search match.
	snippetRadius = 120
)

// Service implements the append-only live note operations.
type Service struct {
	store  storage.Store
	broker *events.Broker
	logger zerolog.Logger
}

// NewService creates the note service.
func NewService(store storage.Store, broker *events.Broker) *Service {
	return &Service{
		store:  store,
		broker: broker,
		logger: log.WithComponent("notes"),
	}
}

// WriteRequest carries the arguments of live_note.
type WriteRequest struct {
	SpaceID  string
	Agent    string
	Category types.Category
	Content  string
	Tags     []string
}

// Write appends one note to the space. Notes are immutable once written;
// no lock is taken and concurrent writers never conflict thanks to the
// random key suffix.
func (s *Service) Write(ctx context.Context, req WriteRequest) (*types.NoteWriteResult, error) {
	if err := types.ValidateSpaceID(req.SpaceID); err != nil {
		return nil, err
	}
	if err := types.ValidateAgent(req.Agent); err != nil {
		return nil, err
	}
	if err := types.ValidateCategory(req.Category); err != nil {
		return nil, err
	}
	if err := types.ValidateContent(req.Content); err != nil {
		return nil, err
	}
	tags := types.NormalizeTags(req.Tags)
	agent := types.SanitizeAgent(req.Agent)

	exists, err := s.store.Exists(ctx, types.MetaKey(req.SpaceID))
	if err != nil {
		return nil, err
	}
	if !exists {
		return &types.NoteWriteResult{
			Envelope: types.Fail(types.StatusNotFound, fmt.Sprintf("space %s does not exist", req.SpaceID)),
			SpaceID:  req.SpaceID,
		}, nil
	}

	now := time.Now().UTC()
	note := &types.Note{
		Filename:  ComposeFilename(now, agent, req.Category),
		Timestamp: now.Format(time.RFC3339),
		Agent:     agent,
		Category:  req.Category,
		Tags:      tags,
		SpaceID:   req.SpaceID,
		Content:   req.Content,
	}
	body := ComposeBody(note)

	key := types.LivePrefix(req.SpaceID) + note.Filename
	if err := s.store.Put(ctx, key, []byte(body), "text/markdown"); err != nil {
		return nil, fmt.Errorf("failed to write note: %w", err)
	}

	metrics.NotesWritten.Inc()
	s.broker.Publish(&events.Event{
		Type:    events.NoteWritten,
		SpaceID: req.SpaceID,
		Agent:   agent,
		Message: fmt.Sprintf("note %s written", note.Filename),
	})
	s.logger.Debug().Str("space_id", req.SpaceID).Str("agent", agent).
		Str("filename", note.Filename).Int("size", len(body)).Msg("Note written")

	return &types.NoteWriteResult{
		Envelope:  types.Envelope{Status: types.StatusCreated},
		SpaceID:   req.SpaceID,
		Filename:  note.Filename,
		Agent:     agent,
		Category:  req.Category,
		Timestamp: note.Timestamp,
		Size:      len(body),
	}, nil
}

// ReadRequest carries the arguments of live_read. Zero values mean no
// filter; Since compares lexicographically against the key stamps.
type ReadRequest struct {
	SpaceID  string
	Limit    int
	Category types.Category
	Agent    string
	Since    string
}

// Read returns live notes newest first.
func (s *Service) Read(ctx context.Context, req ReadRequest) (*types.NotesReadResult, error) {
	if err := types.ValidateSpaceID(req.SpaceID); err != nil {
		return nil, err
	}
	if req.Limit <= 0 {
		req.Limit = DefaultReadLimit
	}
	if req.Limit > MaxReadLimit {
		req.Limit = MaxReadLimit
	}

	exists, err := s.store.Exists(ctx, types.MetaKey(req.SpaceID))
	if err != nil {
		return nil, err
	}
	if !exists {
		return &types.NotesReadResult{
			Envelope: types.Fail(types.StatusNotFound, fmt.Sprintf("space %s does not exist", req.SpaceID)),
			SpaceID:  req.SpaceID,
		}, nil
	}

	all, err := s.FetchAll(ctx, req.SpaceID)
	if err != nil {
		return nil, err
	}

	filtered := make([]types.Note, 0, len(all))
	for _, note := range all {
		if req.Agent != "" && note.Agent != req.Agent {
			continue
		}
		if req.Category != "" && note.Category != req.Category {
			continue
		}
		if req.Since != "" && KeyTimestamp(note.Filename) < req.Since {
			continue
		}
		filtered = append(filtered, note)
	}

	// Newest first
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Filename > filtered[j].Filename })

	total := len(filtered)
	if len(filtered) > req.Limit {
		filtered = filtered[:req.Limit]
	}

	return &types.NotesReadResult{
		Envelope: types.Envelope{Status: types.StatusOK},
		SpaceID:  req.SpaceID,
		Notes:    filtered,
		Count:    len(filtered),
		Total:    total,
		HasMore:  total > len(filtered),
	}, nil
}

// Search scans note bodies and tags for a case-insensitive substring.
func (s *Service) Search(ctx context.Context, spaceID, query string, limit int) (*types.SearchResult, error) {
	if err := types.ValidateSpaceID(spaceID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query must not be empty", types.ErrInvalid)
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	exists, err := s.store.Exists(ctx, types.MetaKey(spaceID))
	if err != nil {
		return nil, err
	}
	if !exists {
		return &types.SearchResult{
			Envelope: types.Fail(types.StatusNotFound, fmt.Sprintf("space %s does not exist", spaceID)),
			SpaceID:  spaceID,
			Query:    query,
		}, nil
	}

	all, err := s.FetchAll(ctx, spaceID)
	if err != nil {
		return nil, err
	}

	// Newest first so fresh context wins when the limit truncates
	sort.Slice(all, func(i, j int) bool { return all[i].Filename > all[j].Filename })

	needle := strings.ToLower(query)
	matches := make([]types.SearchMatch, 0, limit)
	for _, note := range all {
		if len(matches) >= limit {
			break
		}
		if !noteMatches(&note, needle) {
			continue
		}
		matches = append(matches, types.SearchMatch{
			Filename: note.Filename,
			Agent:    note.Agent,
			Category: note.Category,
			Snippet:  snippet(note.Content, needle),
		})
	}

	return &types.SearchResult{
		Envelope: types.Envelope{Status: types.StatusOK},
		SpaceID:  spaceID,
		Query:    query,
		Matches:  matches,
		Count:    len(matches),
	}, nil
}

// FetchAll downloads and parses every live note of a space. Shared with the
// consolidator and the garbage collector.
func (s *Service) FetchAll(ctx context.Context, spaceID string) ([]types.Note, error) {
	objects, err := storage.FetchAll(ctx, s.store, types.LivePrefix(spaceID), false)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch notes: %w", err)
	}

	parsed := make([]types.Note, 0, len(objects))
	for _, obj := range objects {
		filename := strings.TrimPrefix(obj.Key, types.LivePrefix(spaceID))
		parsed = append(parsed, *Parse(filename, obj.Content))
	}
	return parsed, nil
}

func noteMatches(note *types.Note, needle string) bool {
	if strings.Contains(strings.ToLower(note.Content), needle) {
		return true
	}
	for _, tag := range note.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

// snippet extracts a window around the first match, or the head of the
// content when the match was in the tags. Window edges snap to rune
// boundaries so accented text never yields broken UTF-8.
func snippet(content, needle string) string {
	lower := strings.ToLower(content)
	idx := strings.Index(lower, needle)
	if idx < 0 || idx > len(content) {
		if len(content) > 2*snippetRadius {
			return content[:boundary(content, 2*snippetRadius)] + "..."
		}
		return content
	}

	start := idx - snippetRadius
	if start < 0 {
		start = 0
	}
	start = boundary(content, start)

	end := idx + len(needle) + snippetRadius
	if end > len(content) {
		end = len(content)
	}
	end = boundary(content, end)

	out := content[start:end]
	if start > 0 {
		out = "..." + out
	}
	if end < len(content) {
		out += "..."
	}
	return out
}

// boundary snaps a byte offset back to the nearest rune start.
func boundary(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
