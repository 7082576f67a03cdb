package graph

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/chrlesur/live-memory/pkg/events"
	"github.com/chrlesur/live-memory/pkg/log"
	"github.com/chrlesur/live-memory/pkg/metrics"
	"github.com/chrlesur/live-memory/pkg/storage"
	"github.com/chrlesur/live-memory/pkg/types"
)

// Service bridges spaces to a remote knowledge-graph service. The binding
// lives in the space meta; pushes replace remote documents wholesale so
// the remote recomputes its graph from current bank content.
type Service struct {
	store  storage.Store
	broker *events.Broker
	dial   DialFunc
	logger zerolog.Logger
}

// NewService creates the graph bridge service.
func NewService(store storage.Store, broker *events.Broker) *Service {
	return &Service{
		store:  store,
		broker: broker,
		dial:   Dial,
		logger: log.WithComponent("graph"),
	}
}

// Typed shapes of the remote tool replies. Unknown remote fields are
// dropped on decode.
type memoryListReply struct {
	Status   string `json:"status"`
	Memories []struct {
		MemoryID string `json:"memory_id"`
		ID       string `json:"id"`
	} `json:"memories"`
}

type documentListReply struct {
	Status    string `json:"status"`
	Documents []struct {
		Filename    string `json:"filename"`
		EntityCount int    `json:"entity_count"`
		IngestedAt  string `json:"ingested_at"`
		Size        int64  `json:"size"`
		SizeBytes   int64  `json:"size_bytes"`
	} `json:"documents"`
}

type memoryStatsReply struct {
	Status        string              `json:"status"`
	DocumentCount int                 `json:"document_count"`
	EntityCount   int                 `json:"entity_count"`
	RelationCount int                 `json:"relation_count"`
	TopEntities   []types.GraphEntity `json:"top_entities"`
}

// Connect binds a space to a memory on the remote graph service. The
// remote is probed first and the memory is created there when absent; the
// binding, bearer token included, is persisted in the space meta.
func (s *Service) Connect(ctx context.Context, spaceID, rawURL, token, memoryID, ontology string) (*types.GraphConnectResult, error) {
	if err := types.ValidateSpaceID(spaceID); err != nil {
		return nil, err
	}
	if rawURL == "" {
		return nil, fmt.Errorf("%w: url is required", types.ErrInvalid)
	}
	if memoryID == "" {
		return nil, fmt.Errorf("%w: memory_id is required", types.ErrInvalid)
	}
	if ontology == "" {
		ontology = "general"
	}
	if !types.ValidOntology(ontology) {
		return nil, fmt.Errorf("%w: unknown ontology %q (valid: %s)",
			types.ErrInvalid, ontology, strings.Join(types.Ontologies, ", "))
	}

	var meta types.SpaceMeta
	found, err := storage.GetJSON(ctx, s.store, types.MetaKey(spaceID), &meta)
	if err != nil {
		return nil, err
	}
	if !found {
		return &types.GraphConnectResult{
			Envelope: types.Fail(types.StatusNotFound, fmt.Sprintf("space %s does not exist", spaceID)),
			SpaceID:  spaceID,
		}, nil
	}

	client, err := s.dial(ctx, rawURL, token, 0)
	if err != nil {
		return &types.GraphConnectResult{
			Envelope: types.Fail(types.StatusError, fmt.Sprintf("cannot connect to the graph service: %v", err)),
			SpaceID:  spaceID,
		}, nil
	}
	defer client.Close()

	health, err := client.CallTool(ctx, "system_health", nil)
	if err != nil {
		return &types.GraphConnectResult{
			Envelope: types.Fail(types.StatusError, fmt.Sprintf("graph service unavailable: %v", err)),
			SpaceID:  spaceID,
		}, nil
	}
	if replyStatus(health) == "error" {
		return &types.GraphConnectResult{
			Envelope: types.Fail(types.StatusError, fmt.Sprintf("graph service unavailable: %s", replyMessage(health))),
			SpaceID:  spaceID,
		}, nil
	}

	exists := false
	if reply, err := client.CallTool(ctx, "memory_list", nil); err == nil {
		var memories memoryListReply
		if decodeReply(reply, &memories) == nil && memories.Status == "ok" {
			for _, m := range memories.Memories {
				id := m.MemoryID
				if id == "" {
					id = m.ID
				}
				if id == memoryID {
					exists = true
					break
				}
			}
		}
	}

	created := false
	if !exists {
		reply, err := client.CallTool(ctx, "memory_create", map[string]any{
			"memory_id":   memoryID,
			"name":        "Live Memory — " + spaceID,
			"description": fmt.Sprintf("Memory Bank synchronisée depuis live-memory space '%s'", spaceID),
			"ontology":    ontology,
		})
		if err != nil {
			return &types.GraphConnectResult{
				Envelope: types.Fail(types.StatusError, fmt.Sprintf("cannot create memory %s: %v", memoryID, err)),
				SpaceID:  spaceID,
			}, nil
		}
		if replyStatus(reply) == "error" {
			return &types.GraphConnectResult{
				Envelope: types.Fail(types.StatusError, fmt.Sprintf("cannot create memory %s: %s", memoryID, replyMessage(reply))),
				SpaceID:  spaceID,
			}, nil
		}
		created = true
		s.logger.Info().Str("memory_id", memoryID).Str("ontology", ontology).Msg("Remote memory created")
	}

	meta.GraphMemory = &types.GraphMemoryConfig{
		URL:         rawURL,
		Token:       token,
		MemoryID:    memoryID,
		Ontology:    ontology,
		ConnectedAt: time.Now().UTC(),
	}
	if err := storage.PutJSON(ctx, s.store, types.MetaKey(spaceID), meta); err != nil {
		return nil, err
	}

	s.broker.Publish(&events.Event{
		Type:    events.GraphConnected,
		SpaceID: spaceID,
		Message: fmt.Sprintf("space connected to graph memory %s", memoryID),
	})
	s.logger.Info().Str("space_id", spaceID).Str("memory_id", memoryID).
		Str("url", rawURL).Msg("Space connected to graph memory")

	return &types.GraphConnectResult{
		Envelope: types.Envelope{Status: types.StatusConnected},
		SpaceID:  spaceID,
		GraphMemory: types.GraphConnectInfo{
			URL:           rawURL,
			MemoryID:      memoryID,
			Ontology:      ontology,
			MemoryCreated: created,
		},
	}, nil
}

// Push republishes every bank file into the bound remote memory. Each file
// is deleted remotely then re-ingested, so the remote recomputes entities
// from current content; remote documents no longer present in the bank are
// removed afterwards. Per-file failures are counted, never fatal.
func (s *Service) Push(ctx context.Context, spaceID string) (*types.GraphPushResult, error) {
	if err := types.ValidateSpaceID(spaceID); err != nil {
		return nil, err
	}
	start := time.Now()

	var meta types.SpaceMeta
	found, err := storage.GetJSON(ctx, s.store, types.MetaKey(spaceID), &meta)
	if err != nil {
		return nil, err
	}
	if !found {
		return &types.GraphPushResult{
			Envelope: types.Fail(types.StatusNotFound, fmt.Sprintf("space %s does not exist", spaceID)),
			SpaceID:  spaceID,
		}, nil
	}
	if meta.GraphMemory == nil {
		return &types.GraphPushResult{
			Envelope: types.Fail(types.StatusError,
				fmt.Sprintf("space %s is not connected to a graph memory, call graph_connect first", spaceID)),
			SpaceID: spaceID,
		}, nil
	}
	gm := meta.GraphMemory

	bank, err := storage.FetchAll(ctx, s.store, types.BankPrefix(spaceID), false)
	if err != nil {
		return nil, err
	}
	if len(bank) == 0 {
		return &types.GraphPushResult{
			Envelope: types.Envelope{Status: types.StatusOK, Message: "no bank files to push"},
			SpaceID:  spaceID,
			MemoryID: gm.MemoryID,
		}, nil
	}

	client, err := s.dial(ctx, gm.URL, gm.Token, ingestTimeout)
	if err != nil {
		return &types.GraphPushResult{
			Envelope: types.Fail(types.StatusError, fmt.Sprintf("cannot connect to the graph service: %v", err)),
			SpaceID:  spaceID,
			MemoryID: gm.MemoryID,
		}, nil
	}
	defer client.Close()

	// Remote inventory, for the orphan sweep after the pushes.
	remote := map[string]bool{}
	if reply, err := client.CallTool(ctx, "document_list", map[string]any{"memory_id": gm.MemoryID}); err != nil {
		s.logger.Warn().Err(err).Str("space_id", spaceID).Msg("Cannot list remote documents")
	} else {
		var docs documentListReply
		if decodeReply(reply, &docs) == nil && docs.Status == "ok" {
			for _, doc := range docs.Documents {
				remote[doc.Filename] = true
			}
		}
	}

	result := &types.GraphPushResult{
		Envelope: types.Envelope{Status: types.StatusOK},
		SpaceID:  spaceID,
		MemoryID: gm.MemoryID,
	}
	local := map[string]bool{}
	for _, obj := range bank {
		filename := path.Base(obj.Key)
		local[filename] = true

		// Delete first; an absent document is not an error.
		del, err := client.CallTool(ctx, "document_delete", map[string]any{
			"memory_id": gm.MemoryID,
			"filename":  filename,
		})
		switch {
		case err != nil:
			s.logger.Warn().Err(err).Str("filename", filename).Msg("Pre-ingest delete failed")
		case replyStatus(del) != "error":
			result.DeletedBeforeReingest++
		}

		ingest, err := client.CallTool(ctx, "memory_ingest", map[string]any{
			"memory_id":      gm.MemoryID,
			"filename":       filename,
			"content_base64": base64.StdEncoding.EncodeToString(obj.Content),
			"ontology":       gm.Ontology,
		})
		if err != nil || replyStatus(ingest) == "error" {
			detail := replyMessage(ingest)
			if err != nil {
				detail = err.Error()
			}
			result.Errors++
			result.ErrorDetails = append(result.ErrorDetails, types.GraphPushError{Filename: filename, Error: detail})
			s.logger.Error().Str("filename", filename).Str("cause", detail).Msg("Ingest failed")
			continue
		}
		result.Pushed++
		metrics.GraphDocumentsPushed.Inc()
		s.logger.Debug().Str("filename", filename).Int("size", len(obj.Content)).Msg("Document ingested")
	}

	orphans := make([]string, 0, len(remote))
	for name := range remote {
		if !local[name] {
			orphans = append(orphans, name)
		}
	}
	sort.Strings(orphans)
	for _, name := range orphans {
		del, err := client.CallTool(ctx, "document_delete", map[string]any{
			"memory_id": gm.MemoryID,
			"filename":  name,
		})
		if err != nil || replyStatus(del) == "error" {
			s.logger.Warn().Err(err).Str("filename", name).Msg("Orphan cleanup failed")
			continue
		}
		result.CleanedOrphans++
		s.logger.Debug().Str("filename", name).Msg("Orphan document removed")
	}

	var lastStats *types.GraphStats
	if reply, err := client.CallTool(ctx, "memory_stats", map[string]any{"memory_id": gm.MemoryID}); err == nil {
		var stats memoryStatsReply
		if decodeReply(reply, &stats) == nil && stats.Status == "ok" {
			lastStats = &types.GraphStats{
				DocumentCount: stats.DocumentCount,
				EntityCount:   stats.EntityCount,
				RelationCount: stats.RelationCount,
			}
		}
	}

	// Re-read the meta before writing: a push runs for minutes and the
	// consolidator updates counters on the same file.
	now := time.Now().UTC()
	var current types.SpaceMeta
	found, err = storage.GetJSON(ctx, s.store, types.MetaKey(spaceID), &current)
	if err != nil {
		s.logger.Warn().Err(err).Str("space_id", spaceID).Msg("Cannot record push in space meta")
	} else if found && current.GraphMemory != nil {
		current.GraphMemory.LastPushAt = &now
		current.GraphMemory.PushCount++
		if lastStats != nil {
			current.GraphMemory.LastStats = lastStats
		}
		if err := storage.PutJSON(ctx, s.store, types.MetaKey(spaceID), current); err != nil {
			s.logger.Warn().Err(err).Str("space_id", spaceID).Msg("Cannot record push in space meta")
		}
	}

	result.DurationSeconds = math.Round(time.Since(start).Seconds()*10) / 10

	s.broker.Publish(&events.Event{
		Type:    events.GraphPushed,
		SpaceID: spaceID,
		Message: fmt.Sprintf("pushed %d bank files to %s", result.Pushed, gm.MemoryID),
	})
	s.logger.Info().Str("space_id", spaceID).Str("memory_id", gm.MemoryID).
		Int("pushed", result.Pushed).Int("cleaned", result.CleanedOrphans).
		Int("errors", result.Errors).Float64("duration", result.DurationSeconds).
		Msg("Bank pushed to graph memory")

	return result, nil
}

// Status reports the binding of a space and, when the remote answers,
// live statistics and the ingested document list.
func (s *Service) Status(ctx context.Context, spaceID string) (*types.GraphStatusResult, error) {
	if err := types.ValidateSpaceID(spaceID); err != nil {
		return nil, err
	}

	var meta types.SpaceMeta
	found, err := storage.GetJSON(ctx, s.store, types.MetaKey(spaceID), &meta)
	if err != nil {
		return nil, err
	}
	if !found {
		return &types.GraphStatusResult{
			Envelope: types.Fail(types.StatusNotFound, fmt.Sprintf("space %s does not exist", spaceID)),
			SpaceID:  spaceID,
		}, nil
	}
	if meta.GraphMemory == nil {
		return &types.GraphStatusResult{
			Envelope: types.Envelope{
				Status:  types.StatusOK,
				Message: fmt.Sprintf("space %s is not connected to a graph memory", spaceID),
			},
			SpaceID: spaceID,
		}, nil
	}
	gm := meta.GraphMemory

	result := &types.GraphStatusResult{
		Envelope:  types.Envelope{Status: types.StatusOK},
		SpaceID:   spaceID,
		Connected: true,
		Config: &types.GraphConfigInfo{
			URL:      gm.URL,
			MemoryID: gm.MemoryID,
			Ontology: gm.Ontology,
		},
		PushCount: gm.PushCount,
	}
	if !gm.ConnectedAt.IsZero() {
		result.Config.ConnectedAt = gm.ConnectedAt.Format(time.RFC3339)
	}
	if gm.LastPushAt != nil {
		result.LastPushAt = gm.LastPushAt.Format(time.RFC3339)
	}

	client, err := s.dial(ctx, gm.URL, gm.Token, 0)
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}
	defer client.Close()

	statsReply, err := client.CallTool(ctx, "memory_stats", map[string]any{"memory_id": gm.MemoryID})
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}
	var stats memoryStatsReply
	if decodeReply(statsReply, &stats) == nil && stats.Status == "ok" {
		result.Stats = &types.GraphStats{
			DocumentCount: stats.DocumentCount,
			EntityCount:   stats.EntityCount,
			RelationCount: stats.RelationCount,
		}
		result.TopEntities = stats.TopEntities
	}

	docsReply, err := client.CallTool(ctx, "document_list", map[string]any{"memory_id": gm.MemoryID})
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}
	var docs documentListReply
	if decodeReply(docsReply, &docs) == nil && docs.Status == "ok" {
		for _, doc := range docs.Documents {
			size := doc.SizeBytes
			if size == 0 {
				size = doc.Size
			}
			result.GraphDocuments = append(result.GraphDocuments, types.GraphDocument{
				Filename:    doc.Filename,
				EntityCount: doc.EntityCount,
				IngestedAt:  doc.IngestedAt,
				Size:        size,
			})
		}
	}

	result.Reachable = true
	return result, nil
}

// Disconnect removes the binding from the space meta. Remote data stays
// untouched.
func (s *Service) Disconnect(ctx context.Context, spaceID string) (*types.GraphDisconnectResult, error) {
	if err := types.ValidateSpaceID(spaceID); err != nil {
		return nil, err
	}

	var meta types.SpaceMeta
	found, err := storage.GetJSON(ctx, s.store, types.MetaKey(spaceID), &meta)
	if err != nil {
		return nil, err
	}
	if !found {
		return &types.GraphDisconnectResult{
			Envelope: types.Fail(types.StatusNotFound, fmt.Sprintf("space %s does not exist", spaceID)),
			SpaceID:  spaceID,
		}, nil
	}
	if meta.GraphMemory == nil {
		return &types.GraphDisconnectResult{
			Envelope: types.Envelope{
				Status:  types.StatusOK,
				Message: fmt.Sprintf("space %s is not connected to a graph memory", spaceID),
			},
			SpaceID: spaceID,
		}, nil
	}

	was := &types.GraphDisconnectInfo{
		URL:       meta.GraphMemory.URL,
		MemoryID:  meta.GraphMemory.MemoryID,
		PushCount: meta.GraphMemory.PushCount,
	}
	meta.GraphMemory = nil
	if err := storage.PutJSON(ctx, s.store, types.MetaKey(spaceID), meta); err != nil {
		return nil, err
	}

	s.logger.Info().Str("space_id", spaceID).Str("memory_id", was.MemoryID).
		Msg("Space disconnected from graph memory")

	return &types.GraphDisconnectResult{
		Envelope:       types.Envelope{Status: types.StatusDisconnected},
		SpaceID:        spaceID,
		WasConnectedTo: was,
	}, nil
}

func replyStatus(reply map[string]any) string {
	s, _ := reply["status"].(string)
	return s
}

func replyMessage(reply map[string]any) string {
	s, _ := reply["message"].(string)
	return s
}

// decodeReply converts a generic tool reply into a typed shape.
func decodeReply(reply map[string]any, out any) error {
	raw, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
