package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/chrlesur/live-memory/pkg/auth"
	"github.com/chrlesur/live-memory/pkg/backup"
	"github.com/chrlesur/live-memory/pkg/config"
	"github.com/chrlesur/live-memory/pkg/consolidator"
	"github.com/chrlesur/live-memory/pkg/gc"
	"github.com/chrlesur/live-memory/pkg/graph"
	"github.com/chrlesur/live-memory/pkg/llm"
	"github.com/chrlesur/live-memory/pkg/log"
	"github.com/chrlesur/live-memory/pkg/metrics"
	"github.com/chrlesur/live-memory/pkg/notes"
	"github.com/chrlesur/live-memory/pkg/space"
	"github.com/chrlesur/live-memory/pkg/storage"
	"github.com/chrlesur/live-memory/pkg/types"
)

// Services aggregates everything the tool handlers depend on.
type Services struct {
	Config       *config.Settings
	Store        storage.Store
	LLM          llm.Client
	Tokens       *auth.Service
	Spaces       *space.Service
	Notes        *notes.Service
	Consolidator *consolidator.Service
	GC           *gc.Service
	Backups      *backup.Service
	Graph        *graph.Service
	StartedAt    time.Time
}

// Handler executes one tool call. Implementations decode their own
// arguments and return a result embedding types.Envelope.
type Handler func(ctx context.Context, id *auth.Identity, args json.RawMessage) (any, error)

// Requirement is the permission precheck the registry enforces before a
// handler runs. The zero value marks a public tool.
type Requirement struct {
	Permission  types.Permission
	SpaceAccess bool // check the token scope against the space_id argument
}

// Tool is one entry of the MCP catalogue.
type Tool struct {
	Name        string
	Description string
	Schema      map[string]any
	Requires    Requirement
	Handler     Handler
}

// Registry holds the tool catalogue and dispatches calls.
type Registry struct {
	tools  map[string]*Tool
	order  []string
	logger zerolog.Logger
}

// NewRegistry builds the full catalogue over the services.
func NewRegistry(s *Services) *Registry {
	r := &Registry{
		tools:  map[string]*Tool{},
		logger: log.WithComponent("tools"),
	}
	r.registerSystem(s)
	r.registerSpace(s)
	r.registerLive(s)
	r.registerBank(s)
	r.registerGraph(s)
	r.registerBackup(s)
	r.registerAdmin(s)
	return r
}

// add registers one tool; registration order is the wire listing order.
func (r *Registry) add(t *Tool) {
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
}

// Tools returns the catalogue in registration order.
func (r *Registry) Tools() []*Tool {
	out := make([]*Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Len reports the number of registered tools.
func (r *Registry) Len() int { return len(r.order) }

// Call dispatches one tool invocation. It never returns a Go error: every
// outcome, panics included, becomes a result carrying a status envelope.
func (r *Registry) Call(ctx context.Context, id *auth.Identity, name string, args json.RawMessage) (result any) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Str("tool", name).Interface("panic", rec).
				Bytes("stack", debug.Stack()).Msg("Tool handler panicked")
			result = types.Fail(types.StatusError, fmt.Sprintf("internal error in %s: %v", name, rec))
		}
		status := envelopeStatus(result)
		metrics.ToolCalls.WithLabelValues(name, string(status)).Inc()
		metrics.Since(metrics.ToolCallDuration.WithLabelValues(name), start)
		r.audit(id, name, status, time.Since(start), args)
	}()

	tool, ok := r.tools[name]
	if !ok {
		return types.Fail(types.StatusError, fmt.Sprintf("unknown tool: %s", name))
	}
	if err := precheck(tool, id, args); err != nil {
		return failFromError(err)
	}

	out, err := tool.Handler(ctx, id, args)
	if err != nil {
		return failFromError(err)
	}
	return out
}

// precheck enforces the permission column of the catalogue.
func precheck(tool *Tool, id *auth.Identity, args json.RawMessage) error {
	req := tool.Requires
	if req.Permission == "" {
		return nil
	}
	if id == nil {
		return fmt.Errorf("%w: authentication required", types.ErrForbidden)
	}

	var err error
	switch req.Permission {
	case types.PermissionRead:
		err = auth.CheckRead(id)
	case types.PermissionWrite:
		err = auth.CheckWrite(id)
	case types.PermissionAdmin:
		err = auth.CheckAdmin(id)
	}
	if err != nil {
		return err
	}

	if req.SpaceAccess {
		// An absent space_id falls through to handler validation.
		if spaceID := stringArg(args, "space_id"); spaceID != "" {
			return auth.CheckAccess(id, spaceID)
		}
	}
	return nil
}

// failFromError maps service errors onto envelope codes. Anything outside
// the sentinel set becomes a plain error envelope.
func failFromError(err error) types.Envelope {
	switch {
	case errors.Is(err, types.ErrNotFound):
		return types.Fail(types.StatusNotFound, err.Error())
	case errors.Is(err, types.ErrForbidden):
		return types.Fail(types.StatusForbidden, err.Error())
	case errors.Is(err, types.ErrConflict):
		return types.Fail(types.StatusConflict, err.Error())
	case errors.Is(err, types.ErrAlreadyExists):
		return types.Fail(types.StatusAlreadyExists, err.Error())
	default:
		return types.Fail(types.StatusError, err.Error())
	}
}

type enveloped interface {
	StatusCode() types.Status
}

func envelopeStatus(result any) types.Status {
	if e, ok := result.(enveloped); ok {
		return e.StatusCode()
	}
	return types.StatusError
}

func (r *Registry) audit(id *auth.Identity, name string, status types.Status, elapsed time.Duration, args json.RawMessage) {
	evt := r.logger.Info().
		Str("tool", name).
		Str("status", string(status)).
		Dur("duration", elapsed)
	if id != nil {
		evt = evt.Str("identity", id.Name).Str("token", auth.DisplayHash(id.TokenHash))
	}
	if spaceID := stringArg(args, "space_id"); spaceID != "" {
		evt = evt.Str("space_id", spaceID)
	}
	evt.Msg("Tool call")
}

// decodeArgs fills out from the raw tool arguments. Absent arguments keep
// their zero values.
func decodeArgs(args json.RawMessage, out any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, out); err != nil {
		return fmt.Errorf("%w: malformed arguments: %v", types.ErrInvalid, err)
	}
	return nil
}

// stringArg peeks one string field out of the raw arguments without
// decoding the full handler shape.
func stringArg(args json.RawMessage, field string) string {
	if len(args) == 0 {
		return ""
	}
	var m map[string]json.RawMessage
	if json.Unmarshal(args, &m) != nil {
		return ""
	}
	var v string
	if raw, ok := m[field]; ok {
		_ = json.Unmarshal(raw, &v)
	}
	return v
}
