package api

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chrlesur/live-memory/pkg/auth"
	"github.com/chrlesur/live-memory/pkg/events"
	"github.com/chrlesur/live-memory/pkg/metrics"
)

// sendWait bounds how long a response waits for room in a session buffer
// before it is dropped.
const sendWait = 5 * time.Second

// session is one live SSE stream. The identity is the one that opened the
// stream; it scopes event notifications, while tool calls use the identity
// of each POST.
type session struct {
	id       string
	identity *auth.Identity
	out      chan []byte
	done     chan struct{}
	once     sync.Once
}

// send queues one frame, waiting briefly when the buffer is full. Tool
// call responses ride this path and must survive a reader that is slow to
// drain.
func (s *session) send(frame []byte) bool {
	t := time.NewTimer(sendWait)
	defer t.Stop()
	select {
	case s.out <- frame:
		return true
	case <-s.done:
		return false
	case <-t.C:
		return false
	}
}

// trySend queues one frame only if there is room. Event notifications are
// droppable.
func (s *session) trySend(frame []byte) bool {
	select {
	case s.out <- frame:
		return true
	default:
		return false
	}
}

func (s *session) close() {
	s.once.Do(func() { close(s.done) })
}

// sessionHub tracks the open SSE sessions by id.
type sessionHub struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func newSessionHub() *sessionHub {
	return &sessionHub{sessions: make(map[string]*session)}
}

func (h *sessionHub) add(identity *auth.Identity) *session {
	sess := &session{
		id:       uuid.NewString(),
		identity: identity,
		out:      make(chan []byte, 32),
		done:     make(chan struct{}),
	}
	h.mu.Lock()
	h.sessions[sess.id] = sess
	h.mu.Unlock()
	metrics.ActiveSSESessions.Inc()
	return sess
}

// remove forgets a session. Safe to call after closeAll.
func (h *sessionHub) remove(id string) {
	h.mu.Lock()
	sess, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()
	if ok {
		sess.close()
		metrics.ActiveSSESessions.Dec()
	}
}

func (h *sessionHub) get(id string) (*session, bool) {
	if id == "" {
		return nil, false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	sess, ok := h.sessions[id]
	return sess, ok
}

func (h *sessionHub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *sessionHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sess := range h.sessions {
		sess.close()
		delete(h.sessions, id)
		metrics.ActiveSSESessions.Dec()
	}
}

// broadcast turns one service event into an MCP notification and offers it
// to every session whose identity may see the space. Space-less events go
// to everyone.
func (h *sessionHub) broadcast(evt *events.Event) {
	data := map[string]any{
		"space_id":  evt.SpaceID,
		"agent":     evt.Agent,
		"message":   evt.Message,
		"timestamp": evt.Timestamp.UTC().Format(time.RFC3339),
	}
	if len(evt.Metadata) > 0 {
		data["metadata"] = evt.Metadata
	}
	frame, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  "notifications/message",
		"params": map[string]any{
			"level":  "info",
			"logger": string(evt.Type),
			"data":   data,
		},
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sess := range h.sessions {
		if evt.SpaceID != "" && sess.identity != nil && !sess.identity.CanAccess(evt.SpaceID) {
			continue
		}
		sess.trySend(frame)
	}
}
