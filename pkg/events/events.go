package events

import (
	"sync"
	"time"
)

// Type names one kind of service activity.
type Type string

// The activity vocabulary. The API server forwards each of these to
// the SSE sessions whose token may see the space concerned.
const (
	SpaceCreated        Type = "space.created"
	SpaceDeleted        Type = "space.deleted"
	NoteWritten         Type = "note.written"
	ConsolidationDone   Type = "consolidation.completed"
	ConsolidationFailed Type = "consolidation.failed"
	GCCompleted         Type = "gc.completed"
	BackupCreated       Type = "backup.created"
	BackupRestored      Type = "backup.restored"
	GraphConnected      Type = "graph.connected"
	GraphPushed         Type = "graph.pushed"
	TokenCreated        Type = "token.created"
	TokenRevoked        Type = "token.revoked"
)

// Event is one entry of the activity stream. SpaceID scopes fan-out:
// events without a space reach every session.
type Event struct {
	Type      Type
	SpaceID   string
	Agent     string
	Message   string
	Timestamp time.Time
	Metadata  map[string]string
}

const (
	intakeBuffer     = 100
	subscriberBuffer = 50
)

// Broker decouples the services that emit activity from the sessions
// that watch it. Publishing never blocks a tool call: intake is
// buffered, and a slow subscriber loses events rather than holding
// anyone up.
type Broker struct {
	mu   sync.RWMutex
	subs map[chan *Event]struct{}

	intake chan *Event
	done   chan struct{}
	stop   sync.Once
}

// NewBroker builds an idle broker; Start launches its fan-out loop.
func NewBroker() *Broker {
	return &Broker{
		subs:   make(map[chan *Event]struct{}),
		intake: make(chan *Event, intakeBuffer),
		done:   make(chan struct{}),
	}
}

// Start launches the fan-out goroutine.
func (b *Broker) Start() {
	go b.loop()
}

// Stop ends fan-out and releases pending publishers. Idempotent.
func (b *Broker) Stop() {
	b.stop.Do(func() { close(b.done) })
}

// Subscribe registers a watcher and returns its event channel.
func (b *Broker) Subscribe() chan *Event {
	ch := make(chan *Event, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a watcher and closes its channel. Unknown
// channels are ignored, so double unsubscription is harmless.
func (b *Broker) Unsubscribe(ch chan *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// Publish queues one event for fan-out, stamping it when the caller
// did not. Events published after Stop are dropped.
func (b *Broker) Publish(evt *Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	select {
	case b.intake <- evt:
	case <-b.done:
	}
}

// SubscriberCount reports the number of live watchers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broker) loop() {
	for {
		select {
		case evt := <-b.intake:
			b.fanOut(evt)
		case <-b.done:
			return
		}
	}
}

// fanOut offers the event to every watcher without waiting: a full
// subscriber buffer costs that watcher the event, never the publisher.
func (b *Broker) fanOut(evt *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}
