/*
Package events provides an in-memory event broker for Live Memory's pub/sub
messaging.

The events package implements a lightweight event bus broadcasting service
events to interested subscribers. The API server forwards events to
connected MCP sessions as notifications/message frames, scoped to the
sessions whose token may see the space, without knowing about the
packages that emit them.

# Architecture

	┌──────────────────── EVENT BROKER ─────────────────────┐
	│                                                        │
	│  Publisher → Event Channel (buffer: 100)               │
	│       ↓                                                │
	│  Broadcast Loop                                        │
	│       ↓                                                │
	│  Subscriber Channels (buffer: 50 each)                 │
	│                                                        │
	│  Event Types                                           │
	│    Space:         space.created, space.deleted         │
	│    Notes:         note.written                         │
	│    Consolidation: consolidation.completed / .failed    │
	│    Maintenance:   gc.completed                         │
	│    Backups:       backup.created, backup.restored      │
	│    Graph:         graph.connected, graph.pushed        │
	│    Tokens:        token.created, token.revoked         │
	└────────────────────────────────────────────────────────┘

# Core Components

Event Broker:
  - Central message bus for event distribution
  - Manages subscriber lifecycle
  - Non-blocking publish (buffered channel)
  - Graceful shutdown via stop channel

Event:
  - Type: Event type (space.created, note.written, etc.)
  - SpaceID, Agent: Origin of the event where applicable
  - Timestamp: When the event occurred
  - Message: Human-readable description
  - Metadata: Key-value pairs for additional context

# Usage

Publishing:

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	broker.Publish(&events.Event{
		Type:    events.NoteWritten,
		SpaceID: "project-apollo",
		Agent:   "claude",
		Message: "note written",
	})

Subscribing:

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	for event := range sub {
		fmt.Printf("[%s] %s\n", event.Type, event.Message)
	}

# Design Patterns

Non-Blocking Publish:
  - Publish never blocks the caller
  - Slow subscribers lose events rather than stall writers
  - Acceptable for notifications; state lives in storage

Fan-Out:
  - Every subscriber receives every event
  - Filtering happens subscriber-side

# See Also

  - pkg/api for the SSE notification forwarding
*/
package events
