package events

import (
	"testing"
	"time"
)

func TestBroker_PublishSubscribe(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	broker.Publish(&Event{
		Type:    NoteWritten,
		SpaceID: "alpha",
		Agent:   "claude",
	})

	select {
	case event := <-sub:
		if event.Type != NoteWritten {
			t.Errorf("event type = %s, want %s", event.Type, NoteWritten)
		}
		if event.SpaceID != "alpha" {
			t.Errorf("event space = %s, want alpha", event.SpaceID)
		}
		if event.Timestamp.IsZero() {
			t.Error("event timestamp not set")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBroker_MultipleSubscribers(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub1 := broker.Subscribe()
	sub2 := broker.Subscribe()
	defer broker.Unsubscribe(sub1)
	defer broker.Unsubscribe(sub2)

	if broker.SubscriberCount() != 2 {
		t.Errorf("SubscriberCount() = %d, want 2", broker.SubscriberCount())
	}

	broker.Publish(&Event{Type: SpaceCreated, SpaceID: "alpha"})

	for i, sub := range []chan *Event{sub1, sub2} {
		select {
		case event := <-sub:
			if event.Type != SpaceCreated {
				t.Errorf("subscriber %d got type %s, want %s", i, event.Type, SpaceCreated)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("subscriber %d timed out", i)
		}
	}
}

func TestBroker_SlowSubscriberDoesNotBlock(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	// Never drained; its buffer fills and overflow is dropped
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			broker.Publish(&Event{Type: NoteWritten})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestBroker_StopIdempotent(t *testing.T) {
	broker := NewBroker()
	broker.Start()

	broker.Stop()
	broker.Stop()

	// Publishing after Stop must not block
	done := make(chan struct{})
	go func() {
		broker.Publish(&Event{Type: NoteWritten})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked after Stop")
	}
}

func TestBroker_UnsubscribeTwice(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	broker.Unsubscribe(sub)
	broker.Unsubscribe(sub)

	if broker.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", broker.SubscriberCount())
	}
}
