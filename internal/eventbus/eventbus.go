// Package eventbus implements the in-process event fan-out of
// spec.md §4.9: an in-memory publish/subscribe bus with no
// persistence, feeding the WebSocket layer. There is no backfill on
// reconnect by design (§4.9) — unlike the teacher's
// internal/eventbus, which persists every event to SQLite for replay,
// this bus only carries events to subscribers that are listening at
// publish time.
package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type EventType string

const (
	EventAgentCreated  EventType = "agent:created"
	EventAgentStatus   EventType = "agent:status"
	EventAgentOutput   EventType = "agent:output"
	EventAgentKilled   EventType = "agent:killed"
	EventMessageNew    EventType = "message:new"
	EventCheckpointNew EventType = "checkpoint:new"
	EventTaskCreated   EventType = "task:created"
	EventTaskStatus    EventType = "task:status"
	EventSandboxEvent  EventType = "sandbox:event"
)

// Event is the WebSocket wire envelope of spec.md §4.9/§6:
// {type, data, timestamp}.
type Event struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

type subscriber struct {
	id string
	ch chan Event
}

// Bus fans events out to every currently-connected subscriber. It
// keeps no history; a client that connects after a Publish simply
// never sees it (spec.md §4.9: "UIs re-query REST to reconcile").
type Bus struct {
	mu   sync.RWMutex
	subs map[string]*subscriber
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]*subscriber)}
}

func (b *Bus) Publish(eventType EventType, data interface{}) {
	event := Event{Type: eventType, Data: data, Timestamp: time.Now().UTC()}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			// Drop if the subscriber's buffer is full rather than block
			// the publisher (a change-stream watcher or REST handler).
		}
	}
}

// Subscribe registers a new subscriber and returns a channel of
// events plus an unsubscribe function. The channel closes when ctx is
// done or Unsubscribe is called.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Event, func()) {
	ch := make(chan Event, 128)
	id := ulid.Make().String()
	sub := &subscriber{id: id, ch: ch}

	b.mu.Lock()
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}

	go func() {
		<-ctx.Done()
		unsubscribe()
	}()

	return ch, unsubscribe
}

func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
