package engine

import (
	"sync"

	"github.com/seantiz/modeld/internal/model"
)

// subscriberBufferSize is the channel buffer for each event subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// EventKind distinguishes run events.
type EventKind string

// Event kinds.
const (
	EventState EventKind = "state"
	EventLog   EventKind = "log"
)

// Event is one observable step of a task run.
type Event struct {
	Kind  EventKind   `json:"kind"`
	State model.State `json:"state,omitempty"`
	Line  string      `json:"line,omitempty"`
	Error string      `json:"error,omitempty"`
}

// EventBroker fans run events out to subscribers, per run. It is safe for
// concurrent use.
//
// Closed topics are kept as markers so a subscriber arriving after a run
// finished gets a closed channel instead of waiting forever.
type EventBroker struct {
	mu     sync.Mutex
	topics map[string]*topic
}

type topic struct {
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewEventBroker creates an empty broker.
func NewEventBroker() *EventBroker {
	return &EventBroker{topics: make(map[string]*topic)}
}

// Subscribe returns a channel receiving the events of runID published from
// now on, and an unsubscribe function. If the run has already finished the
// channel is closed.
func (b *EventBroker) Subscribe(runID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[runID]
	if !ok {
		t = &topic{subs: make(map[int]chan Event)}
		b.topics[runID] = t
	}

	ch := make(chan Event, subscriberBufferSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish sends ev to every subscriber of runID without blocking.
func (b *EventBroker) Publish(runID string, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[runID]
	if !ok || t.closed {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber.
		}
	}
}

// Close ends the event stream of runID.
func (b *EventBroker) Close(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[runID]
	if !ok {
		b.topics[runID] = &topic{subs: make(map[int]chan Event), closed: true}
		return
	}

	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}
