package synchronizer

import (
	"fmt"
	"sync"
)

// EventType names an event emitted by the engine
type EventType string

const (
	EventSynchronizationDone    EventType = "synchronization_done"
	EventSynchronizationSkipped EventType = "synchronization_skipped"
	EventFrameSynchronized      EventType = "frame_synchronized"
	EventFrameUnsynchronized    EventType = "frame_unsynchronized"
	EventMatrixSynchronized     EventType = "matrix_synchronized"
	EventMatrixUnsynchronized   EventType = "matrix_unsynchronized"
)

// Event is one emitted signal. Timestamp is set for synchronization_done,
// Slot for the per-output events.
type Event struct {
	Type      EventType
	Timestamp int64
	Slot      Slot
}

// String renders the event for logs
func (e Event) String() string {
	switch e.Type {
	case EventSynchronizationDone:
		return fmt.Sprintf("%s(%d)", e.Type, e.Timestamp)
	case EventSynchronizationSkipped:
		return string(e.Type)
	default:
		return fmt.Sprintf("%s(%d)", e.Type, e.Slot.Index)
	}
}

func channelEvent(slot Slot, synchronized bool) Event {
	var typ EventType
	switch {
	case slot.Kind == KindFrame && synchronized:
		typ = EventFrameSynchronized
	case slot.Kind == KindFrame:
		typ = EventFrameUnsynchronized
	case synchronized:
		typ = EventMatrixSynchronized
	default:
		typ = EventMatrixUnsynchronized
	}
	return Event{Type: typ, Slot: slot}
}

// Listener receives engine events synchronously, in emission order
type Listener interface {
	OnEvent(Event)
}

// ListenerFunc adapts a function to the Listener interface
type ListenerFunc func(Event)

// OnEvent calls f(ev)
func (f ListenerFunc) OnEvent(ev Event) { f(ev) }

// EventQueue is a Listener buffering events until the caller drains them.
// It is safe for concurrent use.
type EventQueue struct {
	mu     sync.Mutex
	events []Event
}

// NewEventQueue creates an empty queue
func NewEventQueue() *EventQueue {
	return &EventQueue{}
}

// OnEvent appends an event to the queue
func (q *EventQueue) OnEvent(ev Event) {
	q.mu.Lock()
	q.events = append(q.events, ev)
	q.mu.Unlock()
}

// Drain returns every queued event and empties the queue
func (q *EventQueue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.events
	q.events = nil
	return out
}

// Len returns the number of queued events
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
