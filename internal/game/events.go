package game

import (
	"sync"
	"time"
)

// EventType represents a room event type with type safety
type EventType string

const (
	EventTypeRoomCreated  EventType = "room_created"
	EventTypeRoomUpdated  EventType = "room_updated"
	EventTypeRoundSettled EventType = "round_settled"
	EventTypeRoomClosed   EventType = "room_closed"
)

// String returns the string representation of the event type
func (et EventType) String() string {
	return string(et)
}

// RoomEvent is published after every successful command that changes a room
type RoomEvent struct {
	Type     EventType
	RoomID   string
	Command  string
	Snapshot Snapshot
	Outcomes map[string]Outcome // Only set for EventTypeRoundSettled
	Time     time.Time
}

// EventSubscriber receives room events
type EventSubscriber interface {
	OnEvent(event RoomEvent)
}

// EventSubscriberFunc adapts a function to EventSubscriber
type EventSubscriberFunc func(event RoomEvent)

// OnEvent calls f(event)
func (f EventSubscriberFunc) OnEvent(event RoomEvent) { f(event) }

// EventBus fans room events out to subscribers. Publish is called from
// whichever goroutine ran the command, so subscribers must not block.
type EventBus struct {
	mu          sync.RWMutex
	nextID      int
	subscribers []subscription
}

type subscription struct {
	id  int
	sub EventSubscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe adds a subscriber and returns a function that removes it
func (bus *EventBus) Subscribe(subscriber EventSubscriber) (unsubscribe func()) {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	bus.nextID++
	id := bus.nextID
	bus.subscribers = append(bus.subscribers, subscription{id: id, sub: subscriber})

	return func() {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		for i, s := range bus.subscribers {
			if s.id == id {
				// Copy on removal so a concurrent Publish keeps a stable slice
				bus.subscribers = append(bus.subscribers[:i:i], bus.subscribers[i+1:]...)
				return
			}
		}
	}
}

// Publish sends an event to all subscribers
func (bus *EventBus) Publish(event RoomEvent) {
	bus.mu.RLock()
	subs := bus.subscribers
	bus.mu.RUnlock()

	for _, s := range subs {
		s.sub.OnEvent(event)
	}
}
