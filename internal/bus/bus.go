package bus

import (
	"log/slog"
	"sync"
)

// MessageBus fans walkthrough events out to subscribers (gateway clients,
// the TUI, the MCP server).
type MessageBus struct {
	// Event subscribers (subscriber ID → handler)
	subscribers map[string]EventHandler
	subMu       sync.RWMutex

	// Last event per name, replayed to late subscribers.
	last   map[string]Event
	lastMu sync.RWMutex
}

func New() *MessageBus {
	return &MessageBus{
		subscribers: make(map[string]EventHandler),
		last:        make(map[string]Event),
	}
}

// Subscribe registers an event subscriber under id, replacing any previous
// handler with the same id.
func (mb *MessageBus) Subscribe(id string, handler EventHandler) {
	mb.subMu.Lock()
	defer mb.subMu.Unlock()
	mb.subscribers[id] = handler
}

// Unsubscribe removes an event subscriber.
func (mb *MessageBus) Unsubscribe(id string) {
	mb.subMu.Lock()
	defer mb.subMu.Unlock()
	delete(mb.subscribers, id)
}

// Subscribers returns the number of registered handlers.
func (mb *MessageBus) Subscribers() int {
	mb.subMu.RLock()
	defer mb.subMu.RUnlock()
	return len(mb.subscribers)
}

// Broadcast sends an event to all subscribers. Handlers must not block.
func (mb *MessageBus) Broadcast(event Event) {
	mb.lastMu.Lock()
	mb.last[event.Name] = event
	mb.lastMu.Unlock()

	mb.subMu.RLock()
	defer mb.subMu.RUnlock()
	for id, handler := range mb.subscribers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Warn("bus: subscriber panicked", "subscriber", id, "event", event.Name, "panic", r)
				}
			}()
			handler(event)
		}()
	}
}

// Last returns the most recent event broadcast under name.
func (mb *MessageBus) Last(name string) (Event, bool) {
	mb.lastMu.RLock()
	defer mb.lastMu.RUnlock()
	ev, ok := mb.last[name]
	return ev, ok
}
