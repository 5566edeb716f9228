package bus

// Event is a named payload broadcast to subscribers. Names follow the
// protocol event names (walkthrough.state, walkthrough.frame, ...).
type Event struct {
	Name    string `json:"name"`
	Payload any    `json:"payload,omitempty"`
}

// EventHandler receives broadcast events.
type EventHandler func(Event)
