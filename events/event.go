package events

// Event represents a typed state change emitted by the lending core.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Emitter broadcasts events to downstream subscribers (e.g. HTTP streams,
// indexers).
type Emitter interface {
	Emit(*Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(*Event) {}

// CollectEmitter accumulates emitted events in order. Intended for tests and
// for callers that flush events after a successful transaction commit.
type CollectEmitter struct {
	Events []*Event
}

// Emit implements the Emitter interface.
func (c *CollectEmitter) Emit(evt *Event) {
	if evt == nil {
		return
	}
	c.Events = append(c.Events, evt)
}
