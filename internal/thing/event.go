package thing

import "time"

// BaseEvent is an immutable Event implementation: a named occurrence with
// optional payload data and a UTC emission timestamp.
type BaseEvent struct {
	thing     *Thing // non-owning back-reference
	name      string
	data      any
	timestamp string
}

// NewBaseEvent creates an event emitted by t. Data may be nil.
func NewBaseEvent(t *Thing, name string, data any) *BaseEvent {
	return &BaseEvent{
		thing:     t,
		name:      name,
		data:      data,
		timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Name returns the event type name.
func (e *BaseEvent) Name() string { return e.name }

// Data returns the event payload, or nil.
func (e *BaseEvent) Data() any { return e.data }

// Timestamp returns the emission time in RFC 3339 UTC.
func (e *BaseEvent) Timestamp() string { return e.timestamp }

// Description returns the event description keyed by event name.
func (e *BaseEvent) Description() map[string]any {
	inner := map[string]any{
		"timestamp": e.timestamp,
	}
	if e.data != nil {
		inner["data"] = e.data
	}
	return map[string]any{e.name: inner}
}
