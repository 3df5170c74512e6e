package thing

import "context"

// Property is the capability contract for a named piece of mutable Thing
// state. Concrete implementations own the value storage and any device I/O;
// the Thing only tracks registration and builds descriptions.
//
// Implementations must call the owning Thing's PropertyNotify whenever the
// value changes, regardless of who triggered the change.
type Property interface {
	// Name returns the property name, unique within a Thing.
	Name() string

	// Value returns the current cached value.
	Value() any

	// SetValue updates the value, pushing to the device if applicable.
	SetValue(v any) error

	// SetHrefPrefix updates the base path under which the property's
	// links are rooted.
	SetHrefPrefix(prefix string)

	// Description returns the property's description fragment for the
	// Thing description document.
	Description() map[string]any
}

// Action is the capability contract for one invocation of an available
// action type. The instance owns its own lifecycle (pending, completed,
// error); the Thing only tracks membership and ordering.
type Action interface {
	// ID returns the instance identifier, assigned by the instance itself.
	ID() string

	// Name returns the action type name this instance belongs to.
	Name() string

	// SetHrefPrefix updates the base path for the instance's href.
	SetHrefPrefix(prefix string)

	// Cancel asks the instance to stop whatever it is doing. Called by
	// RemoveAction before the instance is dropped from the registry.
	Cancel()

	// Description returns the instance description keyed by action name.
	Description() map[string]any
}

// Event is the capability contract for a one-way occurrence emitted by
// a Thing.
type Event interface {
	// Name returns the event type name.
	Name() string

	// Description returns the event description keyed by event name.
	Description() map[string]any
}

// Subscriber is an opaque push-delivery target. The Thing holds a
// non-owning reference keyed by ID; connection lifecycle is managed by
// the transport layer.
//
// Send must not block the caller indefinitely: notification fan-out runs
// synchronously on the mutating goroutine, so implementations should
// buffer internally and drop rather than stall.
type Subscriber interface {
	// ID returns a stable identity for set membership.
	ID() string

	// Send delivers one serialised JSON message.
	Send(message []byte)
}

// Validator checks a value against a JSON Schema fragment. Used to gate
// action input when an available action declares an input schema.
type Validator interface {
	Validate(schema map[string]any, value any) error
}

// ActionFactory builds an action instance for one invocation. It is called
// with the owning Thing and the (already validated) input.
//
// The factory runs while the Thing's lock is held; it must only construct
// the instance and must not call back into the Thing.
type ActionFactory func(t *Thing, input any) Action

// EventRecorder is an optional durability hook: every event added to the
// Thing's in-memory log is also offered to the recorder, best effort.
type EventRecorder interface {
	RecordEvent(ctx context.Context, thingID string, ev Event) error
}

// Metadata is a description fragment for an available action, available
// event, or property (type, unit, and for actions an optional "input"
// JSON Schema).
type Metadata map[string]any

// cloneMetadata returns a shallow copy so registered metadata is isolated
// from later caller mutation and from link injection.
func cloneMetadata(m Metadata) Metadata {
	cpy := make(Metadata, len(m))
	for k, v := range m {
		cpy[k] = v
	}
	return cpy
}

// Logger defines the logging interface used by the Thing aggregate.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
