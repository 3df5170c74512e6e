package thing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// DefaultContext is the schema repository URI advertised in thing
// descriptions when no other @context is configured.
const DefaultContext = "https://webthings.io/schemas"

// Notification message types, as they appear on the wire.
const (
	MessageTypePropertyStatus = "propertyStatus"
	MessageTypeActionStatus   = "actionStatus"
	MessageTypeEvent          = "event"
)

// availableAction describes a registered action type.
type availableAction struct {
	metadata Metadata
	factory  ActionFactory
}

// availableEvent describes a registered event type together with its
// dedicated subscriber subset. The subset is distinct from the Thing's
// global subscriber set: events are delivered only to subscribers that
// asked for that event name.
type availableEvent struct {
	metadata    Metadata
	subscribers map[string]Subscriber
}

// Thing is the aggregate device model: it owns the property, action and
// event registries, the subscriber sets, and synthesises the thing
// description document on demand.
//
// A Thing is a single logical resource: all registry mutation is
// serialised behind one mutex. Notification fan-out runs synchronously on
// the mutating goroutine after the lock is released; subscriber handles
// are expected to buffer internally (see Subscriber).
type Thing struct {
	mu sync.Mutex

	id          string
	title       string
	context     string
	description string
	types       []string
	hrefPrefix  string
	uiHref      string

	properties map[string]Property

	availableActions map[string]*availableAction
	actionOrder      []string
	actions          map[string][]Action

	availableEvents map[string]*availableEvent
	eventOrder      []string
	events          []Event

	subscribers map[string]Subscriber

	validator Validator
	recorder  EventRecorder
	logger    Logger
}

// New creates a Thing with the given identity. The id should be a URI
// (e.g. "urn:dev:ops:lamp-1"); types are optional semantic category tags
// ("Light", "OnOffSwitch", ...); description may be empty.
func New(id, title string, types []string, description string) *Thing {
	return &Thing{
		id:               id,
		title:            title,
		context:          DefaultContext,
		description:      description,
		types:            append([]string(nil), types...),
		properties:       make(map[string]Property),
		availableActions: make(map[string]*availableAction),
		actions:          make(map[string][]Action),
		availableEvents:  make(map[string]*availableEvent),
		subscribers:      make(map[string]Subscriber),
		logger:           noopLogger{},
	}
}

// SetLogger sets the logger used for delivery and archive diagnostics.
func (t *Thing) SetLogger(logger Logger) {
	t.mu.Lock()
	t.logger = logger
	t.mu.Unlock()
}

// getLogger returns the current logger. SetLogger may swap it at any
// time, so readers outside the Thing's lock go through here.
func (t *Thing) getLogger() Logger {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.logger
}

// SetValidator sets the JSON Schema validator used to gate action input
// and property values. Without a validator, schema checks are skipped.
func (t *Thing) SetValidator(v Validator) {
	t.mu.Lock()
	t.validator = v
	t.mu.Unlock()
}

// Validator returns the configured validator, or nil.
func (t *Thing) Validator() Validator {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.validator
}

// SetEventRecorder sets the optional durable event archive. Recording is
// best effort: failures are logged, never surfaced to the emitter, and
// the in-memory event log stays authoritative.
func (t *Thing) SetEventRecorder(r EventRecorder) {
	t.mu.Lock()
	t.recorder = r
	t.mu.Unlock()
}

// ID returns the thing's URI identifier.
func (t *Thing) ID() string { return t.id }

// Title returns the human-readable title.
func (t *Thing) Title() string { return t.title }

// HrefPrefix returns the base path under which resource links are rooted.
func (t *Thing) HrefPrefix() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hrefPrefix
}

// SetHrefPrefix updates the thing's base path and cascades it to every
// registered property and every live action instance. Action types and
// events are untouched; instances created afterwards pick up the
// then-current prefix in PerformAction.
func (t *Thing) SetHrefPrefix(prefix string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.hrefPrefix = prefix
	for _, p := range t.properties {
		p.SetHrefPrefix(prefix)
	}
	for _, list := range t.actions {
		for _, a := range list {
			a.SetHrefPrefix(prefix)
		}
	}
}

// UIHref returns the alternate UI link, if set.
func (t *Thing) UIHref() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.uiHref
}

// SetUIHref sets an alternate text/html UI link advertised in the thing
// description.
func (t *Thing) SetUIHref(href string) {
	t.mu.Lock()
	t.uiHref = href
	t.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Property registry
// ---------------------------------------------------------------------------

// AddProperty registers a property, keyed by its name. A property with the
// same name is silently replaced. The current hrefPrefix is pushed onto
// the property.
func (t *Thing) AddProperty(p Property) {
	t.mu.Lock()
	p.SetHrefPrefix(t.hrefPrefix)
	t.properties[p.Name()] = p
	t.mu.Unlock()
}

// RemoveProperty removes a property by name. No-op if not registered.
func (t *Thing) RemoveProperty(p Property) {
	t.mu.Lock()
	delete(t.properties, p.Name())
	t.mu.Unlock()
}

// FindProperty returns the property registered under name.
func (t *Thing) FindProperty(name string) (Property, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.properties[name]
	return p, ok
}

// HasProperty reports whether a property is registered under name.
func (t *Thing) HasProperty(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.properties[name]
	return ok
}

// GetProperty returns the current value of the named property. The second
// return is false if the property is not registered; a missing property
// is never an error.
func (t *Thing) GetProperty(name string) (any, bool) {
	p, ok := t.FindProperty(name)
	if !ok {
		return nil, false
	}
	return p.Value(), true
}

// SetProperty delegates to the named property's own setter. The property
// implementation is responsible for invoking PropertyNotify on change.
// Returns ErrPropertyNotFound if the name is not registered.
func (t *Thing) SetProperty(name string, v any) error {
	p, ok := t.FindProperty(name)
	if !ok {
		return ErrPropertyNotFound
	}
	return p.SetValue(v)
}

// Properties returns a name-to-value snapshot of every registered property.
func (t *Thing) Properties() map[string]any {
	t.mu.Lock()
	props := make([]Property, 0, len(t.properties))
	for _, p := range t.properties {
		props = append(props, p)
	}
	t.mu.Unlock()

	values := make(map[string]any, len(props))
	for _, p := range props {
		values[p.Name()] = p.Value()
	}
	return values
}

// PropertyDescriptions returns the description fragment of every
// registered property, keyed by name. Used by the description builder.
func (t *Thing) PropertyDescriptions() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.propertyDescriptions()
}

func (t *Thing) propertyDescriptions() map[string]any {
	descs := make(map[string]any, len(t.properties))
	for name, p := range t.properties {
		descs[name] = p.Description()
	}
	return descs
}

// ---------------------------------------------------------------------------
// Action registry
// ---------------------------------------------------------------------------

// AddAvailableAction registers an action type. Re-registration overwrites
// the previous descriptor and resets the type's instance list.
func (t *Thing) AddAvailableAction(name string, metadata Metadata, factory ActionFactory) {
	t.mu.Lock()
	if _, exists := t.availableActions[name]; !exists {
		t.actionOrder = append(t.actionOrder, name)
	}
	t.availableActions[name] = &availableAction{
		metadata: cloneMetadata(metadata),
		factory:  factory,
	}
	t.actions[name] = nil
	t.mu.Unlock()
}

// PerformAction creates a new instance of the named action type.
//
// It returns ErrUnknownAction if the type is not registered, and
// ErrInvalidActionInput if the type declares an input schema and the
// input fails validation; no instance is created in either case. On
// success the instance is appended to the type's list (preserving
// invocation order), given the current hrefPrefix, and announced to all
// global subscribers.
//
// The instance is created, not started: the caller decides when to run it.
func (t *Thing) PerformAction(name string, input any) (Action, error) {
	t.mu.Lock()
	aa, ok := t.availableActions[name]
	if !ok {
		t.mu.Unlock()
		return nil, ErrUnknownAction
	}

	if schema, has := aa.metadata["input"].(map[string]any); has && t.validator != nil {
		if err := t.validator.Validate(schema, input); err != nil {
			t.mu.Unlock()
			return nil, fmt.Errorf("%w: %v", ErrInvalidActionInput, err)
		}
	}

	a := aa.factory(t, input)
	a.SetHrefPrefix(t.hrefPrefix)
	t.actions[name] = append(t.actions[name], a)
	t.mu.Unlock()

	t.ActionNotify(a)
	return a, nil
}

// GetAction returns the instance of the named action type with the given
// id. A linear scan in invocation order; false if the type is unknown or
// the id is not found.
func (t *Thing) GetAction(name, id string) (Action, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, a := range t.actions[name] {
		if a.ID() == id {
			return a, true
		}
	}
	return nil, false
}

// RemoveAction cancels and removes the instance with the given id. The
// instance is told to cancel first, then removed by identity rather than
// by id so a misbehaving collaborator reporting duplicate ids cannot
// remove the wrong entry. Returns false if the instance is not found.
func (t *Thing) RemoveAction(name, id string) bool {
	t.mu.Lock()
	var target Action
	for _, a := range t.actions[name] {
		if a.ID() == id {
			target = a
			break
		}
	}
	t.mu.Unlock()

	if target == nil {
		return false
	}

	// Cancel outside the lock: cancellation may notify status changes,
	// which re-enters the notification path.
	target.Cancel()

	t.mu.Lock()
	list := t.actions[name]
	for i, a := range list {
		if a == target {
			t.actions[name] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	t.mu.Unlock()
	return true
}

// ActionDescriptions returns instance descriptions for one action type,
// or for every type (in registration order, each type's instances in
// invocation order) if name is empty. An unknown name yields an empty
// slice, not an error.
func (t *Thing) ActionDescriptions(name string) []map[string]any {
	t.mu.Lock()
	var snapshot []Action
	if name == "" {
		for _, n := range t.actionOrder {
			snapshot = append(snapshot, t.actions[n]...)
		}
	} else {
		snapshot = append(snapshot, t.actions[name]...)
	}
	t.mu.Unlock()

	descs := make([]map[string]any, 0, len(snapshot))
	for _, a := range snapshot {
		descs = append(descs, a.Description())
	}
	return descs
}

// ---------------------------------------------------------------------------
// Event registry
// ---------------------------------------------------------------------------

// AddAvailableEvent registers an event type with a fresh, empty subscriber
// subset. Re-registration overwrites the descriptor and drops any
// subscribers previously attached to that name.
func (t *Thing) AddAvailableEvent(name string, metadata Metadata) {
	t.mu.Lock()
	if _, exists := t.availableEvents[name]; !exists {
		t.eventOrder = append(t.eventOrder, name)
	}
	t.availableEvents[name] = &availableEvent{
		metadata:    cloneMetadata(metadata),
		subscribers: make(map[string]Subscriber),
	}
	t.mu.Unlock()
}

// AvailableEvents returns the registered event type names in registration
// order.
func (t *Thing) AvailableEvents() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.eventOrder...)
}

// AddEvent appends the event to the thing-level log and notifies the
// event's subscriber subset. The log is append-only and unbounded; the
// optional event recorder provides durable retention.
func (t *Thing) AddEvent(ev Event) {
	t.mu.Lock()
	t.events = append(t.events, ev)
	recorder := t.recorder
	logger := t.logger
	t.mu.Unlock()

	if recorder != nil {
		if err := recorder.RecordEvent(context.Background(), t.id, ev); err != nil {
			logger.Warn("event archive write failed", "event", ev.Name(), "error", err)
		}
	}

	t.EventNotify(ev)
}

// EventDescriptions returns descriptions of logged events in emission
// order: every event if name is empty, otherwise only those matching name.
func (t *Thing) EventDescriptions(name string) []map[string]any {
	t.mu.Lock()
	snapshot := make([]Event, 0, len(t.events))
	for _, ev := range t.events {
		if name == "" || ev.Name() == name {
			snapshot = append(snapshot, ev)
		}
	}
	t.mu.Unlock()

	descs := make([]map[string]any, 0, len(snapshot))
	for _, ev := range snapshot {
		descs = append(descs, ev.Description())
	}
	return descs
}

// ---------------------------------------------------------------------------
// Subscriber fan-out
// ---------------------------------------------------------------------------

// AddSubscriber adds a handle to the global subscriber set. Adding an
// already-present handle is a no-op.
func (t *Thing) AddSubscriber(s Subscriber) {
	t.mu.Lock()
	t.subscribers[s.ID()] = s
	t.mu.Unlock()
}

// RemoveSubscriber removes a handle from the global set and from every
// event type's subscriber subset: a disconnecting handle must stop
// receiving everything. Removing a non-member is a no-op.
func (t *Thing) RemoveSubscriber(s Subscriber) {
	t.mu.Lock()
	delete(t.subscribers, s.ID())
	for _, ae := range t.availableEvents {
		delete(ae.subscribers, s.ID())
	}
	t.mu.Unlock()
}

// AddEventSubscriber adds a handle to one event type's subscriber subset.
// No-op if the event name is not registered.
func (t *Thing) AddEventSubscriber(name string, s Subscriber) {
	t.mu.Lock()
	if ae, ok := t.availableEvents[name]; ok {
		ae.subscribers[s.ID()] = s
	}
	t.mu.Unlock()
}

// RemoveEventSubscriber removes a handle from one event type's subscriber
// subset only; global membership is untouched.
func (t *Thing) RemoveEventSubscriber(name string, s Subscriber) {
	t.mu.Lock()
	if ae, ok := t.availableEvents[name]; ok {
		delete(ae.subscribers, s.ID())
	}
	t.mu.Unlock()
}

// SubscriberCount returns the size of the global subscriber set.
func (t *Thing) SubscriberCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subscribers)
}

// PropertyNotify delivers a propertyStatus message for the given property
// to every global subscriber. Property implementations call this whenever
// their value changes.
func (t *Thing) PropertyNotify(p Property) {
	t.notifyGlobal(MessageTypePropertyStatus, map[string]any{p.Name(): p.Value()})
}

// ActionNotify delivers an actionStatus message for the given action
// instance to every global subscriber.
func (t *Thing) ActionNotify(a Action) {
	t.notifyGlobal(MessageTypeActionStatus, a.Description())
}

// EventNotify delivers an event message to the subscriber subset
// registered for the event's name. Events whose name has no registered
// type are logged but never delivered; the global set is never notified
// of events.
func (t *Thing) EventNotify(ev Event) {
	t.mu.Lock()
	ae, ok := t.availableEvents[ev.Name()]
	if !ok {
		logger := t.logger
		t.mu.Unlock()
		logger.Debug("event has no registered type, not delivered", "event", ev.Name())
		return
	}
	subs := make([]Subscriber, 0, len(ae.subscribers))
	for _, s := range ae.subscribers {
		subs = append(subs, s)
	}
	logger := t.logger
	t.mu.Unlock()

	t.deliver(subs, MessageTypeEvent, ev.Description(), logger)
}

// notifyGlobal serialises one message and delivers it to a snapshot of
// the global subscriber set. Delivery order across subscribers is
// unspecified; every subscriber receives the identical payload.
func (t *Thing) notifyGlobal(messageType string, data any) {
	t.mu.Lock()
	subs := make([]Subscriber, 0, len(t.subscribers))
	for _, s := range t.subscribers {
		subs = append(subs, s)
	}
	logger := t.logger
	t.mu.Unlock()

	t.deliver(subs, messageType, data, logger)
}

func (t *Thing) deliver(subs []Subscriber, messageType string, data any, logger Logger) {
	if len(subs) == 0 {
		return
	}

	message, err := json.Marshal(map[string]any{
		"messageType": messageType,
		"data":        data,
	})
	if err != nil {
		logger.Error("failed to marshal notification", "message_type", messageType, "error", err)
		return
	}

	for _, s := range subs {
		s.Send(message)
	}
	logger.Debug("notification delivered", "message_type", messageType, "recipients", len(subs))
}

// ---------------------------------------------------------------------------
// Description builder
// ---------------------------------------------------------------------------

// AsThingDescription synthesises the thing description document from the
// current registry state. The document is rebuilt on every call, never
// cached, so it always reflects the registries as they are now.
func (t *Thing) AsThingDescription() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()

	actions := make(map[string]any, len(t.availableActions))
	for _, name := range t.actionOrder {
		meta := cloneMetadata(t.availableActions[name].metadata)
		meta["links"] = []map[string]any{
			{"rel": "action", "href": t.hrefPrefix + "/actions/" + name},
		}
		actions[name] = meta
	}

	events := make(map[string]any, len(t.availableEvents))
	for _, name := range t.eventOrder {
		meta := cloneMetadata(t.availableEvents[name].metadata)
		meta["links"] = []map[string]any{
			{"rel": "event", "href": t.hrefPrefix + "/events/" + name},
		}
		events[name] = meta
	}

	links := []map[string]any{
		{"rel": "properties", "href": t.hrefPrefix + "/properties"},
		{"rel": "actions", "href": t.hrefPrefix + "/actions"},
		{"rel": "events", "href": t.hrefPrefix + "/events"},
	}
	if t.uiHref != "" {
		links = append(links, map[string]any{
			"rel":       "alternate",
			"mediaType": "text/html",
			"href":      t.uiHref,
		})
	}

	td := map[string]any{
		"id":         t.id,
		"title":      t.title,
		"@context":   t.context,
		"properties": t.propertyDescriptions(),
		"actions":    actions,
		"events":     events,
		"links":      links,
	}
	if t.description != "" {
		td["description"] = t.description
	}
	if len(t.types) > 0 {
		td["@type"] = append([]string(nil), t.types...)
	}
	return td
}
