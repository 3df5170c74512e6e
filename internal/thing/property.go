package thing

import (
	"fmt"
	"sync"
)

// BaseProperty is a ready-to-use Property implementation backed by a
// cached value. It validates writes against its own metadata fragment
// (when the owning Thing has a validator) and notifies the Thing on
// every change.
//
// Device-backed properties set a value forwarder: the forwarder pushes
// the new value to hardware before the cache is updated, and a forwarder
// error aborts the write.
type BaseProperty struct {
	thing    *Thing // non-owning back-reference
	name     string
	href     string
	metadata Metadata

	mu         sync.Mutex
	hrefPrefix string
	value      any
	forwarder  func(v any) error
}

// NewBaseProperty creates a property owned by t. The metadata fragment
// describes the value (type, unit, readOnly, ...) and doubles as the
// JSON Schema the value is validated against.
func NewBaseProperty(t *Thing, name string, metadata Metadata, initial any) *BaseProperty {
	return &BaseProperty{
		thing:    t,
		name:     name,
		href:     "/properties/" + name,
		metadata: cloneMetadata(metadata),
		value:    initial,
	}
}

// SetValueForwarder sets the hook invoked with the new value before the
// cache is updated. Used to push writes to the underlying device.
func (p *BaseProperty) SetValueForwarder(f func(v any) error) {
	p.mu.Lock()
	p.forwarder = f
	p.mu.Unlock()
}

// Name returns the property name.
func (p *BaseProperty) Name() string { return p.name }

// Value returns the current cached value.
func (p *BaseProperty) Value() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// SetValue validates v, forwards it to the device if a forwarder is set,
// updates the cache, and notifies the owning Thing's subscribers.
func (p *BaseProperty) SetValue(v any) error {
	if ro, ok := p.metadata["readOnly"].(bool); ok && ro {
		return ErrReadOnlyProperty
	}

	if validator := p.thing.Validator(); validator != nil && len(p.metadata) > 0 {
		if err := validator.Validate(p.metadata, v); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPropertyValue, err)
		}
	}

	p.mu.Lock()
	if p.forwarder != nil {
		if err := p.forwarder(v); err != nil {
			p.mu.Unlock()
			return fmt.Errorf("forwarding property value: %w", err)
		}
	}
	p.value = v
	p.mu.Unlock()

	p.thing.PropertyNotify(p)
	return nil
}

// UpdateValue replaces the cached value without forwarding to the device.
// Used when the device itself reports a change (sensor reading, physical
// switch press). Subscribers are still notified.
func (p *BaseProperty) UpdateValue(v any) {
	p.mu.Lock()
	p.value = v
	p.mu.Unlock()

	p.thing.PropertyNotify(p)
}

// SetHrefPrefix updates the base path for the property's links.
func (p *BaseProperty) SetHrefPrefix(prefix string) {
	p.mu.Lock()
	p.hrefPrefix = prefix
	p.mu.Unlock()
}

// Href returns the property's full href under the current prefix.
func (p *BaseProperty) Href() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hrefPrefix + p.href
}

// Description returns the property's description fragment: its metadata
// plus a link to the property resource.
func (p *BaseProperty) Description() map[string]any {
	p.mu.Lock()
	prefix := p.hrefPrefix
	p.mu.Unlock()

	desc := map[string]any(cloneMetadata(p.metadata))
	desc["links"] = []map[string]any{
		{"rel": "property", "href": prefix + p.href},
	}
	return desc
}
