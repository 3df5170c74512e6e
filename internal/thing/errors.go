package thing

import "errors"

// Domain errors for the thing package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, thing.ErrUnknownAction) {
//	    // handle unknown action type
//	}
//
// All of them are soft conditions: nothing in this package panics or
// treats a lookup miss as fatal. The transport layer maps them to
// protocol-level error responses.
var (
	// ErrPropertyNotFound is returned when a property name is not registered.
	ErrPropertyNotFound = errors.New("thing: property not found")

	// ErrReadOnlyProperty is returned when setting a property whose
	// metadata declares it read-only.
	ErrReadOnlyProperty = errors.New("thing: property is read-only")

	// ErrInvalidPropertyValue is returned when a value fails validation
	// against the property's schema fragment.
	ErrInvalidPropertyValue = errors.New("thing: invalid property value")

	// ErrUnknownAction is returned by PerformAction when the action type
	// name has never been registered.
	ErrUnknownAction = errors.New("thing: unknown action")

	// ErrInvalidActionInput is returned by PerformAction when the input
	// fails validation against the action's declared input schema.
	ErrInvalidActionInput = errors.New("thing: invalid action input")
)
