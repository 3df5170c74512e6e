// Package thing implements the Web-of-Things device aggregate: a single
// Thing exposing typed properties, invokable actions and one-way events,
// discoverable via a synthesised thing description document and
// observable through push notifications to registered subscribers.
//
// # Architecture
//
//	┌────────────────────────────────────────────────────────────┐
//	│                        Thing                               │
//	│                                                            │
//	│  ┌─────────────┐  ┌──────────────┐  ┌──────────────────┐   │
//	│  │ Properties  │  │   Actions    │  │     Events       │   │
//	│  │ name → prop │  │ types + live │  │ types + append-  │   │
//	│  │             │  │ instances    │  │ only log         │   │
//	│  └──────┬──────┘  └──────┬───────┘  └────────┬─────────┘   │
//	│         │                │                   │             │
//	│         ▼                ▼                   ▼             │
//	│  propertyStatus    actionStatus           event            │
//	│  (global set)      (global set)    (per-event subset)      │
//	└────────────────────────────────────────────────────────────┘
//
// Property and action notifications fan out to the global subscriber set;
// event notifications go only to the subscribers registered for that
// event name. The asymmetry is a protocol contract, not an accident.
//
// # Key Types
//
//   - Thing: the aggregate; the only type callers interact with directly
//   - Property / Action / Event: capability contracts for collaborators
//   - BaseProperty / BaseAction / BaseEvent: ready-to-use implementations
//   - Subscriber: opaque push-delivery handle owned by the transport
//   - Validator: JSON Schema gate for action input and property values
//
// # Usage
//
//	lamp := thing.New("urn:dev:ops:lamp-1", "Lamp", []string{"Light"}, "A web connected lamp")
//	lamp.SetValidator(schema.NewValidator())
//
//	on := thing.NewBaseProperty(lamp, "on", thing.Metadata{
//	    "@type": "OnOffProperty",
//	    "type":  "boolean",
//	    "title": "On/Off",
//	}, false)
//	lamp.AddProperty(on)
//
//	lamp.AddAvailableAction("fade", thing.Metadata{
//	    "title": "Fade",
//	    "input": map[string]any{
//	        "type":     "object",
//	        "required": []any{"brightness", "duration"},
//	    },
//	}, newFadeAction)
//
//	a, err := lamp.PerformAction("fade", map[string]any{"brightness": 50, "duration": 2000})
//
// # Thread Safety
//
// A Thing is safe for concurrent use: all registry mutation is serialised
// behind a single mutex, preserving name uniqueness and instance
// ordering. Notification delivery runs synchronously on the mutating
// goroutine after the lock is released; Subscriber implementations must
// buffer internally so a slow consumer cannot stall mutations.
package thing
