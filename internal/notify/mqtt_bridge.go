// Package notify fans thing notifications out to external systems.
//
// Subscribers in this package implement thing.Subscriber and attach to a
// Thing alongside WebSocket clients. The MQTT bridge mirrors notifications
// onto broker topics and feeds inbound command messages back into the
// thing; the telemetry subscriber records numeric property values in
// InfluxDB.
package notify

import (
	"encoding/json"
	"fmt"

	"github.com/openwot/webthing-core/internal/infrastructure/mqtt"
	"github.com/openwot/webthing-core/internal/thing"
)

// Publisher is the outbound MQTT surface the bridge needs.
// Satisfied by *mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger is the minimal logging surface used by this package.
// Compatible with logging.Logger.
type Logger interface {
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Debug(string, ...any) {}

// MQTTBridge mirrors thing notifications onto MQTT topics.
//
// Routing:
//   - propertyStatus → webthing/things/{id}/properties (retained)
//   - actionStatus   → webthing/things/{id}/actions
//   - event          → webthing/things/{id}/events/{name}
//
// The bridge also accepts inbound command payloads (setProperty,
// requestAction) via HandleCommand, typically wired to a subscription on
// the thing's command topic.
type MQTTBridge struct {
	id     string
	t      *thing.Thing
	pub    Publisher
	topics mqtt.Topics
	qos    byte
	logger Logger
}

// NewMQTTBridge creates a bridge publishing with the given QoS.
func NewMQTTBridge(t *thing.Thing, pub Publisher, qos byte) *MQTTBridge {
	return &MQTTBridge{
		id:     "mqtt-bridge-" + t.ID(),
		t:      t,
		pub:    pub,
		qos:    qos,
		logger: noopLogger{},
	}
}

// SetLogger replaces the no-op logger.
func (b *MQTTBridge) SetLogger(logger Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// ID implements thing.Subscriber.
func (b *MQTTBridge) ID() string { return b.id }

// Send implements thing.Subscriber. It parses the notification envelope
// and republishes it on the matching MQTT topic. Malformed or unknown
// messages are logged and dropped; delivery is best effort.
func (b *MQTTBridge) Send(message []byte) {
	var envelope struct {
		MessageType string          `json:"messageType"`
		Data        json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(message, &envelope); err != nil {
		b.logger.Warn("mqtt bridge: malformed notification", "error", err)
		return
	}

	switch envelope.MessageType {
	case thing.MessageTypePropertyStatus:
		b.publish(b.topics.PropertyStatus(b.t.ID()), message, true)
	case thing.MessageTypeActionStatus:
		b.publish(b.topics.ActionStatus(b.t.ID()), message, false)
	case thing.MessageTypeEvent:
		// Event payloads are keyed by event name; route each to its
		// own topic so consumers can subscribe per event.
		var data map[string]json.RawMessage
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			b.logger.Warn("mqtt bridge: malformed event payload", "error", err)
			return
		}
		for name := range data {
			b.publish(b.topics.Event(b.t.ID(), name), message, false)
		}
	default:
		b.logger.Debug("mqtt bridge: ignoring message", "message_type", envelope.MessageType)
	}
}

func (b *MQTTBridge) publish(topic string, payload []byte, retained bool) {
	if err := b.pub.Publish(topic, payload, b.qos, retained); err != nil {
		b.logger.Warn("mqtt bridge: publish failed", "topic", topic, "error", err)
	}
}

// Attach registers the bridge with the thing: globally for property and
// action updates, and on every currently registered event type.
//
// Event types registered after Attach need a further AddEventSubscriber
// call; attach the bridge after the thing is fully assembled.
func (b *MQTTBridge) Attach() {
	b.t.AddSubscriber(b)
	for _, name := range b.t.AvailableEvents() {
		b.t.AddEventSubscriber(name, b)
	}
}

// Detach removes the bridge from the thing's subscriber sets.
func (b *MQTTBridge) Detach() {
	b.t.RemoveSubscriber(b)
}

// PublishDescription publishes the current thing description as a
// retained message so late joiners can discover the thing.
func (b *MQTTBridge) PublishDescription() error {
	doc, err := json.Marshal(b.t.AsThingDescription())
	if err != nil {
		return fmt.Errorf("marshalling thing description: %w", err)
	}
	return b.pub.Publish(b.topics.Description(b.t.ID()), doc, b.qos, true)
}

// HandleCommand processes an inbound command payload from MQTT.
//
// Supported messageType values:
//   - setProperty: data maps property names to new values
//   - requestAction: data maps action names to {"input": ...}
//
// The returned error is suitable for the mqtt.MessageHandler contract:
// it is logged by the client but does not affect acknowledgement.
func (b *MQTTBridge) HandleCommand(topic string, payload []byte) error {
	var envelope struct {
		MessageType string          `json:"messageType"`
		Data        json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return fmt.Errorf("parsing command: %w", err)
	}

	switch envelope.MessageType {
	case "setProperty":
		var values map[string]any
		if err := json.Unmarshal(envelope.Data, &values); err != nil {
			return fmt.Errorf("parsing setProperty data: %w", err)
		}
		// Intake is best effort: a rejected value must not poison the
		// rest of the batch, so failures are logged and skipped.
		for name, value := range values {
			if err := b.t.SetProperty(name, value); err != nil {
				b.logger.Warn("mqtt bridge: setProperty rejected",
					"property", name, "error", err)
			}
		}
		return nil

	case "requestAction":
		var requests map[string]struct {
			Input any `json:"input"`
		}
		if err := json.Unmarshal(envelope.Data, &requests); err != nil {
			return fmt.Errorf("parsing requestAction data: %w", err)
		}
		for name, req := range requests {
			action, err := b.t.PerformAction(name, req.Input)
			if err != nil {
				b.logger.Warn("mqtt bridge: requestAction rejected",
					"action", name, "error", err)
				continue
			}
			if runner, ok := action.(interface{ Start() }); ok {
				go runner.Start()
			}
		}
		return nil

	default:
		return fmt.Errorf("unknown command type %q on %s", envelope.MessageType, topic)
	}
}
