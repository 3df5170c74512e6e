package notify

import (
	"encoding/json"

	"github.com/openwot/webthing-core/internal/thing"
)

// MetricWriter is the InfluxDB surface telemetry needs.
// Satisfied by *influxdb.Client.
type MetricWriter interface {
	WritePropertyMetric(thingID, property string, value float64)
	WriteEventCount(thingID, eventName string)
}

// Telemetry records thing notifications as time-series points. Numeric
// and boolean property values become property_metrics points; events
// become counter points. Non-numeric values are skipped silently since
// string state has no sensible field representation.
type Telemetry struct {
	id      string
	thingID string
	writer  MetricWriter
	logger  Logger
}

// NewTelemetry creates a telemetry subscriber for the given thing ID.
func NewTelemetry(thingID string, writer MetricWriter) *Telemetry {
	return &Telemetry{
		id:      "telemetry-" + thingID,
		thingID: thingID,
		writer:  writer,
		logger:  noopLogger{},
	}
}

// SetLogger replaces the no-op logger.
func (t *Telemetry) SetLogger(logger Logger) {
	if logger != nil {
		t.logger = logger
	}
}

// ID implements thing.Subscriber.
func (t *Telemetry) ID() string { return t.id }

// Send implements thing.Subscriber. Writes are handed to the non-blocking
// InfluxDB write API, so this never stalls notification fan-out.
func (t *Telemetry) Send(message []byte) {
	var envelope struct {
		MessageType string          `json:"messageType"`
		Data        json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(message, &envelope); err != nil {
		t.logger.Warn("telemetry: malformed notification", "error", err)
		return
	}

	switch envelope.MessageType {
	case thing.MessageTypePropertyStatus:
		var values map[string]any
		if err := json.Unmarshal(envelope.Data, &values); err != nil {
			t.logger.Warn("telemetry: malformed property data", "error", err)
			return
		}
		for name, value := range values {
			if v, ok := asFloat(value); ok {
				t.writer.WritePropertyMetric(t.thingID, name, v)
			}
		}

	case thing.MessageTypeEvent:
		var events map[string]json.RawMessage
		if err := json.Unmarshal(envelope.Data, &events); err != nil {
			t.logger.Warn("telemetry: malformed event data", "error", err)
			return
		}
		for name := range events {
			t.writer.WriteEventCount(t.thingID, name)
		}
	}
}

// asFloat converts JSON-decoded property values to a metric field.
// Booleans map to 0/1 so switch state can be graphed alongside levels.
func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
