package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePropertyMetric writes a single property observation to InfluxDB.
//
// This is the primary method for recording property telemetry.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - thingID: Identifier of the thing (e.g., "urn:dev:ops:lamp-1")
//   - property: The property name (e.g., "brightness", "temperature")
//   - value: The numeric value to record
//
// Example:
//
//	client.WritePropertyMetric("urn:dev:ops:lamp-1", "brightness", 75)
//	client.WritePropertyMetric("urn:dev:ops:thermostat-1", "temperature", 21.5)
func (c *Client) WritePropertyMetric(thingID string, property string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"property_metrics",
		map[string]string{
			"thing_id": thingID,
			"property": property,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteEventCount records that a named event fired.
//
// Each point carries a count of 1; aggregate in queries to get event rates.
func (c *Client) WriteEventCount(thingID string, eventName string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"events",
		map[string]string{
			"thing_id": thingID,
			"event":    eventName,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Example:
//
//	client.WritePoint("gateway_stats",
//	    map[string]string{"host": "gw-01"},
//	    map[string]interface{}{"subscribers": 12, "actions_queued": 3})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
