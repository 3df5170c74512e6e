// Package mqtt provides MQTT client connectivity for the webthing gateway.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The gateway mirrors thing notifications onto MQTT so devices and
// dashboards that speak MQTT rather than HTTP/WebSocket can follow
// property, action, and event updates, and send commands back.
//
//	Thing registries ↔ MQTT Broker ↔ MQTT consumers (dashboards, rules)
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to inbound commands for every thing
//	err = client.Subscribe(mqtt.Topics{}.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a property update
//	topic := mqtt.Topics{}.PropertyStatus("urn:dev:ops:lamp-1")
//	client.Publish(topic, []byte(`{"messageType":"propertyStatus","data":{"on":true}}`), 1, true)
package mqtt
