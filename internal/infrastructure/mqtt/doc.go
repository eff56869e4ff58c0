// Package mqtt publishes encoderd telemetry to an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect after the first connect
//   - Retained angle state per encoder (encoderd/angle/<name>)
//   - Retained daemon status with a Last Will for crash detection
//
// Publishing is best effort from the daemon's point of view: the angle
// files stay the system of record and a broker outage never blocks the
// control loop (the telemetry publisher queues in front of this client).
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishRetained(mqtt.Topics{}.Angle("780X"), payload)
//
// # Security Considerations
//
//   - Enable TLS (broker.tls) for anything beyond a local broker
//   - Credentials can be supplied through ENCODERD_MQTT_USERNAME and
//     ENCODERD_MQTT_PASSWORD instead of the config file
package mqtt
