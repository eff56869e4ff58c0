// Package telemetry fans persisted angle changes out to optional sinks.
//
// The Publisher implements encoder.Observer. AngleChanged only enqueues, so
// the control loop never waits on a broker, a metrics server or a database;
// a full queue drops the event and counts it. A single goroutine (Run)
// delivers each event to every sink in order.
//
// Sinks:
//
//   - MQTTSink: retained JSON state on encoderd/angle/<name>
//   - InfluxSink: encoder_angle points
//   - HistorySink: rows in the SQLite angle_history table
//
// Sinks are best effort. The angle files written by the control loop are
// the system of record and never depend on telemetry.
package telemetry
