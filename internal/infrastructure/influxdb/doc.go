// Package influxdb writes encoder angle metrics to InfluxDB v2.
//
// Each persisted angle change becomes one encoder_angle point tagged with
// the encoder name, slot and source (movement, zero, baseline), carrying
// the angle in degrees and the step delta as fields.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteAngle(influxdb.AngleSample{Encoder: "780X", Angle: 360, Delta: 8192})
//
// Writes are batched (influxdb.batch_size points or every
// influxdb.flush_interval seconds) and never block the caller.
package influxdb
