package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// AngleMeasurement is the measurement name for encoder angle points.
const AngleMeasurement = "encoder_angle"

// AngleSample is one persisted angle change.
type AngleSample struct {
	Encoder string
	Slot    string
	Source  string
	Angle   float64
	Delta   int64
	Time    time.Time
}

// WriteAngle queues an encoder_angle point. It never blocks on the network
// and is a no-op when the client is not connected.
func (c *Client) WriteAngle(s AngleSample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(newAnglePoint(s))
}

// newAnglePoint tags by encoder, slot and source; angle and delta are fields.
func newAnglePoint(s AngleSample) *write.Point {
	at := s.Time
	if at.IsZero() {
		at = time.Now()
	}
	return write.NewPoint(
		AngleMeasurement,
		map[string]string{
			"encoder": s.Encoder,
			"slot":    s.Slot,
			"source":  s.Source,
		},
		map[string]interface{}{
			"angle": s.Angle,
			"delta": s.Delta,
		},
		at,
	)
}
