package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/encoderd/internal/encoder"
	"github.com/nerrad567/encoderd/internal/history"
	"github.com/nerrad567/encoderd/internal/infrastructure/influxdb"
	"github.com/nerrad567/encoderd/internal/infrastructure/mqtt"
)

// RetainedPublisher is the part of *mqtt.Client the MQTT sink uses.
type RetainedPublisher interface {
	PublishRetained(topic string, payload []byte) error
}

// AngleWriter is the part of *influxdb.Client the Influx sink uses.
type AngleWriter interface {
	WriteAngle(s influxdb.AngleSample)
}

// HistoryRecorder is the part of history.Repository the history sink uses.
type HistoryRecorder interface {
	Record(ctx context.Context, e history.Entry) error
}

// AnglePayload is the JSON body of an angle state message.
type AnglePayload struct {
	Name      string  `json:"name"`
	Slot      string  `json:"slot"`
	Angle     float64 `json:"angle"`
	Delta     int64   `json:"delta"`
	Source    string  `json:"source"`
	Timestamp string  `json:"timestamp"`
}

// MQTTSink publishes retained angle state per encoder.
type MQTTSink struct {
	client RetainedPublisher
}

// NewMQTTSink creates a sink publishing through client.
func NewMQTTSink(client RetainedPublisher) *MQTTSink {
	return &MQTTSink{client: client}
}

// Name implements Sink.
func (s *MQTTSink) Name() string { return "mqtt" }

// Publish implements Sink.
func (s *MQTTSink) Publish(_ context.Context, m encoder.Movement) error {
	payload, err := json.Marshal(AnglePayload{
		Name:      m.Name,
		Slot:      m.Slot,
		Angle:     m.Angle,
		Delta:     m.Delta,
		Source:    m.Source,
		Timestamp: m.Time.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshalling angle payload: %w", err)
	}
	return s.client.PublishRetained(mqtt.Topics{}.Angle(m.Name), payload)
}

// InfluxSink writes encoder_angle points.
type InfluxSink struct {
	writer AngleWriter
}

// NewInfluxSink creates a sink writing through writer.
func NewInfluxSink(writer AngleWriter) *InfluxSink {
	return &InfluxSink{writer: writer}
}

// Name implements Sink.
func (s *InfluxSink) Name() string { return "influxdb" }

// Publish implements Sink. Write errors arrive asynchronously on the
// client's error callback.
func (s *InfluxSink) Publish(_ context.Context, m encoder.Movement) error {
	s.writer.WriteAngle(influxdb.AngleSample{
		Encoder: m.Name,
		Slot:    m.Slot,
		Source:  m.Source,
		Angle:   m.Angle,
		Delta:   m.Delta,
		Time:    m.Time,
	})
	return nil
}

// HistorySink records every change in the angle history.
type HistorySink struct {
	repo HistoryRecorder
}

// NewHistorySink creates a sink recording into repo.
func NewHistorySink(repo HistoryRecorder) *HistorySink {
	return &HistorySink{repo: repo}
}

// Name implements Sink.
func (s *HistorySink) Name() string { return "history" }

// Publish implements Sink.
func (s *HistorySink) Publish(ctx context.Context, m encoder.Movement) error {
	return s.repo.Record(ctx, history.Entry{
		Encoder:   m.Name,
		Slot:      m.Slot,
		Delta:     m.Delta,
		Angle:     m.Angle,
		Source:    m.Source,
		CreatedAt: m.Time,
	})
}
