package encoder

import (
	"fmt"
	"math"
	"path/filepath"
	"time"
)

// Movement sources reported to observers.
const (
	SourceMovement = "movement"
	SourceZero     = "zero"
	SourceBaseline = "baseline"
)

// Device is the hardware side of one encoder.
//
// PollDelta returns the net signed step count accumulated since the
// previous call and resets the device's counter ("get and clear"). Zero
// means no motion. It must not block for long; the control loop gives it
// a bounded window per tick.
//
// An error wrapping ErrDeviceFailed tells the loop the device is gone for
// good; any other error is treated as transient.
type Device interface {
	PollDelta() (int64, error)
	Close() error
}

// DeviceOpener constructs and activates the device for one encoder.
type DeviceOpener func(cfg EncoderConfig) (Device, error)

// AngleStore persists one angle per slot.
// It is satisfied by *anglestore.FileStore.
type AngleStore interface {
	Load(slot string) (float64, error)
	Save(slot string, angle float64) error
}

// Observer receives angle changes after they are persisted.
//
// Observers are called on the control loop goroutine and must return
// quickly; anything slow belongs behind a queue.
type Observer interface {
	AngleChanged(m Movement)
}

// Logger defines the logging interface used by the registry and loop.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// EncoderConfig is the immutable description of one encoder.
type EncoderConfig struct {
	// Name is the device nickname.
	Name string

	// PinA and PinB are the GPIO numbers of the quadrature channels.
	PinA int
	PinB int

	// Calibration is degrees per step. Must be finite and non-zero.
	Calibration float64

	// Slot identifies the persisted angle record. Unique per encoder.
	Slot string
}

// State is the in-memory record of one registered encoder.
//
// Angle is always base + Calibration*steps. Keeping the integer step
// count separate from the restored base keeps accumulation exact: after
// deltas d1..dn from a zero start the angle is Calibration*sum(d).
//
// Only the registry and the loop goroutine mutate a State.
type State struct {
	Index  int
	Config EncoderConfig
	Angle  float64
	Device Device

	active bool
	base   float64
	steps  int64
	poller *poller
}

// Active reports whether the encoder is being polled.
func (s *State) Active() bool {
	return s.active
}

// reset sets the angle to a new base with no accumulated steps.
func (s *State) reset(angle float64) {
	s.base = angle
	s.steps = 0
	s.Angle = angle
}

// advance applies a step delta and returns the new angle.
func (s *State) advance(delta int64) float64 {
	s.steps += delta
	s.Angle = s.base + s.Config.Calibration*float64(s.steps)
	return s.Angle
}

// Reading is a read-only view of an encoder for status reporting.
type Reading struct {
	Index  int
	Name   string
	Slot   string
	Angle  float64
	Active bool
}

// Movement describes one persisted angle change.
type Movement struct {
	Index  int
	Name   string
	Slot   string
	Delta  int64
	Angle  float64
	Source string
	Time   time.Time
}

// ValidateConfigs checks an encoder list before any device is opened.
// Every error wraps ErrConfig.
func ValidateConfigs(configs []EncoderConfig) error {
	slots := make(map[string]int, len(configs))
	for i, cfg := range configs {
		if cfg.Name == "" {
			return fmt.Errorf("%w: encoder %d has no name", ErrConfig, i)
		}
		if cfg.Calibration == 0 || math.IsNaN(cfg.Calibration) || math.IsInf(cfg.Calibration, 0) {
			return fmt.Errorf("%w: encoder %q calibration must be a non-zero number", ErrConfig, cfg.Name)
		}
		if cfg.Slot == "" {
			return fmt.Errorf("%w: encoder %q has no persist slot", ErrConfig, cfg.Name)
		}
		slot := filepath.Clean(cfg.Slot)
		if j, dup := slots[slot]; dup {
			return fmt.Errorf("%w: encoders %d and %d share persist slot %q", ErrConfig, j, i, cfg.Slot)
		}
		slots[slot] = i
	}
	return nil
}
