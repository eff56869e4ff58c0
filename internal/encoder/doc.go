// Package encoder tracks the cumulative angle of quadrature rotary encoders.
//
// Each encoder converts raw step deltas from its Device into a calibrated
// angle (degrees per step times steps) and persists every change through an
// AngleStore so the angle survives restarts.
//
// Architecture:
//
//	┌──────────────────────────────────────────────────────┐
//	│                   Loop (loop.go)                      │
//	│  tick: start polls ─▶ collect in order ─▶ move        │
//	│  ┌──────────────┐    ┌──────────────┐                │
//	│  │   Registry   │───▶│  AngleStore  │                │
//	│  │(registry.go) │    │ (anglestore) │                │
//	│  └──────────────┘    └──────────────┘                │
//	│        │                                              │
//	│        ▼                                              │
//	│  ┌──────────────┐    ┌──────────────┐                │
//	│  │    poller    │───▶│    Device    │                │
//	│  │ (poller.go)  │    │ (quadrature) │                │
//	│  └──────────────┘    └──────────────┘                │
//	└──────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - EncoderConfig: name, pins, calibration and persist slot
//   - State: per-encoder angle, device handle and step counter
//   - Registry: ordered encoders; Setup, Zero, Readings
//   - Loop: the Running/Stopped poll-accumulate-persist cycle
//   - Observer: receives persisted angle changes (telemetry, history)
//
// # Thread Safety
//
// The goroutine running Loop.Run is the only writer of angles and the only
// caller of AngleStore.Save while the loop runs. Device polls execute on
// short-lived goroutines but their results are applied on the loop
// goroutine. Loop.Stop may be called from any goroutine.
package encoder
