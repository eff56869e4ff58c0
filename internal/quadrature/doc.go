// Package quadrature decodes two-channel rotary encoders into signed step
// counts.
//
// A Worker samples a pin pair on its own goroutine, runs each sample through
// a Gray-code transition table and accumulates the result in an atomic
// counter. PollDelta returns the steps seen since the previous call and
// clears the counter, which is the "get and reset" contract of
// encoder.Device.
//
// Pin backends:
//
//   - RPIOPins: memory-mapped GPIO via go-rpio (BCM numbering, pull-ups on)
//   - Simulator: in-memory pins that replay injected steps
//
// One full quadrature cycle is four steps.
package quadrature
