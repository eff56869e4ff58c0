package quadrature

import (
	"sync"
	"sync/atomic"
)

// phases is the forward Gray sequence of (a, b) levels.
var phases = [4][2]bool{
	{false, false},
	{false, true},
	{true, true},
	{true, false},
}

// Simulator is an in-memory Pins implementation for running without
// hardware. Injected steps are replayed one quadrature step per Read.
type Simulator struct {
	pending atomic.Int64

	mu      sync.Mutex
	phase   int
	readErr error
	closed  bool
}

// NewSimulator creates a simulator resting at phase 00.
func NewSimulator() *Simulator {
	return &Simulator{}
}

// Inject queues steps of motion; negative values turn backwards.
func (s *Simulator) Inject(steps int64) {
	s.pending.Add(steps)
}

// Pending returns the steps not yet replayed.
func (s *Simulator) Pending() int64 {
	return s.pending.Load()
}

// FailReads makes every following Read return err. Nil clears it.
func (s *Simulator) FailReads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

// Read returns the current levels, then moves one step toward the
// injected position so the next Read sees the transition.
func (s *Simulator) Read() (a, b bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.readErr != nil {
		return false, false, s.readErr
	}
	if s.closed {
		return false, false, ErrClosed
	}

	levels := phases[s.phase]
	switch p := s.pending.Load(); {
	case p > 0:
		s.pending.Add(-1)
		s.phase = (s.phase + 1) % 4
	case p < 0:
		s.pending.Add(1)
		s.phase = (s.phase + 3) % 4
	}
	return levels[0], levels[1], nil
}

// Close marks the simulator closed.
func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
