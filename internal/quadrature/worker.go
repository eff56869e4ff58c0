package quadrature

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/encoderd/internal/encoder"
)

// DefaultSampleInterval is the pin sampling period.
const DefaultSampleInterval = time.Millisecond

// maxReadErrors is how many consecutive failed samples end the worker.
const maxReadErrors = 50

// Worker samples one encoder's pins and accumulates steps.
//
// The sampling goroutine is the only user of the decoder; the step count is
// shared through an atomic so PollDelta never blocks on the hardware.
// Worker satisfies encoder.Device.
type Worker struct {
	pins     Pins
	interval time.Duration
	decoder  Decoder

	count   atomic.Int64
	skipped atomic.Uint64

	mu     sync.Mutex
	err    error
	closed bool

	startOnce sync.Once
	started   bool
	stopCh    chan struct{}
	done      chan struct{}
}

// NewWorker creates a stopped worker sampling pins every interval.
func NewWorker(pins Pins, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return &Worker{
		pins:     pins,
		interval: interval,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sampling goroutine. Calling it again is a no-op.
func (w *Worker) Start() {
	w.startOnce.Do(func() {
		w.mu.Lock()
		w.started = true
		w.mu.Unlock()
		go w.run()
	})
}

func (w *Worker) run() {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
		}

		a, b, err := w.pins.Read()
		if err != nil {
			failures++
			if failures >= maxReadErrors {
				w.fail(fmt.Errorf("%w: %d consecutive errors, last: %w", ErrPinRead, failures, err))
				return
			}
			continue
		}
		failures = 0

		if step := w.decoder.Update(a, b); step != 0 {
			w.count.Add(int64(step))
		}
		w.skipped.Store(w.decoder.Skipped())
	}
}

func (w *Worker) fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = err
}

// PollDelta returns the steps accumulated since the previous call and
// resets the count.
//
// Steps counted before a failure are still returned; once they are drained
// a failed or closed worker reports an error wrapping encoder.ErrDeviceFailed.
func (w *Worker) PollDelta() (int64, error) {
	if d := w.count.Swap(0); d != 0 {
		return d, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, fmt.Errorf("%w: %w", encoder.ErrDeviceFailed, ErrClosed)
	}
	if w.err != nil {
		return 0, fmt.Errorf("%w: %w", encoder.ErrDeviceFailed, w.err)
	}
	return 0, nil
}

// Skipped returns the number of invalid transitions seen so far.
func (w *Worker) Skipped() uint64 {
	return w.skipped.Load()
}

// Close stops sampling and releases the pins. It is safe to call twice.
func (w *Worker) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	started := w.started
	w.mu.Unlock()

	close(w.stopCh)
	if started {
		<-w.done
	}
	if err := w.pins.Close(); err != nil {
		return fmt.Errorf("closing pins: %w", err)
	}
	return nil
}

// Compile-time check that Worker implements encoder.Device.
var _ encoder.Device = (*Worker)(nil)
