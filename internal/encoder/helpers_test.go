package encoder

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/encoderd/internal/anglestore"
)

// fakeDevice is a scripted Device. Each PollDelta pops the next queued delta.
type fakeDevice struct {
	mu     sync.Mutex
	deltas []int64
	errs   []error
	gate   chan struct{}
	polls  int
	closed bool
}

func (d *fakeDevice) PollDelta() (int64, error) {
	d.mu.Lock()
	gate := d.gate
	d.mu.Unlock()
	if gate != nil {
		<-gate
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.polls++
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		return 0, err
	}
	if len(d.deltas) == 0 {
		return 0, nil
	}
	v := d.deltas[0]
	d.deltas = d.deltas[1:]
	return v, nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDevice) push(deltas ...int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deltas = append(d.deltas, deltas...)
}

func (d *fakeDevice) fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs = append(d.errs, err)
}

func (d *fakeDevice) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *fakeDevice) pollCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.polls
}

// openerFor returns a DeviceOpener serving devices by encoder name.
// Names without a device fail to activate.
func openerFor(devices map[string]*fakeDevice) DeviceOpener {
	return func(cfg EncoderConfig) (Device, error) {
		d, ok := devices[cfg.Name]
		if !ok {
			return nil, fmt.Errorf("no device on pins %d/%d", cfg.PinA, cfg.PinB)
		}
		return d, nil
	}
}

// memStore is an in-memory AngleStore that counts saves.
type memStore struct {
	mu      sync.Mutex
	angles  map[string]float64
	loadErr map[string]error
	saveErr error
	saves   int
}

func newMemStore() *memStore {
	return &memStore{
		angles:  make(map[string]float64),
		loadErr: make(map[string]error),
	}
}

func (s *memStore) Load(slot string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.loadErr[slot]; ok {
		return 0, err
	}
	a, ok := s.angles[slot]
	if !ok {
		return 0, anglestore.ErrNotFound
	}
	return a, nil
}

func (s *memStore) Save(slot string, angle float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.angles[slot] = angle
	s.saves++
	return nil
}

func (s *memStore) angle(slot string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.angles[slot]
	return a, ok
}

func (s *memStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *memStore) setSaveErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

// logEntry is one captured log call.
type logEntry struct {
	level string
	msg   string
	args  []any
}

// captureLogger records log calls for assertions.
type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *captureLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *captureLogger) Debug(msg string, args ...any) { l.add("DEBUG", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.add("INFO", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.add("WARN", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.add("ERROR", msg, args) }

func (l *captureLogger) count(level, msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			n++
		}
	}
	return n
}

// recordingObserver collects notified movements.
type recordingObserver struct {
	mu        sync.Mutex
	movements []Movement
}

func (o *recordingObserver) AngleChanged(m Movement) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.movements = append(o.movements, m)
}

func (o *recordingObserver) all() []Movement {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Movement, len(o.movements))
	copy(out, o.movements)
	return out
}

// testConfigs returns n valid encoder configs named enc0..encN-1.
func testConfigs(n int, calibration float64) []EncoderConfig {
	configs := make([]EncoderConfig, n)
	for i := range configs {
		name := fmt.Sprintf("enc%d", i)
		configs[i] = EncoderConfig{
			Name:        name,
			PinA:        2 * i,
			PinB:        2*i + 1,
			Calibration: calibration,
			Slot:        "Angle_" + name + ".log",
		}
	}
	return configs
}

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

var errTransient = errors.New("bus glitch")
