package quadrature

import (
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/encoderd/internal/encoder"
)

// drain polls w until the collected steps reach want or the timeout elapses.
func drain(t *testing.T, w *Worker, want int64, timeout time.Duration) int64 {
	t.Helper()
	var total int64
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		d, err := w.PollDelta()
		if err != nil {
			t.Fatalf("PollDelta() error = %v", err)
		}
		total += d
		if total == want {
			return total
		}
		time.Sleep(time.Millisecond)
	}
	return total
}

func TestWorker_CountsInjectedSteps(t *testing.T) {
	tests := []struct {
		name  string
		steps int64
	}{
		{name: "forward", steps: 200},
		{name: "backward", steps: -150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := NewSimulator()
			w := NewWorker(sim, 100*time.Microsecond)
			w.Start()
			defer w.Close()

			sim.Inject(tt.steps)
			if got := drain(t, w, tt.steps, 5*time.Second); got != tt.steps {
				t.Errorf("collected %d steps, want %d", got, tt.steps)
			}
			if w.Skipped() != 0 {
				t.Errorf("Skipped() = %d, want 0", w.Skipped())
			}
		})
	}
}

func TestWorker_PollDeltaClears(t *testing.T) {
	sim := NewSimulator()
	w := NewWorker(sim, 100*time.Microsecond)
	w.Start()
	defer w.Close()

	sim.Inject(40)
	drain(t, w, 40, 5*time.Second)

	d, err := w.PollDelta()
	if err != nil || d != 0 {
		t.Errorf("PollDelta() = %d, %v; want 0, nil", d, err)
	}
}

func TestWorker_ReadFailureIsPermanent(t *testing.T) {
	sim := NewSimulator()
	w := NewWorker(sim, 100*time.Microsecond)
	w.Start()
	defer w.Close()

	sim.FailReads(errors.New("bus error"))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, err := w.PollDelta()
		if err != nil {
			if !errors.Is(err, encoder.ErrDeviceFailed) || !errors.Is(err, ErrPinRead) {
				t.Fatalf("PollDelta() error = %v, want ErrDeviceFailed and ErrPinRead", err)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("worker never reported the read failure")
}

func TestWorker_Close(t *testing.T) {
	sim := NewSimulator()
	w := NewWorker(sim, 0)
	if w.interval != DefaultSampleInterval {
		t.Errorf("interval = %v, want %v", w.interval, DefaultSampleInterval)
	}
	w.Start()

	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	_, err := w.PollDelta()
	if !errors.Is(err, encoder.ErrDeviceFailed) || !errors.Is(err, ErrClosed) {
		t.Errorf("PollDelta() after Close error = %v", err)
	}
	if _, _, err := sim.Read(); !errors.Is(err, ErrClosed) {
		t.Errorf("pins not closed: Read() error = %v", err)
	}
}

func TestWorker_CloseWithoutStart(t *testing.T) {
	w := NewWorker(NewSimulator(), time.Millisecond)
	if err := w.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestSimulator_ReplaysOneStepPerRead(t *testing.T) {
	sim := NewSimulator()
	sim.Inject(2)

	var d Decoder
	total := 0
	for i := 0; i < 3; i++ {
		a, b, err := sim.Read()
		if err != nil {
			t.Fatal(err)
		}
		total += d.Update(a, b)
	}
	if total != 2 {
		t.Errorf("decoded %d steps, want 2", total)
	}
	if sim.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", sim.Pending())
	}
}

func TestValidatePins(t *testing.T) {
	tests := []struct {
		name    string
		a, b    int
		wantErr bool
	}{
		{name: "valid", a: 4, b: 17},
		{name: "same pin", a: 4, b: 4, wantErr: true},
		{name: "negative", a: -1, b: 4, wantErr: true},
		{name: "out of range", a: 4, b: 54, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePins(tt.a, tt.b)
			if tt.wantErr != (err != nil) {
				t.Errorf("ValidatePins() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidPins) {
				t.Errorf("error = %v, want ErrInvalidPins", err)
			}
		})
	}
}
