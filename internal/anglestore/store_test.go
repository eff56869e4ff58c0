package anglestore

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestSaveLoad_RoundTrip(t *testing.T) {
	store := NewFileStore(t.TempDir())

	values := []float64{
		0,
		360,
		-12.5,
		0.0439453125,
		1.0 / 3.0,
		-1e-9,
		123456789.123456,
		0.1 + 0.2,
		math.MaxFloat64,
		-math.SmallestNonzeroFloat64,
	}

	for _, want := range values {
		if err := store.Save("angle", want); err != nil {
			t.Fatalf("Save(%v) error = %v", want, err)
		}
		got, err := store.Load("angle")
		if err != nil {
			t.Fatalf("Load() after Save(%v) error = %v", want, err)
		}
		if got != want {
			t.Errorf("Load() = %v, want %v", got, want)
		}
	}
}

func TestSave_CanonicalContent(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)

	tests := []struct {
		angle float64
		want  string
	}{
		{angle: 360, want: "360.0\n"},
		{angle: 0, want: "0.0\n"},
		{angle: math.Copysign(0, -1), want: "0.0\n"},
		{angle: -12.5, want: "-12.5\n"},
		{angle: 0.0439453125, want: "0.0439453125\n"},
	}

	for _, tt := range tests {
		if err := store.Save("Angle_780X.log", tt.angle); err != nil {
			t.Fatalf("Save(%v) error = %v", tt.angle, err)
		}
		data, err := os.ReadFile(filepath.Join(dir, "Angle_780X.log"))
		if err != nil {
			t.Fatalf("reading record: %v", err)
		}
		if string(data) != tt.want {
			t.Errorf("record for %v = %q, want %q", tt.angle, data, tt.want)
		}
	}
}

func TestSave_RejectsNonFinite(t *testing.T) {
	store := NewFileStore(t.TempDir())

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if err := store.Save("angle", v); !errors.Is(err, ErrInvalidAngle) {
			t.Errorf("Save(%v) error = %v, want ErrInvalidAngle", v, err)
		}
	}
	if _, err := store.Load("angle"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() after rejected saves error = %v, want ErrNotFound", err)
	}
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)

	for i := 0; i < 5; i++ {
		if err := store.Save("angle", float64(i)); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "angle" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory contains %v, want only the record", names)
	}
}

func TestSave_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	store := NewFileStore(dir)

	if err := store.Save("angle", 1.5); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "angle")); err != nil {
		t.Errorf("record not created: %v", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)

	tests := []struct {
		name    string
		content *string
		wantErr error
	}{
		{name: "missing file", content: nil, wantErr: ErrNotFound},
		{name: "empty file", content: ptr(""), wantErr: ErrCorrupt},
		{name: "whitespace only", content: ptr("  \n\n"), wantErr: ErrCorrupt},
		{name: "garbage", content: ptr("not-an-angle\n"), wantErr: ErrCorrupt},
		{name: "NaN", content: ptr("NaN\n"), wantErr: ErrCorrupt},
		{name: "infinity", content: ptr("+Inf\n"), wantErr: ErrCorrupt},
		{name: "trailing structure", content: ptr("12.5 degrees\n"), wantErr: ErrCorrupt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slot := strings.ReplaceAll(tt.name, " ", "_")
			if tt.content != nil {
				if err := os.WriteFile(filepath.Join(dir, slot), []byte(*tt.content), 0600); err != nil {
					t.Fatalf("writing fixture: %v", err)
				}
			}
			_, err := store.Load(slot)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Load() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_ToleratesWhitespaceAndExtraLines(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)

	if err := os.WriteFile(filepath.Join(dir, "angle"), []byte("\n  42.25  \nignored\n"), 0600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	got, err := store.Load("angle")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != 42.25 {
		t.Errorf("Load() = %v, want 42.25", got)
	}
}

func TestInvalidSlot(t *testing.T) {
	store := NewFileStore(t.TempDir())

	if _, err := store.Load(""); !errors.Is(err, ErrInvalidSlot) {
		t.Errorf("Load(\"\") error = %v, want ErrInvalidSlot", err)
	}
	if err := store.Save("", 1); !errors.Is(err, ErrInvalidSlot) {
		t.Errorf("Save(\"\") error = %v, want ErrInvalidSlot", err)
	}
}

func TestPath(t *testing.T) {
	store := NewFileStore("/srv/encoderd")

	if got := store.Path("Angle_780X.log"); got != "/srv/encoderd/Angle_780X.log" {
		t.Errorf("Path(relative) = %q", got)
	}
	if got := store.Path("/tmp/x"); got != "/tmp/x" {
		t.Errorf("Path(absolute) = %q", got)
	}
}

// TestConcurrentLoadNeverSeesPartialRecord hammers a slot with one writer
// and several readers; every read must parse as one of the written values.
func TestConcurrentLoadNeverSeesPartialRecord(t *testing.T) {
	store := NewFileStore(t.TempDir())
	if err := store.Save("angle", 0); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	const writes = 200
	done := make(chan struct{})
	var wg sync.WaitGroup
	errCh := make(chan error, 4)

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				v, err := store.Load("angle")
				if err != nil {
					errCh <- err
					return
				}
				if v < 0 || v >= writes || v != math.Trunc(v)+0.5 && v != math.Trunc(v) {
					errCh <- errors.New("unexpected value")
					return
				}
			}
		}()
	}

	for i := 0; i < writes; i++ {
		if err := store.Save("angle", float64(i)+0.5); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	close(done)
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("concurrent Load() error = %v", err)
	}
}

func ptr(s string) *string { return &s }
