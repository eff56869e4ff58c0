package pidfile

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

// deadPID is above any Linux pid_max.
const deadPID = 1<<31 - 2

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}

func TestAcquireWritesPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "encoderd.pid")

	f, err := Acquire(path, 4242)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if got := readFile(t, path); got != "4242\n" {
		t.Errorf("pid file = %q, want %q", got, "4242\n")
	}
	if f.PID() != 4242 || f.Path() != path {
		t.Errorf("File = %+v", f)
	}
}

func TestAcquireRefusesLiveProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "encoderd.pid")
	if _, err := Acquire(path, os.Getpid()); err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}

	_, err := Acquire(path, 4242)
	if !errors.Is(err, ErrRunning) {
		t.Fatalf("second Acquire() error = %v, want ErrRunning", err)
	}
	if got, want := readFile(t, path), itoa(os.Getpid())+"\n"; got != want {
		t.Errorf("pid file = %q, want the first holder %q", got, want)
	}
}

func TestAcquireReplacesStale(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"dead process", itoa(deadPID) + "\n"},
		{"garbage", "not a pid\n"},
		{"empty", ""},
		{"negative", "-5\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "encoderd.pid")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}

			if _, err := Acquire(path, 4242); err != nil {
				t.Fatalf("Acquire() error = %v", err)
			}
			if got := readFile(t, path); got != "4242\n" {
				t.Errorf("pid file = %q, want %q", got, "4242\n")
			}
		})
	}
}

func TestReleaseRemovesOwnFileOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "encoderd.pid")
	f, err := Acquire(path, 4242)
	if err != nil {
		t.Fatal(err)
	}

	// Another process took over the file.
	if err := os.WriteFile(path, []byte("5151\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := f.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("foreign pid file was removed: %v", err)
	}

	if err := os.WriteFile(path, []byte("4242\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := f.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("pid file still present after Release: %v", err)
	}

	if err := f.Release(); err != nil {
		t.Errorf("Release() on missing file error = %v", err)
	}
}

func TestRunning(t *testing.T) {
	dir := t.TempDir()

	if _, err := Running(filepath.Join(dir, "missing.pid")); !errors.Is(err, ErrNotRunning) {
		t.Errorf("missing file: error = %v, want ErrNotRunning", err)
	}

	stale := filepath.Join(dir, "stale.pid")
	os.WriteFile(stale, []byte(itoa(deadPID)+"\n"), 0600) //nolint:errcheck
	if pid, err := Running(stale); !errors.Is(err, ErrNotRunning) || pid != deadPID {
		t.Errorf("stale file: Running() = %d, %v", pid, err)
	}

	bad := filepath.Join(dir, "bad.pid")
	os.WriteFile(bad, []byte("x"), 0600) //nolint:errcheck
	if _, err := Running(bad); !errors.Is(err, ErrInvalid) {
		t.Errorf("garbage file: error = %v, want ErrInvalid", err)
	}

	live := filepath.Join(dir, "live.pid")
	os.WriteFile(live, []byte(itoa(os.Getpid())+"\n"), 0600) //nolint:errcheck
	if pid, err := Running(live); err != nil || pid != os.Getpid() {
		t.Errorf("live file: Running() = %d, %v", pid, err)
	}
}

func TestAlive(t *testing.T) {
	if !Alive(os.Getpid()) {
		t.Error("Alive(self) = false")
	}
	if Alive(0) || Alive(-1) || Alive(deadPID) {
		t.Error("Alive reported a nonexistent process")
	}
}

func TestTerminate(t *testing.T) {
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}
	cmd := exec.Command(sleep, "30")
	if err := cmd.Start(); err != nil {
		t.Fatalf("starting sleep: %v", err)
	}
	go cmd.Wait() //nolint:errcheck // Reaps the child so it stops being alive

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Terminate(ctx, cmd.Process.Pid); err != nil {
		t.Fatalf("Terminate() error = %v", err)
	}
	if Alive(cmd.Process.Pid) {
		t.Error("process still alive after Terminate")
	}
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
