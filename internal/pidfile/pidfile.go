package pidfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const (
	fileMode = 0600
	dirMode  = 0750

	// maxAcquireAttempts bounds stale-file replacement races.
	maxAcquireAttempts = 3

	// pollInterval is how often Terminate checks whether the process exited.
	pollInterval = 100 * time.Millisecond
)

var (
	// ErrRunning is returned when the PID file names a live process.
	ErrRunning = errors.New("daemon already running")

	// ErrNotRunning is returned when no live process is recorded.
	ErrNotRunning = errors.New("daemon not running")

	// ErrInvalid is returned when the PID file content is not a PID.
	ErrInvalid = errors.New("invalid pid file")
)

// File is an acquired PID file.
type File struct {
	path string
	pid  int
}

// Acquire records pid in path, failing with ErrRunning if another live
// process already holds it.
func Acquire(path string, pid int) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return nil, fmt.Errorf("creating pid file directory: %w", err)
	}

	for attempt := 0; attempt < maxAcquireAttempts; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, fileMode)
		if err == nil {
			_, writeErr := fmt.Fprintf(f, "%d\n", pid)
			closeErr := f.Close()
			if writeErr = errors.Join(writeErr, closeErr); writeErr != nil {
				os.Remove(path) //nolint:errcheck // Best-effort cleanup
				return nil, fmt.Errorf("writing pid file: %w", writeErr)
			}
			return &File{path: path, pid: pid}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("creating pid file %s: %w", path, err)
		}

		existing, readErr := Read(path)
		if readErr == nil && existing != pid && Alive(existing) {
			return nil, fmt.Errorf("%w (pid %d, file %s)", ErrRunning, existing, path)
		}
		// Stale, ours, or unreadable: replace it.
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return nil, fmt.Errorf("removing stale pid file: %w", rmErr)
		}
	}
	return nil, fmt.Errorf("acquiring pid file %s: gave up after %d attempts", path, maxAcquireAttempts)
}

// Path returns the file location.
func (f *File) Path() string { return f.path }

// PID returns the recorded process ID.
func (f *File) PID() int { return f.pid }

// Release removes the file if it still names this process.
func (f *File) Release() error {
	pid, err := Read(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err == nil && pid != f.pid {
		return nil
	}
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing pid file: %w", err)
	}
	return nil
}

// Read returns the PID recorded in path.
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// Alive reports whether a process with pid exists.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds; signal 0 probes existence.
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// Running returns the live PID recorded in path, or ErrNotRunning.
func Running(path string) (int, error) {
	pid, err := Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, ErrNotRunning
	}
	if err != nil {
		return 0, err
	}
	if !Alive(pid) {
		return pid, ErrNotRunning
	}
	return pid, nil
}

// Terminate sends SIGTERM to pid and waits for it to exit or ctx to end.
func Terminate(ctx context.Context, pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return fmt.Errorf("signalling process %d: %w", pid, err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if !Alive(pid) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for process %d to exit: %w", pid, ctx.Err())
		case <-ticker.C:
		}
	}
}
