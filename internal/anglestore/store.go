package anglestore

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// File permissions for angle records.
const (
	dirPermissions  = 0750
	filePermissions = 0644
)

// FileStore persists one angle per slot as a plain-text file.
//
// A slot is a file path; relative slots resolve against the store's base
// directory. Each record is a single decimal number followed by a newline,
// readable by operators and re-parsable exactly by Load.
//
// Thread Safety:
//   - Save replaces records atomically, so a concurrent Load sees either the
//     previous or the new value, never a partial write.
//   - Two concurrent Saves to the same slot are not coordinated; the caller
//     must keep a single writer per slot.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Path returns the file backing slot.
func (s *FileStore) Path(slot string) string {
	if filepath.IsAbs(slot) {
		return slot
	}
	return filepath.Join(s.dir, slot)
}

// Load reads the persisted angle for slot.
//
// Returns ErrNotFound if the file does not exist and ErrCorrupt if its
// content is not a finite number.
func (s *FileStore) Load(slot string) (float64, error) {
	if slot == "" {
		return 0, ErrInvalidSlot
	}

	data, err := os.ReadFile(s.Path(slot))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, slot)
		}
		return 0, fmt.Errorf("reading %s: %w", slot, err)
	}

	return Parse(data)
}

// Save atomically replaces the record for slot with angle.
//
// The value is written to a temporary file in the same directory, synced,
// and renamed over the slot; the directory is then synced so the rename
// survives a power cut.
func (s *FileStore) Save(slot string, angle float64) error {
	if slot == "" {
		return ErrInvalidSlot
	}
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidAngle, angle)
	}

	path := s.Path(slot)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("creating directory for %s: %w", slot, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", slot, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck // No-op after a successful rename

	if _, err := tmp.WriteString(Format(angle) + "\n"); err != nil {
		tmp.Close() //nolint:errcheck // Already failing
		return fmt.Errorf("writing %s: %w", slot, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck // Already failing
		return fmt.Errorf("syncing %s: %w", slot, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file for %s: %w", slot, err)
	}
	if err := os.Chmod(tmpPath, filePermissions); err != nil {
		return fmt.Errorf("setting permissions for %s: %w", slot, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replacing %s: %w", slot, err)
	}

	return syncDir(dir)
}

// syncDir flushes directory metadata so a completed rename is durable.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("opening directory %s: %w", dir, err)
	}
	defer d.Close()

	if err := d.Sync(); err != nil {
		return fmt.Errorf("syncing directory %s: %w", dir, err)
	}
	return nil
}

// Format renders angle in the canonical record form.
//
// The shortest decimal that round-trips is used, with ".0" appended to
// integral values so records read as "360.0" rather than "360". Negative
// zero is written as "0.0".
func Format(angle float64) string {
	if angle == 0 {
		return "0.0"
	}
	s := strconv.FormatFloat(angle, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

// Parse decodes a record's content.
//
// Only the first non-blank line is read, trimmed of whitespace. Empty,
// non-numeric and non-finite content is ErrCorrupt.
func Parse(data []byte) (float64, error) {
	var text string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if t := strings.TrimSpace(sc.Text()); t != "" {
			text = t
			break
		}
	}
	if text == "" {
		return 0, fmt.Errorf("%w: empty", ErrCorrupt)
	}

	angle, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrCorrupt, text)
	}
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		return 0, fmt.Errorf("%w: non-finite value %q", ErrCorrupt, text)
	}
	return angle, nil
}
