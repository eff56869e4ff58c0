package anglestore

import "errors"

// Domain errors for the anglestore package.
//
// Callers restoring state at startup treat ErrNotFound and ErrCorrupt
// the same way: both mean "no usable prior angle".
var (
	// ErrNotFound is returned when a slot has no persisted record.
	ErrNotFound = errors.New("anglestore: not found")

	// ErrCorrupt is returned when a record cannot be parsed as a finite number.
	ErrCorrupt = errors.New("anglestore: corrupt record")

	// ErrInvalidAngle is returned when saving NaN or an infinity.
	ErrInvalidAngle = errors.New("anglestore: angle must be finite")

	// ErrInvalidSlot is returned for an empty slot name.
	ErrInvalidSlot = errors.New("anglestore: invalid slot")
)
