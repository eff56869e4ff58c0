package history

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidEntry is returned when an entry lacks an encoder name or source.
	ErrInvalidEntry = errors.New("history: invalid entry")

	// ErrInvalidRetention is returned by Prune for a non-positive age.
	ErrInvalidRetention = errors.New("history: retention must be positive")
)

// Entry is one recorded angle change.
type Entry struct {
	// ID is the auto-incremented primary key.
	ID int64

	// Encoder is the encoder name.
	Encoder string

	// Slot is the persisted record the angle was written to.
	Slot string

	// Delta is the signed step count that caused the change (0 for zero
	// and baseline events).
	Delta int64

	// Angle is the angle after the change, in degrees.
	Angle float64

	// Source is movement, zero or baseline.
	Source string

	// CreatedAt is when the change was persisted (UTC).
	CreatedAt time.Time
}

// Repository stores and retrieves angle history.
type Repository interface {
	Record(ctx context.Context, e Entry) error
	Recent(ctx context.Context, encoder string, limit int) ([]Entry, error)
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}
