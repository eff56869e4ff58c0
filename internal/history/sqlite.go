package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultLimit = 50
	maxLimit     = 1000

	// timeLayout is fixed width so stored timestamps sort as text.
	timeLayout = "2006-01-02T15:04:05.000000Z"
)

// SQLiteRepository implements Repository on the angle_history table.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Record inserts one entry. A zero CreatedAt is stamped with the current time.
func (r *SQLiteRepository) Record(ctx context.Context, e Entry) error {
	if e.Encoder == "" || e.Source == "" {
		return fmt.Errorf("%w: encoder and source are required", ErrInvalidEntry)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO angle_history (encoder, slot, delta, angle, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.Encoder,
		e.Slot,
		e.Delta,
		e.Angle,
		e.Source,
		e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting angle history: %w", err)
	}
	return nil
}

// Recent returns an encoder's latest entries, newest first.
// limit defaults to 50 and is capped at 1000.
func (r *SQLiteRepository) Recent(ctx context.Context, encoder string, limit int) ([]Entry, error) {
	if encoder == "" {
		return nil, fmt.Errorf("%w: encoder is required", ErrInvalidEntry)
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, encoder, slot, delta, angle, source, created_at
		 FROM angle_history
		 WHERE encoder = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		encoder,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying angle history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Encoder, &e.Slot, &e.Delta, &e.Angle, &e.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning angle history: %w", err)
		}
		e.CreatedAt, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating angle history: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than olderThan and returns how many went.
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidRetention
	}

	cutoff := r.now().UTC().Add(-olderThan).Format(timeLayout)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM angle_history WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting angle history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// Compile-time check that SQLiteRepository implements Repository.
var _ Repository = (*SQLiteRepository)(nil)
