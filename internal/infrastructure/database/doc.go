// Package database provides the SQLite connection behind the angle history.
//
// The database is optional: the plain-text angle files remain the system of
// record and the daemon runs without it. When enabled it stores one row per
// persisted angle change.
//
// This package manages:
//   - Connection setup with WAL mode and a busy timeout
//   - Embedded, versioned schema migrations
//   - File permissions (0600) and directory creation
//   - Read-only opens for inspecting a live daemon's history
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql, and are registered by the migrations package.
package database
