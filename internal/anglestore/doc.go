// Package anglestore persists encoder angles as plain-text files.
//
// Each encoder owns one slot: a file containing its last known angle in
// degrees, e.g. "360.0". These files are the system of record that
// operators and downstream instruments read, so they must stay
// human-readable and must never be observed half-written.
//
// Save writes through a temporary file and an atomic rename. Load reports
// ErrNotFound for a missing file and ErrCorrupt for unparsable content;
// the encoder registry normalises both to a fresh zero baseline.
package anglestore
