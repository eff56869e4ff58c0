// Package history keeps an audit trail of persisted angle changes in SQLite.
//
// Every movement, zero and baseline the control loop persists can be
// recorded here, giving a local record of how each encoder moved over time.
// The angle files stay authoritative; history is write-behind and optional.
package history
