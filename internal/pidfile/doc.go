// Package pidfile guards the working directory against a second daemon.
//
// The file holds the decimal PID and a newline. Acquire creates it with
// O_EXCL; a file naming a dead process or holding garbage is stale and is
// replaced. Liveness is probed with signal 0.
package pidfile
