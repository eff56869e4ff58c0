// Package logging provides structured logging for encoderd.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the daemon.
//
// # Features
//
//   - JSON or text output
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Append-only file output (encoderd.log in the working directory)
//
// # Configuration
//
//	logging:
//	  level: "debug"     # debug, info, warn, error
//	  format: "text"     # json, text
//	  output: "file"     # stdout, stderr, file
//	  file:
//	    path: "encoderd.log"
//
// # Usage
//
//	logger, err := logging.New(cfg.Logging, "1.0.0")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//	logger.Info("encoder registered", "index", 0, "name", "780X")
package logging
