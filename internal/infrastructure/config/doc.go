// Package config handles loading and validating encoderd configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Resolving file paths against the working directory
//   - Validation of encoder descriptors (calibration, unique slots)
//
// Configuration is loaded once at startup. Any error returned by Load is
// fatal: the daemon refuses to start rather than track angles with a
// half-valid encoder list.
//
// Usage:
//
//	cfg, err := config.Load("/etc/encoderd/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.TickInterval())
package config
