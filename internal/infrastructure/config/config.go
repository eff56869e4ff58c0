package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Hardware driver names.
const (
	DriverRPIO      = "rpio"
	DriverSimulated = "simulated"
)

// reservedNameChars may not appear in encoder names. Names become MQTT
// topic levels and angle file names, where these are separators or wildcards.
const reservedNameChars = "/+#\x00"

// legacyPollInterval is the fixed tick of earlier encoderd releases,
// which ignored its configured refresh rate.
const legacyPollInterval = time.Second

// Config is the root configuration structure for encoderd.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	// Dir is the working directory holding the PID file, log file and angle files.
	Dir string `yaml:"dir"`

	// PIDFile is the path of the PID file. Relative paths resolve against Dir.
	PIDFile string `yaml:"pid_file"`

	// PollInterval is the time between control loop ticks.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollTimeout bounds how long a tick waits for device polls.
	PollTimeout time.Duration `yaml:"poll_timeout"`

	// LegacyFixedCadence forces a 1s tick regardless of PollInterval.
	LegacyFixedCadence bool `yaml:"legacy_fixed_cadence"`

	Hardware HardwareConfig  `yaml:"hardware"`
	Encoders []EncoderConfig `yaml:"encoders"`
	Logging  LoggingConfig   `yaml:"logging"`
	Database DatabaseConfig  `yaml:"database"`
	MQTT     MQTTConfig      `yaml:"mqtt"`
	InfluxDB InfluxDBConfig  `yaml:"influxdb"`
}

// HardwareConfig selects the GPIO backend used by the quadrature decoders.
type HardwareConfig struct {
	// Driver is "rpio" (Raspberry Pi GPIO, BCM numbering) or "simulated".
	Driver string `yaml:"driver"`

	// SampleInterval is how often each decoder samples its two pins.
	SampleInterval time.Duration `yaml:"sample_interval"`
}

// EncoderConfig describes one attached quadrature encoder.
type EncoderConfig struct {
	// Name is the device nickname used in logs and telemetry.
	Name string `yaml:"name"`

	// PinA and PinB are the GPIO numbers of the two quadrature channels.
	PinA int `yaml:"pin_a"`
	PinB int `yaml:"pin_b"`

	// Calibration is degrees of rotation per step.
	Calibration float64 `yaml:"calibration"`

	// StepsPerRevolution derives Calibration as 360/steps when Calibration is unset.
	StepsPerRevolution float64 `yaml:"steps_per_revolution"`

	// Slot is the file holding the last known angle. Relative paths resolve against Dir.
	// Default: Angle_<name>.log
	Slot string `yaml:"slot"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path string `yaml:"path"`
}

// DatabaseConfig contains SQLite angle history settings.
type DatabaseConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	WALMode       bool   `yaml:"wal_mode"`
	BusyTimeout   int    `yaml:"busy_timeout"`
	RetentionDays int    `yaml:"retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Relative paths are then resolved against Dir and the result is validated.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.resolve(); err != nil {
		return nil, fmt.Errorf("resolving paths: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with the stock encoderd defaults.
func defaultConfig() *Config {
	return &Config{
		Dir:          "~/.encoderd",
		PIDFile:      "encoderd.pid",
		PollInterval: time.Second,
		PollTimeout:  250 * time.Millisecond,
		Hardware: HardwareConfig{
			Driver:         DriverRPIO,
			SampleInterval: time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "debug",
			Format: "text",
			Output: "file",
			File:   FileLoggingConfig{Path: "encoderd.log"},
		},
		Database: DatabaseConfig{
			Path:          "encoderd.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 90,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "encoderd",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ENCODERD_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ENCODERD_DIR"); v != "" {
		cfg.Dir = v
	}
	if v := os.Getenv("ENCODERD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ENCODERD_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ENCODERD_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ENCODERD_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("ENCODERD_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// resolve expands "~" in Dir, fills default slots and makes every
// file path absolute relative to Dir.
func (c *Config) resolve() error {
	if c.Dir == "~" || strings.HasPrefix(c.Dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("expanding dir: %w", err)
		}
		c.Dir = filepath.Join(home, strings.TrimPrefix(c.Dir, "~"))
	}

	c.PIDFile = c.ResolvePath(c.PIDFile)
	c.Logging.File.Path = c.ResolvePath(c.Logging.File.Path)
	c.Database.Path = c.ResolvePath(c.Database.Path)

	for i := range c.Encoders {
		enc := &c.Encoders[i]
		if enc.Slot == "" && enc.Name != "" {
			enc.Slot = "Angle_" + enc.Name + ".log"
		}
		if enc.Slot != "" {
			enc.Slot = c.ResolvePath(enc.Slot)
		}
		if enc.Calibration == 0 && enc.StepsPerRevolution != 0 {
			enc.Calibration = 360 / enc.StepsPerRevolution
		}
	}
	return nil
}

// ResolvePath returns p cleaned if absolute, otherwise joined onto Dir.
func (c *Config) ResolvePath(p string) string {
	if p == "" {
		return p
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.Dir, p)
}

// Validate checks the configuration for errors.
//
// All problems are collected so an operator sees every mistake at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Dir == "" {
		errs = append(errs, "dir is required")
	}
	if c.PIDFile == "" {
		errs = append(errs, "pid_file is required")
	}
	if c.PollInterval <= 0 {
		errs = append(errs, "poll_interval must be positive")
	}
	if c.PollTimeout <= 0 {
		errs = append(errs, "poll_timeout must be positive")
	}

	switch c.Hardware.Driver {
	case DriverRPIO, DriverSimulated:
	default:
		errs = append(errs, fmt.Sprintf("hardware.driver %q must be %q or %q", c.Hardware.Driver, DriverRPIO, DriverSimulated))
	}
	if c.Hardware.SampleInterval <= 0 {
		errs = append(errs, "hardware.sample_interval must be positive")
	}

	if len(c.Encoders) == 0 {
		errs = append(errs, "at least one encoder is required")
	}
	names := make(map[string]bool)
	slots := make(map[string]string)
	for i, enc := range c.Encoders {
		if enc.Name == "" {
			errs = append(errs, fmt.Sprintf("encoders[%d].name is required", i))
		} else if names[enc.Name] {
			errs = append(errs, fmt.Sprintf("encoders[%d].name %q is duplicated", i, enc.Name))
		}
		names[enc.Name] = true
		if strings.ContainsAny(enc.Name, reservedNameChars) {
			errs = append(errs, fmt.Sprintf("encoders[%d].name %q must not contain any of %q", i, enc.Name, reservedNameChars))
		}

		if enc.Calibration == 0 || math.IsNaN(enc.Calibration) || math.IsInf(enc.Calibration, 0) {
			errs = append(errs, fmt.Sprintf("encoders[%d].calibration must be a non-zero number", i))
		}
		if enc.PinA == enc.PinB {
			errs = append(errs, fmt.Sprintf("encoders[%d] pin_a and pin_b must differ", i))
		}
		if enc.Slot != "" {
			slot := filepath.Clean(enc.Slot)
			if other, dup := slots[slot]; dup {
				errs = append(errs, fmt.Sprintf("encoders[%d].slot %q is already used by %q", i, enc.Slot, other))
			}
			slots[slot] = enc.Name
		}
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}
	if c.MQTT.Enabled && (c.MQTT.QoS < 0 || c.MQTT.QoS > 2) {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// TickInterval returns the effective control loop tick.
func (c *Config) TickInterval() time.Duration {
	if c.LegacyFixedCadence {
		return legacyPollInterval
	}
	return c.PollInterval
}
