// Package config defines the configuration bundle the host application
// hands to the gateway client, loadable from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Duration wraps time.Duration so YAML values can be written as "30s" or
// "2m" instead of nanosecond counts.
type Duration time.Duration

// UnmarshalYAML accepts either a duration string or a bare integer number
// of seconds.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var secs int64
	if err := unmarshal(&secs); err != nil {
		return err
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

// MarshalYAML renders the duration in time.Duration string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Defaults applied by Default() when a field is unset.
const (
	DefaultPort             = 45000
	DefaultPollInterval     = Duration(60 * time.Second)
	DefaultCommandTimeout   = Duration(2 * time.Second)
	DefaultBroadcastTimeout = Duration(5 * time.Second)
	DefaultScanDuration     = Duration(30 * time.Second)
	DefaultMaxRetries       = 3
	DefaultRetryWait        = Duration(10 * time.Second)
	DefaultFirmwareInterval = Duration(24 * time.Hour)
)

// Config is the full client configuration. Zero values mean "use default"
// except for the overrides, whose absence selects discovery.
type Config struct {
	// IPOverride pins the device address instead of discovering it.
	IPOverride string `yaml:"ip_address,omitempty"`
	// PortOverride pins the device command port.
	PortOverride int `yaml:"port,omitempty"`

	PollInterval     Duration `yaml:"poll_interval,omitempty"`
	CommandTimeout   Duration `yaml:"command_timeout,omitempty"`
	BroadcastTimeout Duration `yaml:"broadcast_timeout,omitempty"`
	ScanDuration     Duration `yaml:"scan_duration,omitempty"`
	MaxRetries       int      `yaml:"max_retries,omitempty"`
	RetryWait        Duration `yaml:"retry_wait,omitempty"`

	// FieldMapOverrides fully replaces the default field map.
	FieldMapOverrides map[string]string `yaml:"field_map,omitempty"`
	// FieldMapExtensions adds or replaces single field map entries.
	FieldMapExtensions map[string]string `yaml:"field_map_extensions,omitempty"`

	// LogUnknownFields raises unknown wire fields from debug to info.
	LogUnknownFields bool `yaml:"log_unknown_fields,omitempty"`
	// ShowBattery passes battery state through even for sensors that are
	// not currently heard.
	ShowBattery bool `yaml:"show_battery,omitempty"`

	FirmwareCheckEnabled  bool     `yaml:"firmware_check_enabled,omitempty"`
	FirmwareCheckInterval Duration `yaml:"firmware_check_interval,omitempty"`
	// FirmwareLatest is the newest firmware version the operator knows of;
	// the monitor flags the device when it runs something older.
	FirmwareLatest string `yaml:"firmware_latest,omitempty"`

	Debug bool `yaml:"debug,omitempty"`
}

// Default fills unset fields with their defaults and returns the config.
func (c *Config) Default() *Config {
	if c.PortOverride == 0 {
		c.PortOverride = DefaultPort
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.BroadcastTimeout <= 0 {
		c.BroadcastTimeout = DefaultBroadcastTimeout
	}
	if c.ScanDuration <= 0 {
		c.ScanDuration = DefaultScanDuration
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryWait <= 0 {
		c.RetryWait = DefaultRetryWait
	}
	if c.FirmwareCheckInterval <= 0 {
		c.FirmwareCheckInterval = DefaultFirmwareInterval
	}
	return c
}

// Load reads a YAML config file and applies defaults.
func Load(filename string) (*Config, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", filename, err)
	}
	return c.Default(), nil
}
