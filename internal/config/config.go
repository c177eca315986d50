// Package config provides configuration loading for the truly daemon.
// Values come from an optional YAML file and can be overridden per field
// with environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for a stock MAKCU on Linux.
const (
	DefaultListenAddr       = ":8000"
	DefaultSerialDevice     = "/dev/ttyACM0"
	DefaultSerialBaud       = 115200
	DefaultTickInterval     = 10 * time.Millisecond
	DefaultReconnectBackoff = 500 * time.Millisecond
	DefaultPresetsPath      = "configs.json"
	DefaultLogLevel         = "info"
)

// Config holds the daemon's startup configuration.
type Config struct {
	ListenAddr       string        `yaml:"listen_addr"`
	SerialDevice     string        `yaml:"serial_device"`
	SerialBaud       int           `yaml:"serial_baud"`
	TickInterval     time.Duration `yaml:"tick_interval"`
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff"`
	PresetsPath      string        `yaml:"presets_path"`
	LogLevel         string        `yaml:"log_level"`
}

// Default returns a Config populated with defaults.
func Default() Config {
	return Config{
		ListenAddr:       DefaultListenAddr,
		SerialDevice:     DefaultSerialDevice,
		SerialBaud:       DefaultSerialBaud,
		TickInterval:     DefaultTickInterval,
		ReconnectBackoff: DefaultReconnectBackoff,
		PresetsPath:      DefaultPresetsPath,
		LogLevel:         DefaultLogLevel,
	}
}

// Load reads the YAML file at path (if it exists) on top of the defaults,
// then applies environment overrides. A missing file is not an error; a
// malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// run on defaults
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if cfg.TickInterval <= 0 {
		return cfg, fmt.Errorf("tick_interval must be positive, got %v", cfg.TickInterval)
	}
	if cfg.ReconnectBackoff <= 0 {
		return cfg, fmt.Errorf("reconnect_backoff must be positive, got %v", cfg.ReconnectBackoff)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("TRULY_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("TRULY_SERIAL_DEVICE"); v != "" {
		c.SerialDevice = v
	}
	if v := os.Getenv("TRULY_SERIAL_BAUD"); v != "" {
		if baud, err := strconv.Atoi(v); err == nil && baud > 0 {
			c.SerialBaud = baud
		}
	}
	if v := os.Getenv("TRULY_PRESETS_PATH"); v != "" {
		c.PresetsPath = v
	}
	if v := os.Getenv("TRULY_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}
