// Package config loads the bridge's YAML configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	Poll    PollConfig    `yaml:"poll"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

type DeviceConfig struct {
	VendorID  uint16 `yaml:"vendor_id"`
	ProductID uint16 `yaml:"product_id"`

	// Simulate skips USB entirely and feeds synthetic reports. The
	// simulator also engages on its own when the host fails to start.
	Simulate bool `yaml:"simulate"`
}

type PollConfig struct {
	IntervalMs       int `yaml:"interval_ms"`
	ReadTimeoutMs    int `yaml:"read_timeout_ms"`
	FeatureTimeoutMs int `yaml:"feature_timeout_ms"`
	SweepEvery       int `yaml:"sweep_every"`
	SweepPauseMs     int `yaml:"sweep_pause_ms"`
}

// MQTTConfig configures the Home Assistant publisher. An empty broker
// disables publishing.
type MQTTConfig struct {
	Broker            string `yaml:"broker"`
	Username          string `yaml:"username"`
	Password          string `yaml:"password"`
	ClientID          string `yaml:"client_id"`
	DeviceID          string `yaml:"device_id"`
	DiscoveryPrefix   string `yaml:"discovery_prefix"`
	PublishIntervalMs int    `yaml:"publish_interval_ms"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Device.VendorID == 0 {
		c.Device.VendorID = 0x051D
	}
	if c.Device.ProductID == 0 {
		c.Device.ProductID = 0x0002
	}
	if c.Poll.IntervalMs == 0 {
		c.Poll.IntervalMs = 1000
	}
	if c.Poll.ReadTimeoutMs == 0 {
		c.Poll.ReadTimeoutMs = 500
	}
	if c.Poll.FeatureTimeoutMs == 0 {
		c.Poll.FeatureTimeoutMs = 1000
	}
	if c.Poll.SweepEvery == 0 {
		c.Poll.SweepEvery = 20
	}
	if c.Poll.SweepPauseMs == 0 {
		c.Poll.SweepPauseMs = 20
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "upsbridge"
	}
	if c.MQTT.DeviceID == "" {
		c.MQTT.DeviceID = "apc_ups"
	}
	if c.MQTT.DiscoveryPrefix == "" {
		c.MQTT.DiscoveryPrefix = "homeassistant"
	}
	if c.MQTT.PublishIntervalMs == 0 {
		c.MQTT.PublishIntervalMs = 5000
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) validate() error {
	if c.Poll.IntervalMs < 0 || c.Poll.ReadTimeoutMs < 0 ||
		c.Poll.FeatureTimeoutMs < 0 || c.Poll.SweepPauseMs < 0 {
		return fmt.Errorf("poll durations must not be negative")
	}
	if c.Poll.SweepEvery < 1 {
		return fmt.Errorf("poll.sweep_every must be at least 1")
	}
	if c.MQTT.PublishIntervalMs < 1 {
		return fmt.Errorf("mqtt.publish_interval_ms must be at least 1")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// LogLevel returns the configured slog level. Only valid after Load or
// Default, which guarantee the level string parses.
func (c *Config) LogLevel() slog.Level {
	lvl, _ := parseLevel(c.Log.Level)
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log.level %q is not one of debug, info, warn, error", s)
	}
}
