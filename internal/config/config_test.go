package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
mqtt:
  broker: tcp://broker.local:1883
log:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Device.VendorID != 0x051D || cfg.Device.ProductID != 0x0002 {
		t.Fatalf("expected Back-UPS device defaults, got %04x:%04x",
			cfg.Device.VendorID, cfg.Device.ProductID)
	}
	if cfg.Poll.SweepEvery != 20 {
		t.Fatalf("expected sweep_every default 20, got %d", cfg.Poll.SweepEvery)
	}
	if cfg.MQTT.DiscoveryPrefix != "homeassistant" {
		t.Fatalf("expected default discovery prefix, got %s", cfg.MQTT.DiscoveryPrefix)
	}
	if cfg.MQTT.Broker != "tcp://broker.local:1883" {
		t.Fatalf("broker not carried through: %s", cfg.MQTT.Broker)
	}
	if cfg.Metrics.Addr != ":9090" {
		t.Fatalf("expected default metrics addr :9090, got %s", cfg.Metrics.Addr)
	}
	if cfg.LogLevel() != slog.LevelDebug {
		t.Fatalf("expected debug level, got %v", cfg.LogLevel())
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
device:
  vendor_id: 0x051D
  product_id: 0x0003
  simulate: true
poll:
  interval_ms: 250
  sweep_every: 4
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Device.ProductID != 0x0003 {
		t.Fatalf("expected product id override, got %04x", cfg.Device.ProductID)
	}
	if !cfg.Device.Simulate {
		t.Fatal("expected simulate to be set")
	}
	if cfg.Poll.IntervalMs != 250 || cfg.Poll.SweepEvery != 4 {
		t.Fatalf("poll overrides lost: %+v", cfg.Poll)
	}
}

func TestLoadRejectsBadLevel(t *testing.T) {
	path := writeConfig(t, `
log:
  level: loud
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.validate(); err != nil {
		t.Fatalf("default config does not validate: %v", err)
	}
}
