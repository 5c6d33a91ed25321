package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.Lifecycle.StartTimeoutSec != 300 {
		t.Errorf("Lifecycle.StartTimeoutSec = %d, want 300", cfg.Lifecycle.StartTimeoutSec)
	}
	if cfg.Logs.BufferCapacity != 2000 {
		t.Errorf("Logs.BufferCapacity = %d, want 2000", cfg.Logs.BufferCapacity)
	}
	if cfg.Logs.SubscriberQueue != 256 {
		t.Errorf("Logs.SubscriberQueue = %d, want 256", cfg.Logs.SubscriberQueue)
	}
}

func TestLifecycleConfig_DurationConversion(t *testing.T) {
	cfg := DefaultConfig()
	if got, want := cfg.Lifecycle.StartTimeout(), 300*time.Second; got != want {
		t.Errorf("StartTimeout() = %v, want %v", got, want)
	}
	if got, want := cfg.Lifecycle.IdleTimeout(), 15*time.Minute; got != want {
		t.Errorf("IdleTimeout() = %v, want %v", got, want)
	}
}

func TestLoadConfig_MissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("FLEETGATE_HOME", t.TempDir())

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.API.Port != DefaultConfig().API.Port {
		t.Errorf("expected default port when no config file exists, got %d", cfg.API.Port)
	}
}

func TestSaveConfigThenLoadConfig_RoundTrips(t *testing.T) {
	home := t.TempDir()
	t.Setenv("FLEETGATE_HOME", home)

	cfg := DefaultConfig()
	cfg.API.Port = 9999
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	if _, err := os.Stat(filepath.Join(home, "config.toml")); err != nil {
		t.Fatalf("expected config.toml to exist: %v", err)
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.API.Port != 9999 {
		t.Errorf("API.Port = %d, want 9999 after round trip", loaded.API.Port)
	}
}
