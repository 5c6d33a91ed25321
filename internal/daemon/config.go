// Package daemon wires FleetGate's components together and runs the HTTP
// server: program configuration, startup, and graceful shutdown.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all FleetGate program configuration. This is distinct from
// the model catalogue (internal/infra/catalog), which describes the fleet
// itself and is loaded separately, once at startup.
type Config struct {
	API       APIConfig       `toml:"api"`
	Models    ModelsConfig    `toml:"models"`
	Lifecycle LifecycleConfig `toml:"lifecycle"`
	Logs      LogsConfig      `toml:"logs"`
	Logging   LoggingConfig   `toml:"logging"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// APIConfig controls the HTTP server.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// ModelsConfig locates the model catalogue and the accounting database.
type ModelsConfig struct {
	CataloguePath string `toml:"catalogue_path"`
	DataDir       string `toml:"data_dir"` // holds monitoring.db
}

// LifecycleConfig controls the Model Lifecycle Controller's timing.
type LifecycleConfig struct {
	StartTimeoutSec  int `toml:"start_timeout_sec"`  // health-probe window for a routing-path start
	StopGraceSec     int `toml:"stop_grace_sec"`     // SIGTERM-to-SIGKILL grace period
	IdleTimeoutSec   int `toml:"idle_timeout_sec"`   // Routing-with-no-traffic duration before GC
	SweepIntervalSec int `toml:"sweep_interval_sec"` // how often the idle sweep runs
}

// LogsConfig controls the Log Fan-Out's per-model buffer.
type LogsConfig struct {
	BufferCapacity  int `toml:"buffer_capacity"`  // retained lines per model
	SubscriberQueue int `toml:"subscriber_queue"` // bounded per-subscriber outbound queue depth
}

// LoggingConfig controls the daemon's own structured logging.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// TelemetryConfig controls the optional Prometheus /metrics endpoint.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	home := fleetgateHome()
	return Config{
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 11535,
		},
		Models: ModelsConfig{
			CataloguePath: filepath.Join(home, "models.yaml"),
			DataDir:       home,
		},
		Lifecycle: LifecycleConfig{
			StartTimeoutSec:  300, // 5 minutes, the routing-path health-probe window
			StopGraceSec:     10,
			IdleTimeoutSec:   900, // 15 minutes
			SweepIntervalSec: 30,
		},
		Logs: LogsConfig{
			BufferCapacity:  2000,
			SubscriberQueue: 256,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			Prometheus: false, // opt-in: expose /metrics
		},
	}
}

// StartTimeout, StopGrace, IdleTimeout, and SweepInterval convert the
// config's plain-integer-second fields to time.Duration for the
// Model Lifecycle Controller.
func (c LifecycleConfig) StartTimeout() time.Duration  { return time.Duration(c.StartTimeoutSec) * time.Second }
func (c LifecycleConfig) StopGrace() time.Duration     { return time.Duration(c.StopGraceSec) * time.Second }
func (c LifecycleConfig) IdleTimeout() time.Duration   { return time.Duration(c.IdleTimeoutSec) * time.Second }
func (c LifecycleConfig) SweepInterval() time.Duration { return time.Duration(c.SweepIntervalSec) * time.Second }

// LoadConfig reads config from $FLEETGATE_HOME/config.toml, falling back to
// defaults for a missing file and overlaying whatever the file does set.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(fleetgateHome(), "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the config to $FLEETGATE_HOME/config.toml.
func SaveConfig(cfg Config) error {
	home := fleetgateHome()
	if err := os.MkdirAll(home, 0700); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(home, "config.toml"))
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// fleetgateHome returns FleetGate's data directory: $FLEETGATE_HOME, or
// ~/.fleetgate when unset.
func fleetgateHome() string {
	if env := os.Getenv("FLEETGATE_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".fleetgate")
}

// FleetgateHome is exported for use by other packages (e.g. the CLI).
func FleetgateHome() string {
	return fleetgateHome()
}
