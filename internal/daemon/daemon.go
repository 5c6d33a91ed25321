package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tutu-network/tutu/internal/api"
	"github.com/tutu-network/tutu/internal/controller"
	"github.com/tutu-network/tutu/internal/health"
	"github.com/tutu-network/tutu/internal/infra/catalog"
	"github.com/tutu-network/tutu/internal/infra/device"
	"github.com/tutu-network/tutu/internal/infra/iface"
	"github.com/tutu-network/tutu/internal/infra/logfanout"
	"github.com/tutu-network/tutu/internal/infra/process"
	"github.com/tutu-network/tutu/internal/infra/sqlite"
)

// Daemon is FleetGate's runtime: it owns every long-lived component and
// the HTTP server built on top of them.
type Daemon struct {
	Config     Config
	DB         *sqlite.DB
	Catalog    *catalog.Store
	Devices    *device.Registry
	Interfaces *iface.Registry
	Logs       *logfanout.Registry
	Runner     *process.Runner
	Controller *controller.Controller
	Server     *api.Server
	Health     *health.Checker

	cancel context.CancelFunc
}

// New loads config from disk and builds a Daemon with NewWithConfig.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig wires every component from an explicit Config: Device
// Adapter Registry and Interface Adapter Registry first (the Config Store
// validates the catalogue against them), then the catalogue, the Accounting
// Store, the Log Fan-Out, the Process Runner, the Model Lifecycle
// Controller, the HTTP server, and finally the self-health checker.
func NewWithConfig(cfg Config) (*Daemon, error) {
	devices := device.NewRegistry()
	interfaces := iface.NewRegistry()

	store, err := catalog.Load(cfg.Models.CataloguePath, devices.Known, interfaces.Known)
	if err != nil {
		return nil, fmt.Errorf("load catalogue: %w", err)
	}

	db, err := sqlite.Open(cfg.Models.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	logs := logfanout.NewRegistry()
	logs.SetCapacity(cfg.Logs.BufferCapacity)
	logs.SetQueueDepth(cfg.Logs.SubscriberQueue)

	runner := process.NewRunner()

	ctrlCfg := controller.Config{
		StartTimeout: cfg.Lifecycle.StartTimeout(),
		StopGrace:    cfg.Lifecycle.StopGrace(),
		IdleTimeout:  cfg.Lifecycle.IdleTimeout(),
	}
	ctrl := controller.New(store, devices, interfaces, runner, logs, db, ctrlCfg)

	srv := api.NewServer(ctrl, store, devices, interfaces, logs, db, version())
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}

	checker := health.NewChecker(db, cfg.Models.CataloguePath, devices)

	d := &Daemon{
		Config:     cfg,
		DB:         db,
		Catalog:    store,
		Devices:    devices,
		Interfaces: interfaces,
		Logs:       logs,
		Runner:     runner,
		Controller: ctrl,
		Server:     srv,
		Health:     checker,
	}

	for _, def := range store.All() {
		if def.AutoStart {
			if _, err := ctrl.Ensure(context.Background(), def.Name); err != nil {
				log.Printf("[daemon] autostart %q: %v", def.Name, err)
			}
		}
	}

	return d, nil
}

// Serve starts the HTTP server and the Controller's background sweep, and
// blocks until the context is cancelled or a termination signal arrives.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.Controller.Run(ctx, d.Config.Lifecycle.SweepInterval())
	go d.Health.Run(ctx)

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
	httpServer := &http.Server{
		Addr:        addr,
		Handler:     d.Server.Handler(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 2 * time.Minute,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		d.Controller.Shutdown()
		_ = httpServer.Shutdown(shutdownCtx)
		_ = d.DB.Close()
	}()

	log.Printf("[daemon] fleetgate serving on http://%s", addr)
	if d.Config.Telemetry.Prometheus {
		log.Printf("[daemon] metrics: http://%s/metrics", addr)
	}

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts down every daemon resource without waiting for a signal.
// Used by callers (tests, one-shot CLI commands) that manage their own
// lifecycle instead of calling Serve.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	d.Controller.Shutdown()
	_ = d.DB.Close()
}

func version() string {
	if v := os.Getenv("FLEETGATE_VERSION"); v != "" {
		return v
	}
	return "dev"
}
