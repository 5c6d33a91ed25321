// Package health runs periodic self-health checks on FleetGate's own
// ambient components (accounting database, model catalogue, device
// registry) — distinct from the per-model health probes the Model
// Lifecycle Controller runs during a start.
package health

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/tutu-network/tutu/internal/infra/device"
	"github.com/tutu-network/tutu/internal/infra/metrics"
	"github.com/tutu-network/tutu/internal/infra/sqlite"
)

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs periodic health checks with optional auto-recovery, and
// mirrors each result onto the health_check_status Prometheus gauge under
// a "daemon:" prefix so it doesn't collide with per-model health labels.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
}

// NewChecker builds the standard daemon self-health checks: the accounting
// database is reachable, the model catalogue file still exists, and at
// least one device adapter is online.
func NewChecker(db *sqlite.DB, cataloguePath string, devices *device.Registry) *Checker {
	return &Checker{
		interval: 60 * time.Second,
		checks: []Check{
			{
				Name:    "sqlite",
				CheckFn: func(ctx context.Context) error { return db.Ping() },
			},
			{
				Name:    "catalogue_file",
				CheckFn: func(ctx context.Context) error { return checkFileExists(cataloguePath) },
			},
			{
				Name:    "devices",
				CheckFn: func(ctx context.Context) error { return checkAnyDeviceOnline(devices) },
			},
		},
	}
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	c.runAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runAll(ctx)
		}
	}
}

func (c *Checker) runAll(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{Name: check.Name, CheckedAt: time.Now()}
		if err := check.CheckFn(ctx); err != nil {
			s.Healthy = false
			s.Error = err.Error()
			if check.RecoverFn != nil {
				_ = check.RecoverFn(ctx)
			}
		} else {
			s.Healthy = true
		}
		statuses[i] = s

		value := 0.0
		if s.Healthy {
			value = 1
		}
		metrics.HealthCheckStatus.WithLabelValues("daemon:" + s.Name).Set(value)
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass (vacuously true before the
// first run).
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// ─── Check implementations ──────────────────────────────────────────────────

func checkFileExists(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("catalogue file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("catalogue path %s is a directory, not a file", path)
	}
	return nil
}

func checkAnyDeviceOnline(devices *device.Registry) error {
	for name := range devices.Info() {
		if devices.Online(name) {
			return nil
		}
	}
	return fmt.Errorf("no device adapter is online")
}
