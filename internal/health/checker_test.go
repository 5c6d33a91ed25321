package health

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/tutu-network/tutu/internal/infra/device"
	"github.com/tutu-network/tutu/internal/infra/sqlite"
)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func writeCatalogueFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "models.yaml")
	if err := os.WriteFile(path, []byte("models: []\n"), 0644); err != nil {
		t.Fatalf("write catalogue: %v", err)
	}
	return path
}

func TestNewChecker(t *testing.T) {
	c := NewChecker(newTestDB(t), writeCatalogueFile(t), device.NewRegistry())
	if len(c.checks) != 3 {
		t.Errorf("checks = %d, want 3", len(c.checks))
	}
}

func TestChecker_RunAllHealthy(t *testing.T) {
	c := NewChecker(newTestDB(t), writeCatalogueFile(t), device.NewRegistry())
	c.runAll(context.Background())

	statuses := c.Statuses()
	if len(statuses) != 3 {
		t.Fatalf("Statuses() = %d, want 3", len(statuses))
	}
	for _, s := range statuses {
		if !s.Healthy {
			t.Errorf("check %q should be healthy, got error: %s", s.Name, s.Error)
		}
	}
}

func TestChecker_IsHealthy_BeforeRun(t *testing.T) {
	c := NewChecker(newTestDB(t), writeCatalogueFile(t), device.NewRegistry())
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true before first run (no statuses)")
	}
}

func TestChecker_CatalogueFileCheck_MissingFails(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist.yaml")
	c := NewChecker(newTestDB(t), missing, device.NewRegistry())
	c.runAll(context.Background())

	for _, s := range c.Statuses() {
		if s.Name == "catalogue_file" && s.Healthy {
			t.Error("catalogue_file check should fail for a missing file")
		}
	}
}

func TestChecker_DevicesCheck_CPUAlwaysOnline(t *testing.T) {
	c := NewChecker(newTestDB(t), writeCatalogueFile(t), device.NewRegistry())
	c.runAll(context.Background())

	for _, s := range c.Statuses() {
		if s.Name == "devices" && !s.Healthy {
			t.Errorf("devices check should pass — the cpu adapter is always online, got: %s", s.Error)
		}
	}
}

func TestChecker_CustomCheck(t *testing.T) {
	c := &Checker{
		checks: []Check{
			{Name: "always_pass", CheckFn: func(ctx context.Context) error { return nil }},
		},
	}
	c.runAll(context.Background())

	statuses := c.Statuses()
	if len(statuses) != 1 || !statuses[0].Healthy {
		t.Fatalf("expected one healthy status, got %v", statuses)
	}
}

func TestChecker_FailingCheck(t *testing.T) {
	c := &Checker{
		checks: []Check{
			{Name: "always_fail", CheckFn: func(ctx context.Context) error { return os.ErrPermission }},
		},
	}
	c.runAll(context.Background())

	statuses := c.Statuses()
	if statuses[0].Healthy {
		t.Error("always_fail check should not be healthy")
	}
	if statuses[0].Error == "" {
		t.Error("error message should be populated")
	}
	if c.IsHealthy() {
		t.Error("IsHealthy() should be false when a check failed")
	}
}

func TestChecker_StatusesCopy(t *testing.T) {
	c := NewChecker(newTestDB(t), writeCatalogueFile(t), device.NewRegistry())
	c.runAll(context.Background())

	s1 := c.Statuses()
	s2 := c.Statuses()
	if len(s1) > 0 {
		s1[0].Healthy = false
		if !s2[0].Healthy {
			t.Error("Statuses() should return a copy, not a reference")
		}
	}
}
