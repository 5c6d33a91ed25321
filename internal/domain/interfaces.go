package domain

import (
	"context"
	"time"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// DeviceSnapshot is a point-in-time reading of one device's capacity.
type DeviceSnapshot struct {
	Kind        string // "cpu", "gpu", ...
	TotalMB     int64
	FreeMB      int64
	UsedMB      int64
	UtilPercent float64
	TemperatureC *float64 // nil when unavailable
}

// DeviceAdapter abstracts a single compute device the fleet can schedule
// onto. Implementations live in infra/device and are registered at
// program start, not discovered dynamically.
type DeviceAdapter interface {
	Name() string
	Online() bool
	Snapshot() (DeviceSnapshot, error)
}

// InterfaceAdapter abstracts one request-protocol mode (chat, base,
// embedding, reranker). Implementations live in infra/iface.
type InterfaceAdapter interface {
	Mode() Mode
	// Endpoints returns the set of path suffixes this mode accepts
	// (e.g. "v1/chat/completions").
	Endpoints() map[string]struct{}
	// Validate reports whether the given request path is compatible with
	// this mode.
	Validate(path string) bool
	// Health probes a freshly-started backend until it is ready to serve
	// or the deadline passes.
	Health(ctx context.Context, port int, startedAt time.Time, deadline time.Time) error
}

// ConfigStore exposes read-only lookup over the model catalogue loaded at
// startup.
type ConfigStore interface {
	ByName(name string) (*ModelDefinition, bool)
	ByAlias(alias string) (*ModelDefinition, bool)
	ByMode(mode Mode) []*ModelDefinition
	All() []*ModelDefinition
}

// AccountingStore is the durable persistence and query boundary for
// requests, runtime intervals, and pricing.
type AccountingStore interface {
	RecordRequest(rec RequestRecord) error
	OpenInterval(modelName string, startSec float64) (intervalID int64, err error)
	CloseInterval(intervalID int64, endSec float64) error
	TouchInterval(intervalID int64, endSec float64) error

	Pricing(modelName string) (*PricingConfig, error)
	SetHourly(modelName string, rate float64) error
	UpsertTier(modelName string, t Tier) error
	DeleteTier(modelName string, index int) error
	SetBillingMode(modelName string, tiered bool) error

	ListOrphans(known func(name string) bool) ([]string, error)
	DropModel(name string) error
}
