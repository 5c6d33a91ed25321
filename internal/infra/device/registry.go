// Package device implements the Device Adapter Registry: a compile-time set
// of adapters, each reporting whether a compute device is online and a
// cached point-in-time snapshot of its capacity.
package device

import (
	"sync"
	"time"

	"github.com/tutu-network/tutu/internal/domain"
	"github.com/tutu-network/tutu/internal/infra/metrics"
)

// DefaultSnapshotTTL is how long a cached snapshot is considered fresh
// before a new probe is taken.
const DefaultSnapshotTTL = time.Second

type cachedSnapshot struct {
	at   time.Time
	snap domain.DeviceSnapshot
	err  error
}

// Registry holds the fleet's device adapters, keyed by name, with a
// TTL-cached snapshot per device so that admission checks under load don't
// re-shell-out on every request.
type Registry struct {
	ttl time.Duration

	mu       sync.Mutex
	adapters map[string]domain.DeviceAdapter
	cache    map[string]cachedSnapshot
}

// NewRegistry builds a registry from the built-in adapter set. Additional
// adapters may be registered afterward with Register.
func NewRegistry() *Registry {
	r := &Registry{
		ttl:      DefaultSnapshotTTL,
		adapters: make(map[string]domain.DeviceAdapter),
		cache:    make(map[string]cachedSnapshot),
	}
	r.Register(newCPUAdapter())
	r.Register(newGPUAdapter())
	return r
}

// Register adds (or replaces) an adapter. A failing adapter never removes
// others; it just reports itself offline.
func (r *Registry) Register(a domain.DeviceAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// SetTTL overrides the snapshot cache TTL (used by tests and config).
func (r *Registry) SetTTL(ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ttl = ttl
}

// Known reports whether name corresponds to a registered adapter,
// independent of whether the device is currently online.
func (r *Registry) Known(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.adapters[name]
	return ok
}

// Online reports whether the named device is currently online. Unknown
// device names report false rather than erroring, since callers use this
// purely to filter launch variants.
func (r *Registry) Online(name string) bool {
	r.mu.Lock()
	a, ok := r.adapters[name]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return a.Online()
}

// Snapshot returns the (possibly cached) capacity reading for a device.
func (r *Registry) Snapshot(name string) (domain.DeviceSnapshot, error) {
	r.mu.Lock()
	a, ok := r.adapters[name]
	if !ok {
		r.mu.Unlock()
		return domain.DeviceSnapshot{}, domain.NotFound("device %q not registered", name)
	}
	if c, ok := r.cache[name]; ok && time.Since(c.at) < r.ttl {
		r.mu.Unlock()
		return c.snap, c.err
	}
	r.mu.Unlock()

	snap, err := a.Snapshot()

	r.mu.Lock()
	r.cache[name] = cachedSnapshot{at: time.Now(), snap: snap, err: err}
	r.mu.Unlock()
	return snap, err
}

// Info returns the snapshot of every registered device whose probe
// succeeds, keyed by device name — the payload for GET /api/devices/info.
// It carries no online flag, and a device whose snapshot fails is left out;
// online state is published only on the device_online metric.
func (r *Registry) Info() map[string]domain.DeviceSnapshot {
	r.mu.Lock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	r.mu.Unlock()

	out := make(map[string]domain.DeviceSnapshot, len(names))
	for _, name := range names {
		snap, err := r.Snapshot(name)
		if err == nil {
			out[name] = snap
			metrics.DeviceMemoryUsedBytes.WithLabelValues(name).Set(float64(snap.UsedMB) * 1024 * 1024)
		}
		online := 0.0
		if r.Online(name) {
			online = 1
		}
		metrics.DeviceOnline.WithLabelValues(name).Set(online)
	}
	return out
}
