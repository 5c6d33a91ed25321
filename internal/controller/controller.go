// Package controller implements the Model Lifecycle Controller: the state
// machine that takes a model from Stopped to Routing on demand, selects a
// launch variant by device availability, admits it against device memory
// (evicting idle models rather than preempting in-flight ones), and sweeps
// idle models back down.
package controller

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/tutu-network/tutu/internal/domain"
	"github.com/tutu-network/tutu/internal/infra/device"
	"github.com/tutu-network/tutu/internal/infra/iface"
	"github.com/tutu-network/tutu/internal/infra/logfanout"
	"github.com/tutu-network/tutu/internal/infra/metrics"
	"github.com/tutu-network/tutu/internal/infra/process"
)

// DeviceChecker is the slice of the Device Adapter Registry the controller
// needs: online/offline and a capacity snapshot. Satisfied by
// *infra/device.Registry.
type DeviceChecker interface {
	Online(name string) bool
	Snapshot(name string) (domain.DeviceSnapshot, error)
}

// InterfaceResolver is the slice of the Interface Adapter Registry the
// controller needs. Satisfied by *infra/iface.Registry.
type InterfaceResolver interface {
	For(mode domain.Mode) (domain.InterfaceAdapter, bool)
}

var (
	_ DeviceChecker     = (*device.Registry)(nil)
	_ InterfaceResolver = (*iface.Registry)(nil)
)

// Config holds the controller's tunables, set from daemon configuration.
type Config struct {
	StartTimeout time.Duration // how long a model gets to become healthy
	StopGrace    time.Duration // SIGTERM-to-SIGKILL grace period
	IdleTimeout  time.Duration // Routing-with-no-traffic duration before GC
}

func DefaultConfig() Config {
	return Config{
		StartTimeout: 5 * time.Minute,
		StopGrace:    10 * time.Second,
		IdleTimeout:  15 * time.Minute,
	}
}

// Controller owns every model's ModelRuntime and is the sole writer of
// runtime state transitions.
type Controller struct {
	catalog    domain.ConfigStore
	devices    DeviceChecker
	interfaces InterfaceResolver
	runner     *process.Runner
	logs       *logfanout.Registry
	accounting domain.AccountingStore
	cfg        Config

	// startMu serialises the whole selection+admission+spawn+health sequence
	// across every model: at most one model may be Starting at a time,
	// fleet-wide, not merely one per model.
	startMu sync.Mutex

	mu       sync.Mutex
	runtimes map[string]*domain.ModelRuntime
	waiters  map[string]chan struct{}    // non-nil while a start is in flight
	interval map[string]int64           // model name -> open runtime interval id
	reserved map[string]map[string]int64 // model name -> device -> MB reserved while Starting/Routing
}

func New(catalog domain.ConfigStore, devices DeviceChecker, interfaces InterfaceResolver, runner *process.Runner, logs *logfanout.Registry, accounting domain.AccountingStore, cfg Config) *Controller {
	return &Controller{
		catalog:    catalog,
		devices:    devices,
		interfaces: interfaces,
		runner:     runner,
		logs:       logs,
		accounting: accounting,
		cfg:        cfg,
		runtimes:   make(map[string]*domain.ModelRuntime),
		waiters:    make(map[string]chan struct{}),
		interval:   make(map[string]int64),
		reserved:   make(map[string]map[string]int64),
	}
}

func (c *Controller) runtimeFor(name string) *domain.ModelRuntime {
	c.mu.Lock()
	defer c.mu.Unlock()
	rt, ok := c.runtimes[name]
	if !ok {
		rt = domain.NewModelRuntime(name)
		c.runtimes[name] = rt
	}
	return rt
}

// Resolve maps a request path name (a catalogue name or alias) to its
// ModelDefinition.
func (c *Controller) Resolve(name string) (*domain.ModelDefinition, error) {
	if def, ok := c.catalog.ByAlias(name); ok {
		return def, nil
	}
	return nil, domain.NotFound("model %q is not in the catalogue", name)
}

// Ensure brings a model to Routing, starting it if necessary, and returns
// its runtime. Concurrent callers for the same cold model coalesce onto a
// single start attempt rather than racing to spawn duplicate processes. The
// start attempt is bounded by the configured StartTimeout.
func (c *Controller) Ensure(ctx context.Context, name string) (*domain.ModelRuntime, error) {
	return c.ensure(ctx, name, c.cfg.StartTimeout)
}

// EnsureNoTimeout behaves like Ensure but does not bound the start attempt
// by StartTimeout: it runs until it succeeds, fails, or ctx is cancelled.
// Used by the administrative start endpoint, whose HTTP surface has no
// fixed deadline of its own.
func (c *Controller) EnsureNoTimeout(ctx context.Context, name string) (*domain.ModelRuntime, error) {
	return c.ensure(ctx, name, 0)
}

func (c *Controller) ensure(ctx context.Context, name string, timeout time.Duration) (*domain.ModelRuntime, error) {
	def, err := c.Resolve(name)
	if err != nil {
		return nil, err
	}
	rt := c.runtimeFor(def.Name)

	for {
		c.mu.Lock()
		state, _, _, _, _ := rt.Snapshot()

		switch state {
		case domain.Routing:
			c.mu.Unlock()
			return rt, nil

		case domain.Starting:
			wait, ok := c.waiters[def.Name]
			c.mu.Unlock()
			if !ok {
				// Lost the race reading state vs waiters; loop and reread.
				continue
			}
			select {
			case <-wait:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue

		default: // Stopped or Failed: this caller becomes the starter
			if wait, ok := c.waiters[def.Name]; ok {
				// Another caller has claimed the start but not yet moved the
				// runtime to Starting; await its outcome instead of starting again.
				c.mu.Unlock()
				select {
				case <-wait:
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				continue
			}
			wait := make(chan struct{})
			c.waiters[def.Name] = wait
			c.mu.Unlock()

			startErr := c.start(ctx, def, rt, timeout)

			c.mu.Lock()
			delete(c.waiters, def.Name)
			c.mu.Unlock()
			close(wait)

			if startErr != nil {
				return nil, startErr
			}
			continue
		}
	}
}

// start selects a variant, admits it against device memory, spawns the
// process, and polls it healthy. It holds startMu for its whole duration, so
// at most one model fleet-wide is ever mid-start; the per-model wait-channel
// in ensure is what coalesces concurrent callers for the *same* model onto
// this one attempt. timeout bounds the health poll; a zero timeout means no
// deadline (cancellable only via ctx).
//
// Every runtime transition past TransitionToStarting is epoch-guarded: if a
// concurrent Stop forces the runtime to Stopped (cancelling startCtx), the
// guarded transitions below simply no-op instead of clobbering newer state,
// and any reservation or process cleanup they would have done has already
// been done by stopInternal.
func (c *Controller) start(ctx context.Context, def *domain.ModelDefinition, rt *domain.ModelRuntime, timeout time.Duration) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	variant, err := c.selectVariant(def)
	if err != nil {
		rt.TransitionToFailed(rt.Epoch(), err.Error())
		return err
	}

	if err := c.admit(def.Name, variant); err != nil {
		rt.TransitionToFailed(rt.Epoch(), err.Error())
		return err
	}

	sink := c.logs.Sink(def.Name)
	args := []string{fmt.Sprintf("%d", def.Port)}
	handle, err := c.runner.Spawn(variant.LaunchScriptPath, args, sink)
	if err != nil {
		c.releaseReservation(def.Name)
		werr := domain.BackendUnavailable("spawn %q: %v", def.Name, err)
		rt.TransitionToFailed(rt.Epoch(), werr.Error())
		return werr
	}

	startCtx, cancel := context.WithCancel(ctx)
	startedAt := time.Now()
	var deadline time.Time
	if timeout > 0 {
		deadline = startedAt.Add(timeout)
	}
	epoch := rt.TransitionToStarting(variant, handle, deadline, cancel)
	metrics.ModelState.WithLabelValues(def.Name).Set(metrics.ModelStateValue(domain.Starting.String()))

	adapter, ok := c.interfaces.For(def.Mode)
	if !ok {
		werr := domain.ModeMismatch("no interface adapter registered for mode %q", def.Mode)
		c.runner.Stop(handle, c.cfg.StopGrace)
		cancel()
		if rt.TransitionToFailed(epoch, werr.Error()) {
			c.releaseReservation(def.Name)
			metrics.ModelState.WithLabelValues(def.Name).Set(metrics.ModelStateValue(domain.Failed.String()))
			metrics.HealthCheckStatus.WithLabelValues(def.Name).Set(0)
		}
		return werr
	}

	if err := adapter.Health(startCtx, def.Port, startedAt, deadline); err != nil {
		c.runner.Stop(handle, c.cfg.StopGrace)
		cancel()
		werr := domain.StartTimeout("model %q: %v", def.Name, err)
		if rt.TransitionToFailed(epoch, werr.Error()) {
			c.releaseReservation(def.Name)
			metrics.ModelState.WithLabelValues(def.Name).Set(metrics.ModelStateValue(domain.Failed.String()))
			metrics.HealthCheckStatus.WithLabelValues(def.Name).Set(0)
		}
		return werr
	}

	if !rt.TransitionToRouting(epoch) {
		// Superseded mid-health-poll: the process we just confirmed healthy
		// belongs to an attempt the runtime has already moved past (forced
		// Stop, most likely). Tear it down; stopInternal already released
		// its reservation and closed any interval.
		c.runner.Stop(handle, c.cfg.StopGrace)
		cancel()
		return domain.StartTimeout("model %q: start superseded before reaching routing", def.Name)
	}
	metrics.ModelStartLatency.WithLabelValues(def.Name).Observe(time.Since(startedAt).Seconds())
	metrics.HealthCheckStatus.WithLabelValues(def.Name).Set(1)
	metrics.ModelState.WithLabelValues(def.Name).Set(metrics.ModelStateValue(domain.Routing.String()))

	id, err := c.accounting.OpenInterval(def.Name, float64(startedAt.Unix()))
	if err != nil {
		log.Printf("controller: open runtime interval for %q: %v", def.Name, err)
	} else {
		c.mu.Lock()
		c.interval[def.Name] = id
		c.mu.Unlock()
	}
	return nil
}

// selectVariant returns the first launch variant whose required devices
// are all online, in catalogue order.
func (c *Controller) selectVariant(def *domain.ModelDefinition) (*domain.LaunchVariant, error) {
	for i := range def.Variants {
		v := &def.Variants[i]
		usable := true
		for _, dev := range v.RequiredDevices {
			if !c.devices.Online(dev) {
				usable = false
				break
			}
		}
		if usable {
			return v, nil
		}
	}
	return nil, domain.NoUsableDevice("model %q: no launch variant has all required devices online", def.Name)
}

// admit makes sure variant's memory requirements fit within free device
// capacity, evicting idle Routing models on the same devices if needed, then
// reserves that memory against the ledger on success. In-flight models are
// never touched — eviction only ever reclaims idle capacity, never preempts
// active traffic.
func (c *Controller) admit(modelName string, variant *domain.LaunchVariant) error {
	for dev, needMB := range variant.MemoryMB {
		if needMB <= 0 {
			continue
		}
		if err := c.ensureFreeMemory(modelName, dev, needMB); err != nil {
			return err
		}
	}
	c.reserve(modelName, variant)
	return nil
}

// ensureFreeMemory checks a device's live free-memory snapshot minus
// whatever is already reserved by other Starting/Routing models on it — a
// just-spawned backend ramps up asynchronously and may not show up in the
// OS-level snapshot yet, so the live number alone understates what's
// actually spoken for.
func (c *Controller) ensureFreeMemory(forModel, dev string, needMB int64) error {
	snap, err := c.devices.Snapshot(dev)
	if err != nil {
		return domain.NoUsableDevice("device %q: %v", dev, err)
	}
	available := snap.FreeMB - c.reservedMB(dev)
	if available >= needMB {
		return nil
	}

	// Reclaim virtually first: stop nothing unless evicting every idle
	// candidate would release enough reserved memory to admit this model.
	victims := c.idleCandidatesOn(forModel, dev)
	var reclaimable int64
	c.mu.Lock()
	for _, victim := range victims {
		reclaimable += c.reserved[victim][dev]
	}
	c.mu.Unlock()
	if available+reclaimable < needMB {
		return domain.InsufficientMemory("device %q: need %d MB, have %d MB free even after evicting idle models", dev, needMB, available+reclaimable)
	}

	for _, victim := range victims {
		c.stopInternal(victim)
		snap, err = c.devices.Snapshot(dev)
		if err != nil {
			return domain.NoUsableDevice("device %q: %v", dev, err)
		}
		available = snap.FreeMB - c.reservedMB(dev)
		if available >= needMB {
			return nil
		}
	}

	return domain.InsufficientMemory("device %q: need %d MB, have %d MB free after evicting idle models", dev, needMB, available)
}

// reserve records variant's per-device memory as spoken-for by modelName,
// until releaseReservation is called for it (on stop, failure, or
// supersession).
func (c *Controller) reserve(modelName string, variant *domain.LaunchVariant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byDevice := make(map[string]int64, len(variant.MemoryMB))
	for dev, mb := range variant.MemoryMB {
		if mb > 0 {
			byDevice[dev] = mb
		}
	}
	c.reserved[modelName] = byDevice
}

func (c *Controller) releaseReservation(modelName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.reserved, modelName)
}

// reservedMB sums the memory every currently Starting/Routing model has
// reserved on dev, excluding none — a model's own reservation only exists
// once admit has already granted it, so a caller checking admission for a
// not-yet-reserved model never double-counts itself.
func (c *Controller) reservedMB(dev string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for _, byDevice := range c.reserved {
		total += byDevice[dev]
	}
	return total
}

// idleCandidatesOn returns the names of Routing-but-idle models (no
// in-flight requests) whose current variant uses dev, excluding the model
// being admitted, ordered by last activity, oldest first.
func (c *Controller) idleCandidatesOn(excludeModel, dev string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	type candidate struct {
		name string
		last time.Time
	}
	var cands []candidate
	for name, rt := range c.runtimes {
		if name == excludeModel {
			continue
		}
		state, variant, _, inFlight, lastActive := rt.Snapshot()
		if state != domain.Routing || inFlight != 0 || variant == nil {
			continue
		}
		for _, d := range variant.RequiredDevices {
			if d == dev {
				cands = append(cands, candidate{name, lastActive})
				break
			}
		}
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].last.Before(cands[j].last) })
	out := make([]string, len(cands))
	for i, cd := range cands {
		out[i] = cd.name
	}
	return out
}

// Stop terminates a model on administrative request, whether it is
// Routing, Starting (cutting the start attempt short), or Failed; a
// Stopped model is left as it is.
func (c *Controller) Stop(name string) error {
	def, err := c.Resolve(name)
	if err != nil {
		return err
	}
	rt := c.runtimeFor(def.Name)
	state, _, _, _, _ := rt.Snapshot()
	if state == domain.Stopped {
		return nil
	}
	c.stopInternal(def.Name)
	return nil
}

func (c *Controller) stopInternal(name string) {
	rt := c.runtimeFor(name)

	if handle := rt.CurrentHandle(); handle != nil {
		if h, ok := handle.(*process.Handle); ok {
			c.runner.Stop(h, c.cfg.StopGrace)
		}
	}

	c.mu.Lock()
	id, hasInterval := c.interval[name]
	delete(c.interval, name)
	c.mu.Unlock()

	if hasInterval {
		if err := c.accounting.CloseInterval(id, float64(time.Now().Unix())); err != nil {
			log.Printf("controller: close runtime interval for %q: %v", name, err)
		}
	}

	c.releaseReservation(name)
	rt.TransitionToStopped()
	metrics.ModelState.WithLabelValues(name).Set(metrics.ModelStateValue(domain.Stopped.String()))
}

// TouchRunning periodically advances the open runtime interval for every
// currently Routing model, so a crash doesn't lose billed uptime back to
// the last clean stop.
func (c *Controller) TouchRunning() {
	now := float64(time.Now().Unix())
	c.mu.Lock()
	ids := make(map[string]int64, len(c.interval))
	for name, id := range c.interval {
		ids[name] = id
	}
	c.mu.Unlock()

	for name, id := range ids {
		if err := c.accounting.TouchInterval(id, now); err != nil {
			log.Printf("controller: touch runtime interval for %q: %v", name, err)
		}
	}
}

// SweepIdle stops every Routing model that has had no in-flight requests
// for longer than the configured idle timeout.
func (c *Controller) SweepIdle() {
	now := time.Now()

	c.mu.Lock()
	var idle []string
	for name, rt := range c.runtimes {
		if rt.Idle(now, c.cfg.IdleTimeout) {
			idle = append(idle, name)
		}
	}
	c.mu.Unlock()

	for _, name := range idle {
		log.Printf("controller: sweeping idle model %q after %s", name, c.cfg.IdleTimeout)
		c.stopInternal(name)
	}
}

// Run drives the background housekeeping loop (idle sweep + interval
// heartbeat) until ctx is cancelled.
func (c *Controller) Run(ctx context.Context, sweepInterval time.Duration) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.SweepIdle()
			c.TouchRunning()
		}
	}
}

// Shutdown stops every running model, used on daemon shutdown.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	names := make([]string, 0, len(c.runtimes))
	for name, rt := range c.runtimes {
		if state, _, _, _, _ := rt.Snapshot(); state == domain.Routing || state == domain.Starting {
			names = append(names, name)
		}
	}
	c.mu.Unlock()

	for _, name := range names {
		c.stopInternal(name)
	}
}

// StopAll stops every Routing or Starting model on administrative request.
// Distinct from Shutdown only in intent — callers keep using the
// controller afterward, rather than tearing it down.
func (c *Controller) StopAll() {
	c.Shutdown()
}

// RestartAutostart stops every model named in autostartNames that is
// currently running, then starts each one again in turn. A per-model start
// failure is reported in the returned map but does not abort the rest.
func (c *Controller) RestartAutostart(ctx context.Context, autostartNames []string) map[string]error {
	for _, name := range autostartNames {
		c.Stop(name)
	}

	errs := make(map[string]error)
	for _, name := range autostartNames {
		if _, err := c.Ensure(ctx, name); err != nil {
			errs[name] = err
		}
	}
	return errs
}

// Snapshot returns every model's runtime state for the admin status
// endpoints.
type Status struct {
	Name       string
	State      string
	Variant    string
	Reason     string
	InFlight   int64
	LastActive time.Time
}

func (c *Controller) Snapshot() []Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Status, 0, len(c.runtimes))
	for name, rt := range c.runtimes {
		state, variant, reason, inFlight, lastActive := rt.Snapshot()
		variantName := ""
		if variant != nil {
			variantName = variant.Name
		}
		out = append(out, Status{
			Name: name, State: state.String(), Variant: variantName,
			Reason: reason, InFlight: inFlight, LastActive: lastActive,
		})
	}
	return out
}
