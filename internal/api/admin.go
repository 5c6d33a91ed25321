package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tutu-network/tutu/internal/domain"
)

// mountAdmin wires the fleet administration surface: model control, device
// info, log retrieval, usage analytics, billing configuration, and data
// maintenance.
func (s *Server) mountAdmin(r chi.Router) {
	r.Route("/api/models", func(r chi.Router) {
		r.Get("/{alias}/info", s.handleModelInfo)
		r.Post("/{alias}/start", s.handleModelStart)
		r.Post("/{alias}/stop", s.handleModelStop)
		r.Post("/restart-autostart", s.handleRestartAutostart)
		r.Post("/stop-all", s.handleStopAll)
		r.Get("/{alias}/logs/stream", s.handleLogStream)
	})

	r.Get("/api/logs/stats", s.handleLogStats)
	r.Post("/api/logs/{alias}/clear", s.handleLogClear)

	r.Get("/api/devices/info", s.handleDevicesInfo)

	r.Get("/api/metrics/throughput/{t0}/{t1}/{n}", s.handleThroughputWindow)
	r.Get("/api/metrics/throughput/current-session", s.handleThroughputCurrentSession)

	r.Get("/api/analytics/usage-summary/{t0}/{t1}", s.handleUsageSummary)
	r.Get("/api/analytics/token-trends/{t0}/{t1}/{n}", s.handleTokenTrends)
	r.Get("/api/analytics/cost-trends/{t0}/{t1}/{n}", s.handleCostTrendsWindow)
	r.Get("/api/analytics/model-stats/{alias}/{t0}/{t1}/{n}", s.handleModelStats)

	r.Route("/api/billing/models/{name}", func(r chi.Router) {
		r.Get("/pricing", s.handlePricingGet)
		r.Post("/pricing/tier", s.handleUpsertTier)
		r.Delete("/pricing/tier/{idx}", s.handleDeleteTier)
		r.Post("/pricing/hourly", s.handleSetHourly)
		r.Post("/pricing/set/{mode}", s.handleSetBillingMode)
	})

	r.Get("/api/data/models/orphaned", s.handleOrphansList)
	r.Get("/api/data/storage/stats", s.handleStorageStats)
	r.Delete("/api/data/models/{name}", s.handleOrphanDrop)
}

// ─── Models ─────────────────────────────────────────────────────────────────

func (s *Server) statusByName() map[string]controllerStatusView {
	out := make(map[string]controllerStatusView)
	for _, st := range s.controller.Snapshot() {
		out[st.Name] = controllerStatusView{State: st.State, Variant: st.Variant, Reason: st.Reason, InFlight: st.InFlight}
	}
	return out
}

type controllerStatusView struct {
	State    string
	Variant  string
	Reason   string
	InFlight int64
}

func (s *Server) modelInfoView(def *domain.ModelDefinition, byName map[string]controllerStatusView) map[string]any {
	entry := map[string]any{
		"name":       def.Name,
		"aliases":    def.Aliases,
		"mode":       string(def.Mode),
		"auto_start": def.AutoStart,
		"state":      domain.Stopped.String(),
	}
	if st, ok := byName[def.Name]; ok {
		entry["state"] = st.State
		entry["variant"] = st.Variant
		entry["reason"] = st.Reason
		entry["in_flight"] = st.InFlight
	}
	return entry
}

// handleModelInfo serves GET /api/models/{alias}/info. The special alias
// "all-models" returns every catalogued model keyed by name instead of one.
func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	byName := s.statusByName()

	if alias == "all-models" {
		out := make(map[string]any, len(s.catalog.All()))
		for _, def := range s.catalog.All() {
			out[def.Name] = s.modelInfoView(def, byName)
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	def, ok := s.catalog.ByAlias(alias)
	if !ok {
		writeDomainError(w, domain.NotFound("model %q is not in the catalogue", alias))
		return
	}
	writeJSON(w, http.StatusOK, s.modelInfoView(def, byName))
}

// handleModelStart has no fixed deadline of its own — unlike the routing
// path, which bounds a cold start by StartTimeout, an admin-requested start
// runs until it succeeds, fails, or the caller disconnects.
func (s *Server) handleModelStart(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "alias")
	rt, err := s.controller.EnsureNoTimeout(r.Context(), name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	state, _, _, _, _ := rt.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "state": state.String()})
}

func (s *Server) handleModelStop(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "alias")
	if err := s.controller.Stop(name); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "state": domain.Stopped.String()})
}

func (s *Server) handleRestartAutostart(w http.ResponseWriter, r *http.Request) {
	var names []string
	for _, def := range s.catalog.All() {
		if def.AutoStart {
			names = append(names, def.Name)
		}
	}
	errs := s.controller.RestartAutostart(r.Context(), names)
	failures := make(map[string]string, len(errs))
	for name, err := range errs {
		failures[name] = err.Error()
		log.Printf("api: restart-autostart %q: %v", name, err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"restarted": names, "failed": failures})
}

func (s *Server) handleStopAll(w http.ResponseWriter, r *http.Request) {
	s.controller.StopAll()
	w.WriteHeader(http.StatusNoContent)
}

// ─── Devices ────────────────────────────────────────────────────────────────

func (s *Server) handleDevicesInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.devices.Info())
}

// ─── Logs ───────────────────────────────────────────────────────────────────

func (s *Server) handleLogStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.logs.Stats())
}

func (s *Server) handleLogClear(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	keep := time.Duration(0)
	if m, err := strconv.Atoi(r.URL.Query().Get("keep_minutes")); err == nil && m > 0 {
		keep = time.Duration(m) * time.Minute
	}
	s.logs.Clear(alias, keep)
	w.WriteHeader(http.StatusNoContent)
}

// ─── Metrics & analytics ────────────────────────────────────────────────────

func pathFloat(r *http.Request, key string) float64 {
	v, _ := strconv.ParseFloat(chi.URLParam(r, key), 64)
	return v
}

func pathInt(r *http.Request, key string) int {
	v, _ := strconv.Atoi(chi.URLParam(r, key))
	return v
}

func (s *Server) handleThroughputWindow(w http.ResponseWriter, r *http.Request) {
	model := r.URL.Query().Get("model")
	t0, t1, n := pathFloat(r, "t0"), pathFloat(r, "t1"), pathInt(r, "n")
	series, err := s.throughput(model, t0, t1, n)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (s *Server) handleThroughputCurrentSession(w http.ResponseWriter, r *http.Request) {
	model := r.URL.Query().Get("model")
	t0 := float64(s.startedAt.Unix())
	t1 := float64(time.Now().Unix())
	summary, err := s.usageSummary(model, t0, t1)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleUsageSummary(w http.ResponseWriter, r *http.Request) {
	model := r.URL.Query().Get("model")
	t0, t1 := pathFloat(r, "t0"), pathFloat(r, "t1")
	summary, err := s.usageSummary(model, t0, t1)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleTokenTrends(w http.ResponseWriter, r *http.Request) {
	model := r.URL.Query().Get("model")
	t0, t1, n := pathFloat(r, "t0"), pathFloat(r, "t1"), pathInt(r, "n")
	series, err := s.throughput(model, t0, t1, n)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (s *Server) handleCostTrendsWindow(w http.ResponseWriter, r *http.Request) {
	model := r.URL.Query().Get("model")
	t0, t1, n := pathFloat(r, "t0"), pathFloat(r, "t1"), pathInt(r, "n")
	series, err := s.costTrends(model, t0, t1, n)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (s *Server) handleModelStats(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	def, ok := s.catalog.ByAlias(alias)
	if !ok {
		writeDomainError(w, domain.NotFound("model %q is not in the catalogue", alias))
		return
	}
	t0, t1, n := pathFloat(r, "t0"), pathFloat(r, "t1"), pathInt(r, "n")
	stats, err := s.modelStats(def.Name, t0, t1, n)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ─── Billing ────────────────────────────────────────────────────────────────

func (s *Server) handlePricingGet(w http.ResponseWriter, r *http.Request) {
	model := chi.URLParam(r, "name")
	cfg, err := s.accounting.Pricing(model)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleSetHourly(w http.ResponseWriter, r *http.Request) {
	model := chi.URLParam(r, "name")
	var body struct {
		Rate float64 `json:"rate"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.accounting.SetHourly(model, body.Rate); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetBillingMode serves POST /api/billing/models/{name}/pricing/set/{mode}
// where mode is "tier" or "hourly".
func (s *Server) handleSetBillingMode(w http.ResponseWriter, r *http.Request) {
	model := chi.URLParam(r, "name")
	mode := chi.URLParam(r, "mode")
	var tiered bool
	switch mode {
	case "tier":
		tiered = true
	case "hourly":
		tiered = false
	default:
		writeError(w, http.StatusBadRequest, `billing mode must be "tier" or "hourly"`)
		return
	}
	if err := s.accounting.SetBillingMode(model, tiered); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpsertTier(w http.ResponseWriter, r *http.Request) {
	model := chi.URLParam(r, "name")
	var tier domain.Tier
	if err := decodeJSON(r, &tier); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.accounting.UpsertTier(model, tier); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteTier(w http.ResponseWriter, r *http.Request) {
	model := chi.URLParam(r, "name")
	index, err := strconv.Atoi(chi.URLParam(r, "idx"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tier index")
		return
	}
	if err := s.accounting.DeleteTier(model, index); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Data maintenance ───────────────────────────────────────────────────────

func (s *Server) handleStorageStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.storageStats()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleOrphansList(w http.ResponseWriter, r *http.Request) {
	orphans, err := s.accounting.ListOrphans(s.modelKnown)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orphans)
}

func (s *Server) handleOrphanDrop(w http.ResponseWriter, r *http.Request) {
	model := chi.URLParam(r, "name")
	if s.modelKnown(model) {
		writeDomainError(w, domain.OrphanProtected("model %q is still in the catalogue", model))
		return
	}
	if err := s.accounting.DropModel(model); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) modelKnown(name string) bool {
	_, ok := s.catalog.ByName(name)
	return ok
}
