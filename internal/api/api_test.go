package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/tutu-network/tutu/internal/controller"
	"github.com/tutu-network/tutu/internal/domain"
	"github.com/tutu-network/tutu/internal/infra/device"
	"github.com/tutu-network/tutu/internal/infra/iface"
	"github.com/tutu-network/tutu/internal/infra/logfanout"
	"github.com/tutu-network/tutu/internal/infra/process"
	"github.com/tutu-network/tutu/internal/infra/sqlite"
)

// ─── Fakes ──────────────────────────────────────────────────────────────────

type fakeCatalog struct {
	byName map[string]*domain.ModelDefinition
}

func (f *fakeCatalog) ByName(name string) (*domain.ModelDefinition, bool) {
	m, ok := f.byName[name]
	return m, ok
}
func (f *fakeCatalog) ByAlias(alias string) (*domain.ModelDefinition, bool) {
	for _, m := range f.byName {
		if m.Matches(alias) {
			return m, true
		}
	}
	return nil, false
}
func (f *fakeCatalog) ByMode(mode domain.Mode) []*domain.ModelDefinition {
	var out []*domain.ModelDefinition
	for _, m := range f.byName {
		if m.Mode == mode {
			out = append(out, m)
		}
	}
	return out
}
func (f *fakeCatalog) All() []*domain.ModelDefinition {
	out := make([]*domain.ModelDefinition, 0, len(f.byName))
	for _, m := range f.byName {
		out = append(out, m)
	}
	return out
}

// listenOnFreePort binds an OS-assigned port and hands the listener to an
// httptest server, so a catalogued model's fixed Port lines up with a real
// backend the reverse proxy can forward to.
func listenOnFreePort(t *testing.T, handler http.Handler) (*httptest.Server, int) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ts := httptest.NewUnstartedServer(handler)
	ts.Listener = lis
	ts.Start()
	_, portStr, _ := net.SplitHostPort(lis.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return ts, port
}

func writeSleepScript(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "run.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\nsleep 30\n"), 0755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

// newTestServer wires a full Server backed by a real controller, device and
// interface registries, and an on-disk sqlite store, pointed at a backend
// httptest.Server that stands in for a launched model process.
func newTestServer(t *testing.T, backend http.Handler) (*Server, *domain.ModelDefinition, func()) {
	t.Helper()

	ts, port := listenOnFreePort(t, backend)

	def := &domain.ModelDefinition{
		Name: "gpt-test", Aliases: []string{"gpt-test-alias"}, Mode: domain.ModeChat, Port: port,
		Variants: []domain.LaunchVariant{
			{Name: "default", RequiredDevices: []string{"cpu"}, MemoryMB: map[string]int64{"cpu": 1}, LaunchScriptPath: writeSleepScript(t)},
		},
	}
	catalog := &fakeCatalog{byName: map[string]*domain.ModelDefinition{def.Name: def}}

	devices := device.NewRegistry()
	interfaces := iface.NewRegistry()
	logs := logfanout.NewRegistry()
	runner := process.NewRunner()

	store, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	cfg := controller.DefaultConfig()
	cfg.StartTimeout = 5 * time.Second
	cfg.StopGrace = time.Second

	ctrl := controller.New(catalog, devices, interfaces, runner, logs, store, cfg)
	s := NewServer(ctrl, catalog, devices, interfaces, logs, store, "test")

	cleanup := func() {
		ctrl.Shutdown()
		store.Close()
		ts.Close()
	}
	return s, def, cleanup
}

// ─── Proxy ──────────────────────────────────────────────────────────────────

func TestHandleProxy_NonStreamingRecordsUsage(t *testing.T) {
	backend := http.NewServeMux()
	backend.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	backend.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id": "chatcmpl-1",
			"usage": map[string]any{
				"prompt_tokens":     12,
				"completion_tokens": 7,
			},
		})
	})

	s, def, cleanup := newTestServer(t, backend)
	defer cleanup()

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"model":"gpt-test-alias","messages":[{"role":"user","content":"hi"}]}`))
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out["id"] != "chatcmpl-1" {
		t.Errorf("unexpected proxied body: %v", out)
	}

	summary, err := s.store.UsageSummaryFor(def.Name, 0, float64(time.Now().Add(time.Minute).Unix()))
	if err != nil {
		t.Fatalf("UsageSummaryFor: %v", err)
	}
	if summary.TotalTokens != 19 {
		t.Errorf("TotalTokens = %d, want 19", summary.TotalTokens)
	}
}

func TestHandleProxy_NonStreamingRecordsCachePromptSplit(t *testing.T) {
	backend := http.NewServeMux()
	backend.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	backend.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id": "chatcmpl-2",
			"usage": map[string]any{
				"prompt_tokens":     12,
				"completion_tokens": 7,
				"cache_n":           5,
				"prompt_n":          7,
			},
		})
	})

	s, def, cleanup := newTestServer(t, backend)
	defer cleanup()

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"model":"gpt-test-alias","messages":[{"role":"user","content":"hi"}]}`))
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	future := float64(time.Now().Add(time.Minute).Unix())
	series, err := s.store.Throughput(def.Name, 0, future, 1)
	if err != nil {
		t.Fatalf("Throughput: %v", err)
	}
	if len(series.CacheHit) != 1 || series.CacheHit[0] != 5 {
		t.Errorf("CacheHit = %v, want [5] (cache_n)", series.CacheHit)
	}
	if len(series.CacheMiss) != 1 || series.CacheMiss[0] != 7 {
		t.Errorf("CacheMiss = %v, want [7] (prompt_n)", series.CacheMiss)
	}
}

func TestHandleProxy_ModeMismatch(t *testing.T) {
	backend := http.NewServeMux()
	backend.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	s, _, cleanup := newTestServer(t, backend)
	defer cleanup()

	req := httptest.NewRequest(http.MethodPost, "/v1/embeddings",
		strings.NewReader(`{"model":"gpt-test-alias","input":"hi"}`))
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for a mode mismatch", rec.Code)
	}
}

func TestHandleProxy_UnknownModel(t *testing.T) {
	backend := http.NewServeMux()
	s, _, cleanup := newTestServer(t, backend)
	defer cleanup()

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"model":"does-not-exist","messages":[]}`))
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for an unknown model", rec.Code)
	}
}

func TestHandleProxy_MissingModelField(t *testing.T) {
	backend := http.NewServeMux()
	s, _, cleanup := newTestServer(t, backend)
	defer cleanup()

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 when the model field is missing", rec.Code)
	}
}

// ─── Admin: models, devices ─────────────────────────────────────────────────

func TestHandleModelInfo_AllModelsReportsCatalogueAndState(t *testing.T) {
	backend := http.NewServeMux()
	backend.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	backend.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s, def, cleanup := newTestServer(t, backend)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/api/models/all-models/info", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var out map[string]map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	entry, ok := out[def.Name]
	if !ok {
		t.Fatalf("unexpected all-models response: %v", out)
	}
	if entry["state"] != domain.Stopped.String() {
		t.Errorf("state = %v, want stopped before any request", entry["state"])
	}
}

func TestHandleModelStart_ReachesRouting(t *testing.T) {
	backend := http.NewServeMux()
	backend.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	backend.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s, def, cleanup := newTestServer(t, backend)
	defer cleanup()

	req := httptest.NewRequest(http.MethodPost, "/api/models/"+def.Name+"/start", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var out map[string]any
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out["state"] != domain.Routing.String() {
		t.Errorf("state = %v, want routing", out["state"])
	}
}

func TestHandleStopAll_StopsRoutingModel(t *testing.T) {
	backend := http.NewServeMux()
	backend.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	backend.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s, def, cleanup := newTestServer(t, backend)
	defer cleanup()

	start := httptest.NewRequest(http.MethodPost, "/api/models/"+def.Name+"/start", nil)
	s.Handler().ServeHTTP(httptest.NewRecorder(), start)

	stopAll := httptest.NewRequest(http.MethodPost, "/api/models/stop-all", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, stopAll)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("stop-all: status = %d", rec.Code)
	}

	info := httptest.NewRequest(http.MethodGet, "/api/models/"+def.Name+"/info", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, info)
	var out map[string]any
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out["state"] != domain.Stopped.String() {
		t.Errorf("state = %v, want stopped after stop-all", out["state"])
	}
}

func TestHandleDevicesInfo(t *testing.T) {
	backend := http.NewServeMux()
	s, _, cleanup := newTestServer(t, backend)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/api/devices/info", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out map[string]domain.DeviceSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := out["cpu"]; !ok {
		t.Error("expected a cpu device in the response")
	}
}

// ─── Admin: billing ─────────────────────────────────────────────────────────

func TestBillingRoundTrip(t *testing.T) {
	backend := http.NewServeMux()
	s, def, cleanup := newTestServer(t, backend)
	defer cleanup()

	setHourly := httptest.NewRequest(http.MethodPost, "/api/billing/models/"+def.Name+"/pricing/hourly",
		strings.NewReader(`{"rate":1.5}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, setHourly)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("set hourly: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	getPricing := httptest.NewRequest(http.MethodGet, "/api/billing/models/"+def.Name+"/pricing", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, getPricing)
	if rec.Code != http.StatusOK {
		t.Fatalf("get pricing: status = %d", rec.Code)
	}
	var cfg domain.PricingConfig
	if err := json.Unmarshal(rec.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("decode pricing: %v", err)
	}
	if cfg.HourlyRate != 1.5 {
		t.Errorf("HourlyRate = %v, want 1.5", cfg.HourlyRate)
	}
}

func TestOrphanDrop_RefusesCataloguedModel(t *testing.T) {
	backend := http.NewServeMux()
	s, def, cleanup := newTestServer(t, backend)
	defer cleanup()

	req := httptest.NewRequest(http.MethodDelete, "/api/data/models/"+def.Name, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for a still-catalogued model", rec.Code)
	}
}

// ─── Log streaming ──────────────────────────────────────────────────────────

func TestHandleLogStream_SendsHistoricalCompleteMarker(t *testing.T) {
	backend := http.NewServeMux()
	s, def, cleanup := newTestServer(t, backend)
	defer cleanup()

	s.logs.Sink(def.Name).Append("booting")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/models/"+def.Name+"/logs/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	// handleLogStream returns once the request context is cancelled, so this
	// runs synchronously to completion within the timeout above.
	s.Handler().ServeHTTP(rec, req)

	scanner := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	sawHistorical, sawComplete := false, false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: historical") {
			sawHistorical = true
		}
		if strings.Contains(line, "historical_complete") {
			sawComplete = true
		}
	}
	if !sawHistorical || !sawComplete {
		t.Errorf("expected historical and historical_complete events, body = %q", rec.Body.String())
	}
}
