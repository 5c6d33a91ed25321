// Package api is the Routing Proxy: an OpenAI-compatible HTTP surface that
// lazily starts catalogued models on first request and forwards traffic to
// their backend process, plus the administrative surface for devices,
// logs, and billing.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tutu-network/tutu/internal/controller"
	"github.com/tutu-network/tutu/internal/domain"
	"github.com/tutu-network/tutu/internal/infra/device"
	"github.com/tutu-network/tutu/internal/infra/iface"
	"github.com/tutu-network/tutu/internal/infra/logfanout"
	"github.com/tutu-network/tutu/internal/infra/sqlite"
)

// Server assembles the full HTTP surface: the OpenAI-compatible routing
// proxy plus the administrative API.
type Server struct {
	controller     *controller.Controller
	catalog        domain.ConfigStore
	devices        *device.Registry
	interfaces     *iface.Registry
	logs           *logfanout.Registry
	accounting     domain.AccountingStore
	store          *sqlite.DB // same instance as accounting, for analytics-only queries
	metricsEnabled bool
	version        string
	startedAt      time.Time
}

func NewServer(
	ctrl *controller.Controller,
	catalog domain.ConfigStore,
	devices *device.Registry,
	interfaces *iface.Registry,
	logs *logfanout.Registry,
	store *sqlite.DB,
	version string,
) *Server {
	return &Server{
		controller: ctrl,
		catalog:    catalog,
		devices:    devices,
		interfaces: interfaces,
		logs:       logs,
		accounting: store,
		store:      store,
		version:    version,
		startedAt:  time.Now(),
	}
}

// EnableMetrics turns on the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with every route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/", s.handleInfo)
	r.Get("/api/info", s.handleInfo)
	r.Get("/health", s.handleHealth)
	r.Get("/api/health", s.handleHealth)
	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
	})

	// OpenAI-compatible routing proxy.
	r.Route("/v1", func(r chi.Router) {
		r.Get("/models", s.handleListModels)
		r.Post("/chat/completions", s.handleProxy(domain.ModeChat))
		r.Post("/completions", s.handleProxy(domain.ModeBase))
		r.Post("/embeddings", s.handleProxy(domain.ModeEmbedding))
		r.Post("/rerank", s.handleProxy(domain.ModeReranker))
	})

	s.mountAdmin(r)

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// handleInfo serves GET / and GET /api/info: a small service-identity
// document clients can use to confirm they're talking to a FleetGate
// instance before calling anything else.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":    "fleetgate",
		"version":    s.version,
		"started_at": s.startedAt.Unix(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	statuses := s.controller.Snapshot()
	running := 0
	for _, st := range statuses {
		if st.State == domain.Routing.String() {
			running++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"models_count":   len(s.catalog.All()),
		"running_models": running,
	})
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	defs := s.catalog.All()
	data := make([]map[string]any, 0, len(defs))
	for _, m := range defs {
		data = append(data, map[string]any{
			"id":       m.Name,
			"object":   "model",
			"created":  s.startedAt.Unix(),
			"owned_by": "fleetgate",
			"aliases":  m.Aliases,
			"mode":     string(m.Mode),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": data})
}

// ─── Shared helpers ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"message": msg, "type": "error"},
	})
}

// writeDomainError maps a domain.Error (or any error) to its HTTP status.
func writeDomainError(w http.ResponseWriter, err error) {
	if derr, ok := err.(*domain.Error); ok {
		writeJSON(w, derr.StatusCode(), map[string]any{
			"error": map[string]any{"message": derr.Error(), "type": derr.Kind},
		})
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
