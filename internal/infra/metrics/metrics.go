// Package metrics provides the Prometheus metrics FleetGate exposes on
// /metrics: request throughput and latency, token and cost accounting,
// in-flight request counts, model start latency, and per-model health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Requests ───────────────────────────────────────────────────────────────

// RequestLatency tracks proxied request duration in seconds, by model and mode.
var RequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "fleetgate",
	Name:      "request_latency_seconds",
	Help:      "Proxied request duration in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"model", "mode"})

// RequestsTotal tracks completed proxied requests by model, mode, and outcome.
var RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fleetgate",
	Name:      "requests_total",
	Help:      "Total proxied requests.",
}, []string{"model", "mode", "outcome"})

// RequestsInFlight tracks requests currently open against a model.
var RequestsInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "fleetgate",
	Name:      "requests_in_flight",
	Help:      "Requests currently open against a model.",
}, []string{"model"})

// ─── Tokens & cost ──────────────────────────────────────────────────────────

// TokensTotal tracks tokens accounted by model and class (prompt/completion).
var TokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fleetgate",
	Name:      "tokens_total",
	Help:      "Total tokens recorded, by model and token class.",
}, []string{"model", "class"})

// CostUSDTotal is a per-model gauge for accrued cost in US dollars. No
// daemon component sets it: the reverse proxy records raw token counts
// only, and cost is computed inside the Accounting Store when queried.
var CostUSDTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "fleetgate",
	Name:      "cost_usd_total",
	Help:      "Total accrued cost in USD, by model, as of the last refresh.",
}, []string{"model"})

// ─── Model lifecycle ────────────────────────────────────────────────────────

// ModelStartLatency tracks the time from a start request to a healthy backend.
var ModelStartLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "fleetgate",
	Name:      "model_start_latency_seconds",
	Help:      "Time from start request to a healthy backend, by model.",
	Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
}, []string{"model"})

// ModelState reports the controller's current state per model as a gauge
// (0=stopped, 1=starting, 2=routing, 3=failed); a Gauge rather than a
// label-per-state Counter because only one state is ever current.
var ModelState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "fleetgate",
	Name:      "model_state",
	Help:      "Current lifecycle state per model (0=stopped, 1=starting, 2=routing, 3=failed).",
}, []string{"model"})

// ─── Devices ────────────────────────────────────────────────────────────────

// DeviceMemoryUsedBytes tracks estimated in-use device memory, by device.
var DeviceMemoryUsedBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "fleetgate",
	Name:      "device_memory_used_bytes",
	Help:      "Estimated in-use device memory in bytes, by device.",
}, []string{"device"})

// DeviceOnline reports whether a device is currently usable (1) or not (0).
var DeviceOnline = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "fleetgate",
	Name:      "device_online",
	Help:      "Whether a device is currently usable (1) or not (0).",
}, []string{"device"})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health probe results per model (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "fleetgate",
	Name:      "health_check_status",
	Help:      "Health probe result per model (1=healthy, 0=unhealthy).",
}, []string{"model"})

// ModelStateValue converts a controller state string to the numeric value
// ModelState expects.
func ModelStateValue(state string) float64 {
	switch state {
	case "stopped":
		return 0
	case "starting":
		return 1
	case "routing":
		return 2
	case "failed":
		return 3
	default:
		return -1
	}
}
