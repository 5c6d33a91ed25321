package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func gatheredNames(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestRequestMetrics(t *testing.T) {
	RequestLatency.WithLabelValues("llama3.2", "chat").Observe(0.8)
	RequestsTotal.WithLabelValues("llama3.2", "chat", "ok").Inc()
	RequestsInFlight.WithLabelValues("llama3.2").Set(2)

	names := gatheredNames(t)
	for _, name := range []string{
		"fleetgate_request_latency_seconds",
		"fleetgate_requests_total",
		"fleetgate_requests_in_flight",
	} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestTokenAndCostMetrics(t *testing.T) {
	TokensTotal.WithLabelValues("llama3.2", "prompt").Add(12)
	TokensTotal.WithLabelValues("llama3.2", "completion").Add(7)
	CostUSDTotal.WithLabelValues("llama3.2").Set(0.0042)

	names := gatheredNames(t)
	if !names["fleetgate_tokens_total"] {
		t.Error("fleetgate_tokens_total not found")
	}
	if !names["fleetgate_cost_usd_total"] {
		t.Error("fleetgate_cost_usd_total not found")
	}
}

func TestModelLifecycleMetrics(t *testing.T) {
	ModelStartLatency.WithLabelValues("llama3.2").Observe(4.2)
	ModelState.WithLabelValues("llama3.2").Set(ModelStateValue("routing"))

	names := gatheredNames(t)
	if !names["fleetgate_model_start_latency_seconds"] {
		t.Error("fleetgate_model_start_latency_seconds not found")
	}
	if !names["fleetgate_model_state"] {
		t.Error("fleetgate_model_state not found")
	}
}

func TestModelStateValue(t *testing.T) {
	cases := map[string]float64{
		"stopped":  0,
		"starting": 1,
		"routing":  2,
		"failed":   3,
		"bogus":    -1,
	}
	for state, want := range cases {
		if got := ModelStateValue(state); got != want {
			t.Errorf("ModelStateValue(%q) = %v, want %v", state, got, want)
		}
	}
}

func TestDeviceMetrics(t *testing.T) {
	DeviceMemoryUsedBytes.WithLabelValues("cpu").Set(4 * 1024 * 1024 * 1024)
	DeviceOnline.WithLabelValues("cpu").Set(1)

	names := gatheredNames(t)
	if !names["fleetgate_device_memory_used_bytes"] {
		t.Error("fleetgate_device_memory_used_bytes not found")
	}
	if !names["fleetgate_device_online"] {
		t.Error("fleetgate_device_online not found")
	}
}

func TestHealthMetrics(t *testing.T) {
	HealthCheckStatus.WithLabelValues("llama3.2").Set(1)

	names := gatheredNames(t)
	if !names["fleetgate_health_check_status"] {
		t.Error("fleetgate_health_check_status not found")
	}
}

func TestAllMetricsGatherable(t *testing.T) {
	names := gatheredNames(t)
	count := 0
	for name := range names {
		if len(name) > 10 && name[:10] == "fleetgate_" {
			count++
		}
	}
	if count < 8 {
		t.Errorf("expected at least 8 fleetgate_ metrics, got %d", count)
	}
}
