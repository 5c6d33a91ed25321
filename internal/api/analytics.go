package api

import (
	"encoding/json"
	"net/http"

	"github.com/tutu-network/tutu/internal/infra/sqlite"
)

func (s *Server) throughput(model string, t0, t1 float64, buckets int) (sqlite.ThroughputSeries, error) {
	return s.store.Throughput(model, t0, t1, buckets)
}

func (s *Server) costTrends(model string, t0, t1 float64, buckets int) (sqlite.CostSeries, error) {
	return s.store.CostTrends(model, t0, t1, buckets)
}

func (s *Server) usageSummary(model string, t0, t1 float64) (sqlite.UsageSummary, error) {
	return s.store.UsageSummaryFor(model, t0, t1)
}

func (s *Server) storageStats() (sqlite.StorageStats, error) {
	return s.store.StorageStatsSummary()
}

// modelStats bundles a throughput series, a cost series, and the overall
// usage summary for one model over the same window, for the combined
// model-stats endpoint.
type modelStats struct {
	Throughput sqlite.ThroughputSeries `json:"throughput"`
	Cost       sqlite.CostSeries       `json:"cost"`
	Usage      sqlite.UsageSummary     `json:"usage"`
}

func (s *Server) modelStats(model string, t0, t1 float64, buckets int) (modelStats, error) {
	tp, err := s.throughput(model, t0, t1, buckets)
	if err != nil {
		return modelStats{}, err
	}
	cost, err := s.costTrends(model, t0, t1, buckets)
	if err != nil {
		return modelStats{}, err
	}
	usage, err := s.usageSummary(model, t0, t1)
	if err != nil {
		return modelStats{}, err
	}
	return modelStats{Throughput: tp, Cost: cost, Usage: usage}, nil
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
