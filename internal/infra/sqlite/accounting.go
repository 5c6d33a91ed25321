package sqlite

import (
	"fmt"

	"github.com/tutu-network/tutu/internal/domain"
)

// RecordRequest persists one completed forwarded request.
func (d *DB) RecordRequest(rec domain.RequestRecord) error {
	_, err := d.db.Exec(
		`INSERT INTO requests (model_name, ts, in_tok, out_tok, cache_n, prompt_n) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ModelName, rec.TimestampSec, rec.InputTokens, rec.OutputTokens, rec.CacheTokens, rec.PromptTokens,
	)
	if err != nil {
		return fmt.Errorf("record request: %w", err)
	}
	return nil
}

// OpenInterval inserts a new runtime interval with end_ts equal to start_ts;
// it is advanced in place by TouchInterval while the model stays Routing.
func (d *DB) OpenInterval(modelName string, startSec float64) (int64, error) {
	res, err := d.db.Exec(
		`INSERT INTO runtime (model_name, start_ts, end_ts) VALUES (?, ?, ?)`,
		modelName, startSec, startSec,
	)
	if err != nil {
		return 0, fmt.Errorf("open interval: %w", err)
	}
	return res.LastInsertId()
}

// TouchInterval advances the open end of an interval while the model
// remains Routing.
func (d *DB) TouchInterval(intervalID int64, endSec float64) error {
	_, err := d.db.Exec(`UPDATE runtime SET end_ts = ? WHERE id = ?`, endSec, intervalID)
	return err
}

// CloseInterval finalises an interval at stop time. Functionally the same
// as TouchInterval; kept distinct because callers reason about them
// differently (periodic heartbeat vs. terminal close).
func (d *DB) CloseInterval(intervalID int64, endSec float64) error {
	return d.TouchInterval(intervalID, endSec)
}

// ─── Vectorised bucketed aggregation ────────────────────────────────────────
// Bucket series are computed with bulk array arithmetic over rows fetched
// in one query per metric, not per-record interpretation, so dashboard
// queries over a busy model stay sub-second.

// Bucket is one point of a time-bucketed series.
type Bucket struct {
	T0, T1 float64
}

func buildBuckets(t0, t1 float64, n int) []Bucket {
	if n <= 0 {
		n = 1
	}
	width := (t1 - t0) / float64(n)
	out := make([]Bucket, n)
	for i := range out {
		out[i] = Bucket{T0: t0 + float64(i)*width, T1: t0 + float64(i+1)*width}
	}
	return out
}

func bucketIndex(ts, t0, t1 float64, n int) (int, bool) {
	if ts < t0 || ts > t1 || n <= 0 {
		return 0, false
	}
	width := (t1 - t0) / float64(n)
	if width <= 0 {
		return 0, false
	}
	idx := int((ts - t0) / width)
	if idx >= n {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx, true
}

// ThroughputSeries holds per-bucket totals for each token class, plus the
// bucket width used to normalise into a rate.
type ThroughputSeries struct {
	Buckets     []Bucket
	InputTok    []int64
	OutputTok   []int64
	TotalTok    []int64
	CacheHit    []int64
	CacheMiss   []int64
	BucketWidth float64
}

// Throughput returns per-bucket token totals for a model (or all models if
// modelName is empty) between t0 and t1, split into n buckets.
func (d *DB) Throughput(modelName string, t0, t1 float64, n int) (ThroughputSeries, error) {
	rows, err := d.queryRequests(modelName, t0, t1)
	if err != nil {
		return ThroughputSeries{}, err
	}
	defer rows.Close()

	series := ThroughputSeries{
		Buckets:   buildBuckets(t0, t1, n),
		InputTok:  make([]int64, n),
		OutputTok: make([]int64, n),
		TotalTok:  make([]int64, n),
		CacheHit:  make([]int64, n),
		CacheMiss: make([]int64, n),
	}
	if n > 0 {
		series.BucketWidth = (t1 - t0) / float64(n)
	}

	for rows.Next() {
		var ts float64
		var inTok, outTok, cacheN, promptN int64
		if err := rows.Scan(&ts, &inTok, &outTok, &cacheN, &promptN); err != nil {
			return ThroughputSeries{}, err
		}
		idx, ok := bucketIndex(ts, t0, t1, n)
		if !ok {
			continue
		}
		series.InputTok[idx] += inTok
		series.OutputTok[idx] += outTok
		series.TotalTok[idx] += inTok + outTok
		series.CacheHit[idx] += cacheN
		series.CacheMiss[idx] += promptN
	}
	return series, rows.Err()
}

func (d *DB) queryRequests(modelName string, t0, t1 float64) (rowsIface, error) {
	if modelName == "" {
		return d.db.Query(
			`SELECT ts, in_tok, out_tok, cache_n, prompt_n FROM requests WHERE ts BETWEEN ? AND ? ORDER BY ts`,
			t0, t1,
		)
	}
	return d.db.Query(
		`SELECT ts, in_tok, out_tok, cache_n, prompt_n FROM requests WHERE model_name = ? AND ts BETWEEN ? AND ? ORDER BY ts`,
		modelName, t0, t1,
	)
}

// rowsIface lets queryRequests return *sql.Rows without importing
// database/sql into this file's signature surface twice.
type rowsIface interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// CostSeries holds per-bucket cost, computed by applying each model's
// pricing configuration to the requests and runtime intervals landing in
// that bucket.
type CostSeries struct {
	Buckets []Bucket
	CostUSD []float64
}

// CostTrends computes bucketed cost for a model over [t0, t1].
func (d *DB) CostTrends(modelName string, t0, t1 float64, n int) (CostSeries, error) {
	pricing, err := d.Pricing(modelName)
	if err != nil {
		return CostSeries{}, err
	}

	series := CostSeries{Buckets: buildBuckets(t0, t1, n), CostUSD: make([]float64, n)}

	if pricing.UseTiered {
		rows, err := d.queryRequests(modelName, t0, t1)
		if err != nil {
			return CostSeries{}, err
		}
		defer rows.Close()
		for rows.Next() {
			var ts float64
			var inTok, outTok, cacheN, promptN int64
			if err := rows.Scan(&ts, &inTok, &outTok, &cacheN, &promptN); err != nil {
				return CostSeries{}, err
			}
			idx, ok := bucketIndex(ts, t0, t1, n)
			if !ok {
				continue
			}
			rec := domain.RequestRecord{InputTokens: inTok, OutputTokens: outTok, CacheTokens: cacheN, PromptTokens: promptN}
			series.CostUSD[idx] += pricing.EvaluateTiered(rec)
		}
		return series, rows.Err()
	}

	intervals, err := d.intervalsOverlapping(modelName, t0, t1)
	if err != nil {
		return CostSeries{}, err
	}
	width := series.BucketWidthOrOne(n, t0, t1)
	for _, iv := range intervals {
		for i, b := range series.Buckets {
			overlap := iv.IntersectSeconds(b.T0, b.T1)
			if overlap <= 0 {
				continue
			}
			series.CostUSD[i] += overlap / 3600 * pricing.HourlyRate
		}
	}
	_ = width
	return series, nil
}

// BucketWidthOrOne is a tiny helper kept on CostSeries purely so
// CostTrends' hourly branch reads linearly; it has no state dependency.
func (s CostSeries) BucketWidthOrOne(n int, t0, t1 float64) float64 {
	if n <= 0 {
		return 1
	}
	return (t1 - t0) / float64(n)
}

func (d *DB) intervalsOverlapping(modelName string, t0, t1 float64) ([]domain.RuntimeInterval, error) {
	rows, err := d.db.Query(
		`SELECT model_name, start_ts, end_ts FROM runtime WHERE model_name = ? AND end_ts >= ? AND start_ts <= ?`,
		modelName, t0, t1,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RuntimeInterval
	for rows.Next() {
		var iv domain.RuntimeInterval
		if err := rows.Scan(&iv.ModelName, &iv.StartSec, &iv.EndSec); err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

// UsageSummary is the token/cost total for a window, for one model or for
// all models together; it has no per-mode breakdown.
type UsageSummary struct {
	TotalTokens int64
	TotalCost   float64
}

// UsageSummaryFor computes the total tokens and cost for a model over
// [t0, t1] in one pass.
func (d *DB) UsageSummaryFor(modelName string, t0, t1 float64) (UsageSummary, error) {
	pricing, err := d.Pricing(modelName)
	if err != nil {
		return UsageSummary{}, err
	}

	var out UsageSummary
	rows, err := d.queryRequests(modelName, t0, t1)
	if err != nil {
		return UsageSummary{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var ts float64
		var inTok, outTok, cacheN, promptN int64
		if err := rows.Scan(&ts, &inTok, &outTok, &cacheN, &promptN); err != nil {
			return UsageSummary{}, err
		}
		out.TotalTokens += inTok + outTok
		if pricing.UseTiered {
			out.TotalCost += pricing.EvaluateTiered(domain.RequestRecord{
				InputTokens: inTok, OutputTokens: outTok, CacheTokens: cacheN, PromptTokens: promptN,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return UsageSummary{}, err
	}
	rows.Close()
	if pricing.UseTiered {
		return out, nil
	}

	intervals, err := d.intervalsOverlapping(modelName, t0, t1)
	if err != nil {
		return UsageSummary{}, err
	}
	for _, iv := range intervals {
		out.TotalCost += pricing.EvaluateHourly(iv, t0, t1)
	}
	return out, nil
}

// StorageStats reports per-model request counts, for GET
// /api/data/storage/stats; the database file size is not included.
type StorageStats struct {
	RequestCountByModel map[string]int64
}

func (d *DB) StorageStatsSummary() (StorageStats, error) {
	rows, err := d.db.Query(`SELECT model_name, COUNT(*) FROM requests GROUP BY model_name`)
	if err != nil {
		return StorageStats{}, err
	}
	defer rows.Close()

	out := StorageStats{RequestCountByModel: make(map[string]int64)}
	for rows.Next() {
		var name string
		var count int64
		if err := rows.Scan(&name, &count); err != nil {
			return StorageStats{}, err
		}
		out.RequestCountByModel[name] = count
	}
	return out, rows.Err()
}
