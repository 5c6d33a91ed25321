package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/tutu-network/tutu/internal/domain"
)

// Pricing loads a model's full billing configuration: its tiered/hourly
// flag, every tier row, and its hourly rate if set. A model with no rows in
// any pricing table gets a zero-value tiered config with no tiers, which
// EvaluateTiered treats as free (SelectTier matches nothing).
func (d *DB) Pricing(modelName string) (*domain.PricingConfig, error) {
	cfg := &domain.PricingConfig{ModelName: modelName, UseTiered: true}

	var useTiered bool
	err := d.db.QueryRow(`SELECT use_tiered FROM billing_mode WHERE model_name = ?`, modelName).Scan(&useTiered)
	switch {
	case err == nil:
		cfg.UseTiered = useTiered
	case errors.Is(err, sql.ErrNoRows):
		// default: tiered, no explicit row yet
	default:
		return nil, fmt.Errorf("load billing mode: %w", err)
	}

	var rate float64
	err = d.db.QueryRow(`SELECT price FROM hourly_price WHERE model_name = ?`, modelName).Scan(&rate)
	switch {
	case err == nil:
		cfg.HourlyRate = rate
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, fmt.Errorf("load hourly price: %w", err)
	}

	rows, err := d.db.Query(
		`SELECT tier_idx, in_min, in_max, out_min, out_max, in_price, out_price, cache_ok, cache_read_price, cache_write_price
		 FROM tier_pricing WHERE model_name = ? ORDER BY tier_idx`,
		modelName,
	)
	if err != nil {
		return nil, fmt.Errorf("load tiers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t domain.Tier
		if err := rows.Scan(&t.Index, &t.InMin, &t.InMax, &t.OutMin, &t.OutMax,
			&t.InPrice, &t.OutPrice, &t.CacheOK, &t.CacheReadPrice, &t.CacheWritePrice); err != nil {
			return nil, fmt.Errorf("scan tier: %w", err)
		}
		cfg.Tiers = append(cfg.Tiers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetHourly sets (or replaces) a model's flat hourly rate.
func (d *DB) SetHourly(modelName string, rate float64) error {
	if rate < 0 {
		return domain.PricingInvalid("hourly rate must be non-negative, got %v", rate)
	}
	_, err := d.db.Exec(
		`INSERT INTO hourly_price (model_name, price) VALUES (?, ?)
		 ON CONFLICT(model_name) DO UPDATE SET price = excluded.price`,
		modelName, rate,
	)
	return err
}

// UpsertTier inserts or replaces one tier row. Overlapping ranges between
// tiers are intentionally allowed — SelectTier picks the lowest matching
// index, so operators can layer a catch-all tier beneath specific ones.
func (d *DB) UpsertTier(modelName string, t domain.Tier) error {
	if t.InPrice < 0 || t.OutPrice < 0 || t.CacheReadPrice < 0 || t.CacheWritePrice < 0 {
		return domain.PricingInvalid("tier %d: prices must be non-negative", t.Index)
	}
	_, err := d.db.Exec(
		`INSERT INTO tier_pricing (model_name, tier_idx, in_min, in_max, out_min, out_max, in_price, out_price, cache_ok, cache_read_price, cache_write_price)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(model_name, tier_idx) DO UPDATE SET
			in_min = excluded.in_min, in_max = excluded.in_max,
			out_min = excluded.out_min, out_max = excluded.out_max,
			in_price = excluded.in_price, out_price = excluded.out_price,
			cache_ok = excluded.cache_ok,
			cache_read_price = excluded.cache_read_price,
			cache_write_price = excluded.cache_write_price`,
		modelName, t.Index, t.InMin, t.InMax, t.OutMin, t.OutMax,
		t.InPrice, t.OutPrice, t.CacheOK, t.CacheReadPrice, t.CacheWritePrice,
	)
	return err
}

// DeleteTier removes a tier, refusing to remove the last one: a model
// under tiered billing must always have at least one tier to evaluate
// against, or every request silently costs zero.
func (d *DB) DeleteTier(modelName string, index int) error {
	var count int
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM tier_pricing WHERE model_name = ?`, modelName).Scan(&count); err != nil {
		return fmt.Errorf("count tiers: %w", err)
	}
	if count <= 1 {
		return domain.LastTierDeletion("model %q has only one tier remaining", modelName)
	}
	_, err := d.db.Exec(`DELETE FROM tier_pricing WHERE model_name = ? AND tier_idx = ?`, modelName, index)
	return err
}

// SetBillingMode switches a model between tiered and hourly billing.
func (d *DB) SetBillingMode(modelName string, tiered bool) error {
	_, err := d.db.Exec(
		`INSERT INTO billing_mode (model_name, use_tiered) VALUES (?, ?)
		 ON CONFLICT(model_name) DO UPDATE SET use_tiered = excluded.use_tiered`,
		modelName, tiered,
	)
	return err
}
