package sqlite

import "fmt"

// ListOrphans returns every model name that has accounting data but is no
// longer in the catalogue (known returns false for it). The caller passes
// the live Config Store's lookup so this package stays free of a
// dependency on catalog.
func (d *DB) ListOrphans(known func(name string) bool) ([]string, error) {
	names := make(map[string]struct{})

	for _, table := range []string{"requests", "runtime", "tier_pricing", "hourly_price", "billing_mode"} {
		rows, err := d.db.Query(fmt.Sprintf(`SELECT DISTINCT model_name FROM %s`, table))
		if err != nil {
			return nil, fmt.Errorf("scan %s for orphans: %w", table, err)
		}
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return nil, err
			}
			names[name] = struct{}{}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}

	var orphans []string
	for name := range names {
		if known == nil || !known(name) {
			orphans = append(orphans, name)
		}
	}
	return orphans, nil
}

// DropModel deletes all accounting data for a model: requests, runtime
// intervals, and pricing configuration. It does not itself check whether
// the model is still in the catalogue — callers must confirm it is an
// orphan (via ListOrphans or a direct Config Store lookup) before calling
// this, since AccountingStore has no Config Store dependency to check
// against.
func (d *DB) DropModel(name string) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin drop: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"requests", "runtime", "tier_pricing", "hourly_price", "billing_mode"} {
		if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM %s WHERE model_name = ?`, table), name); err != nil {
			return fmt.Errorf("drop from %s: %w", table, err)
		}
	}
	return tx.Commit()
}
