package sqlstore

import (
	"context"
	"fmt"
)

func (s *Store) schema() []string {
	id, float, ts := "BIGSERIAL PRIMARY KEY", "DOUBLE PRECISION", "TIMESTAMPTZ"
	if s.dialect == SQLite {
		id, float, ts = "INTEGER PRIMARY KEY AUTOINCREMENT", "REAL", "TIMESTAMP"
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS cell_towers (
			id ` + id + `,
			radio TEXT NOT NULL DEFAULT '',
			mcc INTEGER NOT NULL,
			mnc INTEGER NOT NULL,
			lac INTEGER,
			cell_id BIGINT NOT NULL,
			pci INTEGER,
			earfcn INTEGER,
			range_m INTEGER,
			is_approximate BOOLEAN NOT NULL DEFAULT FALSE,
			samples INTEGER,
			lat ` + float + ` NOT NULL,
			lon ` + float + ` NOT NULL,
			tx_power INTEGER,
			antenna_azimuth INTEGER,
			source TEXT NOT NULL DEFAULT 'OTHER',
			checked_count INTEGER NOT NULL DEFAULT 0,
			verified_count INTEGER NOT NULL DEFAULT 0,
			created_at ` + ts + ` NOT NULL,
			updated_at ` + ts + ` NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS cell_towers_identity_idx
			ON cell_towers (mcc, mnc, cell_id, COALESCE(lac, -1))`,
		`CREATE INDEX IF NOT EXISTS cell_towers_signature_idx ON cell_towers (mcc, mnc, pci)`,
		`CREATE INDEX IF NOT EXISTS cell_towers_latlon_idx ON cell_towers (lat, lon)`,
		`CREATE TABLE IF NOT EXISTS tower_lookup_logs (
			id ` + id + `,
			provider TEXT NOT NULL,
			mcc INTEGER NOT NULL,
			mnc INTEGER NOT NULL,
			lac INTEGER,
			cell_id BIGINT NOT NULL,
			pci INTEGER,
			earfcn INTEGER,
			success BOOLEAN NOT NULL,
			lat ` + float + `,
			lon ` + float + `,
			accuracy_m ` + float + `,
			request_url TEXT,
			request_body TEXT,
			response_body TEXT,
			error TEXT,
			created_at ` + ts + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS tower_lookup_logs_cell_idx ON tower_lookup_logs (mcc, mnc, cell_id)`,
	}
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for i, stmt := range s.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
