package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/couchcryptid/cell-locator/internal/domain"
)

// RecordLookup inserts one audit record into tower_lookup_logs.
func (s *Store) RecordLookup(ctx context.Context, rec domain.LookupRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.clock.Now().UTC()
	}
	_, err := s.exec(ctx, `INSERT INTO tower_lookup_logs (provider, mcc, mnc, lac, cell_id, pci, earfcn,
		success, lat, lon, accuracy_m, request_url, request_body, response_body, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Provider, rec.MCC, rec.MNC, rec.LAC, rec.CellID, rec.PCI, rec.EARFCN,
		rec.Success, rec.Lat, rec.Lon, rec.AccuracyM,
		text(rec.RequestURL), body(rec.RequestBody), body(rec.ResponseBody), text(rec.Error), createdAt)
	if err != nil {
		return fmt.Errorf("insert lookup log: %w", err)
	}
	return nil
}

// RecentLookups returns the newest audit records for a cell.
func (s *Store) RecentLookups(ctx context.Context, mcc, mnc int, cellID int64, limit int) ([]domain.LookupRecord, error) {
	query, args := limited(`SELECT provider, mcc, mnc, lac, cell_id, pci, earfcn, success, lat, lon,
		accuracy_m, request_url, request_body, response_body, error, created_at
		FROM tower_lookup_logs WHERE mcc = ? AND mnc = ? AND cell_id = ? ORDER BY id DESC`,
		[]any{mcc, mnc, cellID}, limit)
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query lookup logs: %w", err)
	}
	defer rows.Close()

	var out []domain.LookupRecord
	for rows.Next() {
		var (
			rec                         domain.LookupRecord
			lac, pci, earfcn            sql.Null[int]
			lat, lon, accuracy          sql.Null[float64]
			url, reqBody, resp, errText sql.NullString
		)
		if err := rows.Scan(&rec.Provider, &rec.MCC, &rec.MNC, &lac, &rec.CellID, &pci, &earfcn,
			&rec.Success, &lat, &lon, &accuracy, &url, &reqBody, &resp, &errText, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lookup log: %w", err)
		}
		rec.LAC, rec.PCI, rec.EARFCN = ptr(lac), ptr(pci), ptr(earfcn)
		rec.Lat, rec.Lon, rec.AccuracyM = ptr(lat), ptr(lon), ptr(accuracy)
		rec.RequestURL, rec.Error = url.String, errText.String
		rec.RequestBody, rec.ResponseBody = raw(reqBody), raw(resp)
		rec.CreatedAt = rec.CreatedAt.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func text(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func body(b json.RawMessage) *string {
	if len(b) == 0 {
		return nil
	}
	return text(string(b))
}

func raw(s sql.NullString) json.RawMessage {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.RawMessage(s.String)
}
