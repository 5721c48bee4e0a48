package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/couchcryptid/cell-locator/internal/domain"
)

const towerColumns = `id, radio, mcc, mnc, lac, cell_id, pci, earfcn, range_m, is_approximate,
	samples, lat, lon, tx_power, antenna_azimuth, source, checked_count, verified_count,
	created_at, updated_at`

const insertTower = `INSERT INTO cell_towers (radio, mcc, mnc, lac, cell_id, pci, earfcn, range_m,
	is_approximate, samples, lat, lon, tx_power, antenna_azimuth, source, checked_count,
	verified_count, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT DO NOTHING`

const recency = ` ORDER BY updated_at DESC, id DESC`

// keyChunk bounds the OR-list size of a batch key lookup.
const keyChunk = 200

type scanner interface {
	Scan(dest ...any) error
}

func scanTower(row scanner) (domain.Tower, error) {
	var (
		t                                              domain.Tower
		radio, source                                  string
		lac, pci, earfcn, rangeM, samples, tx, azimuth sql.Null[int]
	)
	err := row.Scan(&t.ID, &radio, &t.MCC, &t.MNC, &lac, &t.CellID, &pci, &earfcn, &rangeM,
		&t.Approximate, &samples, &t.Lat, &t.Lon, &tx, &azimuth, &source,
		&t.CheckedCount, &t.VerifiedCount, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return domain.Tower{}, err
	}
	t.Radio = domain.Radio(radio)
	t.Source = domain.DatasetSource(source)
	t.LAC, t.PCI, t.EARFCN = ptr(lac), ptr(pci), ptr(earfcn)
	t.RangeM, t.Samples = ptr(rangeM), ptr(samples)
	t.TxPower, t.AntennaAzimuth = ptr(tx), ptr(azimuth)
	t.CreatedAt, t.UpdatedAt = t.CreatedAt.UTC(), t.UpdatedAt.UTC()
	return t, nil
}

func ptr[T any](n sql.Null[T]) *T {
	if !n.Valid {
		return nil
	}
	return &n.V
}

func (s *Store) towerArgs(t domain.Tower) []any {
	source := t.Source
	if source == "" {
		source = domain.SourceOther
	}
	return []any{
		string(t.Radio), t.MCC, t.MNC, t.LAC, t.CellID, t.PCI, t.EARFCN, t.RangeM,
		t.Approximate, t.Samples, t.Lat, t.Lon, t.TxPower, t.AntennaAzimuth, string(source),
		t.CheckedCount, t.VerifiedCount, t.CreatedAt, t.UpdatedAt,
	}
}

func (s *Store) stamp(t *domain.Tower) {
	now := s.clock.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
}

func (s *Store) queryTowers(ctx context.Context, query string, args ...any) ([]domain.Tower, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Tower
	for rows.Next() {
		t, err := scanTower(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tower: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) queryTower(ctx context.Context, query string, args ...any) (*domain.Tower, error) {
	t, err := scanTower(s.queryRow(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FindExact returns the tower with the given identity. A nil lac matches any
// LAC and picks the lowest ID.
func (s *Store) FindExact(ctx context.Context, mcc, mnc int, cellID int64, lac *int) (*domain.Tower, error) {
	if lac != nil {
		return s.queryTower(ctx, `SELECT `+towerColumns+` FROM cell_towers
			WHERE mcc = ? AND mnc = ? AND cell_id = ? AND lac = ? LIMIT 1`, mcc, mnc, cellID, *lac)
	}
	return s.queryTower(ctx, `SELECT `+towerColumns+` FROM cell_towers
		WHERE mcc = ? AND mnc = ? AND cell_id = ? ORDER BY id LIMIT 1`, mcc, mnc, cellID)
}

func (s *Store) findByKey(ctx context.Context, k domain.TowerKey) (*domain.Tower, error) {
	return s.queryTower(ctx, `SELECT `+towerColumns+` FROM cell_towers
		WHERE mcc = ? AND mnc = ? AND cell_id = ? AND COALESCE(lac, -1) = ?`,
		k.MCC, k.MNC, k.CellID, keyLAC(k))
}

func keyLAC(k domain.TowerKey) int {
	if !k.HasLAC {
		return -1
	}
	return k.LAC
}

// FindBySignature returns towers sharing (MCC, MNC, PCI), newest first.
func (s *Store) FindBySignature(ctx context.Context, q domain.SignatureQuery) ([]domain.Tower, error) {
	where := []string{"mcc = ?", "mnc = ?", "pci = ?"}
	args := []any{q.MCC, q.MNC, q.PCI}
	if q.EARFCN != nil {
		where = append(where, "earfcn = ?")
		args = append(args, *q.EARFCN)
	}
	if q.LAC != nil {
		where = append(where, "lac = ?")
		args = append(args, *q.LAC)
	}
	query, args := limited(`SELECT `+towerColumns+` FROM cell_towers WHERE `+strings.Join(where, " AND ")+recency, args, q.Limit)
	return s.queryTowers(ctx, query, args...)
}

// Search returns towers matching the identity fields, newest first.
func (s *Store) Search(ctx context.Context, q domain.SearchQuery) ([]domain.Tower, error) {
	where := []string{"mcc = ?", "mnc = ?"}
	args := []any{q.MCC, q.MNC}
	if q.LAC != nil {
		where = append(where, "lac = ?")
		args = append(args, *q.LAC)
	}
	if q.PCI != nil {
		where = append(where, "pci = ?")
		args = append(args, *q.PCI)
	}
	if q.CellID != nil {
		where = append(where, "cell_id = ?")
		args = append(args, *q.CellID)
	}
	query, args := limited(`SELECT `+towerColumns+` FROM cell_towers WHERE `+strings.Join(where, " AND ")+recency, args, q.Limit)
	return s.queryTowers(ctx, query, args...)
}

// WithinBounds returns towers inside b, newest first.
func (s *Store) WithinBounds(ctx context.Context, b domain.Bounds, limit int) ([]domain.Tower, error) {
	query, args := limited(`SELECT `+towerColumns+` FROM cell_towers
		WHERE lat BETWEEN ? AND ? AND lon BETWEEN ? AND ?`+recency,
		[]any{b.MinLat, b.MaxLat, b.MinLon, b.MaxLon}, limit)
	return s.queryTowers(ctx, query, args...)
}

func limited(query string, args []any, limit int) (string, []any) {
	if limit <= 0 {
		return query, args
	}
	return query + " LIMIT ?", append(args, limit)
}

// GetOrCreate inserts t unless a tower with the same key exists.
func (s *Store) GetOrCreate(ctx context.Context, t domain.Tower) (domain.Tower, bool, error) {
	s.stamp(&t)
	res, err := s.exec(ctx, insertTower, s.towerArgs(t)...)
	if err != nil {
		return domain.Tower{}, false, fmt.Errorf("insert tower: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Tower{}, false, err
	}

	stored, err := s.findByKey(ctx, t.Key())
	if err != nil {
		return domain.Tower{}, false, fmt.Errorf("load tower: %w", err)
	}
	if stored == nil {
		return domain.Tower{}, false, fmt.Errorf("tower %d/%d/%d missing after insert", t.MCC, t.MNC, t.CellID)
	}
	return *stored, affected > 0, nil
}

// ApplyPatch applies a partial update; the checked count is incremented in SQL.
func (s *Store) ApplyPatch(ctx context.Context, id int64, p domain.TowerPatch) (domain.Tower, error) {
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.clock.Now().UTC()
	}
	var source *string
	if p.Source != nil {
		v := string(*p.Source)
		source = &v
	}

	res, err := s.exec(ctx, `UPDATE cell_towers SET
			lat = COALESCE(?, lat),
			lon = COALESCE(?, lon),
			range_m = COALESCE(?, range_m),
			source = COALESCE(?, source),
			is_approximate = COALESCE(?, is_approximate),
			checked_count = checked_count + ?,
			updated_at = ?
		WHERE id = ?`,
		p.Lat, p.Lon, p.RangeM, source, p.Approximate, p.CheckedDelta, updatedAt, id)
	if err != nil {
		return domain.Tower{}, fmt.Errorf("patch tower %d: %w", id, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return domain.Tower{}, fmt.Errorf("tower %d not found", id)
	}

	t, err := s.queryTower(ctx, `SELECT `+towerColumns+` FROM cell_towers WHERE id = ?`, id)
	if err != nil {
		return domain.Tower{}, fmt.Errorf("load tower %d: %w", id, err)
	}
	if t == nil {
		return domain.Tower{}, fmt.Errorf("tower %d not found", id)
	}
	return *t, nil
}

// FindByKeys returns the stored towers for the given keys. Missing keys are
// absent from the map.
func (s *Store) FindByKeys(ctx context.Context, keys []domain.TowerKey) (map[domain.TowerKey]domain.Tower, error) {
	out := make(map[domain.TowerKey]domain.Tower, len(keys))
	for start := 0; start < len(keys); start += keyChunk {
		chunk := keys[start:min(start+keyChunk, len(keys))]
		conds := make([]string, len(chunk))
		args := make([]any, 0, 4*len(chunk))
		for i, k := range chunk {
			conds[i] = "(mcc = ? AND mnc = ? AND cell_id = ? AND COALESCE(lac, -1) = ?)"
			args = append(args, k.MCC, k.MNC, k.CellID, keyLAC(k))
		}
		towers, err := s.queryTowers(ctx, `SELECT `+towerColumns+` FROM cell_towers WHERE `+strings.Join(conds, " OR "), args...)
		if err != nil {
			return nil, fmt.Errorf("find towers by key: %w", err)
		}
		for _, t := range towers {
			out[t.Key()] = t
		}
	}
	return out, nil
}

// InsertTowers inserts towers whose keys are free and returns how many were
// inserted. The batch runs in one transaction.
func (s *Store) InsertTowers(ctx context.Context, towers []domain.Tower) (int, error) {
	n := 0
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, s.rebind(insertTower))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, t := range towers {
			s.stamp(&t)
			res, err := stmt.ExecContext(ctx, s.towerArgs(t)...)
			if err != nil {
				return fmt.Errorf("insert tower %d/%d/%d: %w", t.MCC, t.MNC, t.CellID, err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			n += int(affected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// UpdateTowers overwrites stored towers by ID in one transaction.
func (s *Store) UpdateTowers(ctx context.Context, towers []domain.Tower) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, s.rebind(`UPDATE cell_towers SET
			radio = ?, mcc = ?, mnc = ?, lac = ?, cell_id = ?, pci = ?, earfcn = ?, range_m = ?,
			is_approximate = ?, samples = ?, lat = ?, lon = ?, tx_power = ?, antenna_azimuth = ?,
			source = ?, checked_count = ?, verified_count = ?, updated_at = ?
			WHERE id = ?`))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, t := range towers {
			if t.UpdatedAt.IsZero() {
				t.UpdatedAt = s.clock.Now().UTC()
			}
			args := s.towerArgs(t)
			// Drop created_at; it is never rewritten.
			args = append(args[:17], t.UpdatedAt, t.ID)
			res, err := stmt.ExecContext(ctx, args...)
			if err != nil {
				return fmt.Errorf("update tower %d: %w", t.ID, err)
			}
			if affected, err := res.RowsAffected(); err == nil && affected == 0 {
				return fmt.Errorf("tower %d not found", t.ID)
			}
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
