// Package memory provides an in-process tower store for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/couchcryptid/cell-locator/internal/domain"
	"github.com/jonboulle/clockwork"
)

// TowerStore keeps towers and lookup audit records in memory. It is safe for
// concurrent use.
type TowerStore struct {
	mu      sync.RWMutex
	clock   clockwork.Clock
	nextID  int64
	towers  map[int64]domain.Tower
	byKey   map[domain.TowerKey]int64
	lookups []domain.LookupRecord
}

// NewTowerStore creates an empty store. A nil clock uses real time.
func NewTowerStore(clock clockwork.Clock) *TowerStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TowerStore{
		clock:  clock,
		towers: make(map[int64]domain.Tower),
		byKey:  make(map[domain.TowerKey]int64),
	}
}

// Ping always succeeds.
func (s *TowerStore) Ping(context.Context) error { return nil }

// FindExact returns the tower with the given identity. A nil lac matches any LAC.
func (s *TowerStore) FindExact(_ context.Context, mcc, mnc int, cellID int64, lac *int) (*domain.Tower, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if lac != nil {
		id, ok := s.byKey[domain.TowerKey{MCC: mcc, MNC: mnc, CellID: cellID, LAC: *lac, HasLAC: true}]
		if !ok {
			return nil, nil
		}
		t := s.towers[id]
		return &t, nil
	}

	var found *domain.Tower
	for _, t := range s.towers {
		if t.MCC == mcc && t.MNC == mnc && t.CellID == cellID {
			if found == nil || t.ID < found.ID {
				c := t
				found = &c
			}
		}
	}
	return found, nil
}

// FindBySignature returns towers sharing (MCC, MNC, PCI), newest first.
func (s *TowerStore) FindBySignature(_ context.Context, q domain.SignatureQuery) ([]domain.Tower, error) {
	return s.filter(func(t domain.Tower) bool {
		if t.MCC != q.MCC || t.MNC != q.MNC || t.PCI == nil || *t.PCI != q.PCI {
			return false
		}
		if q.EARFCN != nil && (t.EARFCN == nil || *t.EARFCN != *q.EARFCN) {
			return false
		}
		if q.LAC != nil && (t.LAC == nil || *t.LAC != *q.LAC) {
			return false
		}
		return true
	}, q.Limit), nil
}

// Search returns towers matching the identity fields, newest first.
func (s *TowerStore) Search(_ context.Context, q domain.SearchQuery) ([]domain.Tower, error) {
	return s.filter(func(t domain.Tower) bool {
		if t.MCC != q.MCC || t.MNC != q.MNC {
			return false
		}
		if q.LAC != nil && (t.LAC == nil || *t.LAC != *q.LAC) {
			return false
		}
		if q.PCI != nil && (t.PCI == nil || *t.PCI != *q.PCI) {
			return false
		}
		if q.CellID != nil && t.CellID != *q.CellID {
			return false
		}
		return true
	}, q.Limit), nil
}

// WithinBounds returns towers inside b, newest first.
func (s *TowerStore) WithinBounds(_ context.Context, b domain.Bounds, limit int) ([]domain.Tower, error) {
	return s.filter(func(t domain.Tower) bool {
		return t.Lat >= b.MinLat && t.Lat <= b.MaxLat && t.Lon >= b.MinLon && t.Lon <= b.MaxLon
	}, limit), nil
}

func (s *TowerStore) filter(match func(domain.Tower) bool, limit int) []domain.Tower {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Tower
	for _, t := range s.towers {
		if match(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// GetOrCreate inserts t unless its key is taken.
func (s *TowerStore) GetOrCreate(_ context.Context, t domain.Tower) (domain.Tower, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byKey[t.Key()]; ok {
		return s.towers[id], false, nil
	}
	return s.insertLocked(t), true, nil
}

// ApplyPatch applies a partial update.
func (s *TowerStore) ApplyPatch(_ context.Context, id int64, p domain.TowerPatch) (domain.Tower, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.towers[id]
	if !ok {
		return domain.Tower{}, fmt.Errorf("tower %d not found", id)
	}
	if p.Lat != nil {
		t.Lat = *p.Lat
	}
	if p.Lon != nil {
		t.Lon = *p.Lon
	}
	if p.RangeM != nil {
		t.RangeM = p.RangeM
	}
	if p.Source != nil {
		t.Source = *p.Source
	}
	if p.Approximate != nil {
		t.Approximate = *p.Approximate
	}
	t.CheckedCount += p.CheckedDelta
	t.UpdatedAt = p.UpdatedAt
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = s.clock.Now().UTC()
	}
	s.towers[id] = t
	return t, nil
}

// FindByKeys returns the stored towers for the given keys. Missing keys are absent from the map.
func (s *TowerStore) FindByKeys(_ context.Context, keys []domain.TowerKey) (map[domain.TowerKey]domain.Tower, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[domain.TowerKey]domain.Tower, len(keys))
	for _, k := range keys {
		if id, ok := s.byKey[k]; ok {
			out[k] = s.towers[id]
		}
	}
	return out, nil
}

// InsertTowers inserts towers whose keys are free and returns how many were inserted.
func (s *TowerStore) InsertTowers(_ context.Context, towers []domain.Tower) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range towers {
		if _, ok := s.byKey[t.Key()]; ok {
			continue
		}
		s.insertLocked(t)
		n++
	}
	return n, nil
}

// UpdateTowers replaces stored towers by ID.
func (s *TowerStore) UpdateTowers(_ context.Context, towers []domain.Tower) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range towers {
		old, ok := s.towers[t.ID]
		if !ok {
			return fmt.Errorf("tower %d not found", t.ID)
		}
		if old.Key() != t.Key() {
			delete(s.byKey, old.Key())
			s.byKey[t.Key()] = t.ID
		}
		t.CreatedAt = old.CreatedAt
		if t.UpdatedAt.IsZero() {
			t.UpdatedAt = s.clock.Now().UTC()
		}
		s.towers[t.ID] = t
	}
	return nil
}

// Put stores t unconditionally under a fresh ID and returns it.
func (s *TowerStore) Put(t domain.Tower) domain.Tower {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(t)
}

func (s *TowerStore) insertLocked(t domain.Tower) domain.Tower {
	s.nextID++
	t.ID = s.nextID
	now := s.clock.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
	if t.Source == "" {
		t.Source = domain.SourceOther
	}
	s.towers[t.ID] = t
	s.byKey[t.Key()] = t.ID
	return t
}

// RecordLookup appends an audit record.
func (s *TowerStore) RecordLookup(_ context.Context, rec domain.LookupRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups = append(s.lookups, rec)
	return nil
}

// Lookups returns a copy of the recorded audit entries.
func (s *TowerStore) Lookups() []domain.LookupRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.LookupRecord(nil), s.lookups...)
}

// RecentLookups returns the newest audit entries for one cell, newest first.
func (s *TowerStore) RecentLookups(_ context.Context, mcc, mnc int, cellID int64, limit int) ([]domain.LookupRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.LookupRecord
	for i := len(s.lookups) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		rec := s.lookups[i]
		if rec.MCC == mcc && rec.MNC == mnc && rec.CellID == cellID {
			out = append(out, rec)
		}
	}
	return out, nil
}
