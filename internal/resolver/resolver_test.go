package resolver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/cell-locator/internal/adapter/memory"
	"github.com/couchcryptid/cell-locator/internal/domain"
	"github.com/couchcryptid/cell-locator/internal/geometry"
	"github.com/couchcryptid/cell-locator/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- fakes ---

type countingStore struct {
	*memory.TowerStore
	exact     atomic.Int64
	signature atomic.Int64
	failWith  error
}

func (s *countingStore) FindExact(ctx context.Context, mcc, mnc int, cellID int64, lac *int) (*domain.Tower, error) {
	s.exact.Add(1)
	if s.failWith != nil {
		return nil, s.failWith
	}
	return s.TowerStore.FindExact(ctx, mcc, mnc, cellID, lac)
}

func (s *countingStore) FindBySignature(ctx context.Context, q domain.SignatureQuery) ([]domain.Tower, error) {
	s.signature.Add(1)
	if s.failWith != nil {
		return nil, s.failWith
	}
	return s.TowerStore.FindBySignature(ctx, q)
}

type fakeProvider struct {
	name  string
	src   domain.DatasetSource
	fix   *domain.ProviderFix
	err   error
	delay time.Duration
	calls atomic.Int64
	last  domain.ProviderLookup
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) DatasetSource() domain.DatasetSource { return p.src }

func (p *fakeProvider) Lookup(ctx context.Context, q domain.ProviderLookup) (*domain.ProviderFix, error) {
	p.calls.Add(1)
	p.last = q
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return p.fix, p.err
}

type failingAudit struct{ calls atomic.Int64 }

func (a *failingAudit) RecordLookup(context.Context, domain.LookupRecord) error {
	a.calls.Add(1)
	return errors.New("audit table unavailable")
}

// stallingAudit blocks until its context ends, like a sink whose broker
// stopped answering.
type stallingAudit struct{ calls atomic.Int64 }

func (a *stallingAudit) RecordLookup(ctx context.Context, _ domain.LookupRecord) error {
	a.calls.Add(1)
	select {
	case <-time.After(5 * time.Second):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// --- helpers ---

func newStore() *countingStore {
	return &countingStore{TowerStore: memory.NewTowerStore(clockwork.NewFakeClock())}
}

func newResolver(store domain.TowerStore, providers []domain.Provider, audit domain.AuditLog, opts Options) *Resolver {
	return New(store, providers, audit, discardLogger(), observability.NewMetricsForTesting(), opts)
}

func query(cellID int64, lac *int) domain.ResolveQuery {
	return domain.ResolveQuery{
		Radio:          domain.RadioLTE,
		MCC:            domain.Ptr(432),
		MNC:            domain.Ptr(35),
		CellID:         domain.Ptr(cellID),
		LAC:            lac,
		SignalStrength: domain.Ptr(-90),
	}
}

func seed(store *countingStore, cellID int64, lac *int, lat, lon float64) domain.Tower {
	return store.Put(domain.Tower{
		Radio: domain.RadioLTE, MCC: 432, MNC: 35, CellID: cellID, LAC: lac,
		Lat: lat, Lon: lon, Source: domain.SourceOpenCellID,
	})
}

func fixAt(lat, lon float64, acc *float64) *domain.ProviderFix {
	return &domain.ProviderFix{Lat: lat, Lon: lon, AccuracyM: acc, RequestURL: "https://provider.test"}
}

// --- tests ---

func TestResolveExactWithLAC(t *testing.T) {
	store := newStore()
	seed(store, 100, domain.Ptr(1), 35.1, 51.1)
	want := seed(store, 100, domain.Ptr(2), 35.2, 51.2)

	res := newResolver(store, nil, nil, Options{}).Resolve(context.Background(), query(100, domain.Ptr(2)))

	require.True(t, res.Found())
	assert.Equal(t, domain.ProvenanceLocal, res.Source)
	assert.Equal(t, want.ID, res.Tower.ID)
}

func TestResolveExactFallsBackWithoutLAC(t *testing.T) {
	store := newStore()
	want := seed(store, 100, domain.Ptr(1), 35.1, 51.1)

	res := newResolver(store, nil, nil, Options{}).Resolve(context.Background(), query(100, domain.Ptr(9)))

	require.True(t, res.Found())
	assert.Equal(t, domain.ProvenanceLocal, res.Source)
	assert.Equal(t, want.ID, res.Tower.ID)
	assert.Equal(t, int64(2), store.exact.Load(), "lac-qualified then lac-free lookup")
}

func TestResolveSentinelNeverQueriesStore(t *testing.T) {
	store := newStore()
	r := newResolver(store, nil, nil, Options{})

	q := query(domain.SentinelCI, nil)
	res := r.Resolve(context.Background(), q)

	assert.False(t, res.Found())
	assert.Equal(t, domain.ProvenanceNotFound, res.Source)
	assert.Zero(t, store.exact.Load())
	assert.Zero(t, store.signature.Load(), "no pci, no signature lookup")
}

func TestResolveSentinelLACIsIgnored(t *testing.T) {
	store := newStore()
	seed(store, 100, nil, 35.1, 51.1)

	res := newResolver(store, nil, nil, Options{}).Resolve(context.Background(), query(100, domain.Ptr(domain.SentinelTAC)))

	require.True(t, res.Found())
	assert.Equal(t, int64(1), store.exact.Load(), "only the lac-free lookup runs")
}

func TestResolveSignature(t *testing.T) {
	store := newStore()
	nearRef := domain.Tower{Radio: domain.RadioLTE, MCC: 432, MNC: 35, CellID: 1, PCI: domain.Ptr(17), Lat: 35.70, Lon: 51.40}
	farRef := domain.Tower{Radio: domain.RadioLTE, MCC: 432, MNC: 35, CellID: 2, PCI: domain.Ptr(17), Lat: 36.50, Lon: 52.50}
	near := store.Put(nearRef)
	far := store.Put(farRef)

	q := domain.ResolveQuery{MCC: domain.Ptr(432), MNC: domain.Ptr(35), CellID: domain.Ptr(int64(999)), PCI: domain.Ptr(17)}

	t.Run("nearest to reference", func(t *testing.T) {
		r := newResolver(store, nil, nil, Options{Reference: &geometry.Point{Lat: 35.71, Lon: 51.41}})
		res := r.Resolve(context.Background(), q)
		require.True(t, res.Found())
		assert.Equal(t, domain.ProvenanceSignature, res.Source)
		assert.Equal(t, near.ID, res.Tower.ID)
	})

	t.Run("most recent without reference", func(t *testing.T) {
		r := newResolver(store, nil, nil, Options{})
		res := r.Resolve(context.Background(), q)
		require.True(t, res.Found())
		assert.Equal(t, far.ID, res.Tower.ID, "same timestamp, higher id is newer")
	})

	t.Run("sentinel pci skips signature", func(t *testing.T) {
		sq := q
		sq.PCI = domain.Ptr(domain.SentinelIntMax)
		res := newResolver(store, nil, nil, Options{}).Resolve(context.Background(), sq)
		assert.False(t, res.Found())
	})
}

func TestResolveCachesByFullTuple(t *testing.T) {
	store := newStore()
	seed(store, 100, nil, 35.1, 51.1)
	r := newResolver(store, nil, nil, Options{})
	ctx := context.Background()

	first := r.Resolve(ctx, query(100, nil))
	second := r.Resolve(ctx, query(100, nil))

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), store.exact.Load(), "second call served from cache")

	q := query(100, nil)
	q.AllowExternal = true
	r.Resolve(ctx, q)
	assert.Equal(t, int64(2), store.exact.Load(), "allowExternal is part of the key")

	q.SignalStrength = domain.Ptr(-91)
	r.Resolve(ctx, q)
	assert.Equal(t, int64(3), store.exact.Load(), "signal is part of the key")
}

func TestResolveCachesNotFound(t *testing.T) {
	store := newStore()
	provider := &fakeProvider{name: "COMBAIN", src: domain.SourceCombain}
	r := newResolver(store, []domain.Provider{provider}, nil, Options{})
	q := query(100, nil)
	q.AllowExternal = true

	r.Resolve(context.Background(), q)
	r.Resolve(context.Background(), q)

	assert.Equal(t, int64(1), provider.calls.Load())
}

func TestResolveStoreErrorDegrades(t *testing.T) {
	store := newStore()
	seed(store, 100, nil, 35.1, 51.1)
	store.failWith = errors.New("connection reset")

	res := newResolver(store, nil, nil, Options{}).Resolve(context.Background(), query(100, nil))

	assert.False(t, res.Found())
	assert.Equal(t, domain.ProvenanceNotFound, res.Source)
}

func TestResolveExternalOnlyWhenAllowed(t *testing.T) {
	store := newStore()
	provider := &fakeProvider{name: "COMBAIN", src: domain.SourceCombain, fix: fixAt(35.5, 51.5, nil)}
	r := newResolver(store, []domain.Provider{provider}, nil, Options{})

	res := r.Resolve(context.Background(), query(100, nil))

	assert.False(t, res.Found())
	assert.Zero(t, provider.calls.Load())
}

func TestResolveExternalCreatesTower(t *testing.T) {
	store := newStore()
	acc := 850.7
	provider := &fakeProvider{name: "COMBAIN", src: domain.SourceCombain, fix: fixAt(35.5, 51.5, &acc)}
	r := newResolver(store, []domain.Provider{provider}, store, Options{})

	q := query(100, domain.Ptr(7))
	q.Radio = "wcdma"
	q.PCI = domain.Ptr(44)
	q.AllowExternal = true
	res := r.Resolve(context.Background(), q)

	require.True(t, res.Found())
	assert.Equal(t, "COMBAIN", res.Source)
	assert.Equal(t, domain.RadioUMTS, provider.last.Radio)
	assert.Equal(t, 7, *provider.last.LAC)

	tw := res.Tower
	assert.Equal(t, 35.5, tw.Lat)
	assert.True(t, tw.Approximate)
	assert.Equal(t, 850, *tw.RangeM)
	assert.Equal(t, domain.SourceCombain, tw.Source)
	assert.Equal(t, 1, tw.CheckedCount)
	assert.Zero(t, tw.VerifiedCount)
	assert.Equal(t, 44, *tw.PCI)

	recs := store.Lookups()
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Success)
	assert.Equal(t, "COMBAIN", recs[0].Provider)
	assert.Equal(t, 35.5, *recs[0].Lat)
	assert.Equal(t, "https://provider.test", recs[0].RequestURL)
}

func TestResolveExternalFallsThroughProviders(t *testing.T) {
	store := newStore()
	failing := &fakeProvider{name: "COMBAIN", src: domain.SourceCombain, err: errors.New("HTTP 503")}
	empty := &fakeProvider{name: "EMPTY", src: domain.SourceOther}
	google := &fakeProvider{name: "GOOGLE", src: domain.SourceGoogle, fix: fixAt(35.6, 51.6, nil)}
	r := newResolver(store, []domain.Provider{failing, empty, google}, store, Options{})

	q := query(100, nil)
	q.AllowExternal = true
	res := r.Resolve(context.Background(), q)

	require.True(t, res.Found())
	assert.Equal(t, "GOOGLE", res.Source)
	assert.Equal(t, domain.RadioLTE, google.last.Radio)

	recs := store.Lookups()
	require.Len(t, recs, 3)
	assert.False(t, recs[0].Success)
	assert.Equal(t, "HTTP 503", recs[0].Error)
	assert.False(t, recs[1].Success)
	assert.Equal(t, "EMPTY", recs[1].Provider)
	assert.True(t, recs[2].Success)
}

func TestResolveExternalAllFail(t *testing.T) {
	store := newStore()
	a := &fakeProvider{name: "A", err: errors.New("boom")}
	b := &fakeProvider{name: "B", err: errors.New("bang")}
	r := newResolver(store, []domain.Provider{a, b}, nil, Options{})

	q := query(100, nil)
	q.AllowExternal = true
	res := r.Resolve(context.Background(), q)

	assert.False(t, res.Found())
	assert.Equal(t, domain.ProvenanceNotFound, res.Source)
	assert.Equal(t, int64(1), a.calls.Load(), "no retries")
	assert.Equal(t, int64(1), b.calls.Load())
}

func TestResolveExternalTimeout(t *testing.T) {
	store := newStore()
	slow := &fakeProvider{name: "SLOW", delay: time.Second, fix: fixAt(1, 1, nil)}
	r := newResolver(store, []domain.Provider{slow}, nil, Options{ProviderTimeout: 20 * time.Millisecond})

	q := query(100, nil)
	q.AllowExternal = true

	start := time.Now()
	res := r.Resolve(context.Background(), q)

	assert.False(t, res.Found())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestResolveExternalCanceledContext(t *testing.T) {
	store := newStore()
	slow := &fakeProvider{name: "SLOW", delay: time.Second, fix: fixAt(1, 1, nil)}
	r := newResolver(store, []domain.Provider{slow}, nil, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q := query(100, nil)
	q.AllowExternal = true
	assert.False(t, r.Resolve(ctx, q).Found())
}

func TestResolveAuditFailureIsSwallowed(t *testing.T) {
	store := newStore()
	audit := &failingAudit{}
	provider := &fakeProvider{name: "COMBAIN", src: domain.SourceCombain, fix: fixAt(35.5, 51.5, nil)}
	r := newResolver(store, []domain.Provider{provider}, audit, Options{})

	q := query(100, nil)
	q.AllowExternal = true
	res := r.Resolve(context.Background(), q)

	require.True(t, res.Found())
	assert.Equal(t, int64(1), audit.calls.Load())
}

func TestResolveStalledAuditDoesNotBlock(t *testing.T) {
	store := newStore()
	audit := &stallingAudit{}
	provider := &fakeProvider{name: "COMBAIN", src: domain.SourceCombain, fix: fixAt(35.5, 51.5, nil)}
	r := newResolver(store, []domain.Provider{provider}, audit, Options{
		ProviderTimeout: 100 * time.Millisecond,
		AuditTimeout:    50 * time.Millisecond,
	})

	q := query(100, nil)
	q.AllowExternal = true
	start := time.Now()
	res := r.Resolve(context.Background(), q)
	elapsed := time.Since(start)

	require.True(t, res.Found())
	assert.Equal(t, "COMBAIN", res.Source)
	assert.Equal(t, int64(1), audit.calls.Load())
	assert.Less(t, elapsed, time.Second)
}

func TestNewAppliesDefaultAuditTimeout(t *testing.T) {
	r := newResolver(newStore(), nil, nil, Options{})
	assert.Equal(t, DefaultAuditTimeout, r.opts.AuditTimeout)
}

func TestResolveExternalUpdatesExistingTower(t *testing.T) {
	store := newStore()
	existing := store.Put(domain.Tower{
		Radio: domain.RadioLTE, MCC: 432, MNC: 35, CellID: 100, LAC: domain.Ptr(5),
		Lat: 35.0, Lon: 51.0, Source: domain.SourceOpenCellID, CheckedCount: 4,
	})

	provider := &fakeProvider{name: "GOOGLE", src: domain.SourceGoogle, fix: fixAt(35.3, 51.3, domain.Ptr(120.0))}
	r := newResolver(&missingStore{store}, []domain.Provider{provider}, nil, Options{})

	q := query(100, domain.Ptr(5))
	q.AllowExternal = true
	res := r.Resolve(context.Background(), q)

	require.True(t, res.Found())
	assert.Equal(t, existing.ID, res.Tower.ID)
	assert.Equal(t, 35.3, res.Tower.Lat)
	assert.Equal(t, 120, *res.Tower.RangeM)
	assert.Equal(t, domain.SourceGoogle, res.Tower.Source)
	assert.True(t, res.Tower.Approximate)
	assert.Equal(t, 5, res.Tower.CheckedCount)
}

func TestResolveExternalNeverMovesManualTower(t *testing.T) {
	store := newStore()
	manual := store.Put(domain.Tower{
		Radio: domain.RadioLTE, MCC: 432, MNC: 35, CellID: 100,
		Lat: 35.0, Lon: 51.0, Source: domain.SourceManual,
	})
	provider := &fakeProvider{name: "COMBAIN", src: domain.SourceCombain, fix: fixAt(40.0, 60.0, domain.Ptr(500.0))}
	r := newResolver(&missingStore{store}, []domain.Provider{provider}, nil, Options{})

	q := query(100, nil)
	q.AllowExternal = true
	res := r.Resolve(context.Background(), q)

	require.True(t, res.Found())
	assert.Equal(t, manual.ID, res.Tower.ID)
	assert.Equal(t, 35.0, res.Tower.Lat)
	assert.Equal(t, 51.0, res.Tower.Lon)
	assert.Equal(t, domain.SourceManual, res.Tower.Source)
	assert.Equal(t, 1, res.Tower.CheckedCount)
}

// missingStore hides existing rows from lookups so resolution reaches the
// providers, while writes still hit the underlying store.
type missingStore struct{ *countingStore }

func (missingStore) FindExact(context.Context, int, int, int64, *int) (*domain.Tower, error) {
	return nil, nil
}

func (missingStore) FindBySignature(context.Context, domain.SignatureQuery) ([]domain.Tower, error) {
	return nil, nil
}

func TestProviderPatch(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	acc := 300.0

	tests := []struct {
		name       string
		existing   domain.Tower
		fix        domain.ProviderFix
		wantCoords bool
		wantRange  bool
		wantSource bool
	}{
		{
			name:       "moved tower",
			existing:   domain.Tower{Lat: 1, Lon: 1, Source: domain.SourceMLS, RangeM: domain.Ptr(100)},
			fix:        domain.ProviderFix{Lat: 2, Lon: 2, AccuracyM: &acc},
			wantCoords: true,
			wantSource: true,
		},
		{
			name:     "same coordinates",
			existing: domain.Tower{Lat: 2, Lon: 2, Source: domain.SourceMLS, RangeM: domain.Ptr(100)},
			fix:      domain.ProviderFix{Lat: 2, Lon: 2, AccuracyM: &acc},
		},
		{
			name:       "fills missing range",
			existing:   domain.Tower{Lat: 2, Lon: 2, Source: domain.SourceMLS},
			fix:        domain.ProviderFix{Lat: 2, Lon: 2, AccuracyM: &acc},
			wantRange:  true,
			wantSource: true,
		},
		{
			name:      "manual keeps coordinates and source",
			existing:  domain.Tower{Lat: 1, Lon: 1, Source: domain.SourceManual},
			fix:       domain.ProviderFix{Lat: 9, Lon: 9, AccuracyM: &acc},
			wantRange: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := providerPatch(tt.existing, tt.fix, domain.SourceGoogle, now)

			assert.Equal(t, 1, p.CheckedDelta)
			assert.Equal(t, now, p.UpdatedAt)
			assert.Equal(t, tt.wantCoords, p.Lat != nil && p.Lon != nil)
			assert.Equal(t, tt.wantRange, p.RangeM != nil)
			assert.Equal(t, tt.wantSource, p.Source != nil)
			assert.Equal(t, tt.wantSource, p.Approximate != nil)
		})
	}
}
