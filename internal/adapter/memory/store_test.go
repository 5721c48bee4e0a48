package memory

import (
	"context"
	"testing"
	"time"

	"github.com/couchcryptid/cell-locator/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

func newStore() (*TowerStore, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(epoch)
	return NewTowerStore(clock), clock
}

func tower(cellID int64, lac *int) domain.Tower {
	return domain.Tower{Radio: domain.RadioLTE, MCC: 432, MNC: 35, CellID: cellID, LAC: lac, Lat: 35.7, Lon: 51.4, Source: domain.SourceOpenCellID}
}

func TestFindExact(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore()
	a := s.Put(tower(100, domain.Ptr(1)))
	s.Put(tower(100, domain.Ptr(2)))

	got, err := s.FindExact(ctx, 432, 35, 100, domain.Ptr(2))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, *got.LAC)

	got, err = s.FindExact(ctx, 432, 35, 100, nil)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID, "lowest id wins when lac is ignored")

	got, err = s.FindExact(ctx, 432, 35, 100, domain.Ptr(3))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindBySignatureNewestFirst(t *testing.T) {
	ctx := context.Background()
	s, clock := newStore()

	for i := range 5 {
		tw := tower(int64(200+i), domain.Ptr(9))
		tw.PCI = domain.Ptr(17)
		tw.EARFCN = domain.Ptr(1850)
		s.Put(tw)
		clock.Advance(time.Minute)
	}
	other := tower(300, nil)
	other.PCI = domain.Ptr(17)
	other.EARFCN = domain.Ptr(3000)
	s.Put(other)

	got, err := s.FindBySignature(ctx, domain.SignatureQuery{MCC: 432, MNC: 35, PCI: 17, EARFCN: domain.Ptr(1850), Limit: 3})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(204), got[0].CellID)
	assert.Equal(t, int64(203), got[1].CellID)

	got, err = s.FindBySignature(ctx, domain.SignatureQuery{MCC: 432, MNC: 35, PCI: 17, LAC: domain.Ptr(9)})
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestGetOrCreateAndPatch(t *testing.T) {
	ctx := context.Background()
	s, clock := newStore()

	created, ok, err := s.GetOrCreate(ctx, tower(1, nil))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, epoch, created.CreatedAt)

	again, ok, err := s.GetOrCreate(ctx, tower(1, nil))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, created.ID, again.ID)

	clock.Advance(time.Hour)
	lat := 36.0
	patched, err := s.ApplyPatch(ctx, created.ID, domain.TowerPatch{Lat: &lat, CheckedDelta: 1})
	require.NoError(t, err)
	assert.Equal(t, 36.0, patched.Lat)
	assert.Equal(t, 51.4, patched.Lon)
	assert.Equal(t, 1, patched.CheckedCount)
	assert.Equal(t, epoch.Add(time.Hour), patched.UpdatedAt)

	_, err = s.ApplyPatch(ctx, 999, domain.TowerPatch{})
	assert.Error(t, err)
}

func TestBatchOperations(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore()

	n, err := s.InsertTowers(ctx, []domain.Tower{tower(1, nil), tower(2, domain.Ptr(5)), tower(1, nil)})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	keys := []domain.TowerKey{tower(1, nil).Key(), tower(2, domain.Ptr(5)).Key(), tower(3, nil).Key()}
	found, err := s.FindByKeys(ctx, keys)
	require.NoError(t, err)
	assert.Len(t, found, 2)

	existing := found[keys[1]]
	existing.Samples = domain.Ptr(40)
	require.NoError(t, s.UpdateTowers(ctx, []domain.Tower{existing}))

	got, err := s.FindExact(ctx, 432, 35, 2, domain.Ptr(5))
	require.NoError(t, err)
	assert.Equal(t, 40, *got.Samples)
}

func TestSearchAndBounds(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore()
	near := tower(1, domain.Ptr(7))
	near.PCI = domain.Ptr(3)
	far := tower(2, domain.Ptr(7))
	far.Lat, far.Lon = 10, 10
	s.Put(near)
	s.Put(far)

	got, err := s.Search(ctx, domain.SearchQuery{MCC: 432, MNC: 35, LAC: domain.Ptr(7)})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.Search(ctx, domain.SearchQuery{MCC: 432, MNC: 35, PCI: domain.Ptr(3)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].CellID)

	got, err = s.WithinBounds(ctx, domain.Bounds{MinLat: 35, MaxLat: 36, MinLon: 51, MaxLon: 52}, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].CellID)
}

func TestRecordLookup(t *testing.T) {
	s, _ := newStore()
	require.NoError(t, s.RecordLookup(context.Background(), domain.LookupRecord{Provider: "COMBAIN", Success: true}))

	recs := s.Lookups()
	require.Len(t, recs, 1)
	assert.Equal(t, "COMBAIN", recs[0].Provider)
}

func TestRecentLookups(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore()
	for _, p := range []string{"COMBAIN", "GOOGLE", "COMBAIN"} {
		require.NoError(t, s.RecordLookup(ctx, domain.LookupRecord{Provider: p, MCC: 432, MNC: 35, CellID: 7}))
	}
	require.NoError(t, s.RecordLookup(ctx, domain.LookupRecord{Provider: "GOOGLE", MCC: 432, MNC: 35, CellID: 8}))

	recs, err := s.RecentLookups(ctx, 432, 35, 7, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "COMBAIN", recs[0].Provider)
	assert.Equal(t, "GOOGLE", recs[1].Provider)
}
