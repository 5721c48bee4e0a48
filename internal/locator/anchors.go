package locator

import (
	"context"
	"fmt"

	"github.com/couchcryptid/cell-locator/internal/cleaner"
	"github.com/couchcryptid/cell-locator/internal/domain"
)

// BuildAnchorMarkers resolves up to limit cleaned observations, in input
// order, into tower markers for display. Unresolved cells are skipped.
func (l *Locator) BuildAnchorMarkers(ctx context.Context, cells []domain.CellObservation, limit int, opts Options) []domain.AnchorMarker {
	cleaned := cleaner.Clean(cells)
	limit = max(0, min(limit, len(cleaned)))
	res := l.NewResolver(opts.Reference)

	anchors := make([]domain.AnchorMarker, 0, limit)
	for i, c := range cleaned[:limit] {
		rr := res.Resolve(ctx, domain.QueryFromObservation(c, opts.allowExternal(c)))
		if !rr.Found() {
			continue
		}
		anchors = append(anchors, domain.AnchorMarker{
			ID:      fmt.Sprintf("snap:%d", i),
			Radio:   c.Radio,
			MCC:     c.MCC,
			MNC:     c.MNC,
			LAC:     c.LAC,
			CellID:  c.CellID,
			PCI:     c.PCI,
			EARFCN:  c.EARFCN,
			Lat:     rr.Tower.Lat,
			Lon:     rr.Tower.Lon,
			TxPower: rr.Tower.TxPower,
			Source:  rr.Source,
			RSRP:    c.SignalStrength,
		})
	}
	return anchors
}
