// Package cleaner filters device cell reports down to observations that are
// safe to resolve and position with.
package cleaner

import "github.com/couchcryptid/cell-locator/internal/domain"

// IsValid reports whether an observation has a usable identity and a
// plausible signal strength. Out-of-band signals are rejected, not clamped.
func IsValid(c domain.CellObservation) bool {
	if c.MCC == nil || *c.MCC == domain.SentinelIntMax {
		return false
	}
	if c.MNC == nil || *c.MNC == domain.SentinelIntMax {
		return false
	}
	if c.CellID == nil || *c.CellID == domain.SentinelIntMax || *c.CellID == domain.SentinelCI {
		return false
	}
	if c.LAC != nil && *c.LAC == domain.SentinelTAC {
		return false
	}
	if c.SignalStrength == nil {
		return false
	}
	s := *c.SignalStrength
	return s >= domain.MinSignalDBm && s <= domain.MaxSignalDBm
}

// Clean returns the valid observations in their original order.
func Clean(cells []domain.CellObservation) []domain.CellObservation {
	out := make([]domain.CellObservation, 0, len(cells))
	for _, c := range cells {
		if IsValid(c) {
			out = append(out, c)
		}
	}
	return out
}
