package geometry

import "math"

// Path-loss distance bounds in meters.
const (
	MinPathLossDistance = 10.0
	MaxPathLossDistance = 50000.0
	// FallbackDistance is used when no signal strength is known.
	FallbackDistance = 500.0
)

// MetersPerTimingAdvance is the LTE timing-advance step.
const MetersPerTimingAdvance = 78.0

const maxTimingAdvance = 10000

// PathLoss parameterizes the log-distance model
// PL = TxPower - RSRP = RefLoss + 10·Exponent·log10(d).
type PathLoss struct {
	TxPower  float64 // dBm
	Exponent float64
	RefLoss  float64 // dB
}

// DefaultPathLoss is tuned for dense urban LTE.
var DefaultPathLoss = PathLoss{TxPower: 40, Exponent: 5.2, RefLoss: 80}

// WithTxPower returns p with the transmit power replaced when tx is known.
func (p PathLoss) WithTxPower(tx *int) PathLoss {
	if tx != nil {
		p.TxPower = float64(*tx)
	}
	return p
}

// Distance inverts the model for rsrp (dBm), clamped to
// [MinPathLossDistance, MaxPathLossDistance]. The sign of rsrp is ignored.
// A nil rsrp yields FallbackDistance.
func (p PathLoss) Distance(rsrp *int) float64 {
	if rsrp == nil || p.Exponent == 0 {
		return FallbackDistance
	}
	rx := -math.Abs(float64(*rsrp))
	d := math.Pow(10, (p.TxPower-rx-p.RefLoss)/(10*p.Exponent))
	if math.IsNaN(d) {
		return FallbackDistance
	}
	return math.Max(MinPathLossDistance, math.Min(d, MaxPathLossDistance))
}

// TimingAdvanceDistance converts an LTE timing advance into meters. TA 0 is
// treated as 1 so the radius is never zero. Values outside [0, 10000] are unknown.
func TimingAdvanceDistance(ta *int) (float64, bool) {
	if ta == nil || *ta < 0 || *ta > maxTimingAdvance {
		return 0, false
	}
	return float64(max(*ta, 1)) * MetersPerTimingAdvance, true
}

// sectorBearings maps the last decimal digit of the sector byte to degrees.
// Entries 1 and 3 are both 225; kept as-is for compatibility with existing data.
var sectorBearings = [10]float64{315, 225, 135, 225, 0, 90, 180, 270, 45, 135}

// EstimateBearingFromCellID guesses a sector azimuth from the low byte of the
// cell ID. Only used when no antenna azimuth is recorded.
func EstimateBearingFromCellID(cellID int64) float64 {
	if cellID == 0 {
		return 0
	}
	sector := ((cellID % 256) + 256) % 256
	return sectorBearings[sector%10]
}

// AzimuthOrEstimate returns the recorded antenna azimuth when present,
// otherwise the cell-ID heuristic.
func AzimuthOrEstimate(azimuth *int, cellID int64) float64 {
	if azimuth != nil {
		return float64(*azimuth)
	}
	return EstimateBearingFromCellID(cellID)
}
