package geometry

import "math"

type lteBand struct {
	name   string
	offset int
	low    int
	high   int
	dlLow  float64 // MHz
}

var lteBands = []lteBand{
	{"B1", 0, 0, 599, 2110},
	{"B3", 1200, 1200, 1949, 1805},
	{"B7", 2750, 2750, 3449, 2620},
	{"B8", 3450, 3450, 3799, 925},
	{"B20", 6150, 6150, 6449, 791},
}

// EARFCNToFrequencyMHz converts a downlink EARFCN to MHz for bands
// B1/B3/B7/B8/B20. Values in 70..6000 are taken to already be MHz.
func EARFCNToFrequencyMHz(earfcn int) (float64, bool) {
	if earfcn >= 70 && earfcn <= 6000 {
		return float64(earfcn), true
	}
	for _, b := range lteBands {
		if earfcn >= b.low && earfcn <= b.high {
			return b.dlLow + 0.1*float64(earfcn-b.offset), true
		}
	}
	return 0, false
}

// LinkBudget holds the antenna gains and losses used by EstimateRefLoss.
type LinkBudget struct {
	TxGainDBi    float64 `json:"txGainDbi"`
	RxGainDBi    float64 `json:"rxGainDbi"`
	SystemLossDB float64 `json:"systemLossDb"`
}

// DefaultLinkBudget is a typical macro-cell sector antenna and handset.
var DefaultLinkBudget = LinkBudget{TxGainDBi: 15, RxGainDBi: 0, SystemLossDB: 3}

// EstimateRefLoss returns the path-loss reference (dB at 1 m) for the
// carrier: free-space loss at 1 m minus antenna gains plus system losses.
func EstimateRefLoss(earfcn int, lb LinkBudget) (float64, bool) {
	f, ok := EARFCNToFrequencyMHz(earfcn)
	if !ok {
		return 0, false
	}
	return RefLossAtFrequency(f, lb), true
}

// RefLossAtFrequency is EstimateRefLoss for a carrier already given in MHz.
func RefLossAtFrequency(freqMHz float64, lb LinkBudget) float64 {
	fspl := 20*math.Log10(freqMHz) + 32.44
	return fspl - lb.TxGainDBi - lb.RxGainDBi + lb.SystemLossDB
}
