package domain

// Strategy labels for multi-tower results.
const (
	StrategyComposite        = "COMPOSITE"
	StrategyTrilateration    = "TRILATERATION"
	StrategyFallbackCentroid = "FALLBACK_CENTROID"
)

// Confidence is a qualitative confidence level.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Location is a WGS84 coordinate. Google holds "lat,lon" for pasting into maps.
type Location struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Google string  `json:"google"`
}

// Debug explains how a LocateResult was produced.
type Debug struct {
	Source      string      `json:"source"`
	BearingUsed *float64    `json:"bearingUsed"`
	Signal      *int        `json:"signal"`
	Confidence  *Confidence `json:"confidence,omitempty"`
}

// LocateResult is a position estimate with its uncertainty radius in meters.
type LocateResult struct {
	Location Location `json:"location"`
	Radius   float64  `json:"radius"`
	Debug    Debug    `json:"debug"`
}

// AnchorMarker is a resolved tower paired with the observation that named it,
// used only for visualization.
type AnchorMarker struct {
	ID      string  `json:"id"`
	Radio   Radio   `json:"radioType,omitempty"`
	MCC     *int    `json:"mcc"`
	MNC     *int    `json:"mnc"`
	LAC     *int    `json:"lac"`
	CellID  *int64  `json:"cellId"`
	PCI     *int    `json:"pci"`
	EARFCN  *int    `json:"earfcn"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	TxPower *int    `json:"txPower"`
	Source  string  `json:"source"`
	RSRP    *int    `json:"rsrp"`
}
