package domain

import "strings"

// Sentinel values emitted by device radios for unknown fields.
const (
	SentinelIntMax = 2147483647
	SentinelTAC    = 65535
	SentinelCI     = 268435455
)

// Plausible signal strength band in dBm.
const (
	MinSignalDBm = -140
	MaxSignalDBm = -20
)

// Radio is a radio access technology tag.
type Radio string

const (
	RadioGSM  Radio = "gsm"
	RadioUMTS Radio = "umts"
	RadioLTE  Radio = "lte"
	RadioNR   Radio = "nr"
)

// NormalizeRadio maps the many spellings devices and datasets use onto the
// four canonical tags. Anything unrecognized is treated as LTE.
func NormalizeRadio(s string) Radio {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gsm", "2g":
		return RadioGSM
	case "umts", "wcdma", "3g":
		return RadioUMTS
	case "nr", "5g":
		return RadioNR
	default:
		return RadioLTE
	}
}

// IsSentinel reports whether v is one of the placeholder values radios emit
// for unknown identity fields.
func IsSentinel(v int64) bool {
	return v == SentinelIntMax || v == SentinelTAC || v == SentinelCI
}

// CellObservation is one cell as reported by a device. Optional fields are nil
// when the device did not report them.
type CellObservation struct {
	Radio          Radio  `json:"radioType,omitempty"`
	MCC            *int   `json:"mcc"`
	MNC            *int   `json:"mnc"`
	CellID         *int64 `json:"cellId"`
	LAC            *int   `json:"lac,omitempty"`
	PCI            *int   `json:"pci,omitempty"`
	EARFCN         *int   `json:"earfcn,omitempty"`
	SignalStrength *int   `json:"signalStrength"`
	RSRQ           *int   `json:"rsrq,omitempty"`
	TimingAdvance  *int   `json:"timingAdvance,omitempty"`
	Registered     *bool  `json:"registered,omitempty"`
}

// Serving reports whether the observation is the serving cell. Cells that do
// not say are assumed to be serving.
func (c CellObservation) Serving() bool {
	return c.Registered == nil || *c.Registered
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
