package domain

// Provenance labels for resolved towers. External providers use their own
// name (e.g. "COMBAIN", "GOOGLE").
const (
	ProvenanceLocal     = "LOCAL_DB"
	ProvenanceSignature = "LOCAL_DB_SIGNATURE"
	ProvenanceNotFound  = "NOT_FOUND"
)

// ResolveQuery is the identity and context of a single resolution.
type ResolveQuery struct {
	Radio          Radio
	MCC            *int
	MNC            *int
	CellID         *int64
	LAC            *int
	PCI            *int
	EARFCN         *int
	SignalStrength *int
	AllowExternal  bool
}

// QueryFromObservation builds a ResolveQuery from a device observation.
func QueryFromObservation(c CellObservation, allowExternal bool) ResolveQuery {
	return ResolveQuery{
		Radio:          c.Radio,
		MCC:            c.MCC,
		MNC:            c.MNC,
		CellID:         c.CellID,
		LAC:            c.LAC,
		PCI:            c.PCI,
		EARFCN:         c.EARFCN,
		SignalStrength: c.SignalStrength,
		AllowExternal:  allowExternal,
	}
}

// ResolveResult pairs a possibly-nil tower with the provenance that produced it.
type ResolveResult struct {
	Tower  *Tower `json:"tower"`
	Source string `json:"source"`
}

// Found reports whether a tower was resolved.
func (r ResolveResult) Found() bool {
	return r.Tower != nil
}
