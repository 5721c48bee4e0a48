package domain

import "time"

// DatasetSource records where a tower's coordinates came from.
type DatasetSource string

const (
	SourceMLS        DatasetSource = "MLS"
	SourceOpenCellID DatasetSource = "OPENCELLID"
	SourceManual     DatasetSource = "MANUAL"
	SourceGoogle     DatasetSource = "GOOGLE"
	SourceCombain    DatasetSource = "COMBAIN"
	SourceOther      DatasetSource = "OTHER"
)

// ParseDatasetSource maps a free-form label to a DatasetSource, defaulting to OTHER.
func ParseDatasetSource(s string) DatasetSource {
	switch DatasetSource(s) {
	case SourceMLS, SourceOpenCellID, SourceManual, SourceGoogle, SourceCombain:
		return DatasetSource(s)
	}
	return SourceOther
}

// Tower is a cell tower as held by the tower store.
type Tower struct {
	ID             int64         `json:"id"`
	Radio          Radio         `json:"radioType"`
	MCC            int           `json:"mcc"`
	MNC            int           `json:"mnc"`
	LAC            *int          `json:"lac"`
	CellID         int64         `json:"cellId"`
	PCI            *int          `json:"pci"`
	EARFCN         *int          `json:"earfcn"`
	RangeM         *int          `json:"rangeM"`
	Approximate    bool          `json:"isApproximate"`
	Samples        *int          `json:"samples"`
	Lat            float64       `json:"lat"`
	Lon            float64       `json:"lon"`
	TxPower        *int          `json:"txPower"`
	AntennaAzimuth *int          `json:"antennaAzimuth"`
	Source         DatasetSource `json:"source"`
	CheckedCount   int           `json:"checkedCount"`
	VerifiedCount  int           `json:"verifiedCount"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// Key returns the tower's unique identity.
func (t Tower) Key() TowerKey {
	k := TowerKey{MCC: t.MCC, MNC: t.MNC, CellID: t.CellID}
	if t.LAC != nil {
		k.LAC = *t.LAC
		k.HasLAC = true
	}
	return k
}

// TowerKey is the comparable form of (MCC, MNC, cell ID, LAC).
type TowerKey struct {
	MCC    int
	MNC    int
	CellID int64
	LAC    int
	HasLAC bool
}

// LACPtr returns the key's LAC or nil when the key has none.
func (k TowerKey) LACPtr() *int {
	if !k.HasLAC {
		return nil
	}
	lac := k.LAC
	return &lac
}

// TowerPatch is a partial update. Nil fields are left unchanged.
type TowerPatch struct {
	Lat          *float64
	Lon          *float64
	RangeM       *int
	Source       *DatasetSource
	Approximate  *bool
	CheckedDelta int
	UpdatedAt    time.Time
}

// SignatureQuery selects neighbor-cell candidates sharing (MCC, MNC, PCI),
// optionally narrowed by EARFCN and LAC.
type SignatureQuery struct {
	MCC    int
	MNC    int
	PCI    int
	EARFCN *int
	LAC    *int
	Limit  int
}

// SearchQuery selects towers by identity fields. Nil fields are not filtered on.
type SearchQuery struct {
	MCC    int
	MNC    int
	LAC    *int
	PCI    *int
	CellID *int64
	Limit  int
}

// Bounds is a latitude/longitude bounding box.
type Bounds struct {
	MinLat float64 `json:"minLat"`
	MaxLat float64 `json:"maxLat"`
	MinLon float64 `json:"minLon"`
	MaxLon float64 `json:"maxLon"`
}

// Valid reports whether the box is well-formed and within WGS84 ranges.
func (b Bounds) Valid() bool {
	return b.MinLat <= b.MaxLat && b.MinLon <= b.MaxLon &&
		b.MinLat >= -90 && b.MaxLat <= 90 && b.MinLon >= -180 && b.MaxLon <= 180
}
