package snapshot

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/couchcryptid/cell-locator/internal/domain"
)

// DefaultMaxCells is the extraction cap when the caller gives none.
const DefaultMaxCells = 12

// Operator returns the network codes to substitute for sentinel MCC/MNC
// values: simOperator (or networkOperator) split after three digits, else
// the codes of the first registered cell that has real ones.
func (d *Document) Operator() (mcc, mnc *int) {
	cti := d.RawData.CellTowerInfo
	op := operatorString(cti.SimOperator)
	if op == "" {
		op = operatorString(cti.NetworkOperator)
	}
	if op == "" {
		for _, c := range d.Cells() {
			if c.Registered != nil && !*c.Registered {
				continue
			}
			if realCode(c.MCC) && realCode(c.MNC) {
				return c.MCC.Int(), c.MNC.Int()
			}
		}
		return nil, nil
	}
	if len(op) < 4 || strings.Trim(op, "0123456789") != "" {
		return nil, nil
	}
	m, err1 := strconv.Atoi(op[:3])
	n, err2 := strconv.Atoi(op[3:])
	if err1 != nil || err2 != nil {
		return nil, nil
	}
	return &m, &n
}

func operatorString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func realCode(v OptInt) bool {
	return v.Valid && v.Value != domain.SentinelIntMax
}

// Observation maps the raw cell to an observation using the field names of
// its radio type. Sentinel MCC/MNC are replaced by the given defaults and a
// sentinel LAC becomes absent.
func (c RawCell) Observation(defaultMCC, defaultMNC *int) domain.CellObservation {
	obs := domain.CellObservation{
		Radio:      c.Radio(),
		MCC:        c.MCC.Int(),
		MNC:        c.MNC.Int(),
		RSRQ:       c.RSRQ.Int(),
		Registered: c.Registered,
	}
	if !realCode(c.MCC) && defaultMCC != nil {
		obs.MCC = domain.Ptr(*defaultMCC)
	}
	if !realCode(c.MNC) && defaultMNC != nil {
		obs.MNC = domain.Ptr(*defaultMNC)
	}

	var lac OptInt
	switch obs.Radio {
	case domain.RadioUMTS:
		obs.CellID = first(c.CID, c.CI).Int64()
		lac = c.LAC
		obs.PCI = c.PSC.Int()
		obs.EARFCN = c.UARFCN.Int()
		obs.SignalStrength = c.DBM.Int()
	case domain.RadioGSM:
		obs.CellID = first(c.CID, c.CI).Int64()
		lac = c.LAC
		obs.EARFCN = c.ARFCN.Int()
		obs.SignalStrength = c.DBM.Int()
		obs.TimingAdvance = first(c.MTa, c.TA, c.TimingAdvance).Int()
	default:
		obs.CellID = first(c.CI, c.CellID, c.CellIDSnake, c.CID).Int64()
		lac = first(c.TAC, c.LAC)
		obs.PCI = first(c.PCI, c.PSC).Int()
		obs.EARFCN = first(c.EARFCN, c.UARFCN, c.ARFCN).Int()
		obs.SignalStrength = first(c.RSRP, c.DBM, c.SignalStrength).Int()
		obs.TimingAdvance = first(c.TA, c.TimingAdvance).Int()
	}
	if lac.Valid && lac.Value != domain.SentinelTAC && lac.Value != domain.SentinelIntMax {
		obs.LAC = lac.Int()
	}
	return obs
}

// Radio maps the device's cell type label ("CellInfoLte", "wcdma", ...) to a radio tag.
func (c RawCell) Radio() domain.Radio {
	t := strings.ToLower(c.Type)
	switch {
	case strings.Contains(t, "wcdma"), strings.Contains(t, "umts"):
		return domain.RadioUMTS
	case strings.Contains(t, "gsm"):
		return domain.RadioGSM
	case strings.Contains(t, "nr"):
		return domain.RadioNR
	default:
		return domain.RadioLTE
	}
}

func (c RawCell) extractable() bool {
	t := strings.ToLower(c.Type)
	for _, k := range []string{"lte", "wcdma", "umts", "gsm"} {
		if strings.Contains(t, k) {
			return true
		}
	}
	return false
}

// Extract returns the LTE, WCDMA and GSM cells of the snapshot as
// observations, strongest first, capped at maxCells (at least one). Cells
// lacking MCC, MNC or cell ID after operator substitution are dropped, as
// are unregistered cells when registeredOnly is set.
func Extract(d *Document, registeredOnly bool, maxCells int) []domain.CellObservation {
	defMCC, defMNC := d.Operator()

	var out []domain.CellObservation
	for _, c := range d.Cells() {
		if registeredOnly && c.Registered != nil && !*c.Registered {
			continue
		}
		if !c.extractable() {
			continue
		}
		obs := c.Observation(defMCC, defMNC)
		if obs.MCC == nil || obs.MNC == nil || obs.CellID == nil {
			continue
		}
		out = append(out, obs)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].SignalStrength, out[j].SignalStrength
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		return *a > *b
	})
	if maxCells < 1 {
		maxCells = 1
	}
	if len(out) > maxCells {
		out = out[:maxCells]
	}
	return out
}

// PhoneLocation is the device's own position fix, used as ground truth.
type PhoneLocation struct {
	Lat       float64         `json:"lat"`
	Lon       float64         `json:"lng"`
	Accuracy  *float64        `json:"accuracy"`
	Type      json.RawMessage `json:"type"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// PhoneLocation returns the snapshot's selected location, or nil when it
// has no latitude or longitude.
func (d *Document) PhoneLocation() *PhoneLocation {
	loc := d.Location
	if loc == nil || !loc.Latitude.Valid || !loc.Longitude.Valid {
		return nil
	}
	p := &PhoneLocation{
		Lat:       loc.Latitude.Value,
		Lon:       loc.Longitude.Value,
		Type:      nullIfEmpty(loc.Type),
		Timestamp: nullIfEmpty(d.Timestamp),
	}
	if loc.Accuracy.Valid {
		p.Accuracy = domain.Ptr(loc.Accuracy.Value)
	}
	return p
}

func nullIfEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
