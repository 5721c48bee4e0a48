// Package snapshot turns device snapshot documents into cell observations.
//
// A snapshot is the JSON a handset agent uploads: the phone's own fix under
// location.selected_* and the radio state under raw_data.cellTowerInfo.
// Field types vary between agent versions, so numeric fields accept numbers,
// numeric strings and null.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

// maxTableCells caps how many raw cells Cells returns.
const maxTableCells = 500

// Document is a device snapshot.
type Document struct {
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
	Location  *deviceLocation `json:"location"`
	RawData   struct {
		CellTowerInfo cellTowerInfo `json:"cellTowerInfo"`
	} `json:"raw_data"`
}

type deviceLocation struct {
	Latitude  optFloat        `json:"selected_latitude"`
	Longitude optFloat        `json:"selected_longitude"`
	Accuracy  optFloat        `json:"selected_accuracy"`
	Type      json.RawMessage `json:"selected_location_type"`
}

type cellTowerInfo struct {
	SimOperator     json.RawMessage   `json:"simOperator"`
	NetworkOperator json.RawMessage   `json:"networkOperator"`
	AllCellInfo     []json.RawMessage `json:"allCellInfo"`
}

// RawCell is one entry of allCellInfo as the device reported it. Index is
// its position in the original array.
type RawCell struct {
	Index          int     `json:"idx"`
	Type           string  `json:"type"`
	Registered     *bool   `json:"registered"`
	MCC            OptInt  `json:"mcc"`
	MNC            OptInt  `json:"mnc"`
	CI             OptInt  `json:"ci"`
	CID            OptInt  `json:"cid"`
	CellID         OptInt  `json:"cellId"`
	CellIDSnake    OptInt  `json:"cell_id"`
	TAC            OptInt  `json:"tac"`
	LAC            OptInt  `json:"lac"`
	PCI            OptInt  `json:"pci"`
	PSC            OptInt  `json:"psc"`
	EARFCN         OptInt  `json:"earfcn"`
	UARFCN         OptInt  `json:"uarfcn"`
	ARFCN          OptInt  `json:"arfcn"`
	RSRP           OptInt  `json:"rsrp"`
	DBM            OptInt  `json:"dbm"`
	SignalStrength OptInt  `json:"signalStrength"`
	RSRQ           OptInt  `json:"rsrq"`
	TA             OptInt  `json:"ta"`
	MTa            OptInt  `json:"mTa"`
	TimingAdvance  OptInt  `json:"timingAdvance"`
	AlphaLong      *string `json:"alphaLong"`
	AlphaShort     *string `json:"alphaShort"`
	Bandwidth      OptInt  `json:"bandwidth"`
	Level          OptInt  `json:"level"`
}

// Cells returns the object entries of allCellInfo, at most 500.
func (d *Document) Cells() []RawCell {
	var out []RawCell
	for i, raw := range d.RawData.CellTowerInfo.AllCellInfo {
		if i >= maxTableCells {
			break
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || raw[0] != '{' {
			continue
		}
		var c RawCell
		if err := json.Unmarshal(raw, &c); err != nil {
			var typeErr *json.UnmarshalTypeError
			if !errors.As(err, &typeErr) {
				continue
			}
		}
		c.Index = i
		out = append(out, c)
	}
	return out
}

// OptInt is an integer that may be absent, null, a number or a numeric string.
type OptInt struct {
	Value int64
	Valid bool
}

func (o *OptInt) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(strings.Trim(string(b), `"`))
	if s == "" || s == "null" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*o = OptInt{Value: n, Valid: true}
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		*o = OptInt{Value: int64(f), Valid: true}
	}
	return nil
}

func (o OptInt) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return strconv.AppendInt(nil, o.Value, 10), nil
}

func (o OptInt) Int() *int {
	if !o.Valid {
		return nil
	}
	v := int(o.Value)
	return &v
}

func (o OptInt) Int64() *int64 {
	if !o.Valid {
		return nil
	}
	v := o.Value
	return &v
}

// first returns the first valid value.
func first(vals ...OptInt) OptInt {
	for _, v := range vals {
		if v.Valid {
			return v
		}
	}
	return OptInt{}
}

// optFloat is the floating-point counterpart of OptInt.
type optFloat struct {
	Value float64
	Valid bool
}

func (o *optFloat) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(strings.Trim(string(b), `"`))
	if s == "" || s == "null" {
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		*o = optFloat{Value: f, Valid: true}
	}
	return nil
}
