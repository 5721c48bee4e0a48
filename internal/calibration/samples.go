package calibration

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var sampleColumns = []string{"tower_lat", "tower_lon", "rsrp", "user_lat", "user_lon"}

// ReadSamples parses a CSV of ground-truth samples. The columns tower_lat,
// tower_lon, rsrp, user_lat and user_lon are required; tx and ref_loss are
// optional per row.
func ReadSamples(r io.Reader) ([]Sample, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read samples header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range sampleColumns {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("samples CSV has no %s column", c)
		}
	}

	var out []Sample
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read samples: %w", err)
		}
		line, _ := cr.FieldPos(0)
		s, err := parseSample(rec, idx)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, s)
	}
}

func parseSample(rec []string, idx map[string]int) (Sample, error) {
	var vals [5]float64
	for i, c := range sampleColumns {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[idx[c]]), 64)
		if err != nil {
			return Sample{}, fmt.Errorf("%s: %w", c, err)
		}
		vals[i] = v
	}
	s := Sample{
		TowerLat: vals[0],
		TowerLon: vals[1],
		RSRP:     int(vals[2]),
		UserLat:  vals[3],
		UserLon:  vals[4],
	}
	var err error
	if s.TxPower, err = optional(rec, idx, "tx"); err != nil {
		return Sample{}, err
	}
	if s.RefLoss, err = optional(rec, idx, "ref_loss"); err != nil {
		return Sample{}, err
	}
	return s, nil
}

func optional(rec []string, idx map[string]int, col string) (*float64, error) {
	i, ok := idx[col]
	if !ok || strings.TrimSpace(rec[i]) == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", col, err)
	}
	return &v, nil
}
