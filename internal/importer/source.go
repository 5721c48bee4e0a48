package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/couchcryptid/cell-locator/internal/domain"
)

// columnAliases maps each tower field to the header names that may carry it.
var columnAliases = map[string][]string{
	"radio":           {"radio_type", "radiotype", "radio", "rat"},
	"mcc":             {"mcc"},
	"mnc":             {"mnc"},
	"lac":             {"lac", "tac"},
	"cell_id":         {"cell_id", "cellid", "cid", "eci"},
	"pci":             {"pci", "physicalcellid"},
	"earfcn":          {"earfcn", "frequency", "freq"},
	"range_m":         {"range_m", "range", "coverage", "rangemeters"},
	"lat":             {"lat", "latitude"},
	"lon":             {"lon", "lng", "longitude"},
	"is_approximate":  {"is_approximate", "approximate", "isapproximate", "changeable"},
	"samples":         {"samples", "num_samples", "measurements"},
	"tx_power":        {"tx_power", "txpower", "txp"},
	"antenna_azimuth": {"antenna_azimuth", "azimuth", "bearing"},
	"source":          {"source", "data_source"},
}

// Row is one parsed CSV record: either a tower or the reason it was rejected.
type Row struct {
	Line  int
	Tower domain.Tower
	Err   error
}

// CSVSource reads tower rows from CSV in batches. It implements BatchExtractor.
type CSVSource struct {
	r             *csv.Reader
	columns       map[string][]int
	defaultSource domain.DatasetSource
	done          bool
}

// NewCSVSource reads the header row and resolves column aliases.
func NewCSVSource(r io.Reader, defaultSource domain.DatasetSource) (*CSVSource, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty CSV", domain.ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}
	columns := make(map[string][]int, len(columnAliases))
	for field, aliases := range columnAliases {
		for _, a := range aliases {
			if i, ok := index[a]; ok {
				columns[field] = append(columns[field], i)
			}
		}
	}
	for _, required := range []string{"mcc", "mnc", "cell_id", "lat", "lon"} {
		if len(columns[required]) == 0 {
			return nil, fmt.Errorf("%w: CSV has no %s column", domain.ErrInvalidInput, required)
		}
	}

	if defaultSource == "" {
		defaultSource = domain.SourceOther
	}
	return &CSVSource{r: cr, columns: columns, defaultSource: defaultSource}, nil
}

// ExtractBatch returns up to batchSize rows. An empty batch means the input
// is exhausted.
func (s *CSVSource) ExtractBatch(ctx context.Context, batchSize int) ([]Row, error) {
	var rows []Row
	for !s.done && len(rows) < batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := s.r.Read()
		if errors.Is(err, io.EOF) {
			s.done = true
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				rows = append(rows, Row{Line: perr.StartLine, Err: perr.Err})
				continue
			}
			return nil, fmt.Errorf("read CSV: %w", err)
		}
		if blank(record) {
			continue
		}
		line, _ := s.r.FieldPos(0)
		t, err := s.parse(record)
		rows = append(rows, Row{Line: line, Tower: t, Err: err})
	}
	return rows, nil
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// value returns the first non-empty cell among the field's aliased columns.
func (s *CSVSource) value(record []string, field string) string {
	for _, i := range s.columns[field] {
		if i < len(record) {
			if v := strings.TrimSpace(record[i]); v != "" {
				return v
			}
		}
	}
	return ""
}

func (s *CSVSource) parse(record []string) (domain.Tower, error) {
	var t domain.Tower
	var err error

	if t.MCC, err = requiredInt(s.value(record, "mcc"), "mcc"); err != nil {
		return t, err
	}
	if t.MNC, err = requiredInt(s.value(record, "mnc"), "mnc"); err != nil {
		return t, err
	}
	cellID, err := requiredInt(s.value(record, "cell_id"), "cell_id")
	if err != nil {
		return t, err
	}
	t.CellID = int64(cellID)
	if t.Lat, err = requiredCoord(s.value(record, "lat"), "lat", 90); err != nil {
		return t, err
	}
	if t.Lon, err = requiredCoord(s.value(record, "lon"), "lon", 180); err != nil {
		return t, err
	}

	t.Radio = domain.NormalizeRadio(s.value(record, "radio"))
	t.LAC = optionalInt(s.value(record, "lac"))
	t.PCI = optionalInt(s.value(record, "pci"))
	t.EARFCN = optionalInt(s.value(record, "earfcn"))
	t.RangeM = optionalInt(s.value(record, "range_m"))
	t.Samples = optionalInt(s.value(record, "samples"))
	t.TxPower = optionalInt(s.value(record, "tx_power"))
	t.AntennaAzimuth = optionalInt(s.value(record, "antenna_azimuth"))
	if v := optionalInt(s.value(record, "is_approximate")); v != nil {
		t.Approximate = *v == 1
	}
	t.Source = s.defaultSource
	if v := s.value(record, "source"); v != "" {
		t.Source = domain.ParseDatasetSource(strings.ToUpper(v))
	}
	return t, nil
}

// parseInt accepts integers and decimal forms such as "432.0".
func parseInt(v string) (int, bool) {
	if n, err := strconv.Atoi(v); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt64/2 {
		return 0, false
	}
	return int(f), true
}

func requiredInt(v, field string) (int, error) {
	if v == "" {
		return 0, fmt.Errorf("required field %s is missing", field)
	}
	n, ok := parseInt(v)
	if !ok {
		return 0, fmt.Errorf("%s value %q is not a number", field, v)
	}
	return n, nil
}

func optionalInt(v string) *int {
	if v == "" {
		return nil
	}
	n, ok := parseInt(v)
	if !ok {
		return nil
	}
	return &n
}

func requiredCoord(v, field string, limit float64) (float64, error) {
	if v == "" {
		return 0, fmt.Errorf("required field %s is missing", field)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) {
		return 0, fmt.Errorf("%s value %q is not a number", field, v)
	}
	if math.Abs(f) > limit {
		return 0, fmt.Errorf("%s %v out of range", field, f)
	}
	return f, nil
}
