package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/couchcryptid/cell-locator/internal/cleaner"
	"github.com/couchcryptid/cell-locator/internal/domain"
	"github.com/couchcryptid/cell-locator/internal/geometry"
	"github.com/couchcryptid/cell-locator/internal/locator"
	"github.com/couchcryptid/cell-locator/internal/resolver"
	"github.com/couchcryptid/cell-locator/internal/snapshot"
)

const (
	defaultAnchorsLimit = 15
	maxSnapshotCells    = 50
)

type locateRequest struct {
	Cells                  []domain.CellObservation `json:"cells"`
	Reference              *geometry.Point          `json:"reference"`
	AllowExternalServing   *bool                    `json:"allowExternalServing"`
	AllowExternalNeighbors *bool                    `json:"allowExternalNeighbors"`
	IncludeAnchors         bool                     `json:"includeAnchors"`
	AnchorsLimit           int                      `json:"anchorsLimit"`
}

type locateResponse struct {
	domain.LocateResult
	Anchors []domain.AnchorMarker `json:"anchors,omitempty"`
}

func (s *Server) locateOptions(ref *geometry.Point, serving, neighbors *bool) locator.Options {
	opts := locator.Options{
		Reference:              ref,
		AllowExternalServing:   true,
		AllowExternalNeighbors: s.deps.Settings.AllowExternalNeighbors,
	}
	if serving != nil {
		opts.AllowExternalServing = *serving
	}
	if neighbors != nil {
		opts.AllowExternalNeighbors = *neighbors
	}
	return opts
}

func (s *Server) handleLocate(w http.ResponseWriter, r *http.Request) {
	var req locateRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	opts := s.locateOptions(req.Reference, req.AllowExternalServing, req.AllowExternalNeighbors)

	res, err := s.deps.Locator.Locate(r.Context(), req.Cells, opts)
	if err != nil {
		s.locateFailed(w, r, err)
		return
	}
	resp := locateResponse{LocateResult: res}
	if req.IncludeAnchors {
		limit := req.AnchorsLimit
		if limit <= 0 {
			limit = defaultAnchorsLimit
		}
		resp.Anchors = s.deps.Locator.BuildAnchorMarkers(r.Context(), req.Cells, limit, opts)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) locateFailed(w http.ResponseWriter, r *http.Request, err error) {
	if budgetExceeded(r) {
		s.logger.Warn("locate exceeded request budget", "error", err)
		writeError(w, http.StatusGatewayTimeout, "location lookup timed out")
		return
	}
	if errors.Is(err, domain.ErrInvalidInput) {
		s.logger.Info("locate rejected", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error("locate failed", "error", err)
	writeError(w, http.StatusInternalServerError, "unable to compute location")
}

type resolveRequest struct {
	Radio          string          `json:"radioType"`
	MCC            *int            `json:"mcc"`
	MNC            *int            `json:"mnc"`
	CellID         *int64          `json:"cellId"`
	LAC            *int            `json:"lac"`
	PCI            *int            `json:"pci"`
	EARFCN         *int            `json:"earfcn"`
	SignalStrength *int            `json:"signalStrength"`
	AllowExternal  bool            `json:"allowExternal"`
	Reference      *geometry.Point `json:"reference"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	if req.MCC == nil || req.MNC == nil || req.CellID == nil {
		writeError(w, http.StatusBadRequest, "mcc, mnc and cellId are required")
		return
	}

	res := s.deps.Locator.NewResolver(req.Reference).Resolve(r.Context(), domain.ResolveQuery{
		Radio:          domain.NormalizeRadio(req.Radio),
		MCC:            req.MCC,
		MNC:            req.MNC,
		CellID:         req.CellID,
		LAC:            req.LAC,
		PCI:            req.PCI,
		EARFCN:         req.EARFCN,
		SignalStrength: req.SignalStrength,
		AllowExternal:  req.AllowExternal,
	})
	if budgetExceeded(r) {
		writeError(w, http.StatusGatewayTimeout, "tower lookup timed out")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// budgetExceeded reports whether the request deadline set by
// withLocateBudget has passed.
func budgetExceeded(r *http.Request) bool {
	return errors.Is(r.Context().Err(), context.DeadlineExceeded)
}

type snapshotRequest struct {
	Snapshot               *snapshot.Document `json:"snapshot"`
	RegisteredOnly         *bool              `json:"registeredOnly"`
	MaxCells               int                `json:"maxCells"`
	IncludeAnchors         *bool              `json:"includeAnchors"`
	AnchorsLimit           int                `json:"anchorsLimit"`
	AllowExternalNeighbors *bool              `json:"allowExternalNeighbors"`
}

// towerColumns is the resolution outcome shown next to each cell.
type towerColumns struct {
	TowerFound  bool     `json:"towerFound"`
	TowerLat    *float64 `json:"towerLat"`
	TowerLon    *float64 `json:"towerLon"`
	TowerSource string   `json:"towerSource"`
}

func towerColumnsOf(res domain.ResolveResult) towerColumns {
	tc := towerColumns{TowerFound: res.Found(), TowerSource: res.Source}
	if res.Found() {
		tc.TowerLat = domain.Ptr(res.Tower.Lat)
		tc.TowerLon = domain.Ptr(res.Tower.Lon)
	}
	return tc
}

type snapshotCellRow struct {
	Index      int     `json:"idx"`
	Type       string  `json:"type"`
	Registered *bool   `json:"registered"`
	MCC        *int    `json:"mcc"`
	MNC        *int    `json:"mnc"`
	LAC        *int    `json:"lac"`
	CellID     *int64  `json:"cellId"`
	PCI        *int    `json:"pci"`
	EARFCN     *int    `json:"earfcn"`
	RSRP       *int    `json:"rsrp"`
	RSRQ       *int    `json:"rsrq"`
	DBM        *int    `json:"dbm"`
	AlphaLong  *string `json:"alphaLong"`
	AlphaShort *string `json:"alphaShort"`
	Bandwidth  *int    `json:"bandwidth"`
	Level      *int    `json:"level"`
	towerColumns
}

type cellRow struct {
	domain.CellObservation
	towerColumns
}

type snapshotResponse struct {
	PhoneLocation       *snapshot.PhoneLocation `json:"phoneLocation"`
	Computed            domain.LocateResult     `json:"computed"`
	ExtractedCellsCount int                     `json:"extractedCellsCount"`
	SnapshotCells       []snapshotCellRow       `json:"snapshotCells"`
	Cells               []cellRow               `json:"cells"`
	Anchors             []domain.AnchorMarker   `json:"anchors,omitempty"`
}

func (s *Server) handleSnapshotLocate(w http.ResponseWriter, r *http.Request) {
	var req snapshotRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	if req.Snapshot == nil {
		writeError(w, http.StatusBadRequest, "snapshot is required")
		return
	}
	if req.MaxCells == 0 {
		req.MaxCells = 12
	}
	if req.MaxCells < 1 || req.MaxCells > maxSnapshotCells {
		writeError(w, http.StatusBadRequest, "maxCells must be between 1 and 50")
		return
	}

	ctx := r.Context()
	doc := req.Snapshot
	phone := doc.PhoneLocation()
	var ref *geometry.Point
	if phone != nil {
		ref = &geometry.Point{Lat: phone.Lat, Lon: phone.Lon}
	}
	opts := s.locateOptions(ref, nil, req.AllowExternalNeighbors)
	res := s.deps.Locator.NewResolver(ref)

	resp := snapshotResponse{PhoneLocation: phone}
	resp.SnapshotCells = s.snapshotTable(r, res, doc, opts.AllowExternalNeighbors)

	registeredOnly := req.RegisteredOnly == nil || *req.RegisteredOnly
	cells := snapshot.Extract(doc, registeredOnly, req.MaxCells)
	resp.ExtractedCellsCount = len(cells)
	if len(cells) == 0 {
		writeError(w, http.StatusBadRequest, "no usable cells found in snapshot")
		return
	}
	cleaned := cleaner.Clean(cells)
	if len(cleaned) == 0 {
		writeError(w, http.StatusBadRequest, "no valid cells after cleaning")
		return
	}
	resp.Cells = make([]cellRow, 0, len(cleaned))
	for _, c := range cleaned {
		rr := res.Resolve(ctx, domain.QueryFromObservation(c, true))
		resp.Cells = append(resp.Cells, cellRow{CellObservation: c, towerColumns: towerColumnsOf(rr)})
	}

	computed, err := s.deps.Locator.Locate(ctx, cleaned, opts)
	if err != nil {
		s.locateFailed(w, r, err)
		return
	}
	resp.Computed = computed

	if req.IncludeAnchors == nil || *req.IncludeAnchors {
		limit := req.AnchorsLimit
		if limit <= 0 {
			limit = defaultAnchorsLimit
		}
		resp.Anchors = s.deps.Locator.BuildAnchorMarkers(ctx, cleaned, limit, opts)
	}
	writeJSON(w, http.StatusOK, resp)
}

// snapshotTable resolves every raw cell of the snapshot for display.
// Neighbor cells only go to external providers when allowNeighbors is set.
func (s *Server) snapshotTable(r *http.Request, res *resolver.Resolver, doc *snapshot.Document, allowNeighbors bool) []snapshotCellRow {
	defMCC, defMNC := doc.Operator()
	raw := doc.Cells()
	rows := make([]snapshotCellRow, 0, len(raw))
	for _, c := range raw {
		obs := c.Observation(defMCC, defMNC)
		row := snapshotCellRow{
			Index:      c.Index,
			Type:       c.Type,
			Registered: c.Registered,
			MCC:        obs.MCC,
			MNC:        obs.MNC,
			LAC:        obs.LAC,
			CellID:     obs.CellID,
			PCI:        obs.PCI,
			EARFCN:     obs.EARFCN,
			RSRP:       obs.SignalStrength,
			RSRQ:       obs.RSRQ,
			DBM:        c.DBM.Int(),
			AlphaLong:  c.AlphaLong,
			AlphaShort: c.AlphaShort,
			Bandwidth:  c.Bandwidth.Int(),
			Level:      c.Level.Int(),
		}
		if obs.MCC != nil && obs.MNC != nil && obs.CellID != nil {
			allow := allowNeighbors && !obs.Serving()
			row.towerColumns = towerColumnsOf(res.Resolve(r.Context(), domain.QueryFromObservation(obs, allow)))
		} else {
			row.towerColumns = towerColumns{TowerSource: domain.ProvenanceNotFound}
		}
		rows = append(rows, row)
	}
	return rows
}
