package http

import (
	"bytes"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/cell-locator/internal/domain"
	"github.com/couchcryptid/cell-locator/internal/importer"
	"github.com/couchcryptid/cell-locator/internal/jobs"
)

const (
	searchLimit        = 500
	defaultLookupLimit = 20
	maxImportBody      = 256 << 20
	importKeyHeader    = "X-Import-Key"
)

type searchRequest struct {
	MCC    *int   `json:"mcc"`
	MNC    *int   `json:"mnc"`
	LAC    *int   `json:"lac"`
	PCI    *int   `json:"pci"`
	CellID *int64 `json:"cellId"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	if req.MCC == nil || req.MNC == nil {
		writeError(w, http.StatusBadRequest, "mcc and mnc are required")
		return
	}
	towers, err := s.deps.Towers.Search(r.Context(), domain.SearchQuery{
		MCC:    *req.MCC,
		MNC:    *req.MNC,
		LAC:    req.LAC,
		PCI:    req.PCI,
		CellID: req.CellID,
		Limit:  searchLimit,
	})
	if err != nil {
		s.storeFailed(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(towers))
}

type withinRequest struct {
	domain.Bounds
	Limit int `json:"limit"`
}

// towerMarker is the compact tower shape used for map display.
type towerMarker struct {
	ID        int64                `json:"id"`
	Radio     domain.Radio         `json:"radioType"`
	MCC       int                  `json:"mcc"`
	MNC       int                  `json:"mnc"`
	LAC       *int                 `json:"lac"`
	CellID    int64                `json:"cellId"`
	PCI       *int                 `json:"pci"`
	EARFCN    *int                 `json:"earfcn"`
	Lat       float64              `json:"lat"`
	Lon       float64              `json:"lon"`
	TxPower   *int                 `json:"txPower"`
	Source    domain.DatasetSource `json:"source"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

func (s *Server) handleWithin(w http.ResponseWriter, r *http.Request) {
	var req withinRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	if !req.Bounds.Valid() {
		writeError(w, http.StatusBadRequest, "bounding box is out of range or inverted")
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	limit = min(limit, s.deps.Settings.MaxTowersPerRequest)

	towers, err := s.deps.Towers.WithinBounds(r.Context(), req.Bounds, limit)
	if err != nil {
		s.storeFailed(w, "within_bounds", err)
		return
	}
	markers := make([]towerMarker, 0, len(towers))
	for _, t := range towers {
		markers = append(markers, towerMarker{
			ID: t.ID, Radio: t.Radio, MCC: t.MCC, MNC: t.MNC, LAC: t.LAC, CellID: t.CellID,
			PCI: t.PCI, EARFCN: t.EARFCN, Lat: t.Lat, Lon: t.Lon, TxPower: t.TxPower,
			Source: t.Source, UpdatedAt: t.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, markers)
}

func (s *Server) handleCreateTower(w http.ResponseWriter, r *http.Request) {
	var t domain.Tower
	if err := decode(w, r, &t); err != nil {
		badRequest(w, err)
		return
	}
	if t.MCC <= 0 || t.CellID <= 0 {
		writeError(w, http.StatusBadRequest, "mcc and cellId are required")
		return
	}
	if t.Lat < -90 || t.Lat > 90 || t.Lon < -180 || t.Lon > 180 {
		writeError(w, http.StatusBadRequest, "lat/lon out of range")
		return
	}
	t.ID = 0
	t.Radio = domain.NormalizeRadio(string(t.Radio))
	if t.Source == "" {
		t.Source = domain.SourceManual
	} else {
		t.Source = domain.ParseDatasetSource(strings.ToUpper(string(t.Source)))
	}
	t.CreatedAt, t.UpdatedAt = time.Time{}, time.Time{}

	stored, created, err := s.deps.Towers.GetOrCreate(r.Context(), t)
	if err != nil {
		s.storeFailed(w, "get_or_create", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, stored)
}

func (s *Server) handleLookups(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mcc, err1 := strconv.Atoi(q.Get("mcc"))
	mnc, err2 := strconv.Atoi(q.Get("mnc"))
	cellID, err3 := strconv.ParseInt(q.Get("cellId"), 10, 64)
	if err := errors.Join(err1, err2, err3); err != nil {
		writeError(w, http.StatusBadRequest, "mcc, mnc and cellId query parameters are required")
		return
	}
	limit := defaultLookupLimit
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = min(n, searchLimit)
		}
	}
	recs, err := s.deps.Towers.RecentLookups(r.Context(), mcc, mnc, cellID, limit)
	if err != nil {
		s.storeFailed(w, "recent_lookups", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(recs))
}

func (s *Server) storeFailed(w http.ResponseWriter, op string, err error) {
	s.logger.Error("tower store request failed", "op", op, "error", err)
	writeError(w, http.StatusInternalServerError, "tower store unavailable")
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

// requireImportKey guards import endpoints when IMPORT_API_KEY is set.
func (s *Server) requireImportKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := s.deps.Settings.ImportAPIKey
		if key != "" {
			got := r.Header.Get(importKeyHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				writeError(w, http.StatusForbidden, "import not allowed: provide "+importKeyHeader)
				return
			}
		}
		next(w, r)
	}
}

type importStarted struct {
	JobID  string      `json:"jobId"`
	Status jobs.Status `json:"status"`
}

// handleImportStart accepts a CSV request body, or bucket and key query
// parameters naming an object, and imports it in the background.
func (s *Server) handleImportStart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	source := domain.SourceOther
	if v := q.Get("source"); v != "" {
		source = domain.ParseDatasetSource(strings.ToUpper(v))
	}
	updateExisting := true
	if v := q.Get("updateExisting"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "updateExisting must be a boolean")
			return
		}
		updateExisting = b
	}

	body, err := s.importBody(r)
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			status = http.StatusBadRequest
		case errors.Is(err, fs.ErrNotExist):
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	src, err := importer.NewCSVSource(body, source)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := s.deps.Jobs.Create(r.Context())
	if err != nil {
		s.logger.Error("create import job failed", "error", err)
		writeError(w, http.StatusInternalServerError, "job store unavailable")
		return
	}

	opts := importer.Options{UpdateExisting: updateExisting, BatchSize: s.deps.Settings.ImportBatchSize}
	s.imports.Add(1)
	go func() {
		defer s.imports.Done()
		_, _ = s.deps.Importer.Run(s.bgCtx, job.ID, src, opts)
	}()

	writeJSON(w, http.StatusAccepted, importStarted{JobID: job.ID, Status: jobs.StatusInProgress})
}

// importBody returns the CSV to import, fully read so the request can finish
// before the import does.
func (s *Server) importBody(r *http.Request) (io.Reader, error) {
	q := r.URL.Query()
	bucket, key := q.Get("bucket"), q.Get("key")
	if bucket == "" && key == "" {
		data, err := io.ReadAll(io.LimitReader(r.Body, maxImportBody+1))
		if err != nil {
			return nil, fmt.Errorf("%w: read body: %v", domain.ErrInvalidInput, err)
		}
		if len(data) > maxImportBody {
			return nil, fmt.Errorf("%w: CSV larger than %d bytes", domain.ErrInvalidInput, maxImportBody)
		}
		return bytes.NewReader(data), nil
	}
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("%w: bucket and key must be given together", domain.ErrInvalidInput)
	}
	if s.deps.Objects == nil {
		return nil, fmt.Errorf("%w: object storage is not configured", domain.ErrInvalidInput)
	}
	return s.openObject(r.Context(), bucket, key)
}

func (s *Server) openObject(ctx context.Context, bucket, key string) (io.Reader, error) {
	rc, err := s.deps.Objects.Open(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxImportBody+1))
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", bucket, key, err)
	}
	if len(data) > maxImportBody {
		return nil, fmt.Errorf("%w: object larger than %d bytes", domain.ErrInvalidInput, maxImportBody)
	}
	return bytes.NewReader(data), nil
}

func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Jobs.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, jobs.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "job not found"})
		return
	}
	if err != nil {
		s.logger.Error("read import job failed", "error", err)
		writeError(w, http.StatusInternalServerError, "job store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, job)
}
