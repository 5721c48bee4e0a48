package http

import (
	"errors"
	"net/http"

	"github.com/couchcryptid/cell-locator/internal/calibration"
	"github.com/couchcryptid/cell-locator/internal/geometry"
)

func (s *Server) handleCalibrate(w http.ResponseWriter, r *http.Request) {
	var req calibration.Sample
	if err := decode(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	est, err := calibration.EffectiveExponent(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, est)
}

type fitRequest struct {
	Samples []calibration.Sample `json:"samples"`
}

func (s *Server) handleCalibrateFit(w http.ResponseWriter, r *http.Request) {
	var req fitRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	fit, err := calibration.Fit(req.Samples)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, calibration.ErrNotEnoughSamples) || errors.Is(err, calibration.ErrTooClose) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, fit)
}

type refLossRequest struct {
	EARFCN         *int     `json:"earfcn"`
	FreqMHz        *float64 `json:"freqMhz"`
	GtDBi          *float64 `json:"gtDbi"`
	GrDBi          *float64 `json:"grDbi"`
	SystemLossesDB *float64 `json:"systemLossesDb"`
}

type refLossResponse struct {
	FreqMHz   float64             `json:"freqMhz"`
	RefLossDB float64             `json:"refLossDb"`
	Budget    geometry.LinkBudget `json:"linkBudget"`
}

func (s *Server) handleRefLoss(w http.ResponseWriter, r *http.Request) {
	var req refLossRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	lb := geometry.DefaultLinkBudget
	if req.GtDBi != nil {
		lb.TxGainDBi = *req.GtDBi
	}
	if req.GrDBi != nil {
		lb.RxGainDBi = *req.GrDBi
	}
	if req.SystemLossesDB != nil {
		lb.SystemLossDB = *req.SystemLossesDB
	}

	var freq float64
	switch {
	case req.FreqMHz != nil && *req.FreqMHz > 0:
		freq = *req.FreqMHz
	case req.EARFCN != nil:
		f, ok := geometry.EARFCNToFrequencyMHz(*req.EARFCN)
		if !ok {
			writeError(w, http.StatusBadRequest, "earfcn is outside the supported LTE bands")
			return
		}
		freq = f
	default:
		writeError(w, http.StatusBadRequest, "provide either earfcn or freqMhz")
		return
	}
	writeJSON(w, http.StatusOK, refLossResponse{
		FreqMHz:   freq,
		RefLossDB: geometry.RefLossAtFrequency(freq, lb),
		Budget:    lb,
	})
}
