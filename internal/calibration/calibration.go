// Package calibration derives path-loss model parameters from ground-truth
// samples: a tower position, the signal a device saw, and where the device
// really was.
package calibration

import (
	"errors"
	"fmt"
	"math"

	"github.com/couchcryptid/cell-locator/internal/geometry"
	"github.com/sajari/regression"
)

const (
	DefaultTxPower = 40.0
	DefaultRefLoss = 80.0
	minFitSamples  = 3
)

var (
	// ErrTooClose is returned when tower and device are under a metre apart,
	// where log10(d) gives no usable exponent.
	ErrTooClose = errors.New("distance between tower and user must be at least 1 m")
	// ErrNotEnoughSamples is returned by Fit without enough distinct distances.
	ErrNotEnoughSamples = errors.New("need at least 3 samples at distinct distances")
)

// Sample is one ground-truth measurement. Nil TxPower and RefLoss fall back
// to the defaults.
type Sample struct {
	TowerLat float64  `json:"towerLat"`
	TowerLon float64  `json:"towerLon"`
	RSRP     int      `json:"rsrp"`
	UserLat  float64  `json:"userLat"`
	UserLon  float64  `json:"userLon"`
	TxPower  *float64 `json:"tx,omitempty"`
	RefLoss  *float64 `json:"refLoss,omitempty"`
}

func (s Sample) distance() float64 {
	return geometry.GreatCircleDistance(s.TowerLat, s.TowerLon, s.UserLat, s.UserLon)
}

func (s Sample) tx() float64 {
	if s.TxPower != nil {
		return *s.TxPower
	}
	return DefaultTxPower
}

// pathLoss is the observed loss in dB between the transmitter and the device.
func (s Sample) pathLoss() float64 {
	return s.tx() - float64(s.RSRP)
}

// Estimate is the exponent implied by a single sample.
type Estimate struct {
	Exponent    float64 `json:"nEffective"`
	DistanceM   float64 `json:"distanceM"`
	TxUsed      float64 `json:"txUsed"`
	RefLossUsed float64 `json:"refLossUsed"`
}

// EffectiveExponent solves PL = refLoss + 10·n·log10(d) for n.
func EffectiveExponent(s Sample) (Estimate, error) {
	d := s.distance()
	if d < 1 {
		return Estimate{}, fmt.Errorf("%w (got %.2f m)", ErrTooClose, d)
	}
	ref := DefaultRefLoss
	if s.RefLoss != nil {
		ref = *s.RefLoss
	}
	return Estimate{
		Exponent:    (s.pathLoss() - ref) / (10 * math.Log10(d)),
		DistanceM:   d,
		TxUsed:      s.tx(),
		RefLossUsed: ref,
	}, nil
}

// FitResult is a least-squares fit of the log-distance model.
type FitResult struct {
	RefLoss  float64 `json:"refLoss"`
	Exponent float64 `json:"exponent"`
	R2       float64 `json:"r2"`
	Samples  int     `json:"samples"`
}

// Fit regresses path loss on 10·log10(d) over all samples. The intercept is
// the reference loss at 1 m and the slope is the exponent.
func Fit(samples []Sample) (FitResult, error) {
	r := new(regression.Regression)
	r.SetObserved("path loss dB")
	r.SetVar(0, "10log10(d)")

	distinct := make(map[float64]struct{})
	for i, s := range samples {
		d := s.distance()
		if d < 1 {
			return FitResult{}, fmt.Errorf("sample %d: %w", i, ErrTooClose)
		}
		x := 10 * math.Log10(d)
		distinct[math.Round(d*100)/100] = struct{}{}
		r.Train(regression.DataPoint(s.pathLoss(), []float64{x}))
	}
	if len(distinct) < minFitSamples {
		return FitResult{}, ErrNotEnoughSamples
	}
	if err := r.Run(); err != nil {
		return FitResult{}, fmt.Errorf("fit path-loss model: %w", err)
	}
	return FitResult{
		RefLoss:  r.Coeff(0),
		Exponent: r.Coeff(1),
		R2:       r.R2,
		Samples:  len(samples),
	}, nil
}
