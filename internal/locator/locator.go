// Package locator estimates a device position from the cells it observes.
//
// Strategy by number of resolved towers:
//
//	1   timing-advance ring, co-location for strong signal, or a path-loss
//	    ring, projected along the sector bearing
//	2   circle intersection disambiguated by sector bearings, else centroid
//	3+  least-squares trilateration over the three strongest, then the
//	    closed-form solve, then a weighted centroid of all towers
package locator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/couchcryptid/cell-locator/internal/cleaner"
	"github.com/couchcryptid/cell-locator/internal/domain"
	"github.com/couchcryptid/cell-locator/internal/geometry"
	"github.com/couchcryptid/cell-locator/internal/observability"
	"github.com/couchcryptid/cell-locator/internal/resolver"
)

const (
	strongSignalDBm    = -70
	weakSignalDBm      = -100
	colocatedRadius    = 100.0
	minCompositeRadius = 50.0
)

// Config holds the tunables shared by every locate call.
type Config struct {
	PathLoss        geometry.PathLoss
	NLLS            geometry.NLLSOptions
	ProviderTimeout time.Duration
	AuditTimeout    time.Duration
	SignatureLimit  int
}

// DefaultConfig returns the stock path-loss and solver settings.
func DefaultConfig() Config {
	return Config{
		PathLoss:        geometry.DefaultPathLoss,
		NLLS:            geometry.DefaultNLLS,
		ProviderTimeout: resolver.DefaultProviderTimeout,
		AuditTimeout:    resolver.DefaultAuditTimeout,
		SignatureLimit:  resolver.DefaultSignatureLimit,
	}
}

// Options are the per-call inputs beside the observations.
type Options struct {
	Reference              *geometry.Point
	AllowExternalServing   bool
	AllowExternalNeighbors bool
}

func (o Options) allowExternal(c domain.CellObservation) bool {
	if c.Serving() {
		return o.AllowExternalServing
	}
	return o.AllowExternalNeighbors
}

// Locator turns observed cells into a position. It holds no per-call state;
// each call builds its own Resolver.
type Locator struct {
	store     domain.TowerStore
	providers []domain.Provider
	audit     domain.AuditLog
	cfg       Config
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates a Locator.
func New(store domain.TowerStore, providers []domain.Provider, audit domain.AuditLog, cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Locator {
	return &Locator{
		store:     store,
		providers: providers,
		audit:     audit,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
	}
}

// NewResolver returns a fresh Resolver configured like the ones Locate uses.
func (l *Locator) NewResolver(ref *geometry.Point) *resolver.Resolver {
	return resolver.New(l.store, l.providers, l.audit, l.logger, l.metrics, resolver.Options{
		Reference:       ref,
		ProviderTimeout: l.cfg.ProviderTimeout,
		AuditTimeout:    l.cfg.AuditTimeout,
		SignatureLimit:  l.cfg.SignatureLimit,
	})
}

// resolvedCell is an observation paired with its tower.
type resolvedCell struct {
	cell   domain.CellObservation
	tower  domain.Tower
	source string
}

func (rc resolvedCell) radius(pl geometry.PathLoss) float64 {
	return pl.WithTxPower(rc.tower.TxPower).Distance(rc.cell.SignalStrength)
}

func (rc resolvedCell) center() geometry.Point {
	return geometry.Point{Lat: rc.tower.Lat, Lon: rc.tower.Lon}
}

func (rc resolvedCell) sectorBearing() float64 {
	return geometry.AzimuthOrEstimate(rc.tower.AntennaAzimuth, rc.tower.CellID)
}

// Locate cleans the observations, resolves their towers and estimates a
// position. It fails with domain.ErrInvalidInput when nothing usable remains
// and domain.ErrUnableToCompute when every fallback is exhausted.
func (l *Locator) Locate(ctx context.Context, cells []domain.CellObservation, opts Options) (domain.LocateResult, error) {
	start := time.Now()
	defer func() { l.metrics.LocateDuration.Observe(time.Since(start).Seconds()) }()

	cleaned := cleaner.Clean(cells)
	l.metrics.CellsRejected.Add(float64(len(cells) - len(cleaned)))
	if len(cleaned) == 0 {
		l.metrics.LocateFailures.WithLabelValues("invalid_input").Inc()
		return domain.LocateResult{}, fmt.Errorf("%w: no valid cells after cleaning", domain.ErrInvalidInput)
	}

	res := l.NewResolver(opts.Reference)
	var resolved []resolvedCell
	for _, c := range cleaned {
		rr := res.Resolve(ctx, domain.QueryFromObservation(c, opts.allowExternal(c)))
		if !rr.Found() {
			continue
		}
		resolved = append(resolved, resolvedCell{cell: c, tower: *rr.Tower, source: rr.Source})
	}
	if len(resolved) == 0 {
		l.metrics.LocateFailures.WithLabelValues("invalid_input").Inc()
		return domain.LocateResult{}, fmt.Errorf("%w: no towers found for provided cells", domain.ErrInvalidInput)
	}

	var (
		result   domain.LocateResult
		strategy string
		err      error
	)
	switch len(resolved) {
	case 1:
		result, strategy = l.single(resolved[0]), "single"
	case 2:
		result, err = l.pair(resolved[0], resolved[1])
		strategy = "composite"
	default:
		result, err = l.multi(resolved)
		strategy = "trilateration"
		if result.Debug.Source == domain.StrategyFallbackCentroid {
			strategy = "fallback_centroid"
		}
	}
	if err != nil {
		l.metrics.LocateFailures.WithLabelValues("unable_to_compute").Inc()
		return domain.LocateResult{}, err
	}

	l.metrics.LocateRequests.WithLabelValues(strategy).Inc()
	l.logger.Debug("location computed",
		"strategy", strategy,
		"cells", len(cells),
		"resolved", len(resolved),
		"radius_m", result.Radius,
	)
	return result, nil
}

func (l *Locator) single(rc resolvedCell) domain.LocateResult {
	rsrp := rc.cell.SignalStrength

	if taDist, ok := geometry.TimingAdvanceDistance(rc.cell.TimingAdvance); ok {
		bearing := rc.sectorBearing()
		p := geometry.DestinationPoint(rc.tower.Lat, rc.tower.Lon, taDist, bearing)
		return newResult(p, taDist, domain.Debug{
			Source:      rc.source,
			BearingUsed: &bearing,
			Signal:      rsrp,
			Confidence:  confidence(domain.ConfidenceHigh),
		})
	}

	if rsrp != nil && *rsrp > strongSignalDBm {
		return newResult(rc.center(), colocatedRadius, domain.Debug{
			Source:     rc.source,
			Signal:     rsrp,
			Confidence: confidence(domain.ConfidenceHigh),
		})
	}

	radius := rc.radius(l.cfg.PathLoss)
	bearing := rc.sectorBearing()
	p := geometry.DestinationPoint(rc.tower.Lat, rc.tower.Lon, radius, bearing)
	level := domain.ConfidenceMedium
	if rsrp == nil || *rsrp <= weakSignalDBm {
		level = domain.ConfidenceLow
	}
	return newResult(p, radius, domain.Debug{
		Source:      rc.source,
		BearingUsed: &bearing,
		Signal:      rsrp,
		Confidence:  confidence(level),
	})
}

func (l *Locator) pair(a, b resolvedCell) (domain.LocateResult, error) {
	ra, rb := a.radius(l.cfg.PathLoss), b.radius(l.cfg.PathLoss)

	var p geometry.Point
	candidates := geometry.CircleIntersections(a.tower.Lat, a.tower.Lon, ra, b.tower.Lat, b.tower.Lon, rb)
	if len(candidates) > 0 {
		p = pickBySector(candidates, a, b)
	} else {
		var ok bool
		p, ok = geometry.WeightedCentroid(centroidInputs([]resolvedCell{a, b}))
		if !ok {
			return domain.LocateResult{}, domain.ErrUnableToCompute
		}
	}

	radius := math.Max(minCompositeRadius, round(math.Min(ra, rb), 2))
	return newResult(p, radius, domain.Debug{Source: domain.StrategyComposite}), nil
}

// pickBySector returns the candidate whose bearings from both towers best
// agree with the towers' sector azimuths.
func pickBySector(candidates []geometry.Point, towers ...resolvedCell) geometry.Point {
	best := candidates[0]
	bestScore := math.Inf(1)
	for _, p := range candidates {
		score := 0.0
		for _, rc := range towers {
			b := geometry.Bearing(rc.tower.Lat, rc.tower.Lon, p.Lat, p.Lon)
			score += angleDiff(b, rc.sectorBearing())
		}
		if score < bestScore {
			best, bestScore = p, score
		}
	}
	return best
}

func angleDiff(a, b float64) float64 {
	d := math.Abs(a - b)
	if d > 180 {
		d = 360 - d
	}
	return d
}

func (l *Locator) multi(resolved []resolvedCell) (domain.LocateResult, error) {
	ranked := append([]resolvedCell(nil), resolved...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return signal(ranked[i]) > signal(ranked[j])
	})
	top := ranked[:3]

	circles := make([]geometry.Circle, len(top))
	minRadius := math.Inf(1)
	for i, rc := range top {
		r := rc.radius(l.cfg.PathLoss)
		circles[i] = geometry.Circle{Center: rc.center(), Radius: r, RSRP: rc.cell.SignalStrength, RSRQ: rc.cell.RSRQ}
		minRadius = math.Min(minRadius, r)
	}

	p, ok := geometry.TrilaterateNLLS(circles, l.cfg.NLLS)
	if !ok {
		p, ok = geometry.TrilaterateLinear3(circles[0], circles[1], circles[2])
	}
	if ok {
		return newResult(p, minRadius, domain.Debug{Source: domain.StrategyTrilateration}), nil
	}

	p, ok = geometry.WeightedCentroid(centroidInputs(resolved))
	if !ok {
		return domain.LocateResult{}, domain.ErrUnableToCompute
	}
	maxRadius := 0.0
	for _, rc := range resolved {
		maxRadius = math.Max(maxRadius, rc.radius(l.cfg.PathLoss))
	}
	return newResult(p, maxRadius, domain.Debug{Source: domain.StrategyFallbackCentroid}), nil
}

func signal(rc resolvedCell) int {
	if rc.cell.SignalStrength == nil {
		return math.MinInt
	}
	return *rc.cell.SignalStrength
}

func centroidInputs(cells []resolvedCell) []geometry.WeightedPoint {
	out := make([]geometry.WeightedPoint, len(cells))
	for i, rc := range cells {
		out[i] = geometry.WeightedPoint{Point: rc.center(), RSRP: rc.cell.SignalStrength}
	}
	return out
}

func newResult(p geometry.Point, radius float64, dbg domain.Debug) domain.LocateResult {
	lat, lon := round(p.Lat, 7), round(p.Lon, 7)
	return domain.LocateResult{
		Location: domain.Location{
			Lat:    lat,
			Lon:    lon,
			Google: strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lon, 'f', -1, 64),
		},
		Radius: round(radius, 2),
		Debug:  dbg,
	}
}

func round(v float64, digits int) float64 {
	scale := math.Pow(10, float64(digits))
	return math.Round(v*scale) / scale
}

func confidence(c domain.Confidence) *domain.Confidence {
	return &c
}
