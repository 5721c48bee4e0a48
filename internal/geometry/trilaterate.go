package geometry

import "math"

// Circle is a range constraint around a tower. RSRP and RSRQ, when known,
// weight the constraint in least-squares solves.
type Circle struct {
	Center Point
	Radius float64
	RSRP   *int
	RSRQ   *int
}

// WeightedPoint is a centroid input. An explicit Weight overrides the
// RSRP-derived one.
type WeightedPoint struct {
	Point
	RSRP   *int
	Weight *float64
}

const centroidEpsilon = 1e-6

// WeightedCentroid averages the points weighted by 1/|RSRP| (stronger signal
// pulls harder), 1 when RSRP is unknown. It returns false when there are no
// usable points or the weights sum to zero.
func WeightedCentroid(points []WeightedPoint) (Point, bool) {
	var sumLat, sumLon, sumW float64
	for _, p := range points {
		if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
			continue
		}
		w := 1.0
		switch {
		case p.Weight != nil:
			w = *p.Weight
		case p.RSRP != nil:
			w = 1 / (math.Abs(float64(*p.RSRP)) + centroidEpsilon)
		}
		sumLat += p.Lat * w
		sumLon += p.Lon * w
		sumW += w
	}
	if sumW == 0 {
		return Point{}, false
	}
	return Point{Lat: sumLat / sumW, Lon: sumLon / sumW}, true
}

// TowerWeight derives a least-squares weight in [1e-6, 1] from signal
// metrics: stronger RSRP and better RSRQ weigh more.
func TowerWeight(rsrp, rsrq *int) float64 {
	w := 1.0
	if rsrp != nil {
		w /= math.Max(1, math.Abs(float64(*rsrp)))
	}
	if rsrq != nil {
		w /= math.Max(1, math.Abs(float64(*rsrq)))
	}
	return math.Max(1e-6, math.Min(w, 1))
}

// TrilaterateLinear3 solves three range circles in closed form by
// subtracting pairs of circle equations. It returns false when the centers
// are (nearly) collinear.
func TrilaterateLinear3(c1, c2, c3 Circle) (Point, bool) {
	pl := newPlane(c1.Center)
	x1, y1 := pl.project(c1.Center)
	x2, y2 := pl.project(c2.Center)
	x3, y3 := pl.project(c3.Center)
	r1, r2, r3 := c1.Radius, c2.Radius, c3.Radius

	a := 2 * (x2 - x1)
	b := 2 * (y2 - y1)
	c := r1*r1 - r2*r2 - x1*x1 + x2*x2 - y1*y1 + y2*y2
	d := 2 * (x3 - x2)
	e := 2 * (y3 - y2)
	f := r2*r2 - r3*r3 - x2*x2 + x3*x3 - y2*y2 + y3*y3

	denom := a*e - b*d
	if math.Abs(denom) < 1e-6 {
		return Point{}, false
	}
	return pl.unproject((c*e-b*f)/denom, (a*f-c*d)/denom), true
}

// NLLSOptions tunes TrilaterateNLLS.
type NLLSOptions struct {
	MaxIter int
	Damping float64 // initial Levenberg-Marquardt damping
	Tol     float64 // step norm in meters below which iteration stops
}

// DefaultNLLS are the solver defaults.
var DefaultNLLS = NLLSOptions{MaxIter: 25, Damping: 1e-3, Tol: 1e-3}

type anchor struct {
	x, y, r, w float64
}

// TrilaterateNLLS minimizes Σ wᵢ(‖p − pᵢ‖ − rᵢ)² with damped Gauss-Newton
// steps, seeded at the weighted centroid of the centers. It needs at least
// three circles with non-negative radii and returns false on a singular
// normal-equation solve.
func TrilaterateNLLS(circles []Circle, opts NLLSOptions) (Point, bool) {
	if len(circles) < 3 {
		return Point{}, false
	}

	pl := newPlane(circles[0].Center)
	pts := make([]anchor, 0, len(circles))
	var sw, x, y float64
	for _, c := range circles {
		if math.IsNaN(c.Radius) || c.Radius < 0 {
			return Point{}, false
		}
		px, py := pl.project(c.Center)
		w := TowerWeight(c.RSRP, c.RSRQ)
		pts = append(pts, anchor{x: px, y: py, r: c.Radius, w: w})
		sw += w
		x += px * w
		y += py * w
	}
	x /= sw
	y /= sw

	lambda := opts.Damping
	for range opts.MaxIter {
		var a11, a12, a22, b1, b2, cost float64
		for _, p := range pts {
			dx, dy := x-p.x, y-p.y
			di := math.Hypot(dx, dy)
			if di < 1e-6 {
				continue
			}
			fi := di - p.r
			jx, jy := dx/di, dy/di

			cost += p.w * fi * fi
			a11 += p.w * jx * jx
			a12 += p.w * jx * jy
			a22 += p.w * jy * jy
			b1 += p.w * fi * jx
			b2 += p.w * fi * jy
		}

		// (A + λI)·δ = −b
		d11, d22 := a11+lambda, a22+lambda
		det := d11*d22 - a12*a12
		if math.Abs(det) < 1e-12 {
			return Point{}, false
		}
		stepX := (-b1*d22 + b2*a12) / det
		stepY := (-b2*d11 + b1*a12) / det
		if math.Hypot(stepX, stepY) < opts.Tol {
			break
		}

		nx, ny := x+stepX, y+stepY
		var newCost float64
		for _, p := range pts {
			fi := math.Hypot(nx-p.x, ny-p.y) - p.r
			newCost += p.w * fi * fi
		}

		if newCost <= cost || cost == 0 {
			x, y = nx, ny
			lambda = math.Max(1e-6, lambda*0.5)
		} else {
			lambda = math.Min(1e6, lambda*2)
		}
	}

	return pl.unproject(x, y), true
}
