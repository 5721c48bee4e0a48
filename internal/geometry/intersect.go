package geometry

import "math"

// CircleIntersections returns the two points where circles of radius r1 and
// r2 (meters) around the given centers cross. It returns nil when the circles
// are disjoint, one contains the other, or the centers coincide.
//
// The solve runs on a tangent plane at the first center, so it is only
// meaningful at cell-range distances.
func CircleIntersections(lat1, lon1, r1, lat2, lon2, r2 float64) []Point {
	d := GreatCircleDistance(lat1, lon1, lat2, lon2)
	if d > r1+r2 || d < math.Abs(r1-r2) || d == 0 {
		return nil
	}

	a := (r1*r1 - r2*r2 + d*d) / (2 * d)
	h := math.Sqrt(math.Max(0, r1*r1-a*a))

	pl := newPlane(Point{Lat: lat1, Lon: lon1})
	x2, y2 := pl.project(Point{Lat: lat2, Lon: lon2})
	norm := math.Hypot(x2, y2)
	if norm == 0 {
		return nil
	}
	ux, uy := x2/norm, y2/norm

	mx, my := a*ux, a*uy
	return []Point{
		pl.unproject(mx+h*uy, my-h*ux),
		pl.unproject(mx-h*uy, my+h*ux),
	}
}
