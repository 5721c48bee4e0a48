package geometry

import "math"

// EarthRadius is the mean Earth radius in meters.
const EarthRadius = 6371000.0

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }
func deg(rad float64) float64 { return rad * 180 / math.Pi }

// GreatCircleDistance returns the haversine distance in meters.
func GreatCircleDistance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1, phi2 := rad(lat1), rad(lat2)
	dPhi := rad(lat2 - lat1)
	dLambda := rad(lon2 - lon1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return EarthRadius * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Bearing returns the initial bearing from point 1 to point 2 in [0, 360).
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	phi1, phi2 := rad(lat1), rad(lat2)
	dLambda := rad(lon2 - lon1)

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	b := math.Mod(deg(math.Atan2(y, x))+360, 360)
	if b >= 360 {
		b = 0
	}
	return b
}

// DestinationPoint projects distance meters from (lat, lon) along the given
// initial bearing on a great circle.
func DestinationPoint(lat, lon, distance, bearing float64) Point {
	phi1 := rad(lat)
	lambda1 := rad(lon)
	theta := rad(bearing)
	delta := distance / EarthRadius

	sinPhi2 := math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta)
	phi2 := math.Asin(math.Max(-1, math.Min(1, sinPhi2)))

	y := math.Sin(theta) * math.Sin(delta) * math.Cos(phi1)
	x := math.Cos(delta) - math.Sin(phi1)*math.Sin(phi2)
	lambda2 := lambda1 + math.Atan2(y, x)

	return Point{Lat: deg(phi2), Lon: deg(lambda2)}
}

// plane is an equirectangular tangent plane around an origin, in meters.
type plane struct {
	lat0, lon0 float64 // radians
	cosLat0    float64
}

func newPlane(origin Point) plane {
	lat0 := rad(origin.Lat)
	return plane{lat0: lat0, lon0: rad(origin.Lon), cosLat0: math.Cos(lat0)}
}

func (p plane) project(pt Point) (x, y float64) {
	x = EarthRadius * (rad(pt.Lon) - p.lon0) * p.cosLat0
	y = EarthRadius * (rad(pt.Lat) - p.lat0)
	return x, y
}

func (p plane) unproject(x, y float64) Point {
	return Point{
		Lat: deg(p.lat0 + y/EarthRadius),
		Lon: deg(p.lon0 + x/(EarthRadius*p.cosLat0)),
	}
}
