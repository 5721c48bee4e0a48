package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	tehranLat = 35.7
	tehranLon = 51.4
)

func TestGreatCircleDistance(t *testing.T) {
	assert.InDelta(t, 111194.93, GreatCircleDistance(0, 0, 0, 1), 0.01)
	assert.InDelta(t, 111194.93, GreatCircleDistance(0, 0, 1, 0), 0.01)
	assert.Zero(t, GreatCircleDistance(tehranLat, tehranLon, tehranLat, tehranLon))
	assert.InDelta(t,
		GreatCircleDistance(tehranLat, tehranLon, 35.8, 51.5),
		GreatCircleDistance(35.8, 51.5, tehranLat, tehranLon), 1e-9)
}

func TestBearing(t *testing.T) {
	tests := []struct {
		name       string
		lat2, lon2 float64
		want       float64
	}{
		{"north", 1, 0, 0},
		{"east", 0, 1, 90},
		{"south", -1, 0, 180},
		{"west", 0, -1, 270},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Bearing(0, 0, tt.lat2, tt.lon2), 1e-9)
		})
	}
}

func TestBearingRange(t *testing.T) {
	for _, lon := range []float64{-179, -90, -1e-9, 0.5, 179} {
		b := Bearing(10, 0, 9, lon)
		assert.GreaterOrEqual(t, b, 0.0)
		assert.Less(t, b, 360.0)
	}
}

func TestDestinationPoint(t *testing.T) {
	for _, bearing := range []float64{0, 45, 135, 225, 315} {
		p := DestinationPoint(tehranLat, tehranLon, 1000, bearing)

		assert.InDelta(t, 1000, GreatCircleDistance(tehranLat, tehranLon, p.Lat, p.Lon), 0.01)
		assert.InDelta(t, bearing, Bearing(tehranLat, tehranLon, p.Lat, p.Lon), 0.01)
	}
}

func TestDestinationPointZeroDistance(t *testing.T) {
	p := DestinationPoint(tehranLat, tehranLon, 0, 90)
	assert.InDelta(t, tehranLat, p.Lat, 1e-12)
	assert.InDelta(t, tehranLon, p.Lon, 1e-12)
}

func TestPlaneRoundTrip(t *testing.T) {
	pl := newPlane(Point{Lat: tehranLat, Lon: tehranLon})
	in := Point{Lat: 35.71, Lon: 51.42}

	x, y := pl.project(in)
	out := pl.unproject(x, y)

	assert.InDelta(t, in.Lat, out.Lat, 1e-12)
	assert.InDelta(t, in.Lon, out.Lon, 1e-12)
}
