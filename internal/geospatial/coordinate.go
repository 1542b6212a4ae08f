// Package geospatial holds the geographic value types and the pure geometry
// used to annotate the map: coordinates, bounding boxes and geodesic disks.
package geospatial

import (
	"math"

	"github.com/golang/geo/s2"
	"github.com/rotisserie/eris"
)

// ErrInvalidCoordinate is returned for coordinates outside WGS84 ranges.
var ErrInvalidCoordinate = eris.New("geo: invalid coordinate")

// Coordinate is an immutable WGS84 longitude/latitude pair.
type Coordinate struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// Validate checks lng ∈ [-180,180] and lat ∈ [-90,90].
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lng) || math.IsNaN(c.Lat) {
		return eris.Wrap(ErrInvalidCoordinate, "geo: NaN component")
	}
	if c.Lng < -180 || c.Lng > 180 {
		return eris.Wrapf(ErrInvalidCoordinate, "geo: longitude %v out of range", c.Lng)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return eris.Wrapf(ErrInvalidCoordinate, "geo: latitude %v out of range", c.Lat)
	}
	return nil
}

// XY returns the coordinate in GeoJSON [lng, lat] order.
func (c Coordinate) XY() []float64 {
	return []float64{c.Lng, c.Lat}
}

func (c Coordinate) latLng() s2.LatLng {
	return s2.LatLngFromDegrees(c.Lat, c.Lng)
}

func coordinateFromLatLng(ll s2.LatLng) Coordinate {
	return Coordinate{Lng: ll.Lng.Degrees(), Lat: ll.Lat.Degrees()}
}

// DistanceKm returns the great-circle distance between a and b on a sphere of
// EarthRadiusKm.
func DistanceKm(a, b Coordinate) float64 {
	return a.latLng().Distance(b.latLng()).Radians() * EarthRadiusKm
}
