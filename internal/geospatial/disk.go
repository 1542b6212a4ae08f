package geospatial

import (
	"math"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// EarthRadiusKm is the IUGG mean earth radius.
const EarthRadiusKm = 6371.0088

// DefaultDiskSteps is the vertex count used when GeodesicDisk is called with
// steps <= 0.
const DefaultDiskSteps = 64

var (
	// ErrInvalidRadius is returned for a non-positive (or NaN) radius.
	ErrInvalidRadius = eris.New("geo: radius must be positive")

	// ErrGeometryBuild is returned when the disk cannot be constructed from
	// otherwise valid inputs.
	ErrGeometryBuild = eris.New("geo: geometry build failed")
)

// GeodesicDisk approximates the circle of radiusKm around center with a
// closed polygon ring of steps+1 vertices (the first vertex is repeated at
// the end). Every vertex lies radiusKm great-circle kilometers from center.
func GeodesicDisk(center Coordinate, radiusKm float64, steps int) (*geom.Polygon, error) {
	if !(radiusKm > 0) {
		return nil, eris.Wrapf(ErrInvalidRadius, "geo: radius %v km", radiusKm)
	}
	if err := center.Validate(); err != nil {
		return nil, err
	}
	if steps <= 0 {
		steps = DefaultDiskSteps
	}
	if steps < 3 {
		return nil, eris.Wrapf(ErrGeometryBuild, "geo: disk needs at least 3 vertices, got %d", steps)
	}

	radius := s1.Angle(radiusKm / EarthRadiusKm)
	if radius >= math.Pi || math.IsInf(radiusKm, 0) {
		return nil, eris.Wrapf(ErrGeometryBuild, "geo: radius %v km wraps the sphere", radiusKm)
	}

	loop := s2.RegularLoop(s2.PointFromLatLng(center.latLng()), radius, steps)
	vertices := loop.Vertices()
	if len(vertices) != steps {
		return nil, eris.Wrapf(ErrGeometryBuild, "geo: expected %d vertices, got %d", steps, len(vertices))
	}

	// Longitudes are unwrapped around the center so a disk crossing the
	// antimeridian stays one contiguous ring instead of spanning the globe.
	ring := make([]geom.Coord, 0, steps+1)
	for _, v := range vertices {
		c := coordinateFromLatLng(s2.LatLngFromPoint(v))
		ring = append(ring, geom.Coord{unwrapLng(c.Lng, center.Lng), c.Lat})
	}
	ring = append(ring, geom.Coord{ring[0][0], ring[0][1]})

	poly, err := geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{ring})
	if err != nil {
		return nil, eris.Wrap(ErrGeometryBuild, err.Error())
	}
	return poly, nil
}

// unwrapLng shifts lng by whole turns until it lies within 180 degrees of ref.
func unwrapLng(lng, ref float64) float64 {
	for lng-ref > 180 {
		lng -= 360
	}
	for lng-ref < -180 {
		lng += 360
	}
	return lng
}
