package model

import (
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/mapmind/internal/geospatial"
)

// LegendEntry is one slice of the category distribution chart. Its color
// overrides the palette color for the matching category.
type LegendEntry struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Color string  `json:"color,omitempty"`
}

// ResultPayload is the read-only portion of an analysis result that drives
// the map display.
type ResultPayload struct {
	BoundingBox      *geospatial.BBox
	Boundary         *geojson.FeatureCollection
	PointsOfInterest POIGroups
	Legend           []LegendEntry
}

// IsEmpty reports whether the payload carries nothing to display.
func (p *ResultPayload) IsEmpty() bool {
	return p == nil || (p.BoundingBox == nil && p.Boundary == nil && p.PointsOfInterest == nil)
}

// DisplayGeometry is the geometry variant a payload renders as: exactly one
// of BoundaryGeometry, RawPointsGeometry or EmptyGeometry.
type DisplayGeometry interface {
	displayGeometry()
}

// BoundaryGeometry renders a feature collection that embeds the boundary and
// its categorized points.
type BoundaryGeometry struct {
	Collection *geojson.FeatureCollection
}

// RawPointsGeometry renders loose categorized points as individual markers.
type RawPointsGeometry struct {
	Groups POIGroups
}

// EmptyGeometry renders nothing.
type EmptyGeometry struct{}

func (BoundaryGeometry) displayGeometry()  {}
func (RawPointsGeometry) displayGeometry() {}
func (EmptyGeometry) displayGeometry()     {}

// Geometry selects the display variant. The boundary wins when present.
func (p *ResultPayload) Geometry() DisplayGeometry {
	switch {
	case p == nil:
		return EmptyGeometry{}
	case p.Boundary != nil:
		return BoundaryGeometry{Collection: p.Boundary}
	case p.PointsOfInterest != nil:
		return RawPointsGeometry{Groups: p.PointsOfInterest}
	default:
		return EmptyGeometry{}
	}
}
