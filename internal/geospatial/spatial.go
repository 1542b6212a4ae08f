package geospatial

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// BBox represents a geographic bounding box.
type BBox struct {
	MinLng float64 `json:"min_lng"`
	MinLat float64 `json:"min_lat"`
	MaxLng float64 `json:"max_lng"`
	MaxLat float64 `json:"max_lat"`
}

// BBoxFromSlice builds a BBox from the GeoJSON [minLng, minLat, maxLng, maxLat]
// ordering.
func BBoxFromSlice(v []float64) (BBox, error) {
	if len(v) != 4 {
		return BBox{}, eris.Errorf("geo: bbox needs 4 values, got %d", len(v))
	}
	b := BBox{MinLng: v[0], MinLat: v[1], MaxLng: v[2], MaxLat: v[3]}
	if err := b.Validate(); err != nil {
		return BBox{}, err
	}
	return b, nil
}

// Slice returns the box in [minLng, minLat, maxLng, maxLat] order.
func (b BBox) Slice() []float64 {
	return []float64{b.MinLng, b.MinLat, b.MaxLng, b.MaxLat}
}

// Validate checks both corners and their ordering.
func (b BBox) Validate() error {
	if err := b.SouthWest().Validate(); err != nil {
		return eris.Wrap(err, "geo: bbox south-west corner")
	}
	if err := b.NorthEast().Validate(); err != nil {
		return eris.Wrap(err, "geo: bbox north-east corner")
	}
	if b.MinLng > b.MaxLng || b.MinLat > b.MaxLat {
		return eris.Errorf("geo: bbox corners inverted %v", b.Slice())
	}
	return nil
}

// SouthWest returns the minimum corner.
func (b BBox) SouthWest() Coordinate { return Coordinate{Lng: b.MinLng, Lat: b.MinLat} }

// NorthEast returns the maximum corner.
func (b BBox) NorthEast() Coordinate { return Coordinate{Lng: b.MaxLng, Lat: b.MaxLat} }

// Corners returns sw, se, ne, nw.
func (b BBox) Corners() [4]Coordinate {
	return [4]Coordinate{
		{Lng: b.MinLng, Lat: b.MinLat},
		{Lng: b.MaxLng, Lat: b.MinLat},
		{Lng: b.MaxLng, Lat: b.MaxLat},
		{Lng: b.MinLng, Lat: b.MaxLat},
	}
}

// Polygon returns the box outline as a closed five-vertex ring.
func (b BBox) Polygon() *geom.Polygon {
	corners := b.Corners()
	ring := make([]geom.Coord, 0, 5)
	for _, c := range corners {
		ring = append(ring, geom.Coord{c.Lng, c.Lat})
	}
	ring = append(ring, geom.Coord{corners[0].Lng, corners[0].Lat})
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{ring})
}

// BoundsOf returns the smallest box enclosing coords. ok is false when coords
// is empty.
func BoundsOf(coords []Coordinate) (box BBox, ok bool) {
	if len(coords) == 0 {
		return BBox{}, false
	}
	bounds := geom.NewBounds(geom.XY)
	for _, c := range coords {
		bounds.Extend(geom.NewPointFlat(geom.XY, c.XY()))
	}
	if bounds.IsEmpty() {
		return BBox{}, false
	}
	return BBox{
		MinLng: bounds.Min(0),
		MinLat: bounds.Min(1),
		MaxLng: bounds.Max(0),
		MaxLat: bounds.Max(1),
	}, true
}
