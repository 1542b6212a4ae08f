package annotate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/mapmind/internal/geospatial"
	"github.com/sells-group/mapmind/internal/mapengine"
	"github.com/sells-group/mapmind/internal/model"
)

// recordingSurface logs every call that reaches the adapter.
type recordingSurface struct {
	*mapengine.Adapter
	calls []string
}

func (s *recordingSurface) UpsertSource(id string, data *geojson.FeatureCollection) {
	s.calls = append(s.calls, "upsert-source:"+id)
	s.Adapter.UpsertSource(id, data)
}

func (s *recordingSurface) RemoveSource(id string) {
	s.calls = append(s.calls, "remove-source:"+id)
	s.Adapter.RemoveSource(id)
}

func (s *recordingSurface) UpsertLayer(l mapengine.Layer) {
	s.calls = append(s.calls, "upsert-layer:"+l.ID)
	s.Adapter.UpsertLayer(l)
}

func (s *recordingSurface) RemoveLayer(id string) {
	s.calls = append(s.calls, "remove-layer:"+id)
	s.Adapter.RemoveLayer(id)
}

func (s *recordingSurface) PlaceMarker(at geospatial.Coordinate, style mapengine.MarkerStyle) mapengine.MarkerHandle {
	s.calls = append(s.calls, "place-marker:"+style.Kind)
	return s.Adapter.PlaceMarker(at, style)
}

func (s *recordingSurface) RemoveMarker(h mapengine.MarkerHandle) {
	s.calls = append(s.calls, "remove-marker")
	s.Adapter.RemoveMarker(h)
}

func newTestRenderer(t *testing.T, opts ...Option) (*Renderer, *mapengine.Memory, *recordingSurface) {
	t.Helper()
	mem := mapengine.NewMemory(mapengine.DefaultViewport())
	mem.Load()
	surface := &recordingSurface{Adapter: mapengine.NewAdapter(mem)}
	return New(surface, DefaultStyle(), opts...), mem, surface
}

func ptr(v float64) *float64 { return &v }

func boundaryPayload() *model.ResultPayload {
	ring := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{-122.5, 37.7}, {-122.3, 37.7}, {-122.3, 37.9}, {-122.5, 37.9}, {-122.5, 37.7},
	}})
	fc := &geojson.FeatureCollection{Features: []*geojson.Feature{
		{Geometry: ring, Properties: map[string]any{"type": "boundary", "fillColor": "#00FF00"}},
		{
			Geometry:   geom.NewPointFlat(geom.XY, []float64{-122.45, 37.75}),
			Properties: map[string]any{"type": "poi", "name": "Plant A", "category": "power_plant", "color": "#FF8042"},
		},
		{
			Geometry:   geom.NewPointFlat(geom.XY, []float64{-122.35, 37.85}),
			Properties: map[string]any{"type": "poi", "name": "School B", "category": "school", "color": "#0088FE"},
		},
	}}
	return &model.ResultPayload{
		BoundingBox: &geospatial.BBox{MinLng: -122.5, MinLat: 37.7, MaxLng: -122.3, MaxLat: 37.9},
		Boundary:    fc,
	}
}

func pinAndDisk(t *testing.T) (geospatial.Coordinate, *geom.Polygon) {
	t.Helper()
	pin := geospatial.Coordinate{Lng: -122.4, Lat: 37.8}
	disk, err := geospatial.GeodesicDisk(pin, 5, 0)
	require.NoError(t, err)
	return pin, disk
}

// ----------------------------------------------------------------------------
// Display
// ----------------------------------------------------------------------------

func TestRenderDisplay_Boundary(t *testing.T) {
	r, mem, _ := newTestRenderer(t)
	pin, disk := pinAndDisk(t)
	r.RenderSelection(pin, disk)
	require.True(t, mem.HasLayer(LayerSelectionCircleFill))

	r.RenderDisplay(boundaryPayload())

	assert.Equal(t, []string{LayerBoundaryFill, LayerBoundaryLine, LayerPOIPoints}, mem.LayerIDs())
	assert.Equal(t, []string{SourceAreaData}, mem.SourceIDs())
	assert.Len(t, mem.RenderedFeatures(LayerPOIPoints), 2)
	assert.Len(t, mem.RenderedFeatures(LayerBoundaryFill), 1)
	assert.Empty(t, mem.Markers(), "pin must be gone")

	fit, ok := mem.LastFit()
	require.True(t, ok)
	assert.Equal(t, 10.0, fit.Options.MinZoom)
	assert.Equal(t, 12.0, fit.Options.MaxZoom)
	assert.Equal(t, 50, fit.Options.Padding)
	assert.Equal(t, 1000, fit.Options.DurationMs)
	assert.GreaterOrEqual(t, mem.View().Zoom, 10.0)
	assert.LessOrEqual(t, mem.View().Zoom, 12.0)

	assert.True(t, mem.HasHandler(LayerPOIPoints, mapengine.EventClick))
	assert.True(t, mem.HasHandler(LayerPOIPoints, mapengine.EventMouseEnter))
	assert.True(t, mem.HasHandler(LayerPOIPoints, mapengine.EventMouseLeave))
}

func TestRenderDisplay_Idempotent(t *testing.T) {
	r, mem, surface := newTestRenderer(t)

	payload := &model.ResultPayload{
		PointsOfInterest: model.POIGroups{
			{Category: "school", Points: []model.POI{{Lat: ptr(1), Lon: ptr(1)}, {Lat: ptr(1.2), Lon: ptr(1.1)}}},
		},
	}
	r.RenderDisplay(payload)
	first, err := mem.Snapshot()
	require.NoError(t, err)
	surface.calls = nil

	r.RenderDisplay(payload)
	second, err := mem.Snapshot()
	require.NoError(t, err)

	assert.Empty(t, surface.calls, "unchanged payload must not touch the surface")
	assert.Equal(t, first.Sources, second.Sources)
	assert.Equal(t, first.Layers, second.Layers)
	assert.Equal(t, first.Markers, second.Markers)

	r.RenderDisplay(boundaryPayload())
	r.RenderDisplay(boundaryPayload())
	assert.Equal(t, []string{LayerBoundaryFill, LayerBoundaryLine, LayerPOIPoints}, mem.LayerIDs())
	assert.Equal(t, []string{SourceAreaData}, mem.SourceIDs())
	assert.Empty(t, mem.Markers())
}

func TestRenderDisplay_RawPoints(t *testing.T) {
	r, mem, _ := newTestRenderer(t)

	r.RenderDisplay(&model.ResultPayload{
		PointsOfInterest: model.POIGroups{
			{Category: "school", Points: []model.POI{{Lat: ptr(1), Lon: ptr(1)}}},
			{Category: "factory", Points: []model.POI{}},
		},
	})

	markers := mem.Markers()
	require.Len(t, markers, 1)
	assert.Equal(t, geospatial.Coordinate{Lng: 1, Lat: 1}, markers[0].At)
	assert.Equal(t, DefaultPalette[0], markers[0].Style.Color)
	assert.Equal(t, 14, markers[0].Style.Size)
	assert.Equal(t, "#FFFFFF", markers[0].Style.StrokeColor)
	assert.Equal(t, 2, markers[0].Style.StrokeWidth)
	assert.Contains(t, markers[0].Style.PopupHTML, "<h4>school</h4>")
	assert.Contains(t, markers[0].Style.PopupHTML, "Category: school")

	assert.Equal(t, []string{LayerPOIBoundaryLine}, mem.LayerIDs())
	fit, ok := mem.LastFit()
	require.True(t, ok)
	assert.Equal(t, 13.0, fit.Options.MaxZoom)
	assert.Equal(t, 10.0, fit.Options.MinZoom)
}

func TestRenderDisplay_RawPointsSkipsMissingCoordinates(t *testing.T) {
	r, mem, _ := newTestRenderer(t)

	r.RenderDisplay(&model.ResultPayload{
		PointsOfInterest: model.POIGroups{
			{Category: "school", Points: []model.POI{
				{Lat: ptr(1), Lon: ptr(1), Tags: map[string]any{"name": "North High"}},
				{Lat: ptr(2)},
				{Lat: ptr(95), Lon: ptr(1)},
			}},
			{Category: "factory", Points: []model.POI{{Lat: ptr(3), Lon: ptr(4), Color: "#123456"}}},
		},
		Legend: []model.LegendEntry{
			{Name: "school", Value: 3, Color: "#ABCDEF"},
			{Name: "factory", Value: 0, Color: "#000000"},
		},
	})

	markers := mem.Markers()
	require.Len(t, markers, 2)
	assert.Equal(t, "#ABCDEF", markers[0].Style.Color, "legend overrides palette")
	assert.Contains(t, markers[0].Style.PopupHTML, "North High")
	assert.Equal(t, "#123456", markers[1].Style.Color, "point color overrides category")

	fc, ok := mem.Source(SourcePOIBoundary)
	require.True(t, ok)
	require.Len(t, fc.Features, 1)
	poly, ok := fc.Features[0].Geometry.(*geom.Polygon)
	require.True(t, ok)
	assert.Len(t, poly.LinearRing(0).Coords(), 5)
}

func TestRenderDisplay_DuplicateCategoriesClearCompletely(t *testing.T) {
	r, mem, _ := newTestRenderer(t)

	var result model.AnalysisResult
	require.NoError(t, json.Unmarshal([]byte(
		`{"pois":{"school":[{"lat":1,"lon":1}],"school":[{"lat":2,"lon":2}]}}`), &result))
	require.Len(t, result.POIs, 2)
	payload, err := result.Payload()
	require.NoError(t, err)

	r.RenderDisplay(payload)
	require.Len(t, mem.Markers(), 2)

	r.ClearDisplay()
	assert.Empty(t, mem.Markers())

	pin, disk := pinAndDisk(t)
	r.RenderSelection(pin, disk)
	markers := mem.Markers()
	require.Len(t, markers, 1)
	assert.Equal(t, "pin", markers[0].Style.Kind)
}

func TestRenderDisplay_EmptyLeavesView(t *testing.T) {
	r, mem, _ := newTestRenderer(t)
	before := mem.View()

	r.RenderDisplay(&model.ResultPayload{})
	r.RenderDisplay(nil)

	assert.Empty(t, mem.LayerIDs())
	assert.Equal(t, before, mem.View())
	_, ok := mem.LastFit()
	assert.False(t, ok)
}

func TestRenderDisplay_BoundingBoxOnly(t *testing.T) {
	r, mem, _ := newTestRenderer(t)

	r.RenderDisplay(&model.ResultPayload{
		BoundingBox: &geospatial.BBox{MinLng: 10, MinLat: 10, MaxLng: 10.01, MaxLat: 10.01},
	})

	assert.Empty(t, mem.LayerIDs())
	assert.Equal(t, 12.0, mem.View().Zoom)
}

// ----------------------------------------------------------------------------
// Selection and exclusion
// ----------------------------------------------------------------------------

func TestRenderSelection(t *testing.T) {
	r, mem, _ := newTestRenderer(t)
	pin, disk := pinAndDisk(t)

	r.RenderSelection(pin, disk)
	assert.Equal(t, []string{LayerSelectionCircleFill, LayerSelectionCircleLine}, mem.LayerIDs())
	markers := mem.Markers()
	require.Len(t, markers, 1)
	assert.Equal(t, pin, markers[0].At)

	fc, ok := mem.Source(SourceSelectionCircle)
	require.True(t, ok)
	assert.Len(t, fc.Features[0].Geometry.(*geom.Polygon).LinearRing(0).Coords(), 65)

	// A second click moves the pin and replaces the circle.
	next := geospatial.Coordinate{Lng: -122.3, Lat: 37.7}
	nextDisk, err := geospatial.GeodesicDisk(next, 5, 0)
	require.NoError(t, err)
	r.RenderSelection(next, nextDisk)
	markers = mem.Markers()
	require.Len(t, markers, 1)
	assert.Equal(t, next, markers[0].At)
	assert.Equal(t, []string{SourceSelectionCircle}, mem.SourceIDs())
}

func TestRenderSelection_WithoutDisk(t *testing.T) {
	r, mem, _ := newTestRenderer(t)
	pin, disk := pinAndDisk(t)
	r.RenderSelection(pin, disk)

	r.RenderSelection(pin, nil)
	assert.Empty(t, mem.LayerIDs())
	assert.Empty(t, mem.SourceIDs())
	assert.Len(t, mem.Markers(), 1)
}

func TestRenderer_TeardownBeforeBuild(t *testing.T) {
	r, _, surface := newTestRenderer(t)
	pin, disk := pinAndDisk(t)
	r.RenderSelection(pin, disk)
	surface.calls = nil

	r.RenderDisplay(boundaryPayload())

	firstAdd := -1
	lastRemove := -1
	for i, c := range surface.calls {
		switch {
		case len(c) > 7 && c[:7] == "remove-":
			lastRemove = i
		case firstAdd < 0:
			firstAdd = i
		}
	}
	require.GreaterOrEqual(t, lastRemove, 0)
	assert.Less(t, lastRemove, firstAdd)
	assert.Equal(t, []string{
		"remove-layer:" + LayerSelectionCircleFill,
		"remove-layer:" + LayerSelectionCircleLine,
		"remove-source:" + SourceSelectionCircle,
		"remove-marker",
	}, surface.calls[:4])
}

func TestRenderer_MutualExclusion(t *testing.T) {
	r, mem, _ := newTestRenderer(t)
	pin, disk := pinAndDisk(t)

	steps := []func(){
		func() { r.RenderSelection(pin, disk) },
		func() { r.RenderDisplay(boundaryPayload()) },
		func() { r.RenderSelection(pin, disk) },
		func() { r.ClearSelection() },
		func() { r.RenderDisplay(boundaryPayload()) },
		func() { r.ClearDisplay() },
		func() { r.RenderSelection(pin, disk) },
		func() { r.Clear() },
	}
	for i, step := range steps {
		step()
		both := mem.HasLayer(LayerPOIPoints) && mem.HasLayer(LayerSelectionCircleFill)
		assert.False(t, both, "step %d left both modes on the surface", i)
	}
	assert.Empty(t, mem.LayerIDs())
	assert.Empty(t, mem.SourceIDs())
	assert.Empty(t, mem.Markers())
}

// ----------------------------------------------------------------------------
// Interaction
// ----------------------------------------------------------------------------

func TestRenderer_PointClickShowsPopup(t *testing.T) {
	var hook []bool
	r, mem, _ := newTestRenderer(t, WithInteractionHook(func(active bool) { hook = append(hook, active) }))
	r.RenderDisplay(boundaryPayload())

	ok := mem.Emit(mapengine.LayerEvent{
		Layer: LayerPOIPoints,
		Kind:  mapengine.EventClick,
		At:    geospatial.Coordinate{Lng: -122.45, Lat: 37.75},
	}, 0.5)
	require.True(t, ok)

	popups := mem.Popups()
	require.Len(t, popups, 1)
	assert.Contains(t, popups[0].HTML, "<h3>Plant A</h3>")
	assert.Equal(t, "320px", popups[0].Options.MaxWidth)
	assert.Equal(t, "custom-popup", popups[0].Options.ClassName)
	assert.Equal(t, []bool{true, false}, hook)

	// Clicking the other point replaces the popup.
	mem.Emit(mapengine.LayerEvent{
		Layer: LayerPOIPoints,
		Kind:  mapengine.EventClick,
		At:    geospatial.Coordinate{Lng: -122.35, Lat: 37.85},
	}, 0.5)
	popups = mem.Popups()
	require.Len(t, popups, 1)
	assert.Contains(t, popups[0].HTML, "School B")

	// A miss shows nothing and leaves the hook alone.
	hook = nil
	mem.Emit(mapengine.LayerEvent{Layer: LayerPOIPoints, Kind: mapengine.EventClick, At: geospatial.Coordinate{}}, 0.5)
	assert.Nil(t, hook)
}

func TestRenderer_HoverCursor(t *testing.T) {
	r, mem, _ := newTestRenderer(t)
	r.RenderDisplay(boundaryPayload())

	mem.Emit(mapengine.LayerEvent{Layer: LayerPOIPoints, Kind: mapengine.EventMouseEnter}, 0)
	assert.Equal(t, mapengine.CursorPointer, mem.Cursor())
	mem.Emit(mapengine.LayerEvent{Layer: LayerPOIPoints, Kind: mapengine.EventMouseLeave}, 0)
	assert.Equal(t, mapengine.CursorDefault, mem.Cursor())
}

func TestRenderer_QueuedBeforeLoad(t *testing.T) {
	mem := mapengine.NewMemory(mapengine.DefaultViewport())
	r := New(mapengine.NewAdapter(mem), DefaultStyle())

	r.RenderDisplay(boundaryPayload())
	assert.Empty(t, mem.LayerIDs())

	mem.Load()
	assert.Equal(t, []string{LayerBoundaryFill, LayerBoundaryLine, LayerPOIPoints}, mem.LayerIDs())
	assert.True(t, mem.HasHandler(LayerPOIPoints, mapengine.EventClick))
}

func TestCategoryColors(t *testing.T) {
	groups := model.POIGroups{{Category: "a"}, {Category: "b"}, {Category: "c"}}
	colors := CategoryColors(groups, []model.LegendEntry{{Name: "b", Value: 1, Color: "#111111"}}, []string{"#1", "#2"})

	assert.Equal(t, map[string]string{"a": "#1", "b": "#111111", "c": "#1"}, colors)
}

func TestCategoryLabel(t *testing.T) {
	assert.Equal(t, "Power Plant", CategoryLabel("power_plant"))
	assert.Equal(t, "School", CategoryLabel("school"))
	assert.Equal(t, "", CategoryLabel(""))
}
