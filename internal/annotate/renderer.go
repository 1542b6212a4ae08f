// Package annotate turns analysis payloads and selection state into the
// declarative set of sources, layers and markers shown on the map, and
// applies it through the map engine adapter.
package annotate

import (
	"fmt"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/mapmind/internal/geospatial"
	"github.com/sells-group/mapmind/internal/mapengine"
	"github.com/sells-group/mapmind/internal/model"
)

// Surface is the part of the map engine adapter the renderer drives.
type Surface interface {
	UpsertSource(id string, data *geojson.FeatureCollection)
	RemoveSource(id string)
	UpsertLayer(layer mapengine.Layer)
	RemoveLayer(id string)
	FitToBounds(box geospatial.BBox, opts mapengine.FitOptions)
	PlaceMarker(at geospatial.Coordinate, style mapengine.MarkerStyle) mapengine.MarkerHandle
	RemoveMarker(h mapengine.MarkerHandle)
	ShowPopup(at geospatial.Coordinate, html string, opts mapengine.PopupOptions)
	ClosePopups()
	OnLayerEvent(layerID string, kind mapengine.EventKind, h mapengine.Handler)
	SetCursor(c mapengine.Cursor)
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithInteractionHook registers fn to be told when a popup click starts
// (true) and finishes (false).
func WithInteractionHook(fn func(active bool)) Option {
	return func(r *Renderer) { r.interaction = fn }
}

// Renderer is the only writer of map sources, layers and markers. Display
// and selection artifacts are never on the surface together.
type Renderer struct {
	surface     Surface
	style       Style
	interaction func(bool)

	display   LayerSet
	selection LayerSet
	current   LayerSet
	handles   map[string]mapengine.MarkerHandle
}

// New returns a Renderer drawing on surface.
func New(surface Surface, style Style, opts ...Option) *Renderer {
	r := &Renderer{
		surface: surface,
		style:   style.withDefaults(),
		handles: make(map[string]mapengine.MarkerHandle),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Current returns the LayerSet last applied.
func (r *Renderer) Current() LayerSet { return r.current }

// Style returns the effective style.
func (r *Renderer) Style() Style { return r.style }

// RenderDisplay replaces whatever is drawn with the payload's display
// artifacts, then fits the view to the payload bounding box if it has one.
// Rendering the same payload twice leaves the surface unchanged.
func (r *Renderer) RenderDisplay(payload *model.ResultPayload) {
	var (
		set LayerSet
		fit *geospatial.BBox
	)
	switch g := payload.Geometry().(type) {
	case model.BoundaryGeometry:
		set = r.boundaryLayers(g.Collection)
	case model.RawPointsGeometry:
		set, fit = r.pointLayers(g.Groups, payload.Legend)
	case model.EmptyGeometry:
	}

	r.selection = LayerSet{}
	r.display = set
	r.apply()

	if fit != nil {
		r.surface.FitToBounds(*fit, mapengine.FitOptions{
			Padding:    r.style.FitPadding,
			MinZoom:    r.style.DisplayMinZoom,
			MaxZoom:    r.style.PointsMaxZoom,
			DurationMs: r.style.FitDurationMs,
		})
	}
	if payload != nil && payload.BoundingBox != nil {
		r.surface.FitToBounds(*payload.BoundingBox, mapengine.FitOptions{
			Padding:    r.style.FitPadding,
			MinZoom:    r.style.DisplayMinZoom,
			MaxZoom:    r.style.DisplayMaxZoom,
			DurationMs: r.style.FitDurationMs,
		})
	}
}

// RenderSelection draws the pin and, when disk is non-nil, the radius
// preview. Display artifacts are removed first.
func (r *Renderer) RenderSelection(pin geospatial.Coordinate, disk *geom.Polygon) {
	set := LayerSet{
		Markers: []MarkerSpec{{
			Key: MarkerPin,
			At:  pin,
			Style: mapengine.MarkerStyle{
				Kind:  "pin",
				Color: r.style.PinColor,
			},
		}},
	}
	if disk != nil {
		set.Sources = []SourceSpec{{
			ID: SourceSelectionCircle,
			Data: &geojson.FeatureCollection{Features: []*geojson.Feature{
				{Geometry: disk, Properties: map[string]any{}},
			}},
		}}
		set.Layers = []mapengine.Layer{
			{
				ID:     LayerSelectionCircleFill,
				Type:   mapengine.LayerFill,
				Source: SourceSelectionCircle,
				Paint: map[string]any{
					"fill-color":   r.style.SelectionColor,
					"fill-opacity": 0.2,
				},
			},
			{
				ID:     LayerSelectionCircleLine,
				Type:   mapengine.LayerLine,
				Source: SourceSelectionCircle,
				Paint: map[string]any{
					"line-color": r.style.SelectionColor,
					"line-width": 2,
				},
			},
		}
	}

	r.display = LayerSet{}
	r.selection = set
	r.apply()
}

// ClearSelection removes the pin and radius preview.
func (r *Renderer) ClearSelection() {
	r.selection = LayerSet{}
	r.apply()
}

// ClearDisplay removes display artifacts and any open popup.
func (r *Renderer) ClearDisplay() {
	r.display = LayerSet{}
	r.apply()
	r.surface.ClosePopups()
}

// Clear removes everything the renderer drew.
func (r *Renderer) Clear() {
	r.display = LayerSet{}
	r.selection = LayerSet{}
	r.apply()
	r.surface.ClosePopups()
}

// apply moves the surface to display+selection: removals of layers, then
// sources, then markers, then additions in the same order.
func (r *Renderer) apply() {
	desired := r.display.Merge(r.selection)
	d := Compute(r.current, desired)
	if d.IsEmpty() {
		return
	}

	for _, id := range d.RemoveLayers {
		r.surface.RemoveLayer(id)
	}
	for _, id := range d.RemoveSources {
		r.surface.RemoveSource(id)
	}
	for _, key := range d.RemoveMarkers {
		if h, ok := r.handles[key]; ok {
			r.surface.RemoveMarker(h)
			delete(r.handles, key)
		}
	}

	for _, s := range d.UpsertSources {
		r.surface.UpsertSource(s.ID, s.Data)
	}
	for _, l := range d.UpsertLayers {
		r.surface.UpsertLayer(l)
		r.bind(l.ID)
	}
	for _, m := range d.AddMarkers {
		r.handles[m.Key] = r.surface.PlaceMarker(m.At, m.Style)
	}

	r.current = desired
	zap.L().Debug("annotate: applied layer set",
		zap.Int("layers", len(desired.Layers)),
		zap.Int("sources", len(desired.Sources)),
		zap.Int("markers", len(desired.Markers)),
		zap.Int("removed_layers", len(d.RemoveLayers)),
		zap.Int("added_layers", len(d.UpsertLayers)),
	)
}

// bind attaches interaction handlers to a freshly added layer. The engine
// drops handlers together with their layer.
func (r *Renderer) bind(layerID string) {
	if layerID != LayerPOIPoints {
		return
	}
	r.surface.OnLayerEvent(layerID, mapengine.EventClick, r.handlePointClick)
	r.surface.OnLayerEvent(layerID, mapengine.EventMouseEnter, func(mapengine.LayerEvent) {
		r.surface.SetCursor(mapengine.CursorPointer)
	})
	r.surface.OnLayerEvent(layerID, mapengine.EventMouseLeave, func(mapengine.LayerEvent) {
		r.surface.SetCursor(mapengine.CursorDefault)
	})
}

func (r *Renderer) handlePointClick(ev mapengine.LayerEvent) {
	if len(ev.Features) == 0 {
		return
	}
	if r.interaction != nil {
		r.interaction(true)
		defer r.interaction(false)
	}

	html, err := ComposePopup(model.PointPropertiesFrom(ev.Features[0].Properties))
	if err != nil {
		zap.L().Warn("annotate: popup not shown", zap.Error(err))
		return
	}
	r.surface.ShowPopup(ev.At, html, mapengine.PopupOptions{
		MaxWidth:  r.style.PopupMaxWidth,
		ClassName: "custom-popup",
	})
}

func (r *Renderer) boundaryLayers(fc *geojson.FeatureCollection) LayerSet {
	return LayerSet{
		Sources: []SourceSpec{{ID: SourceAreaData, Data: fc}},
		Layers: []mapengine.Layer{
			{
				ID:     LayerBoundaryFill,
				Type:   mapengine.LayerFill,
				Source: SourceAreaData,
				Filter: mapengine.Eq("type", model.FeatureTypeBoundary),
				Paint: map[string]any{
					"fill-color":   []any{"coalesce", mapengine.Get("fillColor"), r.style.BoundaryLineColor},
					"fill-opacity": []any{"coalesce", mapengine.Get("fillOpacity"), 0.1},
				},
			},
			{
				ID:     LayerBoundaryLine,
				Type:   mapengine.LayerLine,
				Source: SourceAreaData,
				Filter: mapengine.Eq("type", model.FeatureTypeBoundary),
				Paint: map[string]any{
					"line-color":   r.style.BoundaryLineColor,
					"line-width":   3,
					"line-opacity": 1.0,
				},
			},
			{
				ID:     LayerPOIPoints,
				Type:   mapengine.LayerCircle,
				Source: SourceAreaData,
				Filter: mapengine.Eq("type", model.FeatureTypePOI),
				Paint: map[string]any{
					"circle-radius":       8,
					"circle-color":        mapengine.Get("color"),
					"circle-stroke-width": 1,
					"circle-stroke-color": r.style.MarkerStrokeColor,
				},
			},
		},
	}
}

// pointLayers builds one marker per point with a usable coordinate and an
// outline of their bounds. Points without one are skipped.
func (r *Renderer) pointLayers(groups model.POIGroups, legend []model.LegendEntry) (LayerSet, *geospatial.BBox) {
	colors := CategoryColors(groups, legend, r.style.Palette)

	var (
		set    LayerSet
		coords []geospatial.Coordinate
	)
	for gi, g := range groups {
		for i, p := range g.Points {
			at, ok := p.Coordinate()
			if !ok {
				continue
			}
			coords = append(coords, at)

			color := colors[g.Category]
			if p.Color != "" {
				color = p.Color
			}
			popup, err := markerPopup(p.Label(g.Category), g.Category)
			if err != nil {
				zap.L().Warn("annotate: marker popup skipped", zap.String("category", g.Category), zap.Error(err))
			}
			set.Markers = append(set.Markers, MarkerSpec{
				Key: fmt.Sprintf("poi:%d:%d", gi, i),
				At:  at,
				Style: mapengine.MarkerStyle{
					Kind:        "poi",
					Color:       color,
					StrokeColor: r.style.MarkerStrokeColor,
					StrokeWidth: r.style.MarkerStrokeWidth,
					Size:        r.style.MarkerSize,
					PopupHTML:   popup,
				},
			})
		}
	}

	box, ok := geospatial.BoundsOf(coords)
	if !ok {
		return set, nil
	}
	set.Sources = []SourceSpec{{
		ID: SourcePOIBoundary,
		Data: &geojson.FeatureCollection{Features: []*geojson.Feature{
			{Geometry: box.Polygon(), Properties: map[string]any{}},
		}},
	}}
	set.Layers = []mapengine.Layer{{
		ID:     LayerPOIBoundaryLine,
		Type:   mapengine.LayerLine,
		Source: SourcePOIBoundary,
		Paint: map[string]any{
			"line-color":   r.style.BoundaryLineColor,
			"line-width":   3,
			"line-opacity": 1.0,
		},
	}}
	return set, &box
}
