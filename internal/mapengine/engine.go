// Package mapengine wraps an interactive map surface behind a small
// capability interface: named GeoJSON sources, styled layers, markers,
// popups, view fitting and layer events.
package mapengine

import (
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/mapmind/internal/geospatial"
)

// LayerType is the render type of a layer.
type LayerType string

const (
	LayerFill   LayerType = "fill"
	LayerLine   LayerType = "line"
	LayerCircle LayerType = "circle"
)

// Layer renders one source with a paint spec and an optional filter
// expression, e.g. ["==", ["get", "type"], "poi"].
type Layer struct {
	ID     string         `json:"id"`
	Type   LayerType      `json:"type"`
	Source string         `json:"source"`
	Filter []any          `json:"filter,omitempty"`
	Paint  map[string]any `json:"paint,omitempty"`
}

// FitOptions controls a view fit.
type FitOptions struct {
	Padding    int     `json:"padding"`
	MinZoom    float64 `json:"min_zoom"`
	MaxZoom    float64 `json:"max_zoom"`
	DurationMs int     `json:"duration_ms"`
}

// MarkerStyle describes a marker element. PopupHTML, when set, is a popup
// bound to the marker itself.
type MarkerStyle struct {
	Kind        string `json:"kind"`
	Color       string `json:"color"`
	StrokeColor string `json:"stroke_color,omitempty"`
	StrokeWidth int    `json:"stroke_width,omitempty"`
	Size        int    `json:"size,omitempty"`
	PopupHTML   string `json:"popup_html,omitempty"`
}

// MarkerHandle identifies a placed marker.
type MarkerHandle string

// PopupOptions controls popup presentation.
type PopupOptions struct {
	MaxWidth    string `json:"max_width,omitempty"`
	ClassName   string `json:"class_name,omitempty"`
	Offset      int    `json:"offset,omitempty"`
	CloseButton bool   `json:"close_button"`
}

// EventKind is a pointer interaction on a layer.
type EventKind string

const (
	EventClick      EventKind = "click"
	EventMouseEnter EventKind = "mouseenter"
	EventMouseLeave EventKind = "mouseleave"
)

// LayerEvent is delivered to layer handlers.
type LayerEvent struct {
	Layer    string
	Kind     EventKind
	At       geospatial.Coordinate
	Features []*geojson.Feature
}

// Handler receives layer events.
type Handler func(LayerEvent)

// Cursor is the surface cursor style.
type Cursor string

const (
	CursorDefault Cursor = ""
	CursorPointer Cursor = "pointer"
)

// Engine is the primitive surface of a concrete map library. Implementations
// follow maplibre semantics: adding an existing id and removing a missing
// one are errors, and a source cannot be removed while a layer uses it.
type Engine interface {
	// OnLoad registers fn to run once initial load completes, or
	// immediately if the surface is already loaded.
	OnLoad(fn func())

	HasSource(id string) bool
	AddSource(id string, data *geojson.FeatureCollection) error
	SetSourceData(id string, data *geojson.FeatureCollection) error
	RemoveSource(id string) error

	HasLayer(id string) bool
	AddLayer(layer Layer) error
	RemoveLayer(id string) error

	FitBounds(box geospatial.BBox, opts FitOptions) error
	FlyTo(center geospatial.Coordinate, zoom float64) error

	AddMarker(h MarkerHandle, at geospatial.Coordinate, style MarkerStyle) error
	RemoveMarker(h MarkerHandle) error

	OpenPopup(at geospatial.Coordinate, html string, opts PopupOptions) error
	ClosePopups()

	// On replaces the handler for (layer, kind).
	On(layerID string, kind EventKind, h Handler)
	SetCursor(c Cursor)
}
