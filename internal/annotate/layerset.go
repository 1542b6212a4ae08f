package annotate

import (
	"bytes"
	"encoding/json"

	"github.com/google/go-cmp/cmp"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/mapmind/internal/geospatial"
	"github.com/sells-group/mapmind/internal/mapengine"
)

// Source, layer and marker names owned by the renderer.
const (
	SourceAreaData        = "area-data"
	SourcePOIBoundary     = "poi-boundary"
	SourceSelectionCircle = "selection-circle"

	LayerBoundaryFill        = "boundary-fill"
	LayerBoundaryLine        = "boundary-line"
	LayerPOIPoints           = "poi-points"
	LayerPOIBoundaryLine     = "poi-boundary-line"
	LayerSelectionCircleFill = "selection-circle-fill"
	LayerSelectionCircleLine = "selection-circle-line"

	MarkerPin = "pin-marker"
)

// SourceSpec is a named GeoJSON source.
type SourceSpec struct {
	ID   string                     `json:"id"`
	Data *geojson.FeatureCollection `json:"data"`
}

// MarkerSpec is a marker keyed by a stable name, e.g. "pin-marker" or
// "poi:0:3" (group index, then point index).
type MarkerSpec struct {
	Key   string                `json:"key"`
	At    geospatial.Coordinate `json:"at"`
	Style mapengine.MarkerStyle `json:"style"`
}

// LayerSet is the declarative surface content. Sources precede the layers
// that use them.
type LayerSet struct {
	Sources []SourceSpec      `json:"sources"`
	Layers  []mapengine.Layer `json:"layers"`
	Markers []MarkerSpec      `json:"markers"`
}

// IsEmpty reports whether the set holds nothing.
func (s LayerSet) IsEmpty() bool {
	return len(s.Sources) == 0 && len(s.Layers) == 0 && len(s.Markers) == 0
}

// Merge returns s followed by o.
func (s LayerSet) Merge(o LayerSet) LayerSet {
	return LayerSet{
		Sources: append(append([]SourceSpec(nil), s.Sources...), o.Sources...),
		Layers:  append(append([]mapengine.Layer(nil), s.Layers...), o.Layers...),
		Markers: append(append([]MarkerSpec(nil), s.Markers...), o.Markers...),
	}
}

// HasLayer reports whether the set contains the layer.
func (s LayerSet) HasLayer(id string) bool {
	for _, l := range s.Layers {
		if l.ID == id {
			return true
		}
	}
	return false
}

// HasSource reports whether the set contains the source.
func (s LayerSet) HasSource(id string) bool {
	for _, src := range s.Sources {
		if src.ID == id {
			return true
		}
	}
	return false
}

// HasMarker reports whether the set contains the marker key.
func (s LayerSet) HasMarker(key string) bool {
	for _, m := range s.Markers {
		if m.Key == key {
			return true
		}
	}
	return false
}

// Diff is the change needed to move the surface from one LayerSet to
// another. Removals run before additions.
type Diff struct {
	RemoveLayers  []string
	RemoveSources []string
	RemoveMarkers []string

	UpsertSources []SourceSpec
	UpsertLayers  []mapengine.Layer
	AddMarkers    []MarkerSpec
}

// IsEmpty reports whether the diff changes nothing.
func (d Diff) IsEmpty() bool {
	return len(d.RemoveLayers) == 0 && len(d.RemoveSources) == 0 && len(d.RemoveMarkers) == 0 &&
		len(d.UpsertSources) == 0 && len(d.UpsertLayers) == 0 && len(d.AddMarkers) == 0
}

// Compute returns the diff from current to desired. A changed layer or
// marker is removed and re-added; a changed source keeps its id and has its
// data replaced.
func Compute(current, desired LayerSet) Diff {
	var d Diff

	wantLayers := make(map[string]mapengine.Layer, len(desired.Layers))
	for _, l := range desired.Layers {
		wantLayers[l.ID] = l
	}
	haveLayers := make(map[string]mapengine.Layer, len(current.Layers))
	for _, l := range current.Layers {
		haveLayers[l.ID] = l
		if want, ok := wantLayers[l.ID]; !ok || !cmp.Equal(l, want) {
			d.RemoveLayers = append(d.RemoveLayers, l.ID)
		}
	}

	wantSources := make(map[string]SourceSpec, len(desired.Sources))
	for _, s := range desired.Sources {
		wantSources[s.ID] = s
	}
	haveSources := make(map[string]SourceSpec, len(current.Sources))
	for _, s := range current.Sources {
		haveSources[s.ID] = s
		if _, ok := wantSources[s.ID]; !ok {
			d.RemoveSources = append(d.RemoveSources, s.ID)
		}
	}

	wantMarkers := make(map[string]MarkerSpec, len(desired.Markers))
	for _, m := range desired.Markers {
		wantMarkers[m.Key] = m
	}
	haveMarkers := make(map[string]MarkerSpec, len(current.Markers))
	for _, m := range current.Markers {
		haveMarkers[m.Key] = m
		if want, ok := wantMarkers[m.Key]; !ok || !cmp.Equal(m, want) {
			d.RemoveMarkers = append(d.RemoveMarkers, m.Key)
		}
	}

	for _, s := range desired.Sources {
		if have, ok := haveSources[s.ID]; !ok || !sameData(have.Data, s.Data) {
			d.UpsertSources = append(d.UpsertSources, s)
		}
	}
	for _, l := range desired.Layers {
		if have, ok := haveLayers[l.ID]; !ok || !cmp.Equal(have, l) {
			d.UpsertLayers = append(d.UpsertLayers, l)
		}
	}
	for _, m := range desired.Markers {
		if have, ok := haveMarkers[m.Key]; !ok || !cmp.Equal(have, m) {
			d.AddMarkers = append(d.AddMarkers, m)
		}
	}
	return d
}

// sameData compares feature collections by their encoding; geometry values
// keep unexported state that cmp cannot walk.
func sameData(a, b *geojson.FeatureCollection) bool {
	if a == b {
		return true
	}
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
