package mapengine

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/mapmind/internal/geospatial"
)

const tileSize = 256.0

// Viewport is the pixel size and global zoom clamp of a Memory surface.
type Viewport struct {
	Width   int                   `json:"width"`
	Height  int                   `json:"height"`
	MinZoom float64               `json:"min_zoom"`
	MaxZoom float64               `json:"max_zoom"`
	Center  geospatial.Coordinate `json:"center"`
	Zoom    float64               `json:"zoom"`
}

// DefaultViewport is a 1024×768 world view clamped to zoom 2–16.
func DefaultViewport() Viewport {
	return Viewport{Width: 1024, Height: 768, MinZoom: 2, MaxZoom: 16, Zoom: 0.5}
}

// View is the current camera.
type View struct {
	Center geospatial.Coordinate `json:"center"`
	Zoom   float64               `json:"zoom"`
}

// Fit records the last fit request.
type Fit struct {
	Box     geospatial.BBox `json:"bbox"`
	Options FitOptions      `json:"options"`
}

// Marker is a placed marker.
type Marker struct {
	Handle MarkerHandle          `json:"handle"`
	At     geospatial.Coordinate `json:"at"`
	Style  MarkerStyle           `json:"style"`
}

// Popup is an open popup.
type Popup struct {
	At      geospatial.Coordinate `json:"at"`
	HTML    string                `json:"html"`
	Options PopupOptions          `json:"options"`
}

type handlerKey struct {
	layer string
	kind  EventKind
}

// Memory is an in-process Engine holding the authoritative surface state.
// A remote client mirrors it from Snapshot. It is not safe for concurrent
// use; callers serialize access.
type Memory struct {
	viewport Viewport
	loaded   bool
	onLoad   []func()

	sources     map[string]*geojson.FeatureCollection
	sourceOrder []string
	layers      []Layer
	markers     []Marker
	popups      []Popup
	handlers    map[handlerKey]Handler
	cursor      Cursor
	view        View
	lastFit     *Fit
}

// NewMemory returns an unloaded surface.
func NewMemory(vp Viewport) *Memory {
	if vp.Width <= 0 || vp.Height <= 0 {
		def := DefaultViewport()
		vp.Width, vp.Height = def.Width, def.Height
	}
	if vp.MaxZoom <= 0 {
		vp.MaxZoom = DefaultViewport().MaxZoom
	}
	return &Memory{
		viewport: vp,
		sources:  make(map[string]*geojson.FeatureCollection),
		handlers: make(map[handlerKey]Handler),
		view:     View{Center: vp.Center, Zoom: vp.Zoom},
	}
}

// Load completes the initial load and runs registered callbacks once.
func (m *Memory) Load() {
	if m.loaded {
		return
	}
	m.loaded = true
	callbacks := m.onLoad
	m.onLoad = nil
	for _, fn := range callbacks {
		fn()
	}
}

// Loaded reports whether Load has run.
func (m *Memory) Loaded() bool { return m.loaded }

// OnLoad implements Engine.
func (m *Memory) OnLoad(fn func()) {
	if m.loaded {
		fn()
		return
	}
	m.onLoad = append(m.onLoad, fn)
}

// HasSource implements Engine.
func (m *Memory) HasSource(id string) bool {
	_, ok := m.sources[id]
	return ok
}

// AddSource implements Engine.
func (m *Memory) AddSource(id string, data *geojson.FeatureCollection) error {
	if m.HasSource(id) {
		return eris.Errorf("mapengine: source %q already exists", id)
	}
	m.sources[id] = emptyIfNil(data)
	m.sourceOrder = append(m.sourceOrder, id)
	return nil
}

// SetSourceData implements Engine.
func (m *Memory) SetSourceData(id string, data *geojson.FeatureCollection) error {
	if !m.HasSource(id) {
		return eris.Errorf("mapengine: source %q does not exist", id)
	}
	m.sources[id] = emptyIfNil(data)
	return nil
}

// RemoveSource implements Engine.
func (m *Memory) RemoveSource(id string) error {
	if !m.HasSource(id) {
		return eris.Errorf("mapengine: source %q does not exist", id)
	}
	for _, l := range m.layers {
		if l.Source == id {
			return eris.Errorf("mapengine: source %q is in use by layer %q", id, l.ID)
		}
	}
	delete(m.sources, id)
	m.sourceOrder = removeString(m.sourceOrder, id)
	return nil
}

// HasLayer implements Engine.
func (m *Memory) HasLayer(id string) bool {
	return m.layerIndex(id) >= 0
}

// AddLayer implements Engine.
func (m *Memory) AddLayer(layer Layer) error {
	if m.HasLayer(layer.ID) {
		return eris.Errorf("mapengine: layer %q already exists", layer.ID)
	}
	if !m.HasSource(layer.Source) {
		return eris.Errorf("mapengine: layer %q references missing source %q", layer.ID, layer.Source)
	}
	m.layers = append(m.layers, layer)
	return nil
}

// RemoveLayer implements Engine. Handlers bound to the layer are dropped.
func (m *Memory) RemoveLayer(id string) error {
	i := m.layerIndex(id)
	if i < 0 {
		return eris.Errorf("mapengine: layer %q does not exist", id)
	}
	m.layers = append(m.layers[:i], m.layers[i+1:]...)
	for key := range m.handlers {
		if key.layer == id {
			delete(m.handlers, key)
		}
	}
	return nil
}

// FitBounds implements Engine. The resulting zoom is the largest that shows
// the whole box inside the padded viewport, clamped to the options and the
// viewport limits.
func (m *Memory) FitBounds(box geospatial.BBox, opts FitOptions) error {
	if err := box.Validate(); err != nil {
		return eris.Wrap(err, "mapengine: fit bounds")
	}
	zoom := fitZoom(box, m.viewport, opts.Padding)
	if opts.MaxZoom > 0 {
		zoom = math.Min(zoom, opts.MaxZoom)
	}
	if opts.MinZoom > 0 {
		zoom = math.Max(zoom, opts.MinZoom)
	}
	zoom = m.clampZoom(zoom)

	m.view = View{
		Center: geospatial.Coordinate{
			Lng: (box.MinLng + box.MaxLng) / 2,
			Lat: (box.MinLat + box.MaxLat) / 2,
		},
		Zoom: zoom,
	}
	m.lastFit = &Fit{Box: box, Options: opts}
	return nil
}

// FlyTo implements Engine.
func (m *Memory) FlyTo(center geospatial.Coordinate, zoom float64) error {
	if err := center.Validate(); err != nil {
		return eris.Wrap(err, "mapengine: fly to")
	}
	m.view = View{Center: center, Zoom: m.clampZoom(zoom)}
	return nil
}

// AddMarker implements Engine.
func (m *Memory) AddMarker(h MarkerHandle, at geospatial.Coordinate, style MarkerStyle) error {
	for _, mk := range m.markers {
		if mk.Handle == h {
			return eris.Errorf("mapengine: marker %q already placed", h)
		}
	}
	m.markers = append(m.markers, Marker{Handle: h, At: at, Style: style})
	return nil
}

// RemoveMarker implements Engine.
func (m *Memory) RemoveMarker(h MarkerHandle) error {
	for i, mk := range m.markers {
		if mk.Handle == h {
			m.markers = append(m.markers[:i], m.markers[i+1:]...)
			return nil
		}
	}
	return eris.Errorf("mapengine: marker %q not found", h)
}

// OpenPopup implements Engine.
func (m *Memory) OpenPopup(at geospatial.Coordinate, html string, opts PopupOptions) error {
	m.popups = append(m.popups, Popup{At: at, HTML: html, Options: opts})
	return nil
}

// ClosePopups implements Engine.
func (m *Memory) ClosePopups() {
	m.popups = nil
}

// On implements Engine.
func (m *Memory) On(layerID string, kind EventKind, h Handler) {
	m.handlers[handlerKey{layer: layerID, kind: kind}] = h
}

// SetCursor implements Engine.
func (m *Memory) SetCursor(c Cursor) {
	m.cursor = c
}

// Emit dispatches ev to the handler bound for its layer and kind. Click
// events without features pick the rendered point features of the layer
// within toleranceKm of ev.At, nearest first. It reports whether a handler
// ran.
func (m *Memory) Emit(ev LayerEvent, toleranceKm float64) bool {
	h, ok := m.handlers[handlerKey{layer: ev.Layer, kind: ev.Kind}]
	if !ok {
		return false
	}
	if ev.Kind == EventClick && len(ev.Features) == 0 {
		ev.Features = m.FeaturesAt(ev.Layer, ev.At, toleranceKm)
	}
	h(ev)
	return true
}

// RenderedFeatures returns the features of the layer's source that pass its
// filter.
func (m *Memory) RenderedFeatures(layerID string) []*geojson.Feature {
	i := m.layerIndex(layerID)
	if i < 0 {
		return nil
	}
	layer := m.layers[i]
	fc := m.sources[layer.Source]
	if fc == nil {
		return nil
	}
	var out []*geojson.Feature
	for _, f := range fc.Features {
		ok, err := MatchFilter(layer.Filter, f.Properties)
		if err != nil || !ok {
			continue
		}
		out = append(out, f)
	}
	return out
}

// FeaturesAt returns the rendered point features of a layer within
// toleranceKm of at, nearest first.
func (m *Memory) FeaturesAt(layerID string, at geospatial.Coordinate, toleranceKm float64) []*geojson.Feature {
	type hit struct {
		f *geojson.Feature
		d float64
	}
	var hits []hit
	for _, f := range m.RenderedFeatures(layerID) {
		pt, ok := f.Geometry.(*geom.Point)
		if !ok {
			continue
		}
		d := geospatial.DistanceKm(at, geospatial.Coordinate{Lng: pt.X(), Lat: pt.Y()})
		if d <= toleranceKm {
			hits = append(hits, hit{f: f, d: d})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].d < hits[j].d })
	out := make([]*geojson.Feature, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.f)
	}
	return out
}

// Source returns the data of a source.
func (m *Memory) Source(id string) (*geojson.FeatureCollection, bool) {
	fc, ok := m.sources[id]
	return fc, ok
}

// SourceIDs returns source ids in insertion order.
func (m *Memory) SourceIDs() []string {
	return append([]string(nil), m.sourceOrder...)
}

// Layers returns the layers in draw order.
func (m *Memory) Layers() []Layer {
	return append([]Layer(nil), m.layers...)
}

// LayerIDs returns layer ids in draw order.
func (m *Memory) LayerIDs() []string {
	ids := make([]string, 0, len(m.layers))
	for _, l := range m.layers {
		ids = append(ids, l.ID)
	}
	return ids
}

// Markers returns placed markers in placement order.
func (m *Memory) Markers() []Marker {
	return append([]Marker(nil), m.markers...)
}

// Popups returns the open popups.
func (m *Memory) Popups() []Popup {
	return append([]Popup(nil), m.popups...)
}

// Cursor returns the current cursor.
func (m *Memory) Cursor() Cursor { return m.cursor }

// View returns the current camera.
func (m *Memory) View() View { return m.view }

// LastFit returns the most recent fit, if any.
func (m *Memory) LastFit() (Fit, bool) {
	if m.lastFit == nil {
		return Fit{}, false
	}
	return *m.lastFit, true
}

// HasHandler reports whether a handler is bound for (layer, kind).
func (m *Memory) HasHandler(layerID string, kind EventKind) bool {
	_, ok := m.handlers[handlerKey{layer: layerID, kind: kind}]
	return ok
}

// SourceState is one source in a Snapshot.
type SourceState struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// State is the JSON view of the surface for remote clients.
type State struct {
	Loaded  bool          `json:"loaded"`
	View    View          `json:"view"`
	Fit     *Fit          `json:"fit,omitempty"`
	Sources []SourceState `json:"sources"`
	Layers  []Layer       `json:"layers"`
	Markers []Marker      `json:"markers"`
	Popups  []Popup       `json:"popups"`
	Cursor  Cursor        `json:"cursor"`
}

// Snapshot returns the current surface state.
func (m *Memory) Snapshot() (State, error) {
	st := State{
		Loaded:  m.loaded,
		View:    m.view,
		Fit:     m.lastFit,
		Sources: make([]SourceState, 0, len(m.sourceOrder)),
		Layers:  m.Layers(),
		Markers: m.Markers(),
		Popups:  m.Popups(),
		Cursor:  m.cursor,
	}
	for _, id := range m.sourceOrder {
		data, err := json.Marshal(m.sources[id])
		if err != nil {
			return State{}, eris.Wrapf(err, "mapengine: encode source %q", id)
		}
		st.Sources = append(st.Sources, SourceState{ID: id, Data: data})
	}
	if st.Layers == nil {
		st.Layers = []Layer{}
	}
	if st.Markers == nil {
		st.Markers = []Marker{}
	}
	if st.Popups == nil {
		st.Popups = []Popup{}
	}
	return st, nil
}

func (m *Memory) layerIndex(id string) int {
	for i, l := range m.layers {
		if l.ID == id {
			return i
		}
	}
	return -1
}

func (m *Memory) clampZoom(z float64) float64 {
	if z < m.viewport.MinZoom {
		return m.viewport.MinZoom
	}
	if z > m.viewport.MaxZoom {
		return m.viewport.MaxZoom
	}
	return z
}

// fitZoom computes the web-mercator zoom that fits box into the viewport.
func fitZoom(box geospatial.BBox, vp Viewport, padding int) float64 {
	w := math.Max(float64(vp.Width-2*padding), 1)
	h := math.Max(float64(vp.Height-2*padding), 1)

	lngSpan := box.MaxLng - box.MinLng
	latSpan := mercatorY(box.MaxLat) - mercatorY(box.MinLat)

	zoomX, zoomY := math.Inf(1), math.Inf(1)
	if lngSpan > 0 {
		zoomX = math.Log2(w * 360 / (tileSize * lngSpan))
	}
	if latSpan > 0 {
		zoomY = math.Log2(h * 2 * math.Pi / (tileSize * latSpan))
	}
	return math.Min(zoomX, zoomY)
}

func mercatorY(lat float64) float64 {
	lat = math.Max(math.Min(lat, 85.0511), -85.0511)
	rad := lat * math.Pi / 180
	return math.Log(math.Tan(math.Pi/4 + rad/2))
}

func emptyIfNil(fc *geojson.FeatureCollection) *geojson.FeatureCollection {
	if fc == nil {
		return &geojson.FeatureCollection{}
	}
	return fc
}

func removeString(in []string, s string) []string {
	out := in[:0]
	for _, v := range in {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
