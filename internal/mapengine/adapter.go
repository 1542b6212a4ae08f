package mapengine

import (
	"github.com/google/uuid"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/mapmind/internal/geospatial"
)

// Adapter is the capability surface used by the renderer. Mutations issued
// before the engine finishes loading are queued in order and flushed on
// load; removals of missing ids are no-ops; at most one popup is open.
// Engine failures are logged and contained.
type Adapter struct {
	engine  Engine
	loaded  bool
	queue   []func()
	waiters []func()
	markers map[MarkerHandle]struct{}
}

// NewAdapter wraps engine.
func NewAdapter(engine Engine) *Adapter {
	a := &Adapter{
		engine:  engine,
		markers: make(map[MarkerHandle]struct{}),
	}
	engine.OnLoad(a.handleLoad)
	return a
}

// Loaded reports whether the surface has finished its initial load.
func (a *Adapter) Loaded() bool { return a.loaded }

// Pending returns the number of queued mutations awaiting load.
func (a *Adapter) Pending() int { return len(a.queue) }

// WhenLoaded runs fn once the surface is loaded; immediately if it already is.
func (a *Adapter) WhenLoaded(fn func()) {
	if a.loaded {
		fn()
		return
	}
	a.waiters = append(a.waiters, fn)
}

func (a *Adapter) handleLoad() {
	if a.loaded {
		return
	}
	a.loaded = true

	queue := a.queue
	a.queue = nil
	zap.L().Debug("mapengine: surface loaded", zap.Int("flushed", len(queue)))
	for _, op := range queue {
		op()
	}

	waiters := a.waiters
	a.waiters = nil
	for _, fn := range waiters {
		fn()
	}
}

func (a *Adapter) do(op func()) {
	if !a.loaded {
		a.queue = append(a.queue, op)
		return
	}
	op()
}

// UpsertSource adds the source or replaces its data.
func (a *Adapter) UpsertSource(id string, data *geojson.FeatureCollection) {
	a.do(func() {
		var err error
		if a.engine.HasSource(id) {
			err = a.engine.SetSourceData(id, data)
		} else {
			err = a.engine.AddSource(id, data)
		}
		logFailure("upsert source", id, err)
	})
}

// RemoveSource removes the source if present.
func (a *Adapter) RemoveSource(id string) {
	a.do(func() {
		if !a.engine.HasSource(id) {
			return
		}
		logFailure("remove source", id, a.engine.RemoveSource(id))
	})
}

// UpsertLayer adds the layer, replacing any existing layer with the same id.
func (a *Adapter) UpsertLayer(layer Layer) {
	a.do(func() {
		if a.engine.HasLayer(layer.ID) {
			if err := a.engine.RemoveLayer(layer.ID); err != nil {
				logFailure("replace layer", layer.ID, err)
				return
			}
		}
		logFailure("add layer", layer.ID, a.engine.AddLayer(layer))
	})
}

// RemoveLayer removes the layer if present.
func (a *Adapter) RemoveLayer(id string) {
	a.do(func() {
		if !a.engine.HasLayer(id) {
			return
		}
		logFailure("remove layer", id, a.engine.RemoveLayer(id))
	})
}

// FitToBounds fits the view to box. It is a no-op before load.
func (a *Adapter) FitToBounds(box geospatial.BBox, opts FitOptions) {
	if !a.loaded {
		zap.L().Debug("mapengine: fit skipped, surface not loaded")
		return
	}
	logFailure("fit bounds", "", a.engine.FitBounds(box, opts))
}

// FlyTo centers the view. It is a no-op before load.
func (a *Adapter) FlyTo(center geospatial.Coordinate, zoom float64) {
	if !a.loaded {
		zap.L().Debug("mapengine: fly skipped, surface not loaded")
		return
	}
	logFailure("fly to", "", a.engine.FlyTo(center, zoom))
}

// PlaceMarker places a marker and returns its handle right away, even when
// the placement itself is still queued.
func (a *Adapter) PlaceMarker(at geospatial.Coordinate, style MarkerStyle) MarkerHandle {
	h := MarkerHandle(uuid.NewString())
	a.do(func() {
		if err := a.engine.AddMarker(h, at, style); err != nil {
			logFailure("place marker", string(h), err)
			return
		}
		a.markers[h] = struct{}{}
	})
	return h
}

// RemoveMarker removes a marker placed through this adapter.
func (a *Adapter) RemoveMarker(h MarkerHandle) {
	a.do(func() {
		if _, ok := a.markers[h]; !ok {
			return
		}
		delete(a.markers, h)
		logFailure("remove marker", string(h), a.engine.RemoveMarker(h))
	})
}

// ShowPopup closes every open popup and opens one at the coordinate.
func (a *Adapter) ShowPopup(at geospatial.Coordinate, html string, opts PopupOptions) {
	a.do(func() {
		a.engine.ClosePopups()
		logFailure("open popup", "", a.engine.OpenPopup(at, html, opts))
	})
}

// ClosePopups closes every open popup.
func (a *Adapter) ClosePopups() {
	a.do(a.engine.ClosePopups)
}

// OnLayerEvent binds h to kind events on the layer.
func (a *Adapter) OnLayerEvent(layerID string, kind EventKind, h Handler) {
	a.do(func() {
		a.engine.On(layerID, kind, h)
	})
}

// SetCursor sets the surface cursor.
func (a *Adapter) SetCursor(c Cursor) {
	a.engine.SetCursor(c)
}

func logFailure(op, id string, err error) {
	if err == nil {
		return
	}
	zap.L().Warn("mapengine: engine call failed",
		zap.String("op", op),
		zap.String("id", id),
		zap.Error(err),
	)
}
