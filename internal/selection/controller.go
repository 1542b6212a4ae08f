// Package selection implements pin placement, the radius preview and the
// hand-off of the chosen point to the analysis trigger.
package selection

import (
	"errors"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/mapmind/internal/geospatial"
)

// DefaultRadiusKm is the preview and analysis radius when none is configured.
const DefaultRadiusKm = 5.0

// ErrNoSelection is returned by Confirm when no pin is placed.
var ErrNoSelection = eris.New("selection: no pin placed")

// State is the controller state.
type State int

const (
	Idle State = iota
	PinPlaced
	Confirmed
)

func (s State) String() string {
	switch s {
	case PinPlaced:
		return "pin_placed"
	case Confirmed:
		return "confirmed"
	default:
		return "idle"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Selection is the current pick.
type Selection struct {
	Pin       *geospatial.Coordinate `json:"pin"`
	RadiusKm  float64                `json:"radius_km"`
	Confirmed bool                   `json:"confirmed"`
}

// Request is handed to the analysis trigger on confirm.
type Request struct {
	Lng      float64 `json:"longitude"`
	Lat      float64 `json:"latitude"`
	RadiusKm float64 `json:"radius"`
}

// Trigger receives confirmed selections.
type Trigger func(Request)

// Renderer draws selection artifacts.
type Renderer interface {
	RenderSelection(pin geospatial.Coordinate, disk *geom.Polygon)
	ClearSelection()
}

// Option configures a Controller.
type Option func(*Controller)

// WithRadius sets the initial radius. Non-positive values are ignored.
func WithRadius(km float64) Option {
	return func(c *Controller) {
		if km > 0 {
			c.radiusKm = km
		}
	}
}

// WithDiskSteps sets the vertex count of the preview ring.
func WithDiskSteps(n int) Option {
	return func(c *Controller) { c.steps = n }
}

// Controller owns the Selection. It only draws through its Renderer.
type Controller struct {
	renderer Renderer
	trigger  Trigger
	radiusKm float64
	steps    int

	active bool
	sel    Selection
}

// New returns an inactive controller in the Idle state.
func New(renderer Renderer, trigger Trigger, opts ...Option) *Controller {
	c := &Controller{
		renderer: renderer,
		trigger:  trigger,
		radiusKm: DefaultRadiusKm,
		steps:    geospatial.DefaultDiskSteps,
	}
	for _, o := range opts {
		o(c)
	}
	c.sel = Selection{RadiusKm: c.radiusKm}
	return c
}

// Activate enables the click listener.
func (c *Controller) Activate() { c.active = true }

// Deactivate disables the click listener. Drawn artifacts are left alone.
func (c *Controller) Deactivate() { c.active = false }

// Active reports whether clicks are accepted.
func (c *Controller) Active() bool { return c.active }

// OnMapClick places the pin and draws the radius preview around it. It
// reports whether the click was accepted. A preview that cannot be built is
// logged and skipped; the pin is still placed.
func (c *Controller) OnMapClick(at geospatial.Coordinate) bool {
	if !c.active {
		return false
	}
	if err := at.Validate(); err != nil {
		zap.L().Debug("selection: click ignored", zap.Error(err))
		return false
	}

	disk, err := geospatial.GeodesicDisk(at, c.radiusKm, c.steps)
	if err != nil {
		zap.L().Warn("selection: radius preview not drawn",
			zap.Float64("lng", at.Lng),
			zap.Float64("lat", at.Lat),
			zap.Float64("radius_km", c.radiusKm),
			zap.Error(err),
		)
		disk = nil
	}
	c.renderer.RenderSelection(at, disk)

	pin := at
	c.sel = Selection{Pin: &pin, RadiusKm: c.radiusKm}
	return true
}

// Confirm hands the pin to the trigger. Confirming again re-sends it, which
// is how a failed analysis is retried.
func (c *Controller) Confirm() error {
	if c.sel.Pin == nil {
		return ErrNoSelection
	}
	c.sel.Confirmed = true
	if c.trigger != nil {
		c.trigger(Request{Lng: c.sel.Pin.Lng, Lat: c.sel.Pin.Lat, RadiusKm: c.sel.RadiusKm})
	}
	return nil
}

// Reset clears the selection and its artifacts.
func (c *Controller) Reset() {
	c.sel = Selection{RadiusKm: c.radiusKm}
	c.renderer.ClearSelection()
}

// SetRadius changes the radius used by the next click. The current preview
// is not redrawn.
func (c *Controller) SetRadius(km float64) error {
	if !(km > 0) {
		return eris.Wrapf(geospatial.ErrInvalidRadius, "selection: radius %v", km)
	}
	c.radiusKm = km
	return nil
}

// RadiusKm returns the radius used by the next click.
func (c *Controller) RadiusKm() float64 { return c.radiusKm }

// Selection returns a copy of the current selection.
func (c *Controller) Selection() Selection {
	s := c.sel
	if s.Pin != nil {
		pin := *s.Pin
		s.Pin = &pin
	}
	return s
}

// Status returns the state derived from the selection.
func (c *Controller) Status() State {
	switch {
	case c.sel.Pin == nil:
		return Idle
	case c.sel.Confirmed:
		return Confirmed
	default:
		return PinPlaced
	}
}

// IsNoSelection reports whether err is ErrNoSelection.
func IsNoSelection(err error) bool {
	return errors.Is(err, ErrNoSelection)
}
