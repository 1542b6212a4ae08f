// Package mode decides whether the map is selecting a point or displaying
// an analysis result and drives the transition between the two.
package mode

import (
	"go.uber.org/zap"

	"github.com/sells-group/mapmind/internal/model"
)

// Mode is the active map mode.
type Mode int

const (
	None Mode = iota
	Selection
	Display
)

func (m Mode) String() string {
	switch m {
	case Selection:
		return "selection"
	case Display:
		return "display"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Outcome is what a reconciliation pass did.
type Outcome int

const (
	Suppressed Outcome = iota
	Deferred
	Displayed
	Unchanged
	Selecting
)

func (o Outcome) String() string {
	switch o {
	case Suppressed:
		return "suppressed"
	case Deferred:
		return "deferred"
	case Displayed:
		return "displayed"
	case Unchanged:
		return "unchanged"
	default:
		return "selecting"
	}
}

// Surface reports map load state.
type Surface interface {
	Loaded() bool
	WhenLoaded(fn func())
}

// Renderer draws and removes display artifacts.
type Renderer interface {
	RenderDisplay(payload *model.ResultPayload)
	ClearDisplay()
}

// Selector is the click-to-place-pin listener.
type Selector interface {
	Activate()
	Deactivate()
	Reset()
}

// Coordinator reconciles the payload, the interaction flag and the load
// state into a mode. It never touches the surface itself.
type Coordinator struct {
	surface  Surface
	renderer Renderer
	selector Selector

	payload     *model.ResultPayload
	interacting bool
	deferred    bool

	mode     Mode
	rendered *model.ResultPayload
}

// New returns a coordinator in mode None. Call Reconcile to enter the
// initial mode.
func New(surface Surface, renderer Renderer, selector Selector) *Coordinator {
	return &Coordinator{surface: surface, renderer: renderer, selector: selector}
}

// Mode returns the current mode.
func (c *Coordinator) Mode() Mode { return c.mode }

// Payload returns the current result payload, nil when none.
func (c *Coordinator) Payload() *model.ResultPayload { return c.payload }

// Interacting reports the interaction flag.
func (c *Coordinator) Interacting() bool { return c.interacting }

// SetResult replaces the payload wholesale and reconciles.
func (c *Coordinator) SetResult(p *model.ResultPayload) Outcome {
	c.payload = p
	return c.Reconcile()
}

// ClearResult drops the payload and reconciles, returning to selection.
func (c *Coordinator) ClearResult() Outcome {
	return c.SetResult(nil)
}

// SetInteracting sets the interaction flag and reconciles.
func (c *Coordinator) SetInteracting(active bool) Outcome {
	c.interacting = active
	return c.Reconcile()
}

// Reconcile runs one pass of the mode rules in priority order: an ongoing
// interaction suppresses the pass; an unloaded surface defers it once; a
// payload selects display; otherwise selection.
func (c *Coordinator) Reconcile() Outcome {
	out := c.reconcile()
	zap.L().Debug("mode: reconciled",
		zap.Stringer("outcome", out),
		zap.Stringer("mode", c.mode),
	)
	return out
}

func (c *Coordinator) reconcile() Outcome {
	if c.interacting {
		return Suppressed
	}

	if !c.surface.Loaded() {
		if !c.deferred {
			c.deferred = true
			c.surface.WhenLoaded(func() {
				c.deferred = false
				c.Reconcile()
			})
		}
		return Deferred
	}

	if !c.payload.IsEmpty() {
		if c.mode == Display && c.rendered == c.payload {
			return Unchanged
		}
		c.selector.Deactivate()
		c.renderer.RenderDisplay(c.payload)
		c.mode = Display
		c.rendered = c.payload
		return Displayed
	}

	if c.mode == Display {
		c.renderer.ClearDisplay()
		c.selector.Reset()
	}
	c.selector.Activate()
	c.mode = Selection
	c.rendered = nil
	return Selecting
}
