// Package session wires the map surface, the renderer, the selection
// controller and the mode coordinator into one serialized event loop with an
// asynchronous analysis trigger.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mapmind/internal/annotate"
	"github.com/sells-group/mapmind/internal/geospatial"
	"github.com/sells-group/mapmind/internal/mapengine"
	"github.com/sells-group/mapmind/internal/mode"
	"github.com/sells-group/mapmind/internal/model"
	"github.com/sells-group/mapmind/internal/selection"
	"github.com/sells-group/mapmind/pkg/analysis"
	"github.com/sells-group/mapmind/pkg/geocode"
)

// ErrNoGeocoder is returned by Search when the session has no geocoder.
var ErrNoGeocoder = eris.New("session: place search is not configured")

// Analyzer runs an area analysis.
type Analyzer interface {
	Analyze(ctx context.Context, req selection.Request) (*model.AnalysisResult, error)
}

// Geocoder resolves place queries.
type Geocoder interface {
	Search(ctx context.Context, query string) (*geocode.Place, error)
}

// Options configures a Session. Zero fields take defaults.
type Options struct {
	Viewport        mapengine.Viewport
	Style           annotate.Style
	RadiusKm        float64
	DiskSteps       int
	SearchZoom      float64
	AnalysisTimeout time.Duration
	Metrics         *Metrics

	// Map is passed through to clients that mirror the surface.
	Map MapSettings
}

// MapSettings names the base map a client should draw under the surface.
type MapSettings struct {
	Style  string `json:"style,omitempty"`
	APIKey string `json:"api_key,omitempty"`
}

// Session is one map view. Every event runs to completion under a single
// lock, so handlers never interleave. Analyses run in the background and
// re-enter through the same lock.
type Session struct {
	id string

	mu          sync.Mutex
	engine      *mapengine.Memory
	surface     *mapengine.Adapter
	renderer    *annotate.Renderer
	selector    *selection.Controller
	coordinator *mode.Coordinator

	analyzer   Analyzer
	geocoder   Geocoder
	metrics    *Metrics
	timeout    time.Duration
	searchZoom float64
	mapInfo    MapSettings

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	generation uint64
	pending    bool
	lastErr    string
	result     *model.AnalysisResult
	updatedAt  time.Time
}

// New builds a session whose surface has not loaded yet. The initial mode
// pass is deferred until MarkLoaded.
func New(analyzer Analyzer, geocoder Geocoder, opts Options) *Session {
	if opts.Viewport.Width == 0 && opts.Viewport.Height == 0 {
		opts.Viewport = mapengine.DefaultViewport()
	}
	if opts.SearchZoom <= 0 {
		opts.SearchZoom = 12
	}
	if opts.AnalysisTimeout <= 0 {
		opts.AnalysisTimeout = 2 * time.Minute
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(prometheus.NewRegistry())
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:         uuid.NewString(),
		analyzer:   analyzer,
		geocoder:   geocoder,
		metrics:    opts.Metrics,
		timeout:    opts.AnalysisTimeout,
		searchZoom: opts.SearchZoom,
		mapInfo:    opts.Map,
		ctx:        ctx,
		cancel:     cancel,
		updatedAt:  time.Now(),
	}

	s.engine = mapengine.NewMemory(opts.Viewport)
	s.surface = mapengine.NewAdapter(s.engine)
	// The hook fires inside a layer event, which already holds the lock.
	s.renderer = annotate.New(s.surface, opts.Style, annotate.WithInteractionHook(func(active bool) {
		s.observe(s.coordinator.SetInteracting(active))
	}))
	s.selector = selection.New(s.renderer, s.trigger,
		selection.WithRadius(opts.RadiusKm),
		selection.WithDiskSteps(opts.DiskSteps),
	)
	s.coordinator = mode.New(s.surface, s.renderer, s.selector)
	s.observe(s.coordinator.Reconcile())
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// MarkLoaded completes the surface load, flushing queued mutations and any
// deferred mode pass.
func (s *Session) MarkLoaded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.engine.Load()
}

// Click handles a map click outside any interactive layer. It reports
// whether a pin was placed. A new pin supersedes any analysis in flight.
func (s *Session) Click(at geospatial.Coordinate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.click(at)
}

func (s *Session) click(at geospatial.Coordinate) bool {
	s.touch()
	if !s.selector.OnMapClick(at) {
		return false
	}
	s.metrics.Clicks.Inc()
	s.supersede()
	return true
}

// Confirm sends the current pin for analysis. It returns
// selection.ErrNoSelection when no pin is placed.
func (s *Session) Confirm() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.lastErr = ""
	return s.selector.Confirm()
}

// SetRadius changes the radius used by the next click.
func (s *Session) SetRadius(km float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selector.SetRadius(km)
}

// Reset clears the selection and discards any analysis in flight.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.supersede()
	s.selector.Reset()
}

// NewAnalysis drops the displayed result and returns to selection with no
// pin placed.
func (s *Session) NewAnalysis() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.supersede()
	s.result = nil
	s.observe(s.coordinator.ClearResult())
	s.selector.Reset()
}

// SetInteracting sets the interaction flag from the outside, for popups
// driven by a remote client.
func (s *Session) SetInteracting(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observe(s.coordinator.SetInteracting(active))
}

// LayerEvent dispatches a pointer event on an interactive layer. It reports
// whether a handler ran.
func (s *Session) LayerEvent(ev mapengine.LayerEvent, toleranceKm float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.engine.Emit(ev, toleranceKm)
}

// Search geocodes query, flies the view there and places a pin as if the
// user had clicked the place. An unmatched query changes nothing, and
// neither does a match while a result is displayed.
func (s *Session) Search(ctx context.Context, query string) (*geocode.Place, error) {
	if s.geocoder == nil {
		return nil, ErrNoGeocoder
	}
	place, err := s.geocoder.Search(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "session: search")
	}
	if !place.Matched {
		return place, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.selector.Active() {
		return place, nil
	}
	s.surface.FlyTo(place.Coordinate(), s.searchZoom)
	s.click(place.Coordinate())
	return place, nil
}

// trigger runs under the lock from Confirm.
func (s *Session) trigger(req selection.Request) {
	s.generation++
	gen := s.generation
	s.pending = true

	if s.analyzer == nil {
		s.deliver(gen, nil, eris.New("session: analysis is not configured"))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()

		res, err := s.analyzer.Analyze(ctx, req)

		s.mu.Lock()
		defer s.mu.Unlock()
		s.deliver(gen, res, err)
	}()
}

// deliver applies an analysis outcome. Callers hold the lock.
func (s *Session) deliver(gen uint64, res *model.AnalysisResult, err error) {
	if gen != s.generation {
		s.metrics.StaleDiscards.Inc()
		zap.L().Debug("session: stale analysis discarded",
			zap.String("session", s.id),
			zap.Uint64("generation", gen),
			zap.Uint64("current", s.generation),
		)
		return
	}
	s.touch()
	s.pending = false

	if err != nil {
		s.lastErr = analysis.Message(err)
		s.metrics.Analyses.WithLabelValues("failed").Inc()
		zap.L().Warn("session: analysis failed", zap.String("session", s.id), zap.Error(err))
		return
	}

	payload, err := res.Payload()
	if err != nil {
		s.lastErr = analysis.FallbackMessage
		s.metrics.Analyses.WithLabelValues("invalid").Inc()
		zap.L().Warn("session: analysis result unusable", zap.String("session", s.id), zap.Error(err))
		return
	}

	s.lastErr = ""
	s.result = res
	s.metrics.Analyses.WithLabelValues("succeeded").Inc()
	s.observe(s.coordinator.SetResult(payload))
}

// supersede invalidates any analysis in flight.
func (s *Session) supersede() {
	s.generation++
	s.pending = false
	s.lastErr = ""
}

func (s *Session) observe(out mode.Outcome) {
	s.metrics.Renders.WithLabelValues(out.String()).Inc()
}

func (s *Session) touch() { s.updatedAt = time.Now() }

// Wait blocks until no analysis is in flight.
func (s *Session) Wait() { s.wg.Wait() }

// Close cancels analyses in flight and waits for them to return.
func (s *Session) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Session) lastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}
