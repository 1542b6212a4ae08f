// Package geocode resolves free-text place queries to coordinates through a
// Nominatim-compatible search API.
package geocode

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/sells-group/mapmind/internal/geospatial"
	"github.com/sells-group/mapmind/internal/resilience"
)

// DefaultBaseURL is the public Nominatim instance.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// Client looks up places.
type Client interface {
	// Search returns the best match for query. An unmatched query is not an
	// error; the result has Matched false.
	Search(ctx context.Context, query string) (*Place, error)
}

// Place is a geocoded query.
type Place struct {
	Query       string           `json:"query"`
	DisplayName string           `json:"display_name,omitempty"`
	Lng         float64          `json:"lng"`
	Lat         float64          `json:"lat"`
	BoundingBox *geospatial.BBox `json:"bbox,omitempty"`
	Matched     bool             `json:"matched"`
}

// Coordinate returns the place location.
func (p *Place) Coordinate() geospatial.Coordinate {
	return geospatial.Coordinate{Lng: p.Lng, Lat: p.Lat}
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit. Public Nominatim allows 1.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		if rps > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
		}
	}
}

// WithBaseURL points the client at another Nominatim-compatible server.
func WithBaseURL(u string) Option {
	return func(g *geocoder) {
		if u != "" {
			g.baseURL = u
		}
	}
}

// WithUserAgent sets the User-Agent header Nominatim requires.
func WithUserAgent(ua string) Option {
	return func(g *geocoder) {
		if ua != "" {
			g.userAgent = ua
		}
	}
}

// WithCacheSize bounds the in-memory result cache. Zero disables it.
func WithCacheSize(n int) Option {
	return func(g *geocoder) {
		g.cache = newCache(n)
	}
}

// WithRetry sets the retry schedule for transient failures.
func WithRetry(b resilience.Backoff) Option {
	return func(g *geocoder) {
		g.backoff = b
	}
}

type geocoder struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	userAgent  string
	cache      *cache
	backoff    resilience.Backoff
}

// NewClient creates a new geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(1, 1),
		baseURL:    DefaultBaseURL,
		userAgent:  "mapmind/1.0",
		cache:      newCache(256),
		backoff:    resilience.DefaultBackoff().WithAttempts(2),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}
