// Package analysis calls the area analysis service for a confirmed selection.
package analysis

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/sells-group/mapmind/internal/model"
	"github.com/sells-group/mapmind/internal/resilience"
	"github.com/sells-group/mapmind/internal/selection"
)

// DefaultBaseURL is the local development backend.
const DefaultBaseURL = "http://localhost:8000"

// FallbackMessage is shown when the service gives no usable detail.
const FallbackMessage = "An error occurred while fetching data."

// Client requests area analyses.
type Client interface {
	Analyze(ctx context.Context, req selection.Request) (*model.AnalysisResult, error)
}

// Option configures the client.
type Option func(*client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithBaseURL sets the service root. The client posts to {base}/analyze-area.
func WithBaseURL(u string) Option {
	return func(c *client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithTimeout sets the per-attempt HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
		}
	}
}

// WithRetry sets the retry schedule for transient failures.
func WithRetry(b resilience.Backoff) Option {
	return func(c *client) {
		c.backoff = b
	}
}

// WithFactors toggles the include_factors request flag.
func WithFactors(on bool) Option {
	return func(c *client) {
		c.includeFactors = on
	}
}

// WithComparison toggles the include_comparison request flag.
func WithComparison(on bool) Option {
	return func(c *client) {
		c.includeComparison = on
	}
}

type client struct {
	httpClient        *http.Client
	limiter           *rate.Limiter
	baseURL           string
	backoff           resilience.Backoff
	includeFactors    bool
	includeComparison bool
}

// NewClient creates an analysis Client with the given options.
func NewClient(opts ...Option) Client {
	c := &client{
		httpClient:        &http.Client{Timeout: 60 * time.Second},
		limiter:           rate.NewLimiter(2, 2),
		baseURL:           DefaultBaseURL,
		backoff:           resilience.DefaultBackoff(),
		includeFactors:    true,
		includeComparison: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
