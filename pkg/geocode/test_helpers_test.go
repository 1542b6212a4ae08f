package geocode

import (
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"
)

// newTestLimiter never blocks.
func newTestLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

// newRewriteClient sends requests for the public Nominatim host (or any base
// URL given as from) to the test server instead.
func newRewriteClient(to, from string) *http.Client {
	return &http.Client{Transport: redirectTransport{to: to, from: from}}
}

type redirectTransport struct {
	to, from string
}

func (t redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	orig := req.URL.String()
	if !strings.HasPrefix(orig, t.from) {
		return http.DefaultTransport.RoundTrip(req)
	}
	target, err := url.Parse(t.to + strings.TrimPrefix(orig, t.from))
	if err != nil {
		return nil, err
	}
	out := req.Clone(req.Context())
	out.URL = target
	out.Host = target.Host
	return http.DefaultTransport.RoundTrip(out)
}
