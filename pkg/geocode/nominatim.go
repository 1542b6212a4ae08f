package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mapmind/internal/geospatial"
	"github.com/sells-group/mapmind/internal/resilience"
)

// nominatimResult is one element of the /search response. Numbers arrive as
// strings.
type nominatimResult struct {
	Lat         string   `json:"lat"`
	Lon         string   `json:"lon"`
	DisplayName string   `json:"display_name"`
	BoundingBox []string `json:"boundingbox"`
}

// Search geocodes query, serving repeats from the cache.
func (g *geocoder) Search(ctx context.Context, query string) (*Place, error) {
	q := normalizeQuery(query)
	if q == "" {
		return nil, eris.New("geocode: empty query")
	}

	key := cacheKey(q)
	if p, ok := g.cache.get(key); ok {
		zap.L().Debug("geocode cache hit", zap.String("key", key[:12]))
		cp := *p
		cp.Query = query
		return &cp, nil
	}

	place, err := resilience.Retry(ctx, g.backoff, "geocode.search", func(ctx context.Context) (*Place, error) {
		return g.search(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	place.Query = query
	g.cache.put(key, place)
	return place, nil
}

func (g *geocoder) search(ctx context.Context, q string) (*Place, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limit")
	}

	params := url.Values{
		"q":      {q},
		"format": {"json"},
		"limit":  {"1"},
	}
	reqURL := strings.TrimRight(g.baseURL, "/") + "/search?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build request")
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("geocode: search returned status %d", resp.StatusCode)
		if resilience.RetryableStatus(resp.StatusCode) {
			return nil, resilience.Transient(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read body")
	}

	var results []nominatimResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, eris.Wrap(err, "geocode: parse response")
	}
	if len(results) == 0 {
		return &Place{Matched: false}, nil
	}
	return placeFrom(results[0])
}

func placeFrom(r nominatimResult) (*Place, error) {
	lat, errLat := strconv.ParseFloat(r.Lat, 64)
	lng, errLng := strconv.ParseFloat(r.Lon, 64)
	if errLat != nil || errLng != nil {
		return nil, eris.Errorf("geocode: bad coordinates %q,%q", r.Lat, r.Lon)
	}
	c := geospatial.Coordinate{Lng: lng, Lat: lat}
	if err := c.Validate(); err != nil {
		return nil, eris.Wrap(err, "geocode: result")
	}

	p := &Place{DisplayName: r.DisplayName, Lng: lng, Lat: lat, Matched: true}
	// Nominatim orders the box as min lat, max lat, min lon, max lon.
	if len(r.BoundingBox) == 4 {
		var v [4]float64
		ok := true
		for i, s := range r.BoundingBox {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				ok = false
				break
			}
			v[i] = f
		}
		box := geospatial.BBox{MinLng: v[2], MinLat: v[0], MaxLng: v[3], MaxLat: v[1]}
		if ok && box.Validate() == nil {
			p.BoundingBox = &box
		}
	}
	return p, nil
}
