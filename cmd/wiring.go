package main

import (
	"encoding/json"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/mapmind/internal/annotate"
	"github.com/sells-group/mapmind/internal/config"
	"github.com/sells-group/mapmind/internal/geospatial"
	"github.com/sells-group/mapmind/internal/mapengine"
	"github.com/sells-group/mapmind/internal/resilience"
	"github.com/sells-group/mapmind/internal/session"
	"github.com/sells-group/mapmind/pkg/analysis"
	"github.com/sells-group/mapmind/pkg/geocode"
)

func styleFromConfig(m config.MapConfig) annotate.Style {
	s := annotate.DefaultStyle()
	if len(m.Palette) > 0 {
		s.Palette = m.Palette
	}
	if m.BoundaryLineColor != "" {
		s.BoundaryLineColor = m.BoundaryLineColor
	}
	if m.MarkerSize > 0 {
		s.MarkerSize = m.MarkerSize
	}
	if m.MarkerStrokeColor != "" {
		s.MarkerStrokeColor = m.MarkerStrokeColor
	}
	if m.MarkerStrokeWidth > 0 {
		s.MarkerStrokeWidth = m.MarkerStrokeWidth
	}
	if m.PopupMaxWidth != "" {
		s.PopupMaxWidth = m.PopupMaxWidth
	}
	if m.FitPadding > 0 {
		s.FitPadding = m.FitPadding
	}
	if m.FitDurationMs > 0 {
		s.FitDurationMs = m.FitDurationMs
	}
	if m.DisplayMinZoom > 0 {
		s.DisplayMinZoom = m.DisplayMinZoom
	}
	if m.DisplayMaxZoom > 0 {
		s.DisplayMaxZoom = m.DisplayMaxZoom
	}
	if m.PointsMaxZoom > 0 {
		s.PointsMaxZoom = m.PointsMaxZoom
	}
	return s
}

func viewportFromConfig(m config.MapConfig) mapengine.Viewport {
	vp := mapengine.DefaultViewport()
	if m.Width > 0 && m.Height > 0 {
		vp.Width, vp.Height = m.Width, m.Height
	}
	if m.MinZoom > 0 {
		vp.MinZoom = m.MinZoom
	}
	if m.MaxZoom > 0 {
		vp.MaxZoom = m.MaxZoom
	}
	vp.Center = geospatial.Coordinate{Lng: m.CenterLng, Lat: m.CenterLat}
	if m.Zoom > 0 {
		vp.Zoom = m.Zoom
	}
	return vp
}

func sessionOptions(c *config.Config, metrics *session.Metrics) session.Options {
	return session.Options{
		Viewport:        viewportFromConfig(c.Map),
		Style:           styleFromConfig(c.Map),
		RadiusKm:        c.Map.SelectionRadiusKm,
		DiskSteps:       c.Map.DiskSteps,
		SearchZoom:      c.Map.DisplayMaxZoom,
		AnalysisTimeout: analysisTimeout(c.Analysis),
		Metrics:         metrics,
		Map:             session.MapSettings{Style: c.Map.Style, APIKey: c.Map.APIKey},
	}
}

func analysisBackoff(a config.AnalysisConfig) resilience.Backoff {
	return resilience.DefaultBackoff().WithAttempts(a.MaxAttempts)
}

// analysisTimeout bounds one analysis end to end: every attempt, the sleeps
// between them and a limiter wait before each.
func analysisTimeout(a config.AnalysisConfig) time.Duration {
	b := analysisBackoff(a)
	attempts := b.Attempts
	d := time.Duration(a.TimeoutSecs*attempts)*time.Second + b.Budget()
	if a.RPS > 0 {
		d += time.Duration(float64(attempts) / a.RPS * float64(time.Second))
	}
	return d
}

func newAnalysisClient(a config.AnalysisConfig) analysis.Client {
	return analysis.NewClient(
		analysis.WithBaseURL(a.BaseURL),
		analysis.WithTimeout(time.Duration(a.TimeoutSecs)*time.Second),
		analysis.WithRateLimit(a.RPS),
		analysis.WithRetry(analysisBackoff(a)),
		analysis.WithFactors(a.IncludeFactors),
		analysis.WithComparison(a.IncludeComparison),
	)
}

func newGeocoder(g config.GeocodeConfig) geocode.Client {
	return geocode.NewClient(
		geocode.WithBaseURL(g.BaseURL),
		geocode.WithUserAgent(g.UserAgent),
		geocode.WithRateLimit(g.RPS),
		geocode.WithCacheSize(g.CacheSize),
	)
}

// writeOutput encodes v as indented JSON, or as YAML by way of its JSON
// form so field names match.
func writeOutput(w io.Writer, v any, format string) error {
	switch format {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(v), "encode json")
	case "yaml", "yml":
		raw, err := json.Marshal(v)
		if err != nil {
			return eris.Wrap(err, "encode json")
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return eris.Wrap(err, "decode json")
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return eris.Wrap(enc.Close(), "encode yaml")
	default:
		return eris.Errorf("unknown output format %q (want json or yaml)", format)
	}
}
