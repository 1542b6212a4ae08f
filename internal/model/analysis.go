package model

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/mapmind/internal/aqi"
	"github.com/sells-group/mapmind/internal/geospatial"
)

// Geocode is the reverse-geocoded location of the analyzed point.
type Geocode struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	DisplayName string  `json:"display_name,omitempty"`
	City        string  `json:"city,omitempty"`
	Area        string  `json:"area,omitempty"`
}

// Risk is one environmental risk from the impact assessment.
type Risk struct {
	Level       string `json:"level"`
	Description string `json:"description"`
}

// Insight is one key insight from the impact assessment.
type Insight struct {
	Description string `json:"description"`
	Impact      string `json:"impact"`
}

// EnvironmentalImpact is the scored assessment of the analyzed area.
type EnvironmentalImpact struct {
	Category   string    `json:"category,omitempty"`
	Summary    string    `json:"summary,omitempty"`
	AIRating   float64   `json:"ai_rating,omitempty"`
	KeyFactors []string  `json:"key_factors,omitempty"`
	Risks      []Risk    `json:"risks,omitempty"`
	Insights   []Insight `json:"insights,omitempty"`
}

// AnalysisResult is the full analysis service response. Only the payload
// fields are interpreted here; card data is carried through for consumers.
type AnalysisResult struct {
	Summary             string               `json:"summary,omitempty"`
	PieChartData        []LegendEntry        `json:"pie_chart_data,omitempty"`
	AIRating            float64              `json:"ai_rating,omitempty"`
	Geocode             *Geocode             `json:"geocode,omitempty"`
	BBox                []float64            `json:"bbox,omitempty"`
	GeoJSON             json.RawMessage      `json:"geojson,omitempty"`
	POIs                POIGroups            `json:"pois,omitempty"`
	AirQuality          json.RawMessage      `json:"air_quality,omitempty"`
	Weather             json.RawMessage      `json:"weather,omitempty"`
	HealthCard          json.RawMessage      `json:"health_card,omitempty"`
	EnvironmentalImpact *EnvironmentalImpact `json:"environmental_impact,omitempty"`
}

// Payload extracts the display payload. An unusable bounding box is dropped
// rather than failing the whole result; a malformed boundary collection is
// an error.
func (r *AnalysisResult) Payload() (*ResultPayload, error) {
	p := &ResultPayload{
		PointsOfInterest: r.POIs,
		Legend:           r.PieChartData,
	}

	if r.BBox != nil {
		box, err := geospatial.BBoxFromSlice(r.BBox)
		if err != nil {
			zap.L().Debug("model: dropping unusable bbox", zap.Float64s("bbox", r.BBox), zap.Error(err))
		} else {
			p.BoundingBox = &box
		}
	}

	raw := bytes.TrimSpace(r.GeoJSON)
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		var fc geojson.FeatureCollection
		if err := json.Unmarshal(raw, &fc); err != nil {
			return nil, eris.Wrap(err, "model: decode boundary collection")
		}
		p.Boundary = &fc
	}

	return p, nil
}

// Overview is the derived view consumed by result cards.
type Overview struct {
	Location   string       `json:"location"`
	Score      float64      `json:"score"`
	Category   string       `json:"category,omitempty"`
	Text       string       `json:"summary,omitempty"`
	AQI        int          `json:"aqi,omitempty"`
	AQIInfo    aqi.Category `json:"aqi_category"`
	KeyFactors []string     `json:"key_factors,omitempty"`
	Insights   []Insight    `json:"insights,omitempty"`
	POICount   int          `json:"poi_count"`
}

// Overview derives the card view, including the AQI category from the
// provider 1–5 index.
func (r *AnalysisResult) Overview() Overview {
	s := Overview{
		Location: "Selected Area",
		Score:    r.AIRating,
		Text:     r.Summary,
		POICount: r.POIs.Total(),
	}
	if r.Geocode != nil && r.Geocode.DisplayName != "" {
		s.Location = r.Geocode.DisplayName
	}
	if ei := r.EnvironmentalImpact; ei != nil {
		s.Category = ei.Category
		s.KeyFactors = ei.KeyFactors
		s.Insights = ei.Insights
		if s.Text == "" {
			s.Text = ei.Summary
		}
	}

	var aq struct {
		AQI float64 `json:"aqi"`
	}
	if len(r.AirQuality) > 0 && json.Unmarshal(r.AirQuality, &aq) == nil {
		s.AQI = int(aq.AQI)
	}
	s.AQIInfo, _ = aqi.Lookup(s.AQI)
	return s
}
