package annotate

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/mapmind/internal/model"
)

// DefaultPalette is cycled by category index when no legend color applies.
var DefaultPalette = []string{"#0088FE", "#00C49F", "#FFBB28", "#FF8042", "#AF19FF", "#FF1919"}

// Style holds the presentation settings of the renderer.
type Style struct {
	Palette []string

	BoundaryLineColor string
	SelectionColor    string
	PinColor          string

	MarkerSize        int
	MarkerStrokeColor string
	MarkerStrokeWidth int
	PopupMaxWidth     string

	FitPadding     int
	FitDurationMs  int
	DisplayMinZoom float64
	DisplayMaxZoom float64
	PointsMaxZoom  float64
}

// DefaultStyle returns the stock presentation.
func DefaultStyle() Style {
	return Style{
		Palette:           DefaultPalette,
		BoundaryLineColor: "#FF0000",
		SelectionColor:    "#3388FF",
		PinColor:          "#FF0000",
		MarkerSize:        14,
		MarkerStrokeColor: "#FFFFFF",
		MarkerStrokeWidth: 2,
		PopupMaxWidth:     "320px",
		FitPadding:        50,
		FitDurationMs:     1000,
		DisplayMinZoom:    10,
		DisplayMaxZoom:    12,
		PointsMaxZoom:     13,
	}
}

// withDefaults fills zero fields from DefaultStyle.
func (s Style) withDefaults() Style {
	def := DefaultStyle()
	if len(s.Palette) == 0 {
		s.Palette = def.Palette
	}
	setString(&s.BoundaryLineColor, def.BoundaryLineColor)
	setString(&s.SelectionColor, def.SelectionColor)
	setString(&s.PinColor, def.PinColor)
	setString(&s.MarkerStrokeColor, def.MarkerStrokeColor)
	setString(&s.PopupMaxWidth, def.PopupMaxWidth)
	if s.MarkerSize <= 0 {
		s.MarkerSize = def.MarkerSize
	}
	if s.MarkerStrokeWidth <= 0 {
		s.MarkerStrokeWidth = def.MarkerStrokeWidth
	}
	if s.FitPadding < 0 {
		s.FitPadding = def.FitPadding
	}
	if s.FitDurationMs <= 0 {
		s.FitDurationMs = def.FitDurationMs
	}
	if s.DisplayMinZoom <= 0 {
		s.DisplayMinZoom = def.DisplayMinZoom
	}
	if s.DisplayMaxZoom <= 0 {
		s.DisplayMaxZoom = def.DisplayMaxZoom
	}
	if s.PointsMaxZoom <= 0 {
		s.PointsMaxZoom = def.PointsMaxZoom
	}
	return s
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

// CategoryColors maps each category to its display color: the palette
// cycled by category index, overridden by legend entries that carry a color
// and a positive value.
func CategoryColors(groups model.POIGroups, legend []model.LegendEntry, palette []string) map[string]string {
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	colors := make(map[string]string, len(groups))
	for i, g := range groups {
		colors[g.Category] = palette[i%len(palette)]
	}
	for _, e := range legend {
		if e.Value > 0 && e.Color != "" {
			colors[e.Name] = e.Color
		}
	}
	return colors
}

// CategoryLabel turns a category key such as "power_plant" into
// "Power Plant".
func CategoryLabel(category string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(strings.TrimSpace(category), "_", " "))
}
